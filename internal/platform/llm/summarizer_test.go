package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeCompleter struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestNewSummarizer_DisabledWithoutKey(t *testing.T) {
	s := NewSummarizer("", "")
	if s.Enabled() {
		t.Fatal("expected disabled summarizer")
	}
	if _, err := s.Summarize(context.Background(), []QA{{"a", "b"}}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestSummarize_SendsPromptAndReturnsChoice(t *testing.T) {
	fake := &fakeCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "  - Dorme mal\n"}}},
	}}
	s := &Summarizer{client: fake, model: "gpt-4o-mini"}

	out, err := s.Summarize(context.Background(), []QA{
		{Question: "Como está seu sono?", Answer: "Durmo mal."},
		{Question: "Faz uso de medicação?", Answer: "Não."},
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "- Dorme mal" {
		t.Errorf("summary = %q", out)
	}
	if fake.req.Model != "gpt-4o-mini" || len(fake.req.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", fake.req)
	}
	if fake.req.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("expected system prompt first")
	}
	user := fake.req.Messages[1].Content
	if !strings.Contains(user, "Pergunta: Como está seu sono?\nResposta: Durmo mal.") {
		t.Errorf("prompt missing first answer: %q", user)
	}
}

func TestSummarize_Errors(t *testing.T) {
	s := &Summarizer{client: &fakeCompleter{err: errors.New("rate limited")}, model: "m"}
	if _, err := s.Summarize(context.Background(), []QA{{"q", "a"}}); err == nil {
		t.Error("expected upstream error")
	}
	if _, err := s.Summarize(context.Background(), nil); err == nil {
		t.Error("expected error for empty answers")
	}
}
