// Package llm produces short clinical summaries with the OpenAI chat API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("summaries are not configured")

const systemPrompt = "Você auxilia psicólogos. Resuma em português, em até cinco tópicos curtos, " +
	"as respostas de anamnese a seguir. Não invente informações nem faça diagnósticos."

// QA is one anamnesis question with its answer.
type QA struct {
	Question string
	Answer   string
}

// completer is the part of *openai.Client used here.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Summarizer struct {
	client completer
	model  string
}

// NewSummarizer returns nil when apiKey is empty; a nil *Summarizer reports
// ErrDisabled from Summarize.
func NewSummarizer(apiKey, model string) *Summarizer {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Summarizer{client: openai.NewClient(apiKey), model: model}
}

func (s *Summarizer) Enabled() bool { return s != nil && s.client != nil }

func buildPrompt(answers []QA) string {
	var b strings.Builder
	for _, qa := range answers {
		fmt.Fprintf(&b, "Pergunta: %s\nResposta: %s\n\n", strings.TrimSpace(qa.Question), strings.TrimSpace(qa.Answer))
	}
	return strings.TrimSpace(b.String())
}

// Summarize returns a Portuguese summary of answers.
func (s *Summarizer) Summarize(ctx context.Context, answers []QA) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	if len(answers) == 0 {
		return "", fmt.Errorf("no answers to summarize")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(answers)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
