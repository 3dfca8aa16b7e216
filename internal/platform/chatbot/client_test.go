package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_SendPostsToWebhook(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/webhooks/rest/webhook" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`[{"recipient_id":"psicologo_1","custom":{"codigo":"ABC123"}}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	replies, err := c.Send(context.Background(), Message{
		Sender:   "psicologo_1",
		Message:  "/salvar_anamnese",
		Metadata: map[string]any{"nome": "Maria"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Sender != "psicologo_1" || got.Message != "/salvar_anamnese" || got.Metadata["nome"] != "Maria" {
		t.Errorf("unexpected body: %+v", got)
	}

	var code string
	if err := Custom(replies, "codigo", &code); err != nil {
		t.Fatalf("Custom: %v", err)
	}
	if code != "ABC123" {
		t.Errorf("code = %q", code)
	}
}

func TestClient_Non2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Send(context.Background(), Message{Sender: "s", Message: "m"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_NetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Send(context.Background(), Message{Sender: "s", Message: "m"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_BadJSONIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Send(context.Background(), Message{Sender: "s", Message: "m"})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestCustom_MissingOrMalformed(t *testing.T) {
	replies := []Reply{
		{Text: "olá"},
		{Custom: json.RawMessage(`"not an object"`)},
		{Custom: json.RawMessage(`{"outro":1}`)},
		{Custom: json.RawMessage(`{"codigo":null}`)},
	}
	var code string
	if err := Custom(replies, "codigo", &code); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	bad := []Reply{{Custom: json.RawMessage(`{"codigo":42}`)}}
	if err := Custom(bad, "codigo", &code); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData for wrong type, got %v", err)
	}
}

func TestCustom_SkipsRepliesWithoutKey(t *testing.T) {
	replies := []Reply{
		{Custom: json.RawMessage(`{"texto":"aguarde"}`)},
		{Custom: json.RawMessage(`{"perguntas_padrao":[{"pergunta":"Idade?","tipo":"texto"}]}`)},
	}
	var qs []map[string]string
	if err := Custom(replies, "perguntas_padrao", &qs); err != nil {
		t.Fatalf("Custom: %v", err)
	}
	if len(qs) != 1 || qs[0]["pergunta"] != "Idade?" {
		t.Errorf("unexpected questions: %v", qs)
	}
}
