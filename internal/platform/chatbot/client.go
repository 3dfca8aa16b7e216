// Package chatbot talks to the anamnesis chatbot over its REST webhook.
package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnavailable covers network failures and non-2xx responses.
	ErrUnavailable = errors.New("chatbot unavailable")
	// ErrNoData means the bot answered without the expected custom payload.
	ErrNoData = errors.New("chatbot returned no data")
)

const webhookPath = "/webhooks/rest/webhook"

// Message is one utterance sent to the bot.
type Message struct {
	Sender   string         `json:"sender"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Reply is one bot response. Custom carries the structured payload.
type Reply struct {
	RecipientID string          `json:"recipient_id"`
	Text        string          `json:"text,omitempty"`
	Custom      json.RawMessage `json:"custom,omitempty"`
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Send posts msg to the webhook and returns the bot replies.
func (c *Client) Send(ctx context.Context, msg Message) ([]Reply, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+webhookPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var replies []Reply
	if err := json.NewDecoder(resp.Body).Decode(&replies); err != nil {
		return nil, fmt.Errorf("%w: decode replies: %v", ErrNoData, err)
	}
	return replies, nil
}

// Custom decodes the field named key from the first reply whose custom
// payload carries it. It returns ErrNoData when no reply has a usable value.
func Custom(replies []Reply, key string, out any) error {
	for _, r := range replies {
		if len(r.Custom) == 0 {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(r.Custom, &fields); err != nil {
			continue
		}
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrNoData, key, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoData, key)
}
