// Package whatsapp sends template messages through the WhatsApp Cloud API
// and builds click-to-share links.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrDelivery     = errors.New("whatsapp delivery failed")
	ErrDisabled     = errors.New("whatsapp is not configured")
)

const countryCode = "55"

// NormalizePhone keeps the digits of phone and prefixes the Brazilian
// country code unless it is already present. The result is in E.164 form.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	// 10 or 11 digits is a national number with area code; 12 or 13 already
	// carries the country code.
	switch {
	case len(digits) == 10 || len(digits) == 11:
		digits = countryCode + digits
	case (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, countryCode):
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return "+" + digits, nil
}

// ShareLink returns a whatsapp://send link that opens the app with text
// prefilled. Spaces are escaped as %20.
func ShareLink(text string) string {
	return "whatsapp://send?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type messageRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

type Client struct {
	apiURL     string
	phoneID    string
	token      string
	httpClient *http.Client
}

func NewClient(apiURL, phoneID, token string, opts ...Option) *Client {
	c := &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		phoneID:    phoneID,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendTemplate sends an approved template to phone with params filling
// the body placeholders in order. It returns the message id.
func (c *Client) SendTemplate(ctx context.Context, phone, template, lang string, params ...string) (string, error) {
	if c.token == "" || c.phoneID == "" {
		return "", ErrDisabled
	}
	to, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	payload := messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: templatePayload{
			Name:     template,
			Language: templateLanguage{Code: lang},
		},
	}
	if len(params) > 0 {
		comp := templateComponent{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, templateParameter{Type: "text", Text: p})
		}
		payload.Template.Components = []templateComponent{comp}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/messages", c.apiURL, url.PathEscape(c.phoneID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}
