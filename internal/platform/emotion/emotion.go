// Package emotion reads facial emotion analyses produced by the video
// analysis service and aggregates them for the case evolution view.
package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

var (
	ErrUnavailable = errors.New("emotion service unavailable")
	ErrMalformed   = errors.New("emotion service returned malformed data")
)

// NoFace is reported by the analyser for seconds without a detected face.
const NoFace = "no_face_detected"

// Sample is the analysis of one second of video.
type Sample struct {
	Second          int                `json:"second"`
	DominantEmotion string             `json:"dominant_emotion,omitempty"`
	Emotions        map[string]float64 `json:"emotions,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// Analysis is the response of the analysis service.
type Analysis struct {
	Video      string   `json:"video"`
	OutputJSON string   `json:"output_json"`
	Samples    []Sample `json:"analysis"`
}

var labels = map[string]string{
	"happy":    "feliz",
	"sad":      "triste",
	"fear":     "medo",
	"angry":    "raiva",
	"surprise": "surpresa",
	"neutral":  "neutro",
	"disgust":  "desgosto",
}

// Label returns the Portuguese label for emotion, or emotion itself.
func Label(emotion string) string {
	if l, ok := labels[emotion]; ok {
		return l
	}
	return emotion
}

// Slice is one emotion's share of the whole analysis.
type Slice struct {
	Emotion    string  `json:"emotion"`
	Label      string  `json:"label"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Distribution sums each emotion over the samples without an error and
// expresses it as a share of the grand total, largest first.
func Distribution(samples []Sample) []Slice {
	totals := map[string]float64{}
	var grand float64
	for _, s := range samples {
		if s.Error != "" {
			continue
		}
		for emo, v := range s.Emotions {
			totals[emo] += v
			grand += v
		}
	}

	out := make([]Slice, 0, len(totals))
	for emo, v := range totals {
		if v <= 0 {
			continue
		}
		out = append(out, Slice{Emotion: emo, Label: Label(emo), Total: v, Percentage: v / grand * 100})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Emotion < out[j].Emotion
	})
	return out
}

// Dominant returns the most frequent dominant emotion across samples, ties
// broken alphabetically. Errored and faceless seconds are ignored. It
// returns "" when nothing qualifies.
func Dominant(samples []Sample) string {
	counts := map[string]int{}
	for _, s := range samples {
		if s.Error != "" || s.DominantEmotion == "" || s.DominantEmotion == NoFace {
			continue
		}
		counts[s.DominantEmotion]++
	}
	best, bestN := "", 0
	for emo, n := range counts {
		if n > bestN || (n == bestN && emo < best) {
			best, bestN = emo, n
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the analysis service. Analysing a video is
// slow, so the default timeout is generous.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Analyze(ctx context.Context) (*Analysis, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/analyze-fixed-video", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var a Analysis
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &a, nil
}
