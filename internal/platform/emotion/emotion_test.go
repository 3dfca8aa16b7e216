package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestDistribution(t *testing.T) {
	samples := []Sample{
		{Second: 0, DominantEmotion: "happy", Emotions: map[string]float64{"happy": 60, "sad": 30, "fear": 0}},
		{Second: 1, DominantEmotion: "sad", Emotions: map[string]float64{"happy": 20, "sad": 70, "fear": 0}},
		{Second: 2, Error: "Erro na análise: boom", Emotions: map[string]float64{"angry": 100}},
		{Second: 3, DominantEmotion: NoFace, Emotions: map[string]float64{}},
		{Second: 4, DominantEmotion: "neutral", Emotions: map[string]float64{"neutral": 20}},
	}
	got := Distribution(samples)
	if len(got) != 3 {
		t.Fatalf("expected 3 slices, got %+v", got)
	}
	if got[0].Emotion != "sad" || got[1].Emotion != "happy" || got[2].Emotion != "neutral" {
		t.Errorf("unexpected order: %+v", got)
	}
	if math.Abs(got[0].Percentage-50) > 1e-9 {
		t.Errorf("sad percentage = %v, want 50", got[0].Percentage)
	}
	if got[0].Label != "triste" {
		t.Errorf("label = %q", got[0].Label)
	}
	var sum float64
	for _, s := range got {
		sum += s.Percentage
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("percentages sum to %v", sum)
	}
}

func TestDistribution_TiesByName(t *testing.T) {
	got := Distribution([]Sample{{Emotions: map[string]float64{"sad": 10, "fear": 10}}})
	if got[0].Emotion != "fear" || got[1].Emotion != "sad" {
		t.Errorf("expected alphabetical tie break, got %+v", got)
	}
}

func TestDistribution_Empty(t *testing.T) {
	if got := Distribution(nil); len(got) != 0 {
		t.Errorf("expected empty, got %+v", got)
	}
}

func TestDominant(t *testing.T) {
	samples := []Sample{
		{DominantEmotion: "sad"},
		{DominantEmotion: "happy"},
		{DominantEmotion: "sad"},
		{DominantEmotion: NoFace},
		{DominantEmotion: NoFace},
		{DominantEmotion: NoFace},
		{Error: "x", DominantEmotion: "angry"},
	}
	if got := Dominant(samples); got != "sad" {
		t.Errorf("Dominant = %q, want sad", got)
	}
	if got := Dominant([]Sample{{DominantEmotion: "sad"}, {DominantEmotion: "fear"}}); got != "fear" {
		t.Errorf("tie: Dominant = %q, want fear", got)
	}
	if got := Dominant(nil); got != "" {
		t.Errorf("empty: Dominant = %q", got)
	}
}

func TestLabel(t *testing.T) {
	if Label("surprise") != "surpresa" {
		t.Error("expected surpresa")
	}
	if Label("contempt") != "contempt" {
		t.Error("expected passthrough for unknown emotion")
	}
}

func TestClient_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze-fixed-video" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"video":"video_input.mp4","output_json":"analysis_results.json","analysis":[
			{"second":0,"dominant_emotion":"happy","emotions":{"happy":90.5,"sad":9.5}},
			{"second":1,"error":"Erro na análise: sem rosto"}]}`))
	}))
	defer srv.Close()

	a, err := NewClient(srv.URL + "/").Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Video != "video_input.mp4" || len(a.Samples) != 2 {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if a.Samples[0].Emotions["happy"] != 90.5 || a.Samples[1].Error == "" {
		t.Errorf("unexpected samples: %+v", a.Samples)
	}
}

func TestClient_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Arquivo de vídeo não encontrado"}`, http.StatusNotFound)
	}))
	defer notFound.Close()
	if _, err := NewClient(notFound.URL).Analyze(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer garbage.Close()
	if _, err := NewClient(garbage.URL).Analyze(context.Background()); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

type stubAnalyzer struct {
	a   *Analysis
	err error
}

func (s stubAnalyzer) Analyze(context.Context) (*Analysis, error) { return s.a, s.err }

func TestHandler_Emotions(t *testing.T) {
	h := NewHandler(stubAnalyzer{a: &Analysis{Video: "v.mp4", Samples: []Sample{
		{Second: 0, DominantEmotion: "neutral", Emotions: map[string]float64{"neutral": 80, "sad": 20}},
	}}}, zerolog.Nop())

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/evolution/emotions", nil), rec)
	if err := h.Emotions(c); err != nil {
		t.Fatalf("Emotions: %v", err)
	}
	var resp emotionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Dominant != "neutral" || resp.DominantText != "neutro" || len(resp.Distribution) != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_UpstreamFailureIsBadGateway(t *testing.T) {
	h := NewHandler(stubAnalyzer{err: ErrUnavailable}, zerolog.Nop())
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := h.Emotions(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
}
