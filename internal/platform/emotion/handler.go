package emotion

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/auth"
)

// Analyzer is satisfied by *Client.
type Analyzer interface {
	Analyze(ctx context.Context) (*Analysis, error)
}

type Handler struct {
	analyzer Analyzer
	logger   zerolog.Logger
}

func NewHandler(a Analyzer, logger zerolog.Logger) *Handler {
	return &Handler{analyzer: a, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/evolution", auth.RequireRole(auth.RolePsychologist))
	g.GET("/emotions", h.Emotions)
}

type emotionsResponse struct {
	Video        string   `json:"video"`
	Dominant     string   `json:"dominant"`
	DominantText string   `json:"dominantLabel"`
	Distribution []Slice  `json:"distribution"`
	Samples      []Sample `json:"samples"`
}

func (h *Handler) Emotions(c echo.Context) error {
	a, err := h.analyzer.Analyze(c.Request().Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("emotion analysis failed")
		if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformed) {
			return echo.NewHTTPError(http.StatusBadGateway, "emotion analysis unavailable")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "emotion analysis failed")
	}

	samples := a.Samples
	if samples == nil {
		samples = []Sample{}
	}
	dom := Dominant(samples)
	return c.JSON(http.StatusOK, emotionsResponse{
		Video:        a.Video,
		Dominant:     dom,
		DominantText: Label(dom),
		Distribution: Distribution(samples),
		Samples:      samples,
	})
}
