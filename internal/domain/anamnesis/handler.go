package anamnesis

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onterapia/teleconsulta/internal/platform/auth"
	"github.com/onterapia/teleconsulta/internal/platform/chatbot"
	"github.com/onterapia/teleconsulta/internal/platform/llm"
	"github.com/onterapia/teleconsulta/internal/platform/whatsapp"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/anamnesis", auth.RequireRole(auth.RolePsychologist))
	g.GET("/questions", h.StandardQuestions)
	g.POST("", h.Save)
	g.GET("/:code", h.Answers)
	g.GET("/:code/summary", h.Summary)
}

// httpError maps service errors to responses.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNoQuestions), errors.Is(err, ErrMissingName),
		errors.Is(err, ErrMissingCode), errors.Is(err, whatsapp.ErrInvalidPhone):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrEmptyAnswers):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, chatbot.ErrUnavailable), errors.Is(err, chatbot.ErrNoData),
		errors.Is(err, whatsapp.ErrDelivery):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, llm.ErrDisabled), errors.Is(err, ErrNoMessenger), errors.Is(err, whatsapp.ErrDisabled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, "upstream request failed")
	}
}

func (h *Handler) StandardQuestions(c echo.Context) error {
	qs, err := h.svc.StandardQuestions(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, qs)
}

type saveRequest struct {
	PatientName string     `json:"patientName"`
	Phone       string     `json:"phone"`
	Questions   []Question `json:"questions"`
}

type saveResponse struct {
	Code          string `json:"code"`
	WhatsAppSent  bool   `json:"whatsappSent"`
	MessageID     string `json:"messageId,omitempty"`
	WhatsAppError string `json:"whatsappError,omitempty"`
}

// Save stores the questionnaire and, when a phone is given, sends the code
// over WhatsApp. A failed send does not undo the save.
func (h *Handler) Save(c echo.Context) error {
	var req saveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	code, err := h.svc.Save(ctx, req.PatientName, req.Questions)
	if err != nil {
		return httpError(err)
	}

	resp := saveResponse{Code: code}
	if req.Phone != "" {
		id, err := h.svc.SendCode(ctx, req.Phone, code)
		if err != nil {
			resp.WhatsAppError = err.Error()
		} else {
			resp.WhatsAppSent = true
			resp.MessageID = id
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Answers(c echo.Context) error {
	answers, err := h.svc.Answers(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, answers)
}

func (h *Handler) Summary(c echo.Context) error {
	summary, err := h.svc.Summary(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"summary": summary})
}
