package handoff

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onterapia/teleconsulta/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	psy := api.Group("", auth.RequireRole(auth.RolePsychologist))
	psy.PUT("/patients/:patientId/next-session", h.Publish)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/me/next-session/take", h.Take)
}

func (h *Handler) Publish(c echo.Context) error {
	var rec Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec.PsychologistName = PsychologistName(rec.PsychologistName, auth.UserNameFromContext(c.Request().Context()))
	if err := rec.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Publish(c.Request().Context(), c.Param("patientId"), rec); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not store next session")
	}
	return c.NoContent(http.StatusNoContent)
}

// Take is called by the patient app every time the home screen gains focus.
func (h *Handler) Take(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	focus, err := h.svc.Consume(c.Request().Context(), uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not read next session")
	}
	return c.JSON(http.StatusOK, focus)
}
