package session

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onterapia/teleconsulta/internal/domain/handoff"
	"github.com/onterapia/teleconsulta/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	both := api.Group("", auth.RequireRole(auth.RolePsychologist, auth.RolePatient))
	both.POST("/sessions", h.Start)

	psy := api.Group("", auth.RequireRole(auth.RolePsychologist))
	psy.POST("/sessions/send", h.Send)
}

type startRequest struct {
	Role string `json:"role"`
}

type sendRequest struct {
	PatientID        string `json:"patientId"`
	RoomName         string `json:"roomName"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	PsychologistName string `json:"psychologistName,omitempty"`
}

// initiatorFor picks the role the caller is acting as. An explicit role must
// be one the caller holds.
func initiatorFor(c echo.Context, requested string) (string, error) {
	ctx := c.Request().Context()
	if requested != "" {
		if !ValidInitiator(requested) {
			return "", echo.NewHTTPError(http.StatusBadRequest, ErrInvalidRole.Error())
		}
		if !auth.HasAnyRole(ctx, requested) {
			return "", echo.NewHTTPError(http.StatusForbidden, "caller does not hold role "+requested)
		}
		return requested, nil
	}
	for _, r := range auth.RolesFromContext(ctx) {
		if r == auth.RolePsychologist {
			return r, nil
		}
	}
	return auth.RolePatient, nil
}

func (h *Handler) Start(c echo.Context) error {
	var req startRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	initiator, err := initiatorFor(c, req.Role)
	if err != nil {
		return err
	}
	out, err := h.svc.Start(c.Request().Context(), initiator)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	if !ValidRoomName(req.RoomName) {
		return echo.NewHTTPError(http.StatusBadRequest, "roomName must match [a-z0-9-_.]+")
	}

	ctx := c.Request().Context()
	sess := h.svc.Rebuild(req.RoomName, req.Date, req.Time)
	name := handoff.PsychologistName(req.PsychologistName, auth.UserNameFromContext(ctx))
	err := h.svc.SendToPatient(ctx, auth.RolePsychologist, name, req.PatientID, sess)
	switch {
	case err == nil:
		return c.JSON(http.StatusAccepted, sess)
	case errors.Is(err, ErrForbiddenRole):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, handoff.ErrInvalidRecord):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not store next session")
	}
}
