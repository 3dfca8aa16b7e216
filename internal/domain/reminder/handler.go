package reminder

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onterapia/teleconsulta/internal/platform/auth"
)

type Handler struct {
	scheduler *Scheduler
	registrar *LocalRegistrar
}

func NewHandler(s *Scheduler, r *LocalRegistrar) *Handler {
	return &Handler{scheduler: s, registrar: r}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reminders", auth.RequireRole(auth.RolePsychologist, auth.RolePatient))
	g.POST("", h.Schedule)
	g.GET("", h.List)
	g.DELETE("/:id", h.Cancel)
}

// scheduleRequest takes either an RFC 3339 sessionStart or the date and
// time shown in the apps.
type scheduleRequest struct {
	SessionStart string `json:"sessionStart"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	RoomName     string `json:"roomName"`
}

func (r scheduleRequest) start(loc *time.Location) (time.Time, error) {
	if r.SessionStart != "" {
		return time.Parse(time.RFC3339, r.SessionStart)
	}
	return time.ParseInLocation("02/01/2006 15:04", r.Date+" "+r.Time, loc)
}

func (h *Handler) Schedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RoomName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "roomName is required")
	}
	start, err := req.start(h.scheduler.clock.Now().Location())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionStart must be RFC 3339, or date DD/MM/YYYY with time HH:MM")
	}

	ctx := c.Request().Context()
	res, err := h.scheduler.ScheduleSessionNotification(ctx, start, Payload{
		Recipient: auth.UserIDFromContext(ctx),
		RoomName:  req.RoomName,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not schedule reminder")
	}
	if res.Skipped {
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) List(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, h.registrar.Pending(uid))
}

func (h *Handler) Cancel(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if err := h.registrar.Cancel(c.Param("id"), uid); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
