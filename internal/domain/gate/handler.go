package gate

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onterapia/teleconsulta/internal/platform/auth"
	"github.com/onterapia/teleconsulta/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/consent", auth.RequireRole(auth.RolePsychologist, auth.RolePatient))
	g.GET("/terms", h.GetTerms)
	g.POST("", h.RecordConsent)
	g.GET("", h.ListConsent)
	g.POST("/arbitrate", h.Arbitrate)
}

func (h *Handler) GetTerms(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Terms())
}

type consentResponse struct {
	State           State          `json:"state"`
	CanEnterSession bool           `json:"canEnterSession"`
	Record          *ConsentRecord `json:"record,omitempty"`
}

func (h *Handler) RecordConsent(c echo.Context) error {
	var o Outcome
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	uid := auth.UserIDFromContext(c.Request().Context())
	st, rec, err := h.svc.Record(c.Request().Context(), uid, o)
	switch {
	case errors.Is(err, ErrMissingRoom):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTermsOutdated):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "could not record consent")
	}
	status := http.StatusOK
	if rec != nil {
		status = http.StatusCreated
	}
	return c.JSON(status, consentResponse{State: st, CanEnterSession: st.CanEnterSession(), Record: rec})
}

func (h *Handler) ListConsent(c echo.Context) error {
	pg := pagination.FromContext(c)
	uid := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.List(c.Request().Context(), uid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*ConsentRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type arbitrateRequest struct {
	Outcome      Outcome  `json:"outcome"`
	Capabilities []string `json:"capabilities"`
}

// Arbitrate answers a web capability request for a client that ran the gate
// on the device. The state is rebuilt through the reducer, never taken from
// the request as is.
func (h *Handler) Arbitrate(c echo.Context) error {
	var req arbitrateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.JSON(http.StatusOK, Arbitrate(Replay(req.Outcome), req.Capabilities))
}
