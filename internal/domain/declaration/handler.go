package declaration

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
	g := api.Group("/declarations", auth.RequireRole(auth.RolePsychologist))
	g.GET("/types", h.Types)
	g.POST("", h.Issue)
	g.GET("", h.List)
	g.GET("/:id/pdf", h.download(FormatPDF))
	g.GET("/:id/html", h.download(FormatHTML))
}

func (h *Handler) Types(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Types())
}

func (h *Handler) Issue(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	d, err := h.svc.Issue(c.Request().Context(), uid, req)
	if errors.Is(err, ErrMissingFields) || errors.Is(err, ErrUnknownType) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	uid := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.List(c.Request().Context(), uid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Declaration{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// download streams a stored rendering. Admins may read any declaration.
func (h *Handler) download(format Format) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.serve(c, format)
	}
}

func (h *Handler) serve(c echo.Context, format Format) error {
	ctx := c.Request().Context()
	issuer := auth.UserIDFromContext(ctx)
	if auth.HasAnyRole(ctx, auth.RoleAdmin) {
		issuer = ""
	} else if issuer == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	rc, meta, err := h.svc.Open(ctx, issuer, c.Param("id"), format)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "declaration not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()
	c.Response().Header().Set("Content-Disposition", `inline; filename="`+meta.FileName+`"`)
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
