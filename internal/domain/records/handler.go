package records

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labtrend/labtrend/internal/platform/auth"
	"github.com/labtrend/labtrend/internal/platform/chart"
	"github.com/labtrend/labtrend/internal/platform/reporting"
	"github.com/labtrend/labtrend/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes attaches the role check to each route rather than to a
// prefix-less group, so unknown paths under api still answer 404.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := auth.RequireRole(auth.RoleReader)
	api.GET("/records", h.ListRecords, read)
	api.GET("/records/:name", h.GetRecord, read)
	api.GET("/records/:name/chart", h.GetChart, read)
	api.GET("/records/:name/report", h.GetReport, read)
	api.GET("/query", h.Query, read)
	api.GET("/abnormal", h.ListAbnormal, read)
	api.GET("/status", h.GetStatus, read)
	api.GET("/snapshots", h.ListSnapshots, read)

	write := auth.RequireRole(auth.RoleAdmin)
	api.POST("/reload", h.Reload, write)
	api.POST("/snapshots", h.CreateSnapshot, write)
	api.POST("/snapshots/:id/restore", h.RestoreSnapshot, write)
	api.DELETE("/snapshots/:id", h.DeleteSnapshot, write)
}

// nameParam returns the decoded :name path segment.
func nameParam(c echo.Context) string {
	raw := c.Param("name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func (h *Handler) ListRecords(c echo.Context) error {
	category := reporting.Category(strings.ToLower(c.QueryParam("category")))
	switch category {
	case "", reporting.CategoryBlood, reporting.CategoryOther:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid category")
	}

	pg := pagination.FromContext(c)
	items := h.svc.Names(category)
	resp := pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, resp.WithLinks(c.Request().URL.Path))
}

func (h *Handler) GetRecord(c echo.Context) error {
	s, err := h.svc.Series(nameParam(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetChart(c echo.Context) error {
	ch, err := h.svc.Chart(nameParam(c))
	switch {
	case errors.Is(err, ErrSeriesNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, chart.ErrNotChartable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) GetReport(c echo.Context) error {
	r, err := h.svc.Report(nameParam(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextPlain) {
		return c.String(http.StatusOK, r.Text)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Query(c echo.Context) error {
	q := c.QueryParam("q")
	if strings.TrimSpace(q) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	res, err := h.svc.Query(q)
	if errors.Is(err, ErrNoMatch) {
		return echo.NewHTTPError(http.StatusNotFound, "no match")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListAbnormal(c echo.Context) error {
	groups := h.svc.Abnormal()
	if groups == nil {
		groups = []reporting.AbnormalSeries{}
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Status())
}

func (h *Handler) Reload(c echo.Context) error {
	status, err := h.svc.Reload(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, status)
}

// -- Snapshots --

type createSnapshotRequest struct {
	Label string `json:"label"`
}

func snapshotError(err error) error {
	switch {
	case errors.Is(err, ErrNoRepository):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrSnapshotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "snapshot not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) ListSnapshots(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSnapshots(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return snapshotError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateSnapshot(c echo.Context) error {
	var req createSnapshotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	snap, err := h.svc.SaveSnapshot(c.Request().Context(), req.Label)
	if err != nil {
		return snapshotError(err)
	}
	return c.JSON(http.StatusCreated, snap)
}

func (h *Handler) RestoreSnapshot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	status, err := h.svc.RestoreSnapshot(c.Request().Context(), id)
	if err != nil {
		return snapshotError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) DeleteSnapshot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSnapshot(c.Request().Context(), id); err != nil {
		return snapshotError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
