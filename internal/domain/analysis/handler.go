package analysis

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/cdastats/internal/platform/auth"
	"github.com/ehr/cdastats/internal/platform/ccda"
	"github.com/ehr/cdastats/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, analyst
	readGroup := api.Group("", auth.RequireRole("admin", "analyst"))
	readGroup.GET("/ccda/statistics", h.GetStatistics)
	readGroup.GET("/ccda/documents", h.ListDocuments)
	readGroup.GET("/ccda/export", h.Export)
	readGroup.GET("/ccda/runs", h.ListRuns)
	readGroup.GET("/ccda/runs/:id", h.GetRun)

	// Write endpoints – admin, analyst
	writeGroup := api.Group("", auth.RequireRole("admin", "analyst"))
	writeGroup.POST("/ccda/documents", h.ParseDocument)
	writeGroup.POST("/ccda/batch", h.ParseBatch)
	writeGroup.DELETE("/ccda/documents", h.ClearDocuments)
}

// batchEntry mirrors one element of the batch payload. Entries missing
// either field are skipped rather than rejected.
type batchEntry struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

func (h *Handler) ParseDocument(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	if err := h.svc.ParseOne(c.Request().Context(), name, body); err != nil {
		var xerr *ccda.XMLStructureError
		if errors.As(err, &xerr) {
			return echo.NewHTTPError(http.StatusBadRequest, xerr.Error())
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "Success"})
}

func (h *Handler) ParseBatch(c echo.Context) error {
	var entries []batchEntry
	if err := c.Bind(&entries); err != nil {
		// keeps the 413 from a body that overflowed mid-stream
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	files := make([]FileInput, 0, len(entries))
	for _, e := range entries {
		if e.Name == nil || e.Content == nil {
			continue
		}
		files = append(files, FileInput{Name: *e.Name, Content: *e.Content})
	}

	stats, err := h.svc.ParseBatch(c.Request().Context(), files)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Statistics(c.Request().Context()))
}

func (h *Handler) ListDocuments(c echo.Context) error {
	pg := pagination.FromContext(c)
	docs := h.svc.Documents(c.Request().Context())
	start, end := pg.Window(len(docs))
	return c.JSON(http.StatusOK, pagination.NewResponse(docs[start:end], len(docs), pg.Limit, pg.Offset))
}

func (h *Handler) ClearDocuments(c echo.Context) error {
	h.svc.Clear(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Export(c echo.Context) error {
	bundle, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRuns(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	run, err := h.svc.GetRun(c.Request().Context(), id)
	if errors.Is(err, ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}
