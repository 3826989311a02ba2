// Package api serves runs, capabilities and activities over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/db"
	"github.com/metalagman/jota/internal/orchestrator"
)

// Store is the read side of the run journal and the activity table.
type Store interface {
	GetRun(ctx context.Context, runID string) (db.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]db.RunRecord, error)
	ListSteps(ctx context.Context, runID string) ([]db.StepRecord, error)
	ListEvents(ctx context.Context, runID string) ([]db.Event, error)
	ListNarrations(ctx context.Context, runID string) ([]db.NarrationRecord, error)
	ListActivities(ctx context.Context, f db.ActivityFilter) ([]db.Activity, error)
}

// Capabilities lists what the planner may use.
type Capabilities interface {
	List() []capability.Capability
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Runs         *Manager
	Store        Store
	Capabilities Capabilities
	Metrics      http.Handler
}

type capabilityView struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Kind        capability.Kind `json:"kind"`
	Idempotent  bool            `json:"idempotent"`
	Parameters  map[string]any  `json:"parameters"`
}

type startRequest struct {
	Objective string `json:"objective"`
	Owner     string `json:"owner"`
}

type runView struct {
	db.RunRecord
	Steps      []db.StepRecord      `json:"steps"`
	Narrations []db.NarrationRecord `json:"narrations"`
	Events     []db.Event           `json:"events"`
}

type handler struct {
	Deps
}

// New builds the echo server.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler

	h := &handler{Deps: d}
	e.GET("/", h.index)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	g := e.Group("/api")
	g.GET("/capabilities", h.listCapabilities)
	g.GET("/runs", h.listRuns)
	g.POST("/runs", h.startRun)
	g.GET("/runs/:id", h.getRun)
	g.POST("/runs/:id/cancel", h.cancelRun)
	g.POST("/runs/:id/retry", h.retryRun)
	g.GET("/activities", h.listActivities)
	return e
}

func errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	ev := log.Debug()
	if code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Int("status", code).Str("method", req.Method).Str("path", req.URL.Path).Msg("http request failed")
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}

func (h *handler) listCapabilities(c echo.Context) error {
	caps := h.Capabilities.List()
	out := make([]capabilityView, 0, len(caps))
	for _, cp := range caps {
		out = append(out, capabilityView{
			Name:        cp.Name,
			DisplayName: cp.DisplayName,
			Category:    cp.Category,
			Description: cp.Description,
			Kind:        cp.Kind,
			Idempotent:  cp.Idempotent,
			Parameters:  cp.JSONSchema(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handler) startRun(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.Objective = strings.TrimSpace(req.Objective)
	if req.Objective == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "objective is required")
	}
	id := h.Runs.Start(req.Objective, strings.TrimSpace(req.Owner))
	return c.JSON(http.StatusAccepted, map[string]string{"run_id": id})
}

func (h *handler) listRuns(c echo.Context) error {
	limit := 20
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	runs, err := h.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *handler) getRun(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	run, err := h.Store.GetRun(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return err
	}
	view := runView{RunRecord: run}
	if view.Steps, err = h.Store.ListSteps(ctx, id); err != nil {
		return err
	}
	if view.Narrations, err = h.Store.ListNarrations(ctx, id); err != nil {
		return err
	}
	if view.Events, err = h.Store.ListEvents(ctx, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *handler) cancelRun(c echo.Context) error {
	if err := h.Runs.Cancel(c.Param("id")); err != nil {
		return runError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *handler) retryRun(c echo.Context) error {
	if err := h.Runs.Retry(c.Param("id")); err != nil {
		return runError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func runError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownRun):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRunActive), errors.Is(err, ErrRunFinished), errors.Is(err, orchestrator.ErrNotRetryable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}

func (h *handler) listActivities(c echo.Context) error {
	list, err := h.Store.ListActivities(c.Request().Context(), db.ActivityFilter{
		Owner: c.QueryParam("owner"),
		Theme: c.QueryParam("tema"),
		Limit: 100,
	})
	if err != nil {
		return err
	}
	if list == nil {
		list = []db.Activity{}
	}
	return c.JSON(http.StatusOK, list)
}
