package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/procurelens/marketintel/internal/index"
	"github.com/procurelens/marketintel/internal/report"
	"github.com/procurelens/marketintel/internal/research"
	"github.com/procurelens/marketintel/internal/storage"
)

// ResearchHandler exposes run submission, status polling, report reads and
// evidence search.
type ResearchHandler struct {
	Orch    *research.Orchestrator
	Planner *research.Planner
	Store   *storage.Store
	Cache   *storage.Cache
	Index   *index.EvidenceIndex
	Logger  *log.Logger
}

func (h *ResearchHandler) Register(api *echo.Group, mw echo.MiddlewareFunc) {
	g := api.Group("")
	g.Use(mw)
	g.POST("/research", h.submit)
	g.GET("/research/:id", h.status)
	g.GET("/research", h.listRuns)
	g.POST("/research/suggest", h.suggest)
	g.GET("/report/:workspace", h.report)
	g.GET("/report/:workspace/export", h.export)
	g.GET("/evidence/search", h.evidenceSearch)
	g.POST("/watchlists", h.createWatchlist)
	g.GET("/watchlists", h.listWatchlists)
}

// submit starts a run in the background and returns its id immediately.
func (h *ResearchHandler) submit(c echo.Context) error {
	var req ResearchSubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Workspace == "" || req.Market == "" || len(req.Categories) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace, market and categories are required")
	}

	runID, err := h.Orch.Submit(context.Background(), req.toResearchRequest())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, ResearchSubmitResponse{RunID: runID, State: string(research.StateIdle)})
}

func (h *ResearchHandler) status(c echo.Context) error {
	id := c.Param("id")
	if st, ok := h.Orch.Status(id); ok {
		return c.JSON(http.StatusOK, st)
	}
	// fall back to persisted runs from previous processes
	st, err := h.Store.GetRunStatus(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *ResearchHandler) listRuns(c echo.Context) error {
	workspace := c.QueryParam("workspace")
	if workspace == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace is required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	runs, err := h.Store.ListRuns(c.Request().Context(), workspace, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *ResearchHandler) suggest(c echo.Context) error {
	var req TopicSuggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Input == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input is required")
	}
	options := h.Planner.SuggestTopics(c.Request().Context(), req.Input, req.Market)
	return c.JSON(http.StatusOK, TopicSuggestResponse{Options: options})
}

// report returns the workspace's latest intelligence store, preferring the
// Redis cache over Postgres.
func (h *ResearchHandler) report(c echo.Context) error {
	workspace := c.Param("workspace")
	store, err := h.loadStore(c.Request().Context(), workspace)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "no report for workspace")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, store)
}

func (h *ResearchHandler) export(c echo.Context) error {
	workspace := c.Param("workspace")
	store, err := h.loadStore(c.Request().Context(), workspace)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "no report for workspace")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch c.QueryParam("format") {
	case "", "markdown":
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+workspace+`-report.md"`)
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(store)))
	case "json":
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+workspace+`-report.json"`)
		return c.JSON(http.StatusOK, store)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be markdown or json")
	}
}

func (h *ResearchHandler) loadStore(ctx context.Context, workspace string) (research.IntelligenceStore, error) {
	if h.Cache != nil {
		if store, ok, err := h.Cache.GetStore(ctx, workspace); err == nil && ok {
			return store, nil
		}
	}
	store, err := h.Store.GetIntelligenceStore(ctx, workspace)
	if err != nil {
		return research.IntelligenceStore{}, err
	}
	if h.Cache != nil {
		if err := h.Cache.PutStore(ctx, store); err != nil {
			h.Logger.Printf("cache store %s: %v", workspace, err)
		}
	}
	return store, nil
}

func (h *ResearchHandler) evidenceSearch(c echo.Context) error {
	workspace := c.QueryParam("workspace")
	q := c.QueryParam("q")
	if workspace == "" || q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace and q are required")
	}
	k, _ := strconv.Atoi(c.QueryParam("k"))
	hits, err := h.Index.Search(workspace, q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}

func (h *ResearchHandler) createWatchlist(c echo.Context) error {
	var req WatchlistCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Workspace == "" || req.Market == "" || len(req.Categories) == 0 || req.CronSpec == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace, market, categories and cron_spec are required")
	}
	id, err := h.Store.CreateWatchlist(c.Request().Context(), storage.Watchlist{
		Workspace:  req.Workspace,
		Market:     req.Market,
		Categories: req.Categories,
		Depth:      req.Depth,
		TimeWindow: req.TimeWindow,
		CronSpec:   req.CronSpec,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, WatchlistCreateResponse{ID: id})
}

func (h *ResearchHandler) listWatchlists(c echo.Context) error {
	lists, err := h.Store.ListWatchlists(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	items := make([]WatchlistItem, 0, len(lists))
	for _, w := range lists {
		item := WatchlistItem{
			ID:         w.ID,
			Workspace:  w.Workspace,
			Market:     w.Market,
			Categories: w.Categories,
			Depth:      w.Depth,
			TimeWindow: w.TimeWindow,
			CronSpec:   w.CronSpec,
		}
		if w.LastRunAt != nil {
			item.LastRunAt = w.LastRunAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, items)
}
