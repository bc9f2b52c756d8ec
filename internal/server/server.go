package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/procurelens/marketintel/config"
	"github.com/procurelens/marketintel/internal/index"
	"github.com/procurelens/marketintel/internal/research"
	"github.com/procurelens/marketintel/internal/runtime"
	"github.com/procurelens/marketintel/internal/storage"
	"github.com/procurelens/marketintel/internal/telemetry"
)

// Run wires the whole service and blocks serving HTTP on addr.
func Run(configPath, addr string) error {
	cfg := config.LoadConfig(configPath)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// unified JSON error envelope with request logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		baseLogger.Printf("migrate: %v", err)
	}

	st, err := storage.New(cfg.Storage.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	cache, err := storage.NewCache(cfg.Storage.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	llm, err := research.NewLLMProvider(cfg.LLM)
	if err != nil {
		return err
	}
	searchProvider, err := research.NewSearchProvider(cfg.Search)
	if err != nil {
		return err
	}
	fetcher, err := research.NewFetcher(cfg.Fetcher)
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	evidence := index.NewEvidenceIndex()
	orch := research.NewOrchestrator(cfg, llm, searchProvider, fetcher, tele, &cachingStore{Store: st, Cache: cache}, evidence, nil)

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	rh := &ResearchHandler{
		Orch:    orch,
		Planner: research.NewPlanner(cfg, llm, nil),
		Store:   st,
		Cache:   cache,
		Index:   evidence,
		Logger:  baseLogger,
	}
	rh.Register(api, runtime.EchoAuthMiddleware(secret))

	sched := NewScheduler(st, cache, orch)
	sched.Start()

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
