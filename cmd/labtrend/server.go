package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/labtrend/labtrend/internal/config"
	"github.com/labtrend/labtrend/internal/domain/records"
	"github.com/labtrend/labtrend/internal/platform/auth"
	"github.com/labtrend/labtrend/internal/platform/db"
	"github.com/labtrend/labtrend/internal/platform/middleware"
	"github.com/labtrend/labtrend/internal/platform/openapi"
	"github.com/labtrend/labtrend/internal/platform/scheduling"
	"github.com/labtrend/labtrend/internal/platform/telemetry"
	"github.com/labtrend/labtrend/internal/platform/webhook"
	"github.com/labtrend/labtrend/internal/platform/websocket"
)

const (
	apiVersion      = "0.1.0"
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func serveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the labtrend API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, flags, cfg)
			return runServer(cfg)
		},
	}
}

func runServer(cfg *config.Config) error {
	// Logger
	logger := newLogger(cfg, os.Stdout)

	if err := cfg.ValidateServe(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database is optional; without it the snapshot endpoints answer 503.
	ctx := context.Background()
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		p, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, snapshots disabled")
	}

	svc, err := newService(cfg, logger, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build corpus service")
	}
	defer svc.Close()
	if _, err := svc.Reload(ctx); err != nil {
		logger.Warn().Err(userError(cfg, err)).Msg("initial load failed, serving an empty corpus")
	}

	// Scheduled reloads
	var sched *scheduling.Scheduler
	if cfg.ReloadSchedule != "" {
		sched = scheduling.New(logger, time.Duration(cfg.ReloadTimeout)*time.Second)
		if err := sched.Add("reload", cfg.ReloadSchedule, func(ctx context.Context) error {
			_, err := svc.Reload(ctx)
			return err
		}); err != nil {
			logger.Fatal().Err(err).Msg("failed to schedule reload")
		}
	}

	// Webhooks
	var hooks *webhook.Notifier
	if len(cfg.WebhookURLs) > 0 {
		hooks = webhook.NewNotifier(webhookEndpoints(cfg), logger)
		logger.Info().Int("endpoints", len(cfg.WebhookURLs)).Msg("webhook delivery enabled")
	}

	e := newEcho(cfg, serverDeps{records: svc, pool: pool, scheduler: sched, webhooks: hooks}, logger)
	if sched != nil {
		sched.Start()
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("scheduled job still running at shutdown")
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	if hooks != nil {
		if err := hooks.Wait(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("webhook deliveries still pending at shutdown")
		}
	}
	logger.Info().Msg("server stopped")
	return nil
}

// serverDeps are the collaborators behind the HTTP API. Everything but
// records may be nil.
type serverDeps struct {
	records   *records.Service
	pool      *pgxpool.Pool
	scheduler *scheduling.Scheduler
	webhooks  *webhook.Notifier
}

func webhookEndpoints(cfg *config.Config) []webhook.Endpoint {
	out := make([]webhook.Endpoint, 0, len(cfg.WebhookURLs))
	for _, u := range cfg.WebhookURLs {
		out = append(out, webhook.Endpoint{URL: u, Secret: cfg.WebhookSecret, Events: cfg.WebhookEvents})
	}
	return out
}

// newEcho assembles the middleware chain and routes.
func newEcho(cfg *config.Config, deps serverDeps, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	svc := deps.records
	hub := websocket.NewHub(logger)
	svc.AddPublisher(hub)
	if deps.webhooks != nil {
		svc.AddPublisher(deps.webhooks)
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if cfg.MetricsEnabled {
		metrics := newMetrics(svc, hub)
		e.Use(metrics.Middleware())
		e.GET("/metrics", metrics.Handler())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(requestTimeout, "/api/v1/reload", "/api/v1/events"))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", db.HealthHandler(deps.pool, func() interface{} { return svc.Status() }))

	apiV1 := e.Group("/api/v1")
	docs := openapi.NewGenerator("labtrend API", apiVersion, "/api/v1")
	docs.AddSchemas(records.Schemas())

	recordsHandler := records.NewHandler(svc)
	recordsHandler.RegisterRoutes(apiV1)
	docs.Add(recordsHandler.Operations()...)

	// Change feed
	events := websocket.NewHandler(hub, cfg.CORSOrigins)
	events.RegisterRoutes(apiV1, auth.RequireRole(auth.RoleReader))
	docs.Add(events.Operations()...)

	admin := auth.RequireRole(auth.RoleAdmin)
	if deps.scheduler != nil {
		jobs := scheduling.NewHandler(deps.scheduler)
		jobs.RegisterRoutes(apiV1, admin)
		docs.Add(jobs.Operations()...)
		docs.AddSchemas(scheduling.Schemas())
	}
	if deps.webhooks != nil {
		deliveries := webhook.NewHandler(deps.webhooks)
		deliveries.RegisterRoutes(apiV1, admin)
		docs.Add(deliveries.Operations()...)
		docs.AddSchemas(webhook.Schemas())
	}

	docs.RegisterRoutes(apiV1)
	return e
}

// newMetrics exposes request metrics plus gauges over the served corpus.
func newMetrics(svc *records.Service, hub *websocket.Hub) *telemetry.Provider {
	p := telemetry.NewProvider("labtrend")
	p.RegisterGauge("corpus_series", "Distinct record names being served.", func() float64 {
		return float64(svc.Status().Names)
	})
	p.RegisterGauge("corpus_entries", "Entries across every served series.", func() float64 {
		return float64(svc.Status().Entries)
	})
	p.RegisterGauge("load_failed_files", "Files that failed to parse in the last load.", func() float64 {
		return float64(svc.Status().Failed)
	})
	p.RegisterGauge("query_cache_hits", "Query resolutions served from cache.", func() float64 {
		hits, _ := svc.QueryCacheStats()
		return float64(hits)
	})
	p.RegisterGauge("query_cache_misses", "Query resolutions computed by the matcher.", func() float64 {
		_, misses := svc.QueryCacheStats()
		return float64(misses)
	})
	p.RegisterGauge("event_clients", "Connected change feed clients.", func() float64 {
		return float64(hub.ClientCount())
	})
	return p
}
