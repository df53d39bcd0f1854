package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/handlers"
	"sales-dashboard/internal/middleware"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/server"
	"sales-dashboard/internal/services"
)

const (
	seedLoadTimeout    = 30 * time.Second
	limiterIdleTimeout = 10 * time.Minute
)

// newAnalytics builds the analytics service and loads the seed dataset
// when one is configured.
func newAnalytics(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*services.Analytics, error) {
	analytics := services.NewAnalytics(
		services.WithLogger(logger),
		services.WithRecorder(metrics),
		services.WithCacheDir(cfg.Dataset.CacheDir),
		services.WithSessionLimit(cfg.Session.MaxSessions),
		services.WithSeedSessionLimit(cfg.Session.MaxSeedSessions),
	)
	metrics.TrackSessions(analytics.Sessions().Len)

	if cfg.Dataset.SeedFile == "" {
		logger.Info("no seed dataset configured, visitors start at the upload form")
		return analytics, nil
	}

	ctx, cancel := context.WithTimeout(ctx, seedLoadTimeout)
	defer cancel()

	start := time.Now()
	if err := analytics.LoadSeed(ctx, cfg.Dataset.SeedFile); err != nil {
		return nil, err
	}
	logger.Info("seed dataset loaded successfully",
		"file", cfg.Dataset.SeedFile,
		"records", analytics.Seed().Len(),
		"dropped", analytics.Seed().Dropped(),
		"duration", time.Since(start),
	)
	return analytics, nil
}

func newHandler(cfg *config.Config, logger *slog.Logger, analytics *services.Analytics, metrics *observability.Metrics, rateLimiter *middleware.RateLimiter) (http.Handler, error) {
	delimiter, err := services.ParseDelimiter(cfg.Upload.DefaultDelimiter)
	if err != nil {
		return nil, err
	}

	srv := server.NewServer(analytics, logger, handlers.Options{
		MaxUploadBytes:   cfg.Upload.MaxBytes,
		DefaultDelimiter: delimiter,
		TopN:             cfg.Dashboard.TopN,
	}, metrics.Handler())

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.Metrics(metrics),
	)

	return middlewareChain(srv), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	metrics := observability.NewMetrics()

	analytics, err := newAnalytics(context.Background(), cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to load seed dataset", "error", err)
		os.Exit(1)
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	handler, err := newHandler(cfg, logger, analytics, metrics, rateLimiter)
	if err != nil {
		logger.Error("failed to build handler", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.Go("session-janitor", func(ctx context.Context) {
		analytics.Sessions().RunJanitor(ctx, cfg.Session.SweepInterval, cfg.Session.TTL)
	})
	gracefulServer.Go("rate-limiter-cleanup", func(ctx context.Context) {
		ticker := time.NewTicker(limiterIdleTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rateLimiter.Cleanup(limiterIdleTimeout); n > 0 {
					logger.Debug("evicted idle rate limiters", "count", n)
				}
			}
		}
	})

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("shutting down analytics service", "sessions", analytics.Sessions().Len())
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
