package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/enduro-dash/enduro-dash/internal/app"
	"github.com/enduro-dash/enduro-dash/internal/dashboard"
	"github.com/enduro-dash/enduro-dash/internal/invalidate"
	"github.com/enduro-dash/enduro-dash/internal/observability"
	"github.com/enduro-dash/enduro-dash/internal/pipeline"
	"github.com/enduro-dash/enduro-dash/internal/platform/redisx"
	"github.com/enduro-dash/enduro-dash/internal/push"
	"github.com/enduro-dash/enduro-dash/internal/search"
	"github.com/enduro-dash/enduro-dash/internal/transport"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("enduro-dash", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	client := transport.NewClient(cfg.EnduroAPIURL, cfg.EnduroHTTPTimeout)
	resolver := pipeline.NewResolver(client, logger.With(slog.String("component", "pipeline")), metrics.Engine())

	engine, err := search.NewEngine(search.Config{
		Transport:      client,
		Resolver:       resolver,
		Logger:         logger.With(slog.String("component", "search")),
		Metrics:        metrics.Engine(),
		DebounceWindow: cfg.SearchDebounce,
		BaseContext:    ctx,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	var redisClient *redis.Client
	if cfg.PushSource == app.PushRedis || cfg.RelayEnabled() {
		redisClient, err = redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	if err := engine.Search(ctx); err != nil {
		logger.Warn("initial search", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: dashboard.NewHandler(logger, engine, resolver),
		Metrics:          metrics,
	})
	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	messages, err := subscribe(gctx, cfg, redisClient, logger)
	if err != nil {
		// The dashboard stays usable without live updates.
		logger.Warn("push channel unavailable", slog.Any("error", err))
	}
	if messages != nil {
		listener := invalidate.NewListener(engine, logger.With(slog.String("component", "invalidate")), metrics.Engine())
		g.Go(func() error {
			if err := listener.Run(gctx, messages); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

func subscribe(ctx context.Context, cfg *app.Config, redisClient *redis.Client, logger *slog.Logger) (<-chan []byte, error) {
	switch cfg.PushSource {
	case app.PushRedis:
		return push.NewRedisSource(redisClient, cfg.RedisChannel, logger).Subscribe(ctx)
	case app.PushWebSocket:
		monitorURL := cfg.EnduroMonitorURL
		if monitorURL == "" {
			derived, err := push.MonitorURL(cfg.EnduroAPIURL)
			if err != nil {
				return nil, err
			}
			monitorURL = derived
		}
		messages, err := push.NewWebSocketSource(monitorURL, logger).Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		if cfg.RelayEnabled() {
			relay := push.NewRedisSource(redisClient, cfg.RedisChannel, logger)
			return push.Relay(ctx, messages, relay, logger), nil
		}
		return messages, nil
	}
	return nil, nil
}
