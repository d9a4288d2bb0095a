// Command server starts the LawBot HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/lawbot/internal/adapter/ai/dispatch"
	"github.com/fairyhunter13/lawbot/internal/adapter/cache"
	httpserver "github.com/fairyhunter13/lawbot/internal/adapter/httpserver"
	"github.com/fairyhunter13/lawbot/internal/adapter/observability"
	"github.com/fairyhunter13/lawbot/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/lawbot/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/lawbot/internal/app"
	"github.com/fairyhunter13/lawbot/internal/config"
	"github.com/fairyhunter13/lawbot/internal/domain"
	"github.com/fairyhunter13/lawbot/internal/service/ratelimiter"
	"github.com/fairyhunter13/lawbot/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infra: DB pool
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	if err := postgres.WaitReady(ctx, pool, cfg.DBConnectMaxElapsed); err != nil {
		return fmt.Errorf("db not ready: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("db schema: %w", err)
	}
	msgRepo := postgres.NewMessageRepo(pool, cfg.ContentMaxLen)

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(msgRepo, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	// Optional Redis: running stats and the shared rate limit budget
	var (
		rdb     *redis.Client
		stats   domain.StatsRecorder = cache.NopStats{}
		limiter ratelimiter.Limiter
	)
	if cfg.RedisEnabled() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		stats = cache.NewRedisStats(rdb, cfg.StatsTTL)
		limiter = ratelimiter.NewRedisLuaLimiter(rdb, ratelimiter.NewBucketConfigPerHour(cfg.RateLimitPerHour))
		slog.Info("redis enabled for stats and rate limiting")
	}

	// Error event pipeline
	sinks := []observability.ErrorSink{observability.LogSink(logger), observability.MetricsSink()}
	if cfg.KafkaEnabled() {
		ks, err := redpanda.NewErrorSink(ctx, cfg.KafkaBrokers, cfg.ErrorTopic)
		if err != nil {
			slog.Error("kafka error sink disabled", slog.Any("error", err))
		} else {
			defer ks.Close()
			sinks = append(sinks, ks)
		}
	}
	events := observability.NewErrorEvents(cfg.ErrorEventBuffer, sinks...)

	dispatcher := dispatch.New(cfg, dispatch.WithNotifier(events))

	// Usecases
	chatSvc := usecase.NewChatService(msgRepo, dispatcher, stats, domain.Credential(cfg.OpenAIAPIKey), cfg.MessageMaxLen)
	msgSvc := usecase.NewMessageService(msgRepo)
	reportSvc := usecase.NewReportService(msgRepo, msgRepo, stats)

	var redisClient app.RedisClient
	if rdb != nil {
		redisClient = app.WrapRedis(rdb)
	}
	dbCheck, redisCheck := app.BuildReadinessChecks(pool, redisClient)

	srv, err := httpserver.NewServer(cfg, chatSvc, msgSvc, reportSvc, dbCheck, redisCheck)
	if err != nil {
		return err
	}
	handler := app.BuildRouter(cfg, srv, app.RouterDeps{Limiter: limiter, Stats: stats})
	srvHTTP := app.NewHTTPServer(fmt.Sprintf(":%d", cfg.Port), handler, cfg)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("credential", domain.Credential(cfg.OpenAIAPIKey).String()))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
	if err := events.Close(shutdownCtx); err != nil {
		slog.Warn("error events not fully drained", slog.Any("error", err))
	}
	return nil
}
