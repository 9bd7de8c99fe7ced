package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/app"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/indent"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/observability"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/orders"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/cache"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/db"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/shared"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/workflow"
	"github.com/agrawalpuran/uds-refresh-sub018/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, derived-status cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	projector := workflow.NewProjector()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()
	statusCache := cache.NewStatusCache(redisClient, cfg.StatusCacheTTL)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, projector, auditLogger, statusCache, metrics, logger)

	indentRepo := indent.NewRepository(pool)
	indentService := indent.NewService(indentRepo, projector, auditLogger, idempotencyStore, metrics, logger)

	resyncJob := jobs.NewOrderResyncJob(ordersService, logger)
	sweepJob := jobs.NewIndentCloseSweepJob(indentService, pool, logger)

	sweepTask, err := jobs.NewIndentCloseSweepTask(jobs.IndentCloseSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeOrderStatusResync, Handler: resyncJob.Handle},
			{Type: jobs.TaskTypeIndentCloseSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
