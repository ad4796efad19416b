package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/kasirku/kasir/internal/app"
	"github.com/kasirku/kasir/internal/expiry"
	"github.com/kasirku/kasir/internal/inventory"
	"github.com/kasirku/kasir/internal/platform/cache"
	"github.com/kasirku/kasir/internal/platform/db"
	"github.com/kasirku/kasir/internal/sales"
	"github.com/kasirku/kasir/internal/shared"
	"github.com/kasirku/kasir/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("load timezone", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	salesService := sales.NewService(sales.NewRepository(pool), sales.NewCache(redisClient, cfg.ReportCacheTTL), loc, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), nil, shared.NewAuditLogger(pool), salesService, inventory.ServiceConfig{
		Location: loc,
		Logger:   logger,
	})
	// Only RunOnce is used here; asynq's scheduler owns the timetable.
	runner, err := expiry.NewScheduler(inventoryService, expiry.Config{Spec: cfg.ExpirySweepSpec, Location: loc, Logger: logger})
	if err != nil {
		logger.Error("init expiry runner", slog.Any("error", err))
		os.Exit(1)
	}
	sweepJob := jobs.NewExpirySweepJob(runner)

	cronTask, err := jobs.NewExpirySweepTask("cron")
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts.AsynqOpts(),
		Logger:    logger,
		Location:  loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExpirySweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpirySweepSpec, Task: cronTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	client := jobs.NewClient(redisOpts.AsynqOpts())
	defer client.Close()
	enqueueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if _, err := client.EnqueueExpirySweep(enqueueCtx, "startup"); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		logger.Warn("enqueue startup sweep", slog.Any("error", err))
	}
	cancel()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
