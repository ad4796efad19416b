package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kasirku/kasir/cmd/kasir/cli"
	"github.com/kasirku/kasir/internal/app"
	"github.com/kasirku/kasir/internal/auth"
	"github.com/kasirku/kasir/internal/events"
	"github.com/kasirku/kasir/internal/expiry"
	"github.com/kasirku/kasir/internal/inventory"
	jobmetrics "github.com/kasirku/kasir/internal/jobs"
	"github.com/kasirku/kasir/internal/observability"
	"github.com/kasirku/kasir/internal/orders"
	"github.com/kasirku/kasir/internal/platform/cache"
	"github.com/kasirku/kasir/internal/platform/db"
	"github.com/kasirku/kasir/internal/rbac"
	"github.com/kasirku/kasir/internal/sales"
	"github.com/kasirku/kasir/internal/shared"
	"github.com/kasirku/kasir/internal/users"
	"github.com/kasirku/kasir/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		slog.Default().Error("kasir stopped", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// rootCommand serves the API when called bare. Subcommands load only the
// settings they touch.
func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kasir",
		Short:         "point of sale API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg, app.NewLogger(cfg))
		},
	}
	root.AddCommand(
		cli.NewJobsCommand(openJobsCLI),
		cli.NewMigrateCommand(openMigrator),
	)
	return root
}

func openJobsCLI() (*cli.JobsCLI, error) {
	rc, err := app.LoadRedisConfig()
	if err != nil {
		return nil, fmt.Errorf("load redis config: %w", err)
	}
	return cli.NewJobsCLI(cache.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB}), nil
}

func openMigrator() (cli.Migrator, error) {
	dc, err := app.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	m, err := db.NewMigrator(dc.PGDSN, dc.MigrationsDir)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		// Caches, idempotency and revocation degrade to pass-through without Redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(dbpool)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	salesService := sales.NewService(sales.NewRepository(dbpool), sales.NewCache(redisClient, cfg.ReportCacheTTL), loc, logger.With(slog.String("component", "sales")))

	producer := events.NewProducer(events.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaOrderTopic,
		Service: "kasir",
		Logger:  logger.With(slog.String("component", "events")),
	})
	producer.Start(context.WithoutCancel(ctx))
	defer func() {
		producer.Close()
		producer.WaitClosed()
	}()

	usersService := users.NewService(users.NewRepository(dbpool), auditLogger, logger.With(slog.String("component", "users")))

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return err
	}
	revocations := auth.NewRevocationStore(redisClient)
	authMiddleware := auth.NewMiddleware(tokens, revocations, logger)
	authService := auth.NewService(usersService, tokens, revocations, logger.With(slog.String("component", "auth")))

	imageDir := filepath.Join(cfg.UploadDir, "products")
	images, err := inventory.NewImageStore(imageDir, cfg.UploadMaxBytes)
	if err != nil {
		return err
	}
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), images, auditLogger, salesService, inventory.ServiceConfig{
		Location: loc,
		Logger:   logger.With(slog.String("component", "inventory")),
	})

	orderConfig := orders.ServiceConfig{
		Audit:       auditLogger,
		Invalidator: salesService,
		Metrics:     metrics,
		Logger:      logger.With(slog.String("component", "orders")),
		Location:    loc,
	}
	if producer != nil {
		orderConfig.Events = producer
	}
	ordersService := orders.NewService(orders.NewRepository(dbpool), orderConfig)

	var sweeps *expiry.Scheduler
	if cfg.ExpirySweepEnabled {
		sweeps, err = expiry.NewScheduler(inventoryService, expiry.Config{
			Spec:       cfg.ExpirySweepSpec,
			Location:   loc,
			Logger:     logger,
			Metrics:    jobMetrics,
			RunOnStart: true,
		})
		if err != nil {
			return err
		}
		if err := sweeps.Start(ctx); err != nil {
			return err
		}
		logger.Info("expiry sweep scheduled", slog.String("spec", cfg.ExpirySweepSpec), slog.Time("next", sweeps.Next()))
	}

	var jobHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(redisOpts.AsynqOpts())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		client := jobs.NewClient(redisOpts.AsynqOpts())
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, client, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		RBACMiddleware:   rbacMiddleware,
		AuthMiddleware:   authMiddleware,
		AuthHandler:      auth.NewHandler(logger, authService, authMiddleware, cfg.AppLoginRateLimit),
		UsersHandler:     users.NewHandler(logger, usersService, rbacMiddleware),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, rbacMiddleware, cfg.UploadMaxBytes),
		OrdersHandler:    orders.NewHandler(logger, ordersService, idempotency(redisClient, cfg.IdempotencyTTL), rbacMiddleware),
		SalesHandler:     sales.NewHandler(logger, salesService, rbacMiddleware),
		JobHandler:       jobHandler,
		ImageDir:         imageDir,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("http server: %w", err)
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	if sweeps != nil {
		if err := sweeps.Stop(shutdownCtx); err != nil {
			logger.Warn("stop expiry scheduler", slog.Any("error", err))
		}
	}
	return runErr
}

func idempotency(client *redis.Client, ttl time.Duration) *shared.IdempotencyStore {
	if client == nil {
		return nil
	}
	return shared.NewIdempotencyStore(client, ttl)
}
