package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeboard/internal/api/handlers"
	"codeboard/internal/config"
	"codeboard/internal/jobs"
	applog "codeboard/internal/logger"
	"codeboard/internal/provider"
	"codeboard/internal/reconcile"
	"codeboard/internal/repository"
	"codeboard/internal/scheduler"
	"codeboard/internal/service"
	"codeboard/internal/websocket"
	"codeboard/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		applog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applog.Init(cfg.Server.Env, cfg.Log.Level)

	db, err := initPostgres(cfg)
	if err != nil {
		applog.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	applog.Info().Msg("✓ Connected to PostgreSQL")

	redisClient, err := initRedis(cfg)
	if err != nil {
		applog.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	applog.Info().Msg("✓ Connected to Redis")

	postgresRepo := repository.NewPostgresRepository(db)
	redisRepo := repository.NewRedisRepository(redisClient, cfg.Cache.SnapshotTTL)

	if err := postgresRepo.AutoMigrate(); err != nil {
		applog.Fatal().Err(err).Msg("Failed to run migrations")
	}
	applog.Info().Msg("✓ Database migrations completed")

	// Projection of persisted snapshots into Redis
	workerPool := worker.NewWorkerPool(cfg.Scheduler.WorkerCount, cfg.Scheduler.QueueSize, redisRepo)
	workerPool.Start()

	// Provider pipeline: adapter -> reconciler -> builder
	client := provider.NewClient(provider.ClientConfig{
		URL:               cfg.Provider.GraphQLURL,
		Timeout:           cfg.Provider.Timeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		Burst:             cfg.Provider.Burst,
		MaxRetries:        cfg.Provider.MaxRetries,
	})
	pipeline := scheduler.NewProviderPipeline(
		provider.NewAdapter(client),
		reconcile.New(reconcile.DefaultSources(client, cfg.Provider.SupplementaryLimit)...),
	)
	refresher := scheduler.New(postgresRepo, postgresRepo, pipeline,
		scheduler.WithProjector(workerPool),
		scheduler.WithFetchTimeout(cfg.Scheduler.FetchTimeout),
	)

	leaderboardService := service.NewLeaderboardService(postgresRepo, redisRepo, refresher, cfg.Scheduler.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := leaderboardService.SyncRedisFromPostgres(ctx); err != nil {
		applog.Warn().Err(err).Msg("⚠️ Initial Redis sync failed")
	}

	hub := websocket.NewHub(redisRepo, websocket.DefaultHeartbeat)
	go hub.Run(ctx)

	refreshManager := jobs.NewRefreshManager(refresher, postgresRepo, jobs.RefresherConfig{
		Interval:     cfg.Scheduler.Interval,
		BatchSize:    cfg.Scheduler.BatchSize,
		RunOnStartup: cfg.Scheduler.RunOnStartup,
	})
	if err := refreshManager.Start(ctx); err != nil {
		applog.Warn().Err(err).Msg("⚠️ Failed to start refresh manager")
	}

	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, hub, cfg.Scheduler.AdminBatchSize, map[string]handlers.MetricsFunc{
		"worker_pool": workerPool.GetMetrics,
		"refresher":   refreshManager.GetMetrics,
	})

	app := fiber.New(fiber.Config{
		AppName:      "Codeboard",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	leaderboardHandler.Register(app, handlers.RefreshLimit{})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Codeboard API",
			"version": "1.0.0",
			"endpoints": []string{
				"GET /api/v1/leaderboard",
				"GET /api/v1/users/:username",
				"GET /api/v1/rank/:username",
				"GET /api/v1/cron-update",
				"POST /api/v1/refresh",
				"GET /api/v1/health",
				"WS /ws (WebSocket)",
			},
			"websocket_clients": hub.GetClientCount(),
		})
	})

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		applog.Info().Msg("🛑 Shutting down server...")

		// Stop scheduling new batches first; an in-flight batch is allowed to finish
		refreshManager.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			applog.Error().Err(err).Msg("Server forced to shutdown")
		}

		cancel()

		// Flush pending projections before closing Redis
		if err := workerPool.Shutdown(30 * time.Second); err != nil {
			applog.Error().Err(err).Msg("Worker pool shutdown error")
		}

		if err := postgresRepo.Close(); err != nil {
			applog.Error().Err(err).Msg("Error closing PostgreSQL")
		}
		if err := redisRepo.Close(); err != nil {
			applog.Error().Err(err).Msg("Error closing Redis")
		}

		applog.Info().Msg("✓ Server shutdown complete")
	}()

	applog.Info().Int("port", cfg.Server.Port).Msg("🚀 Server starting")
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		applog.Fatal().Err(err).Msg("Failed to start server")
	}
	<-shutdownDone
}

// initPostgres initializes PostgreSQL connection with connection pooling
func initPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Refreshes are sequential; the pool only needs headroom for API reads
	sqlDB.SetMaxOpenConns(15)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// initRedis initializes Redis connection with connection pooling
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   "Request failed",
		"message": err.Error(),
	})
}
