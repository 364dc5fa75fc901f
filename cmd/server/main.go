package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appsync "github.com/erp/vendorsync/internal/application/vendorsync"
	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/cache"
	"github.com/erp/vendorsync/internal/infrastructure/config"
	"github.com/erp/vendorsync/internal/infrastructure/event"
	"github.com/erp/vendorsync/internal/infrastructure/logger"
	"github.com/erp/vendorsync/internal/infrastructure/persistence"
	"github.com/erp/vendorsync/internal/infrastructure/queue"
	"github.com/erp/vendorsync/internal/infrastructure/scheduler"
	"github.com/erp/vendorsync/internal/infrastructure/storage"
	"github.com/erp/vendorsync/internal/infrastructure/telemetry"
	"github.com/erp/vendorsync/internal/infrastructure/vendoradapter"
	"github.com/erp/vendorsync/internal/interfaces/http/handler"
	"github.com/erp/vendorsync/internal/interfaces/http/middleware"
	"github.com/erp/vendorsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	shutdownTimeout        = 30 * time.Second
	vendorIdleConnsPerHost = 8
)

// idempotencyStore is a store the process owns and must close
type idempotencyStore interface {
	shared.IdempotencyStore
	Close() error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.FromAppConfig(cfg.App.Env, cfg.Log))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(cfg, log); err != nil {
		log.Fatal("Vendor sync engine stopped with error", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	log.Info("Starting vendor sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("queue_backend", cfg.Queue.Backend),
	)

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, &cfg.Telemetry, log)
	if err != nil {
		return err
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, &cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider.Meter(telemetry.TracerName))
	if err != nil {
		return err
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, &cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = loggerProvider.Shutdown(context.Background())
	}()
	if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		log = loggerProvider.Bridge(log, level)
	}

	// Database with a zap-backed GORM logger and query tracing
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.NewDBTracingPlugin(&cfg.Telemetry, &cfg.Database, log).Register(db.DB); err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		return err
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Redis is only dialled when a component is configured to use it
	var redisClient *redis.Client
	if cfg.Queue.Backend == "redis" || cfg.Webhook.IdempotencyBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			_ = redisClient.Close()
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr(), err)
		}
		log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))
	}

	jobQueue := buildQueue(cfg, redisClient)
	idempotency := buildIdempotencyStore(cfg, redisClient)
	defer func() {
		_ = idempotency.Close()
	}()

	fileStore, err := buildFileStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	resolver, err := buildResolver(cfg)
	if err != nil {
		return err
	}

	// Repositories
	vendorRepo := persistence.NewGormVendorRepository(db.DB)
	recordStore := persistence.NewGormRecordStore(db.DB)
	historyRepo := persistence.NewGormJobHistoryRepository(db.DB)
	reviewRepo := persistence.NewGormConflictReviewRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)

	// Event bus with the audit trail subscribed. Redelivered events are
	// recorded once.
	eventBus := event.NewInMemoryEventBus(log)
	auditRecorder := event.NewAuditRecorder(auditRepo, event.NewSyncEventSerializer())
	eventBus.Subscribe(event.NewIdempotentHandler("audit_recorder", auditRecorder, idempotency, log))
	if err := eventBus.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = eventBus.Stop(context.Background())
	}()

	// one pooled transport; request timeouts come from each vendor's config
	vendorTransport := http.DefaultTransport.(*http.Transport).Clone()
	vendorTransport.MaxIdleConnsPerHost = vendorIdleConnsPerHost
	adapters := vendoradapter.NewDefaultFactory(fileStore, vendorTransport, log)

	syncService := appsync.NewSyncService(jobQueue, vendorRepo, adapters, recordStore, resolver, eventBus, log,
		appsync.WithRetryPolicy(vendorsync.RetryPolicy{BaseDelay: cfg.Retry.BaseDelay, MaxDelay: cfg.Retry.MaxDelay}),
		appsync.WithMaxRetries(cfg.Retry.MaxRetries),
		appsync.WithReviewRepository(reviewRepo),
		appsync.WithJobHistory(historyRepo),
		appsync.WithIdempotencyStore(idempotency, cfg.Webhook.IdempotencyTTL),
		appsync.WithMetrics(syncMetrics),
		appsync.WithPollInterval(cfg.Queue.PollInterval),
		appsync.WithBatchSize(cfg.Queue.BatchSize),
	)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	if err := syncService.Start(runCtx); err != nil {
		return err
	}

	schedules, err := scheduler.SchedulesFromConfig(&cfg.Schedule, time.Local)
	if err != nil {
		return err
	}
	syncScheduler := scheduler.NewSyncScheduler(syncService.Scheduled(), vendorRepo, schedules, log)
	if len(schedules) > 0 {
		if err := syncScheduler.Start(runCtx); err != nil {
			return err
		}
		log.Info("Sync scheduler started", zap.Int("cadences", len(schedules)))
	}

	// HTTP ingress
	srv, err := buildServer(cfg, log, syncService, db, redisClient)
	if err != nil {
		return err
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if syncScheduler.IsRunning() {
		if err := syncScheduler.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping sync scheduler", zap.Error(err))
		}
	}
	if err := syncService.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping sync dispatchers", zap.Error(err))
	}
	return nil
}

func buildQueue(cfg *config.Config, client *redis.Client) vendorsync.JobQueue {
	if cfg.Queue.Backend == "redis" {
		return queue.NewRedisJobQueue(client, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
	}
	return queue.NewInMemoryJobQueue(queue.WithCapacity(cfg.Queue.Capacity))
}

func buildIdempotencyStore(cfg *config.Config, client *redis.Client) idempotencyStore {
	if cfg.Webhook.IdempotencyBackend == "redis" {
		return cache.NewRedisIdempotencyStore(client, cfg.Queue.KeyPrefix+":idempotency")
	}
	return cache.NewInMemoryIdempotencyStore()
}

func buildFileStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.FileStore, error) {
	local := storage.NewLocalFileStore(cfg.Storage.LocalRoot)
	if !cfg.Storage.Enabled {
		return storage.NewRoutedFileStore(local, nil), nil
	}
	object, err := storage.NewS3FileStore(ctx, &cfg.Storage, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return storage.NewRoutedFileStore(local, object), nil
}

func buildResolver(cfg *config.Config) (*vendorsync.ConflictResolver, error) {
	order, err := vendorsync.ParseSourcePriority(cfg.Conflict.SourcePriority)
	if err != nil {
		return nil, err
	}
	return vendorsync.NewConflictResolver(vendorsync.StrategyName(cfg.Conflict.Strategy),
		vendorsync.WithSourcePriority(order...))
}

func buildServer(cfg *config.Config, log *zap.Logger, ingestor handler.WebhookIngestor, db *persistence.Database, client *redis.Client) (*http.Server, error) {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	engine.Use(
		logger.RequestID(),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.TracingAttributeInjector(),
		middleware.SpanErrorMarker(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
	)

	checks := []handler.HealthOption{handler.WithCheck("database", handler.PingCheck(db))}
	if client != nil {
		checks = append(checks, handler.WithCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	router.NewRouter(engine).
		Register(handler.NewHealthHandler(checks...)).
		Register(handler.NewWebhookHandler(ingestor, cfg.HTTP.MaxBodySize)).
		Setup()

	return &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}, nil
}
