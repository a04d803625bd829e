package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/jobs"
	"github.com/storefront/backend/internal/application/reconcile"
	"github.com/storefront/backend/internal/application/webhook"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/config"
	erpclient "github.com/storefront/backend/internal/infrastructure/erp"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting storefront sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("sync_mode", cfg.Sync.Mode),
	)

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories
	productRepo := persistence.NewGormProductRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	runRepo := persistence.NewGormRunRepository(db.DB)
	jobRepo := persistence.NewGormJobRepository(db.DB)

	// Idempotency store: redis when reachable, in-memory otherwise. The
	// store is advisory; the idempotency key sent with every push is the
	// authoritative dedup token.
	var idemStore shared.IdempotencyStore
	redisStore, err := cache.NewRedisIdempotencyStore(cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, using in-memory idempotency store", zap.Error(err))
		idemStore = cache.NewInMemoryIdempotencyStore()
	} else {
		idemStore = redisStore
		log.Info("Redis idempotency store connected")
	}
	defer func() {
		if err := idemStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// ERP gateway, tallying outbound calls for the status surface
	apiStats := webhook.NewCallStats(shared.SystemClock)
	gateway := erpclient.NewClient(cfg.ERP, log).WithCallRecorder(apiStats)
	{
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ERP.RequestTimeout)
		if err := gateway.TestConnection(ctx); err != nil {
			log.Warn("ERP connection check failed, continuing startup", zap.Error(err))
		} else {
			log.Info("ERP connection verified")
		}
		cancel()
	}

	// Application services
	reconciler := reconcile.NewReconciler(gateway, productRepo, customerRepo, runRepo,
		reconcile.Config{
			PageSize:             cfg.ERP.PageSize,
			RunTimeout:           cfg.Sync.RunTimeout,
			RateLimitRetries:     cfg.Sync.RateLimitRetries,
			RateLimitBackoff:     cfg.Sync.RateLimitBackoff,
			ContactEmailFallback: cfg.Sync.ContactEmailFallback,
		}, log)

	jobService := jobs.NewService(jobRepo, customerRepo, orderRepo, gateway,
		idemStore, shared.DefaultIdempotencyConfig(),
		jobs.Config{
			BatchSize:          cfg.Jobs.BatchSize,
			AttemptTimeout:     cfg.Jobs.AttemptTimeout,
			CompletedRetention: cfg.Jobs.CompletedRetention,
		}, log)

	eventLog := webhook.NewEventLog(cfg.Webhook.EventLogCapacity)
	webhookStats := webhook.NewCallStats(shared.SystemClock)
	ingestor := webhook.NewIngestor(reconciler, runRepo, eventLog, webhookStats,
		cfg.Webhook.MaxConcurrent, log)

	orchestrator := scheduler.NewOrchestrator(reconciler, jobService, runRepo,
		cfg.Sync, cfg.Jobs, log)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if err := orchestrator.Start(rootCtx); err != nil {
		log.Fatal("Failed to start orchestrator", zap.Error(err))
	}

	// HTTP surface
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger(log))

	statusHandler := handler.NewStatusHandler(orchestrator, jobService, webhookStats, apiStats, eventLog, db)
	engine.GET("/health", statusHandler.Health)

	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithAuth(middleware.JWTAuth(cfg.JWT)),
	)
	r.Register(handler.NewWebhookHandler(ingestor, cfg.ERP.WebhookSecret, log))
	r.RegisterProtected(handler.NewSyncHandler(reconciler, runRepo, log))
	r.RegisterProtected(handler.NewJobsHandler(jobService, log))
	r.RegisterProtected(statusHandler)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := orchestrator.Stop(ctx); err != nil {
		log.Error("Orchestrator forced to shutdown", zap.Error(err))
	}
	ingestor.Wait()

	log.Info("Server exited gracefully")
}
