package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/payflow/server/cmd/server/docs" // swagger docs
	"github.com/payflow/server/internal/module/confirmation"
	"github.com/payflow/server/internal/module/payment"
	"github.com/payflow/server/internal/shared/config"
	"github.com/payflow/server/internal/shared/logger"
	"github.com/payflow/server/internal/shared/metrics"
	"github.com/payflow/server/internal/shared/middleware"
)

// Dependencies holds all injected dependencies.
type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     goredis.UniversalClient
	Logger    *logger.Logger
	ZapLogger *zap.Logger
	Metrics   *metrics.Metrics

	// Confirmation
	SignalBridge *confirmation.RedisSignalBridge
	Manager      *confirmation.Manager

	// HTTP Handlers
	PaymentHandler      *payment.Handler
	WebhookHandler      *payment.WebhookHandler
	ConfirmationHandler *confirmation.Handler
}

// App represents the application.
type App struct {
	deps    *Dependencies
	router  *gin.Engine
	cleanup func()
}

// New creates a new application instance and starts its background workers.
func New(cfg *config.Config) (*App, error) {
	deps, cleanup, err := newDependencies(cfg)
	if err != nil {
		return nil, fmt.Errorf("init dependencies: %w", err)
	}

	app := &App{
		deps:    deps,
		cleanup: cleanup,
	}
	app.router = app.setupRouter()
	app.registerRoutes()

	if err := app.startModules(context.Background()); err != nil {
		app.Stop()
		return nil, fmt.Errorf("start modules: %w", err)
	}

	return app, nil
}

// newDependencies builds the dependency graph described by AppSet.
func newDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	zapLog, err := ProvideZapLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init zap logger: %w", err)
	}
	log := ProvideLogger(cfg)
	m := ProvideMetrics()

	db, closeDB, err := ProvideDatabase(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	redis := ProvideRedisClient(cfg, zapLog)

	gw, err := ProvideGateway(cfg, ProvideHTTPClient(cfg), zapLog, m)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	dispatcher, closeDispatcher, err := ProvideDispatcher(cfg, zapLog)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	payments := payment.NewRepository(db)
	runs := confirmation.NewRunRepository(db)
	hub := ProvideSignalHub(zapLog)
	bridge := ProvideSignalBridge(redis, cfg, hub, zapLog)
	router := ProvideSignalRouter(runs, hub, bridge, m, zapLog)

	orchestrator := ProvideOrchestrator(
		cfg,
		runs,
		payments,
		gw,
		hub,
		ProvidePoller(payments, cfg, m, zapLog),
		confirmation.NewNotificationLedger(db),
		dispatcher,
		ProvideActivityLog(db, cfg, zapLog),
		m,
		zapLog,
	)
	manager := ProvideManager(cfg, runs, orchestrator, m, zapLog)

	service := ProvidePaymentService(payments, manager, cfg, zapLog)
	reconciler := payment.NewReconciler(payments, router, m, zapLog)

	deps := &Dependencies{
		Config:              cfg,
		DB:                  db,
		Redis:               redis,
		Logger:              log,
		ZapLogger:           zapLog,
		Metrics:             m,
		SignalBridge:        bridge,
		Manager:             manager,
		PaymentHandler:      payment.NewHandler(service),
		WebhookHandler:      ProvideWebhookHandler(reconciler, cfg, zapLog),
		ConfirmationHandler: confirmation.NewHandler(manager),
	}

	cleanup := func() {
		closeDispatcher()
		if redis != nil {
			_ = redis.Close()
		}
		closeDB()
	}
	return deps, cleanup, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.deps.Config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.deps.Logger))
	r.Use(middleware.Metrics(a.deps.Metrics))
	r.Use(middleware.CORS(a.deps.Config.CORS.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	return r
}

// registerRoutes registers routes for all modules.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/v1")

	// Webhooks are acknowledged unconditionally and bypass idempotency locking.
	a.deps.WebhookHandler.RegisterRoutes(v1)

	api := v1.Group("")
	api.Use(middleware.Idempotency(a.deps.Redis, a.deps.Config.Server.IdempotencyTTL))
	a.deps.PaymentHandler.RegisterRoutes(api)
	a.deps.ConfirmationHandler.RegisterRoutes(api)
}

// startModules starts the signal bridge and resumes unfinished runs.
func (a *App) startModules(ctx context.Context) error {
	if a.deps.SignalBridge != nil {
		if err := a.deps.SignalBridge.Start(ctx); err != nil {
			return fmt.Errorf("start signal bridge: %w", err)
		}
	}
	if err := a.deps.Manager.Start(ctx); err != nil {
		return fmt.Errorf("start confirmation manager: %w", err)
	}
	return nil
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop stops the application and releases resources. In-flight runs are
// suspended at their last recorded phase and resume on the next start.
func (a *App) Stop() {
	a.deps.Manager.Stop()

	if a.deps.SignalBridge != nil {
		a.deps.SignalBridge.Stop()
	}

	if a.deps.ZapLogger != nil {
		_ = a.deps.ZapLogger.Sync()
	}

	if a.cleanup != nil {
		a.cleanup()
	}
}
