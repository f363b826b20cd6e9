package app

import (
	"fmt"
	"net/http"

	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/payflow/server/internal/infra/httpclient"
	"github.com/payflow/server/internal/module/confirmation"
	"github.com/payflow/server/internal/module/payment"
	"github.com/payflow/server/internal/module/payment/gateway"
	"github.com/payflow/server/internal/shared/cache"
	"github.com/payflow/server/internal/shared/config"
	"github.com/payflow/server/internal/shared/database"
	"github.com/payflow/server/internal/shared/logger"
	"github.com/payflow/server/internal/shared/metrics"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideDatabase,
	ProvideRedisClient,
	ProvideHTTPClient,
	ProvideLogger,
	ProvideZapLogger,
	ProvideMetrics,
)

// ProvideDatabase creates a database connection and migrates the module tables.
func ProvideDatabase(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		models := append(payment.Models(), confirmation.Models()...)
		if err := database.Migrate(db, models...); err != nil {
			_ = database.Close(db)
			return nil, nil, err
		}
	}
	return db, func() { _ = database.Close(db) }, nil
}

// ProvideRedisClient creates a Redis client. Redis is optional.
func ProvideRedisClient(cfg *config.Config, zapLog *zap.Logger) goredis.UniversalClient {
	if cfg.Redis.Address == "" {
		return nil
	}
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		zapLog.Warn("Redis connection failed, continuing without signal bridge and idempotency", zap.Error(err))
		return nil
	}
	return client
}

// ProvideLogger creates a logger instance.
func ProvideLogger(cfg *config.Config) *logger.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideZapLogger creates a zap logger instance.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideHTTPClient creates a shared HTTP client with connection pooling.
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return httpclient.New(cfg.HTTPClient)
}

// ProvideMetrics creates a metrics instance.
func ProvideMetrics() *metrics.Metrics {
	return metrics.New("payflow", nil)
}

// ===== Payment Providers =====

// PaymentSet provides the payment record store, service and handlers.
var PaymentSet = wire.NewSet(
	payment.NewRepository,
	ProvidePaymentService,
	payment.NewHandler,
	payment.NewReconciler,
	ProvideWebhookHandler,
	ProvideGateway,
	wire.Bind(new(payment.ConfirmationStarter), new(*confirmation.Manager)),
	wire.Bind(new(payment.SignalPublisher), new(*confirmation.SignalRouter)),
)

// ProvidePaymentService creates the payment service.
func ProvidePaymentService(repo payment.Repository, starter payment.ConfirmationStarter, cfg *config.Config, zapLog *zap.Logger) *payment.Service {
	return payment.NewService(repo, starter, cfg.Payment.Currency, zapLog)
}

// ProvideWebhookHandler creates the gateway webhook handler.
func ProvideWebhookHandler(reconciler *payment.Reconciler, cfg *config.Config, zapLog *zap.Logger) *payment.WebhookHandler {
	return payment.NewWebhookHandler(reconciler, cfg.Gateway.WebhookSecret, zapLog)
}

// ProvideGateway creates the MercadoPago client.
func ProvideGateway(cfg *config.Config, httpClient *http.Client, zapLog *zap.Logger, m *metrics.Metrics) (gateway.Client, error) {
	client, err := gateway.NewMercadoPago(gateway.Config{
		BaseURL:          cfg.Gateway.BaseURL,
		AccessToken:      cfg.Gateway.AccessToken,
		NotificationURL:  cfg.Gateway.NotificationURL,
		Sandbox:          cfg.Gateway.Sandbox,
		Timeout:          cfg.Gateway.Timeout,
		RequestsPerSec:   cfg.Gateway.RequestsPerSec,
		Burst:            cfg.Gateway.Burst,
		FailureThreshold: cfg.Gateway.FailureThreshold,
		CircuitTimeout:   cfg.Gateway.CircuitTimeout,
	}, httpClient, zapLog, m)
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}
	return client, nil
}

// ===== Confirmation Providers =====

// ConfirmationSet provides the confirmation orchestrator and its collaborators.
var ConfirmationSet = wire.NewSet(
	confirmation.NewRunRepository,
	confirmation.NewNotificationLedger,
	ProvideSignalHub,
	ProvideSignalBridge,
	ProvideSignalRouter,
	ProvidePoller,
	ProvideDispatcher,
	ProvideActivityLog,
	ProvideOrchestrator,
	ProvideManager,
	confirmation.NewHandler,
)

// ProvideSignalHub creates the in-process signal hub.
func ProvideSignalHub(zapLog *zap.Logger) *confirmation.SignalHub {
	return confirmation.NewSignalHub(zapLog)
}

// ProvideSignalBridge creates the Redis pub/sub bridge, or nil without Redis.
func ProvideSignalBridge(redis goredis.UniversalClient, cfg *config.Config, hub *confirmation.SignalHub, zapLog *zap.Logger) *confirmation.RedisSignalBridge {
	client, ok := redis.(*goredis.Client)
	if !ok || client == nil {
		return nil
	}
	return confirmation.NewRedisSignalBridge(client, cfg.Redis.SignalChannel, hub, zapLog)
}

// ProvideSignalRouter creates the router that records and delivers signals.
func ProvideSignalRouter(
	runs confirmation.RunRepository,
	hub *confirmation.SignalHub,
	bridge *confirmation.RedisSignalBridge,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) *confirmation.SignalRouter {
	var broadcaster confirmation.SignalBroadcaster
	if bridge != nil {
		broadcaster = bridge
	}
	return confirmation.NewSignalRouter(runs, hub, broadcaster, m, zapLog)
}

// ProvidePoller creates the status poller. It reads the payment record store.
func ProvidePoller(repo payment.Repository, cfg *config.Config, m *metrics.Metrics, zapLog *zap.Logger) *confirmation.Poller {
	return confirmation.NewPoller(repo, confirmation.PollerConfig{
		Interval:    cfg.Confirmation.PollInterval,
		MaxAttempts: cfg.Confirmation.MaxPollAttempts,
	}, m, zapLog)
}

// ProvideDispatcher creates the notification dispatcher. RabbitMQ is used
// when configured, otherwise notifications are logged.
func ProvideDispatcher(cfg *config.Config, zapLog *zap.Logger) (confirmation.Dispatcher, func(), error) {
	if cfg.RabbitMQ.URL == "" {
		return confirmation.NewLogDispatcher(zapLog), func() {}, nil
	}
	dispatcher, err := confirmation.NewRabbitMQDispatcher(cfg.RabbitMQ.URL, cfg.RabbitMQ.NotificationQueue, zapLog)
	if err != nil {
		return nil, nil, fmt.Errorf("create notification dispatcher: %w", err)
	}
	return dispatcher, func() {
		if err := dispatcher.Close(); err != nil {
			zapLog.Warn("close notification dispatcher", zap.Error(err))
		}
	}, nil
}

// ProvideActivityLog creates the payment activity log.
func ProvideActivityLog(db *gorm.DB, cfg *config.Config, zapLog *zap.Logger) confirmation.ActivityLog {
	if !cfg.Confirmation.ActivityLogEnabled {
		return confirmation.NewLogActivityLog(zapLog)
	}
	return confirmation.NewActivityLog(db)
}

// ProvideOrchestrator creates the confirmation orchestrator.
func ProvideOrchestrator(
	cfg *config.Config,
	runs confirmation.RunRepository,
	payments payment.Repository,
	gw gateway.Client,
	hub *confirmation.SignalHub,
	poller *confirmation.Poller,
	ledger confirmation.NotificationLedger,
	dispatcher confirmation.Dispatcher,
	activities confirmation.ActivityLog,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) *confirmation.Orchestrator {
	c := cfg.Confirmation
	return confirmation.NewOrchestrator(confirmation.Deps{
		Runs:       runs,
		Payments:   payments,
		Gateway:    gw,
		Hub:        hub,
		Poller:     poller,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Activities: activities,
		Metrics:    m,
		Logger:     zapLog,
	}, confirmation.Config{
		PreferenceTimeout:   c.PreferenceTimeout,
		PreferenceAttempts:  c.PreferenceAttempts,
		PreferenceBackoff:   c.PreferenceBackoff,
		SignalTimeout:       c.SignalTimeout,
		PollTimeout:         c.PollTimeout,
		NotificationTimeout: c.NotificationTimeout,
		NotificationURL:     cfg.Gateway.NotificationURL,
	})
}

// ProvideManager creates the run manager.
func ProvideManager(
	cfg *config.Config,
	runs confirmation.RunRepository,
	orchestrator *confirmation.Orchestrator,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) *confirmation.Manager {
	return confirmation.NewManager(runs, orchestrator, confirmation.ManagerConfig{
		MaxConcurrent: cfg.Confirmation.MaxConcurrent,
		RetryAttempts: cfg.Confirmation.RunRetryAttempts,
		RetryBackoff:  cfg.Confirmation.RunRetryBackoff,
	}, m, zapLog)
}

// AppSet is the complete provider set.
var AppSet = wire.NewSet(
	InfraSet,
	PaymentSet,
	ConfirmationSet,
)
