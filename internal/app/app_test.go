package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow/server/internal/module/confirmation"
	"github.com/payflow/server/internal/module/payment"
	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/payflow/server/internal/module/payment/entity"
	"github.com/payflow/server/internal/shared/config"
	"github.com/payflow/server/internal/shared/logger"
	"github.com/payflow/server/internal/shared/metrics"
	"github.com/payflow/server/internal/shared/middleware"
)

func newTestApp() *App {
	cfg := &config.Config{
		Log:  config.LogConfig{Level: "info"},
		CORS: config.CORSConfig{AllowOrigins: []string{"*"}},
	}
	a := &App{deps: &Dependencies{
		Config:  cfg,
		Logger:  logger.New(&logger.Config{Output: &bytes.Buffer{}}),
		Metrics: metrics.New("payflow_test", prometheus.NewRegistry()),
	}}
	a.router = a.setupRouter()
	return a
}

func TestRouter_Health(t *testing.T) {
	a := newTestApp()

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_Metrics(t *testing.T) {
	a := newTestApp()

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_UnknownRoute(t *testing.T) {
	a := newTestApp()

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// lockedRedis reports every idempotency lock as already held.
type lockedRedis struct {
	goredis.UniversalClient
}

func (lockedRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	return goredis.NewStringResult("", goredis.Nil)
}

func (lockedRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd {
	return goredis.NewBoolResult(false, nil)
}

// eventRepository records webhook events and knows no payments.
type eventRepository struct {
	payment.Repository

	mu     sync.Mutex
	events []*entity.WebhookEventEntity
}

func (r *eventRepository) TransitionStatus(context.Context, string, domain.Status) (bool, error) {
	return false, payment.ErrPaymentNotFound
}

func (r *eventRepository) RecordWebhookEvent(_ context.Context, event *entity.WebhookEventEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestRoutes_WebhookBypassesIdempotencyLock(t *testing.T) {
	a := newTestApp()
	repo := &eventRepository{}
	a.deps.Redis = lockedRedis{}
	a.deps.Config.Server.IdempotencyTTL = time.Minute
	a.deps.WebhookHandler = payment.NewWebhookHandler(payment.NewReconciler(repo, nil, nil, nil), "", nil)
	a.deps.PaymentHandler = payment.NewHandler(nil)
	a.deps.ConfirmationHandler = confirmation.NewHandler(nil)
	a.registerRoutes()

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.IdempotencyKeyHeader, "key-1")
		w := httptest.NewRecorder()
		a.Router().ServeHTTP(w, req)
		return w
	}

	t.Run("webhook acknowledged", func(t *testing.T) {
		w := post("/v1/webhooks/mercadopago", `{"external_reference":"p1","status":"approved"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())
		require.Equal(t, 1, repo.count())
		assert.Equal(t, payment.ResultUnknownPayment, repo.events[0].Result)
	})

	t.Run("payment api still locked", func(t *testing.T) {
		w := post("/v1/payment", `{"amount":"10.00"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "REQUEST_IN_PROGRESS")
	})
}
