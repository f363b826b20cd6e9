package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/payflow/server/internal/shared/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	preferencesPath     = "/checkout/preferences"
	opCreatePreference  = "create_preference"
	maxErrorBodyBytes   = 4 << 10
	defaultMPBaseURL    = "https://api.mercadopago.com"
	defaultMPTimeout    = 15 * time.Second
	defaultMPFailures   = 5
	defaultCircuitReset = 30 * time.Second
)

// Config configures the MercadoPago client. The access token is injected
// here and never read from process-wide state.
type Config struct {
	BaseURL          string
	AccessToken      string
	NotificationURL  string
	Sandbox          bool
	Timeout          time.Duration
	RequestsPerSec   float64
	Burst            int
	FailureThreshold uint32
	CircuitTimeout   time.Duration
}

// MercadoPago is a Client backed by the MercadoPago checkout API.
type MercadoPago struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Preference]
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ Client = (*MercadoPago)(nil)

// NewMercadoPago creates a MercadoPago client.
func NewMercadoPago(cfg Config, httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) (*MercadoPago, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("mercadopago: access token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMPBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMPTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultMPFailures
	}
	if cfg.CircuitTimeout <= 0 {
		cfg.CircuitTimeout = defaultCircuitReset
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[*Preference](gobreaker.Settings{
		Name:        "mercadopago",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.CircuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &MercadoPago{
		cfg:     cfg,
		http:    httpClient,
		breaker: breaker,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("mercadopago"),
		metrics: m,
	}, nil
}

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceBody struct {
	Items             []preferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url,omitempty"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreatePreference creates a checkout preference for a single item.
func (c *MercadoPago) CreatePreference(ctx context.Context, req *PreferenceRequest) (*Preference, error) {
	start := time.Now()
	pref, err := c.breaker.Execute(func() (*Preference, error) {
		return c.createPreference(ctx, req)
	})
	c.metrics.RecordGatewayCall(opCreatePreference, err, time.Since(start))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	return pref, nil
}

func (c *MercadoPago) createPreference(ctx context.Context, req *PreferenceRequest) (*Preference, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrGatewayUnavailable, err)
	}

	notificationURL := req.NotificationURL
	if notificationURL == "" {
		notificationURL = c.cfg.NotificationURL
	}
	body := preferenceBody{
		Items: []preferenceItem{{
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  req.UnitPrice.Round(2).InexactFloat64(),
			CurrencyID: req.Currency,
		}},
		ExternalReference: req.ExternalReference,
		NotificationURL:   notificationURL,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal preference: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+preferencesPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	httpReq.Header.Set("X-Idempotency-Key", req.ExternalReference)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Warn("preference request rejected",
			zap.String("payment_id", req.ExternalReference),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", msg))
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var out preferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}

	checkoutURL := out.InitPoint
	if (c.cfg.Sandbox && out.SandboxInitPoint != "") || checkoutURL == "" {
		checkoutURL = out.SandboxInitPoint
	}
	if out.ID == "" || checkoutURL == "" {
		return nil, fmt.Errorf("%w: incomplete preference response", ErrGatewayUnavailable)
	}

	return &Preference{ReferenceID: out.ID, CheckoutURL: checkoutURL}, nil
}
