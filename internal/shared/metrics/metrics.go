package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Confirmation metrics
	RunsTotal          *prometheus.CounterVec
	RunsActive         prometheus.Gauge
	OutcomesTotal      *prometheus.CounterVec
	SignalsTotal       *prometheus.CounterVec
	PollAttemptsTotal  *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec

	// Gateway metrics
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec

	// Webhook metrics
	WebhooksTotal *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg.
// A nil reg registers on the default Prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "payflow"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "confirmation",
				Name:      "runs_total",
				Help:      "Confirmation runs by lifecycle event",
			},
			[]string{"event"}, // started, resumed
		),
		RunsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "confirmation",
				Name:      "runs_active",
				Help:      "Confirmation runs not yet archived in this process",
			},
		),
		OutcomesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "confirmation",
				Name:      "outcomes_total",
				Help:      "Terminal confirmation outcomes",
			},
			[]string{"outcome", "resolved_by"},
		),
		SignalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "confirmation",
				Name:      "signals_total",
				Help:      "Confirmation signals by disposition",
			},
			[]string{"result"}, // accepted, discarded
		),
		PollAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "confirmation",
				Name:      "poll_attempts_total",
				Help:      "Status store reads performed by the poller",
			},
			[]string{"result"}, // pending, terminal, error
		),
		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "confirmation",
				Name:      "notifications_total",
				Help:      "Terminal notifications by type and result",
			},
			[]string{"type", "result"},
		),

		GatewayRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Payment gateway calls",
			},
			[]string{"operation", "status"},
		),
		GatewayRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Payment gateway call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"operation"},
		),

		WebhooksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "received_total",
				Help:      "Gateway webhooks by reconciliation result",
			},
			[]string{"result"},
		),
	}
}

// --- Convenience methods ---
//
// All recorders tolerate a nil receiver so components can run without metrics.

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRunStarted records a run entering the manager.
func (m *Metrics) RecordRunStarted(resumed bool) {
	if m == nil {
		return
	}
	event := "started"
	if resumed {
		event = "resumed"
	}
	m.RunsTotal.WithLabelValues(event).Inc()
	m.RunsActive.Inc()
}

// RecordRunFinished records a run leaving the manager.
func (m *Metrics) RecordRunFinished() {
	if m == nil {
		return
	}
	m.RunsActive.Dec()
}

// RecordOutcome records a terminal outcome.
func (m *Metrics) RecordOutcome(outcome, resolvedBy string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(outcome, resolvedBy).Inc()
}

// RecordSignal records whether a signal was accepted by a waiting run.
func (m *Metrics) RecordSignal(accepted bool) {
	if m == nil {
		return
	}
	result := "discarded"
	if accepted {
		result = "accepted"
	}
	m.SignalsTotal.WithLabelValues(result).Inc()
}

// RecordPollAttempt records one poller read.
func (m *Metrics) RecordPollAttempt(result string) {
	if m == nil {
		return
	}
	m.PollAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordNotification records a dispatch attempt.
func (m *Metrics) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, resultLabel(err)).Inc()
}

// RecordGatewayCall records a gateway call.
func (m *Metrics) RecordGatewayCall(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequestsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
	m.GatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordWebhook records a reconciled webhook.
func (m *Metrics) RecordWebhook(result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(result).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
