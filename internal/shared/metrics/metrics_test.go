package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *Metrics {
	return New("test", prometheus.NewRegistry())
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newTestMetrics()

	m.RecordHTTPRequest("POST", "/v1/payment", 201, 50*time.Millisecond)
	m.RecordHTTPRequest("POST", "/v1/payment", 400, 10*time.Millisecond)
	m.RecordHTTPRequest("POST", "/v1/payment", 201, 20*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/payment", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/payment", "4xx")))
}

func TestConfirmationRecorders(t *testing.T) {
	m := newTestMetrics()

	m.RecordRunStarted(false)
	m.RecordRunStarted(true)
	m.RecordRunFinished()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("started")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("resumed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsActive))

	m.RecordOutcome("PAID", "signal")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("PAID", "signal")))

	m.RecordSignal(true)
	m.RecordSignal(false)
	m.RecordSignal(false)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SignalsTotal.WithLabelValues("discarded")))

	m.RecordNotification("confirmation", nil)
	m.RecordNotification("failure", assert.AnError)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("failure", "error")))

	m.RecordGatewayCall("create_preference", nil, time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GatewayRequestsTotal.WithLabelValues("create_preference", "success")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		m.RecordRunStarted(false)
		m.RecordOutcome("FAILED", "poll")
		m.RecordPollAttempt("pending")
		m.RecordWebhook("ignored")
	})
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, statusCodeToString(tt.code))
	}
}
