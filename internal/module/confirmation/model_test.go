package confirmation

import (
	"strings"
	"testing"
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRun(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := domain.RestorePayment("p1", "12345678901", "Order", decimal.RequireFromString("99.90"), "BRL",
		domain.MethodCard, domain.StatusPending, "", "", now, now)

	run := NewRun(p, now)
	assert.Equal(t, PhaseCreated, run.Phase)
	assert.Equal(t, "Order", run.Description)
	assert.Equal(t, "99.9", run.Amount.String())
	assert.Equal(t, "12345678901", run.CustomerRef)
	require.Len(t, run.PhaseHistory, 1)
	assert.True(t, strings.HasPrefix(run.PhaseHistory[0], "CREATED@2025-03-01T12:00:00"))

	run.advance(PhasePreferenceCreated, now.Add(time.Second))
	assert.Equal(t, PhasePreferenceCreated, run.Phase)
	assert.Len(t, run.PhaseHistory, 2)

	c := run.clone()
	c.advance(PhaseAwaiting, now)
	assert.Len(t, run.PhaseHistory, 2)
	assert.Len(t, c.PhaseHistory, 3)
}

func TestNewNotification(t *testing.T) {
	now := time.Now()

	paid := NewNotification(&Run{PaymentID: "p1", CustomerRef: "c", Outcome: "PAID", FailureReason: "stale"}, now)
	assert.Equal(t, NotificationConfirmation, paid.Type)
	assert.Empty(t, paid.Reason)

	failed := NewNotification(&Run{PaymentID: "p1", Outcome: "FAILED", FailureReason: ReasonTimeout}, now)
	assert.Equal(t, NotificationFailure, failed.Type)
	assert.Equal(t, ReasonTimeout, failed.Reason)
}

func TestOrchestrator_PreferenceBudget(t *testing.T) {
	o := NewOrchestrator(Deps{}, Config{
		PreferenceTimeout:  10 * time.Second,
		PreferenceAttempts: 3,
		PreferenceBackoff:  time.Second,
	})
	// 3 attempts plus backoffs of 1s and 2s.
	assert.Equal(t, 33*time.Second, o.preferenceBudget())
}
