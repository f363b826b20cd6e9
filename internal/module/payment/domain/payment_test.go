package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCardPayment(t *testing.T) *Payment {
	t.Helper()
	p, err := NewPayment("12345678901", "Order #1", decimal.RequireFromString("100.50"), "BRL", MethodCard)
	require.NoError(t, err)
	return p
}

func TestNewPayment(t *testing.T) {
	t.Run("creates pending payment", func(t *testing.T) {
		p := newCardPayment(t)
		assert.NotEmpty(t, p.ID())
		assert.Equal(t, StatusPending, p.Status())
		assert.True(t, p.Amount().Equal(decimal.RequireFromString("100.5")))
		assert.False(t, p.HasCheckout())
	})

	tests := []struct {
		name        string
		customerRef string
		description string
		amount      string
		method      Method
		wantErr     error
	}{
		{"short customer ref", "123", "x", "1.00", MethodCard, ErrInvalidCustomerRef},
		{"non digit customer ref", "1234567890a", "x", "1.00", MethodCard, ErrInvalidCustomerRef},
		{"blank description", "12345678901", "   ", "1.00", MethodCard, ErrEmptyDescription},
		{"zero amount", "12345678901", "x", "0", MethodCard, ErrInvalidAmount},
		{"negative amount", "12345678901", "x", "-3", MethodCard, ErrInvalidAmount},
		{"three decimals", "12345678901", "x", "1.005", MethodCard, ErrInvalidAmount},
		{"unknown method", "12345678901", "x", "1.00", Method("BOLETO"), ErrInvalidMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPayment(tt.customerRef, tt.description, decimal.RequireFromString(tt.amount), "BRL", tt.method)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPayment_TransitionTo(t *testing.T) {
	t.Run("pending to paid", func(t *testing.T) {
		p := newCardPayment(t)
		require.NoError(t, p.TransitionTo(StatusPaid))
		assert.Equal(t, StatusPaid, p.Status())
	})

	t.Run("terminal is final", func(t *testing.T) {
		p := newCardPayment(t)
		require.NoError(t, p.TransitionTo(StatusFailed))
		assert.ErrorIs(t, p.TransitionTo(StatusPaid), ErrInvalidStatusTransition)
		assert.ErrorIs(t, p.TransitionTo(StatusPending), ErrInvalidStatusTransition)
		assert.Equal(t, StatusFailed, p.Status())
	})

	t.Run("pending to pending rejected", func(t *testing.T) {
		p := newCardPayment(t)
		assert.ErrorIs(t, p.TransitionTo(StatusPending), ErrInvalidStatusTransition)
	})
}

func TestPayment_AttachCheckout(t *testing.T) {
	p := newCardPayment(t)

	require.NoError(t, p.AttachCheckout("pref-1", "https://pay/1"))
	updated := p.UpdatedAt()

	t.Run("identical rewrite is a no-op", func(t *testing.T) {
		require.NoError(t, p.AttachCheckout("pref-1", "https://pay/1"))
		assert.Equal(t, updated, p.UpdatedAt())
	})

	t.Run("conflicting rewrite rejected", func(t *testing.T) {
		assert.ErrorIs(t, p.AttachCheckout("pref-2", "https://pay/2"), ErrReferenceConflict)
		assert.Equal(t, "pref-1", p.GatewayReferenceID())
		assert.Equal(t, "https://pay/1", p.CheckoutURL())
	})

	t.Run("empty reference rejected", func(t *testing.T) {
		assert.ErrorIs(t, newCardPayment(t).AttachCheckout("", "u"), ErrEmptyReference)
	})
}

func TestPayment_UpdateAmount(t *testing.T) {
	p := newCardPayment(t)
	require.NoError(t, p.UpdateAmount(decimal.RequireFromString("20")))
	assert.True(t, p.Amount().Equal(decimal.NewFromInt(20)))

	require.NoError(t, p.AttachCheckout("pref-1", "u"))
	assert.ErrorIs(t, p.UpdateAmount(decimal.RequireFromString("30")), ErrPaymentLocked)
}

func TestParse(t *testing.T) {
	m, err := ParseMethod("pix")
	require.NoError(t, err)
	assert.Equal(t, MethodInstantTransfer, m)

	m, err = ParseMethod("CREDIT_CARD")
	require.NoError(t, err)
	assert.Equal(t, MethodCard, m)
	assert.True(t, m.RequiresConfirmation())

	_, err = ParseMethod("cash")
	assert.ErrorIs(t, err, ErrInvalidMethod)

	s, err := ParseStatus("FAIL")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, s)

	_, err = ParseStatus("refunded")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
