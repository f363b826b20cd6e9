// Package gateway talks to the external payment gateway that hosts checkout
// for card payments.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrGatewayUnavailable is returned for any transport failure, non-success
// response or open circuit. Callers own retry policy.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// PreferenceRequest describes a checkout preference to create.
type PreferenceRequest struct {
	Title             string
	UnitPrice         decimal.Decimal
	Currency          string
	ExternalReference string
	NotificationURL   string
}

// Preference is the gateway's representation of a payable charge.
type Preference struct {
	ReferenceID string
	CheckoutURL string
}

// Client creates checkout preferences.
type Client interface {
	CreatePreference(ctx context.Context, req *PreferenceRequest) (*Preference, error)
}
