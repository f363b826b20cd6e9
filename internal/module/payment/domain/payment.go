package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment errors.
var (
	ErrInvalidCustomerRef      = errors.New("customer reference must be 11 digits")
	ErrEmptyDescription        = errors.New("description is required")
	ErrInvalidAmount           = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidMethod           = errors.New("invalid payment method")
	ErrInvalidStatus           = errors.New("invalid payment status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrReferenceConflict       = errors.New("gateway reference already set to a different value")
	ErrEmptyReference          = errors.New("gateway reference is required")
	ErrPaymentLocked           = errors.New("payment amount cannot change after checkout was created")
)

// Payment is the aggregate root of a single attempted charge.
type Payment struct {
	id                 string
	customerRef        string
	description        string
	amount             decimal.Decimal
	currency           string
	method             Method
	status             Status
	gatewayReferenceID string
	checkoutURL        string
	createdAt          time.Time
	updatedAt          time.Time
}

// NewPayment validates the input and creates a PENDING payment.
func NewPayment(customerRef, description string, amount decimal.Decimal, currency string, method Method) (*Payment, error) {
	description = strings.TrimSpace(description)
	if err := ValidateCustomerRef(customerRef); err != nil {
		return nil, err
	}
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if method != MethodInstantTransfer && method != MethodCard {
		return nil, ErrInvalidMethod
	}

	now := time.Now().UTC()
	return &Payment{
		id:          uuid.NewString(),
		customerRef: customerRef,
		description: description,
		amount:      amount,
		currency:    currency,
		method:      method,
		status:      StatusPending,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// RestorePayment recreates a Payment from persisted data.
func RestorePayment(
	id, customerRef, description string,
	amount decimal.Decimal,
	currency string,
	method Method,
	status Status,
	gatewayReferenceID, checkoutURL string,
	createdAt, updatedAt time.Time,
) *Payment {
	return &Payment{
		id:                 id,
		customerRef:        customerRef,
		description:        description,
		amount:             amount,
		currency:           currency,
		method:             method,
		status:             status,
		gatewayReferenceID: gatewayReferenceID,
		checkoutURL:        checkoutURL,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
	}
}

// ValidateCustomerRef checks the 11-digit customer document.
func ValidateCustomerRef(ref string) error {
	if len(ref) != 11 {
		return ErrInvalidCustomerRef
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return ErrInvalidCustomerRef
		}
	}
	return nil
}

// ValidateAmount checks that amount is positive with at most two decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// --- Getters ---

func (p *Payment) ID() string                 { return p.id }
func (p *Payment) CustomerRef() string        { return p.customerRef }
func (p *Payment) Description() string        { return p.description }
func (p *Payment) Amount() decimal.Decimal    { return p.amount }
func (p *Payment) Currency() string           { return p.currency }
func (p *Payment) Method() Method             { return p.method }
func (p *Payment) Status() Status             { return p.status }
func (p *Payment) GatewayReferenceID() string { return p.gatewayReferenceID }
func (p *Payment) CheckoutURL() string        { return p.checkoutURL }
func (p *Payment) CreatedAt() time.Time       { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time       { return p.updatedAt }

// HasCheckout reports whether a gateway reference has been attached.
func (p *Payment) HasCheckout() bool {
	return p.gatewayReferenceID != ""
}

// --- Behaviors ---

// TransitionTo moves a PENDING payment to a terminal status.
func (p *Payment) TransitionTo(target Status) error {
	if !p.status.CanTransitionTo(target) {
		return ErrInvalidStatusTransition
	}
	p.status = target
	p.touch()
	return nil
}

// AttachCheckout sets the write-once gateway reference fields. Re-attaching
// identical values is a no-op; different values are rejected.
func (p *Payment) AttachCheckout(referenceID, checkoutURL string) error {
	if referenceID == "" {
		return ErrEmptyReference
	}
	if p.HasCheckout() {
		if p.gatewayReferenceID == referenceID && p.checkoutURL == checkoutURL {
			return nil
		}
		return ErrReferenceConflict
	}
	p.gatewayReferenceID = referenceID
	p.checkoutURL = checkoutURL
	p.touch()
	return nil
}

// UpdateDescription replaces the description.
func (p *Payment) UpdateDescription(description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return ErrEmptyDescription
	}
	p.description = description
	p.touch()
	return nil
}

// UpdateAmount replaces the amount while no checkout exists for the payment.
func (p *Payment) UpdateAmount(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if p.HasCheckout() || p.status.IsTerminal() {
		return ErrPaymentLocked
	}
	p.amount = amount
	p.touch()
	return nil
}

func (p *Payment) touch() {
	p.updatedAt = time.Now().UTC()
}
