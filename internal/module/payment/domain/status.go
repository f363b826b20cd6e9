package domain

import (
	"fmt"
	"strings"
)

// Status represents the lifecycle status of a payment.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
)

// ParseStatus parses a status, accepting the legacy FAIL spelling.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return StatusPending, nil
	case "PAID":
		return StatusPaid, nil
	case "FAILED", "FAIL":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// CanTransitionTo returns true if the status can transition to the target status.
// Only PENDING may move, and only to a terminal status.
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusPending && target.IsTerminal()
}

func (s Status) String() string { return string(s) }

// Method represents a payment method.
type Method string

const (
	MethodInstantTransfer Method = "INSTANT_TRANSFER"
	MethodCard            Method = "CARD"
)

// ParseMethod parses a method, accepting the PIX and CREDIT_CARD aliases.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INSTANT_TRANSFER", "PIX":
		return MethodInstantTransfer, nil
	case "CARD", "CREDIT_CARD":
		return MethodCard, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
}

// RequiresConfirmation reports whether payments with this method are
// confirmed asynchronously through the gateway.
func (m Method) RequiresConfirmation() bool {
	return m == MethodCard
}

func (m Method) String() string { return string(m) }
