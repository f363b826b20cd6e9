package domain

import "time"

// Signal is a push notification that a payment reached a terminal status.
type Signal struct {
	PaymentID  string    `json:"payment_id"`
	Status     Status    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewSignal creates a signal stamped with the current time.
func NewSignal(paymentID string, status Status) Signal {
	return Signal{PaymentID: paymentID, Status: status, ReceivedAt: time.Now().UTC()}
}
