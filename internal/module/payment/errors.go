package payment

import "errors"

// Module errors.
var (
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrConfirmationUnavailable = errors.New("confirmation could not be scheduled")
)
