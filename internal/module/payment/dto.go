package payment

import (
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest is the body of POST /v1/payment.
// cpf is accepted as an alias of customerRef.
type CreatePaymentRequest struct {
	CustomerRef   string          `json:"customerRef" binding:"omitempty,len=11,numeric"`
	CPF           string          `json:"cpf" binding:"omitempty,len=11,numeric"`
	Description   string          `json:"description" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"positive_amount"`
	PaymentMethod string          `json:"paymentMethod" binding:"required,payment_method"`
}

// UpdatePaymentRequest is the body of PUT /v1/payment/:id.
type UpdatePaymentRequest struct {
	Description *string          `json:"description" binding:"omitempty,min=1"`
	Amount      *decimal.Decimal `json:"amount" binding:"omitempty,positive_amount"`
	Status      *string          `json:"status" binding:"omitempty,payment_status"`
}

// ListPaymentsQuery is the query string of GET /v1/payment.
type ListPaymentsQuery struct {
	CustomerRef   string `form:"customerRef"`
	CPF           string `form:"cpf"`
	PaymentMethod string `form:"paymentMethod" binding:"omitempty,payment_method"`
	Status        string `form:"status" binding:"omitempty,payment_status"`
	Limit         int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset        int    `form:"offset" binding:"omitempty,min=0"`
}

// PaymentResponse is the API representation of a payment.
type PaymentResponse struct {
	ID                 string    `json:"id"`
	CustomerRef        string    `json:"customerRef"`
	Description        string    `json:"description"`
	Amount             string    `json:"amount"`
	Currency           string    `json:"currency"`
	PaymentMethod      string    `json:"paymentMethod"`
	Status             string    `json:"status"`
	GatewayReferenceID string    `json:"gatewayReferenceId,omitempty"`
	CheckoutURL        string    `json:"checkoutUrl,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ToResponse converts a domain payment to its API representation.
func ToResponse(p *domain.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                 p.ID(),
		CustomerRef:        p.CustomerRef(),
		Description:        p.Description(),
		Amount:             p.Amount().StringFixed(2),
		Currency:           p.Currency(),
		PaymentMethod:      string(p.Method()),
		Status:             string(p.Status()),
		GatewayReferenceID: p.GatewayReferenceID(),
		CheckoutURL:        p.CheckoutURL(),
		CreatedAt:          p.CreatedAt(),
		UpdatedAt:          p.UpdatedAt(),
	}
}

// WebhookAck is always returned by the webhook endpoint.
type WebhookAck struct {
	OK bool `json:"ok"`
}
