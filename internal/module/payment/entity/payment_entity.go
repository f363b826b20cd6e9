package entity

import (
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentEntity is the GORM entity for Payment.
type PaymentEntity struct {
	ID                 string          `gorm:"type:varchar(64);primaryKey"`
	CustomerRef        string          `gorm:"type:varchar(11);not null;index:idx_payments_customer_method"`
	Description        string          `gorm:"not null"`
	Amount             decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency           string          `gorm:"type:varchar(3);not null;default:BRL"`
	Method             string          `gorm:"type:varchar(32);not null;index:idx_payments_customer_method"`
	Status             string          `gorm:"type:varchar(16);not null;default:PENDING;index"`
	GatewayReferenceID string          `gorm:"type:varchar(128);not null;default:''"`
	CheckoutURL        string          `gorm:"not null;default:''"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName returns the database table name.
func (PaymentEntity) TableName() string {
	return "payments"
}

// ToDomain converts entity to domain Payment.
func (e *PaymentEntity) ToDomain() *domain.Payment {
	return domain.RestorePayment(
		e.ID,
		e.CustomerRef,
		e.Description,
		e.Amount,
		e.Currency,
		domain.Method(e.Method),
		domain.Status(e.Status),
		e.GatewayReferenceID,
		e.CheckoutURL,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// FromDomainPayment converts domain Payment to entity.
func FromDomainPayment(p *domain.Payment) *PaymentEntity {
	return &PaymentEntity{
		ID:                 p.ID(),
		CustomerRef:        p.CustomerRef(),
		Description:        p.Description(),
		Amount:             p.Amount(),
		Currency:           p.Currency(),
		Method:             string(p.Method()),
		Status:             string(p.Status()),
		GatewayReferenceID: p.GatewayReferenceID(),
		CheckoutURL:        p.CheckoutURL(),
		CreatedAt:          p.CreatedAt(),
		UpdatedAt:          p.UpdatedAt(),
	}
}

// WebhookEventEntity records every gateway webhook received, whether or not
// it resolved to a payment.
type WebhookEventEntity struct {
	ID          uint           `gorm:"primaryKey;autoIncrement"`
	PayloadHash string         `gorm:"type:char(64);not null;index"`
	PaymentID   string         `gorm:"type:varchar(64);index"`
	MatchedRule string         `gorm:"type:varchar(32)"`
	Status      string         `gorm:"type:varchar(16)"`
	Result      string         `gorm:"type:varchar(32);not null"`
	Error       string         `gorm:"type:text"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt  time.Time      `gorm:"not null"`
}

// TableName returns the database table name.
func (WebhookEventEntity) TableName() string {
	return "payment_webhook_events"
}
