package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/payflow/server/internal/module/payment/entity"
	"gorm.io/gorm"
)

// Filter narrows a payment listing. Nil fields are ignored.
type Filter struct {
	CustomerRef string
	Method      *domain.Method
	Status      *domain.Status
	Limit       int
	Offset      int
}

// Repository defines the interface for payment data access.
type Repository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	Get(ctx context.Context, id string) (*domain.Payment, error)
	List(ctx context.Context, filter *Filter) ([]*domain.Payment, error)
	UpdateDetails(ctx context.Context, payment *domain.Payment) error

	// TransitionStatus moves a PENDING payment to status. It reports false,
	// without error, when the payment was already terminal.
	TransitionStatus(ctx context.Context, id string, status domain.Status) (bool, error)

	// SetCheckoutReference writes the gateway reference fields once.
	// Identical values are accepted; different values return ErrReferenceConflict.
	SetCheckoutReference(ctx context.Context, id, referenceID, checkoutURL string) error

	RecordWebhookEvent(ctx context.Context, event *entity.WebhookEventEntity) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Models returns the GORM models owned by this module, for migration.
func Models() []any {
	return []any{&entity.PaymentEntity{}, &entity.WebhookEventEntity{}}
}

func (r *repository) Create(ctx context.Context, payment *domain.Payment) error {
	ent := entity.FromDomainPayment(payment)
	if err := r.db.WithContext(ctx).Create(ent).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	var ent entity.PaymentEntity
	err := r.db.WithContext(ctx).First(&ent, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return ent.ToDomain(), nil
}

func (r *repository) List(ctx context.Context, filter *Filter) ([]*domain.Payment, error) {
	query := r.db.WithContext(ctx).Model(&entity.PaymentEntity{})
	if filter != nil {
		if filter.CustomerRef != "" {
			query = query.Where("customer_ref = ?", filter.CustomerRef)
		}
		if filter.Method != nil {
			query = query.Where("method = ?", string(*filter.Method))
		}
		if filter.Status != nil {
			query = query.Where("status = ?", string(*filter.Status))
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	var entities []*entity.PaymentEntity
	if err := query.Order("created_at DESC").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	payments := make([]*domain.Payment, len(entities))
	for i, ent := range entities {
		payments[i] = ent.ToDomain()
	}
	return payments, nil
}

func (r *repository) UpdateDetails(ctx context.Context, payment *domain.Payment) error {
	result := r.db.WithContext(ctx).
		Model(&entity.PaymentEntity{}).
		Where("id = ?", payment.ID()).
		Updates(map[string]any{
			"description": payment.Description(),
			"amount":      payment.Amount(),
			"updated_at":  payment.UpdatedAt(),
		})
	if result.Error != nil {
		return fmt.Errorf("update payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *repository) TransitionStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	if !domain.StatusPending.CanTransitionTo(status) {
		return false, domain.ErrInvalidStatusTransition
	}

	result := r.db.WithContext(ctx).
		Model(&entity.PaymentEntity{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("transition payment status: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	// Nothing changed: either unknown or already terminal.
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *repository) SetCheckoutReference(ctx context.Context, id, referenceID, checkoutURL string) error {
	if referenceID == "" {
		return domain.ErrEmptyReference
	}

	result := r.db.WithContext(ctx).
		Model(&entity.PaymentEntity{}).
		Where("id = ? AND (gateway_reference_id = '' OR gateway_reference_id IS NULL)", id).
		Updates(map[string]any{
			"gateway_reference_id": referenceID,
			"checkout_url":         checkoutURL,
			"updated_at":           time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("set checkout reference: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	// Already set (or unknown): identical values are a no-op.
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return current.AttachCheckout(referenceID, checkoutURL)
}

func (r *repository) RecordWebhookEvent(ctx context.Context, event *entity.WebhookEventEntity) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}
