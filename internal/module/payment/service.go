package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/payflow/server/internal/module/payment/domain"
	"go.uber.org/zap"
)

// ConfirmationStarter schedules the asynchronous confirmation of a payment.
type ConfirmationStarter interface {
	Submit(ctx context.Context, payment *domain.Payment) error
}

// CreateInput carries the fields of a new payment.
type CreateInput struct {
	CustomerRef string
	Description string
	Amount      string
	Method      string
}

// UpdateInput carries optional changes to a payment. Nil fields are kept.
type UpdateInput struct {
	Description *string
	Amount      *string
	Status      *string
}

// Service implements payment operations.
type Service struct {
	repo     Repository
	starter  ConfirmationStarter
	currency string
	logger   *zap.Logger
}

// NewService creates a new payment service.
func NewService(repo Repository, starter ConfirmationStarter, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		starter:  starter,
		currency: currency,
		logger:   logger.Named("payment"),
	}
}

// validationError marks a domain validation failure for the HTTP layer.
type validationError struct{ err error }

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	var v *validationError
	return errors.As(err, &v)
}

// Create validates and persists a PENDING payment. CARD payments get a
// confirmation run; the call never waits for the outcome.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Payment, error) {
	method, err := domain.ParseMethod(in.Method)
	if err != nil {
		return nil, &validationError{err}
	}
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	p, err := domain.NewPayment(strings.TrimSpace(in.CustomerRef), in.Description, amount, s.currency, method)
	if err != nil {
		return nil, &validationError{err}
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("payment_id", p.ID()), zap.String("method", string(method)))
	log.Info("payment created")

	if !method.RequiresConfirmation() || s.starter == nil {
		return p, nil
	}

	if err := s.starter.Submit(ctx, p); err != nil {
		log.Error("failed to schedule confirmation", zap.Error(err))
		if _, terr := s.repo.TransitionStatus(ctx, p.ID(), domain.StatusFailed); terr != nil {
			log.Error("failed to mark payment failed", zap.Error(terr))
		}
		return nil, fmt.Errorf("%w: %v", ErrConfirmationUnavailable, err)
	}
	return p, nil
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return s.repo.Get(ctx, id)
}

// List returns payments matching the filter.
func (s *Service) List(ctx context.Context, filter *Filter) ([]*domain.Payment, error) {
	return s.repo.List(ctx, filter)
}

// Update applies description, amount and status changes. A status change is
// only accepted while the payment is PENDING.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var target domain.Status
	if in.Status != nil {
		target, err = domain.ParseStatus(*in.Status)
		if err != nil {
			return nil, &validationError{err}
		}
		if target != p.Status() && !p.Status().CanTransitionTo(target) {
			return nil, domain.ErrInvalidStatusTransition
		}
	}

	detailsChanged := false
	if in.Description != nil {
		if err := p.UpdateDescription(*in.Description); err != nil {
			return nil, &validationError{err}
		}
		detailsChanged = true
	}
	if in.Amount != nil {
		amount, err := parseAmount(*in.Amount)
		if err != nil {
			return nil, err
		}
		if !amount.Equal(p.Amount()) {
			if err := p.UpdateAmount(amount); err != nil {
				if errors.Is(err, domain.ErrPaymentLocked) {
					return nil, err
				}
				return nil, &validationError{err}
			}
		}
		detailsChanged = true
	}
	if detailsChanged {
		if err := s.repo.UpdateDetails(ctx, p); err != nil {
			return nil, err
		}
	}

	if in.Status != nil && target != p.Status() {
		applied, err := s.repo.TransitionStatus(ctx, id, target)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, domain.ErrInvalidStatusTransition
		}
		s.logger.Info("payment status updated",
			zap.String("payment_id", id),
			zap.String("status", string(target)),
		)
	}

	return s.repo.Get(ctx, id)
}
