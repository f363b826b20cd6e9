package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrRunNotFound is returned when no run exists for a payment.
	ErrRunNotFound = errors.New("confirmation run not found")
)

// RunRepository persists confirmation runs.
type RunRepository interface {
	// Create inserts run. It reports false when a run already exists.
	Create(ctx context.Context, run *Run) (bool, error)
	Get(ctx context.Context, paymentID string) (*Run, error)
	Save(ctx context.Context, run *Run) error
	ListUnfinished(ctx context.Context) ([]*Run, error)

	// RecordSignal stores signal on the run when it is awaiting confirmation
	// and has no signal yet. It reports whether the signal was accepted.
	RecordSignal(ctx context.Context, signal domain.Signal) (bool, error)
}

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

// Models returns the GORM models owned by this module, for migration.
func Models() []any {
	return []any{&Run{}, &NotificationRecord{}, &Activity{}}
}

func (r *runRepository) Create(ctx context.Context, run *Run) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "payment_id"}}, DoNothing: true}).
		Create(run)
	if result.Error != nil {
		return false, fmt.Errorf("create run: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *runRepository) Get(ctx context.Context, paymentID string) (*Run, error) {
	var run Run
	err := r.db.WithContext(ctx).First(&run, "payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

func (r *runRepository) Save(ctx context.Context, run *Run) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (r *runRepository) ListUnfinished(ctx context.Context) ([]*Run, error) {
	var runs []*Run
	err := r.db.WithContext(ctx).
		Where("archived_at IS NULL").
		Order("created_at ASC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list unfinished runs: %w", err)
	}
	return runs, nil
}

func (r *runRepository) RecordSignal(ctx context.Context, signal domain.Signal) (bool, error) {
	receivedAt := signal.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	result := r.db.WithContext(ctx).
		Model(&Run{}).
		Where("payment_id = ? AND phase = ? AND signal_status = ''", signal.PaymentID, PhaseAwaiting).
		Updates(map[string]any{
			"signal_status":      string(signal.Status),
			"signal_payment_id":  signal.PaymentID,
			"signal_received_at": receivedAt,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("record signal: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
