package confirmation

import (
	"context"
	"fmt"
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Notification types.
const (
	NotificationConfirmation = "confirmation"
	NotificationFailure      = "failure"
)

// Notification is the message sent when a payment reaches a terminal status.
type Notification struct {
	Type        string    `json:"type"`
	PaymentID   string    `json:"payment_id"`
	CustomerRef string    `json:"customer_ref"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewNotification builds the notification for a terminal outcome.
func NewNotification(run *Run, now time.Time) Notification {
	n := Notification{
		Type:        NotificationFailure,
		PaymentID:   run.PaymentID,
		CustomerRef: run.CustomerRef,
		Reason:      run.FailureReason,
		OccurredAt:  now,
	}
	if run.Outcome == string(domain.StatusPaid) {
		n.Type = NotificationConfirmation
		n.Reason = ""
	}
	return n
}

// Dispatcher delivers notifications to customers.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// NotificationRecord marks that a payment's terminal notification was claimed.
type NotificationRecord struct {
	PaymentID string    `gorm:"type:varchar(64);primaryKey"`
	Type      string    `gorm:"type:varchar(16);not null"`
	Outcome   string    `gorm:"type:varchar(16);not null"`
	Reason    string    `gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for NotificationRecord.
func (NotificationRecord) TableName() string {
	return "confirmation_notifications"
}

// NotificationLedger guarantees at most one notification per payment.
type NotificationLedger interface {
	// Claim inserts the record. Only the caller that gets true may dispatch.
	Claim(ctx context.Context, record *NotificationRecord) (bool, error)
}

type notificationLedger struct {
	db *gorm.DB
}

// NewNotificationLedger creates a database-backed ledger.
func NewNotificationLedger(db *gorm.DB) NotificationLedger {
	return &notificationLedger{db: db}
}

func (l *notificationLedger) Claim(ctx context.Context, record *NotificationRecord) (bool, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "payment_id"}}, DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return false, fmt.Errorf("claim notification: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// LogDispatcher writes notifications to the log. It is used when no broker
// is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a new log dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger.Named("notifications")}
}

// Dispatch logs n.
func (d *LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.logger.Info("payment notification",
		zap.String("type", n.Type),
		zap.String("payment_id", n.PaymentID),
		zap.String("customer_ref", n.CustomerRef),
		zap.String("reason", n.Reason),
	)
	return nil
}
