package confirmation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Activity is one audit entry of a run's progress.
type Activity struct {
	ID        uint              `gorm:"primaryKey;autoIncrement"`
	PaymentID string            `gorm:"type:varchar(64);not null;index"`
	Activity  string            `gorm:"type:varchar(64);not null"`
	Details   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null"`
}

// TableName returns the table name for Activity.
func (Activity) TableName() string {
	return "payment_activities"
}

// Entry converts a to its API form.
func (a *Activity) Entry() ActivityEntry {
	return ActivityEntry{
		Activity:  a.Activity,
		Details:   map[string]any(a.Details),
		CreatedAt: a.CreatedAt,
	}
}

// ActivityLog records the audit trail of confirmation runs.
type ActivityLog interface {
	Record(ctx context.Context, paymentID, activity string, details map[string]any) error
	List(ctx context.Context, paymentID string) ([]*Activity, error)
}

type activityLog struct {
	db *gorm.DB
}

// NewActivityLog creates a database-backed activity log.
func NewActivityLog(db *gorm.DB) ActivityLog {
	return &activityLog{db: db}
}

func (l *activityLog) Record(ctx context.Context, paymentID, activity string, details map[string]any) error {
	entry := &Activity{
		PaymentID: paymentID,
		Activity:  activity,
		Details:   datatypes.JSONMap(details),
		CreatedAt: time.Now().UTC(),
	}
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (l *activityLog) List(ctx context.Context, paymentID string) ([]*Activity, error) {
	var entries []*Activity
	err := l.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return entries, nil
}

// logActivityLog writes the audit trail to the logger only.
type logActivityLog struct {
	logger *zap.Logger
}

// NewLogActivityLog creates an activity log that only logs.
func NewLogActivityLog(logger *zap.Logger) ActivityLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logActivityLog{logger: logger.Named("activity")}
}

func (l *logActivityLog) Record(_ context.Context, paymentID, activity string, details map[string]any) error {
	l.logger.Info(activity, zap.String("payment_id", paymentID), zap.Any("details", details))
	return nil
}

// List returns nothing; the trail only exists in the logs.
func (l *logActivityLog) List(context.Context, string) ([]*Activity, error) {
	return nil, nil
}
