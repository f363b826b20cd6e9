// Package confirmation drives card payments from checkout creation to a
// terminal status. Each payment gets one durable run whose progress is
// persisted before every side effect, so a restarted process resumes runs
// where they stopped.
package confirmation

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/shopspring/decimal"
)

// Phase is the progress of a confirmation run.
type Phase string

const (
	PhaseCreated           Phase = "CREATED"
	PhasePreferenceCreated Phase = "PREFERENCE_CREATED"
	PhaseAwaiting          Phase = "AWAITING_CONFIRMATION"
	PhaseTerminal          Phase = "TERMINAL"
)

// ResolvedBy names the path that decided a run's outcome.
type ResolvedBy string

const (
	ResolvedBySignal   ResolvedBy = "signal"
	ResolvedByPoll     ResolvedBy = "poll"
	ResolvedByDeadline ResolvedBy = "deadline"
	ResolvedByError    ResolvedBy = "error"
	ResolvedByStore    ResolvedBy = "store"
)

// Failure reasons.
const (
	ReasonGatewayError     = "gateway error"
	ReasonTimeout          = "confirmation timeout"
	ReasonStoreUnavailable = "status store unavailable"
	ReasonInternal         = "internal error"
	ReasonRejected         = "payment rejected"
)

// Run is the persisted state of one confirmation workflow.
type Run struct {
	PaymentID   string          `gorm:"type:varchar(64);primaryKey"`
	Phase       Phase           `gorm:"type:varchar(32);not null;index"`
	Description string          `gorm:"type:text;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency    string          `gorm:"type:varchar(3);not null"`
	CustomerRef string          `gorm:"type:varchar(11);not null"`

	PreferenceID         string     `gorm:"type:varchar(128);not null;default:''"`
	CheckoutURL          string     `gorm:"type:text;not null;default:''"`
	PreferenceDeadline   *time.Time
	ReferencePersistedAt *time.Time

	SignalStatus         string `gorm:"type:varchar(16);not null;default:''"`
	SignalPaymentID      string `gorm:"type:varchar(64);not null;default:''"`
	SignalReceivedAt     *time.Time
	ConfirmationDeadline *time.Time
	PollDeadline         *time.Time

	Outcome       string `gorm:"type:varchar(16);not null;default:''"`
	FailureReason string `gorm:"type:text;not null;default:''"`
	ResolvedBy    string `gorm:"type:varchar(16);not null;default:''"`
	NotifiedAt    *time.Time
	ArchivedAt    *time.Time `gorm:"index"`

	PhaseHistory pq.StringArray `gorm:"type:text[]"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for Run.
func (Run) TableName() string {
	return "confirmation_runs"
}

// NewRun captures the inputs of a card payment in a CREATED run.
func NewRun(p *domain.Payment, now time.Time) *Run {
	run := &Run{
		PaymentID:   p.ID(),
		Phase:       PhaseCreated,
		Description: p.Description(),
		Amount:      p.Amount(),
		Currency:    p.Currency(),
		CustomerRef: p.CustomerRef(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	run.appendHistory(string(PhaseCreated), now)
	return run
}

// advance moves the run to phase and records the transition.
func (r *Run) advance(phase Phase, now time.Time) {
	r.Phase = phase
	r.UpdatedAt = now
	r.appendHistory(string(phase), now)
}

func (r *Run) appendHistory(entry string, at time.Time) {
	r.PhaseHistory = append(r.PhaseHistory, fmt.Sprintf("%s@%s", entry, at.UTC().Format(time.RFC3339Nano)))
}

// HasSignal reports whether a signal was recorded and not yet applied.
func (r *Run) HasSignal() bool {
	return r.SignalStatus != ""
}

// Archived reports whether the run is finished, including notification.
func (r *Run) Archived() bool {
	return r.ArchivedAt != nil
}

// IsTerminal reports whether the outcome has been decided.
func (r *Run) IsTerminal() bool {
	return r.Phase == PhaseTerminal
}

// Snapshot is the read model of a run.
type Snapshot struct {
	PaymentID            string          `json:"paymentId"`
	Phase                Phase           `json:"phase"`
	Active               bool            `json:"active"`
	PreferenceID         string          `json:"preferenceId,omitempty"`
	CheckoutURL          string          `json:"checkoutUrl,omitempty"`
	SignalStatus         string          `json:"signalStatus,omitempty"`
	ConfirmationDeadline *time.Time      `json:"confirmationDeadline,omitempty"`
	PollDeadline         *time.Time      `json:"pollDeadline,omitempty"`
	Outcome              string          `json:"outcome,omitempty"`
	FailureReason        string          `json:"failureReason,omitempty"`
	ResolvedBy           string          `json:"resolvedBy,omitempty"`
	NotifiedAt           *time.Time      `json:"notifiedAt,omitempty"`
	ArchivedAt           *time.Time      `json:"archivedAt,omitempty"`
	History              []string        `json:"history"`
	Activities           []ActivityEntry `json:"activities"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// ActivityEntry is one activity of a run as served by the API.
type ActivityEntry struct {
	Activity  string         `json:"activity"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ToSnapshot converts a run to its read model.
func (r *Run) ToSnapshot(active bool) *Snapshot {
	return &Snapshot{
		PaymentID:            r.PaymentID,
		Phase:                r.Phase,
		Active:               active,
		PreferenceID:         r.PreferenceID,
		CheckoutURL:          r.CheckoutURL,
		SignalStatus:         r.SignalStatus,
		ConfirmationDeadline: r.ConfirmationDeadline,
		PollDeadline:         r.PollDeadline,
		Outcome:              r.Outcome,
		FailureReason:        r.FailureReason,
		ResolvedBy:           r.ResolvedBy,
		NotifiedAt:           r.NotifiedAt,
		ArchivedAt:           r.ArchivedAt,
		History:              []string(r.PhaseHistory),
		Activities:           []ActivityEntry{},
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

// clone returns a copy safe to mutate independently.
func (r *Run) clone() *Run {
	c := *r
	c.PhaseHistory = append(pq.StringArray(nil), r.PhaseHistory...)
	return &c
}
