package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/payflow/server/internal/module/payment/gateway"
	"github.com/payflow/server/internal/shared/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownPhase is returned for a persisted run in an unexpected phase.
var ErrUnknownPhase = errors.New("unknown run phase")

// PaymentStore is the part of the payment repository a run writes to.
type PaymentStore interface {
	Get(ctx context.Context, id string) (*domain.Payment, error)
	SetCheckoutReference(ctx context.Context, id, referenceID, checkoutURL string) error
	TransitionStatus(ctx context.Context, id string, status domain.Status) (bool, error)
}

// Slot is the worker slot a run holds while it executes steps. Runs give
// it back while they wait.
type Slot interface {
	Acquire(ctx context.Context) error
	Release()
}

// Config holds the orchestrator timings.
type Config struct {
	PreferenceTimeout   time.Duration
	PreferenceAttempts  int
	PreferenceBackoff   time.Duration
	SignalTimeout       time.Duration
	PollTimeout         time.Duration
	NotificationTimeout time.Duration
	NotificationURL     string
}

// DefaultConfig returns the default orchestrator timings.
func DefaultConfig() Config {
	return Config{
		PreferenceTimeout:   15 * time.Second,
		PreferenceAttempts:  2,
		PreferenceBackoff:   2 * time.Second,
		SignalTimeout:       8 * time.Minute,
		PollTimeout:         10 * time.Minute,
		NotificationTimeout: 10 * time.Second,
	}
}

// Orchestrator executes the steps of confirmation runs.
type Orchestrator struct {
	runs       RunRepository
	payments   PaymentStore
	gateway    gateway.Client
	hub        *SignalHub
	poller     *Poller
	ledger     NotificationLedger
	dispatcher Dispatcher
	activities ActivityLog
	metrics    *metrics.Metrics
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Runs       RunRepository
	Payments   PaymentStore
	Gateway    gateway.Client
	Hub        *SignalHub
	Poller     *Poller
	Ledger     NotificationLedger
	Dispatcher Dispatcher
	Activities ActivityLog
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.PreferenceTimeout <= 0 {
		cfg.PreferenceTimeout = def.PreferenceTimeout
	}
	if cfg.PreferenceAttempts <= 0 {
		cfg.PreferenceAttempts = def.PreferenceAttempts
	}
	if cfg.PreferenceBackoff < 0 {
		cfg.PreferenceBackoff = 0
	}
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = def.SignalTimeout
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.NotificationTimeout <= 0 {
		cfg.NotificationTimeout = def.NotificationTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	activities := deps.Activities
	if activities == nil {
		activities = NewLogActivityLog(logger)
	}

	return &Orchestrator{
		runs:       deps.Runs,
		payments:   deps.Payments,
		gateway:    deps.Gateway,
		hub:        deps.Hub,
		poller:     deps.Poller,
		ledger:     deps.Ledger,
		dispatcher: deps.Dispatcher,
		activities: activities,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run drives run from its persisted phase until it is archived. A cancelled
// ctx stops the run at its last recorded phase so it can be resumed.
func (o *Orchestrator) Run(ctx context.Context, run *Run, slot Slot) error {
	log := o.logger.With(zap.String("payment_id", run.PaymentID))

	for !run.Archived() {
		phase := run.Phase
		var err error
		switch phase {
		case PhaseCreated:
			err = o.createPreference(ctx, run, slot)
		case PhasePreferenceCreated:
			err = o.persistReference(ctx, run)
		case PhaseAwaiting:
			err = o.awaitConfirmation(ctx, run, slot)
		case PhaseTerminal:
			err = o.notify(ctx, run)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			log.Info("run suspended", zap.String("phase", string(run.Phase)))
			return ctx.Err()
		}
		if run.IsTerminal() {
			return err
		}

		log.Error("run step failed", zap.String("phase", string(phase)), zap.Error(err))
		if rerr := o.resolve(ctx, run, domain.StatusFailed, ResolvedByError, ReasonInternal); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	return nil
}

// Abandon makes one last attempt to settle a run whose retries are spent.
// The payment is failed as store_unavailable and the run is archived.
func (o *Orchestrator) Abandon(ctx context.Context, run *Run) error {
	if run.Archived() {
		return nil
	}
	if !run.IsTerminal() {
		if err := o.resolve(ctx, run, domain.StatusFailed, ResolvedByError, ReasonStoreUnavailable); err != nil {
			return err
		}
	}
	return o.notify(ctx, run)
}

// createPreference creates the gateway checkout with one bounded retry. The
// checkout is priced from the payment as stored now, not as submitted.
func (o *Orchestrator) createPreference(ctx context.Context, run *Run, slot Slot) error {
	p, err := o.payments.Get(ctx, run.PaymentID)
	if err != nil {
		return fmt.Errorf("read payment: %w", err)
	}
	run.Description = p.Description()
	run.Amount = p.Amount()
	run.Currency = p.Currency()

	deadline := o.now().Add(o.preferenceBudget())
	run.PreferenceDeadline = &deadline
	run.UpdatedAt = o.now()
	if err := o.runs.Save(ctx, run); err != nil {
		return err
	}

	pref, err := o.createWithRetry(ctx, run, slot, deadline)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.record(ctx, run.PaymentID, "preference_failed", map[string]any{"error": err.Error()})
		return o.resolve(ctx, run, domain.StatusFailed, ResolvedByError, ReasonGatewayError)
	}

	run.PreferenceID = pref.ReferenceID
	run.CheckoutURL = pref.CheckoutURL
	run.advance(PhasePreferenceCreated, o.now())
	if err := o.runs.Save(ctx, run); err != nil {
		return err
	}
	o.record(ctx, run.PaymentID, "preference_created", map[string]any{
		"preference_id": pref.ReferenceID,
		"checkout_url":  pref.CheckoutURL,
	})
	return nil
}

func (o *Orchestrator) preferenceBudget() time.Duration {
	budget := time.Duration(o.cfg.PreferenceAttempts) * o.cfg.PreferenceTimeout
	backoff := o.cfg.PreferenceBackoff
	for i := 1; i < o.cfg.PreferenceAttempts; i++ {
		budget += backoff
		backoff *= 2
	}
	return budget
}

func (o *Orchestrator) createWithRetry(ctx context.Context, run *Run, slot Slot, deadline time.Time) (*gateway.Preference, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	req := &gateway.PreferenceRequest{
		Title:             run.Description,
		UnitPrice:         run.Amount,
		Currency:          run.Currency,
		ExternalReference: run.PaymentID,
		NotificationURL:   o.cfg.NotificationURL,
	}

	var lastErr error
	backoff := o.cfg.PreferenceBackoff
	for attempt := 1; attempt <= o.cfg.PreferenceAttempts; attempt++ {
		if attempt > 1 {
			o.logger.Warn("retrying preference creation",
				zap.String("payment_id", run.PaymentID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			if err := o.sleep(ctx, slot, backoff); err != nil {
				return nil, errors.Join(lastErr, err)
			}
			backoff *= 2
		}

		attemptCtx, cancelAttempt := context.WithTimeout(ctx, o.cfg.PreferenceTimeout)
		pref, err := o.gateway.CreatePreference(attemptCtx, req)
		cancelAttempt()
		if err == nil {
			return pref, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// sleep waits d without holding the worker slot.
func (o *Orchestrator) sleep(ctx context.Context, slot Slot, d time.Duration) error {
	slot.Release()
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}
	if err := slot.Acquire(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

// persistReference writes the checkout reference onto the payment.
func (o *Orchestrator) persistReference(ctx context.Context, run *Run) error {
	err := o.payments.SetCheckoutReference(ctx, run.PaymentID, run.PreferenceID, run.CheckoutURL)
	if err != nil {
		return fmt.Errorf("persist checkout reference: %w", err)
	}

	now := o.now()
	signalDeadline := now.Add(o.cfg.SignalTimeout)
	pollDeadline := now.Add(o.cfg.PollTimeout)
	run.ReferencePersistedAt = &now
	run.ConfirmationDeadline = &signalDeadline
	run.PollDeadline = &pollDeadline
	run.advance(PhaseAwaiting, now)
	if err := o.runs.Save(ctx, run); err != nil {
		return err
	}
	o.record(ctx, run.PaymentID, "awaiting_confirmation", map[string]any{
		"signal_deadline": signalDeadline,
		"poll_deadline":   pollDeadline,
	})
	return nil
}

// observation is a terminal status seen by one branch of the race.
type observation struct {
	status domain.Status
	by     ResolvedBy
}

// awaitConfirmation races the signal inbox against the status poller.
func (o *Orchestrator) awaitConfirmation(ctx context.Context, run *Run, slot Slot) error {
	if run.HasSignal() {
		return o.resolveObservation(ctx, run, observation{status: domain.Status(run.SignalStatus), by: ResolvedBySignal})
	}

	slot.Release()
	obs, won, storeDown := o.race(ctx, run)
	if err := slot.Acquire(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if won {
		return o.resolveObservation(ctx, run, obs)
	}
	reason := ReasonTimeout
	if storeDown {
		reason = ReasonStoreUnavailable
	}
	return o.resolve(ctx, run, domain.StatusFailed, ResolvedByDeadline, reason)
}

// race runs the signal and poll waits. The first branch to observe a
// terminal status cancels the other; a branch that ends without one leaves
// the other running. storeDown reports a poll budget spent on read errors.
// Total wait is bounded by the later of confirmation.signal_timeout and
// confirmation.poll_timeout (SignalTimeout, PollTimeout).
func (o *Orchestrator) race(ctx context.Context, run *Run) (winner observation, won bool, storeDown bool) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	settle := func(obs observation) {
		once.Do(func() {
			winner = obs
			won = true
			cancel()
		})
	}

	g, gctx := errgroup.WithContext(raceCtx)
	g.Go(func() error {
		if obs, ok := o.waitSignal(gctx, run); ok {
			settle(obs)
		}
		return nil
	})
	g.Go(func() error {
		res := o.poller.Poll(gctx, run.PaymentID, derefTime(run.PollDeadline, o.now()))
		switch {
		case res.Cancelled:
		case res.Exhausted:
			storeDown = res.OnlyReadErrors()
		default:
			settle(observation{status: res.Status, by: ResolvedByPoll})
		}
		return nil
	})
	_ = g.Wait()
	return winner, won, storeDown
}

// waitSignal blocks until a signal for this run arrives or the signal
// deadline passes.
func (o *Orchestrator) waitSignal(ctx context.Context, run *Run) (observation, bool) {
	inbox, unsubscribe := o.hub.Subscribe(run.PaymentID)
	defer unsubscribe()

	// A signal recorded before the subscription is only on the row.
	if stored, err := o.runs.Get(ctx, run.PaymentID); err == nil && stored.HasSignal() {
		return observation{status: domain.Status(stored.SignalStatus), by: ResolvedBySignal}, true
	}

	timer := time.NewTimer(derefTime(run.ConfirmationDeadline, o.now()).Sub(o.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return observation{}, false
		case <-timer.C:
			o.logger.Info("signal wait timed out", zap.String("payment_id", run.PaymentID))
			return observation{}, false
		case signal := <-inbox:
			if signal.PaymentID != run.PaymentID || !signal.Status.IsTerminal() {
				continue
			}
			return observation{status: signal.Status, by: ResolvedBySignal}, true
		}
	}
}

func (o *Orchestrator) resolveObservation(ctx context.Context, run *Run, obs observation) error {
	reason := ""
	if obs.status == domain.StatusFailed {
		reason = ReasonRejected
	}
	return o.resolve(ctx, run, obs.status, obs.by, reason)
}

// resolve applies status to the payment and records TERMINAL. A payment
// already made terminal by a faster path keeps its status and the run
// adopts it.
func (o *Orchestrator) resolve(ctx context.Context, run *Run, status domain.Status, by ResolvedBy, reason string) error {
	applied, err := o.payments.TransitionStatus(ctx, run.PaymentID, status)
	if err != nil {
		return fmt.Errorf("apply outcome: %w", err)
	}
	if !applied {
		current, err := o.payments.Get(ctx, run.PaymentID)
		if err != nil {
			return fmt.Errorf("read outcome: %w", err)
		}
		if stored := current.Status(); stored.IsTerminal() && stored != status {
			o.logger.Info("adopting stored status",
				zap.String("payment_id", run.PaymentID),
				zap.String("resolved", string(status)),
				zap.String("stored", string(stored)))
			status = stored
			by = ResolvedByStore
			reason = ""
			if stored == domain.StatusFailed {
				reason = ReasonRejected
			}
		}
	}
	if status == domain.StatusPaid {
		reason = ""
	}

	run.Outcome = string(status)
	run.FailureReason = reason
	run.ResolvedBy = string(by)
	run.advance(PhaseTerminal, o.now())
	if err := o.runs.Save(ctx, run); err != nil {
		return err
	}

	o.metrics.RecordOutcome(run.Outcome, run.ResolvedBy)
	o.logger.Info("payment resolved",
		zap.String("payment_id", run.PaymentID),
		zap.String("outcome", run.Outcome),
		zap.String("resolved_by", run.ResolvedBy),
		zap.String("reason", reason))
	o.record(ctx, run.PaymentID, "resolved", map[string]any{
		"outcome":     run.Outcome,
		"resolved_by": run.ResolvedBy,
		"reason":      reason,
	})
	return nil
}

// notify dispatches the terminal notification once and archives the run.
func (o *Orchestrator) notify(ctx context.Context, run *Run) error {
	n := NewNotification(run, o.now())
	claimed, err := o.ledger.Claim(ctx, &NotificationRecord{
		PaymentID: run.PaymentID,
		Type:      n.Type,
		Outcome:   run.Outcome,
		Reason:    run.FailureReason,
	})
	if err != nil {
		return err
	}

	if claimed {
		dctx, cancel := context.WithTimeout(ctx, o.cfg.NotificationTimeout)
		derr := o.dispatcher.Dispatch(dctx, n)
		cancel()
		o.metrics.RecordNotification(n.Type, derr)
		if derr != nil {
			o.logger.Warn("notification dispatch failed",
				zap.String("payment_id", run.PaymentID),
				zap.String("type", n.Type),
				zap.Error(derr))
		}
		o.record(ctx, run.PaymentID, "notified", map[string]any{
			"type":       n.Type,
			"dispatched": derr == nil,
		})
	} else {
		o.logger.Info("notification already claimed", zap.String("payment_id", run.PaymentID))
	}

	now := o.now()
	run.NotifiedAt = &now
	run.ArchivedAt = &now
	run.UpdatedAt = now
	run.appendHistory("ARCHIVED", now)
	return o.runs.Save(ctx, run)
}

func (o *Orchestrator) record(ctx context.Context, paymentID, activity string, details map[string]any) {
	if err := o.activities.Record(ctx, paymentID, activity, details); err != nil {
		o.logger.Warn("failed to record activity",
			zap.String("payment_id", paymentID),
			zap.String("activity", activity),
			zap.Error(err))
	}
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}
