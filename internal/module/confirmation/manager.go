package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/payflow/server/internal/shared/metrics"
	"go.uber.org/zap"
)

var (
	// ErrManagerStopped is returned by Submit after Stop.
	ErrManagerStopped = errors.New("confirmation manager stopped")
	// ErrNotConfirmable is returned for payments that need no confirmation.
	ErrNotConfirmable = errors.New("payment method needs no confirmation")
)

// ManagerConfig contains manager configuration.
type ManagerConfig struct {
	MaxConcurrent int
	// RetryAttempts bounds how often a run that stopped with an error is
	// restarted from its persisted phase.
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Manager runs confirmation runs on a bounded pool of worker slots and
// resumes unfinished runs on start.
type Manager struct {
	mu sync.Mutex

	runs         RunRepository
	orchestrator *Orchestrator
	metrics      *metrics.Metrics
	logger       *zap.Logger

	// Concurrency control
	semaphore chan struct{}

	retryAttempts int
	retryBackoff  time.Duration

	// Active runs by payment id
	active map[string]context.CancelFunc

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewManager creates a new confirmation manager.
func NewManager(runs RunRepository, orchestrator *Orchestrator, cfg ManagerConfig, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 50
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runs:          runs,
		orchestrator:  orchestrator,
		metrics:       m,
		logger:        logger.Named("confirmation-manager"),
		semaphore:     make(chan struct{}, cfg.MaxConcurrent),
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
		active:        make(map[string]context.CancelFunc),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start resumes every unfinished run from its persisted phase.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("starting confirmation manager", zap.Int("max_concurrent", cap(m.semaphore)))

	runs, err := m.runs.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("recover runs: %w", err)
	}

	m.logger.Info("recovering confirmation runs", zap.Int("count", len(runs)))
	for _, run := range runs {
		if err := m.launch(run, true); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels active runs and waits for them to suspend. Their progress
// stays persisted for the next Start.
func (m *Manager) Stop() {
	m.logger.Info("stopping confirmation manager")
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("confirmation manager stopped")
}

// Submit creates the run for a card payment and starts it. Submitting a
// payment that already has a run is a no-op.
func (m *Manager) Submit(ctx context.Context, p *domain.Payment) error {
	if !p.Method().RequiresConfirmation() {
		return ErrNotConfirmable
	}
	if m.isStopped() {
		return ErrManagerStopped
	}

	run := NewRun(p, time.Now().UTC())
	created, err := m.runs.Create(ctx, run)
	if err != nil {
		return err
	}
	if !created {
		existing, err := m.runs.Get(ctx, p.ID())
		if err != nil {
			return err
		}
		if existing.Archived() {
			return nil
		}
		run = existing
	}

	m.logger.Debug("run submitted", zap.String("payment_id", p.ID()))
	return m.launch(run, !created)
}

// Snapshot returns the state of the run for paymentID with its activity
// trail. A trail that cannot be read is served empty.
func (m *Manager) Snapshot(ctx context.Context, paymentID string) (*Snapshot, error) {
	run, err := m.runs.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	snapshot := run.ToSnapshot(m.IsActive(paymentID))

	activities, err := m.orchestrator.activities.List(ctx, paymentID)
	if err != nil {
		m.logger.Warn("failed to list activities", zap.String("payment_id", paymentID), zap.Error(err))
		return snapshot, nil
	}
	for _, a := range activities {
		snapshot.Activities = append(snapshot.Activities, a.Entry())
	}
	return snapshot, nil
}

// IsActive reports whether a run for paymentID is executing in this process.
func (m *Manager) IsActive(paymentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[paymentID]
	return ok
}

func (m *Manager) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Manager) launch(run *Run, resumed bool) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	if _, ok := m.active[run.PaymentID]; ok {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.active[run.PaymentID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.execute(ctx, cancel, run.clone(), resumed)
	return nil
}

// execute runs one confirmation run.
func (m *Manager) execute(ctx context.Context, cancel context.CancelFunc, run *Run, resumed bool) {
	defer m.wg.Done()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.active, run.PaymentID)
		m.mu.Unlock()
	}()

	log := m.logger.With(zap.String("payment_id", run.PaymentID))

	slot := &poolSlot{semaphore: m.semaphore}
	if err := slot.Acquire(ctx); err != nil {
		return
	}
	defer slot.Release()

	m.metrics.RecordRunStarted(resumed)
	defer m.metrics.RecordRunFinished()
	if resumed {
		log.Info("resuming run", zap.String("phase", string(run.Phase)))
	}

	backoff := m.retryBackoff
	for attempt := 1; ; attempt++ {
		err := m.orchestrator.Run(ctx, run, slot)
		if err == nil {
			log.Debug("run archived", zap.String("outcome", run.Outcome))
			return
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		if attempt >= m.retryAttempts {
			log.Error("run retries exhausted", zap.String("phase", string(run.Phase)), zap.Error(err))
			if err := m.orchestrator.Abandon(ctx, run); err != nil {
				log.Error("run left unfinished until restart", zap.String("phase", string(run.Phase)), zap.Error(err))
			}
			return
		}

		log.Warn("run stopped with error, retrying",
			zap.String("phase", string(run.Phase)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := m.orchestrator.sleep(ctx, slot, backoff); err != nil {
			return
		}
		backoff *= 2
		run = m.reload(ctx, run)
	}
}

// reload reads the persisted run, keeping the in-memory copy when the
// store cannot be read.
func (m *Manager) reload(ctx context.Context, run *Run) *Run {
	stored, err := m.runs.Get(ctx, run.PaymentID)
	if err != nil {
		m.logger.Warn("reload run", zap.String("payment_id", run.PaymentID), zap.Error(err))
		return run
	}
	return stored
}

// poolSlot is a Slot backed by the manager's semaphore.
type poolSlot struct {
	semaphore chan struct{}
	held      bool
}

func (s *poolSlot) Acquire(ctx context.Context) error {
	if s.held {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.semaphore <- struct{}{}:
		s.held = true
		return nil
	}
}

func (s *poolSlot) Release() {
	if !s.held {
		return
	}
	s.held = false
	<-s.semaphore
}
