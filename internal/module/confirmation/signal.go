package confirmation

import (
	"context"
	"fmt"
	"sync"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/payflow/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// SignalHub routes confirmation signals to the runs waiting in this process.
// Delivery is by exact payment id and never blocks the sender.
type SignalHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]chan domain.Signal
	nextID      uint64
	logger      *zap.Logger
}

// NewSignalHub creates a new signal hub.
func NewSignalHub(logger *zap.Logger) *SignalHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalHub{
		subscribers: make(map[string]map[uint64]chan domain.Signal),
		logger:      logger.Named("signal-hub"),
	}
}

// Subscribe registers an inbox for paymentID. The inbox holds one signal.
// The returned func unsubscribes.
func (h *SignalHub) Subscribe(paymentID string) (<-chan domain.Signal, func()) {
	ch := make(chan domain.Signal, 1)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subscribers[paymentID] == nil {
		h.subscribers[paymentID] = make(map[uint64]chan domain.Signal)
	}
	h.subscribers[paymentID][id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers[paymentID], id)
		if len(h.subscribers[paymentID]) == 0 {
			delete(h.subscribers, paymentID)
		}
	}
}

// Deliver hands signal to every inbox registered for its payment id. It
// reports how many inboxes took it; full inboxes are skipped.
func (h *SignalHub) Deliver(signal domain.Signal) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, ch := range h.subscribers[signal.PaymentID] {
		select {
		case ch <- signal:
			delivered++
		default:
		}
	}
	if delivered == 0 {
		h.logger.Debug("no waiting run for signal", zap.String("payment_id", signal.PaymentID))
	}
	return delivered
}

// Waiting reports whether any run in this process waits on paymentID.
func (h *SignalHub) Waiting(paymentID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[paymentID]) > 0
}

// SignalBroadcaster fans signals out to other server instances.
type SignalBroadcaster interface {
	Broadcast(ctx context.Context, signal domain.Signal) error
}

// SignalRouter records signals on their runs and wakes the waiting run.
// It implements the payment module's SignalPublisher.
type SignalRouter struct {
	runs        RunRepository
	hub         *SignalHub
	broadcaster SignalBroadcaster
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewSignalRouter creates a new signal router. broadcaster may be nil.
func NewSignalRouter(runs RunRepository, hub *SignalHub, broadcaster SignalBroadcaster, m *metrics.Metrics, logger *zap.Logger) *SignalRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalRouter{
		runs:        runs,
		hub:         hub,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger.Named("signal-router"),
	}
}

// Publish records signal on an awaiting run. Signals for runs that are not
// awaiting confirmation, or that already hold a signal, are discarded.
func (r *SignalRouter) Publish(ctx context.Context, signal domain.Signal) error {
	if !signal.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidStatus, signal.Status)
	}

	accepted, err := r.runs.RecordSignal(ctx, signal)
	if err != nil {
		return err
	}
	r.metrics.RecordSignal(accepted)
	if !accepted {
		r.logger.Info("stale or duplicate signal discarded",
			zap.String("payment_id", signal.PaymentID),
			zap.String("status", string(signal.Status)))
		return nil
	}

	r.hub.Deliver(signal)
	if r.broadcaster != nil {
		if err := r.broadcaster.Broadcast(ctx, signal); err != nil {
			// The run also finds the signal on its row or through the store.
			r.logger.Warn("failed to broadcast signal",
				zap.String("payment_id", signal.PaymentID),
				zap.Error(err))
		}
	}
	return nil
}
