package confirmation

import (
	"context"
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/payflow/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// StatusReader reads the current payment status.
type StatusReader interface {
	Get(ctx context.Context, id string) (*domain.Payment, error)
}

// PollerConfig bounds a poll loop.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	ReadTimeout time.Duration
}

// PollResult is the outcome of one poll loop.
type PollResult struct {
	Status     domain.Status
	Attempts   int
	ReadErrors int
	// Exhausted is set when the deadline or attempt budget ran out; Status
	// is then FAILED.
	Exhausted bool
	// Cancelled is set when ctx ended first; Status is empty.
	Cancelled bool
}

// OnlyReadErrors reports whether every attempt failed to read the store.
func (r PollResult) OnlyReadErrors() bool {
	return r.Exhausted && r.Attempts > 0 && r.ReadErrors == r.Attempts
}

// Poller re-reads a payment's status until it is terminal.
type Poller struct {
	reader  StatusReader
	cfg     PollerConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewPoller creates a new poller.
func NewPoller(reader StatusReader, cfg PollerConfig, m *metrics.Metrics, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 120
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		reader:  reader,
		cfg:     cfg,
		metrics: m,
		logger:  logger.Named("poller"),
		now:     time.Now,
	}
}

// Poll reads the status of paymentID immediately and then once per interval
// until it is PAID or FAILED, the deadline passes or the attempt budget is
// spent. Read errors count as attempts.
func (p *Poller) Poll(ctx context.Context, paymentID string, deadline time.Time) PollResult {
	var res PollResult
	log := p.logger.With(zap.String("payment_id", paymentID))

	for {
		res.Attempts++
		status, err := p.read(ctx, paymentID)
		switch {
		case err != nil && ctx.Err() != nil:
			res.Cancelled = true
			return res
		case err != nil:
			res.ReadErrors++
			p.metrics.RecordPollAttempt("error")
			log.Warn("status read failed",
				zap.Int("attempt", res.Attempts),
				zap.Error(err))
		case status.IsTerminal():
			p.metrics.RecordPollAttempt("terminal")
			res.Status = status
			return res
		default:
			p.metrics.RecordPollAttempt("pending")
		}

		remaining := deadline.Sub(p.now())
		if res.Attempts >= p.cfg.MaxAttempts || remaining <= 0 {
			log.Info("poll budget exhausted",
				zap.Int("attempts", res.Attempts),
				zap.Int("read_errors", res.ReadErrors))
			res.Status = domain.StatusFailed
			res.Exhausted = true
			return res
		}

		wait := p.cfg.Interval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Cancelled = true
			return res
		case <-timer.C:
		}
	}
}

func (p *Poller) read(ctx context.Context, paymentID string) (domain.Status, error) {
	readCtx, cancel := context.WithTimeout(ctx, p.cfg.ReadTimeout)
	defer cancel()

	payment, err := p.reader.Get(readCtx, paymentID)
	if err != nil {
		return "", err
	}
	return payment.Status(), nil
}
