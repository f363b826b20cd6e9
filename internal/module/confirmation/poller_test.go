package confirmation

import (
	"context"
	"testing"
	"time"

	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPollHarness(t *testing.T, cfg PollerConfig) (*Poller, *MockPaymentStore, *countingReader) {
	t.Helper()
	h := newHarness(t, fastConfig())
	h.addCardPayment(t, "p1")
	return NewPoller(h.reader, cfg, nil, nil), h.store, h.reader
}

func TestPoller_Poll(t *testing.T) {
	deadline := func() time.Time { return time.Now().Add(time.Minute) }

	t.Run("returns terminal status on first read", func(t *testing.T) {
		p, store, reader := newPollHarness(t, PollerConfig{Interval: time.Hour, MaxAttempts: 3})
		store.setStatus("p1", domain.StatusPaid)

		res := p.Poll(context.Background(), "p1", deadline())
		assert.Equal(t, domain.StatusPaid, res.Status)
		assert.Equal(t, 1, res.Attempts)
		assert.False(t, res.Exhausted)
		assert.Equal(t, int32(1), reader.reads.Load())
	})

	t.Run("keeps polling through read errors", func(t *testing.T) {
		p, store, reader := newPollHarness(t, PollerConfig{Interval: time.Millisecond, MaxAttempts: 10})
		reader.reader = &flakyReader{store: store, failures: 3}
		reader.before = func(n int) {
			if n == 5 {
				store.setStatus("p1", domain.StatusFailed)
			}
		}

		res := p.Poll(context.Background(), "p1", deadline())
		assert.Equal(t, domain.StatusFailed, res.Status)
		assert.False(t, res.Exhausted)
		assert.Equal(t, 5, res.Attempts)
		assert.Equal(t, 3, res.ReadErrors)
	})

	t.Run("attempt budget exhausted", func(t *testing.T) {
		p, _, reader := newPollHarness(t, PollerConfig{Interval: time.Millisecond, MaxAttempts: 4})

		res := p.Poll(context.Background(), "p1", deadline())
		assert.True(t, res.Exhausted)
		assert.Equal(t, domain.StatusFailed, res.Status)
		assert.Equal(t, 4, res.Attempts)
		assert.False(t, res.OnlyReadErrors())
		assert.Equal(t, int32(4), reader.reads.Load())
	})

	t.Run("deadline exhausted", func(t *testing.T) {
		p, _, _ := newPollHarness(t, PollerConfig{Interval: 5 * time.Millisecond, MaxAttempts: 1000})

		start := time.Now()
		res := p.Poll(context.Background(), "p1", start.Add(30*time.Millisecond))
		assert.True(t, res.Exhausted)
		assert.Less(t, res.Attempts, 1000)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("past deadline still reads once", func(t *testing.T) {
		p, store, _ := newPollHarness(t, PollerConfig{Interval: time.Millisecond, MaxAttempts: 10})
		store.setStatus("p1", domain.StatusPaid)

		res := p.Poll(context.Background(), "p1", time.Now().Add(-time.Second))
		assert.Equal(t, domain.StatusPaid, res.Status)
	})

	t.Run("only read errors", func(t *testing.T) {
		p, _, reader := newPollHarness(t, PollerConfig{Interval: time.Millisecond, MaxAttempts: 3})
		reader.reader = failingReader{}

		res := p.Poll(context.Background(), "p1", deadline())
		assert.True(t, res.OnlyReadErrors())
		assert.Equal(t, 3, res.ReadErrors)
	})

	t.Run("cancelled", func(t *testing.T) {
		p, _, _ := newPollHarness(t, PollerConfig{Interval: time.Hour, MaxAttempts: 3})
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan PollResult, 1)
		go func() { done <- p.Poll(ctx, "p1", deadline()) }()
		cancel()

		select {
		case res := <-done:
			assert.True(t, res.Cancelled)
			assert.Empty(t, res.Status)
		case <-time.After(5 * time.Second):
			t.Fatal("poll did not stop")
		}
	})
}

type flakyReader struct {
	store    *MockPaymentStore
	failures int
	calls    int
}

func (r *flakyReader) Get(ctx context.Context, id string) (*domain.Payment, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, assert.AnError
	}
	return r.store.Get(ctx, id)
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(nil, PollerConfig{}, nil, nil)
	require.NotNil(t, p)
	assert.Equal(t, 5*time.Second, p.cfg.Interval)
	assert.Equal(t, 120, p.cfg.MaxAttempts)
}
