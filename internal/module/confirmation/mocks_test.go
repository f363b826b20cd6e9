package confirmation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/payflow/server/internal/module/payment"
	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/payflow/server/internal/module/payment/entity"
	"github.com/payflow/server/internal/module/payment/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStoreUnavailable = errors.New("payment store unavailable")

// MockRunRepository implements RunRepository in memory.
type MockRunRepository struct {
	mu      sync.Mutex
	runs    map[string]*Run
	saveErr error
}

func NewMockRunRepository() *MockRunRepository {
	return &MockRunRepository{runs: make(map[string]*Run)}
}

func (m *MockRunRepository) Create(_ context.Context, run *Run) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.PaymentID]; ok {
		return false, nil
	}
	m.runs[run.PaymentID] = run.clone()
	return true, nil
}

func (m *MockRunRepository) Get(_ context.Context, paymentID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[paymentID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.clone(), nil
}

func (m *MockRunRepository) Save(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.runs[run.PaymentID] = run.clone()
	return nil
}

func (m *MockRunRepository) ListUnfinished(_ context.Context) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Run
	for _, run := range m.runs {
		if !run.Archived() {
			out = append(out, run.clone())
		}
	}
	return out, nil
}

func (m *MockRunRepository) RecordSignal(_ context.Context, signal domain.Signal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[signal.PaymentID]
	if !ok || run.Phase != PhaseAwaiting || run.HasSignal() {
		return false, nil
	}
	run.SignalStatus = string(signal.Status)
	run.SignalPaymentID = signal.PaymentID
	at := signal.ReceivedAt
	run.SignalReceivedAt = &at
	return true, nil
}

func (m *MockRunRepository) seed(run *Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.PaymentID] = run.clone()
}

func (m *MockRunRepository) snapshot(id string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		return run.clone()
	}
	return nil
}

// MockPaymentStore implements payment.Repository in memory.
type MockPaymentStore struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
	getErr   error

	// transitionFailures makes the next TransitionStatus calls fail.
	transitionFailures int
	transitionCalls    int
}

var _ payment.Repository = (*MockPaymentStore)(nil)

func NewMockPaymentStore() *MockPaymentStore {
	return &MockPaymentStore{payments: make(map[string]*domain.Payment)}
}

func (m *MockPaymentStore) Create(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID()] = copyPayment(p)
	return nil
}

func (m *MockPaymentStore) Get(_ context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return copyPayment(p), nil
}

func (m *MockPaymentStore) List(_ context.Context, _ *payment.Filter) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Payment
	for _, p := range m.payments {
		out = append(out, copyPayment(p))
	}
	return out, nil
}

func (m *MockPaymentStore) UpdateDetails(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID()] = copyPayment(p)
	return nil
}

func (m *MockPaymentStore) TransitionStatus(_ context.Context, id string, status domain.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCalls++
	if m.transitionFailures > 0 {
		m.transitionFailures--
		return false, errStoreUnavailable
	}
	p, ok := m.payments[id]
	if !ok {
		return false, payment.ErrPaymentNotFound
	}
	if p.Status() != domain.StatusPending {
		return false, nil
	}
	return true, p.TransitionTo(status)
}

func (m *MockPaymentStore) SetCheckoutReference(_ context.Context, id, referenceID, checkoutURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	return p.AttachCheckout(referenceID, checkoutURL)
}

func (m *MockPaymentStore) RecordWebhookEvent(context.Context, *entity.WebhookEventEntity) error {
	return nil
}

func (m *MockPaymentStore) failTransitions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionFailures = n
}

func (m *MockPaymentStore) transitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionCalls
}

func (m *MockPaymentStore) setStatus(id string, status domain.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.payments[id].TransitionTo(status)
}

func (m *MockPaymentStore) status(id string) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id].Status()
}

func (m *MockPaymentStore) reference(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id].GatewayReferenceID()
}

func copyPayment(p *domain.Payment) *domain.Payment {
	return domain.RestorePayment(p.ID(), p.CustomerRef(), p.Description(), p.Amount(), p.Currency(),
		p.Method(), p.Status(), p.GatewayReferenceID(), p.CheckoutURL(), p.CreatedAt(), p.UpdatedAt())
}

// MockGateway returns pref-1 unless an error is queued.
type MockGateway struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	requests []*gateway.PreferenceRequest
}

func (g *MockGateway) CreatePreference(_ context.Context, req *gateway.PreferenceRequest) (*gateway.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.requests = append(g.requests, req)
	if len(g.errs) > 0 {
		err := g.errs[0]
		if len(g.errs) > 1 {
			g.errs = g.errs[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	return &gateway.Preference{ReferenceID: "pref-1", CheckoutURL: "https://checkout.example/pref-1"}, nil
}

func (g *MockGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// MockLedger implements NotificationLedger in memory.
type MockLedger struct {
	mu      sync.Mutex
	records map[string]*NotificationRecord
}

func NewMockLedger() *MockLedger {
	return &MockLedger{records: make(map[string]*NotificationRecord)}
}

func (l *MockLedger) Claim(_ context.Context, record *NotificationRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[record.PaymentID]; ok {
		return false, nil
	}
	l.records[record.PaymentID] = record
	return true, nil
}

// MockDispatcher records dispatched notifications.
type MockDispatcher struct {
	mock.Mock
	mu   sync.Mutex
	sent []Notification
}

func newMockDispatcher(err error) *MockDispatcher {
	d := &MockDispatcher{}
	d.On("Dispatch", mock.Anything, mock.Anything).Return(err).Maybe()
	return d
}

func (d *MockDispatcher) Dispatch(ctx context.Context, n Notification) error {
	d.mu.Lock()
	d.sent = append(d.sent, n)
	d.mu.Unlock()
	return d.Called(ctx, n).Error(0)
}

func (d *MockDispatcher) notifications() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notification(nil), d.sent...)
}

// MockActivityLog keeps the activity trail in memory.
type MockActivityLog struct {
	mu      sync.Mutex
	entries []*Activity
	listErr error
}

func (l *MockActivityLog) Record(_ context.Context, paymentID, activity string, details map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, &Activity{
		ID:        uint(len(l.entries) + 1),
		PaymentID: paymentID,
		Activity:  activity,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (l *MockActivityLog) List(_ context.Context, paymentID string) ([]*Activity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []*Activity
	for _, e := range l.entries {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// countingReader wraps a StatusReader and lets a test act before each read.
// reads counts completed reads.
type countingReader struct {
	reader  StatusReader
	started atomic.Int32
	reads   atomic.Int32
	before  func(n int)
}

func (r *countingReader) Get(ctx context.Context, id string) (*domain.Payment, error) {
	n := int(r.started.Add(1))
	if r.before != nil {
		r.before(n)
	}
	p, err := r.reader.Get(ctx, id)
	r.reads.Add(1)
	return p, err
}

// freeSlot is a Slot that never blocks.
type freeSlot struct{}

func (freeSlot) Acquire(ctx context.Context) error { return ctx.Err() }
func (freeSlot) Release()                          {}

type harness struct {
	runs       *MockRunRepository
	store      *MockPaymentStore
	gateway    *MockGateway
	hub        *SignalHub
	ledger     *MockLedger
	dispatcher *MockDispatcher
	activities *MockActivityLog
	reader     *countingReader
	orch       *Orchestrator
	router     *SignalRouter
}

type harnessConfig struct {
	cfg         Config
	poller      PollerConfig
	gateway     *MockGateway
	dispatchErr error
}

func fastConfig() harnessConfig {
	return harnessConfig{
		cfg: Config{
			PreferenceTimeout:   time.Second,
			PreferenceAttempts:  2,
			PreferenceBackoff:   time.Millisecond,
			SignalTimeout:       time.Minute,
			PollTimeout:         time.Minute,
			NotificationTimeout: time.Second,
		},
		poller: PollerConfig{Interval: time.Millisecond, MaxAttempts: 120, ReadTimeout: time.Second},
	}
}

func newHarness(t *testing.T, hc harnessConfig) *harness {
	t.Helper()

	h := &harness{
		runs:       NewMockRunRepository(),
		store:      NewMockPaymentStore(),
		gateway:    hc.gateway,
		hub:        NewSignalHub(nil),
		ledger:     NewMockLedger(),
		dispatcher: newMockDispatcher(hc.dispatchErr),
		activities: &MockActivityLog{},
	}
	if h.gateway == nil {
		h.gateway = &MockGateway{}
	}
	h.reader = &countingReader{reader: h.store}
	poller := NewPoller(h.reader, hc.poller, nil, nil)
	h.orch = NewOrchestrator(Deps{
		Runs:       h.runs,
		Payments:   h.store,
		Gateway:    h.gateway,
		Hub:        h.hub,
		Poller:     poller,
		Ledger:     h.ledger,
		Dispatcher: h.dispatcher,
		Activities: h.activities,
	}, hc.cfg)
	h.router = NewSignalRouter(h.runs, h.hub, nil, nil, nil)
	return h
}

// addCardPayment stores a pending card payment and its CREATED run.
func (h *harness) addCardPayment(t *testing.T, id string) *Run {
	t.Helper()
	now := time.Now().UTC()
	p := domain.RestorePayment(id, "12345678901", "Order "+id, decimal.RequireFromString("100.50"), "BRL",
		domain.MethodCard, domain.StatusPending, "", "", now, now)
	require.NoError(t, h.store.Create(context.Background(), p))
	run := NewRun(p, now)
	h.runs.seed(run)
	return run
}

// waitPhase blocks until the persisted run reaches phase.
func (h *harness) waitPhase(t *testing.T, id string, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		run := h.runs.snapshot(id)
		return run != nil && run.Phase == phase
	}, 5*time.Second, time.Millisecond)
}

// waitRacing blocks until the run waits on its inbox and the poller has
// made its first read.
func (h *harness) waitRacing(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.hub.Waiting(id) && h.reader.reads.Load() >= 1
	}, 5*time.Second, time.Millisecond)
}
