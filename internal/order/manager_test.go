package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/repository"
	"TradePulse/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordTick(string)               {}
func (nopMetrics) RecordSignal(string, string)     {}
func (nopMetrics) RecordOrder(string)              {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordPendingOrders(int)         {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fakeBroker struct {
	mu         sync.Mutex
	authCalls  int
	authDelay  time.Duration
	placeCalls int
	placeFn    func(call int, o *models.Order) (*models.Placement, error)
}

func (b *fakeBroker) Authenticate(ctx context.Context, _ models.Credentials) (*models.Session, error) {
	b.mu.Lock()
	b.authCalls++
	b.mu.Unlock()
	if b.authDelay > 0 {
		select {
		case <-time.After(b.authDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &models.Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (b *fakeBroker) PlaceOrder(_ context.Context, o *models.Order) (*models.Placement, error) {
	b.mu.Lock()
	b.placeCalls++
	call := b.placeCalls
	fn := b.placeFn
	b.mu.Unlock()
	return fn(call, o)
}

func (b *fakeBroker) Logout(context.Context) error { return nil }

func (b *fakeBroker) placed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.placeCalls
}

func (b *fakeBroker) authed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authCalls
}

func testConfig() Config {
	return Config{
		RateLimit:       1000,
		RateBurst:       100,
		RetryMax:        1,
		BackoffMin:      time.Millisecond,
		BackoffMax:      2 * time.Millisecond,
		BreakerFailures: 3,
		BreakerCooldown: 50 * time.Millisecond,
		Timeout:         time.Second,
	}
}

func newTestManager(t *testing.T, cfg Config, broker drepo.Broker) (*Manager, drepo.OrderStore) {
	t.Helper()
	log := testLogger(t)
	store := repository.NewMemoryOrderStore()
	session := NewSessionManager(broker, models.Credentials{ClientID: "test"}, time.Hour, log)
	m := NewManager(cfg, broker, store, session, nopMetrics{}, log)
	return m, store
}

func submitReq(id string) Request {
	return Request{
		OrderID:    id,
		UserID:     "u1",
		Symbol:     "RELIANCE",
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Quantity:   10,
		LimitPrice: 100,
	}
}

func TestSubmitPlacesOrder(t *testing.T) {
	broker := &fakeBroker{placeFn: func(int, *models.Order) (*models.Placement, error) {
		return &models.Placement{BrokerOrderID: "B-1", Status: models.StatusPlaced}, nil
	}}
	m, store := newTestManager(t, testConfig(), broker)

	o, err := m.Submit(context.Background(), submitReq("o-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != models.StatusPlaced {
		t.Fatalf("status = %s, want PLACED", o.Status)
	}
	if o.BrokerOrderID != "B-1" {
		t.Fatalf("broker order id = %q", o.BrokerOrderID)
	}

	persisted, err := store.Get(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if persisted.Status != models.StatusPlaced {
		t.Fatalf("persisted status = %s, want PLACED", persisted.Status)
	}
}

func TestSubmitDuplicateID(t *testing.T) {
	broker := &fakeBroker{placeFn: func(int, *models.Order) (*models.Placement, error) {
		return &models.Placement{BrokerOrderID: "B-1", Status: models.StatusPlaced}, nil
	}}
	m, _ := newTestManager(t, testConfig(), broker)

	if _, err := m.Submit(context.Background(), submitReq("dup")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := m.Submit(context.Background(), submitReq("dup"))
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("err = %v, want ErrDuplicateOrder", err)
	}
	if got := broker.placed(); got != 1 {
		t.Fatalf("broker calls = %d, want 1", got)
	}
}

func TestBusinessRejectionNotRetried(t *testing.T) {
	broker := &fakeBroker{placeFn: func(int, *models.Order) (*models.Placement, error) {
		return nil, fmt.Errorf("%w: insufficient funds", drepo.ErrBrokerDeclined)
	}}
	cfg := testConfig()
	cfg.RetryMax = 5
	m, _ := newTestManager(t, cfg, broker)

	o, err := m.Submit(context.Background(), submitReq("o-rej"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != models.StatusRejected {
		t.Fatalf("status = %s, want REJECTED", o.Status)
	}
	if o.Error == "" {
		t.Fatal("rejected order must carry a reason")
	}
	if got := broker.placed(); got != 1 {
		t.Fatalf("broker calls = %d, want 1 (no retry on decline)", got)
	}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	var healthy bool
	var mu sync.Mutex
	broker := &fakeBroker{placeFn: func(int, *models.Order) (*models.Placement, error) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			return nil, errors.New("connection reset")
		}
		return &models.Placement{BrokerOrderID: "B-ok", Status: models.StatusPlaced}, nil
	}}
	cfg := testConfig()
	cfg.Timeout = 30 * time.Millisecond // shorter than the breaker cooldown
	m, _ := newTestManager(t, cfg, broker)

	// Three consecutive transient failures trip the circuit.
	for i := 0; i < cfg.BreakerFailures; i++ {
		o, err := m.Submit(context.Background(), submitReq(fmt.Sprintf("fail-%d", i)))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if o.Status != models.StatusRejected {
			t.Fatalf("submit %d status = %s, want REJECTED", i, o.Status)
		}
	}
	before := broker.placed()

	// While the circuit is open the broker is never called; the order
	// waits for a probe window and rejects only at its own deadline.
	o, err := m.Submit(context.Background(), submitReq("while-open"))
	if err != nil {
		t.Fatalf("submit while open: %v", err)
	}
	if o.Status != models.StatusRejected {
		t.Fatalf("status = %s, want REJECTED while open", o.Status)
	}
	if o.Error != "timeout" {
		t.Fatalf("reason = %q, want timeout (deadline, not breaker state)", o.Error)
	}
	if got := broker.placed(); got != before {
		t.Fatalf("broker called %d times while circuit open, want 0", got-before)
	}

	// After the cooldown a half-open probe goes through and closes it.
	mu.Lock()
	healthy = true
	mu.Unlock()
	time.Sleep(cfg.BreakerCooldown + 10*time.Millisecond)

	o, err = m.Submit(context.Background(), submitReq("after-cooldown"))
	if err != nil {
		t.Fatalf("submit after cooldown: %v", err)
	}
	if o.Status != models.StatusPlaced {
		t.Fatalf("status = %s, want PLACED after recovery", o.Status)
	}
	if got := broker.placed(); got != before+1 {
		t.Fatalf("broker calls = %d, want %d", got, before+1)
	}
}

func TestOpenCircuitWaitsWithinDeadline(t *testing.T) {
	var healthy bool
	var mu sync.Mutex
	broker := &fakeBroker{placeFn: func(int, *models.Order) (*models.Placement, error) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			return nil, errors.New("connection reset")
		}
		return &models.Placement{BrokerOrderID: "B-probe", Status: models.StatusPlaced}, nil
	}}
	cfg := testConfig() // RetryMax 1, cooldown 50ms, order deadline 1s
	m, _ := newTestManager(t, cfg, broker)

	for i := 0; i < cfg.BreakerFailures; i++ {
		if _, err := m.Submit(context.Background(), submitReq(fmt.Sprintf("trip-%d", i))); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	// The broker recovers while the circuit is still open. Fast-fails
	// from the open circuit must not consume the order's attempts: the
	// submit outlives the cooldown and succeeds on the half-open probe.
	mu.Lock()
	healthy = true
	mu.Unlock()

	o, err := m.Submit(context.Background(), submitReq("probe-win"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != models.StatusPlaced {
		t.Fatalf("status = %s, want PLACED via half-open probe", o.Status)
	}
}

func TestDeadlineRejectsWithTimeout(t *testing.T) {
	broker := &fakeBroker{placeFn: func(int, *models.Order) (*models.Placement, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, context.DeadlineExceeded
	}}
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	m, _ := newTestManager(t, cfg, broker)

	o, err := m.Submit(context.Background(), submitReq("o-slow"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != models.StatusRejected {
		t.Fatalf("status = %s, want REJECTED", o.Status)
	}
	if o.Error != "timeout" {
		t.Fatalf("reason = %q, want timeout", o.Error)
	}
}

func TestSessionRenewalOnExpiredToken(t *testing.T) {
	broker := &fakeBroker{}
	broker.placeFn = func(call int, _ *models.Order) (*models.Placement, error) {
		if call == 1 {
			return nil, drepo.ErrSessionExpired
		}
		return &models.Placement{BrokerOrderID: "B-2", Status: models.StatusPlaced}, nil
	}
	cfg := testConfig()
	cfg.RetryMax = 3
	m, _ := newTestManager(t, cfg, broker)

	o, err := m.Submit(context.Background(), submitReq("o-renew"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != models.StatusPlaced {
		t.Fatalf("status = %s, want PLACED after renewal", o.Status)
	}
	if got := broker.authed(); got != 2 {
		t.Fatalf("authenticate calls = %d, want 2 (initial + renewal)", got)
	}
	if got := broker.placed(); got != 2 {
		t.Fatalf("place calls = %d, want 2", got)
	}
}

func TestEnsureCollapsesConcurrentRenewals(t *testing.T) {
	broker := &fakeBroker{authDelay: 20 * time.Millisecond}
	log := testLogger(t)
	sm := NewSessionManager(broker, models.Credentials{ClientID: "c"}, time.Hour, log)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sm.Ensure(context.Background()); err != nil {
				t.Errorf("ensure: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := broker.authed(); got != 1 {
		t.Fatalf("authenticate calls = %d, want 1", got)
	}
}

func TestSweepRejectsExpiredOrders(t *testing.T) {
	broker := &fakeBroker{placeFn: func(int, *models.Order) (*models.Placement, error) {
		return &models.Placement{BrokerOrderID: "B-1", Status: models.StatusPlaced}, nil
	}}
	now := time.Unix(1_700_000_000, 0)
	log := testLogger(t)
	store := repository.NewMemoryOrderStore()
	session := NewSessionManager(broker, models.Credentials{}, time.Hour, log)
	cfg := testConfig()
	cfg.Timeout = 2 * time.Second
	m := NewManager(cfg, broker, store, session, nopMetrics{}, log,
		WithClock(func() time.Time { return now }))

	if _, err := m.Submit(context.Background(), submitReq("o-exp")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	now = now.Add(3 * time.Second)
	m.sweep(context.Background())

	o, err := store.Get(context.Background(), "o-exp")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != models.StatusRejected || o.Error != "timeout" {
		t.Fatalf("status = %s reason = %q, want REJECTED timeout", o.Status, o.Error)
	}
}

func TestRejectedOrderStaysRejected(t *testing.T) {
	o := &models.Order{OrderID: "x", Status: models.StatusRejected, Error: "timeout"}
	if err := o.Transition(models.StatusPlaced, time.Now()); !errors.Is(err, models.ErrTerminalState) {
		t.Fatalf("err = %v, want ErrTerminalState", err)
	}
}
