package matching

import (
	"context"
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

type fakeTickBus struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (b *fakeTickBus) Publish(context.Context, *models.Tick) error { return nil }

func (b *fakeTickBus) Subscribe(context.Context, string, []string) (<-chan drepo.TickMessage, error) {
	return make(chan drepo.TickMessage), nil
}

func (b *fakeTickBus) AddSymbol(_ context.Context, _ string, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added = append(b.added, symbol)
	return nil
}

func (b *fakeTickBus) RemoveSymbol(_ string, symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, symbol)
}

func (b *fakeTickBus) Close() error { return nil }

func (b *fakeTickBus) addedSymbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.added...)
}

func (b *fakeTickBus) removedSymbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.removed...)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fixture struct {
	engine *Engine
	bus    *fakeTickBus
	store  drepo.OrderStore
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bus:   &fakeTickBus{},
		store: repository.NewMemoryOrderStore(),
		now:   time.Unix(1_700_000_000, 0),
	}
	f.engine = NewEngine(f.bus, f.store, 30*time.Second, nopMetrics{}, testLogger(t),
		WithClock(func() time.Time { return f.now }))
	return f
}

// placeOrder mirrors the order manager's sequence: persist PENDING,
// hand the order to the broker, persist PLACED.
func (f *fixture) placeOrder(t *testing.T, o *models.Order) {
	t.Helper()
	ctx := context.Background()
	o.Status = models.StatusPending
	o.CreatedAt = f.now
	o.UpdatedAt = f.now
	if o.TimeoutAt.IsZero() {
		o.TimeoutAt = f.now.Add(30 * time.Second)
	}
	if err := f.store.Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}
	pl, err := f.engine.PlaceOrder(ctx, o)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	o.BrokerOrderID = pl.BrokerOrderID
	if err := o.Transition(models.StatusPlaced, f.now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := f.store.Update(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func (f *fixture) tick(symbol string, bid, ask float64) {
	f.engine.onTick(context.Background(), drepo.TickMessage{
		Tick: &models.Tick{
			Symbol:     symbol,
			LastPrice:  (bid + ask) / 2,
			Bid:        bid,
			Ask:        ask,
			SourceTime: f.now,
		},
	})
}

func buyLimit(id, symbol string, qty int64, limit float64) *models.Order {
	return &models.Order{
		OrderID:    id,
		UserID:     "u1",
		Symbol:     symbol,
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Quantity:   qty,
		LimitPrice: limit,
	}
}

func TestBuyFillsAtFirstCrossingAsk(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, buyLimit("b-1", "RELIANCE", 10, 100))

	// Asks above the limit rest; the first ask at or below it fills.
	f.tick("RELIANCE", 104, 105)
	if got, _ := f.store.Get(context.Background(), "b-1"); got.Status != models.StatusPlaced {
		t.Fatalf("status after non-crossing tick = %s, want PLACED", got.Status)
	}

	f.tick("RELIANCE", 99, 100)
	got, err := f.store.Get(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusFilled {
		t.Fatalf("status = %s, want FILLED", got.Status)
	}
	if got.FilledPrice != 100 {
		t.Fatalf("filled price = %v, want 100 (crossing ask, not later 98)", got.FilledPrice)
	}
	if got.FilledQty != 10 {
		t.Fatalf("filled qty = %d, want 10", got.FilledQty)
	}

	// A better ask later must not change the settled fill.
	f.tick("RELIANCE", 97, 98)
	got, _ = f.store.Get(context.Background(), "b-1")
	if got.FilledPrice != 100 {
		t.Fatalf("filled price changed to %v after fill", got.FilledPrice)
	}
}

func TestFillCarriesTickSourceTime(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, buyLimit("ts-1", "RELIANCE", 10, 100))

	// The quote was stamped upstream, before the engine's clock.
	src := f.now.Add(-250 * time.Millisecond)
	f.engine.onTick(context.Background(), drepo.TickMessage{
		Tick: &models.Tick{Symbol: "RELIANCE", LastPrice: 99.5, Bid: 99, Ask: 100, SourceTime: src},
	})

	got, err := f.store.Get(context.Background(), "ts-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusFilled {
		t.Fatalf("status = %s, want FILLED", got.Status)
	}
	if !got.UpdatedAt.Equal(src) {
		t.Fatalf("fill time = %v, want tick source time %v", got.UpdatedAt, src)
	}
}

func TestSellFillsAtCrossingBid(t *testing.T) {
	f := newFixture(t)
	o := &models.Order{
		OrderID:    "s-1",
		UserID:     "u1",
		Symbol:     "TCS",
		Side:       models.SideSell,
		Type:       models.TypeLimit,
		Quantity:   5,
		LimitPrice: 200,
	}
	f.placeOrder(t, o)

	f.tick("TCS", 199, 201) // bid below limit
	f.tick("TCS", 202, 203)

	got, err := f.store.Get(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusFilled || got.FilledPrice != 202 {
		t.Fatalf("status = %s price = %v, want FILLED at 202", got.Status, got.FilledPrice)
	}
}

func TestPendingOrderRestsUntilPlaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := buyLimit("p-1", "INFY", 10, 100)
	o.Status = models.StatusPending
	o.TimeoutAt = f.now.Add(30 * time.Second)
	if err := f.store.Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceOrder(ctx, o); err != nil {
		t.Fatalf("place: %v", err)
	}

	// Crossing tick while still PENDING in the store: no fill.
	f.tick("INFY", 99, 100)
	got, _ := f.store.Get(ctx, "p-1")
	if got.Status != models.StatusPending {
		t.Fatalf("status = %s, want PENDING untouched", got.Status)
	}
	if f.engine.Resting("INFY") != 1 {
		t.Fatal("order must keep resting until placement is persisted")
	}

	// Once PLACED lands, the next crossing tick fills.
	if err := o.Transition(models.StatusPlaced, f.now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := f.store.Update(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}
	f.tick("INFY", 99, 100)
	got, _ = f.store.Get(ctx, "p-1")
	if got.Status != models.StatusFilled {
		t.Fatalf("status = %s, want FILLED", got.Status)
	}
}

func TestDeadlineSweepRejectsWithTimeout(t *testing.T) {
	f := newFixture(t)
	o := buyLimit("t-1", "HDFC", 10, 100)
	o.TimeoutAt = f.now.Add(2 * time.Second)
	f.placeOrder(t, o)

	// No crossing tick arrives; advance past the deadline.
	f.now = f.now.Add(3 * time.Second)
	f.engine.sweepDeadlines(context.Background())

	got, err := f.store.Get(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusRejected || got.Error != "timeout" {
		t.Fatalf("status = %s reason = %q, want REJECTED timeout", got.Status, got.Error)
	}
	if f.engine.Resting("HDFC") != 0 {
		t.Fatal("expired order must leave the book")
	}
	if got := f.bus.removedSymbols(); len(got) != 1 || got[0] != "HDFC" {
		t.Fatalf("removed symbols = %v, want [HDFC]", got)
	}
}

func TestLazySymbolSubscription(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, buyLimit("l-1", "RELIANCE", 10, 100))
	f.placeOrder(t, buyLimit("l-2", "RELIANCE", 5, 101))
	f.placeOrder(t, buyLimit("l-3", "TCS", 5, 200))

	added := dedupe(f.bus.addedSymbols())
	if len(added) != 2 {
		t.Fatalf("subscribed symbols = %v, want one per distinct symbol", added)
	}
	if got := len(f.bus.addedSymbols()); got != 2 {
		t.Fatalf("AddSymbol calls = %d, want 2 (one per symbol, not per order)", got)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func TestRejectsInvalidQuantity(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.PlaceOrder(context.Background(), buyLimit("q-1", "RELIANCE", 0, 100))
	if err == nil {
		t.Fatal("expected decline for zero quantity")
	}
}
