package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Group is the engine's consumer group on the tick bus. A separate
// group keeps the engine's cursor independent of the strategy runtime.
const Group = "matching-engine"

// bookEntry is a resting order awaiting a crossing tick.
type bookEntry struct {
	id       string
	symbol   string
	side     models.OrderSide
	typ      models.OrderType
	limit    float64
	qty      int64
	deadline time.Time
}

// Engine simulates order matching against the live tick flow. It
// implements the broker interface, so paper and live modes are swapped
// by wiring, not by code. Fill model: an order fills in full at the
// first crossing quote; liquidity is assumed unlimited.
type Engine struct {
	logger  *logger.Logger
	metrics repository.Metrics
	ticks   repository.TickBus
	store   repository.OrderStore
	timeout time.Duration // deadline applied when the order carries none
	sweep   time.Duration
	clock   func() time.Time

	mu         sync.Mutex
	book       map[string]map[string]*bookEntry // symbol -> order id -> entry
	subscribed map[string]bool
}

// Option configures the Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithSweepInterval overrides the deadline sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweep = d }
}

// NewEngine creates a matching engine over the tick bus and order store.
func NewEngine(ticks repository.TickBus, store repository.OrderStore, timeout time.Duration, metrics repository.Metrics, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:     log.With("matching-engine"),
		metrics:    metrics,
		ticks:      ticks,
		store:      store,
		timeout:    timeout,
		sweep:      time.Second,
		clock:      time.Now,
		book:       make(map[string]map[string]*bookEntry),
		subscribed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authenticate satisfies the broker interface. Paper sessions never
// hit a real auth endpoint.
func (e *Engine) Authenticate(_ context.Context, _ models.Credentials) (*models.Session, error) {
	return &models.Session{
		Token:     "paper-" + uuid.NewString(),
		ExpiresAt: e.clock().Add(24 * time.Hour),
	}, nil
}

// PlaceOrder accepts the order onto the book and subscribes the engine
// to the symbol's tick stream on first use.
func (e *Engine) PlaceOrder(ctx context.Context, o *models.Order) (*models.Placement, error) {
	if o.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", repository.ErrBrokerDeclined)
	}
	if o.Type == models.TypeLimit && o.LimitPrice <= 0 {
		return nil, fmt.Errorf("%w: limit price must be positive", repository.ErrBrokerDeclined)
	}

	deadline := o.TimeoutAt
	if deadline.IsZero() {
		deadline = e.clock().Add(e.timeout)
	}
	entry := &bookEntry{
		id:       o.OrderID,
		symbol:   o.Symbol,
		side:     o.Side,
		typ:      o.Type,
		limit:    o.LimitPrice,
		qty:      o.Quantity,
		deadline: deadline,
	}

	e.mu.Lock()
	if e.book[o.Symbol] == nil {
		e.book[o.Symbol] = make(map[string]*bookEntry)
	}
	e.book[o.Symbol][o.OrderID] = entry
	needSub := !e.subscribed[o.Symbol]
	if needSub {
		e.subscribed[o.Symbol] = true
	}
	e.mu.Unlock()

	if needSub {
		if err := e.ticks.AddSymbol(ctx, Group, o.Symbol); err != nil {
			e.logger.Error("subscribe symbol", logger.String("symbol", o.Symbol), logger.Error(err))
		}
	}

	return &models.Placement{
		BrokerOrderID: "SIM-" + uuid.NewString(),
		Status:        models.StatusPlaced,
	}, nil
}

// Logout satisfies the broker interface.
func (e *Engine) Logout(context.Context) error { return nil }

// Run consumes ticks and sweeps deadlines until ctx is done. Symbols
// are attached lazily by PlaceOrder.
func (e *Engine) Run(ctx context.Context) error {
	msgs, err := e.ticks.Subscribe(ctx, Group, nil)
	if err != nil {
		return fmt.Errorf("subscribe tick bus: %w", err)
	}

	ticker := time.NewTicker(e.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sweepDeadlines(ctx)
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			e.onTick(ctx, msg)
		}
	}
}

func (e *Engine) onTick(ctx context.Context, msg repository.TickMessage) {
	tick := msg.Tick
	e.mu.Lock()
	entries := make([]*bookEntry, 0, len(e.book[tick.Symbol]))
	for _, entry := range e.book[tick.Symbol] {
		entries = append(entries, entry)
	}
	e.mu.Unlock()

	for _, entry := range entries {
		price, crossed := crossPrice(entry, tick)
		if !crossed {
			continue
		}
		e.fill(ctx, entry, price, tick.SourceTime)
	}

	if msg.Ack != nil {
		if err := msg.Ack(ctx); err != nil {
			e.logger.Error("ack tick", logger.String("symbol", tick.Symbol), logger.Error(err))
		}
	}
}

// crossPrice reports the execution price if the quote crosses the
// order. Buys lift the ask, sells hit the bid.
func crossPrice(entry *bookEntry, tick *models.Tick) (float64, bool) {
	switch entry.side {
	case models.SideBuy:
		if tick.Ask <= 0 {
			return 0, false
		}
		if entry.typ == models.TypeLimit && tick.Ask > entry.limit {
			return 0, false
		}
		return tick.Ask, true
	case models.SideSell:
		if tick.Bid <= 0 {
			return 0, false
		}
		if entry.typ == models.TypeLimit && tick.Bid < entry.limit {
			return 0, false
		}
		return tick.Bid, true
	}
	return 0, false
}

// fill executes an entry against the persisted order at the crossing
// tick's price and source time. The store is the authority: an order
// still PENDING there has not finished placement, so it rests until a
// later tick.
func (e *Engine) fill(ctx context.Context, entry *bookEntry, price float64, at time.Time) {
	latest, err := e.store.Get(ctx, entry.id)
	if err != nil {
		e.logger.Error("load order for fill", logger.String("order_id", entry.id), logger.Error(err))
		return
	}
	if latest.Status.Terminal() {
		e.remove(entry)
		return
	}
	if latest.Status == models.StatusPending {
		return
	}

	remaining := latest.Quantity - latest.FilledQty
	if err := latest.Fill(remaining, price, at); err != nil {
		e.logger.Error("fill order", logger.String("order_id", entry.id), logger.Error(err))
		e.remove(entry)
		return
	}
	if err := e.store.Update(ctx, latest); err != nil {
		e.logger.Error("persist fill", logger.String("order_id", entry.id), logger.Error(err))
		return
	}
	e.remove(entry)
	e.metrics.RecordOrder(string(latest.Status))
	e.logger.Info("order filled",
		logger.String("order_id", entry.id),
		logger.String("symbol", entry.symbol),
		logger.Float64("price", price),
		logger.Int64("quantity", remaining))
}

// sweepDeadlines rejects resting orders past their deadline and drops
// symbols with an empty book.
func (e *Engine) sweepDeadlines(ctx context.Context) {
	now := e.clock()

	e.mu.Lock()
	var expired []*bookEntry
	for _, orders := range e.book {
		for _, entry := range orders {
			if now.After(entry.deadline) {
				expired = append(expired, entry)
			}
		}
	}
	e.mu.Unlock()

	for _, entry := range expired {
		latest, err := e.store.Get(ctx, entry.id)
		if err != nil {
			e.logger.Error("load expired order", logger.String("order_id", entry.id), logger.Error(err))
			continue
		}
		if !latest.Status.Terminal() {
			if err := latest.Reject("timeout", now); err == nil {
				if err := e.store.Update(ctx, latest); err != nil {
					e.logger.Error("persist timeout", logger.String("order_id", entry.id), logger.Error(err))
					continue
				}
				e.metrics.RecordOrder(string(latest.Status))
				e.logger.Warn("order timed out",
					logger.String("order_id", entry.id),
					logger.String("symbol", entry.symbol))
			}
		}
		e.remove(entry)
	}
}

// remove drops an entry from the book and unsubscribes symbols no
// order is resting on.
func (e *Engine) remove(entry *bookEntry) {
	e.mu.Lock()
	delete(e.book[entry.symbol], entry.id)
	empty := len(e.book[entry.symbol]) == 0
	if empty {
		delete(e.book, entry.symbol)
		delete(e.subscribed, entry.symbol)
	}
	e.mu.Unlock()

	if empty {
		e.ticks.RemoveSymbol(Group, entry.symbol)
	}
}

// Resting reports how many orders are on the book for symbol.
func (e *Engine) Resting(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.book[symbol])
}
