package strategy

import (
	"fmt"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/config"
)

// Strategy is the capability interface every strategy instance
// implements. The runtime holds interface values only.
type Strategy interface {
	ID() string
	Symbols() []string
	// Interval is the evaluation schedule; zero means evaluate on
	// every tick.
	Interval() time.Duration
	// OnTick feeds the instance's private rolling buffer.
	OnTick(t *models.Tick)
	// Evaluate inspects the buffer for one symbol and produces at most
	// one signal. HOLD signals are advisory and never forwarded.
	Evaluate(symbol string) (*models.Signal, error)
}

// Constructor builds a strategy instance from its configuration.
type Constructor func(cfg config.StrategyConfig) (Strategy, error)

// Registry maps strategy type names to constructors. Built once at
// startup and passed by reference; there is no ambient global table.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under the given type name.
func (r *Registry) Register(name string, c Constructor) error {
	if _, exists := r.constructors[name]; exists {
		return fmt.Errorf("strategy type %q already registered", name)
	}
	r.constructors[name] = c
	return nil
}

// Build instantiates a strategy from config.
func (r *Registry) Build(cfg config.StrategyConfig) (Strategy, error) {
	c, ok := r.constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown strategy type %q", cfg.Type)
	}
	return c(cfg)
}

// DefaultRegistry returns a registry with the built-in strategy types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("rsi_reversion", NewRSIReversion)
	_ = r.Register("macd_trend", NewMACDTrend)
	return r
}

// base carries the state shared by the built-in strategies: identity,
// symbol set, and one private rolling buffer per symbol.
type base struct {
	id       string
	symbols  []string
	interval time.Duration

	// mu guards the buffers: ticks arrive from the dispatch loop while
	// evaluations run on pool workers.
	mu      sync.Mutex
	buffers map[string]*TickBuffer
}

func newBase(cfg config.StrategyConfig) base {
	buffers := make(map[string]*TickBuffer, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		buffers[s] = NewTickBuffer(cfg.BufferSize)
	}
	return base{
		id:       cfg.ID,
		symbols:  cfg.Symbols,
		interval: cfg.Interval,
		buffers:  buffers,
	}
}

func (b *base) ID() string              { return b.id }
func (b *base) Symbols() []string       { return b.symbols }
func (b *base) Interval() time.Duration { return b.interval }

func (b *base) OnTick(t *models.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[t.Symbol]; ok {
		buf.Push(*t)
	}
}

// snapshot copies the buffer series for symbol so evaluation can run
// without holding the lock.
func (b *base) snapshot(symbol string) (closes, highs, lows []float64, last models.Tick, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[symbol]
	if !ok {
		return nil, nil, nil, models.Tick{}, fmt.Errorf("strategy %s does not trade %s", b.id, symbol)
	}
	last, _ = buf.Last()
	return buf.Closes(), buf.Highs(), buf.Lows(), last, nil
}

// param reads a named parameter with a fallback default.
func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// hold emits an advisory non-actionable signal.
func (b *base) hold(symbol string, at time.Time) *models.Signal {
	return &models.Signal{
		StrategyID:  b.id,
		Symbol:      symbol,
		Direction:   models.DirectionHold,
		GeneratedAt: at,
	}
}
