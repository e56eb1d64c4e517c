package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

const consumerGroup = "strategy-runtime"

// Runtime hosts strategy instances, feeds them ticks from its own
// consumer group, evaluates them per tick or on their configured
// interval, and publishes the resulting signals.
type Runtime struct {
	logger   *logger.Logger
	metrics  drepo.Metrics
	ticks    drepo.TickBus
	signals  drepo.SignalBus
	cal      *Calendar
	idleWake time.Duration
	workers  int
	queueLen int

	mu        sync.Mutex
	instances []Strategy
	byID      map[string]Strategy
	faults    map[string]int
}

type RuntimeOption func(*Runtime)

// WithWorkers bounds the evaluation worker pool.
func WithWorkers(n int) RuntimeOption {
	return func(r *Runtime) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithIdleWake sets how often the scheduler re-checks a closed market.
func WithIdleWake(d time.Duration) RuntimeOption {
	return func(r *Runtime) {
		if d > 0 {
			r.idleWake = d
		}
	}
}

// NewRuntime creates the strategy runtime.
func NewRuntime(lgr *logger.Logger, ticks drepo.TickBus, signals drepo.SignalBus,
	cal *Calendar, metrics drepo.Metrics, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		logger:   lgr.With("strategy"),
		metrics:  metrics,
		ticks:    ticks,
		signals:  signals,
		cal:      cal,
		idleWake: time.Minute,
		workers:  4,
		queueLen: 256,
		byID:     make(map[string]Strategy),
		faults:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an instance. Duplicate ids are rejected.
func (r *Runtime) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[s.ID()]; exists {
		return fmt.Errorf("strategy id %q already registered", s.ID())
	}
	r.byID[s.ID()] = s
	r.instances = append(r.instances, s)
	return nil
}

// Evaluate runs one instance over all its symbols and returns the
// signals it produced. Faults are isolated and counted.
func (r *Runtime) Evaluate(strategyID string) ([]*models.Signal, error) {
	r.mu.Lock()
	st, ok := r.byID[strategyID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy id %q", strategyID)
	}
	var out []*models.Signal
	for _, symbol := range st.Symbols() {
		if sig := r.evaluateOne(st, symbol); sig != nil {
			out = append(out, sig)
		}
	}
	return out, nil
}

// FaultCount returns how many evaluation faults an instance has had.
func (r *Runtime) FaultCount(strategyID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.faults[strategyID]
}

// Run subscribes to the tick streams and drives evaluation until ctx
// is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	symbols := r.symbolUnion()
	if len(symbols) == 0 {
		r.logger.Warn("no strategy symbols configured; runtime idle")
		<-ctx.Done()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs, err := r.ticks.Subscribe(runCtx, consumerGroup, symbols)
	if err != nil {
		return fmt.Errorf("runtime subscribe: %w", err)
	}

	jobs := make(chan evalJob, r.queueLen)
	var workers sync.WaitGroup

	for i := 0; i < r.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					r.runJob(runCtx, job)
				}
			}
		}()
	}

	// interval schedulers, one per scheduled instance
	var schedulers sync.WaitGroup
	for _, st := range r.scheduled() {
		schedulers.Add(1)
		go func(st Strategy) {
			defer schedulers.Done()
			r.scheduleLoop(runCtx, st, jobs)
		}(st)
	}

	// jobs has two producer sides, the dispatch loop below and the
	// schedulers. It is closed only after both have stopped.
	stop := func() {
		cancel()
		schedulers.Wait()
		close(jobs)
		workers.Wait()
	}

	// tick dispatch loop
	for {
		select {
		case <-runCtx.Done():
			stop()
			return nil
		case msg, ok := <-msgs:
			if !ok {
				stop()
				return nil
			}
			r.dispatch(runCtx, msg, jobs)
		}
	}
}

type evalJob struct {
	st     Strategy
	symbol string
}

func (r *Runtime) dispatch(ctx context.Context, msg drepo.TickMessage, jobs chan<- evalJob) {
	tick := msg.Tick
	r.mu.Lock()
	instances := append([]Strategy(nil), r.instances...)
	r.mu.Unlock()

	for _, st := range instances {
		if !trades(st, tick.Symbol) {
			continue
		}
		st.OnTick(tick)
		if st.Interval() != 0 {
			continue // scheduled instances evaluate on their own clock
		}
		select {
		case jobs <- evalJob{st: st, symbol: tick.Symbol}:
		default:
			// pool saturated: skip this evaluation rather than pile up work
			r.metrics.RecordError("runtime_eval_backlog")
		}
	}
	if err := msg.Ack(ctx); err != nil && ctx.Err() == nil {
		r.metrics.RecordError("runtime_ack")
	}
}

// scheduleLoop evaluates one instance on a fixed interval, idling in
// long sleeps while the market is closed.
func (r *Runtime) scheduleLoop(ctx context.Context, st Strategy, jobs chan<- evalJob) {
	for {
		wait := st.Interval()
		if !r.cal.IsOpen(time.Now()) {
			wait = r.idleWake
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if !r.cal.IsOpen(time.Now()) {
			continue
		}
		for _, symbol := range st.Symbols() {
			select {
			case jobs <- evalJob{st: st, symbol: symbol}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Runtime) runJob(ctx context.Context, job evalJob) {
	sig := r.evaluateOne(job.st, job.symbol)
	if sig == nil || sig.Direction == models.DirectionHold {
		return
	}
	if err := r.signals.Publish(ctx, sig); err != nil && ctx.Err() == nil {
		r.logger.Warn("signal publish failed",
			logger.String("strategy", sig.StrategyID), logger.Error(err))
	}
}

// evaluateOne isolates a single evaluation: a panic or error in one
// instance is logged and counted without affecting the others.
func (r *Runtime) evaluateOne(st Strategy, symbol string) (sig *models.Signal) {
	defer func() {
		if rec := recover(); rec != nil {
			r.recordFault(st.ID())
			r.logger.Error("strategy evaluation panic",
				logger.String("strategy", st.ID()),
				logger.String("symbol", symbol),
				logger.Any("panic", rec))
			sig = nil
		}
	}()

	start := time.Now()
	sig, err := st.Evaluate(symbol)
	if err != nil {
		r.recordFault(st.ID())
		r.logger.Error("strategy evaluation error",
			logger.String("strategy", st.ID()),
			logger.String("symbol", symbol),
			logger.Error(err))
		return nil
	}
	r.metrics.RecordLatency("strategy_evaluate", time.Since(start).Seconds())
	return sig
}

func (r *Runtime) recordFault(strategyID string) {
	r.metrics.RecordError("strategy_fault")
	r.mu.Lock()
	r.faults[strategyID]++
	r.mu.Unlock()
}

func (r *Runtime) scheduled() []Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Strategy
	for _, st := range r.instances {
		if st.Interval() > 0 {
			out = append(out, st)
		}
	}
	return out
}

func (r *Runtime) symbolUnion() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, st := range r.instances {
		for _, s := range st.Symbols() {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func trades(st Strategy, symbol string) bool {
	for _, s := range st.Symbols() {
		if s == symbol {
			return true
		}
	}
	return false
}
