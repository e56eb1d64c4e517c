package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// ErrDuplicateOrder is returned by Submit for an order id that was
// already accepted. Submission is idempotent on order id.
var ErrDuplicateOrder = errors.New("duplicate order id")

// Config tunes the resilience envelope around broker calls.
type Config struct {
	RateLimit       float64       // broker calls per second
	RateBurst       int           // token bucket depth
	RetryMax        int           // placement attempts before giving up
	BackoffMin      time.Duration // first retry delay
	BackoffMax      time.Duration // retry delay ceiling
	BreakerFailures int           // consecutive failures before the circuit opens
	BreakerCooldown time.Duration // open duration before a half-open probe
	Timeout         time.Duration // per-order deadline from acceptance
}

// Request is a submission from a strategy signal or the API.
type Request struct {
	OrderID    string // optional; generated when empty
	UserID     string
	StrategyID string
	Symbol     string
	Side       models.OrderSide
	Type       models.OrderType
	Quantity   int64
	LimitPrice float64
}

// Auditor receives every order state change. Optional.
type Auditor interface {
	OrderEvent(ctx context.Context, o *models.Order)
}

// Manager owns the order lifecycle: it persists state, throttles and
// guards broker calls, and rejects orders whose deadline lapses.
// Rejection is an outcome, not an error: Submit returns the order in
// its settled state and reserves errors for infrastructure failures.
type Manager struct {
	logger  *logger.Logger
	metrics repository.Metrics
	store   repository.OrderStore
	broker  repository.Broker
	session *SessionManager
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*models.Placement]
	cfg     Config
	clock   func() time.Time
	auditor Auditor

	mu       sync.Mutex
	accepted map[string]struct{} // ids seen this process, for cheap duplicate checks
}

// Option configures the Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithAuditor attaches an audit sink for order state changes.
func WithAuditor(a Auditor) Option {
	return func(m *Manager) { m.auditor = a }
}

// NewManager creates an order manager over the given broker and store.
func NewManager(
	cfg Config,
	broker repository.Broker,
	store repository.OrderStore,
	session *SessionManager,
	metrics repository.Metrics,
	log *logger.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		logger:   log.With("order-manager"),
		metrics:  metrics,
		store:    store,
		broker:   broker,
		session:  session,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		cfg:      cfg,
		clock:    time.Now,
		accepted: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.breaker = gobreaker.NewCircuitBreaker[*models.Placement](gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1, // single probe in half-open
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			m.logger.Warn("broker circuit state change",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// A business decline is the broker answering, not failing.
			return err == nil || errors.Is(err, repository.ErrBrokerDeclined)
		},
	})
	return m
}

// Submit accepts a new order and drives it to PLACED or REJECTED. The
// returned order reflects the settled state.
func (m *Manager) Submit(ctx context.Context, req Request) (*models.Order, error) {
	id := req.OrderID
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if _, seen := m.accepted[id]; seen {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
	}
	m.accepted[id] = struct{}{}
	m.mu.Unlock()

	if _, err := m.store.Get(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
	} else if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	now := m.clock()
	o := &models.Order{
		OrderID:    id,
		UserID:     req.UserID,
		StrategyID: req.StrategyID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		TimeoutAt:  now.Add(m.cfg.Timeout),
	}
	if err := m.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	m.metrics.RecordOrder(string(o.Status))
	m.audit(ctx, o)

	m.place(ctx, o)
	return o, nil
}

// place drives a PENDING order through the resilience envelope. The
// order ends PLACED or REJECTED; failures never surface as errors.
func (m *Manager) place(ctx context.Context, o *models.Order) {
	dctx, cancel := context.WithDeadline(ctx, o.TimeoutAt)
	defer cancel()

	start := m.clock()

	if _, err := m.session.Ensure(dctx); err != nil {
		m.reject(ctx, o, fmt.Sprintf("session: %v", err))
		return
	}

	if err := m.limiter.Wait(dctx); err != nil {
		m.reject(ctx, o, "timeout")
		return
	}

	// tries counts attempts that reached the broker. Fast-fails from an
	// open circuit are exhaustion, not attempts: the order keeps waiting
	// for a probe window until its own deadline lapses.
	tries := 0
	attempt := func() (*models.Placement, error) {
		pl, err := m.breaker.Execute(func() (*models.Placement, error) {
			return m.broker.PlaceOrder(dctx, o)
		})
		switch {
		case err == nil:
			return pl, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, err
		case errors.Is(err, repository.ErrBrokerDeclined):
			return nil, backoff.Permanent(err)
		case errors.Is(err, repository.ErrSessionExpired):
			tries++
			if tries >= m.cfg.RetryMax {
				return nil, backoff.Permanent(err)
			}
			m.session.Invalidate()
			if _, aerr := m.session.Ensure(dctx); aerr != nil {
				return nil, backoff.Permanent(fmt.Errorf("session: %w", aerr))
			}
			return nil, err
		default:
			tries++
			if tries >= m.cfg.RetryMax {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.BackoffMin
	bo.MaxInterval = m.cfg.BackoffMax

	pl, err := backoff.Retry(dctx, attempt, backoff.WithBackOff(bo))
	m.metrics.RecordLatency("order_place", m.clock().Sub(start).Seconds())
	if err != nil {
		m.reject(ctx, o, rejectReason(dctx, err))
		return
	}

	o.BrokerOrderID = pl.BrokerOrderID
	if err := o.Transition(models.StatusPlaced, m.clock()); err != nil {
		// Lost the race with the deadline janitor.
		m.logger.Warn("placement after terminal state",
			logger.String("order_id", o.OrderID), logger.Error(err))
		return
	}
	if err := m.store.Update(ctx, o); err != nil {
		m.logger.Error("persist placement", logger.String("order_id", o.OrderID), logger.Error(err))
	}
	m.metrics.RecordOrder(string(o.Status))
	m.audit(ctx, o)
	m.logger.Info("order placed",
		logger.String("order_id", o.OrderID),
		logger.String("symbol", o.Symbol),
		logger.String("broker_order_id", o.BrokerOrderID))
}

func rejectReason(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}

func (m *Manager) reject(ctx context.Context, o *models.Order, reason string) {
	if err := o.Reject(reason, m.clock()); err != nil {
		return // already terminal
	}
	if err := m.store.Update(ctx, o); err != nil {
		m.logger.Error("persist rejection", logger.String("order_id", o.OrderID), logger.Error(err))
	}
	m.metrics.RecordOrder(string(o.Status))
	m.metrics.RecordError("order_rejected")
	m.audit(ctx, o)
	m.logger.Warn("order rejected",
		logger.String("order_id", o.OrderID),
		logger.String("symbol", o.Symbol),
		logger.String("reason", reason))
}

func (m *Manager) audit(ctx context.Context, o *models.Order) {
	if m.auditor != nil {
		m.auditor.OrderEvent(ctx, o)
	}
}

// GetStatus returns the current persisted state of an order.
func (m *Manager) GetStatus(ctx context.Context, orderID string) (*models.Order, error) {
	return m.store.Get(ctx, orderID)
}

// Run sweeps non-terminal orders past their deadline into REJECTED and
// keeps the pending-orders gauge current. Blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	pending, err := m.store.ListPending(ctx)
	if err != nil {
		m.logger.Error("list pending orders", logger.Error(err))
		return
	}
	now := m.clock()
	live := 0
	for _, o := range pending {
		if o.Expired(now) {
			m.reject(ctx, o, "timeout")
			continue
		}
		live++
	}
	m.metrics.RecordPendingOrders(live)
}

// Shutdown logs out the broker session.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.session.Logout(ctx)
}
