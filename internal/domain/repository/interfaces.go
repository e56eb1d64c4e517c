package repository

import (
	"context"

	"TradePulse/internal/domain/models"
)

// MarketStream is the upstream price socket: a persistent connection
// delivering normalized ticks plus transport errors.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickMessage is one delivered tick with its acknowledgment handle.
// Unacknowledged ticks are redelivered after the claim timeout.
type TickMessage struct {
	Tick *models.Tick
	Ack  func(ctx context.Context) error
}

// TickBus is the durable per-symbol tick stream with consumer-group
// semantics: each group holds an independent, at-least-once,
// per-symbol-ordered cursor.
type TickBus interface {
	Publish(ctx context.Context, tick *models.Tick) error
	Subscribe(ctx context.Context, group string, symbols []string) (<-chan TickMessage, error)
	AddSymbol(ctx context.Context, group, symbol string) error
	RemoveSymbol(group, symbol string)
	Close() error
}

// SignalBus fans signals out to independent subscribers. Delivery is
// best-effort: a dropped signal is a missed trade, not a stuck state.
type SignalBus interface {
	Publish(ctx context.Context, sig *models.Signal) error
	Subscribe(ctx context.Context, name string) (<-chan *models.Signal, error)
	Close() error
}

// Broker abstracts order placement. Paper and live implementations are
// interchangeable; the system depends only on this interface.
type Broker interface {
	Authenticate(ctx context.Context, creds models.Credentials) (*models.Session, error)
	PlaceOrder(ctx context.Context, order *models.Order) (*models.Placement, error)
	Logout(ctx context.Context) error
}

// OrderStore is the persistence collaborator for orders and trades.
// Reached only via create/update/query; schema is owned elsewhere.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Update(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, orderID string) (*models.Order, error)
	ListPending(ctx context.Context) ([]*models.Order, error)
	Close() error
}

// Metrics records operational counters for every component.
type Metrics interface {
	RecordTick(symbol string)
	RecordSignal(strategyID string, direction string)
	RecordOrder(status string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordPendingOrders(n int)
}
