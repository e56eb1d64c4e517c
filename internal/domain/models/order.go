package models

import (
	"fmt"
	"time"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType represents the order pricing type.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the current lifecycle stage of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusPlaced          OrderStatus = "PLACED"
	StatusFilled          OrderStatus = "FILLED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// transitions is the allowed forward edges of the order state graph.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusPlaced, StatusRejected, StatusCancelled},
	StatusPlaced:          {StatusFilled, StatusPartiallyFilled, StatusRejected, StatusCancelled},
	StatusPartiallyFilled: {StatusFilled, StatusPartiallyFilled, StatusRejected, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal order transition.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrTerminalState is returned when mutating an order already in a
// terminal status.
var ErrTerminalState = fmt.Errorf("order is in a terminal state")

// ErrInvalidTransition is returned for a transition outside the state graph.
var ErrInvalidTransition = fmt.Errorf("invalid order status transition")

// Order is a broker order tracked through its full lifecycle. Mutated
// only by the order manager or the matching engine.
type Order struct {
	OrderID       string      `json:"order_id"`
	UserID        string      `json:"user_id"`
	StrategyID    string      `json:"strategy_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Type          OrderType   `json:"type"`
	Quantity      int64       `json:"quantity"`
	LimitPrice    float64     `json:"limit_price,omitempty"`
	Status        OrderStatus `json:"status"`
	BrokerOrderID string      `json:"broker_order_id,omitempty"`
	FilledQty     int64       `json:"filled_qty"`
	FilledPrice   float64     `json:"filled_price,omitempty"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	TimeoutAt     time.Time   `json:"timeout_at"`
}

// Transition moves the order to the given status, enforcing the state
// graph. Terminal states absorb: any attempt to leave one fails.
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, o.Status)
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// Fill records an execution of qty at price and advances the status.
// filled_qty never exceeds quantity.
func (o *Order) Fill(qty int64, price float64, at time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("fill quantity must be positive, got %d", qty)
	}
	if o.FilledQty+qty > o.Quantity {
		return fmt.Errorf("fill quantity %d exceeds remaining %d", qty, o.Quantity-o.FilledQty)
	}
	next := StatusPartiallyFilled
	if o.FilledQty+qty == o.Quantity {
		next = StatusFilled
	}
	if err := o.Transition(next, at); err != nil {
		return err
	}
	o.FilledQty += qty
	o.FilledPrice = price
	return nil
}

// Reject moves the order to REJECTED with the captured reason.
func (o *Order) Reject(reason string, at time.Time) error {
	if err := o.Transition(StatusRejected, at); err != nil {
		return err
	}
	o.Error = reason
	return nil
}

// Expired reports whether the order's deadline has passed at now.
func (o *Order) Expired(now time.Time) bool {
	return !o.TimeoutAt.IsZero() && now.After(o.TimeoutAt)
}
