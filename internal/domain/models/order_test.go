package models

import (
	"errors"
	"testing"
	"time"
)

func newTestOrder() *Order {
	now := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	return &Order{
		OrderID:   "ord-1",
		Symbol:    "RELIANCE",
		Side:      SideBuy,
		Type:      TypeLimit,
		Quantity:  100,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		TimeoutAt: now.Add(30 * time.Second),
	}
}

func TestOrderTransitionForwardOnly(t *testing.T) {
	o := newTestOrder()
	now := o.CreatedAt

	if err := o.Transition(StatusPlaced, now); err != nil {
		t.Fatalf("pending->placed: %v", err)
	}
	if err := o.Transition(StatusFilled, now); err != nil {
		t.Fatalf("placed->filled: %v", err)
	}
	if err := o.Transition(StatusPlaced, now); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected terminal state error, got %v", err)
	}
}

func TestOrderTransitionSkipRejected(t *testing.T) {
	o := newTestOrder()
	if err := o.Transition(StatusFilled, o.CreatedAt); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending->filled must be invalid, got %v", err)
	}
}

func TestOrderFillNeverExceedsQuantity(t *testing.T) {
	o := newTestOrder()
	now := o.CreatedAt
	if err := o.Transition(StatusPlaced, now); err != nil {
		t.Fatal(err)
	}
	if err := o.Fill(60, 101.5, now); err != nil {
		t.Fatalf("partial fill: %v", err)
	}
	if o.Status != StatusPartiallyFilled {
		t.Fatalf("status = %s, want PARTIALLY_FILLED", o.Status)
	}
	if err := o.Fill(50, 101.5, now); err == nil {
		t.Fatal("overfill must fail")
	}
	if err := o.Fill(40, 101.0, now); err != nil {
		t.Fatalf("completing fill: %v", err)
	}
	if o.Status != StatusFilled || o.FilledQty != 100 {
		t.Fatalf("status=%s filled=%d, want FILLED/100", o.Status, o.FilledQty)
	}
}

func TestOrderRejectCapturesReason(t *testing.T) {
	o := newTestOrder()
	if err := o.Reject("timeout", o.CreatedAt); err != nil {
		t.Fatal(err)
	}
	if o.Status != StatusRejected || o.Error != "timeout" {
		t.Fatalf("got %s/%q", o.Status, o.Error)
	}
	if err := o.Reject("again", o.CreatedAt); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("rejecting terminal order must fail, got %v", err)
	}
}

func TestSignalActionable(t *testing.T) {
	cases := []struct {
		name  string
		sig   Signal
		floor float64
		want  bool
	}{
		{"buy above floor", Signal{Direction: DirectionBuy, Confidence: 0.8}, 0.6, true},
		{"sell at floor", Signal{Direction: DirectionSell, Confidence: 0.6}, 0.6, true},
		{"below floor", Signal{Direction: DirectionBuy, Confidence: 0.5}, 0.6, false},
		{"hold", Signal{Direction: DirectionHold, Confidence: 1.0}, 0.0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sig.Actionable(tc.floor); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
