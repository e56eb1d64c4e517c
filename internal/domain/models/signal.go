package models

import "time"

// Direction is a strategy's advisory stance on a symbol.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Signal is a strategy's advisory output prior to becoming an order.
// Produced by exactly one evaluation and immutable afterwards. HOLD
// signals are never forwarded to order execution.
type Signal struct {
	StrategyID     string            `json:"strategy_id"`
	Symbol         string            `json:"symbol"`
	Direction      Direction         `json:"direction"`
	Confidence     float64           `json:"confidence"` // [0,1]
	ReferencePrice float64           `json:"reference_price"`
	SuggestedQty   int64             `json:"suggested_qty"`
	GeneratedAt    time.Time         `json:"generated_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Actionable reports whether the signal should be considered for
// execution given the configured confidence floor.
func (s *Signal) Actionable(confidenceFloor float64) bool {
	if s == nil {
		return false
	}
	if s.Direction != DirectionBuy && s.Direction != DirectionSell {
		return false
	}
	return s.Confidence >= confidenceFloor
}
