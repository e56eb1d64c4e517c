package strategy

import (
	"fmt"
	"math"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/config"
)

// RSIReversion buys oversold and sells overbought readings of the
// relative strength index.
type RSIReversion struct {
	base
	period     int
	oversold   float64
	overbought float64
	qty        int64
}

// NewRSIReversion builds an RSI mean-reversion instance.
// Parameters: period (14), oversold (30), overbought (70), qty (1).
func NewRSIReversion(cfg config.StrategyConfig) (Strategy, error) {
	period := int(param(cfg.Params, "period", 14))
	if period < 2 {
		return nil, fmt.Errorf("rsi period must be >= 2, got %d", period)
	}
	oversold := param(cfg.Params, "oversold", 30)
	overbought := param(cfg.Params, "overbought", 70)
	if oversold >= overbought {
		return nil, fmt.Errorf("rsi oversold %v must be below overbought %v", oversold, overbought)
	}
	return &RSIReversion{
		base:       newBase(cfg),
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		qty:        int64(param(cfg.Params, "qty", 1)),
	}, nil
}

func (s *RSIReversion) Evaluate(symbol string) (*models.Signal, error) {
	closes, _, _, last, err := s.snapshot(symbol)
	if err != nil {
		return nil, err
	}
	value, ok := RSI(closes, s.period)
	if !ok {
		// still warming up
		return nil, nil
	}
	now := time.Now().UTC()

	var direction models.Direction
	var edge float64
	switch {
	case value <= s.oversold:
		direction = models.DirectionBuy
		edge = s.oversold - value
	case value >= s.overbought:
		direction = models.DirectionSell
		edge = value - s.overbought
	default:
		return s.hold(symbol, now), nil
	}

	// confidence grows with distance beyond the band, capped at 1
	confidence := math.Min(1, 0.5+edge/20)
	return &models.Signal{
		StrategyID:     s.id,
		Symbol:         symbol,
		Direction:      direction,
		Confidence:     confidence,
		ReferencePrice: last.LastPrice,
		SuggestedQty:   s.qty,
		GeneratedAt:    now,
		Metadata:       map[string]string{"rsi": fmt.Sprintf("%.2f", value)},
	}, nil
}
