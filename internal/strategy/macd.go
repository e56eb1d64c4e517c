package strategy

import (
	"fmt"
	"math"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/config"
)

// MACDTrend follows the direction of the MACD line crossing its
// signal line, filtered by a directional index floor so it stays out
// of flat markets.
type MACDTrend struct {
	base
	fast, slow, signal int
	dxPeriod           int
	dxFloor            float64
	qty                int64
}

// NewMACDTrend builds a MACD trend-following instance.
// Parameters: fast (12), slow (26), signal (9), dx_period (14),
// dx_floor (20), qty (1).
func NewMACDTrend(cfg config.StrategyConfig) (Strategy, error) {
	fast := int(param(cfg.Params, "fast", 12))
	slow := int(param(cfg.Params, "slow", 26))
	sig := int(param(cfg.Params, "signal", 9))
	if fast <= 0 || slow <= fast || sig <= 0 {
		return nil, fmt.Errorf("macd periods invalid: fast=%d slow=%d signal=%d", fast, slow, sig)
	}
	return &MACDTrend{
		base:     newBase(cfg),
		fast:     fast,
		slow:     slow,
		signal:   sig,
		dxPeriod: int(param(cfg.Params, "dx_period", 14)),
		dxFloor:  param(cfg.Params, "dx_floor", 20),
		qty:      int64(param(cfg.Params, "qty", 1)),
	}, nil
}

func (s *MACDTrend) Evaluate(symbol string) (*models.Signal, error) {
	closes, highs, lows, last, err := s.snapshot(symbol)
	if err != nil {
		return nil, err
	}
	macd, sig, ok := MACD(closes, s.fast, s.slow, s.signal)
	if !ok {
		return nil, nil
	}
	now := time.Now().UTC()

	// require a trending market before acting on the cross
	if dx, ok := DX(highs, lows, closes, s.dxPeriod); ok && dx < s.dxFloor {
		return s.hold(symbol, now), nil
	}

	diff := macd - sig
	if diff == 0 {
		return s.hold(symbol, now), nil
	}
	direction := models.DirectionBuy
	if diff < 0 {
		direction = models.DirectionSell
	}

	// normalize the divergence against price to grade conviction
	confidence := math.Min(1, 0.5+math.Abs(diff)/math.Max(last.LastPrice*0.001, 1e-9)*0.1)
	return &models.Signal{
		StrategyID:     s.id,
		Symbol:         symbol,
		Direction:      direction,
		Confidence:     confidence,
		ReferencePrice: last.LastPrice,
		SuggestedQty:   s.qty,
		GeneratedAt:    now,
		Metadata: map[string]string{
			"macd":   fmt.Sprintf("%.4f", macd),
			"signal": fmt.Sprintf("%.4f", sig),
		},
	}, nil
}
