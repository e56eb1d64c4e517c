package order

import (
	"context"
	"errors"
	"sync"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// subscriberName identifies the executor on the signal bus.
const subscriberName = "order-manager"

// Executor turns strategy signals into order submissions. Signals below
// the confidence floor are dropped; submissions run on a bounded set of
// workers so a slow broker never blocks the signal channel.
type Executor struct {
	manager *Manager
	signals repository.SignalBus
	metrics repository.Metrics
	logger  *logger.Logger
	floor   float64
	workers int
}

// NewExecutor creates an executor with the given confidence floor.
func NewExecutor(manager *Manager, signals repository.SignalBus, floor float64, metrics repository.Metrics, log *logger.Logger) *Executor {
	return &Executor{
		manager: manager,
		signals: signals,
		metrics: metrics,
		logger:  log.With("executor"),
		floor:   floor,
		workers: 8,
	}
}

// Run consumes signals until ctx is done or the bus closes.
func (e *Executor) Run(ctx context.Context) error {
	ch, err := e.signals.Subscribe(ctx, subscriberName)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			if !sig.Actionable(e.floor) {
				e.metrics.RecordError("signal_below_floor")
				e.logger.Debug("signal below confidence floor",
					logger.String("strategy", sig.StrategyID),
					logger.Float64("confidence", sig.Confidence))
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			wg.Add(1)
			go func(sig *models.Signal) {
				defer wg.Done()
				defer func() { <-sem }()
				e.submit(ctx, sig)
			}(sig)
		}
	}
}

func (e *Executor) submit(ctx context.Context, sig *models.Signal) {
	side := models.SideBuy
	if sig.Direction == models.DirectionSell {
		side = models.SideSell
	}
	o, err := e.manager.Submit(ctx, Request{
		UserID:     "strategy",
		StrategyID: sig.StrategyID,
		Symbol:     sig.Symbol,
		Side:       side,
		Type:       models.TypeLimit,
		Quantity:   sig.SuggestedQty,
		LimitPrice: sig.ReferencePrice,
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateOrder) {
			e.metrics.RecordError("signal_submit")
		}
		e.logger.Error("submit from signal",
			logger.String("strategy", sig.StrategyID),
			logger.String("symbol", sig.Symbol),
			logger.Error(err))
		return
	}
	e.logger.Info("signal executed",
		logger.String("strategy", sig.StrategyID),
		logger.String("order_id", o.OrderID),
		logger.String("status", string(o.Status)))
}
