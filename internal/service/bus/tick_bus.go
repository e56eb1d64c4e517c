package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
	"TradePulse/pkg/stream"
)

const tickStreamPrefix = "ticks."

// StreamBus is the slice of the stream bus the tick bus rides on.
type StreamBus interface {
	Publish(ctx context.Context, stream string, values map[string]interface{}) error
	Subscribe(ctx context.Context, group, consumer string, streams []string) (<-chan *stream.Message, error)
	AddStream(ctx context.Context, group, stream string) error
	RemoveStream(group, stream string)
	Close() error
}

// TickBus publishes normalized ticks on per-symbol Redis streams and
// hands consumer groups independent at-least-once cursors over them.
type TickBus struct {
	logger  *logger.Logger
	bus     StreamBus
	metrics drepo.Metrics
}

// NewTickBus creates the market data bus over a stream bus.
func NewTickBus(lgr *logger.Logger, b StreamBus, metrics drepo.Metrics) *TickBus {
	return &TickBus{logger: lgr.With("tickbus"), bus: b, metrics: metrics}
}

// Publish appends the tick to its symbol's stream.
func (t *TickBus) Publish(ctx context.Context, tick *models.Tick) error {
	if !tick.Valid() {
		t.metrics.RecordError("tick_invalid")
		return fmt.Errorf("invalid tick for symbol %q", tick.Symbol)
	}
	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	if err := t.bus.Publish(ctx, tickStreamPrefix+tick.Symbol, map[string]interface{}{
		"data": data,
	}); err != nil {
		t.metrics.RecordError("tick_publish")
		return err
	}
	t.metrics.RecordTick(tick.Symbol)
	return nil
}

// Subscribe opens an independent cursor for group over the given
// symbols. Unacknowledged ticks are redelivered after the claim
// timeout; malformed entries are dropped and counted, never fatal.
func (t *TickBus) Subscribe(ctx context.Context, group string, symbols []string) (<-chan drepo.TickMessage, error) {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, tickStreamPrefix+s)
	}
	raw, err := t.bus.Subscribe(ctx, group, group+"-1", streams)
	if err != nil {
		return nil, fmt.Errorf("subscribe group %s: %w", group, err)
	}

	out := make(chan drepo.TickMessage, cap(raw))
	go func() {
		defer close(out)
		for msg := range raw {
			tick, err := decodeTick(msg)
			if err != nil {
				t.metrics.RecordError("tick_malformed")
				t.logger.Warn("dropping malformed stream entry",
					logger.String("stream", msg.Stream),
					logger.String("id", msg.ID),
					logger.Error(err))
				// ack so it is not redelivered forever
				_ = msg.Ack(context.Background())
				continue
			}
			m := msg
			select {
			case out <- drepo.TickMessage{Tick: tick, Ack: m.Ack}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// AddSymbol lazily joins a symbol stream to a live group subscription.
func (t *TickBus) AddSymbol(ctx context.Context, group, symbol string) error {
	return t.bus.AddStream(ctx, group, tickStreamPrefix+symbol)
}

// RemoveSymbol drops a symbol stream from a live group subscription.
func (t *TickBus) RemoveSymbol(group, symbol string) {
	t.bus.RemoveStream(group, tickStreamPrefix+symbol)
}

// Close stops all subscriptions.
func (t *TickBus) Close() error { return t.bus.Close() }

func decodeTick(msg *stream.Message) (*models.Tick, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("entry missing data field")
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("data field has type %T", raw)
	}
	var tick models.Tick
	if err := json.Unmarshal([]byte(s), &tick); err != nil {
		return nil, fmt.Errorf("unmarshal tick: %w", err)
	}
	if !tick.Valid() {
		return nil, fmt.Errorf("decoded tick invalid")
	}
	return &tick, nil
}
