package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// SignalBus fans strategy signals out over Redis pub/sub. Delivery is
// best-effort: a subscriber that falls behind drops signals rather
// than blocking the runtime.
type SignalBus struct {
	logger  *logger.Logger
	client  *redis.Client
	channel string
	metrics drepo.Metrics

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewSignalBus creates the signal bus on the given pub/sub channel.
func NewSignalBus(lgr *logger.Logger, client *redis.Client, channel string, metrics drepo.Metrics) *SignalBus {
	return &SignalBus{
		logger:  lgr.With("signalbus"),
		client:  client,
		channel: channel,
		metrics: metrics,
	}
}

// Publish broadcasts the signal to all current subscribers.
func (s *SignalBus) Publish(ctx context.Context, sig *models.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		s.metrics.RecordError("signal_publish")
		return fmt.Errorf("publish signal: %w", err)
	}
	s.metrics.RecordSignal(sig.StrategyID, string(sig.Direction))
	return nil
}

// Subscribe returns an independent stream of signals. name identifies
// the subscriber in logs only; subscribers do not coordinate.
func (s *SignalBus) Subscribe(ctx context.Context, name string) (<-chan *models.Signal, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	// force the subscription to be established before returning
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	out := make(chan *models.Signal, 256)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var sig models.Signal
				if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
					s.metrics.RecordError("signal_malformed")
					s.logger.Warn("dropping malformed signal",
						logger.String("subscriber", name), logger.Error(err))
					continue
				}
				select {
				case out <- &sig:
				default:
					// best-effort: slow subscriber misses the trade
					s.metrics.RecordError("signal_drop_" + name)
				}
			}
		}
	}()
	return out, nil
}

// Close stops all subscriber loops.
func (s *SignalBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	return nil
}
