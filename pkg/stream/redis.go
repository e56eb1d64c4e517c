package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"TradePulse/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Message is one delivered stream entry. It stays pending for its
// consumer group until acknowledged; the reclaim loop redelivers
// entries whose consumer died before acking.
type Message struct {
	Stream string
	ID     string
	Values map[string]interface{}

	ack func(ctx context.Context) error
}

// NewMessage builds a message with a caller-supplied ack, for bus
// implementations that do not ride on Redis.
func NewMessage(stream, id string, values map[string]interface{}, ack func(ctx context.Context) error) *Message {
	return &Message{Stream: stream, ID: id, Values: values, ack: ack}
}

// Ack acknowledges the message for its consumer group.
func (m *Message) Ack(ctx context.Context) error {
	return m.ack(ctx)
}

// Bus is a durable stream bus on Redis Streams. Each named stream is
// an append-only log; consumer groups hold independent cursors, so one
// group's lag never affects another's.
type Bus struct {
	logger *logger.Logger
	cfg    *Config
	client *redis.Client

	mu          sync.Mutex
	subscribers map[string]*subscription // keyed by group
}

type subscription struct {
	group    string
	consumer string
	out      chan *Message
	cancel   context.CancelFunc

	mu      sync.Mutex
	streams map[string]bool
}

// NewBus creates a stream bus over the given Redis client.
func NewBus(lgr *logger.Logger, cfg *Config, client *redis.Client) *Bus {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Bus{
		logger:      lgr,
		cfg:         cfg.withDefaults(),
		client:      client,
		subscribers: make(map[string]*subscription),
	}
}

// Publish appends values to the named stream, trimming approximately
// to the configured cap.
func (b *Bus) Publish(ctx context.Context, stream string, values map[string]interface{}) error {
	args := &redis.XAddArgs{
		Stream: b.key(stream),
		Values: values,
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

// Subscribe starts a consumer for group over the given streams and
// returns the delivery channel. Adding the same group twice fails;
// use AddStream/RemoveStream to adjust a live subscription.
func (b *Bus) Subscribe(ctx context.Context, group, consumer string, streams []string) (<-chan *Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[group]; exists {
		return nil, fmt.Errorf("group %s already subscribed", group)
	}

	for _, s := range streams {
		if err := b.ensureGroup(ctx, s, group); err != nil {
			return nil, err
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		group:    group,
		consumer: consumer,
		out:      make(chan *Message, b.cfg.BufferSize),
		cancel:   cancel,
		streams:  make(map[string]bool, len(streams)),
	}
	for _, s := range streams {
		sub.streams[s] = true
	}
	b.subscribers[group] = sub

	go b.readLoop(subCtx, sub)
	go b.reclaimLoop(subCtx, sub)

	b.logger.Info("stream subscription started",
		logger.String("group", group),
		logger.Strings("streams", streams))
	return sub.out, nil
}

// AddStream joins an additional stream to a live group subscription.
func (b *Bus) AddStream(ctx context.Context, group, stream string) error {
	b.mu.Lock()
	sub, ok := b.subscribers[group]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("group %s not subscribed", group)
	}
	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return err
	}
	sub.mu.Lock()
	sub.streams[stream] = true
	sub.mu.Unlock()
	return nil
}

// RemoveStream drops a stream from a live group subscription.
func (b *Bus) RemoveStream(group, stream string) {
	b.mu.Lock()
	sub, ok := b.subscribers[group]
	b.mu.Unlock()
	if !ok {
		return
	}
	sub.mu.Lock()
	delete(sub.streams, stream)
	sub.mu.Unlock()
}

// Unsubscribe stops the group's consumer loops.
func (b *Bus) Unsubscribe(group string) {
	b.mu.Lock()
	sub, ok := b.subscribers[group]
	if ok {
		delete(b.subscribers, group)
	}
	b.mu.Unlock()
	if ok {
		sub.cancel()
	}
}

// Close stops all subscriptions. The Redis client is owned by the
// caller and stays open.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.subscribers = make(map[string]*subscription)
	b.mu.Unlock()
	for _, s := range subs {
		s.cancel()
	}
	return nil
}

func (b *Bus) readLoop(ctx context.Context, sub *subscription) {
	defer close(sub.out)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		keys := sub.streamKeys(b)
		if len(keys) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.cfg.Block):
			}
			continue
		}

		args := make([]string, 0, len(keys)*2)
		args = append(args, keys...)
		for range keys {
			args = append(args, ">")
		}
		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    sub.group,
			Consumer: sub.consumer,
			Streams:  args,
			Count:    b.cfg.BatchCount,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			b.logger.Error("xreadgroup error",
				logger.String("group", sub.group), logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, s := range res {
			for _, entry := range s.Messages {
				b.deliver(ctx, sub, s.Stream, entry)
			}
		}
	}
}

// reclaimLoop redelivers entries left pending past the claim timeout,
// so a crashed consumer's ticks are not lost.
func (b *Bus) reclaimLoop(ctx context.Context, sub *subscription) {
	ticker := time.NewTicker(b.cfg.ClaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, key := range sub.streamKeys(b) {
			start := "0-0"
			for {
				entries, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
					Stream:   key,
					Group:    sub.group,
					Consumer: sub.consumer,
					MinIdle:  b.cfg.ClaimTimeout,
					Start:    start,
					Count:    b.cfg.BatchCount,
				}).Result()
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						b.logger.Warn("xautoclaim error",
							logger.String("group", sub.group), logger.Error(err))
					}
					break
				}
				for _, entry := range entries {
					b.deliver(ctx, sub, key, entry)
				}
				if next == "0-0" || len(entries) == 0 {
					break
				}
				start = next
			}
		}
	}
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, streamKey string, entry redis.XMessage) {
	msg := &Message{
		Stream: b.unkey(streamKey),
		ID:     entry.ID,
		Values: entry.Values,
		ack: func(ctx context.Context) error {
			return b.client.XAck(ctx, streamKey, sub.group, entry.ID).Err()
		},
	}
	select {
	case sub.out <- msg:
	case <-ctx.Done():
	}
}

func (b *Bus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, b.key(stream), group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (s *subscription) streamKeys(b *Bus) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.streams))
	for name := range s.streams {
		keys = append(keys, b.key(name))
	}
	return keys
}

func (b *Bus) key(stream string) string {
	if b.cfg.KeyPrefix == "" {
		return stream
	}
	return b.cfg.KeyPrefix + ":" + stream
}

func (b *Bus) unkey(key string) string {
	if b.cfg.KeyPrefix == "" {
		return key
	}
	return strings.TrimPrefix(key, b.cfg.KeyPrefix+":")
}
