package stream

import "time"

// Config holds Redis stream bus configuration.
type Config struct {
	KeyPrefix     string        // namespace prefix for all stream keys
	MaxLen        int64         // approximate per-stream cap, 0 = unbounded
	Block         time.Duration // XREADGROUP block interval
	BatchCount    int64         // max entries per read
	ClaimTimeout  time.Duration // min idle before a pending entry is reclaimed
	ClaimInterval time.Duration // how often the reclaim loop runs
	BufferSize    int           // delivery channel capacity
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Block <= 0 {
		out.Block = 2 * time.Second
	}
	if out.BatchCount <= 0 {
		out.BatchCount = 64
	}
	if out.ClaimTimeout <= 0 {
		out.ClaimTimeout = 30 * time.Second
	}
	if out.ClaimInterval <= 0 {
		out.ClaimInterval = 10 * time.Second
	}
	if out.BufferSize <= 0 {
		out.BufferSize = 1024
	}
	return &out
}
