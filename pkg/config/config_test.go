package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
environment: test
feed:
  websocket_url: wss://feed.example.com/stream
  symbols: [RELIANCE, TCS]
broker:
  mode: paper
order:
  timeout: 2s
  confidence_floor: 0.7
strategies:
  - id: rsi-main
    type: rsi_reversion
    symbols: [RELIANCE]
    enabled: true
    params:
      period: 14
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Order.Timeout != 2*time.Second {
		t.Fatalf("timeout = %v", c.Order.Timeout)
	}
	if c.Order.ConfidenceFloor != 0.7 {
		t.Fatalf("confidence floor = %v", c.Order.ConfidenceFloor)
	}
	// defaults applied
	if c.Broker.SessionTTL != 8*time.Hour {
		t.Fatalf("session ttl default = %v", c.Broker.SessionTTL)
	}
	if c.Redis.Addr != "localhost:6379" {
		t.Fatalf("redis addr default = %s", c.Redis.Addr)
	}
}

func TestLoadRejectsBadBrokerMode(t *testing.T) {
	body := `
environment: test
feed:
  symbols: [RELIANCE]
broker:
  mode: dryrun
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected validation error for broker.mode")
	}
}

func TestLoadRejectsDuplicateStrategyID(t *testing.T) {
	body := validYAML + `
  - id: rsi-main
    type: macd_trend
    symbols: [TCS]
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected duplicate strategy id error")
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.prod:6380")
	t.Setenv("BROKER_MODE", "paper")
	c, err := LoadWithEnv(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if c.Redis.Addr != "redis.prod:6380" {
		t.Fatalf("env override missed, got %s", c.Redis.Addr)
	}
}
