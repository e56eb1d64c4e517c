package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// StrategyConfig configures one strategy instance. Instances are built
// once at startup; hot reload is not supported.
type StrategyConfig struct {
	ID         string             `yaml:"id"`
	Type       string             `yaml:"type"`
	Symbols    []string           `yaml:"symbols"`
	Enabled    bool               `yaml:"enabled"`
	Interval   time.Duration      `yaml:"interval" default:"0s"` // 0 = per-tick
	BufferSize int                `yaml:"buffer_size" default:"256"`
	Params     map[string]float64 `yaml:"params"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Redis struct {
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix" default:"tradepulse"`
		MaxLen    int64  `yaml:"stream_maxlen" default:"100000"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		SignalTopic  string        `yaml:"signal_topic" default:"signals.audit"`
		OrderTopic   string        `yaml:"order_topic" default:"orders.audit"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"tradepulse"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	} `yaml:"clickhouse"`
	Feed struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`
	Broker struct {
		Mode       string        `yaml:"mode" default:"paper"` // paper or live
		BaseURL    string        `yaml:"base_url"`
		ClientID   string        `yaml:"client_id"`
		APIKey     string        `yaml:"api_key"`
		Secret     string        `yaml:"secret"`
		SessionTTL time.Duration `yaml:"session_ttl" default:"8h"`
	} `yaml:"broker"`
	Order struct {
		RateLimit       float64       `yaml:"rate_limit" default:"10"` // calls per second
		RateBurst       int           `yaml:"rate_burst" default:"1"`
		RetryMax        int           `yaml:"retry_max" default:"3"`
		BackoffMin      time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax      time.Duration `yaml:"backoff_max" default:"2s"`
		BreakerFailures int           `yaml:"breaker_failures" default:"3"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown" default:"30s"`
		Timeout         time.Duration `yaml:"timeout" default:"30s"`
		ConfidenceFloor float64       `yaml:"confidence_floor" default:"0.6"`
	} `yaml:"order"`
	Market struct {
		Timezone string   `yaml:"timezone" default:"Asia/Kolkata"`
		Open     string   `yaml:"open" default:"09:15"`
		Close    string   `yaml:"close" default:"15:30"`
		Days     []string `yaml:"days"`
		IdleWake time.Duration `yaml:"idle_wake" default:"1m"`
	} `yaml:"market"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Feed.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BROKER_MODE"); v != "" {
		c.Broker.Mode = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("BROKER_SECRET"); v != "" {
		c.Broker.Secret = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Broker.Mode != "paper" && c.Broker.Mode != "live" {
		return fmt.Errorf("broker.mode must be 'paper' or 'live', got '%s'", c.Broker.Mode)
	}
	if c.Broker.Mode == "live" && c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required in live mode")
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols cannot be empty")
	}
	if c.Order.ConfidenceFloor < 0 || c.Order.ConfidenceFloor > 1 {
		return fmt.Errorf("order.confidence_floor must be within [0,1], got %v", c.Order.ConfidenceFloor)
	}
	if c.Order.Timeout <= 0 {
		return fmt.Errorf("order.timeout must be positive")
	}
	seen := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.ID == "" {
			return fmt.Errorf("strategy id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate strategy id '%s'", s.ID)
		}
		seen[s.ID] = true
		if s.Type == "" {
			return fmt.Errorf("strategy '%s': type is required", s.ID)
		}
		if len(s.Symbols) == 0 {
			return fmt.Errorf("strategy '%s': symbols cannot be empty", s.ID)
		}
	}
	return nil
}
