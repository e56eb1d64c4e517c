package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"TradePulse/internal/broker"
	"TradePulse/internal/domain/models"
	domrepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/handler/api"
	"TradePulse/internal/matching"
	mid "TradePulse/internal/middleware"
	"TradePulse/internal/order"
	internalrepo "TradePulse/internal/repository"
	"TradePulse/internal/service/bus"
	"TradePulse/internal/service/feed"
	"TradePulse/internal/strategy"
	"TradePulse/internal/usecase"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	pkgkafka "TradePulse/pkg/kafka"
	applogger "TradePulse/pkg/logger"
	"TradePulse/pkg/metrics"
	"TradePulse/pkg/server"
	"TradePulse/pkg/stream"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideRedisClient creates the shared Redis client.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideStreamBus creates the Redis Streams bus.
func ProvideStreamBus(log *applogger.Logger, cfg *config.Config, client *redis.Client) *stream.Bus {
	return stream.NewBus(log, &stream.Config{
		KeyPrefix: cfg.Redis.KeyPrefix,
		MaxLen:    cfg.Redis.MaxLen,
	}, client)
}

// ProvideTickBus creates the durable tick bus.
func ProvideTickBus(log *applogger.Logger, b *stream.Bus, m domrepo.Metrics) domrepo.TickBus {
	return bus.NewTickBus(log, b, m)
}

// ProvideSignalBus creates the signal fan-out bus.
func ProvideSignalBus(log *applogger.Logger, cfg *config.Config, client *redis.Client, m domrepo.Metrics) domrepo.SignalBus {
	return bus.NewSignalBus(log, client, cfg.Redis.KeyPrefix+":signals", m)
}

// ProvideMarketStream creates the upstream WebSocket feed client.
// Symbol tokens on the wire equal the configured symbols.
func ProvideMarketStream(log *applogger.Logger, cfg *config.Config, m domrepo.Metrics) domrepo.MarketStream {
	tokens := make(map[string]string, len(cfg.Feed.Symbols))
	for _, s := range cfg.Feed.Symbols {
		tokens[s] = s
	}
	return feed.New(log,
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Symbols,
		tokens,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		m,
	)
}

// ProvideIngestPipeline creates the validation and throttling stage
// between the feed and the tick bus.
func ProvideIngestPipeline(ticks domrepo.TickBus, m domrepo.Metrics) *mid.IngestPipeline {
	return mid.NewIngestPipeline(ticks, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideTickIngestor creates the feed-to-bus ingestor.
func ProvideTickIngestor(stream domrepo.MarketStream, pipe *mid.IngestPipeline, m domrepo.Metrics) *usecase.TickIngestor {
	return usecase.NewTickIngestor(stream, pipe, m)
}

// ProvideCalendar builds the trading calendar.
func ProvideCalendar(cfg *config.Config) (*strategy.Calendar, error) {
	cal, err := strategy.NewCalendar(cfg.Market.Timezone, cfg.Market.Open, cfg.Market.Close, cfg.Market.Days)
	if err != nil {
		return nil, fmt.Errorf("market calendar: %w", err)
	}
	return cal, nil
}

// ProvideRuntime builds the strategy runtime and registers every
// enabled strategy instance from configuration.
func ProvideRuntime(
	log *applogger.Logger,
	ticks domrepo.TickBus,
	signals domrepo.SignalBus,
	cal *strategy.Calendar,
	m domrepo.Metrics,
	cfg *config.Config,
) (*strategy.Runtime, error) {
	rt := strategy.NewRuntime(log, ticks, signals, cal, m,
		strategy.WithIdleWake(cfg.Market.IdleWake))

	registry := strategy.DefaultRegistry()
	for _, sc := range cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		inst, err := registry.Build(sc)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.ID, err)
		}
		if err := rt.Register(inst); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.ID, err)
		}
	}
	return rt, nil
}

// ProvideClickHouseClient creates the ClickHouse pool and order schema.
// Returns nil when persistence is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, 10*time.Second),
		pkgch.WithAsyncInsert(true, false),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stmts := append(
		[]string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database)},
		internalrepo.OrderSchema(
			cfg.ClickHouse.Database+".orders",
			cfg.ClickHouse.Database+".trades",
		)...,
	)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideOrderStore selects the persistent store, falling back to
// in-memory when ClickHouse is disabled.
func ProvideOrderStore(chClient *pkgch.Client, cfg *config.Config) domrepo.OrderStore {
	if chClient == nil {
		return internalrepo.NewMemoryOrderStore()
	}
	return internalrepo.NewClickHouseOrderStore(chClient.DB(),
		cfg.ClickHouse.Database+".orders",
		cfg.ClickHouse.Database+".trades")
}

// ProvideMatchingEngine creates the paper matcher. Nil in live mode.
func ProvideMatchingEngine(
	cfg *config.Config,
	ticks domrepo.TickBus,
	store domrepo.OrderStore,
	m domrepo.Metrics,
	log *applogger.Logger,
) *matching.Engine {
	if cfg.Broker.Mode != "paper" {
		return nil
	}
	return matching.NewEngine(ticks, store, cfg.Order.Timeout, m, log)
}

// ProvideBroker selects the active broker: the paper matching engine
// or the live REST gateway.
func ProvideBroker(cfg *config.Config, engine *matching.Engine, log *applogger.Logger) domrepo.Broker {
	if engine != nil {
		return engine
	}
	return broker.NewRESTBroker(cfg.Broker.BaseURL, cfg.Order.Timeout, log)
}

// ProvideSessionManager creates the broker session owner.
func ProvideSessionManager(b domrepo.Broker, cfg *config.Config, log *applogger.Logger) *order.SessionManager {
	creds := models.Credentials{
		ClientID: cfg.Broker.ClientID,
		APIKey:   cfg.Broker.APIKey,
		Secret:   cfg.Broker.Secret,
	}
	return order.NewSessionManager(b, creds, cfg.Broker.SessionTTL, log)
}

// ProvideKafkaProducer creates the audit producer. Nil when auditing
// is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAuditTrail creates the compliance trail. Nil without Kafka.
func ProvideAuditTrail(
	producer *pkgkafka.Producer,
	signals domrepo.SignalBus,
	cfg *config.Config,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.AuditTrail {
	if producer == nil {
		return nil
	}
	return usecase.NewAuditTrail(producer, signals, cfg.Kafka.SignalTopic, cfg.Kafka.OrderTopic, m, log)
}

// ProvideOrderManager creates the order manager with its resilience
// envelope.
func ProvideOrderManager(
	cfg *config.Config,
	b domrepo.Broker,
	store domrepo.OrderStore,
	session *order.SessionManager,
	m domrepo.Metrics,
	log *applogger.Logger,
	audit *usecase.AuditTrail,
) *order.Manager {
	ocfg := order.Config{
		RateLimit:       cfg.Order.RateLimit,
		RateBurst:       cfg.Order.RateBurst,
		RetryMax:        cfg.Order.RetryMax,
		BackoffMin:      cfg.Order.BackoffMin,
		BackoffMax:      cfg.Order.BackoffMax,
		BreakerFailures: cfg.Order.BreakerFailures,
		BreakerCooldown: cfg.Order.BreakerCooldown,
		Timeout:         cfg.Order.Timeout,
	}
	var opts []order.Option
	if audit != nil {
		opts = append(opts, order.WithAuditor(audit))
	}
	return order.NewManager(ocfg, b, store, session, m, log, opts...)
}

// ProvideExecutor creates the signal-to-order executor.
func ProvideExecutor(
	manager *order.Manager,
	signals domrepo.SignalBus,
	cfg *config.Config,
	m domrepo.Metrics,
	log *applogger.Logger,
) *order.Executor {
	return order.NewExecutor(manager, signals, cfg.Order.ConfidenceFloor, m, log)
}

// ProvideHTTPHandler creates the API handler.
func ProvideHTTPHandler(log *applogger.Logger, manager *order.Manager, rt *strategy.Runtime) xhttp.Handler {
	return api.NewOrdersHandler(log, manager, rt)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	ingestor *usecase.TickIngestor,
	rt *strategy.Runtime,
	manager *order.Manager,
	executor *order.Executor,
	engine *matching.Engine,
	audit *usecase.AuditTrail,
	chClient *pkgch.Client,
	redisClient *redis.Client,
	handler xhttp.Handler,
	ticks domrepo.TickBus,
	signals domrepo.SignalBus,
	store domrepo.OrderStore,
) *server.App {
	app := server.New(cfg, log, ingestor, rt, manager, executor, engine, audit, chClient, redisClient)
	app.SetHTTPHandler(handler)
	app.AddCloser(ticks.Close)
	app.AddCloser(signals.Close)
	app.AddCloser(store.Close)
	return app
}
