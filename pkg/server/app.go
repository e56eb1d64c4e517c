package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"TradePulse/internal/matching"
	"TradePulse/internal/order"
	"TradePulse/internal/strategy"
	"TradePulse/internal/usecase"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	applogger "TradePulse/pkg/logger"
)

// App owns the process lifecycle: it starts the ingest path, the
// strategy runtime, order execution and the HTTP server, then blocks
// until a shutdown signal and stops them in reverse order.
type App struct {
	cfg      *config.Config
	logger   *applogger.Logger
	ingestor *usecase.TickIngestor
	runtime  *strategy.Runtime
	executor *order.Executor
	manager  *order.Manager
	engine   *matching.Engine // nil in live mode
	audit    *usecase.AuditTrail
	closers  []func() error

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler

	chClient    *pkgch.Client
	redisClient *redis.Client
}

// New creates the application from its wired components. engine and
// audit may be nil when paper matching or Kafka auditing is disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	ingestor *usecase.TickIngestor,
	runtime *strategy.Runtime,
	manager *order.Manager,
	executor *order.Executor,
	engine *matching.Engine,
	audit *usecase.AuditTrail,
	chClient *pkgch.Client,
	redisClient *redis.Client,
) *App {
	return &App{
		cfg:         cfg,
		logger:      log.With("app"),
		ingestor:    ingestor,
		runtime:     runtime,
		manager:     manager,
		executor:    executor,
		engine:      engine,
		audit:       audit,
		chClient:    chClient,
		redisClient: redisClient,
	}
}

// SetHTTPHandler injects the HTTP handler before Run.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// AddCloser registers extra cleanup to run during shutdown.
func (a *App) AddCloser(fn func() error) { a.closers = append(a.closers, fn) }

// Run starts everything and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler, a.logger,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.ingestor.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("tick ingestor started",
		applogger.Strings("symbols", a.cfg.Feed.Symbols))

	go func() {
		if err := a.runtime.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("strategy runtime", applogger.Error(err))
		}
	}()

	go func() {
		if err := a.executor.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("order executor", applogger.Error(err))
		}
	}()

	go func() {
		if err := a.manager.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("order janitor", applogger.Error(err))
		}
	}()

	if a.engine != nil {
		go func() {
			if err := a.engine.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("matching engine", applogger.Error(err))
			}
		}()
		a.logger.Info("matching engine started (paper mode)")
	}

	if a.audit != nil {
		go func() {
			if err := a.audit.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("audit trail", applogger.Error(err))
			}
		}()
	}

	if err := a.httpServer.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

func (a *App) shutdown(ctx context.Context) error {
	if err := a.ingestor.Shutdown(ctx); err != nil {
		a.logger.Warn("ingestor stop", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", applogger.Error(err))
	}

	if err := a.manager.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("broker logout", applogger.Error(err))
	}

	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("audit close", applogger.Error(err))
		}
	}

	for _, fn := range a.closers {
		if err := fn(); err != nil {
			a.logger.Warn("closer", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close", applogger.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis close", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
