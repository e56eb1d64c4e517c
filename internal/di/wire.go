//go:build wireinject
// +build wireinject

package di

import (
	"TradePulse/pkg/config"
	"TradePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Buses
		ProvideStreamBus,
		ProvideTickBus,
		ProvideSignalBus,

		// Market data path
		ProvideMarketStream,
		ProvideIngestPipeline,
		ProvideTickIngestor,

		// Strategy runtime
		ProvideCalendar,
		ProvideRuntime,

		// Order path
		ProvideOrderStore,
		ProvideMatchingEngine,
		ProvideBroker,
		ProvideSessionManager,
		ProvideAuditTrail,
		ProvideOrderManager,
		ProvideExecutor,

		// HTTP and application
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
