//go:build wireinject
// +build wireinject

package di

import (
	"SignalDesk/pkg/config"
	"SignalDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideInstruments,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideErrorCollector,
		ProvideClickHouseClient,

		// Repositories and adapters
		ProvideHistory,
		ProvideSignalStore,
		ProvideEMAStateStore,
		ProvideMarketData,
		ProvideSnapshotBuilder,

		// Domain services
		ProvideProfiles,
		ProvideEvaluator,

		// Notifiers
		ProvideHub,
		ProvideQueue,
		ProvideNotifiers,

		// Use cases
		ProvideDispatcher,
		ProvideEvaluateUseCase,
		ProvideMonitor,
		ProvideSnapshotPipeline,
		ProvideKafkaConsumer,

		// HTTP
		ProvideRateLimiter,
		ProvideHealthChecks,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
