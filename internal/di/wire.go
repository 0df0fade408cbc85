//go:build wireinject
// +build wireinject

package di

import (
	"BookPulse/pkg/config"
	"BookPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideSnapshotStore,
		ProvideAlertPublisher,
		ProvideDepthStream,
		ProvideTradeStream,

		// Analytics services
		ProvideOrderFlowAnalyzer,
		ProvideVolumeProfileBuilder,
		ProvideAnomalyDetector,
		ProvideHealthScorer,

		// Use cases
		ProvideSnapshotProcessor,
		ProvideSnapshotCollector,
		ProvideMarketReport,

		// HTTP
		ProvideAnalyticsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
