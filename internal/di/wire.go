//go:build wireinject
// +build wireinject

package di

import (
	"StockVote/internal/usecase"
	"StockVote/pkg/config"
	"StockVote/pkg/server"

	"github.com/google/wire"
)

var analysisSet = wire.NewSet(
	// Ambient
	ProvideLogger,
	ProvideMetrics,
	ProvideMetricsPort,

	// Infrastructure clients
	ProvideClickHouseClient,
	ProvidePostgres,
	ProvideCache,

	// Repositories
	ProvideResilientMarketData,
	ProvideMarketData,
	ProvideUniverse,
	ProvideResultStore,
	ProvideEventPublisher,

	// Use cases
	ProvideRegistry,
	ProvideConsensusEngine,
	ProvideAnalyzer,
	ProvideBatchEngine,
	ProvideReportService,
	ProvideRetentionJob,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		analysisSet,
		ProvideHTTPHandler,
		ProvideKafkaConsumer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeServices wires the analysis services without the HTTP server.
func InitializeServices(cfg *config.Config) (*Services, func(), error) {
	wire.Build(
		analysisSet,
		ProvideServices,
	)
	return nil, nil, nil
}

// InitializeRetention only needs the result store.
func InitializeRetention(cfg *config.Config) (*usecase.RetentionJob, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideMetricsPort,
		ProvidePostgres,
		ProvideResultStore,
		ProvideRetentionJob,
	)
	return nil, nil, nil
}
