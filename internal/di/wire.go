//go:build wireinject
// +build wireinject

package di

import (
	"FinFolio/pkg/config"
	"FinFolio/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories and external services
		ProvidePortfolioStore,
		ProvideAnalysisCache,
		ProvideOperationPublisher,
		ProvideMarketData,
		ProvidePriceStore,
		ProvideOperationAudit,
		ProvideAnalysisLog,
		ProvideNarrativeGenerator,

		// Use cases
		ProvideHistoryService,
		ProvidePortfolioUseCase,
		ProvideAnalysisUseCase,
		ProvideJobQueue,
		ProvideKafkaConsumer,
		ProvideQuoteCollector,

		// Application server
		ProvideRouter,
		ProvideApp,
	)
	return &server.App{}, nil
}
