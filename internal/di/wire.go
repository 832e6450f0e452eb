//go:build wireinject
// +build wireinject

package di

import (
	"FinFeed/internal/usecase"
	"FinFeed/pkg/config"
	"FinFeed/pkg/server"

	"github.com/google/wire"
)

// MarketSet builds the cached fallback chain shared by the server and the CLI.
var MarketSet = wire.NewSet(
	// Infrastructure
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideCacheBackend,
	ProvideStore,

	// Sources
	ProvideAdapters,
	ProvideRegistry,
	ProvideValidator,

	// Use cases
	ProvideOrchestrator,
	ProvideMarketData,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		MarketSet,

		// Sink
		ProvideClickHouseClient,
		ProvideQuoteArchive,
		ProvideQuotePublisher,
		ProvideQuoteProcessor,
		ProvidePipeline,

		// Realtime
		ProvideSubscriptionManager,
		ProvideHeartbeat,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeMarketData wires the market data facade for one-shot commands.
func InitializeMarketData(cfg *config.Config) (*usecase.MarketData, func(), error) {
	wire.Build(MarketSet)
	return nil, nil, nil
}
