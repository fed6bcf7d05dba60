//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinCast/pkg/config"
	"FinCast/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,

		// Forecasting
		ProvideForecastConfig,
		ProvidePipeline,

		// Repositories
		ProvideBarStore,
		ProvideSeriesSource,
		ProvideForecastStore,
		ProvideSinks,

		// Use cases and transports
		ProvideHub,
		ProvideForecastRunner,
		ProvideScheduler,
		ProvideBarIngest,
		ProvideRunRequestHandler,
		ProvideKafkaConsumer,
		ProvideQueue,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
