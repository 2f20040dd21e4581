//go:build wireinject
// +build wireinject

package di

import (
	"QuantLens/internal/usecase"
	"QuantLens/pkg/config"
	"QuantLens/pkg/server"

	"github.com/google/wire"
)

var analyticsSet = wire.NewSet(
	// Ambient
	ProvideLogger,
	ProvideMetrics,
	ProvideRateLimiter,

	// Infrastructure clients
	ProvideClickHouseClient,

	// Upstreams
	ProvidePriceFetcher,
	ProvideNewsFetcher,
	ProvideSentimentScorer,
	ProvideForecaster,

	// Use cases
	ProvideAnalyticsUseCase,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		analyticsSet,
		ProvideCache,
		ProvideSnapshotStore,
		ProvideSnapshotPublisher,
		ProvideSnapshotRefresher,
		ProvideAnalyticsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeAnalytics wires the analytics use case alone for one-shot runs.
func InitializeAnalytics(cfg *config.Config) (*usecase.AnalyticsUseCase, func(), error) {
	wire.Build(analyticsSet)
	return nil, nil, nil
}
