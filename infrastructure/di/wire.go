//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"asset-index-sync/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogLevel,
	ProvideLogger,
	ProvideTracerProvider,
	ProvideTracer,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideSQSClient,
	ProvideCollector,
	ProvideMetrics,
	ProvideMetricsRecorder,
	ProvideCircuitBreaker,
	ProvideRetrier,
	ProvideSearchClient,
	ProvideChunkExecutor,
	ProvideDeadLetterQueue,
	ProvideDeadLetterRouter,
	ProvideEventPublisher,
	ProvideNormalizer,
	ProvideStreamHandler,
	ProvideSourceScanner,
	ProvideRunLocker,
	ProvideBackfillService,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
