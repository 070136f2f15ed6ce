package di

import (
	"context"
	"fmt"

	"asset-index-sync/application/ports"
	"asset-index-sync/application/services"
	"asset-index-sync/domain/changes"
	"asset-index-sync/infrastructure/config"
	"asset-index-sync/infrastructure/messaging/eventbridge"
	"asset-index-sync/infrastructure/messaging/sqs"
	"asset-index-sync/infrastructure/persistence/dynamodb"
	"asset-index-sync/infrastructure/search"
	"asset-index-sync/pkg/observability"
	"asset-index-sync/pkg/resilience"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"go.uber.org/zap"
)

const serviceName = "asset-index-sync"

// ProvideLogLevel parses the configured level into an adjustable level so a
// config reload can change it at runtime.
func ProvideLogLevel(cfg *config.Config) (zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return level, nil
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() || cfg.IsLambda {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", serviceName), zap.String("environment", cfg.Environment)), nil
}

// ProvideTracerProvider installs the OTLP exporter when tracing is enabled.
// A nil provider is valid and flushes as a no-op.
func ProvideTracerProvider(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	if !cfg.EnableTracing {
		return nil, nil
	}
	return observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.TracingEndpoint,
	})
}

// ProvideTracer creates the application tracer. It takes the provider so the
// global provider is installed first.
func ProvideTracer(_ *observability.TracerProvider) *observability.Tracer {
	return observability.NewTracer(serviceName)
}

// ProvideAWSConfig creates AWS configuration. Inside Lambda with tracing on,
// SDK calls are recorded as X-Ray subsegments.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.EnableTracing && cfg.IsLambda {
		awsv2.AWSV2Instrumentor(&awsCfg.APIOptions)
	}
	return awsCfg, nil
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideSQSClient creates an SQS client
func ProvideSQSClient(awsCfg aws.Config) *awssqs.Client {
	return awssqs.NewFromConfig(awsCfg)
}

// ProvideCollector creates the Prometheus collector.
func ProvideCollector() *observability.Collector {
	return observability.NewCollector("asset_index_sync")
}

// ProvideMetrics creates the CloudWatch metrics buffer. With metrics disabled
// counters still reach the Prometheus collector.
func ProvideMetrics(client *awscloudwatch.Client, collector *observability.Collector, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	var cw observability.CloudWatchAPI
	if cfg.EnableMetrics {
		cw = client
	}
	return observability.NewMetrics(cfg.MetricsNamespace, cw, collector, logger.Named("metrics"))
}

// ProvideMetricsRecorder exposes the metrics buffer through its port.
func ProvideMetricsRecorder(m *observability.Metrics) ports.MetricsRecorder {
	return m
}

// ProvideCircuitBreaker creates the process-wide breaker guarding the search
// index. It survives across warm invocations.
func ProvideCircuitBreaker(cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *resilience.CircuitBreaker {
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.ErrorThreshold = cfg.ErrorThreshold
	breakerCfg.Timeout = cfg.CircuitTimeout()
	breakerCfg.OnStateChange = func(_, to resilience.CircuitState) {
		collector.SetCircuitState(int(to))
	}
	return resilience.NewCircuitBreaker(breakerCfg, logger)
}

// ProvideRetrier creates the retry policy bound to the breaker.
func ProvideRetrier(cfg *config.Config, breaker *resilience.CircuitBreaker, logger *zap.Logger) *resilience.Retrier {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	retryCfg.BaseDelay = cfg.BaseDelay()
	retryCfg.MaxDelay = cfg.MaxDelay()
	return resilience.NewRetrier(retryCfg, breaker, logger)
}

// ProvideSearchClient creates the bulk client. Requests are SigV4 signed
// unless the endpoint is plain http, which means a local cluster.
func ProvideSearchClient(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (ports.BulkIndexClient, error) {
	endpoint := cfg.OpenSearchEndpoint
	if endpoint == "" {
		endpoint = "http://localhost:9200"
	}
	clientCfg := search.ClientConfig{
		Endpoint: endpoint,
		Region:   cfg.AWSRegion,
		Service:  cfg.OpenSearchService,
		Timeout:  cfg.RequestTimeout(),
	}
	if !isPlainHTTP(endpoint) {
		clientCfg.Credentials = awsCfg.Credentials
	}

	es, err := search.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}
	return search.NewBulkClient(es, cfg.IndexName, logger)
}

func isPlainHTTP(endpoint string) bool {
	return len(endpoint) >= 7 && endpoint[:7] == "http://"
}

// ProvideChunkExecutor composes the bulk executor with the retry policy.
func ProvideChunkExecutor(client ports.BulkIndexClient, retrier *resilience.Retrier, metrics ports.MetricsRecorder, logger *zap.Logger) ports.ChunkExecutor {
	return services.NewRetryingExecutor(services.NewBulkExecutor(client, metrics, logger), retrier)
}

// ProvideDeadLetterQueue returns nil when no queue is configured; the router
// then only logs failures.
func ProvideDeadLetterQueue(client *awssqs.Client, cfg *config.Config, logger *zap.Logger) ports.DeadLetterQueue {
	if cfg.DLQURL == "" {
		logger.Warn("DLQ_URL not set, failed records will only be logged")
		return nil
	}
	return sqs.NewDeadLetterQueue(client, cfg.DLQURL, sqs.DefaultBreakerConfig(), logger)
}

// ProvideDeadLetterRouter creates the router.
func ProvideDeadLetterRouter(queue ports.DeadLetterQueue, metrics ports.MetricsRecorder, logger *zap.Logger) *services.DeadLetterRouter {
	return services.NewDeadLetterRouter(queue, metrics, logger)
}

// ProvideEventPublisher returns nil when no bus is configured.
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return nil
	}
	return eventbridge.NewEventBridgePublisher(client, cfg.EventBusName, logger)
}

// ProvideNormalizer creates the record normalizer.
func ProvideNormalizer(cfg *config.Config) *changes.Normalizer {
	return changes.NewNormalizer(cfg.IDAttribute)
}

// ProvideStreamHandler creates the stream handler.
func ProvideStreamHandler(
	cfg *config.Config,
	normalizer *changes.Normalizer,
	executor ports.ChunkExecutor,
	router *services.DeadLetterRouter,
	metrics ports.MetricsRecorder,
	publisher ports.EventPublisher,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *services.StreamHandler {
	return services.NewStreamHandler(
		services.StreamHandlerConfig{
			MaxBulkCount: cfg.BulkBatchSize,
			MaxBulkBytes: cfg.MaxBulkBytes(),
			Source:       "dynamodb-stream",
		},
		normalizer, executor, router, metrics, publisher, tracer, logger,
	)
}

// ProvideSourceScanner creates the backfill scanner over the source table.
func ProvideSourceScanner(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.SourceScanner {
	return dynamodb.NewSourceScanner(client, cfg.SourceTableName, cfg.IDAttribute, int32(cfg.BackfillPageSize), logger)
}

// ProvideRunLocker creates the backfill run lock, or nil when no lock table
// is configured.
func ProvideRunLocker(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.RunLocker {
	if cfg.LockTableName == "" {
		return nil
	}
	return dynamodb.NewRunLock(client, cfg.LockTableName, logger)
}

// ProvideBackfillService creates the backfill service.
func ProvideBackfillService(
	cfg *config.Config,
	scanner ports.SourceScanner,
	locker ports.RunLocker,
	normalizer *changes.Normalizer,
	executor ports.ChunkExecutor,
	router *services.DeadLetterRouter,
	metrics ports.MetricsRecorder,
	logger *zap.Logger,
) *services.BackfillService {
	svc := services.NewBackfillService(
		services.BackfillConfig{
			MaxBulkCount:   cfg.BulkBatchSize,
			MaxBulkBytes:   cfg.MaxBulkBytes(),
			PagesPerSecond: cfg.BackfillPagesPerSecond,
		},
		scanner, normalizer, executor, router, metrics, logger,
	)
	if locker != nil {
		svc.SetRunLock(locker, "backfill#"+cfg.IndexName, cfg.BackfillLease())
	}
	return svc
}
