package di

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asset-index-sync/infrastructure/config"
	"asset-index-sync/pkg/resilience"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.IndexName = "assets"
	return cfg
}

func TestProvideLogLevel(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "warn"

	level, err := ProvideLogLevel(cfg)
	require.NoError(t, err)
	assert.Equal(t, zap.WarnLevel, level.Level())

	logger, err := ProvideLogger(cfg, level)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	level.SetLevel(zap.DebugLevel)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel), "level changes apply to built loggers")

	cfg.LogLevel = "loud"
	_, err = ProvideLogLevel(cfg)
	assert.Error(t, err)
}

func TestOptionalAdaptersAreNilWhenUnconfigured(t *testing.T) {
	cfg := testConfig()
	awsCfg := aws.Config{Region: "us-east-1"}

	assert.Nil(t, ProvideDeadLetterQueue(awssqs.NewFromConfig(awsCfg), cfg, zap.NewNop()))
	assert.Nil(t, ProvideEventPublisher(awseventbridge.NewFromConfig(awsCfg), cfg, zap.NewNop()))

	cfg.DLQURL = "https://sqs.us-east-1.amazonaws.com/123456789012/dlq"
	cfg.EventBusName = "asset-events"
	assert.NotNil(t, ProvideDeadLetterQueue(awssqs.NewFromConfig(awsCfg), cfg, zap.NewNop()))
	assert.NotNil(t, ProvideEventPublisher(awseventbridge.NewFromConfig(awsCfg), cfg, zap.NewNop()))

	dynamo := awsdynamodb.NewFromConfig(awsCfg)
	assert.Nil(t, ProvideRunLocker(dynamo, cfg, zap.NewNop()))
	cfg.LockTableName = "locks"
	assert.NotNil(t, ProvideRunLocker(dynamo, cfg, zap.NewNop()))
}

func TestProvideCircuitBreaker_MirrorsStateToCollector(t *testing.T) {
	cfg := testConfig()
	collector := ProvideCollector()
	breaker := ProvideCircuitBreaker(cfg, collector, zap.NewNop())

	for i := 0; i < 10; i++ {
		breaker.RecordFailure()
	}

	assert.Equal(t, resilience.StateOpen, breaker.State())
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(collector.CircuitState))
}

func TestProvideSearchClient_LocalEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.OpenSearchEndpoint = "http://localhost:9200"

	client, err := ProvideSearchClient(cfg, aws.Config{}, zap.NewNop())

	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.True(t, isPlainHTTP(cfg.OpenSearchEndpoint))
	assert.False(t, isPlainHTTP("https://search.example.com"))
}
