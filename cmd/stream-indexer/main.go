package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"asset-index-sync/application/services"
	"asset-index-sync/infrastructure/config"
	"asset-index-sync/infrastructure/di"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"
)

// Global variables for Lambda lifecycle management
var (
	// container holds the dependency injection container
	container *di.Container

	// coldStart tracks whether this is a cold start invocation
	coldStart = true
)

// init runs during cold start
func init() {
	coldStartTime := time.Now()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize dependency container
	container, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)),
		zap.String("index", cfg.IndexName),
		zap.Int("bulk_batch_size", cfg.BulkBatchSize),
		zap.Int("max_retries", cfg.MaxRetries),
	)
}

// Handler is the Lambda function handler. A returned error makes the stream
// redeliver the batch; partial failures are dead-lettered and reported with
// a 200 summary instead.
func Handler(ctx context.Context, event json.RawMessage) (services.Summary, error) {
	fields := []zap.Field{zap.Bool("cold_start", coldStart)}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		fields = append(fields, zap.String("aws_request_id", lc.AwsRequestID))
	}
	coldStart = false
	container.Logger.Debug("invocation started", fields...)

	summary, err := container.StreamHandler.Handle(ctx, event)

	// Lambda may freeze the process right after returning.
	if flushErr := container.Tracing.ForceFlush(ctx); flushErr != nil {
		container.Logger.Warn("trace flush failed", zap.Error(flushErr))
	}
	_ = container.Logger.Sync()

	return summary, err
}

func main() {
	lambda.Start(Handler)
}
