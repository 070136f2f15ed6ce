package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment" validate:"oneof=development test staging production"`

	// AWS configuration
	AWSRegion       string `yaml:"aws_region" validate:"required"`
	SourceTableName string `yaml:"source_table_name"`
	EventBusName    string `yaml:"event_bus_name"`
	DLQURL          string `yaml:"dlq_url" validate:"omitempty,url"`

	// Lambda configuration
	IsLambda           bool   `yaml:"-"`
	LambdaFunctionName string `yaml:"-"`

	// Search index
	OpenSearchEndpoint string `yaml:"opensearch_endpoint" validate:"required_if=IsLambda true"`
	OpenSearchService  string `yaml:"opensearch_service" validate:"oneof=es aoss"`
	IndexName          string `yaml:"index_name" validate:"required"`
	IDAttribute        string `yaml:"id_attribute" validate:"required"`
	RequestTimeoutSecs int    `yaml:"request_timeout_seconds" validate:"min=1"`

	// Bulk limits
	BulkBatchSize int     `yaml:"bulk_batch_size" validate:"min=1,max=10000"`
	MaxBulkSizeMB float64 `yaml:"max_bulk_size_mb" validate:"gt=0,lte=100"`

	// Circuit breaker and retry
	ErrorThreshold        float64 `yaml:"error_threshold" validate:"gt=0,lte=1"`
	CircuitTimeoutSeconds int     `yaml:"circuit_timeout_seconds" validate:"min=1"`
	MaxRetries            int     `yaml:"max_retries" validate:"min=0,max=50"`
	BaseDelaySeconds      float64 `yaml:"base_delay_seconds" validate:"gt=0"`
	MaxDelaySeconds       float64 `yaml:"max_delay_seconds" validate:"gtefield=BaseDelaySeconds"`

	// Backfill
	BackfillPagesPerSecond float64 `yaml:"backfill_pages_per_second" validate:"min=0"`
	BackfillPageSize       int     `yaml:"backfill_page_size" validate:"min=0"`
	// LockTableName enables the backfill run lock when set.
	LockTableName        string `yaml:"lock_table_name"`
	BackfillLeaseMinutes int    `yaml:"backfill_lease_minutes" validate:"min=1"`

	// Logging
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Observability
	MetricsNamespace string `yaml:"metrics_namespace"`
	EnableMetrics    bool   `yaml:"enable_metrics"`
	EnableTracing    bool   `yaml:"enable_tracing"`
	TracingEndpoint  string `yaml:"tracing_endpoint"`

	// ConfigFile is the YAML overlay this configuration was read from, if any.
	ConfigFile string `yaml:"-"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		ServerAddress:          ":8080",
		Environment:            "development",
		AWSRegion:              "us-east-1",
		OpenSearchService:      "es",
		IDAttribute:            "InventoryID",
		RequestTimeoutSecs:     30,
		BulkBatchSize:          500,
		MaxBulkSizeMB:          5,
		ErrorThreshold:         0.3,
		CircuitTimeoutSeconds:  60,
		MaxRetries:             15,
		BaseDelaySeconds:       3,
		MaxDelaySeconds:        60,
		BackfillPagesPerSecond: 5,
		BackfillLeaseMinutes:   120,
		LogLevel:               "info",
		MetricsNamespace:       "AssetIndexSync",
		EnableMetrics:          true,
		TracingEndpoint:        "localhost:4317",
	}
}

// LoadConfig builds the configuration from, lowest priority first: defaults,
// the YAML file named by CONFIG_FILE, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnvironmentVariables()

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

func (c *Config) loadEnvironmentVariables() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.SourceTableName = getEnv("SOURCE_TABLE_NAME", c.SourceTableName)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.DLQURL = getEnv("DLQ_URL", c.DLQURL)

	c.LambdaFunctionName = getEnv("AWS_LAMBDA_FUNCTION_NAME", "")
	c.IsLambda = getEnvBool("IS_LAMBDA", c.LambdaFunctionName != "")

	c.OpenSearchEndpoint = getEnv("OPENSEARCH_ENDPOINT", c.OpenSearchEndpoint)
	c.OpenSearchService = getEnv("OPENSEARCH_SERVICE", c.OpenSearchService)
	c.IndexName = getEnv("INDEX_NAME", c.IndexName)
	c.IDAttribute = getEnv("ID_ATTRIBUTE", c.IDAttribute)
	c.RequestTimeoutSecs = getEnvInt("REQUEST_TIMEOUT_SECONDS", c.RequestTimeoutSecs)

	c.BulkBatchSize = getEnvInt("BULK_BATCH_SIZE", c.BulkBatchSize)
	c.MaxBulkSizeMB = getEnvFloat("MAX_BULK_SIZE_MB", c.MaxBulkSizeMB)

	c.ErrorThreshold = getEnvFloat("ERROR_THRESHOLD", c.ErrorThreshold)
	c.CircuitTimeoutSeconds = getEnvInt("CIRCUIT_TIMEOUT_SECONDS", c.CircuitTimeoutSeconds)
	c.MaxRetries = getEnvInt("MAX_RETRIES", c.MaxRetries)
	c.BaseDelaySeconds = getEnvFloat("BASE_DELAY_SECONDS", c.BaseDelaySeconds)
	c.MaxDelaySeconds = getEnvFloat("MAX_DELAY_SECONDS", c.MaxDelaySeconds)

	c.BackfillPagesPerSecond = getEnvFloat("BACKFILL_PAGES_PER_SECOND", c.BackfillPagesPerSecond)
	c.BackfillPageSize = getEnvInt("BACKFILL_PAGE_SIZE", c.BackfillPageSize)
	c.LockTableName = getEnv("LOCK_TABLE_NAME", c.LockTableName)
	c.BackfillLeaseMinutes = getEnvInt("BACKFILL_LEASE_MINUTES", c.BackfillLeaseMinutes)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MetricsNamespace = getEnv("METRICS_NAMESPACE", c.MetricsNamespace)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.TracingEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.TracingEndpoint)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (%d problem(s)): %w",
				first.Namespace(), first.Tag(), len(errs), err)
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// MaxBulkBytes is the bulk payload limit in bytes.
func (c *Config) MaxBulkBytes() int {
	return int(c.MaxBulkSizeMB * 1024 * 1024)
}

// CircuitTimeout is how long the breaker stays open.
func (c *Config) CircuitTimeout() time.Duration {
	return time.Duration(c.CircuitTimeoutSeconds) * time.Second
}

// BaseDelay is the first retry delay.
func (c *Config) BaseDelay() time.Duration {
	return seconds(c.BaseDelaySeconds)
}

// MaxDelay caps the retry delay.
func (c *Config) MaxDelay() time.Duration {
	return seconds(c.MaxDelaySeconds)
}

// RequestTimeout bounds a single search request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// BackfillLease is how long a backfill run lock is held before others may
// take it over.
func (c *Config) BackfillLease() time.Duration {
	return time.Duration(c.BackfillLeaseMinutes) * time.Minute
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
