// Package config defines the configuration structure for the SolarScan
// analysis service. Configuration is loaded once at process start and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Mounted secret files (*_FILE)
//
// Any missing required value or invalid format aborts startup.
package config

import (
	"time"

	"solarscan/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only the
// config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"solarscan-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Providers     ProvidersConfig
	Analysis      AnalysisConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// UseStubs reports whether external providers should be replaced by the
// deterministic in-process fixtures.
func (c *Config) UseStubs() bool {
	return c.IsTestMode || c.Environment == "local"
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"40s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// Per client IP, applied to the submission endpoints only.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60" validate:"min=0"`
}

// DatabaseConfig holds the optional result archive connection. An empty URL
// disables persistence and the service runs memory-only.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-northeast-2"`

	// Completion events for result notifications. Empty disables publishing.
	AnalysisEventsQueue string `envconfig:"SQS_ANALYSIS_EVENTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ProvidersConfig holds the geocoding and imagery provider endpoints.
type ProvidersConfig struct {
	GeocoderURL    string       `envconfig:"GEOCODER_BASE_URL" validate:"omitempty,url"`
	GeocoderAPIKey SecretString `envconfig:"GEOCODER_API_KEY"`
	ImageryURL     string       `envconfig:"IMAGERY_BASE_URL" validate:"omitempty,url"`
	ImageryAPIKey  SecretString `envconfig:"IMAGERY_API_KEY"`

	Timeout     time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"5s" validate:"gt=0"`
	HTTPRetries int           `envconfig:"PROVIDER_HTTP_RETRIES" default:"1" validate:"min=0,max=5"`
	MaxInFlight int64         `envconfig:"PROVIDER_MAX_INFLIGHT" default:"16" validate:"min=1"`
	UserAgent   string        `envconfig:"PROVIDER_USER_AGENT" default:"SolarScan/1.0"`
}

// AnalysisConfig tunes the pipeline, its worker pool, and the result cache.
type AnalysisConfig struct {
	Workers          int           `envconfig:"ANALYSIS_WORKERS" default:"8" validate:"min=1"`
	QueueSize        int           `envconfig:"ANALYSIS_QUEUE_SIZE" default:"256" validate:"min=1"`
	Budget           time.Duration `envconfig:"ANALYSIS_BUDGET" default:"30s" validate:"gt=0"`
	EstimatedSeconds int           `envconfig:"ANALYSIS_ESTIMATED_SECONDS" default:"30"`
	ResultTTL        time.Duration `envconfig:"RESULT_TTL" default:"24h" validate:"gt=0"`
	FailedTTL        time.Duration `envconfig:"FAILED_TTL" default:"10m" validate:"gt=0"`

	RetryAttempts  int           `envconfig:"RETRY_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"200ms"`
	RetryMaxDelay  time.Duration `envconfig:"RETRY_MAX_DELAY" default:"2s"`

	GeocodeCacheSize int     `envconfig:"GEOCODE_CACHE_SIZE" default:"1024" validate:"min=1"`
	AmbiguityMargin  float64 `envconfig:"GEOCODE_AMBIGUITY_MARGIN" default:"0.1" validate:"gte=0,lte=1"`
	MaxCandidates    int     `envconfig:"GEOCODE_MAX_CANDIDATES" default:"5" validate:"min=1"`

	CoverageTerritory string        `envconfig:"COVERAGE_TERRITORY" default:"경기도" validate:"required"`
	ClimateValidity   time.Duration `envconfig:"CLIMATE_VALIDITY" default:"9600h"`
	ClimateCacheTTL   time.Duration `envconfig:"CLIMATE_CACHE_TTL" default:"1h"`

	SegmentationMinConfidence float64 `envconfig:"SEGMENTATION_MIN_CONFIDENCE" default:"0.6" validate:"gte=0,lte=1"`
	ObstructionMargin         float64 `envconfig:"ROOF_OBSTRUCTION_MARGIN" default:"0.1" validate:"gte=0,lt=1"`
	DefaultSlopeHouse         float64 `envconfig:"DEFAULT_SLOPE_HOUSE" default:"25" validate:"gte=0,lte=90"`
	DefaultSlopeApartment     float64 `envconfig:"DEFAULT_SLOPE_APARTMENT" default:"10" validate:"gte=0,lte=90"`
	OptimalSlope              float64 `envconfig:"OPTIMAL_SLOPE" default:"30" validate:"gte=0,lte=90"`

	// Optional YAML rate book; the built-in tariff is used when empty.
	RateTableFile string `envconfig:"RATE_TABLE_FILE"`

	SweepSchedule        string `envconfig:"SWEEP_SCHEDULE" default:"@every 5m"`
	ArchivePurgeSchedule string `envconfig:"ARCHIVE_PURGE_SCHEDULE" default:"@daily"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SolarScan"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a mounted secret file could not be read.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
