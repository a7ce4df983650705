// Package bootstrap assembles the analysis pipeline from configuration. It is
// shared by the API server and the operator CLI so both run the same stack.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"solarscan/internal/analysis"
	"solarscan/internal/climate"
	"solarscan/internal/config"
	"solarscan/internal/db"
	"solarscan/internal/economics"
	"solarscan/internal/external"
	"solarscan/internal/geocode"
	"solarscan/internal/queue"
	"solarscan/internal/roof"
	"solarscan/internal/telemetry"
	"solarscan/internal/types"
	"solarscan/internal/yield"
)

// Pipeline is a fully wired orchestrator plus the resources it holds. The
// database fields are nil when no DATABASE_URL is configured, Metrics is nil
// when CloudWatch publishing is disabled.
type Pipeline struct {
	Orchestrator *analysis.Orchestrator
	Store        *analysis.Store
	Registry     *external.ClientRegistry

	Pool    *pgxpool.Pool
	Archive *db.AnalysisRepository
	Climate *db.ClimateRepository

	Metrics *telemetry.CloudWatchMetrics
}

// Option customizes Build.
type Option func(*options)

type options struct {
	clock     types.Clock
	notifier  analysis.Notifier
	awsConfig *aws.Config
}

// WithClock overrides the wall clock used by the store and resolver.
func WithClock(c types.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithNotifier replaces the configured completion notifier.
func WithNotifier(n analysis.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithAWSConfig skips default credential resolution.
func WithAWSConfig(c aws.Config) Option {
	return func(o *options) { o.awsConfig = &c }
}

// Build wires the pipeline. The orchestrator is returned stopped; callers
// Start it once the surrounding process is ready.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := options{clock: types.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	var regOpts []external.RegistryOption
	if cfg.Database.URL.IsSet() {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		p.Pool = pool
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		p.Archive = db.NewAnalysisRepository(pool)
		p.Climate = db.NewClimateRepository(pool)

		n, err := SeedClimateIfEmpty(ctx, p.Climate, external.NewStaticClimateStore(o.clock.Now()), cfg.Analysis.CoverageTerritory)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			logger.Info("seeded climate table from built-in series", "series", n)
		}
		regOpts = append(regOpts, external.WithClimateSource(p.Climate))
	}
	regOpts = append(regOpts, external.WithNow(o.clock.Now))

	reg, err := external.NewClientRegistry(cfg, logger, regOpts...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: providers: %w", err)
	}
	p.Registry = reg

	rates := economics.NewRateBook()
	if cfg.Analysis.RateTableFile != "" {
		if rates, err = economics.LoadRateBook(cfg.Analysis.RateTableFile); err != nil {
			return nil, err
		}
	}

	notifier := o.notifier
	var metrics analysis.Metrics = analysis.NoopMetrics{}
	publish := notifier == nil && cfg.AWS.AnalysisEventsQueue != ""
	if publish || cfg.Observability.EnableMetrics {
		awsCfg, err := loadAWS(ctx, cfg.AWS, o.awsConfig)
		if err != nil {
			return nil, err
		}
		if publish {
			client := sqs.NewFromConfig(awsCfg, func(so *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					so.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			notifier = queue.NewCompletionPublisher(client, cfg.AWS, logger)
		}
		if cfg.Observability.EnableMetrics {
			client := cloudwatch.NewFromConfig(awsCfg, func(co *cloudwatch.Options) {
				if cfg.AWS.EndpointURL != "" {
					co.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			p.Metrics = telemetry.NewCloudWatchMetrics(client, cfg.Observability.MetricNamespace, logger)
			metrics = p.Metrics
		}
	}
	if notifier == nil {
		notifier = analysis.LogNotifier{Logger: logger}
	}

	p.Store = analysis.NewStore(o.clock, cfg.Analysis.ResultTTL, cfg.Analysis.FailedTTL)

	resolver := climate.NewResolver(reg.Climate, climate.Config{
		Territory: cfg.Analysis.CoverageTerritory,
		Boundary:  climate.GyeonggiTerritory(),
		Validity:  cfg.Analysis.ClimateValidity,
		CacheTTL:  cfg.Analysis.ClimateCacheTTL,
	}, o.clock, logger)

	deps := analysis.Deps{
		Geocoder: geocode.New(reg.Geocoder, geocoderConfig(cfg.Analysis), logger),
		Roof:     roof.NewEstimator(reg.Imagery, roofConfig(cfg.Analysis), logger),
		Climate:  resolver,
		Yield:    yield.NewPredictor(nil, yieldConfig(cfg.Analysis)),
		Rates:    rates,
		Store:    p.Store,
		Notifier: notifier,
		Metrics:  metrics,
		Clock:    o.clock,
		Logger:   logger,
	}
	if p.Archive != nil {
		deps.Archive = p.Archive
	}

	orch, err := analysis.New(OrchestratorConfig(cfg.Analysis), deps)
	if err != nil {
		return nil, err
	}
	p.Orchestrator = orch

	ok = true
	return p, nil
}

// Close releases the database pool. It does not stop the orchestrator.
func (p *Pipeline) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// OrchestratorConfig maps the environment settings onto the worker pool.
func OrchestratorConfig(ac config.AnalysisConfig) analysis.Config {
	cfg := analysis.DefaultConfig()
	cfg.Workers = ac.Workers
	cfg.QueueSize = ac.QueueSize
	cfg.Budget = ac.Budget
	cfg.EstimatedSeconds = ac.EstimatedSeconds
	cfg.Territory = ac.CoverageTerritory
	cfg.Retry.Attempts = ac.RetryAttempts
	cfg.Retry.BaseDelay = ac.RetryBaseDelay
	cfg.Retry.MaxDelay = ac.RetryMaxDelay
	return cfg
}

func geocoderConfig(ac config.AnalysisConfig) geocode.Config {
	cfg := geocode.DefaultConfig()
	cfg.CacheSize = ac.GeocodeCacheSize
	cfg.Margin = ac.AmbiguityMargin
	cfg.MaxCandidates = ac.MaxCandidates
	return cfg
}

func roofConfig(ac config.AnalysisConfig) roof.Config {
	cfg := roof.DefaultConfig()
	cfg.MinConfidence = ac.SegmentationMinConfidence
	cfg.ObstructionMargin = ac.ObstructionMargin
	cfg.DefaultSlope = map[types.BuildingType]float64{
		types.BuildingHouse:     ac.DefaultSlopeHouse,
		types.BuildingApartment: ac.DefaultSlopeApartment,
	}
	return cfg
}

func yieldConfig(ac config.AnalysisConfig) yield.Config {
	cfg := yield.DefaultConfig()
	cfg.OptimalSlope = ac.OptimalSlope
	return cfg
}

func loadAWS(ctx context.Context, ac config.AWSConfig, preset *aws.Config) (aws.Config, error) {
	if preset != nil {
		return *preset, nil
	}
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(loadCtx, awsconfig.WithRegion(ac.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return awsCfg, nil
}
