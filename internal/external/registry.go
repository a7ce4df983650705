package external

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"solarscan/internal/config"
)

// ClientRegistry holds every provider the pipeline consumes, each already
// wrapped by the shared in-flight Gate. In stub mode the providers are the
// deterministic fixtures; otherwise they are HTTP adapters with strict
// timeouts.
type ClientRegistry struct {
	Geocoder GeocodingProvider
	Imagery  ImageryProvider
	Climate  ClimateSource
	Gate     *Gate
	Stubbed  bool
}

// RegistryOption is a functional option for configuring a ClientRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	climate    ClimateSource
	httpClient *http.Client
	now        func() time.Time
}

// WithClimateSource supplies the climate store, typically the database
// repository. Without it the built-in static table is used.
func WithClimateSource(src ClimateSource) RegistryOption {
	return func(rc *registryConfig) {
		rc.climate = src
	}
}

// WithHTTPClient overrides the HTTP client shared by the provider adapters.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(rc *registryConfig) {
		rc.httpClient = c
	}
}

// WithNow overrides the clock used to stamp the static climate table.
func WithNow(now func() time.Time) RegistryOption {
	return func(rc *registryConfig) {
		rc.now = now
	}
}

// NewClientRegistry initializes all providers from configuration.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &registryConfig{now: time.Now}
	for _, opt := range opts {
		opt(rc)
	}

	gate := NewGate(cfg.Providers.MaxInFlight)
	reg := &ClientRegistry{Gate: gate, Stubbed: cfg.UseStubs()}

	if reg.Stubbed {
		logger.Info("initializing providers in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		stubLogger := logger.With("mode", "stub")
		reg.Geocoder = GateGeocoder(NewStubGeocoder(stubLogger), gate)
		reg.Imagery = GateImagery(NewStubImagery(stubLogger), gate)
	} else {
		if cfg.Providers.GeocoderURL == "" || cfg.Providers.ImageryURL == "" {
			return nil, fmt.Errorf("provider base URLs are required outside stub mode")
		}
		logger.Info("initializing providers in PRODUCTION mode", "environment", cfg.Environment)

		httpClient := rc.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.Providers.Timeout}
		}
		retry := DefaultRetryPolicy()
		retry.MaxRetries = cfg.Providers.HTTPRetries

		reg.Geocoder = GateGeocoder(NewHTTPGeocoder(httpClient, GeocoderClientConfig{
			APIKey:    cfg.Providers.GeocoderAPIKey.Unmask(),
			BaseURL:   cfg.Providers.GeocoderURL,
			UserAgent: cfg.Providers.UserAgent,
			Retry:     retry,
			Logger:    logger.With("client", "geocoder"),
		}), gate)
		reg.Imagery = GateImagery(NewHTTPImagery(httpClient, ImageryClientConfig{
			APIKey:    cfg.Providers.ImageryAPIKey.Unmask(),
			BaseURL:   cfg.Providers.ImageryURL,
			UserAgent: cfg.Providers.UserAgent,
			Retry:     retry,
			Logger:    logger.With("client", "imagery"),
		}), gate)
	}

	climate := rc.climate
	if climate == nil {
		if !reg.Stubbed {
			logger.Warn("no climate source configured, using built-in Gyeonggi table")
		}
		climate = NewStaticClimateStore(rc.now())
	}
	reg.Climate = GateClimate(climate, gate)

	return reg, nil
}
