// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. For each secret-bearing variable, read NAME_FILE through the
//     SecretProvider and inject the value under NAME.
//  4. Use envconfig to process struct tags and populate the Config struct.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate the struct using go-playground/validator.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretFileSuffix marks variables that point at a mounted secret file. For
// example GEOCODER_API_KEY_FILE=/run/secrets/geocoder populates GEOCODER_API_KEY.
const secretFileSuffix = "_FILE"

// secretTargets are the SecretString variables that accept a _FILE reference.
// Other *_FILE variables, such as SSL_CERT_FILE, are left alone.
var secretTargets = []string{
	"DATABASE_URL",
	"GEOCODER_API_KEY",
	"IMAGERY_API_KEY",
}

// secretTimeout bounds secret resolution at startup.
const secretTimeout = 10 * time.Second

type envLookup func(key string) (string, bool)

type envSet func(key, value string) error

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without mutating global state.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
	}
}

// LoadConfig loads and validates the service configuration. A nil provider
// defaults to reading mounted secret files from the local filesystem.
func LoadConfig(provider SecretProvider) (*Config, error) {
	if provider == nil {
		provider = NewFileSecretProvider()
	}
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv.Load does NOT override variables already present.
	_ = godotenv.Load()

	if err := resolveSecretFiles(provider, deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := checkConsistency(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// checkConsistency enforces rules spanning several fields that struct tags
// cannot express.
func checkConsistency(cfg *Config) error {
	if !cfg.UseStubs() {
		var missing []string
		if cfg.Providers.GeocoderURL == "" {
			missing = append(missing, "GEOCODER_BASE_URL")
		}
		if cfg.Providers.ImageryURL == "" {
			missing = append(missing, "IMAGERY_BASE_URL")
		}
		if len(missing) > 0 {
			return &ConfigError{
				Type:    ErrMissingEnv,
				Message: fmt.Sprintf("provider endpoints are required outside local mode: %s", strings.Join(missing, ", ")),
			}
		}
	}
	if cfg.Analysis.RetryMaxDelay < cfg.Analysis.RetryBaseDelay {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "RETRY_MAX_DELAY must not be shorter than RETRY_BASE_DELAY",
		}
	}
	return nil
}

// resolveSecretFiles looks up <NAME>_FILE for every secret-bearing variable,
// reads the referenced files via the provider, and injects the plaintext under
// NAME so that envconfig sees it. Targets already present in the environment
// win over the file. Several targets may share one file.
func resolveSecretFiles(provider SecretProvider, deps loaderDeps) error {
	targetToRef := make(map[string]string)
	var targets, refs []string
	seen := make(map[string]bool)

	for _, target := range secretTargets {
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		ref, ok := deps.lookupEnv(target + secretFileSuffix)
		if !ok || ref == "" {
			continue
		}
		targets = append(targets, target)
		targetToRef[target] = ref
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	if len(refs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretTimeout)
	defer cancel()

	resolved, err := provider.ReadSecrets(ctx, refs)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret files", len(refs)),
			Err:     err,
		}
	}

	var missing []string
	for _, target := range targets {
		value, ok := resolved[targetToRef[target]]
		if !ok {
			missing = append(missing, target)
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSecretResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secrets not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
