package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testSecretProvider is a configurable mock for secret file resolution.
type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
}

func (p *testSecretProvider) ReadSecrets(_ context.Context, refs []string) (map[string]string, error) {
	p.calledWith = append(p.calledWith, refs...)
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]string)
	for _, r := range refs {
		if v, ok := p.values[r]; ok {
			out[r] = v
		}
	}
	return out, nil
}

// setLocalEnv sets the minimal environment for a valid local Config.
func setLocalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("OTEL_SERVICE_NAME", "test-service")
	t.Setenv("LOG_LEVEL", "debug")
}

// mapDeps builds loaderDeps over an in-memory environment.
func mapDeps(env map[string]string) loaderDeps {
	return loaderDeps{
		lookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
		setEnv: func(k, v string) error {
			env[k] = v
			return nil
		},
	}
}

func TestLoadConfigLocalDefaults(t *testing.T) {
	setLocalEnv(t)

	cfg, err := LoadConfig(&testSecretProvider{})
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want local", cfg.Environment)
	}
	if !cfg.UseStubs() {
		t.Error("local environment should use stub providers")
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want default 8080", cfg.Server.Port)
	}
	if cfg.Analysis.Budget != 30*time.Second {
		t.Errorf("Analysis.Budget = %v, want 30s", cfg.Analysis.Budget)
	}
	if cfg.Analysis.Workers != 8 {
		t.Errorf("Analysis.Workers = %d, want 8", cfg.Analysis.Workers)
	}
	if cfg.Analysis.CoverageTerritory != "경기도" {
		t.Errorf("Analysis.CoverageTerritory = %q", cfg.Analysis.CoverageTerritory)
	}
	if cfg.Analysis.ObstructionMargin != 0.1 {
		t.Errorf("Analysis.ObstructionMargin = %v, want 0.1", cfg.Analysis.ObstructionMargin)
	}
	if cfg.Database.URL.IsSet() {
		t.Error("Database.URL should default to empty (memory-only)")
	}
	if cfg.Build.Version != "dev" {
		t.Errorf("Build.Version = %q, want dev", cfg.Build.Version)
	}
}

func TestLoadConfigInvalidAppEnv(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("APP_ENV", "moon")

	_, err := LoadConfig(&testSecretProvider{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrValidation {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestLoadConfigParsingFailure(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("ANALYSIS_WORKERS", "many")

	_, err := LoadConfig(&testSecretProvider{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrParsing {
		t.Errorf("expected PARSING_FAILED, got %v", err)
	}
}

func TestLoadConfigProductionRequiresProviders(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("APP_ENV", "prod")

	_, err := LoadConfig(&testSecretProvider{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrMissingEnv {
		t.Fatalf("expected MISSING_ENV, got %v", err)
	}
	if !strings.Contains(cfgErr.Message, "GEOCODER_BASE_URL") {
		t.Errorf("message should name the missing variable: %q", cfgErr.Message)
	}
}

func TestLoadConfigRetryDelayOrdering(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("RETRY_BASE_DELAY", "5s")
	t.Setenv("RETRY_MAX_DELAY", "1s")

	_, err := LoadConfig(&testSecretProvider{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrValidation {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestResolveSecretFilesInjectsValues(t *testing.T) {
	env := map[string]string{
		"GEOCODER_API_KEY_FILE": "/run/secrets/geocoder",
	}
	provider := &testSecretProvider{values: map[string]string{"/run/secrets/geocoder": "kakao-secret"}}

	if err := resolveSecretFiles(provider, mapDeps(env)); err != nil {
		t.Fatalf("resolveSecretFiles: %v", err)
	}
	if env["GEOCODER_API_KEY"] != "kakao-secret" {
		t.Errorf("GEOCODER_API_KEY = %q", env["GEOCODER_API_KEY"])
	}
}

func TestResolveSecretFilesEnvWins(t *testing.T) {
	env := map[string]string{
		"GEOCODER_API_KEY":      "from-env",
		"GEOCODER_API_KEY_FILE": "/run/secrets/geocoder",
	}
	provider := &testSecretProvider{values: map[string]string{"/run/secrets/geocoder": "from-file"}}

	if err := resolveSecretFiles(provider, mapDeps(env)); err != nil {
		t.Fatalf("resolveSecretFiles: %v", err)
	}
	if env["GEOCODER_API_KEY"] != "from-env" {
		t.Errorf("environment value should win, got %q", env["GEOCODER_API_KEY"])
	}
	if len(provider.calledWith) != 0 {
		t.Errorf("provider should not be called, got %v", provider.calledWith)
	}
}

func TestResolveSecretFilesMissing(t *testing.T) {
	env := map[string]string{"IMAGERY_API_KEY_FILE": "/run/secrets/imagery"}

	err := resolveSecretFiles(&testSecretProvider{}, mapDeps(env))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrSecretResolution {
		t.Fatalf("expected SECRET_FAILURE, got %v", err)
	}
	if !strings.Contains(cfgErr.Message, "IMAGERY_API_KEY") {
		t.Errorf("message should name the target: %q", cfgErr.Message)
	}
}

func TestResolveSecretFilesSharedFile(t *testing.T) {
	env := map[string]string{
		"GEOCODER_API_KEY_FILE": "/run/secrets/shared",
		"IMAGERY_API_KEY_FILE":  "/run/secrets/shared",
	}
	provider := &testSecretProvider{values: map[string]string{"/run/secrets/shared": "k"}}

	if err := resolveSecretFiles(provider, mapDeps(env)); err != nil {
		t.Fatalf("resolveSecretFiles: %v", err)
	}
	if env["GEOCODER_API_KEY"] != "k" || env["IMAGERY_API_KEY"] != "k" {
		t.Errorf("GEOCODER_API_KEY=%q IMAGERY_API_KEY=%q, want both k", env["GEOCODER_API_KEY"], env["IMAGERY_API_KEY"])
	}
	if len(provider.calledWith) != 1 {
		t.Errorf("shared file should be read once, got %v", provider.calledWith)
	}
}

func TestResolveSecretFilesIgnoresUnrelatedFiles(t *testing.T) {
	env := map[string]string{
		"SSL_CERT_FILE":     "/etc/ssl/certs/ca-bundle.crt",
		"NIX_SSL_CERT_FILE": "/etc/ssl/certs/ca-bundle.crt",
	}
	provider := &testSecretProvider{}

	if err := resolveSecretFiles(provider, mapDeps(env)); err != nil {
		t.Fatalf("resolveSecretFiles: %v", err)
	}
	if len(provider.calledWith) != 0 {
		t.Errorf("provider should not be called, got %v", provider.calledWith)
	}
	if _, ok := env["SSL_CERT"]; ok {
		t.Error("SSL_CERT must not be injected")
	}
}

func TestLoadConfigWithSSLCertFile(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("SSL_CERT_FILE", "/etc/ssl/certs/ca-bundle.crt")

	if _, err := LoadConfig(&testSecretProvider{}); err != nil {
		t.Fatalf("LoadConfig with SSL_CERT_FILE set: %v", err)
	}
}

func TestFileSecretProviderTrimsNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	if err := os.WriteFile(path, []byte("secret-value\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileSecretProvider().ReadSecrets(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("ReadSecrets: %v", err)
	}
	if got[path] != "secret-value" {
		t.Errorf("value = %q, want secret-value", got[path])
	}

	if _, err := NewFileSecretProvider().ReadSecrets(context.Background(), []string{filepath.Join(dir, "nope")}); err == nil {
		t.Error("expected error for missing file")
	}
}
