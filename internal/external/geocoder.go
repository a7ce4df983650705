package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"solarscan/internal/types"
)

// GeocoderClientConfig holds the configuration for an HTTPGeocoder.
type GeocoderClientConfig struct {
	APIKey    string
	BaseURL   string
	UserAgent string
	Retry     RetryPolicy
	Logger    *slog.Logger
}

type geocodeResponse struct {
	Matches []GeocodeMatch `json:"matches"`
}

// HTTPGeocoder implements GeocodingProvider against a REST endpoint:
//
//	GET {base}/v1/geocode?q=<address>  ->  {"matches":[...]}
type HTTPGeocoder struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewHTTPGeocoder creates an HTTPGeocoder with its own circuit breaker.
func NewHTTPGeocoder(httpClient *http.Client, cfg GeocoderClientConfig) *HTTPGeocoder {
	return NewHTTPGeocoderWithBase(NewBaseClient(httpClient, "geocoder", cfg.Retry, cfg.UserAgent), cfg)
}

// NewHTTPGeocoderWithBase creates an HTTPGeocoder on a pre-configured
// BaseClient.
func NewHTTPGeocoderWithBase(base *BaseClient, cfg GeocoderClientConfig) *HTTPGeocoder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPGeocoder{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// Geocode queries the provider. A 404 is treated as "no matches".
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) ([]GeocodeMatch, error) {
	endpoint := fmt.Sprintf("%s/v1/geocode?%s", g.baseURL, url.Values{"q": {address}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create geocode request", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "KakaoAK "+g.apiKey)
	}

	resp, err := g.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 400:
		return nil, providerRejection(resp, types.ErrCodeUpstreamGeocoder, "geocoder")
	}

	var out geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeocoder, "failed to decode geocode response", err)
	}
	for i, m := range out.Matches {
		if m.Lat < -90 || m.Lat > 90 || m.Lon < -180 || m.Lon > 180 {
			return nil, types.NewInvariantError("geocoder returned out-of-range coordinate %.6f,%.6f", m.Lat, m.Lon)
		}
		if m.Score < 0 || m.Score > 1 {
			return nil, types.NewInvariantError("geocoder returned score %.3f outside [0,1]", m.Score)
		}
		if m.Address == "" {
			out.Matches[i].Address = address
		}
	}

	g.logger.DebugContext(ctx, "geocode completed", "matches", len(out.Matches))
	return out.Matches, nil
}

// providerRejection reads a short excerpt of a 4xx body into the error so
// operators can see why the provider refused.
func providerRejection(resp *http.Response, code types.ErrorCode, provider string) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return types.NewAppErrorWithDetails(code,
		fmt.Sprintf("%s rejected request with status %d", provider, resp.StatusCode),
		nil,
		map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(excerpt))},
	)
}
