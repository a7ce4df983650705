package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"solarscan/internal/types"
)

// ImageryClientConfig holds the configuration for an HTTPImagery.
type ImageryClientConfig struct {
	APIKey    string
	BaseURL   string
	UserAgent string
	Retry     RetryPolicy
	Logger    *slog.Logger
}

// HTTPImagery implements ImageryProvider against a REST endpoint:
//
//	GET {base}/v1/segmentation?lat=<lat>&lon=<lon>  ->  SegmentationTile JSON
//
// The mask field is base64 in JSON, which encoding/json maps onto []byte.
type HTTPImagery struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewHTTPImagery creates an HTTPImagery with its own circuit breaker.
func NewHTTPImagery(httpClient *http.Client, cfg ImageryClientConfig) *HTTPImagery {
	return NewHTTPImageryWithBase(NewBaseClient(httpClient, "imagery", cfg.Retry, cfg.UserAgent), cfg)
}

// NewHTTPImageryWithBase creates an HTTPImagery on a pre-configured BaseClient.
func NewHTTPImageryWithBase(base *BaseClient, cfg ImageryClientConfig) *HTTPImagery {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPImagery{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// FetchSegmentation returns the tile centred on lat/lon. A 404 maps to
// ErrImageryUnavailable.
func (c *HTTPImagery) FetchSegmentation(ctx context.Context, lat, lon float64) (*SegmentationTile, error) {
	q := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', 6, 64)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/segmentation?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create segmentation request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagery: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrImageryUnavailable
	case resp.StatusCode >= 400:
		return nil, providerRejection(resp, types.ErrCodeUpstreamImagery, "imagery")
	}

	var tile SegmentationTile
	if err := json.NewDecoder(resp.Body).Decode(&tile); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamImagery, "failed to decode segmentation response", err)
	}
	if tile.Width <= 0 || tile.Height <= 0 || tile.MetersPerPixel <= 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamImagery,
			fmt.Sprintf("malformed tile %dx%d at %.3f m/px", tile.Width, tile.Height, tile.MetersPerPixel), nil)
	}

	c.logger.DebugContext(ctx, "segmentation fetched",
		"width", tile.Width,
		"height", tile.Height,
		"confidence", tile.Confidence,
	)
	return &tile, nil
}
