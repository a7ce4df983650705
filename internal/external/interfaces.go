package external

import (
	"context"
	"errors"

	"solarscan/internal/types"
)

// ---------------------------------------------------------------------------
// Geocoding
// ---------------------------------------------------------------------------

// GeocodeMatch is one candidate returned by a geocoding provider. Score is the
// provider's match confidence in [0, 1].
type GeocodeMatch struct {
	Address string  `json:"formatted_address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Region  string  `json:"region"`
	Score   float64 `json:"score"`
}

// Location converts the match into the pipeline's resolved location.
func (m GeocodeMatch) Location() types.Location {
	return types.Location{
		Address:   m.Address,
		Latitude:  m.Lat,
		Longitude: m.Lon,
		Region:    m.Region,
	}
}

// GeocodingProvider turns a free-form address into ranked candidates.
type GeocodingProvider interface {
	// Geocode returns every candidate for address, best first. An empty slice
	// with a nil error means the provider found nothing.
	Geocode(ctx context.Context, address string) ([]GeocodeMatch, error)
}

// ---------------------------------------------------------------------------
// Imagery
// ---------------------------------------------------------------------------

// Mask classes in a segmentation raster.
const (
	MaskBackground  uint8 = 0
	MaskRoof        uint8 = 1
	MaskObstruction uint8 = 2
)

// SegmentationTile is a roof segmentation raster centred on the queried
// coordinate. Mask holds Width*Height class labels, row-major with row 0 at the
// northern edge, zstd-compressed.
type SegmentationTile struct {
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	MetersPerPixel float64  `json:"meters_per_pixel"`
	Confidence     float64  `json:"confidence"`
	SlopeDeg       *float64 `json:"slope_deg"`
	Mask           []byte   `json:"mask"`
}

// ErrImageryUnavailable reports that the provider has no imagery for the
// location. Callers fall back to building-type defaults.
var ErrImageryUnavailable = errors.New("imagery unavailable for location")

// ImageryProvider returns roof segmentation rasters for a coordinate.
type ImageryProvider interface {
	FetchSegmentation(ctx context.Context, lat, lon float64) (*SegmentationTile, error)
}

// ---------------------------------------------------------------------------
// Climate
// ---------------------------------------------------------------------------

// ClimateSource supplies monthly irradiance series keyed by region tag. Both
// the static table and the database repository satisfy it.
type ClimateSource interface {
	// FetchSeries returns the series stored under exactly region, or nil when
	// there is none.
	FetchSeries(ctx context.Context, region string) (*types.ClimateSeries, error)
	// ListSeries returns every series whose region starts with prefix.
	ListSeries(ctx context.Context, prefix string) ([]types.ClimateSeries, error)
}
