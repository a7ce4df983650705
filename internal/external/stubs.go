package external

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"

	"solarscan/internal/geo"
	"solarscan/internal/types"
)

// ---------------------------------------------------------------------------
// Stub implementations
//
// Deterministic in-process providers used when config.UseStubs() is true.
// They need no credentials or network and return the same answer for the same
// input, which keeps local runs and tests reproducible.
// ---------------------------------------------------------------------------

type cityCentroid struct {
	name     string
	region   string
	lat, lon float64
}

// Gyeonggi municipalities known to the stub geocoder, checked in order.
var stubCities = []cityCentroid{
	{"수원시", "경기도 수원시", 37.2636, 127.0286},
	{"성남시", "경기도 성남시", 37.4200, 127.1265},
	{"용인시", "경기도 용인시", 37.2411, 127.1776},
	{"고양시", "경기도 고양시", 37.6584, 126.8320},
	{"화성시", "경기도 화성시", 37.1995, 126.8312},
	{"부천시", "경기도 부천시", 37.5034, 126.7660},
	{"안양시", "경기도 안양시", 37.3943, 126.9568},
	{"안산시", "경기도 안산시", 37.3219, 126.8309},
	{"남양주시", "경기도 남양주시", 37.6360, 127.2165},
	{"평택시", "경기도 평택시", 36.9921, 127.1129},
	{"파주시", "경기도 파주시", 37.7599, 126.7800},
	{"의정부시", "경기도 의정부시", 37.7381, 127.0338},
	{"서울", "서울특별시", 37.5665, 126.9780},
	{"부산", "부산광역시", 35.1796, 129.0756},
}

// stubGeocodeFixtures are exact answers keyed by normalized address.
var stubGeocodeFixtures = map[string][]GeocodeMatch{
	"경기도 수원시 영통구 광교로 156": {
		{Address: "경기도 수원시 영통구 광교로 156", Lat: 37.2858, Lon: 127.0444, Region: "경기도 수원시 영통구", Score: 0.98},
	},
	"경기도 성남시 분당구 판교역로 235": {
		{Address: "경기도 성남시 분당구 판교역로 235", Lat: 37.4001, Lon: 127.1086, Region: "경기도 성남시 분당구", Score: 0.97},
	},
	"중앙로 100": {
		{Address: "경기도 수원시 팔달구 중앙로 100", Lat: 37.2799, Lon: 127.0170, Region: "경기도 수원시 팔달구", Score: 0.81},
		{Address: "경기도 안산시 단원구 중앙로 100", Lat: 37.3180, Lon: 126.8386, Region: "경기도 안산시 단원구", Score: 0.79},
		{Address: "경기도 고양시 일산동구 중앙로 100", Lat: 37.6585, Lon: 126.7722, Region: "경기도 고양시 일산동구", Score: 0.55},
	},
	"서울특별시 중구 세종대로 110": {
		{Address: "서울특별시 중구 세종대로 110", Lat: 37.5663, Lon: 126.9779, Region: "서울특별시 중구", Score: 0.97},
	},
}

func stubHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// StubGeocoder implements GeocodingProvider from a fixture table and a list of
// city centroids. Unknown addresses produce no matches.
type StubGeocoder struct {
	logger *slog.Logger
}

// NewStubGeocoder creates a StubGeocoder.
func NewStubGeocoder(logger *slog.Logger) *StubGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubGeocoder{logger: logger}
}

func (s *StubGeocoder) Geocode(ctx context.Context, address string) ([]GeocodeMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := types.NormalizeAddress(address)
	s.logger.DebugContext(ctx, "stub: Geocode called", "address", key)

	if fx, ok := stubGeocodeFixtures[key]; ok {
		return append([]GeocodeMatch(nil), fx...), nil
	}
	for _, c := range stubCities {
		if !strings.Contains(key, c.name) {
			continue
		}
		// Spread distinct addresses in the same city over roughly 1 km.
		h := stubHash(key)
		dLat := (float64(h%1000)/1000 - 0.5) * 0.02
		dLon := (float64((h/1000)%1000)/1000 - 0.5) * 0.02
		return []GeocodeMatch{{
			Address: strings.TrimSpace(address),
			Lat:     c.lat + dLat,
			Lon:     c.lon + dLon,
			Region:  c.region,
			Score:   0.9,
		}}, nil
	}
	return nil, nil
}

type stubRoof struct {
	widthPx, heightPx float64
	rotationDeg       float64
	obstructionPx     float64
	confidence        float64
	slopeDeg          *float64
}

func slope(v float64) *float64 { return &v }

// Segmentation fixtures keyed by coordinate rounded to 4 decimals.
var stubRoofFixtures = map[string]stubRoof{
	// Detached house, 150 m² gable with an east-west ridge.
	"37.2858,127.0444": {widthPx: 30, heightPx: 20, confidence: 0.92, slopeDeg: slope(25)},
	// Apartment block, 600 m² flat roof rotated 30°, plant room on top.
	"37.4001,127.1086": {widthPx: 60, heightPx: 40, rotationDeg: 30, obstructionPx: 6, confidence: 0.9},
}

const (
	stubTileSize       = 96
	stubMetersPerPixel = 0.5
)

// StubImagery implements ImageryProvider by rasterizing a synthetic building
// footprint. Coordinates far outside the Seoul capital area have no imagery.
type StubImagery struct {
	logger *slog.Logger
}

// NewStubImagery creates a StubImagery.
func NewStubImagery(logger *slog.Logger) *StubImagery {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubImagery{logger: logger}
}

func (s *StubImagery) FetchSegmentation(ctx context.Context, lat, lon float64) (*SegmentationTile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lat < 36.8 || lat > 38.4 || lon < 126.2 || lon > 127.9 {
		return nil, ErrImageryUnavailable
	}

	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	spec, ok := stubRoofFixtures[key]
	if !ok {
		h := stubHash(key)
		spec = stubRoof{
			widthPx:       float64(24 + h%17),
			heightPx:      float64(16 + (h/17)%9),
			rotationDeg:   float64((h/153)%12) * 15,
			obstructionPx: 3,
			confidence:    0.85,
		}
	}
	s.logger.DebugContext(ctx, "stub: FetchSegmentation called", "coord", key, "fixture", ok)

	grid := geo.NewGrid(stubTileSize, stubTileSize)
	rad := spec.rotationDeg * math.Pi / 180
	grid.Fill(geo.Rectangle(geo.Point{}, spec.widthPx, spec.heightPx, rad), MaskRoof)
	if spec.obstructionPx > 0 {
		grid.Fill(geo.Rectangle(geo.Pt(2, 2), spec.obstructionPx, spec.obstructionPx, 0), MaskObstruction)
	}

	return &SegmentationTile{
		Width:          grid.Width,
		Height:         grid.Height,
		MetersPerPixel: stubMetersPerPixel,
		Confidence:     spec.confidence,
		SlopeDeg:       spec.slopeDeg,
		Mask:           EncodeMask(grid.Cells),
	}, nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var (
	_ GeocodingProvider = (*StubGeocoder)(nil)
	_ ImageryProvider   = (*StubImagery)(nil)
	_ GeocodingProvider = (*HTTPGeocoder)(nil)
	_ ImageryProvider   = (*HTTPImagery)(nil)
)
