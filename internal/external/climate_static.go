package external

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"solarscan/internal/types"
)

// GyeonggiMonthlyIrradiance is the province-wide average daily irradiance per
// month in kWh/m²/day, January first.
var GyeonggiMonthlyIrradiance = [types.MonthsPerYear]float64{
	2.5, 3.0, 3.8, 4.5, 5.2, 5.5, 5.3, 5.0, 4.2, 3.5, 2.8, 2.3,
}

// Municipal deviations from the provincial average.
var gyeonggiRegionalFactors = map[string]float64{
	"경기도":      1.00,
	"경기도 수원시":  1.00,
	"경기도 성남시":  0.99,
	"경기도 용인시":  1.01,
	"경기도 고양시":  0.97,
	"경기도 화성시":  1.03,
	"경기도 부천시":  0.98,
	"경기도 안양시":  0.99,
	"경기도 안산시":  1.02,
	"경기도 남양주시": 0.96,
	"경기도 평택시":  1.04,
	"경기도 파주시":  0.95,
	"경기도 의정부시": 0.96,
}

// StaticClimateStore implements ClimateSource from the built-in Gyeonggi
// table. Used in local/test mode and when no database is configured.
type StaticClimateStore struct {
	series map[string]types.ClimateSeries
}

// NewStaticClimateStore builds the table with every series stamped as
// refreshed at refreshedAt.
func NewStaticClimateStore(refreshedAt time.Time) *StaticClimateStore {
	s := &StaticClimateStore{series: make(map[string]types.ClimateSeries, len(gyeonggiRegionalFactors))}
	for region, f := range gyeonggiRegionalFactors {
		var monthly [types.MonthsPerYear]float64
		for i, v := range GyeonggiMonthlyIrradiance {
			monthly[i] = math.Round(v*f*100) / 100
		}
		s.series[region] = types.ClimateSeries{Region: region, Monthly: monthly, RefreshedAt: refreshedAt}
	}
	return s
}

// Put adds or replaces a series.
func (s *StaticClimateStore) Put(series types.ClimateSeries) {
	s.series[series.Region] = series
}

func (s *StaticClimateStore) FetchSeries(ctx context.Context, region string) (*types.ClimateSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cs, ok := s.series[region]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (s *StaticClimateStore) ListSeries(ctx context.Context, prefix string) ([]types.ClimateSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []types.ClimateSeries
	for region, cs := range s.series {
		if strings.HasPrefix(region, prefix) {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out, nil
}

var _ ClimateSource = (*StaticClimateStore)(nil)
