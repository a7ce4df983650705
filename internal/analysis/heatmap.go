package analysis

import (
	"context"
	"math"
	"strings"

	"solarscan/internal/types"
)

// HeatmapResult maps sub-region names to one metric. Samples counts the
// completed analyses behind each aggregated value and is empty for catalog
// metrics.
type HeatmapResult struct {
	Region  string              `json:"region"`
	Metric  types.HeatmapMetric `json:"metric"`
	Unit    string              `json:"unit"`
	Values  map[string]float64  `json:"values"`
	Samples map[string]int      `json:"samples"`
}

var regionAliases = map[string]string{
	"gyeonggi":    "경기도",
	"gyeonggi-do": "경기도",
	"경기":          "경기도",
}

var heatmapUnits = map[types.HeatmapMetric]string{
	types.HeatmapSolarRadiation:   "kWh/m²/day",
	types.HeatmapAnnualGeneration: "kWh/year",
	types.HeatmapCostSavings:      "KRW/year",
	types.HeatmapROI:              "%",
	types.HeatmapPayback:          "years",
}

// Heatmap reports metric per municipality of region. Solar radiation comes
// from the climate catalog; every other metric averages the completed results
// currently cached. Nothing is recomputed.
func (o *Orchestrator) Heatmap(ctx context.Context, region string, metric types.HeatmapMetric) (HeatmapResult, error) {
	territory, ok := o.resolveRegion(region)
	if !ok {
		return HeatmapResult{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidRegion,
			"region is not covered", nil, map[string]any{"region": region})
	}
	if !metric.IsValid() {
		return HeatmapResult{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidMetric,
			"unsupported heatmap metric", nil, map[string]any{"metric": string(metric)})
	}

	res := HeatmapResult{
		Region:  territory,
		Metric:  metric,
		Unit:    heatmapUnits[metric],
		Values:  map[string]float64{},
		Samples: map[string]int{},
	}

	if metric == types.HeatmapSolarRadiation {
		series, err := o.climate.SubRegions(ctx, territory+" ")
		if err != nil {
			return HeatmapResult{}, err
		}
		for _, s := range series {
			res.Values[s.Region] = round2(s.AnnualAverage())
		}
		return res, nil
	}

	sums := map[string]float64{}
	o.store.Completed(func(req types.AnalysisRequest) {
		key, ok := municipality(req.Result.Location.Region, territory)
		if !ok {
			return
		}
		v, ok := metricValue(req.Result, metric)
		if !ok {
			return
		}
		sums[key] += v
		res.Samples[key]++
	})
	for k, sum := range sums {
		res.Values[k] = round2(sum / float64(res.Samples[k]))
	}
	return res, nil
}

func (o *Orchestrator) resolveRegion(region string) (string, bool) {
	r := strings.TrimSpace(region)
	if r == o.cfg.Territory {
		return r, true
	}
	if t, ok := regionAliases[strings.ToLower(r)]; ok && t == o.cfg.Territory {
		return t, true
	}
	return "", false
}

// municipality truncates a region tag to its first two levels, which is the
// heatmap granularity ("경기도 수원시 영통구" -> "경기도 수원시").
func municipality(region, territory string) (string, bool) {
	parts := strings.Fields(region)
	if len(parts) < 2 || parts[0] != territory {
		return "", false
	}
	return parts[0] + " " + parts[1], true
}

func metricValue(r *types.AnalysisResult, metric types.HeatmapMetric) (float64, bool) {
	switch metric {
	case types.HeatmapAnnualGeneration:
		return r.Yield.AnnualKWh, true
	case types.HeatmapCostSavings:
		return float64(r.Economics.AnnualSavings), true
	case types.HeatmapROI:
		if r.Economics.NetCost <= 0 {
			return 0, false
		}
		return float64(r.Economics.LifetimeNetBenefit) / float64(r.Economics.NetCost) * 100, true
	case types.HeatmapPayback:
		if r.Economics.PaybackYears == nil {
			return 0, false
		}
		return *r.Economics.PaybackYears, true
	}
	return 0, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
