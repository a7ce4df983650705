package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"solarscan/internal/types"
)

// ClimateRepository serves the climate catalog from the climate_series table.
// It satisfies external.ClimateSource.
type ClimateRepository struct {
	db DBTX
}

// NewClimateRepository creates a new ClimateRepository.
func NewClimateRepository(db DBTX) *ClimateRepository {
	return &ClimateRepository{db: db}
}

// FetchSeries returns the series for region, or nil when none is stored.
func (r *ClimateRepository) FetchSeries(ctx context.Context, region string) (*types.ClimateSeries, error) {
	var (
		name      string
		monthly   []float64
		refreshed time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT region, monthly, refreshed_at FROM climate_series WHERE region = $1`,
		region,
	).Scan(&name, &monthly, &refreshed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch climate series", err)
	}
	cs, err := toSeries(name, monthly, refreshed)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListSeries returns every series whose region starts with prefix, ordered by
// region.
func (r *ClimateRepository) ListSeries(ctx context.Context, prefix string) ([]types.ClimateSeries, error) {
	rows, err := r.db.Query(ctx,
		`SELECT region, monthly, refreshed_at FROM climate_series
		 WHERE starts_with(region, $1)
		 ORDER BY region`,
		prefix,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list climate series", err)
	}
	defer rows.Close()

	var out []types.ClimateSeries
	for rows.Next() {
		var (
			name      string
			monthly   []float64
			refreshed time.Time
		)
		if err := rows.Scan(&name, &monthly, &refreshed); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan climate series", err)
		}
		cs, err := toSeries(name, monthly, refreshed)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list climate series", err)
	}
	return out, nil
}

// Upsert stores or replaces a series.
func (r *ClimateRepository) Upsert(ctx context.Context, cs types.ClimateSeries) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO climate_series (region, monthly, refreshed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (region) DO UPDATE
		   SET monthly = EXCLUDED.monthly,
		       refreshed_at = EXCLUDED.refreshed_at`,
		cs.Region,
		cs.Monthly[:],
		cs.RefreshedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store climate series", err)
	}
	return nil
}

func toSeries(region string, monthly []float64, refreshed time.Time) (types.ClimateSeries, error) {
	if len(monthly) != types.MonthsPerYear {
		return types.ClimateSeries{}, types.NewInvariantError("climate series %q has %d months", region, len(monthly))
	}
	cs := types.ClimateSeries{Region: region, RefreshedAt: refreshed}
	copy(cs.Monthly[:], monthly)
	return cs, nil
}
