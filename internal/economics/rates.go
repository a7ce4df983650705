package economics

import (
	"context"
	"fmt"
	"os"
	"strings"

	"solarscan/internal/types"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RateTable holds the prices applied to one building type in one region.
// Money is in the smallest unit of Currency.
type RateTable struct {
	Currency      string
	CostPerKW     decimal.Decimal
	SubsidyRate   decimal.Decimal
	SubsidyCap    decimal.Decimal
	TariffPerKWh  decimal.Decimal
	LifetimeYears int
}

// DefaultRateTable is the national baseline: 5,000,000 KRW per kW installed,
// a 20 % subsidy capped at 20,000,000 KRW, and a 150 KRW/kWh tariff over a
// 20 year panel life.
func DefaultRateTable() RateTable {
	return RateTable{
		Currency:      "KRW",
		CostPerKW:     decimal.NewFromInt(5_000_000),
		SubsidyRate:   decimal.RequireFromString("0.2"),
		SubsidyCap:    decimal.NewFromInt(20_000_000),
		TariffPerKWh:  decimal.NewFromInt(150),
		LifetimeYears: 20,
	}
}

// Validate rejects tables that would produce meaningless figures.
func (t RateTable) Validate() error {
	switch {
	case t.Currency == "":
		return types.NewInvariantError("rate table has no currency")
	case t.CostPerKW.IsNegative():
		return types.NewInvariantError("negative installation cost %s per kW", t.CostPerKW)
	case t.SubsidyRate.IsNegative() || t.SubsidyRate.GreaterThan(decimal.NewFromInt(1)):
		return types.NewInvariantError("subsidy rate %s outside [0, 1]", t.SubsidyRate)
	case t.SubsidyCap.IsNegative():
		return types.NewInvariantError("negative subsidy cap %s", t.SubsidyCap)
	case t.TariffPerKWh.IsNegative():
		return types.NewInvariantError("negative tariff %s per kWh", t.TariffPerKWh)
	case t.LifetimeYears <= 0:
		return types.NewInvariantError("lifetime of %d years", t.LifetimeYears)
	}
	return nil
}

// RateSource looks up the rate table for a building type and region.
type RateSource interface {
	Rates(ctx context.Context, bt types.BuildingType, region string) (RateTable, error)
}

type rateEntry struct {
	buildingType types.BuildingType // empty matches any
	region       string             // empty matches any
	table        RateTable
}

// RateBook is an in-memory RateSource. The entry with the longest region
// prefix of the queried region wins; entries naming the building type beat
// wildcard entries of the same region.
type RateBook struct {
	entries  []rateEntry
	fallback RateTable
}

// NewRateBook returns a book holding only the default table.
func NewRateBook() *RateBook {
	return &RateBook{fallback: DefaultRateTable()}
}

// Add registers a table for a building type and region prefix. Either may be
// empty to match everything.
func (b *RateBook) Add(bt types.BuildingType, region string, t RateTable) error {
	if err := t.Validate(); err != nil {
		return err
	}
	b.entries = append(b.entries, rateEntry{buildingType: bt, region: region, table: t})
	return nil
}

func (b *RateBook) Rates(_ context.Context, bt types.BuildingType, region string) (RateTable, error) {
	best, bestScore := b.fallback, -1
	for _, e := range b.entries {
		if e.buildingType != "" && e.buildingType != bt {
			continue
		}
		if e.region != "" && region != e.region && !strings.HasPrefix(region, e.region+" ") {
			continue
		}
		score := 2 * len(e.region)
		if e.buildingType != "" {
			score++
		}
		if score > bestScore {
			best, bestScore = e.table, score
		}
	}
	return best, nil
}

type rateFile struct {
	Currency string          `yaml:"currency"`
	Tables   []rateFileEntry `yaml:"tables"`
}

type rateFileEntry struct {
	BuildingType  string  `yaml:"building_type"`
	Region        string  `yaml:"region"`
	Currency      string  `yaml:"currency"`
	CostPerKW     float64 `yaml:"cost_per_kw"`
	SubsidyRate   float64 `yaml:"subsidy_rate"`
	SubsidyCap    float64 `yaml:"subsidy_cap"`
	TariffPerKWh  float64 `yaml:"tariff_per_kwh"`
	LifetimeYears int     `yaml:"lifetime_years"`
}

// LoadRateBook reads a YAML rate book. An empty path returns the defaults.
//
//	currency: KRW
//	tables:
//	  - building_type: apartment
//	    region: 경기도
//	    cost_per_kw: 4500000
//	    subsidy_rate: 0.3
//	    subsidy_cap: 30000000
//	    tariff_per_kwh: 160
//	    lifetime_years: 20
func LoadRateBook(path string) (*RateBook, error) {
	book := NewRateBook()
	if path == "" {
		return book, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rate book: %w", err)
	}
	return ParseRateBook(data)
}

// ParseRateBook parses rate book YAML.
func ParseRateBook(data []byte) (*RateBook, error) {
	var f rateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rate book YAML: %w", err)
	}

	book := NewRateBook()
	for i, e := range f.Tables {
		bt := types.BuildingType(e.BuildingType)
		if bt != "" && !bt.IsValid() {
			return nil, fmt.Errorf("rate table %d: unknown building type %q", i, e.BuildingType)
		}
		currency := e.Currency
		if currency == "" {
			currency = f.Currency
		}
		if currency == "" {
			currency = book.fallback.Currency
		}
		t := RateTable{
			Currency:      currency,
			CostPerKW:     decimal.NewFromFloat(e.CostPerKW),
			SubsidyRate:   decimal.NewFromFloat(e.SubsidyRate),
			SubsidyCap:    decimal.NewFromFloat(e.SubsidyCap),
			TariffPerKWh:  decimal.NewFromFloat(e.TariffPerKWh),
			LifetimeYears: e.LifetimeYears,
		}
		if err := book.Add(bt, strings.TrimSpace(e.Region), t); err != nil {
			return nil, fmt.Errorf("rate table %d: %w", i, err)
		}
	}
	return book, nil
}
