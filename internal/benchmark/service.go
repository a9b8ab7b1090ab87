package benchmark

import (
	"fmt"
	"sort"
	"time"

	"amr-charts/internal/energy"
	"amr-charts/internal/heating"
)

// Basis is the quantity a reference figure is normalised by.
type Basis string

const (
	PerPupil     Basis = "pupil"
	PerFloorArea Basis = "floor_area"
)

// AnnualDegreeDays is the UK-wide yearly degree-day total heat benchmarks are quoted against.
const AnnualDegreeDays = 2000.0

// gasHeatingShare damps the degree-day adjustment for gas, which also heats water.
const gasHeatingShare = 0.6

// Entry is one reference figure in kWh per unit of basis per year, effective from From.
type Entry struct {
	Fuel       energy.FuelType
	SchoolType string // empty matches any type
	From       time.Time
	Basis      Basis
	Benchmark  float64
	Exemplar   float64
}

// DefaultEntries are the national figures for primary and secondary schools.
var DefaultEntries = []Entry{
	{Fuel: energy.Electricity, Basis: PerPupil, Benchmark: 50_000.0 / 200.0, Exemplar: 175},
	{Fuel: energy.Electricity, SchoolType: "secondary", Basis: PerPupil, Benchmark: 1.3 * 50_000.0 / 200.0, Exemplar: 1.3 * 175},
	{Fuel: energy.Gas, Basis: PerFloorArea, Benchmark: 0.9 * 115_000.0 / 1_200.0, Exemplar: 80},
	{Fuel: energy.StorageHeater, Basis: PerFloorArea, Benchmark: 0.9 * 115_000.0 / 1_200.0, Exemplar: 80},
}

// Service is a table-driven AnnualUsageBenchmarkService.
type Service struct {
	entries []Entry
	// DegreeDayAdjust scales heat figures to the school's local climate when it has temperatures.
	DegreeDayAdjust bool
}

var _ energy.AnnualUsageBenchmarkService = (*Service)(nil)

// NewService builds a service from entries; nil selects DefaultEntries.
func NewService(entries []Entry) *Service {
	if entries == nil {
		entries = DefaultEntries
	}
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From.Before(sorted[j].From) })
	return &Service{entries: sorted, DegreeDayAdjust: true}
}

// Lookup returns the most specific entry effective at asOf: a matching school type beats the generic row,
// and among those the latest From wins.
func (s *Service) Lookup(fuel energy.FuelType, schoolType string, asOf time.Time) (Entry, bool) {
	var best Entry
	found, specific := false, false
	for _, e := range s.entries {
		if e.Fuel != fuel || e.From.After(asOf) {
			continue
		}
		switch {
		case e.SchoolType == schoolType && schoolType != "":
			best, found, specific = e, true, true
		case e.SchoolType == "" && !specific:
			best, found = e, true
		}
	}
	return best, found
}

// AnnualUsage returns the reference school's yearly kWh scaled to school's size.
func (s *Service) AnnualUsage(school *energy.School, fuel energy.FuelType, asOf time.Time, compare energy.Comparison) (float64, error) {
	e, ok := s.Lookup(fuel, school.Type, asOf)
	if !ok {
		return 0, &energy.NotEnoughDataError{What: fmt.Sprintf("no %s benchmark for %s schools", fuel, schoolTypeName(school.Type))}
	}

	var perUnit float64
	switch compare {
	case energy.Benchmark:
		perUnit = e.Benchmark
	case energy.Exemplar:
		perUnit = e.Exemplar
	default:
		return 0, &energy.InvalidConfigError{Field: "benchmark.calculation_types", Reason: fmt.Sprintf("unknown comparison %q", compare)}
	}

	var size float64
	switch e.Basis {
	case PerPupil:
		size = float64(school.Pupils)
		if size == 0 {
			return 0, &energy.ZeroDenominatorError{Quantity: "pupils for " + school.Name}
		}
	case PerFloorArea:
		size = school.FloorArea
		if size == 0 {
			return 0, &energy.ZeroDenominatorError{Quantity: "floor area for " + school.Name}
		}
	}
	annual := perUnit * size

	if !fuel.IsHeat() || !s.DegreeDayAdjust || school.Temperatures == nil {
		return annual, nil
	}
	adj, err := degreeDayFactor(school.Temperatures, fuel, asOf)
	if err != nil {
		return 0, err
	}
	// Colder areas have a factor below 1 and a higher benchmark.
	return annual / adj, nil
}

func schoolTypeName(t string) string {
	if t == "" {
		return "untyped"
	}
	return t
}

// degreeDayFactor compares the national annual degree days to the school's year to asOf.
// Days without temperature data are skipped; a year with none leaves the figure unadjusted.
func degreeDayFactor(temps energy.Temperatures, fuel energy.FuelType, asOf time.Time) (float64, error) {
	r, ok := energy.DateRange{Start: asOf.AddDate(0, 0, -363), End: asOf}.Intersect(temps.DataRange())
	if !ok {
		return 1, nil
	}
	local := 0.0
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		dd, err := temps.DegreeDays(d, heating.BaseTemperature)
		if err != nil {
			continue
		}
		local += dd
	}
	if local == 0 {
		return 0, &energy.ZeroDenominatorError{Quantity: fmt.Sprintf("degree days in the year to %s", asOf.Format(time.DateOnly))}
	}
	factor := AnnualDegreeDays / local
	if fuel == energy.Gas {
		factor = (factor-1)*gasHeatingShare + 1
	}
	return factor, nil
}
