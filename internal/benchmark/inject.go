package benchmark

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/postprocess"
	"amr-charts/internal/result"
	"amr-charts/internal/units"

	"github.com/rs/zerolog/log"
)

// Reference school x-axis labels.
const (
	ExemplarLabel  = "Exemplar School"
	BenchmarkLabel = "Benchmark School"
)

// Label returns the x-axis label for a comparison.
func Label(c energy.Comparison) string {
	if c == energy.Exemplar {
		return ExemplarLabel
	}
	return BenchmarkLabel
}

// Injector appends reference-school buckets to a merged result.
type Injector struct {
	Service   energy.AnnualUsageBenchmarkService
	Converter units.Converter
}

// NewInjector prices reference schools at the default rates.
func NewInjector(service energy.AnnualUsageBenchmarkService) *Injector {
	return &Injector{Service: service, Converter: units.NewConverter(nil)}
}

// Inject reverses the x-axis so the most recent bucket leads, then appends one bucket per comparison
// in the chart's unit and y-axis scaling.
// Only series whose first key part is a fuel with a nonzero total receive values; every other series,
// and fuels without a reference figure, get nulls. The input is not modified.
func (in *Injector) Inject(set *result.ResultSet, school *energy.School, cfg *chartconfig.ReportConfig) (*result.ResultSet, error) {
	out := set.Clone()
	comparisons := cfg.Benchmark.Comparisons()
	if len(comparisons) == 0 {
		return out, nil
	}
	asOf, ok := latestEnd(set)
	if !ok {
		return nil, &energy.NotEnoughDataError{What: "benchmark needs dated x-axis buckets"}
	}
	unit := cfg.Units()
	// School series are scaled per branch; the reference figures get the same scaling here.
	factor, err := postprocess.ScalingFactor(cfg.Scaling(), school)
	if err != nil {
		return nil, err
	}

	// 1. Reverse
	slices.Reverse(out.XAxis)
	slices.Reverse(out.XAxisRanges)
	for _, k := range out.Keys {
		slices.Reverse(out.Series[k])
		slices.Reverse(out.Counts[k])
	}
	for _, s := range out.Y2Axis {
		slices.Reverse(s)
	}

	// 2. Append the reference buckets
	for _, c := range comparisons {
		out.XAxis = append(out.XAxis, Label(c))
		if len(out.XAxisRanges) > 0 {
			out.XAxisRanges = append(out.XAxisRanges, energy.DateRange{})
		}
		for k, s := range out.Y2Axis {
			out.Y2Axis[k] = append(s, result.Null)
		}
	}

	// 3. Fill per series
	for _, k := range out.Keys {
		values := make(result.Series, len(comparisons))
		for i := range values {
			values[i] = result.Null
		}
		if fuel, ok := seriesFuel(k); ok {
			if total, _ := out.Series[k].Total(); total != 0 {
				for i, c := range comparisons {
					v, err := in.reference(school, fuel, asOf, c, unit)
					if errors.Is(err, energy.ErrDataAvailability) {
						log.Debug().Str("school", school.Name).Str("fuel", string(fuel)).Err(err).Msg("no reference figure")
						continue
					}
					if err != nil {
						return nil, fmt.Errorf("%s benchmark for %s: %w", c, k, err)
					}
					values[i] = result.Some(v * factor)
				}
			}
		}
		out.Series[k] = append(out.Series[k], values...)
		out.Counts[k] = append(out.Counts[k], make([]int, len(comparisons))...)
	}
	return out, nil
}

func (in *Injector) reference(school *energy.School, fuel energy.FuelType, asOf time.Time, c energy.Comparison, unit units.Unit) (float64, error) {
	kwh, err := in.Service.AnnualUsage(school, fuel, asOf, c)
	if err != nil {
		return 0, err
	}
	// Storage heater references are priced like gas heating.
	priceAs := fuel
	if fuel == energy.StorageHeater && unit.IsCost() {
		priceAs = energy.Gas
	}
	return in.Converter.Annual(unit, priceAs, kwh)
}

// seriesFuel parses the leading key part, so "gas:School A" is a gas series.
func seriesFuel(key string) (energy.FuelType, bool) {
	head, _, _ := strings.Cut(key, ":")
	f, err := energy.ParseFuel(head)
	if err != nil {
		return "", false
	}
	return f, true
}

func latestEnd(set *result.ResultSet) (time.Time, bool) {
	var latest time.Time
	for _, r := range set.XAxisRanges {
		if r.End.After(latest) {
			latest = r.End
		}
	}
	if latest.IsZero() {
		for _, p := range set.Metadata.Periods {
			if p.End.After(latest) {
				latest = p.End
			}
		}
	}
	return latest, !latest.IsZero()
}
