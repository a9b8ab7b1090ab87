package postprocess

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"amr-charts/internal/bucket"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/result"
	"amr-charts/internal/units"
)

// Step is one named transform. Steps mutate the set they are given.
type Step struct {
	Name  string
	Apply func(*result.ResultSet) error
}

// Pipeline returns the enabled transforms for cfg in execution order. The order matters: kW conversion
// needs raw totals, trailing zeros must be nulled before summing, and legend edits come last.
// Y-axis scaling is not part of the pipeline: it depends on each school's size, so it is applied per
// branch with ScaleFor before results are merged.
func Pipeline(cfg *chartconfig.ReportConfig, school *energy.School) ([]Step, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	var steps []Step

	if cfg.Units() == units.KW {
		steps = append(steps, Step{"kw", func(rs *result.ResultSet) error { return KW(rs, mode) }})
	}
	if cfg.NullifyTrailingZeros {
		steps = append(steps, Step{"nullify trailing zeros", func(rs *result.ResultSet) error { NullifyTrailingZeros(rs); return nil }})
	}
	if cfg.Cumulative {
		steps = append(steps, Step{"cumulative", func(rs *result.ResultSet) error { Cumulative(rs); return nil }})
	}
	if cfg.ReverseXAxis {
		steps = append(steps, Step{"reverse x-axis", func(rs *result.ResultSet) error { Reverse(rs); return nil }})
	}
	if cfg.XAxisReformat != "" {
		layout := cfg.XAxisReformat
		steps = append(steps, Step{"reformat x-axis", func(rs *result.ResultSet) error { ReformatXAxis(rs, layout); return nil }})
	}
	if cfg.AddDayCountToLegend {
		steps = append(steps, Step{"day count legend", func(rs *result.ResultSet) error { DayCountLegend(rs); return nil }})
	}
	if cfg.HumanizeLegend {
		steps = append(steps, Step{"humanize legend", func(rs *result.ResultSet) error { HumanizeLegend(rs); return nil }})
	}
	if len(cfg.ReplaceSeriesLabel) > 0 {
		pairs := cfg.ReplaceSeriesLabel
		name := ""
		if school != nil {
			name = school.Name
		}
		steps = append(steps, Step{"relabel legend", func(rs *result.ResultSet) error { Relabel(rs, pairs, name); return nil }})
	}
	return steps, nil
}

// Run applies the enabled transforms to a copy of set.
func Run(set *result.ResultSet, cfg *chartconfig.ReportConfig, school *energy.School) (*result.ResultSet, error) {
	steps, err := Pipeline(cfg, school)
	if err != nil {
		return nil, err
	}
	out := set.Clone()
	for _, s := range steps {
		if err := s.Apply(out); err != nil {
			return nil, fmt.Errorf("post-processing %s: %w", s.Name, err)
		}
	}
	return out, nil
}

// ScalingFactor returns the multiplier for a y-axis scaling. A school without the denominator fails
// rather than producing Inf.
func ScalingFactor(scaling string, school *energy.School) (float64, error) {
	if scaling == chartconfig.ScalingNone || scaling == "" {
		return 1, nil
	}
	if school == nil {
		return 0, &energy.InvalidConfigError{Field: "yaxis_scaling", Reason: "scaling needs a single target school"}
	}
	pupils := float64(school.Pupils)
	switch scaling {
	case chartconfig.ScalingPerPupil, chartconfig.ScalingPer200Pupils, chartconfig.ScalingPer1000:
		if pupils == 0 {
			return 0, &energy.ZeroDenominatorError{Quantity: "pupils for " + school.Name}
		}
	case chartconfig.ScalingPerFloorArea:
		if school.FloorArea == 0 {
			return 0, &energy.ZeroDenominatorError{Quantity: "floor area for " + school.Name}
		}
	}
	switch scaling {
	case chartconfig.ScalingPerPupil:
		return 1 / pupils, nil
	case chartconfig.ScalingPer200Pupils:
		return 200 / pupils, nil
	case chartconfig.ScalingPer1000:
		return 1000 / pupils, nil
	case chartconfig.ScalingPerFloorArea:
		return 1 / school.FloorArea, nil
	}
	return 0, &energy.InvalidConfigError{Field: "yaxis_scaling", Reason: fmt.Sprintf("unknown scaling %q", scaling)}
}

// ScaleFor applies a y-axis scaling for school to set.
func ScaleFor(set *result.ResultSet, scaling string, school *energy.School) error {
	if scaling == chartconfig.ScalingNone || scaling == "" {
		return nil
	}
	factor, err := ScalingFactor(scaling, school)
	if err != nil {
		return err
	}
	return Scale(set, factor)
}

// Scale multiplies every series by factor. The y2 axis is left alone.
func Scale(rs *result.ResultSet, factor float64) error {
	for _, k := range rs.Keys {
		s := rs.Series[k]
		for i := range s {
			s[i] = s[i].Scale(factor)
		}
	}
	return nil
}

// KW turns bucket kWh totals into demand using each bucket's sample count. Buckets without samples
// become null.
func KW(rs *result.ResultSet, mode bucket.Mode) error {
	for _, k := range rs.Keys {
		s, counts := rs.Series[k], rs.Counts[k]
		if len(counts) != len(s) {
			return fmt.Errorf("series %q has %d counts for %d buckets", k, len(counts), len(s))
		}
		for i, v := range s {
			kwh, ok := v.Get()
			if !ok {
				continue
			}
			kw, ok := units.KWFromKWh(kwh, counts[i], mode.PerHalfHour())
			if !ok {
				s[i] = result.Null
				continue
			}
			s[i] = result.Some(kw)
		}
	}
	return nil
}

// NullifyTrailingZeros replaces zeros at the end of each series with null, up to the last nonzero value.
// Nulls already in the tail are skipped over.
func NullifyTrailingZeros(rs *result.ResultSet) {
	for _, k := range rs.Keys {
		s := rs.Series[k]
		for i := len(s) - 1; i >= 0; i-- {
			v, ok := s[i].Get()
			if !ok {
				continue
			}
			if v != 0 {
				break
			}
			s[i] = result.Null
		}
	}
}

// Cumulative replaces each bucket with the running total up to it. A bucket is null only while every
// bucket up to it is null.
func Cumulative(rs *result.ResultSet) {
	for _, k := range rs.Keys {
		s := rs.Series[k]
		running := result.Null
		for i, v := range s {
			running = running.Add(v)
			s[i] = running
		}
	}
}

// Reverse flips the x-axis and every per-bucket slice with it.
func Reverse(rs *result.ResultSet) {
	slices.Reverse(rs.XAxis)
	slices.Reverse(rs.XAxisRanges)
	for _, k := range rs.Keys {
		slices.Reverse(rs.Series[k])
		slices.Reverse(rs.Counts[k])
	}
	for _, s := range rs.Y2Axis {
		slices.Reverse(s)
	}
}

// ReformatXAxis relabels dated buckets with a Go time layout applied to the bucket start. Labels
// without a date range, such as injected reference schools, are kept.
func ReformatXAxis(rs *result.ResultSet, layout string) {
	for i := range rs.XAxis {
		if i >= len(rs.XAxisRanges) || rs.XAxisRanges[i].Start.IsZero() {
			continue
		}
		rs.XAxis[i] = rs.XAxisRanges[i].Start.Format(layout)
	}
}

// DayCountLegend appends the number of days each series covers.
func DayCountLegend(rs *result.ResultSet) {
	rename(rs, func(k string) string {
		return fmt.Sprintf("%s (%d days)", k, rs.SeriesDays[k])
	})
}

// HumanizeLegend turns snake_case keys into sentence case: "school_day_open" becomes "School day open".
func HumanizeLegend(rs *result.ResultSet) {
	rename(rs, humanize)
}

func humanize(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	s = strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Relabel applies each [from, to] substring replacement in order. "<school_name>" stands for the
// school's name in either half of a pair.
func Relabel(rs *result.ResultSet, pairs [][]string, schoolName string) {
	for _, p := range pairs {
		if len(p) != 2 {
			continue
		}
		from := strings.ReplaceAll(p[0], "<school_name>", schoolName)
		to := strings.ReplaceAll(p[1], "<school_name>", schoolName)
		if from == "" {
			continue
		}
		rename(rs, func(k string) string { return strings.ReplaceAll(k, from, to) })
	}
}

// rename rewrites every key in place, keeping order. Keys that collide are summed null-safely into the
// first occurrence.
func rename(rs *result.ResultSet, f func(string) string) {
	keys := make([]string, 0, len(rs.Keys))
	series := make(map[string]result.Series, len(rs.Series))
	counts := make(map[string][]int, len(rs.Counts))
	days := make(map[string]int, len(rs.SeriesDays))
	for _, k := range rs.Keys {
		nk := f(k)
		days[nk] += rs.SeriesDays[k]
		existing, ok := series[nk]
		if !ok {
			keys = append(keys, nk)
			series[nk] = rs.Series[k]
			counts[nk] = rs.Counts[k]
			continue
		}
		for i, v := range rs.Series[k] {
			existing[i] = existing[i].Add(v)
		}
		for i, c := range rs.Counts[k] {
			if i < len(counts[nk]) {
				counts[nk][i] += c
			}
		}
	}
	rs.Keys, rs.Series, rs.Counts, rs.SeriesDays = keys, series, counts, days
}
