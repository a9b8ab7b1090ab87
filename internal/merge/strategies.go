package merge

import (
	"fmt"

	"amr-charts/internal/aggregate"
	"amr-charts/internal/bucket"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/result"

	"github.com/samber/lo"
)

// mergeResults picks the merge strategy for the results, which are already in their final order.
func mergeResults(cfg *chartconfig.ReportConfig, results []*aggregate.Result) *result.ResultSet {
	mode, _ := cfg.Mode()
	var set *result.ResultSet
	switch {
	case len(results) == 1:
		set = results[0].Set.Clone()
	case mode == bucket.Month && cfg.Timescales().Comparable() && distinct(results, schoolName) == 1:
		set = monthAligned(results)
	default:
		set = suffixMerge(results)
	}

	set.Metadata.Chart = cfg.Name
	set.Metadata.Title = cfg.Title
	set.Metadata.ChartType = cfg.ChartType
	set.Metadata.XAxisMode = string(mode)
	set.Metadata.Units = string(cfg.Units())
	set.Metadata.Scaling = cfg.Scaling()
	set.Metadata.Schools = lo.Uniq(lo.Map(results, func(r *aggregate.Result, _ int) string { return schoolName(r) }))
	set.Metadata.Periods = nil
	seen := map[string]bool{}
	for _, r := range results {
		for _, p := range r.Set.Metadata.Periods {
			if !seen[p.Label] {
				seen[p.Label] = true
				set.Metadata.Periods = append(set.Metadata.Periods, p)
			}
		}
	}
	return set
}

// latest is the first result whose period ends last.
func latest(results []*aggregate.Result) *aggregate.Result {
	canonical := results[0]
	for _, r := range results[1:] {
		if r.Period.End.After(canonical.Period.End) {
			canonical = r
		}
	}
	return canonical
}

func schoolName(r *aggregate.Result) string { return r.School.Name }
func periodLabel(r *aggregate.Result) string { return r.Period.Label }

func distinct(results []*aggregate.Result, f func(*aggregate.Result) string) int {
	return len(lo.Uniq(lo.Map(results, func(r *aggregate.Result, _ int) string { return f(r) })))
}

// monthAligned lines comparison years up by month name. The most recent period fixes the axis; months a
// shorter year lacks are null, never zero.
func monthAligned(results []*aggregate.Result) *result.ResultSet {
	canonical := latest(results)
	labels := lo.Map(canonical.Set.XAxis, func(l string, _ int) string { return monthName(l) })

	var keys []string
	columns := map[string]result.Series{}
	counts := map[string][]int{}
	days := map[string]int{}
	for _, r := range results {
		suffix := ":" + r.Period.Label
		if r.Period.Partial && len(r.Set.XAxis) > 0 {
			suffix += fmt.Sprintf(" - partial year (from %s)", r.Set.XAxis[0])
		}
		positions := alignMonths(labels, r.Set.XAxis)
		for _, k := range r.Set.Keys {
			key := k + suffix
			s := result.NullSeries(len(labels))
			c := make([]int, len(labels))
			for i, j := range positions {
				if j >= 0 {
					s[i] = r.Set.Series[k][j]
					c[i] = r.Set.Counts[k][j]
				}
			}
			keys, columns, counts = addColumn(keys, columns, counts, key, s, c)
			days[key] += r.Set.SeriesDays[k]
		}
	}

	set := result.New(labels, keys)
	set.XAxisRanges = append([]energy.DateRange(nil), canonical.Set.XAxisRanges...)
	set.Series, set.Counts, set.SeriesDays = columns, counts, days
	set.Y2Axis = cloneY2(canonical.Set.Y2Axis)
	return set
}

func monthName(label string) string {
	if len(label) < 3 {
		return label
	}
	return label[:3]
}

// alignMonths maps each canonical position to the bucket of other with the same month name and the same
// occurrence count, so a 13-bucket year aligns its repeated month in order. -1 means no such month.
func alignMonths(canonical, other []string) []int {
	seen := map[string]int{}
	occurrences := map[string][]int{}
	for j, l := range other {
		name := monthName(l)
		occurrences[name] = append(occurrences[name], j)
	}
	out := make([]int, len(canonical))
	for i, name := range canonical {
		n := seen[name]
		seen[name]++
		if n < len(occurrences[name]) {
			out[i] = occurrences[name][n]
		} else {
			out[i] = -1
		}
	}
	return out
}

// suffixMerge names each series after its period and school where more than one exists, then unions them.
// Shorter results are padded with nulls.
func suffixMerge(results []*aggregate.Result) *result.ResultSet {
	multiPeriod := distinct(results, periodLabel) > 1
	multiSchool := distinct(results, schoolName) > 1

	// 1. The most recent period fixes the axis; longer results extend it
	canonical := latest(results)
	labels := append([]string(nil), canonical.Set.XAxis...)
	ranges := append([]energy.DateRange(nil), canonical.Set.XAxisRanges...)
	for _, r := range results {
		for i := len(labels); i < len(r.Set.XAxis); i++ {
			labels = append(labels, r.Set.XAxis[i])
			if i < len(r.Set.XAxisRanges) {
				ranges = append(ranges, r.Set.XAxisRanges[i])
			}
		}
	}

	// 2. Rename and union
	var keys []string
	columns := map[string]result.Series{}
	counts := map[string][]int{}
	days := map[string]int{}
	for _, r := range results {
		for _, k := range r.Set.Keys {
			key := k
			if multiPeriod {
				key += ":" + r.Period.Label
			}
			if multiSchool {
				key += ":" + r.School.Name
			}
			s := result.NullSeries(len(labels))
			c := make([]int, len(labels))
			copy(s, r.Set.Series[k])
			copy(c, r.Set.Counts[k])
			keys, columns, counts = addColumn(keys, columns, counts, key, s, c)
			days[key] += r.Set.SeriesDays[k]
		}
	}

	set := result.New(labels, keys)
	set.XAxisRanges = ranges
	set.Series, set.Counts, set.SeriesDays = columns, counts, days
	set.Y2Axis = padY2(canonical.Set.Y2Axis, len(labels))
	return set
}

// addColumn appends a new key, or sums into an existing one with null-safe addition.
func addColumn(keys []string, columns map[string]result.Series, counts map[string][]int, key string, s result.Series, c []int) ([]string, map[string]result.Series, map[string][]int) {
	existing, ok := columns[key]
	if !ok {
		columns[key] = s
		counts[key] = c
		return append(keys, key), columns, counts
	}
	for i := range existing {
		existing[i] = existing[i].Add(s[i])
		counts[key][i] += c[i]
	}
	return keys, columns, counts
}

func cloneY2(y2 map[string]result.Series) map[string]result.Series {
	if y2 == nil {
		return nil
	}
	out := make(map[string]result.Series, len(y2))
	for k, s := range y2 {
		out[k] = s.Clone()
	}
	return out
}

func padY2(y2 map[string]result.Series, n int) map[string]result.Series {
	if y2 == nil {
		return nil
	}
	out := make(map[string]result.Series, len(y2))
	for k, s := range y2 {
		padded := result.NullSeries(n)
		copy(padded, s)
		out[k] = padded
	}
	return out
}
