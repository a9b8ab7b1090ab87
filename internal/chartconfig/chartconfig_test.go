package chartconfig

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"amr-charts/internal/bucket"
	"amr-charts/internal/energy"
	"amr-charts/internal/period"
	"amr-charts/internal/units"

	"github.com/google/go-cmp/cmp"
)

func testRegistry(t *testing.T, doc string) *Registry {
	t.Helper()
	r := NewRegistry(0)
	if err := r.Load(strings.NewReader(doc)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return r
}

func TestBuiltinRegistryValidates(t *testing.T) {
	r, err := LoadDefault(0)
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	if len(r.Names()) < 20 {
		t.Errorf("Expected the built-in charts, got %d", len(r.Names()))
	}
}

func TestResolve_Inheritance(t *testing.T) {
	r := testRegistry(t, `
base:
  x_axis: week
  series_breakdown: daytype
  meter_definition: allelectricity
  yaxis_units: kwh
  filter: {daytype: weekend}
  chart1_subtype: stacked
middle:
  inherits_from: base
  yaxis_units: economic_cost
leaf:
  inherits_from: middle
  series_breakdown: [fuel, daytype]
  chart1_subtype: ~
`)
	cfg, err := r.Resolve("leaf", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Name != "leaf" || cfg.InheritsFrom != "" {
		t.Errorf("Unexpected identity: %q inherits %q", cfg.Name, cfg.InheritsFrom)
	}
	if cfg.Units() != units.EconomicCost {
		t.Errorf("Expected middle's unit, got %s", cfg.Units())
	}
	if diff := cmp.Diff([]string{"fuel", "daytype"}, cfg.Breakdowns()); diff != "" {
		t.Errorf("Breakdown mismatch (-want +got):\n%s", diff)
	}
	if cfg.ChartSubtype != "" {
		t.Errorf("Expected null to remove the inherited subtype, got %q", cfg.ChartSubtype)
	}
	if diff := cmp.Diff([]string{"weekend"}, cfg.Filter.DayType); diff != "" {
		t.Errorf("Filter mismatch (-want +got):\n%s", diff)
	}
	if mode, _ := cfg.Mode(); mode != bucket.Week {
		t.Errorf("Expected week buckets, got %s", mode)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	r, err := LoadDefault(0)
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	for _, name := range r.Names() {
		once, err := r.Resolve(name, nil)
		if err != nil {
			t.Fatalf("Resolve %s failed: %v", name, err)
		}
		out, err := Marshal(once)
		if err != nil {
			t.Fatalf("Marshal %s failed: %v", name, err)
		}
		again := NewRegistry(0)
		if err := again.Load(strings.NewReader(fmt.Sprintf("%s:\n%s", name, indent(string(out))))); err != nil {
			t.Fatalf("Reload %s failed: %v", name, err)
		}
		twice, err := again.Resolve(name, nil)
		if err != nil {
			t.Fatalf("Second resolve %s failed: %v", name, err)
		}
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("%s: resolve is not idempotent (-once +twice):\n%s", name, diff)
		}
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestResolve_TooDeep(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		r := testRegistry(t, `
a: {inherits_from: b, x_axis: day}
b: {inherits_from: a}
`)
		_, err := r.Resolve("a", nil)
		var tooDeep *energy.ConfigTooDeepError
		if !errors.As(err, &tooDeep) {
			t.Fatalf("Expected ConfigTooDeepError, got %v", err)
		}
		if tooDeep.Limit != DefaultMaxDepth {
			t.Errorf("Expected limit %d, got %d", DefaultMaxDepth, tooDeep.Limit)
		}
		if !errors.Is(err, energy.ErrConfig) {
			t.Error("ConfigTooDeepError should be a config error")
		}
	})

	t.Run("long chain", func(t *testing.T) {
		r := NewRegistry(5)
		r.Add("c0", map[string]any{"x_axis": "day"})
		for i := 1; i <= 5; i++ {
			r.Add(fmt.Sprintf("c%d", i), map[string]any{"inherits_from": fmt.Sprintf("c%d", i-1)})
		}
		if _, err := r.Resolve("c4", nil); err != nil {
			t.Errorf("Chain of 5 should resolve: %v", err)
		}
		var tooDeep *energy.ConfigTooDeepError
		if _, err := r.Resolve("c5", nil); !errors.As(err, &tooDeep) {
			t.Errorf("Chain of 6 should fail, got %v", err)
		}
		if err := r.Validate(); !errors.As(err, &tooDeep) {
			t.Errorf("Validate should report the deep chain, got %v", err)
		}
	})
}

func TestResolve_Errors(t *testing.T) {
	r := testRegistry(t, `
orphan: {inherits_from: missing, x_axis: day}
bad_breakdown: {x_axis: day, series_breakdown: colour}
bad_filter: {x_axis: day, filter: {colour: red}}
bad_daytype: {x_axis: day, filter: {daytype: lunchtime}}
bad_field: {x_axis: day, colour: red}
bad_axis: {x_axis: fortnight}
future: {x_axis: day, timescale: {year: 1}}
kw_benchmark: {x_axis: year, yaxis_units: kw, benchmark: {}}
`)
	tests := []struct {
		name   string
		target any
	}{
		{"orphan", new(*energy.UnknownConfigError)},
		{"bad_breakdown", new(*energy.BadBreakdownError)},
		{"bad_filter", new(*energy.MalformedFilterError)},
		{"bad_daytype", new(*energy.MalformedFilterError)},
		{"bad_field", new(*energy.InvalidConfigError)},
		{"bad_axis", new(*energy.InvalidConfigError)},
		{"future", new(*energy.InvalidConfigError)},
		{"kw_benchmark", new(*energy.InvalidConfigError)},
		{"unregistered", new(*energy.UnknownConfigError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.name, nil)
			if !errors.As(err, tt.target) {
				t.Errorf("Expected %T, got %v", tt.target, err)
			}
			if !errors.Is(err, energy.ErrConfig) {
				t.Errorf("Expected a config error, got %v", err)
			}
		})
	}
}

func TestResolve_Overrides(t *testing.T) {
	r := testRegistry(t, `
base: {x_axis: week, yaxis_units: kwh, timescale: year}
`)
	cfg, err := r.Resolve("base", map[string]any{
		"yaxis_units": "co2",
		"timescale":   []any{map[string]any{"year": 0}, map[string]any{"year": -1}},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Units() != units.CO2 {
		t.Errorf("Expected override unit, got %s", cfg.Units())
	}
	want := period.Specs{{Kind: period.Year}, {Kind: period.Year, Offset: -1}}
	if diff := cmp.Diff(want, cfg.Timescales()); diff != "" {
		t.Errorf("Timescale mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.Resolve("base", map[string]any{"inherits_from": "other"}); !errors.Is(err, energy.ErrConfig) {
		t.Errorf("Expected overrides to reject inherits_from, got %v", err)
	}

	// The registry itself is not modified by overrides.
	cfg, _ = r.Resolve("base", nil)
	if cfg.Units() != units.KWh {
		t.Errorf("Registry entry changed: %s", cfg.Units())
	}
}

func TestWithDataSpan(t *testing.T) {
	r := testRegistry(t, `
default_rules: {x_axis: dynamic}
custom_rules:
  x_axis: dynamic
  dynamic_x_axis: [{max_days: 2, x_axis: datetime}, {max_days: 0, x_axis: day}]
fixed: {x_axis: month}
`)
	tests := []struct {
		chart string
		days  int
		want  bucket.Mode
	}{
		{"default_rules", 7, bucket.Day},
		{"default_rules", 14, bucket.Day},
		{"default_rules", 15, bucket.Week},
		{"default_rules", 120, bucket.Week},
		{"default_rules", 800, bucket.Month},
		{"custom_rules", 1, bucket.DateTime},
		{"custom_rules", 30, bucket.Day},
		{"fixed", 3, bucket.Month},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.chart, tt.days), func(t *testing.T) {
			cfg, err := r.Resolve(tt.chart, nil)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if _, err := cfg.Mode(); cfg.IsDynamic() && err == nil {
				t.Error("Dynamic mode should not be usable before the span is known")
			}
			fixed := cfg.WithDataSpan(tt.days)
			got, err := fixed.Mode()
			if err != nil {
				t.Fatalf("Mode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSortByAndBenchmark(t *testing.T) {
	r := testRegistry(t, `
sorted:
  x_axis: year
  sort_by: [{school: asc}, {time: desc}]
  benchmark: {}
bad_sort:
  x_axis: year
  sort_by: [{colour: asc}]
`)
	cfg, err := r.Resolve("sorted", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if diff := cmp.Diff([]SortKey{{Field: "school"}, {Field: "time", Desc: true}}, cfg.SortBy); diff != "" {
		t.Errorf("SortBy mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]energy.Comparison{energy.Exemplar, energy.Benchmark}, cfg.Benchmark.Comparisons()); diff != "" {
		t.Errorf("Comparisons mismatch (-want +got):\n%s", diff)
	}
	if _, err := r.Resolve("bad_sort", nil); !errors.Is(err, energy.ErrConfig) {
		t.Errorf("Expected config error, got %v", err)
	}
}
