package postprocess

import (
	"errors"
	"testing"

	"amr-charts/internal/bucket"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/result"

	"github.com/google/go-cmp/cmp"
)

func vals(fs ...any) result.Series {
	out := make(result.Series, len(fs))
	for i, f := range fs {
		switch v := f.(type) {
		case nil:
			out[i] = result.Null
		case int:
			out[i] = result.Some(float64(v))
		case float64:
			out[i] = result.Some(v)
		}
	}
	return out
}

func single(s result.Series) *result.ResultSet {
	x := make([]string, len(s))
	for i := range x {
		x[i] = string(rune('a' + i))
	}
	rs := result.New(x, []string{"energy"})
	// the transforms work in place; keep the caller's slice intact
	rs.Series["energy"] = s.Clone()
	return rs
}

const undatedLabel = "Exemplar School"

func school() *energy.School {
	return &energy.School{Name: "Test Primary", Pupils: 200, FloorArea: 1000}
}

func TestNullifyTrailingZeros(t *testing.T) {
	tests := []struct {
		name string
		in   result.Series
		want result.Series
	}{
		{"zero tail", vals(1, 0, 2, 0, 0), vals(1, 0, 2, nil, nil)},
		{"nulls in tail skipped", vals(3, 0, nil, 0), vals(3, nil, nil, nil)},
		{"all zero", vals(0, 0), vals(nil, nil)},
		{"no zeros", vals(1, 2), vals(1, 2)},
		{"empty", vals(), vals()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := single(tt.in)
			NullifyTrailingZeros(rs)
			if diff := cmp.Diff(tt.want, rs.Series["energy"]); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			// Idempotent
			once := rs.Clone()
			NullifyTrailingZeros(rs)
			if diff := cmp.Diff(once.Series, rs.Series); diff != "" {
				t.Errorf("second application changed result (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestCumulative(t *testing.T) {
	tests := []struct {
		name string
		in   result.Series
		want result.Series
	}{
		{"running total", vals(1, 2, 3), vals(1, 3, 6)},
		{"null prefix stays null", vals(nil, nil, 2, 1), vals(nil, nil, 2, 3)},
		{"inner null carries the total", vals(1, nil, 2), vals(1, 1, 3)},
		{"all null", vals(nil, nil), vals(nil, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := single(tt.in)
			Cumulative(rs)
			got := rs.Series["energy"]
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			// result[i] == sum(raw[0..i])
			for i := range tt.in {
				sum := result.Null
				for _, v := range tt.in[:i+1] {
					sum = sum.Add(v)
				}
				if !sum.Equal(got[i]) {
					t.Errorf("bucket %d: got %v, want prefix sum %v", i, got[i], sum)
				}
			}
		})
	}
}

func TestKW(t *testing.T) {
	// 7 days of 48 x 1.0 kWh by day: 48 kWh over one day is a mean of 1.0 per half-hour.
	rs := result.New([]string{"d1", "d2", "d3"}, []string{"energy"})
	rs.Series["energy"] = vals(48, 48, nil)
	rs.Counts["energy"] = []int{1, 1, 0}
	if err := KW(rs, bucket.Day); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(vals(1, 1, nil), rs.Series["energy"]); diff != "" {
		t.Errorf("day kW mismatch (-want +got):\n%s", diff)
	}

	// Intraday: 7 kWh summed over 7 days in one slot is 2 kW.
	rs = result.New([]string{"00:00", "00:30"}, []string{"energy"})
	rs.Series["energy"] = vals(7, 0)
	rs.Counts["energy"] = []int{7, 0}
	if err := KW(rs, bucket.Intraday); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(vals(2, nil), rs.Series["energy"]); diff != "" {
		t.Errorf("intraday kW mismatch (-want +got):\n%s", diff)
	}
}

func TestScalingFactor(t *testing.T) {
	tests := []struct {
		scaling string
		want    float64
	}{
		{chartconfig.ScalingNone, 1},
		{chartconfig.ScalingPerPupil, 1.0 / 200},
		{chartconfig.ScalingPer200Pupils, 1},
		{chartconfig.ScalingPer1000, 5},
		{chartconfig.ScalingPerFloorArea, 1.0 / 1000},
	}
	for _, tt := range tests {
		got, err := ScalingFactor(tt.scaling, school())
		if err != nil {
			t.Fatalf("%s: %v", tt.scaling, err)
		}
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.scaling, got, tt.want)
		}
	}

	empty := &energy.School{Name: "Empty"}
	for _, s := range []string{chartconfig.ScalingPerPupil, chartconfig.ScalingPerFloorArea} {
		_, err := ScalingFactor(s, empty)
		var zero *energy.ZeroDenominatorError
		if !errors.As(err, &zero) {
			t.Errorf("%s on empty school: got %v, want ZeroDenominatorError", s, err)
		}
	}
}

func TestScale_SkipsY2(t *testing.T) {
	rs := single(vals(200, nil, 400))
	rs.Y2Axis = map[string]result.Series{"Temperature": vals(10, 12, 14)}
	if err := Scale(rs, 0.5); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(vals(100, nil, 200), rs.Series["energy"]); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vals(10, 12, 14), rs.Y2Axis["Temperature"]); diff != "" {
		t.Errorf("y2 changed (-want +got):\n%s", diff)
	}
}

func TestReverseAndReformat(t *testing.T) {
	rs := result.New([]string{"01 Jan 2024", "02 Jan 2024", undatedLabel}, []string{"energy"})
	rs.XAxisRanges = []energy.DateRange{
		{Start: energy.Date(2024, 1, 1), End: energy.Date(2024, 1, 1)},
		{Start: energy.Date(2024, 1, 2), End: energy.Date(2024, 1, 2)},
		{},
	}
	rs.Series["energy"] = vals(1, 2, 3)
	rs.Counts["energy"] = []int{1, 1, 0}

	Reverse(rs)
	ReformatXAxis(rs, "Monday")

	if diff := cmp.Diff([]string{undatedLabel, "Tuesday", "Monday"}, rs.XAxis); diff != "" {
		t.Errorf("x-axis mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vals(3, 2, 1), rs.Series["energy"]); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 1}, rs.Counts["energy"]); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestLegendTransforms(t *testing.T) {
	newSet := func() *result.ResultSet {
		rs := result.New([]string{"w1"}, []string{"school_day_open", "school_day_closed", "electricity:Test Primary"})
		rs.Series["school_day_open"] = vals(1)
		rs.Series["school_day_closed"] = vals(2)
		rs.Series["electricity:Test Primary"] = vals(3)
		rs.SeriesDays = map[string]int{"school_day_open": 5, "school_day_closed": 5, "electricity:Test Primary": 7}
		return rs
	}

	rs := newSet()
	HumanizeLegend(rs)
	if diff := cmp.Diff([]string{"School day open", "School day closed", "Electricity:test primary"}, rs.Keys); diff != "" {
		t.Errorf("humanize mismatch (-want +got):\n%s", diff)
	}

	rs = newSet()
	DayCountLegend(rs)
	if diff := cmp.Diff([]string{"school_day_open (5 days)", "school_day_closed (5 days)", "electricity:Test Primary (7 days)"}, rs.Keys); diff != "" {
		t.Errorf("day count mismatch (-want +got):\n%s", diff)
	}

	rs = newSet()
	Relabel(rs, [][]string{{":<school_name>", ""}, {"school_day_", ""}}, "Test Primary")
	if diff := cmp.Diff([]string{"open", "closed", "electricity"}, rs.Keys); diff != "" {
		t.Errorf("relabel mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vals(3), rs.Series["electricity"]); diff != "" {
		t.Errorf("relabelled series lost values (-want +got):\n%s", diff)
	}
	if err := rs.Validate(); err != nil {
		t.Errorf("relabelled set invalid: %v", err)
	}
}

func TestRelabel_CollisionsSum(t *testing.T) {
	rs := result.New([]string{"w1", "w2"}, []string{"gas:A", "gas:B"})
	rs.Series["gas:A"] = vals(1, nil)
	rs.Series["gas:B"] = vals(2, nil)
	rs.Counts["gas:A"] = []int{1, 0}
	rs.Counts["gas:B"] = []int{1, 0}
	Relabel(rs, [][]string{{":A", ""}, {":B", ""}}, "")
	if diff := cmp.Diff([]string{"gas"}, rs.Keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vals(3, nil), rs.Series["gas"]); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Order(t *testing.T) {
	cfg := &chartconfig.ReportConfig{
		Name:                 "test",
		XAxis:                "day",
		YAxisUnits:           "kwh",
		YAxisScaling:         chartconfig.ScalingPer200Pupils,
		NullifyTrailingZeros: true,
		Cumulative:           true,
		ReverseXAxis:         true,
	}
	in := single(vals(1, 2, 0, 0))
	got, err := Run(in, cfg, school())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Scaling is applied per branch, not here. Trailing zeros are nulled and carry the total, then the
	// axis is reversed.
	if diff := cmp.Diff(vals(3, 3, 3, 1), got.Series["energy"]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vals(1, 2, 0, 0), in.Series["energy"]); diff != "" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}

	steps, err := Pipeline(cfg, school())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, s := range steps {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"nullify trailing zeros", "cumulative", "reverse x-axis"}, names); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}
}

func TestScaleFor(t *testing.T) {
	rs := single(vals(400, nil))
	if err := ScaleFor(rs, chartconfig.ScalingPer1000, school()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(vals(2000, nil), rs.Series["energy"]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if err := ScaleFor(rs, chartconfig.ScalingNone, nil); err != nil {
		t.Errorf("no scaling needs no school: %v", err)
	}
	err := ScaleFor(rs, chartconfig.ScalingPerPupil, &energy.School{Name: "No pupils"})
	if !errors.Is(err, energy.ErrCalculation) {
		t.Errorf("got %v, want calculation error", err)
	}
}

func TestRun_DynamicAxisRejected(t *testing.T) {
	cfg := &chartconfig.ReportConfig{Name: "test", XAxis: chartconfig.DynamicXAxis}
	if _, err := Run(single(vals(1)), cfg, school()); !errors.Is(err, energy.ErrConfig) {
		t.Errorf("got %v, want config error", err)
	}
}
