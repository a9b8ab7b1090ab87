package aggregate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"amr-charts/internal/amr"
	"amr-charts/internal/bucket"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/holiday"
	"amr-charts/internal/period"
	"amr-charts/internal/result"
	"amr-charts/internal/tariff"
	"amr-charts/internal/units"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Monday 1 Jan 2024 to Sunday 7 Jan 2024.
var (
	weekStart = energy.Date(2024, 1, 1)
	weekEnd   = energy.Date(2024, 1, 7)
)

func constant(v float64) energy.HalfHourly {
	var h energy.HalfHourly
	for i := range h {
		h[i] = v
	}
	return h
}

// varied gives each slot a distinct value so that misplaced slots show up in sums.
func varied(day int) energy.HalfHourly {
	var h energy.HalfHourly
	for i := range h {
		h[i] = float64((day*7+i*3)%11) / 4
	}
	return h
}

type schoolOption func(*energy.School, *amr.Meter, *amr.Meter)

func testSchool(days int, elec func(day int) energy.HalfHourly, opts ...schoolOption) *energy.School {
	e := amr.NewMeter("e1", "Main electricity", energy.Electricity)
	g := amr.NewMeter("g1", "Boiler", energy.Gas)
	for i := 0; i < days; i++ {
		d := weekStart.AddDate(0, 0, i)
		e.Set(d, elec(i))
		g.Set(d, constant(0.5))
	}
	school := &energy.School{
		ID:        "test",
		Name:      "Test Primary",
		Pupils:    200,
		FloorArea: 1000,
		OpenSlot:  17,
		CloseSlot: 31,
		Holidays:  holiday.New(nil),
	}
	for _, o := range opts {
		o(school, e, g)
	}
	if school.Meters == nil {
		school.Meters = amr.NewSource(e)
	}
	return school
}

func withGas(s *energy.School, e, g *amr.Meter) { s.Meters = amr.NewSource(e, g) }

func testPeriod(start, end time.Time) period.Period {
	return period.Period{Label: "test", Start: start, End: end, DataEnd: end, FullDays: energy.DaysBetween(start, end)}
}

func run(t *testing.T, cfg *chartconfig.ReportConfig, school *energy.School, p period.Period) *result.ResultSet {
	t.Helper()
	res, err := Run(context.Background(), Request{Config: cfg, School: school, Period: p})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res.Set
}

func floats(s result.Series) []float64 {
	return s.Floats(math.NaN())
}

var nanEqual = cmpopts.EquateNaNs()

func TestScenarios(t *testing.T) {
	one := func(int) energy.HalfHourly { return constant(1) }
	p := testPeriod(weekStart, weekEnd)

	t.Run("A: daily kWh", func(t *testing.T) {
		rs := run(t, &chartconfig.ReportConfig{Name: "a", XAxis: "day", YAxisUnits: "kwh"}, testSchool(7, one), p)
		want := []float64{48, 48, 48, 48, 48, 48, 48}
		if diff := cmp.Diff(want, floats(rs.Series["Energy"])); diff != "" {
			t.Errorf("Series mismatch (-want +got):\n%s", diff)
		}
		if len(rs.XAxis) != 7 || rs.XAxis[0] != "01 Jan 2024" {
			t.Errorf("Unexpected x-axis %v", rs.XAxis)
		}
	})

	t.Run("B: daily kW counts", func(t *testing.T) {
		rs := run(t, &chartconfig.ReportConfig{Name: "b", XAxis: "day", YAxisUnits: "kw"}, testSchool(7, one), p)
		for i, v := range rs.Series["Energy"] {
			kwh, _ := v.Get()
			kw, ok := units.KWFromKWh(kwh, rs.Counts["Energy"][i], false)
			if !ok || kw != 1 {
				t.Errorf("bucket %d: expected 1.0 kW, got %v (%v)", i, kw, ok)
			}
		}
	})

	t.Run("C: intraday", func(t *testing.T) {
		rs := run(t, &chartconfig.ReportConfig{Name: "c", XAxis: "intraday"}, testSchool(7, one), p)
		if len(rs.XAxis) != 48 {
			t.Fatalf("Expected 48 buckets, got %d", len(rs.XAxis))
		}
		for i, v := range rs.Series["Energy"] {
			if got, _ := v.Get(); got != 7 {
				t.Errorf("slot %d: expected 7.0, got %v", i, got)
			}
			if rs.Counts["Energy"][i] != 7 {
				t.Errorf("slot %d: expected 7 samples, got %d", i, rs.Counts["Energy"][i])
			}
		}
	})

	t.Run("D: weekend filter", func(t *testing.T) {
		cfg := &chartconfig.ReportConfig{Name: "d", XAxis: "day", Filter: chartconfig.Filter{DayType: []string{"weekend"}}}
		rs := run(t, cfg, testSchool(7, one), p)
		nan := math.NaN()
		want := []float64{nan, nan, nan, nan, nan, 48, 48}
		if diff := cmp.Diff(want, floats(rs.Series["Energy"]), nanEqual); diff != "" {
			t.Errorf("Series mismatch (-want +got):\n%s", diff)
		}
		if total, _ := rs.Series["Energy"].Total(); total != 96 {
			t.Errorf("Expected weekend total 96, got %v", total)
		}
	})
}

func TestIntradayFastPathMatchesGeneralPath(t *testing.T) {
	school := testSchool(14, varied, withGas)
	p := testPeriod(weekStart, weekStart.AddDate(0, 0, 13))
	for _, unit := range []string{"kwh", "economic_cost", "co2"} {
		cfg := &chartconfig.ReportConfig{Name: "fast", XAxis: "intraday", YAxisUnits: unit}

		fast := New(Request{Config: cfg, School: school, Period: p})
		general := New(Request{Config: cfg, School: school, Period: p})
		general.generalOnly = true

		a, err := fast.Run(context.Background())
		if err != nil {
			t.Fatalf("fast path failed: %v", err)
		}
		b, err := general.Run(context.Background())
		if err != nil {
			t.Fatalf("general path failed: %v", err)
		}
		if diff := cmp.Diff(b.Set.Series, a.Set.Series, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("%s: series differ (-general +fast):\n%s", unit, diff)
		}
		if diff := cmp.Diff(b.Set.Counts, a.Set.Counts); diff != "" {
			t.Errorf("%s: counts differ (-general +fast):\n%s", unit, diff)
		}
	}
}

func TestNoneBreakdownConservesTotal(t *testing.T) {
	school := testSchool(14, varied, withGas)
	p := testPeriod(weekStart, weekStart.AddDate(0, 0, 13))
	conv := units.NewConverter(nil)

	for _, mode := range []string{"day", "week", "dayofweek", "intraday", "none", "datetime"} {
		for _, unit := range []units.Unit{units.KWh, units.EconomicCost, units.CO2} {
			rs := run(t, &chartconfig.ReportConfig{Name: "total", XAxis: mode, YAxisUnits: string(unit)}, school, p)

			want := 0.0
			for _, m := range school.Meters.Meters() {
				for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
					kwh, _ := m.KWh(d)
					v, _ := conv.Convert(unit, m.ID(), m.Fuel(), d, kwh)
					want += v.Sum()
				}
			}
			got, _ := rs.Series["Energy"].Total()
			if math.Abs(got-want) > 1e-6 {
				t.Errorf("%s/%s: expected total %.4f, got %.4f", mode, unit, want, got)
			}
		}
	}
}

func TestCompositeBreakdownMatchesFuel(t *testing.T) {
	school := testSchool(14, varied, withGas, func(s *energy.School, _, _ *amr.Meter) {
		s.Holidays = holiday.New([]holiday.Holiday{{Name: "Inset", Start: energy.Date(2024, 1, 3), End: energy.Date(2024, 1, 3)}})
		s.CommunityUse = []energy.CommunityWindow{{Weekday: time.Thursday, From: 36, To: 40}}
	})
	p := testPeriod(weekStart, weekStart.AddDate(0, 0, 13))

	for _, mode := range []string{"day", "week", "intraday"} {
		fuel := run(t, &chartconfig.ReportConfig{Name: "fuel", XAxis: mode, SeriesBreakdown: chartconfig.Breakdown{"fuel"}}, school, p)
		composite := run(t, &chartconfig.ReportConfig{Name: "composite", XAxis: mode, SeriesBreakdown: chartconfig.Breakdown{"daytype", "fuel"}}, school, p)

		for _, f := range []string{"electricity", "gas"} {
			sums := make([]float64, composite.Len())
			for _, key := range composite.Keys {
				if len(key) < len(f) || key[len(key)-len(f):] != f {
					continue
				}
				for i, v := range composite.Series[key] {
					sums[i] += v.Or(0)
				}
			}
			if diff := cmp.Diff(fuel.Series[f].Floats(0), sums, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("%s/%s: composite sums differ (-fuel +composite):\n%s", mode, f, diff)
			}
		}
	}
}

func TestAccountingCostComponents(t *testing.T) {
	school := testSchool(7, func(int) energy.HalfHourly { return constant(1) }, func(s *energy.School, _, _ *amr.Meter) {
		s.Tariffs = tariff.New([]tariff.Tariff{{
			MeterID: "e1", Start: weekStart, Kind: tariff.Differential,
			DayRate: 0.2, NightRate: 0.1, NightFrom: 0, NightTo: 14, StandingCharge: 4.8,
		}}, units.DefaultRates)
	})
	p := testPeriod(weekStart, weekEnd)

	cfg := &chartconfig.ReportConfig{Name: "cost", XAxis: "day", YAxisUnits: "accounting_cost", SeriesBreakdown: chartconfig.Breakdown{"accounting_cost"}}
	rs := run(t, cfg, school, p)
	if diff := cmp.Diff([]string{"Day Rate", "Night Rate", "Standing Charge"}, rs.Keys); diff != "" {
		t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
	}
	// 34 day slots at 0.2, 14 night slots at 0.1, 4.8 standing
	want := map[string]float64{"Day Rate": 6.8, "Night Rate": 1.4, "Standing Charge": 4.8}
	for key, v := range want {
		got, _ := rs.Series[key][0].Get()
		if math.Abs(got-v) > 1e-9 {
			t.Errorf("%s: expected %v, got %v", key, v, got)
		}
	}

	total := run(t, &chartconfig.ReportConfig{Name: "total", XAxis: "day", YAxisUnits: "accounting_cost"}, school, p)
	got, _ := total.Series["Energy"].Total()
	if math.Abs(got-7*13.0) > 1e-9 {
		t.Errorf("Expected weekly accounting cost 91, got %v", got)
	}

	// Day types split a priced day: the standing charge is spread, never counted twice.
	split := run(t, &chartconfig.ReportConfig{Name: "split", XAxis: "day", YAxisUnits: "accounting_cost", SeriesBreakdown: chartconfig.Breakdown{"daytype"}}, school, p)
	sum := 0.0
	for _, k := range split.Keys {
		v, _ := split.Series[k].Total()
		sum += v
	}
	if math.Abs(sum-7*13.0) > 1e-9 {
		t.Errorf("Expected day-type split to total 91, got %v", sum)
	}
}

func TestY2Temperature(t *testing.T) {
	school := testSchool(7, func(int) energy.HalfHourly { return constant(1) }, func(s *energy.School, _, _ *amr.Meter) {
		temps := amr.NewTemperatures()
		for i := 0; i < 7; i++ {
			temps.Set(weekStart.AddDate(0, 0, i), constant(float64(i)))
		}
		s.Temperatures = temps
	})
	cfg := &chartconfig.ReportConfig{Name: "y2", XAxis: "week", Y2Axis: chartconfig.Y2Temperature}
	rs := run(t, cfg, school, testPeriod(weekStart, weekEnd))
	if got, _ := rs.Y2Axis[Y2Temperature][0].Get(); got != 3 {
		t.Errorf("Expected mean temperature 3, got %v", got)
	}

	cfg.Y2Axis = chartconfig.Y2DegreeDays
	rs = run(t, cfg, school, testPeriod(weekStart, weekEnd))
	// 15.5 - t for t = 0..6
	if got, _ := rs.Y2Axis[Y2DegreeDays][0].Get(); math.Abs(got-87.5) > 1e-9 {
		t.Errorf("Expected 87.5 degree days, got %v", got)
	}
}

func TestDemandBreakdowns(t *testing.T) {
	// 5 kWh per half-hour, 2 kWh from 20:30: a 4 kW baseload and a 10 kW peak every day
	day := func(int) energy.HalfHourly {
		h := constant(5)
		for i := 41; i <= 47; i++ {
			h[i] = 2
		}
		return h
	}
	school := testSchool(7, day)
	p := testPeriod(weekStart, weekEnd)

	tests := []struct {
		breakdown string
		key       string
		want      float64
	}{
		{"baseload", "BASELOAD", 7 * 4 * 24},
		{"peak_kw", "Peak (kW)", 7 * 10 * 24},
	}
	for _, tt := range tests {
		t.Run(tt.breakdown, func(t *testing.T) {
			cfg := &chartconfig.ReportConfig{Name: tt.breakdown, XAxis: "week", YAxisUnits: "kw", SeriesBreakdown: chartconfig.Breakdown{tt.breakdown}}
			rs := run(t, cfg, school, p)
			if diff := cmp.Diff([]string{tt.key}, rs.Keys); diff != "" {
				t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
			}
			got, _ := rs.Series[tt.key][0].Get()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
			}
			if rs.Counts[tt.key][0] != 7 {
				t.Errorf("Expected 7 days counted, got %d", rs.Counts[tt.key][0])
			}
		})
	}
}

func TestModelBreakdownsNeedTemperatures(t *testing.T) {
	cfg := &chartconfig.ReportConfig{Name: "cusum", XAxis: "day", MeterDefinition: chartconfig.MetersAllHeat, SeriesBreakdown: chartconfig.Breakdown{"cusum"}}
	_, err := Run(context.Background(), Request{Config: cfg, School: testSchool(7, varied, withGas), Period: testPeriod(weekStart, weekEnd)})
	if !errors.Is(err, energy.ErrDataAvailability) {
		t.Errorf("Expected a data availability error without temperatures, got %v", err)
	}
}

func TestDatesAfterLastReadingStayNull(t *testing.T) {
	school := testSchool(5, func(int) energy.HalfHourly { return constant(1) })
	p := testPeriod(weekStart, weekEnd)
	p.DataEnd = weekStart.AddDate(0, 0, 4)

	rs := run(t, &chartconfig.ReportConfig{Name: "future", XAxis: "day"}, school, p)
	s := rs.Series["Energy"]
	if s[4].IsNull() || !s[5].IsNull() || !s[6].IsNull() {
		t.Errorf("Expected data up to day 5 and nulls after, got %v", floats(s))
	}
}

func TestErrors(t *testing.T) {
	school := testSchool(7, func(int) energy.HalfHourly { return constant(1) })

	t.Run("no data in period", func(t *testing.T) {
		a := New(Request{Config: &chartconfig.ReportConfig{Name: "x", XAxis: "day"}, School: school,
			Period: testPeriod(energy.Date(2023, 1, 1), energy.Date(2023, 1, 7))})
		_, err := a.Run(context.Background())
		var nde *energy.NotEnoughDataError
		if !errors.As(err, &nde) {
			t.Fatalf("Expected NotEnoughDataError, got %v", err)
		}
		if a.State() != StateConfiguring {
			t.Errorf("Expected to stay in %s, got %s", StateConfiguring, a.State())
		}
	})

	t.Run("no matching meters", func(t *testing.T) {
		_, err := Run(context.Background(), Request{Config: &chartconfig.ReportConfig{Name: "x", XAxis: "day", MeterDefinition: "allheat"},
			School: school, Period: testPeriod(weekStart, weekEnd)})
		if !errors.Is(err, energy.ErrDataAvailability) {
			t.Errorf("Expected data availability error, got %v", err)
		}
	})

	t.Run("dynamic axis unresolved", func(t *testing.T) {
		_, err := Run(context.Background(), Request{Config: &chartconfig.ReportConfig{Name: "x", XAxis: "dynamic"},
			School: school, Period: testPeriod(weekStart, weekEnd)})
		if !errors.Is(err, energy.ErrConfig) {
			t.Errorf("Expected config error, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, Request{Config: &chartconfig.ReportConfig{Name: "x", XAxis: "day"},
			School: school, Period: testPeriod(weekStart, weekEnd)})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

func TestLifecycle(t *testing.T) {
	a := New(Request{Config: &chartconfig.ReportConfig{Name: "x", XAxis: string(bucket.Week)},
		School: testSchool(7, varied), Period: testPeriod(weekStart, weekEnd)})
	if a.State() != StateConfiguring {
		t.Fatalf("Expected initial state %s, got %s", StateConfiguring, a.State())
	}
	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if a.State() != StateComplete {
		t.Errorf("Expected %s, got %s", StateComplete, a.State())
	}
	if res.Set.Metadata.Schools[0] != "Test Primary" || res.Set.Metadata.Periods[0].Label != "test" {
		t.Errorf("Unexpected metadata %+v", res.Set.Metadata)
	}
	if res.Set.SeriesDays["Energy"] != 7 {
		t.Errorf("Expected 7 days of data, got %d", res.Set.SeriesDays["Energy"])
	}
}
