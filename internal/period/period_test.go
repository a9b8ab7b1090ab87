package period

import (
	"errors"
	"testing"
	"time"

	"amr-charts/internal/energy"

	"gopkg.in/yaml.v3"
)

func avail(start, end time.Time) Availability {
	return Availability{Data: energy.DateRange{Start: start, End: end}}
}

func TestResolve_Year(t *testing.T) {
	end := energy.Date(2024, time.March, 31)
	a := avail(energy.Date(2021, time.January, 1), end)

	p, err := Resolve(Spec{Kind: Year}, a)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !p.End.Equal(end) {
		t.Errorf("Expected year to end on %v, got %v", end, p.End)
	}
	if p.Days() != 364 || p.Partial {
		t.Errorf("Expected a full 364 day year, got %d days (partial=%v)", p.Days(), p.Partial)
	}

	prev, err := Resolve(Spec{Kind: Year, Offset: -1}, a)
	if err != nil {
		t.Fatalf("Resolve year -1 failed: %v", err)
	}
	if !prev.End.Equal(p.Start.AddDate(0, 0, -1)) {
		t.Errorf("Expected previous year to end the day before %v, got %v", p.Start, prev.End)
	}
}

func TestResolve_PartialYear(t *testing.T) {
	end := energy.Date(2024, time.March, 31)
	// 364 days of year 0 plus 200 days of year -1
	start := end.AddDate(0, 0, -(364 + 200 - 1))
	a := avail(start, end)

	p, err := Resolve(Spec{Kind: Year, Offset: -1}, a)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !p.Partial {
		t.Error("Expected year -1 to be flagged partial")
	}
	if p.Days() != 200 {
		t.Errorf("Expected 200 days, got %d", p.Days())
	}
	if p.FullDays != 364 {
		t.Errorf("Expected FullDays 364, got %d", p.FullDays)
	}

	_, err = Resolve(Spec{Kind: Year, Offset: -2}, a)
	var nde *energy.NotEnoughDataError
	if !errors.As(err, &nde) {
		t.Errorf("Expected NotEnoughDataError for year -2, got %v", err)
	}
}

func TestResolve_CalendarKinds(t *testing.T) {
	end := energy.Date(2024, time.March, 13) // Wednesday
	a := avail(energy.Date(2020, time.January, 1), end)

	tests := []struct {
		spec      Spec
		wantStart time.Time
		wantEnd   time.Time
		wantLabel string
	}{
		{Spec{Kind: Month}, energy.Date(2024, 3, 1), end, "Mar 2024"},
		{Spec{Kind: Month, Offset: -1}, energy.Date(2024, 2, 1), energy.Date(2024, 2, 29), "Feb 2024"},
		{Spec{Kind: Week}, energy.Date(2024, 3, 11), end, "w/c 11 Mar 2024"},
		{Spec{Kind: Day, Offset: -1}, energy.Date(2024, 3, 12), energy.Date(2024, 3, 12), "Tue 12 Mar 2024"},
		{Spec{Kind: AcademicYear}, energy.Date(2023, 9, 1), end, "2023/24"},
		{Spec{Kind: AcademicYear, Offset: -1}, energy.Date(2022, 9, 1), energy.Date(2023, 8, 31), "2022/23"},
	}
	for _, tt := range tests {
		t.Run(tt.spec.String(), func(t *testing.T) {
			p, err := Resolve(tt.spec, a)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if !p.Start.Equal(tt.wantStart) || !p.End.Equal(tt.wantEnd) {
				t.Errorf("Got %v..%v, want %v..%v", p.Start, p.End, tt.wantStart, tt.wantEnd)
			}
			if p.Label != tt.wantLabel {
				t.Errorf("Got label %q, want %q", p.Label, tt.wantLabel)
			}
		})
	}
}

func TestResolve_Horizon(t *testing.T) {
	last := energy.Date(2024, time.March, 13)
	a := Availability{
		Data:    energy.DateRange{Start: energy.Date(2023, 9, 1), End: last},
		Horizon: energy.Date(2024, time.August, 31),
	}
	p, err := Resolve(Spec{Kind: AcademicYear}, a)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !p.End.Equal(a.Horizon) {
		t.Errorf("Expected period to run to the horizon, got %v", p.End)
	}
	if p.HasData(last.AddDate(0, 0, 1)) {
		t.Error("Dates after the last reading must not report data")
	}
	if p.DataDays() != energy.DaysBetween(p.Start, last) {
		t.Errorf("Unexpected DataDays %d", p.DataDays())
	}
}

func TestSpecsYAML(t *testing.T) {
	var cfg struct {
		Timescale Specs `yaml:"timescale"`
	}
	src := "timescale:\n  - year: 0\n  - year: -1\n"
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(cfg.Timescale) != 2 || cfg.Timescale[1].Offset != -1 {
		t.Fatalf("Unexpected specs: %+v", cfg.Timescale)
	}
	if !cfg.Timescale.Comparable() {
		t.Error("Two year specs should be comparable")
	}

	if err := yaml.Unmarshal([]byte("timescale: up_to_a_year\n"), &cfg); err != nil {
		t.Fatalf("Unmarshal scalar failed: %v", err)
	}
	if len(cfg.Timescale) != 1 || cfg.Timescale[0].Kind != UpToAYear {
		t.Errorf("Unexpected scalar spec: %+v", cfg.Timescale)
	}

	out, err := yaml.Marshal(cfg.Timescale)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back Specs
	if err := yaml.Unmarshal(out, &back); err != nil || back[0] != cfg.Timescale[0] {
		t.Errorf("Round trip mismatch: %v %+v", err, back)
	}

	err = yaml.Unmarshal([]byte("timescale: {year: 2}\n"), &cfg)
	if !errors.Is(err, energy.ErrConfig) {
		t.Errorf("Expected config error for a future offset, got %v", err)
	}
}
