package tariff

import (
	"fmt"
	"sort"
	"time"

	"amr-charts/internal/energy"

	"github.com/samber/lo"
)

// Kind distinguishes single-rate from day/night tariffs.
type Kind string

const (
	Flat         Kind = "flat"
	Differential Kind = "differential"
)

// Component names.
const (
	FlatRate       = "Flat Rate"
	DayRate        = "Day Rate"
	NightRate      = "Night Rate"
	StandingCharge = "Standing Charge"
)

// Tariff prices one meter over a date range. Rates are £/kWh, the standing charge £/day.
type Tariff struct {
	MeterID        string
	Start          time.Time
	End            time.Time // zero means open-ended
	Kind           Kind
	Rate           float64
	DayRate        float64
	NightRate      float64
	NightFrom      int // slot, inclusive
	NightTo        int // slot, exclusive; may wrap past midnight
	StandingCharge float64
}

func (t Tariff) covers(date time.Time) bool {
	return !date.Before(t.Start) && (t.End.IsZero() || !date.After(t.End))
}

func (t Tariff) isNight(slot int) bool {
	if t.NightFrom <= t.NightTo {
		return slot >= t.NightFrom && slot < t.NightTo
	}
	return slot >= t.NightFrom || slot < t.NightTo
}

// Model holds the tariffs for all of a school's meters.
type Model struct {
	byMeter  map[string][]Tariff
	defaults map[energy.FuelType]float64
}

// New indexes tariffs by meter. defaults supplies a flat rate for meters or dates without a tariff.
func New(tariffs []Tariff, defaults map[energy.FuelType]float64) *Model {
	m := &Model{byMeter: make(map[string][]Tariff), defaults: defaults}
	for _, t := range tariffs {
		m.byMeter[t.MeterID] = append(m.byMeter[t.MeterID], t)
	}
	for id := range m.byMeter {
		ts := m.byMeter[id]
		sort.Slice(ts, func(i, j int) bool { return ts[i].Start.Before(ts[j].Start) })
	}
	return m
}

func (m *Model) lookup(meterID string, date time.Time) (Tariff, bool) {
	for _, t := range m.byMeter[meterID] {
		if t.covers(date) {
			return t, true
		}
	}
	return Tariff{}, false
}

// Costs prices each slot. Standing charges are spread evenly over the day's slots.
func (m *Model) Costs(meterID string, fuel energy.FuelType, date time.Time, kwh energy.HalfHourly, accounting bool) (map[string]energy.HalfHourly, error) {
	t, ok := m.lookup(meterID, date)
	if !ok {
		rate, ok := m.defaults[fuel]
		if !ok {
			return nil, &energy.NotEnoughDataError{What: fmt.Sprintf("no tariff for meter %s", meterID), Range: energy.DateRange{Start: date, End: date}}
		}
		t = Tariff{MeterID: meterID, Kind: Flat, Rate: rate}
	}

	out := make(map[string]energy.HalfHourly, 3)
	switch t.Kind {
	case Differential:
		var day, night energy.HalfHourly
		for i, v := range kwh {
			if t.isNight(i) {
				night[i] = v * t.NightRate
			} else {
				day[i] = v * t.DayRate
			}
		}
		out[DayRate] = day
		out[NightRate] = night
	default:
		var flat energy.HalfHourly
		for i, v := range kwh {
			flat[i] = v * t.Rate
		}
		out[FlatRate] = flat
	}

	if accounting && t.StandingCharge != 0 {
		var standing energy.HalfHourly
		for i := range standing {
			standing[i] = t.StandingCharge / energy.SlotsPerDay
		}
		out[StandingCharge] = standing
	}
	return out, nil
}

// Components lists the component names any tariff overlapping r can produce, in display order.
func (m *Model) Components(meterID string, _ energy.FuelType, r energy.DateRange, accounting bool) []string {
	var names []string
	for _, t := range m.byMeter[meterID] {
		if t.Start.After(r.End) || (!t.End.IsZero() && t.End.Before(r.Start)) {
			continue
		}
		if t.Kind == Differential {
			names = append(names, DayRate, NightRate)
		} else {
			names = append(names, FlatRate)
		}
		if accounting && t.StandingCharge != 0 {
			names = append(names, StandingCharge)
		}
	}
	// gaps fall back to the default flat rate
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		if _, ok := m.lookup(meterID, d); !ok {
			names = append(names, FlatRate)
			break
		}
	}

	order := map[string]int{FlatRate: 0, DayRate: 1, NightRate: 2, StandingCharge: 3}
	names = lo.Uniq(names)
	sort.SliceStable(names, func(i, j int) bool { return order[names[i]] < order[names[j]] })
	return names
}
