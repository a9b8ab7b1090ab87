package aggregate

import (
	"fmt"
	"slices"

	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"

	"github.com/samber/lo"
)

// SelectMeters resolves a meter_definition against a school, then applies the fuel filter.
func SelectMeters(school *energy.School, definition string, fuels []string) ([]energy.Meter, error) {
	if school.Meters == nil {
		return nil, &energy.NotEnoughDataError{What: fmt.Sprintf("school %s has no meters", school.Name)}
	}
	aggregate := func(fs ...energy.FuelType) []energy.Meter {
		var out []energy.Meter
		for _, f := range fs {
			if m, ok := school.Meters.Aggregate(f); ok {
				out = append(out, m)
			}
		}
		return out
	}

	var meters []energy.Meter
	switch definition {
	case "", chartconfig.MetersAll:
		meters = aggregate(energy.Electricity, energy.Gas, energy.StorageHeater)
	case chartconfig.MetersAllElectricity:
		meters = aggregate(energy.Electricity)
	case chartconfig.MetersAllHeat:
		meters = aggregate(energy.Gas)
		if len(meters) == 0 {
			meters = aggregate(energy.StorageHeater)
		}
	case chartconfig.MetersStorageHeaters:
		meters = aggregate(energy.StorageHeater)
	case chartconfig.MetersSolarPV:
		meters = aggregate(energy.SolarPV)
	default:
		m, ok := lo.Find(school.Meters.Meters(), func(m energy.Meter) bool { return m.ID() == definition })
		if ok {
			meters = []energy.Meter{m}
		}
	}

	if len(fuels) > 0 {
		allowed := lo.FilterMap(fuels, func(s string, _ int) (energy.FuelType, bool) {
			f, err := energy.ParseFuel(s)
			return f, err == nil
		})
		meters = lo.Filter(meters, func(m energy.Meter, _ int) bool {
			return slices.Contains(allowed, m.Fuel())
		})
	}
	if len(meters) == 0 {
		return nil, &energy.NotEnoughDataError{What: fmt.Sprintf("school %s has no %q meters", school.Name, definition)}
	}
	return meters, nil
}

// DataRange is the union of the meters' data ranges.
func DataRange(meters []energy.Meter) energy.DateRange {
	var r energy.DateRange
	for _, m := range meters {
		mr := m.DataRange()
		if r.Start.IsZero() || mr.Start.Before(r.Start) {
			r.Start = mr.Start
		}
		if mr.End.After(r.End) {
			r.End = mr.End
		}
	}
	return r
}
