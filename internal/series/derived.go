package series

import (
	"fmt"
	"math"
	"time"

	"amr-charts/internal/energy"
	"amr-charts/internal/units"
)

// Series names of the model-derived and demand dimensions.
const (
	Baseload          = "BASELOAD"
	PeakKW            = "Peak (kW)"
	CUSUM             = "CUSUM"
	PredictedHeat     = "Predicted Heat"
	HotWaterUsage     = "Hot Water Usage"
	WastedHotWater    = "Wasted Hot Water Usage"
	SchoolDayHeating  = "Heating On School Days"
	HolidayHeating    = "Heating On Holidays"
	WeekendHeating    = "Heating On Weekends"
	SchoolDayHotWater = "Hot water/kitchen only On School Days"
	HolidayHotWater   = "Hot water/kitchen only On Holidays"
	WeekendHotWater   = "Hot water/kitchen only On Weekends"
	BoilerOff         = "Boiler Off"
)

var heatingDayTypeKeys = []string{
	SchoolDayHeating, HolidayHeating, WeekendHeating,
	SchoolDayHotWater, HolidayHotWater, WeekendHotWater,
	BoilerOff,
}

// Overnight baseload slots, 20:30 to midnight.
const (
	baseloadFirstSlot = 41
	baseloadLastSlot  = 47
)

// Derived dimensions replace a day's readings with a computed series, so they cannot be crossed.
var derived = map[string]bool{
	"baseload":      true,
	"peak_kw":       true,
	"cusum":         true,
	"predictedheat": true,
	"hotwater":      true,
}

var needsModel = map[string]bool{
	"heating":         true,
	"model_type":      true,
	"heating_daytype": true,
	"cusum":           true,
	"predictedheat":   true,
	"hotwater":        true,
}

// NeedsHeatingModel reports whether a dimension reads a fitted heating model.
func NeedsHeatingModel(tag string) bool {
	s, err := Lookup(tag)
	return err == nil && needsModel[s.Name()]
}

// spread lays a daily kWh total evenly over the 48 slots.
func spread(kwh float64) energy.HalfHourly {
	var out energy.HalfHourly
	for i := range out {
		out[i] = kwh / energy.SlotsPerDay
	}
	return out
}

func demandUnit(ctx *Context, dim string) error {
	if ctx.Unit != units.KWh && ctx.Unit != units.KW {
		return &energy.InvalidConfigError{Field: "series_breakdown", Reason: fmt.Sprintf("%s breakdown needs kwh or kw units, got %q", dim, ctx.Unit)}
	}
	return nil
}

// baseloadStrategy is the mean overnight demand. Each day contributes the kWh it would use at that
// constant demand, so kW charts show the mean baseload over a bucket.
type baseloadStrategy struct{}

func (baseloadStrategy) Name() string { return "baseload" }

func (baseloadStrategy) Keys(ctx *Context) ([]string, error) {
	if err := demandUnit(ctx, "baseload"); err != nil {
		return nil, err
	}
	return []string{Baseload}, nil
}

func (baseloadStrategy) Split(_ *Context, _ time.Time, b Branch) ([]Branch, error) {
	out := b.with(Baseload, b.Meter, b.Mask)
	out.Derive = func(_ time.Time, kwh energy.HalfHourly) (energy.HalfHourly, error) {
		return spread(BaseloadKW(kwh) * 24), nil
	}
	return []Branch{out}, nil
}

// BaseloadKW is twice the mean half-hourly kWh between 20:30 and midnight.
func BaseloadKW(kwh energy.HalfHourly) float64 {
	total := 0.0
	for i := baseloadFirstSlot; i <= baseloadLastSlot; i++ {
		total += kwh[i]
	}
	return 2 * total / float64(baseloadLastSlot-baseloadFirstSlot+1)
}

type peakStrategy struct{}

func (peakStrategy) Name() string { return "peak_kw" }

func (peakStrategy) Keys(ctx *Context) ([]string, error) {
	if err := demandUnit(ctx, "peak_kw"); err != nil {
		return nil, err
	}
	return []string{PeakKW}, nil
}

func (peakStrategy) Split(_ *Context, _ time.Time, b Branch) ([]Branch, error) {
	out := b.with(PeakKW, b.Meter, b.Mask)
	out.Derive = func(_ time.Time, kwh energy.HalfHourly) (energy.HalfHourly, error) {
		return spread(PeakKWOf(kwh) * 24), nil
	}
	return []Branch{out}, nil
}

// PeakKWOf is the day's highest half-hourly demand.
func PeakKWOf(kwh energy.HalfHourly) float64 {
	peak := math.Inf(-1)
	for _, v := range kwh {
		peak = math.Max(peak, v)
	}
	return 2 * peak
}

// predicted returns the model's expected kWh for the day at its mean temperature.
func predicted(ctx *Context, model energy.HeatingModel, date time.Time) (float64, error) {
	temps := ctx.School.Temperatures
	if temps == nil {
		return 0, &energy.NotEnoughDataError{What: fmt.Sprintf("no temperatures for %s", ctx.School.Name)}
	}
	t, err := temps.AverageTemperature(date)
	if err != nil {
		return 0, err
	}
	return model.PredictedKWh(date, t)
}

type predictedHeatStrategy struct{}

func (predictedHeatStrategy) Name() string { return "predictedheat" }

func (predictedHeatStrategy) Keys(*Context) ([]string, error) { return []string{PredictedHeat}, nil }

func (predictedHeatStrategy) Split(ctx *Context, _ time.Time, b Branch) ([]Branch, error) {
	model, err := heatingModel(ctx, b.Meter)
	if err != nil {
		return nil, err
	}
	out := b.with(PredictedHeat, b.Meter, b.Mask)
	out.Derive = func(date time.Time, _ energy.HalfHourly) (energy.HalfHourly, error) {
		p, err := predicted(ctx, model, date)
		if err != nil {
			return energy.HalfHourly{}, err
		}
		return spread(p), nil
	}
	return []Branch{out}, nil
}

// cusumStrategy is predicted minus actual per day; a cumulative chart shows the running divergence.
type cusumStrategy struct{}

func (cusumStrategy) Name() string { return "cusum" }

func (cusumStrategy) Keys(*Context) ([]string, error) { return []string{CUSUM}, nil }

func (cusumStrategy) Split(ctx *Context, _ time.Time, b Branch) ([]Branch, error) {
	model, err := heatingModel(ctx, b.Meter)
	if err != nil {
		return nil, err
	}
	out := b.with(CUSUM, b.Meter, b.Mask)
	out.Derive = func(date time.Time, kwh energy.HalfHourly) (energy.HalfHourly, error) {
		p, err := predicted(ctx, model, date)
		if err != nil {
			return energy.HalfHourly{}, err
		}
		return spread(p - kwh.Sum()), nil
	}
	return []Branch{out}, nil
}

// hotWaterStrategy splits a day into useful hot water and standing losses. Unoccupied days are all
// losses; an occupied day loses the standing kWh and uses the rest.
type hotWaterStrategy struct{}

func (hotWaterStrategy) Name() string { return "hotwater" }

func (hotWaterStrategy) Keys(*Context) ([]string, error) {
	return []string{HotWaterUsage, WastedHotWater}, nil
}

func (hotWaterStrategy) Split(ctx *Context, date time.Time, b Branch) ([]Branch, error) {
	model, err := heatingModel(ctx, b.Meter)
	if err != nil {
		return nil, err
	}
	standing := model.StandingKWh()
	occupied := ClassifyDay(ctx.School.Holidays, date) == SchoolDay
	split := func(kwh energy.HalfHourly) (useful, wasted float64) {
		day := kwh.Sum()
		if !occupied || day <= standing {
			return 0, day
		}
		return day - standing, standing
	}

	useful := b.with(HotWaterUsage, b.Meter, b.Mask)
	useful.Derive = func(_ time.Time, kwh energy.HalfHourly) (energy.HalfHourly, error) {
		u, _ := split(kwh)
		return spread(u), nil
	}
	wasted := b.with(WastedHotWater, b.Meter, b.Mask)
	wasted.Derive = func(_ time.Time, kwh energy.HalfHourly) (energy.HalfHourly, error) {
		_, w := split(kwh)
		return spread(w), nil
	}
	return []Branch{useful, wasted}, nil
}

// heatingDayTypeStrategy crosses heating on/off with the kind of day; boiler-off days stand alone.
type heatingDayTypeStrategy struct{}

func (heatingDayTypeStrategy) Name() string { return "heating_daytype" }

func (heatingDayTypeStrategy) Keys(*Context) ([]string, error) {
	return append([]string(nil), heatingDayTypeKeys...), nil
}

func (heatingDayTypeStrategy) Split(ctx *Context, date time.Time, b Branch) ([]Branch, error) {
	key, err := HeatingDayType(ctx, b.Meter, date)
	if err != nil {
		return nil, err
	}
	return []Branch{b.with(key, b.Meter, b.Mask)}, nil
}

// HeatingDayType names the heating regime of a date for a meter.
func HeatingDayType(ctx *Context, meter energy.Meter, date time.Time) (string, error) {
	model, err := heatingModel(ctx, meter)
	if err != nil {
		return "", err
	}
	off, err := model.BoilerOff(date)
	if err != nil {
		return "", err
	}
	if off {
		return BoilerOff, nil
	}
	on, err := model.HeatingOn(date)
	if err != nil {
		return "", err
	}
	switch ClassifyDay(ctx.School.Holidays, date) {
	case HolidayDay:
		if on {
			return HolidayHeating, nil
		}
		return HolidayHotWater, nil
	case WeekendDay:
		if on {
			return WeekendHeating, nil
		}
		return WeekendHotWater, nil
	}
	if on {
		return SchoolDayHeating, nil
	}
	return SchoolDayHotWater, nil
}
