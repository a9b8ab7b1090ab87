package heating

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"amr-charts/internal/energy"
)

// BaseTemperature is the degree-day base in °C.
const BaseTemperature = 15.5

// boilerOffKWh is the floor below which a day counts as boiler off.
const boilerOffKWh = 1.0

// fitDays bounds the regression window, the only superlinear cost in a chart request.
const fitDays = 364

// Model types, in display order.
const (
	HeatingOccupied    = "heating_occupied"
	NonHeatingOccupied = "non_heating_occupied"
	SummerOccupied     = "summer_occupied"
	HolidayType        = "holiday"
	WeekendType        = "weekend"
)

var modelTypes = []string{HeatingOccupied, NonHeatingOccupied, SummerOccupied, HolidayType, WeekendType}

// Model is a degree-day regression for one meter: occupied heating days follow kWh = a + b*dd.
type Model struct {
	meter    energy.Meter
	school   *energy.School
	window   energy.DateRange
	a, b     float64
	baseline float64 // occupied day without heating
	offDays  float64 // mean of weekends and holidays
	standing float64 // mean of unheated weekends and holidays
	on       float64 // heating-on threshold, kWh/day
}

type sample struct {
	date time.Time
	kwh  float64
	dd   float64
	temp float64
}

// Fit regresses the meter's daily kWh against degree days over the year ending asOf.
func Fit(school *energy.School, meter energy.Meter, asOf time.Time) (*Model, error) {
	if school.Temperatures == nil {
		return nil, &energy.NotEnoughDataError{What: fmt.Sprintf("no temperature data for %s", school.Name)}
	}

	// 1. Bound the window by the meter and temperature data
	window := energy.DateRange{Start: energy.Day(asOf).AddDate(0, 0, -(fitDays - 1)), End: energy.Day(asOf)}
	window, ok := window.Intersect(meter.DataRange())
	if ok {
		window, ok = window.Intersect(school.Temperatures.DataRange())
	}
	if !ok {
		return nil, &energy.NotEnoughDataError{What: fmt.Sprintf("no overlapping meter and temperature data for %s", meter.ID())}
	}

	// 2. Collect daily samples split by occupancy
	var occupied []sample
	var off []float64
	for d := window.Start; !d.After(window.End); d = d.AddDate(0, 0, 1) {
		kwh, err := meter.KWh(d)
		if err != nil {
			continue
		}
		temp, err := school.Temperatures.AverageTemperature(d)
		if err != nil {
			continue
		}
		s := sample{date: d, kwh: kwh.Sum(), temp: temp, dd: math.Max(0, BaseTemperature-temp)}
		if isOccupied(school, d) {
			occupied = append(occupied, s)
		} else {
			off = append(off, s.kwh)
		}
	}
	if len(occupied) < 2 {
		return nil, &energy.DegenerateModelError{MeterID: meter.ID(), Reason: fmt.Sprintf("only %d occupied days to fit", len(occupied))}
	}

	m := &Model{meter: meter, school: school, window: window, offDays: mean(off)}

	// 3. Baseline from warm occupied days, or the lower quartile when there are none
	var warm []float64
	for _, s := range occupied {
		if s.dd == 0 {
			warm = append(warm, s.kwh)
		}
	}
	if len(warm) > 0 {
		m.baseline = mean(warm)
	} else {
		m.baseline = quantile(occupied, 0.25)
	}
	m.on = math.Max(m.baseline*1.5, 1)
	var unheated []float64
	for _, v := range off {
		if v <= m.on {
			unheated = append(unheated, v)
		}
	}
	m.standing = mean(unheated)

	// 4. Least squares over heating days
	var xs, ys []float64
	for _, s := range occupied {
		if s.kwh > m.on {
			xs = append(xs, s.dd)
			ys = append(ys, s.kwh)
		}
	}
	a, b, err := linearFit(xs, ys)
	if err != nil {
		return nil, &energy.DegenerateModelError{MeterID: meter.ID(), Reason: err.Error()}
	}
	m.a, m.b = a, b
	return m, nil
}

func isOccupied(school *energy.School, d time.Time) bool {
	if school.Holidays == nil {
		wd := d.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return !school.Holidays.IsHoliday(d) && !school.Holidays.IsWeekend(d)
}

// PredictedKWh returns the expected daily kWh at the given mean temperature.
func (m *Model) PredictedKWh(date time.Time, temperature float64) (float64, error) {
	if !isOccupied(m.school, date) {
		return m.offDays, nil
	}
	dd := math.Max(0, BaseTemperature-temperature)
	if dd == 0 {
		return m.baseline, nil
	}
	return math.Max(m.baseline, m.a+m.b*dd), nil
}

// HeatingOn classifies a day by its actual consumption against the fitted threshold.
func (m *Model) HeatingOn(date time.Time) (bool, error) {
	kwh, err := m.meter.KWh(date)
	if err != nil {
		return false, err
	}
	return kwh.Sum() > m.on, nil
}

// ModelType returns the regime the model places a date in.
func (m *Model) ModelType(date time.Time) (string, error) {
	if m.school.Holidays != nil && m.school.Holidays.IsHoliday(date) {
		return HolidayType, nil
	}
	if !isOccupied(m.school, date) {
		return WeekendType, nil
	}
	on, err := m.HeatingOn(date)
	if err != nil {
		return "", err
	}
	if on {
		return HeatingOccupied, nil
	}
	if m.school.Temperatures != nil {
		if temp, err := m.school.Temperatures.AverageTemperature(date); err == nil && temp >= BaseTemperature {
			return SummerOccupied, nil
		}
	}
	return NonHeatingOccupied, nil
}

// BoilerOff reports days below the noise floor, or a twentieth of the occupied baseline when that is higher.
// Days without readings count as off.
func (m *Model) BoilerOff(date time.Time) (bool, error) {
	kwh, err := m.meter.KWh(date)
	if errors.Is(err, energy.ErrDataAvailability) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return kwh.Sum() < math.Max(boilerOffKWh, m.baseline/20), nil
}

// StandingKWh is the mean daily kWh of weekends and holidays below the heating threshold: hot water
// and kitchen losses with nobody in.
func (m *Model) StandingKWh() float64 {
	return m.standing
}

// ModelTypes lists every regime.
func (m *Model) ModelTypes() []string {
	return append([]string(nil), modelTypes...)
}

// Coefficients exposes the fitted line, baseline and heating threshold.
func (m *Model) Coefficients() (a, b, baseline, threshold float64) {
	return m.a, m.b, m.baseline, m.on
}

func linearFit(xs, ys []float64) (float64, float64, error) {
	n := float64(len(xs))
	if len(xs) < 2 {
		return 0, 0, fmt.Errorf("only %d heating days to fit", len(xs))
	}
	mx, my := mean(xs), mean(ys)
	var sxx, sxy float64
	for i := range xs {
		sxx += (xs[i] - mx) * (xs[i] - mx)
		sxy += (xs[i] - mx) * (ys[i] - my)
	}
	if sxx == 0 || n == 0 {
		return 0, 0, fmt.Errorf("no variation in degree days")
	}
	b := sxy / sxx
	return my - b*mx, b, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

func quantile(samples []sample, q float64) float64 {
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s.kwh
	}
	sort.Float64s(vals)
	return vals[int(q*float64(len(vals)-1))]
}
