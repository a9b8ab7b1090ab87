package amr

import (
	"fmt"
	"math"
	"sync"
	"time"

	"amr-charts/internal/energy"
)

// Temperatures holds half-hourly outside temperatures in °C.
type Temperatures struct {
	mu   sync.RWMutex
	days map[time.Time]energy.HalfHourly
	rng  energy.DateRange
}

// NewTemperatures creates an empty series.
func NewTemperatures() *Temperatures {
	return &Temperatures{days: make(map[time.Time]energy.HalfHourly)}
}

// Set stores one day of readings.
func (t *Temperatures) Set(date time.Time, temps energy.HalfHourly) {
	date = energy.Day(date)
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.days) == 0 || date.Before(t.rng.Start) {
		t.rng.Start = date
	}
	if len(t.days) == 0 || date.After(t.rng.End) {
		t.rng.End = date
	}
	t.days[date] = temps
}

func (t *Temperatures) DataRange() energy.DateRange {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rng
}

// AverageTemperature is the mean of the day's half-hourly readings.
func (t *Temperatures) AverageTemperature(date time.Time) (float64, error) {
	date = energy.Day(date)
	t.mu.RLock()
	temps, ok := t.days[date]
	t.mu.RUnlock()
	if !ok {
		return 0, &energy.NotEnoughDataError{What: fmt.Sprintf("no temperature for %s", date.Format(time.DateOnly)), Range: t.DataRange()}
	}
	return temps.Sum() / energy.SlotsPerDay, nil
}

// DegreeDays is the day's shortfall of the mean temperature below base.
func (t *Temperatures) DegreeDays(date time.Time, base float64) (float64, error) {
	avg, err := t.AverageTemperature(date)
	if err != nil {
		return 0, err
	}
	return math.Max(0, base-avg), nil
}
