package amr

import (
	"fmt"
	"sync"
	"time"

	"amr-charts/internal/energy"
)

// Meter holds one meter's half-hourly readings in memory.
type Meter struct {
	id   string
	name string
	fuel energy.FuelType

	mu        sync.RWMutex
	days      map[time.Time]energy.HalfHourly
	rng       energy.DateRange
	submeters []*Meter
}

// NewMeter creates an empty meter.
func NewMeter(id, name string, fuel energy.FuelType) *Meter {
	if name == "" {
		name = id
	}
	return &Meter{id: id, name: name, fuel: fuel, days: make(map[time.Time]energy.HalfHourly)}
}

func (m *Meter) ID() string { return m.id }
func (m *Meter) Name() string { return m.name }
func (m *Meter) Fuel() energy.FuelType { return m.fuel }

// Set stores one day's readings, replacing any earlier reading for the date.
func (m *Meter) Set(date time.Time, kwh energy.HalfHourly) {
	date = energy.Day(date)
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.days) == 0 || date.Before(m.rng.Start) {
		m.rng.Start = date
	}
	if len(m.days) == 0 || date.After(m.rng.End) {
		m.rng.End = date
	}
	m.days[date] = kwh
}

// AddSubmeter attaches a child meter.
func (m *Meter) AddSubmeter(sub *Meter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submeters = append(m.submeters, sub)
}

// DataRange returns the first and last dates with readings.
func (m *Meter) DataRange() energy.DateRange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rng
}

// DayCount returns the number of days with readings.
func (m *Meter) DayCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.days)
}

// KWh returns the readings for a date. Gaps inside the range read as zero.
func (m *Meter) KWh(date time.Time) (energy.HalfHourly, error) {
	date = energy.Day(date)
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.days) == 0 || !m.rng.Contains(date) {
		return energy.HalfHourly{}, &energy.NotEnoughDataError{
			What:  fmt.Sprintf("meter %s has no reading for %s", m.id, date.Format(time.DateOnly)),
			Range: m.rng,
		}
	}
	return m.days[date], nil
}

// Submeters returns the child meters.
func (m *Meter) Submeters() []energy.Meter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]energy.Meter, len(m.submeters))
	for i, s := range m.submeters {
		out[i] = s
	}
	return out
}

// Combined sums several meters of one fuel over the union of their ranges.
type Combined struct {
	id     string
	fuel   energy.FuelType
	meters []energy.Meter
}

// NewCombined builds the aggregate meter for a fuel.
func NewCombined(fuel energy.FuelType, meters []energy.Meter) *Combined {
	return &Combined{id: "aggregate-" + string(fuel), fuel: fuel, meters: meters}
}

func (c *Combined) ID() string { return c.id }
func (c *Combined) Name() string { return "All " + string(c.fuel) }
func (c *Combined) Fuel() energy.FuelType { return c.fuel }
func (c *Combined) Submeters() []energy.Meter { return nil }

// Parts returns the physical meters being summed.
func (c *Combined) Parts() []energy.Meter { return append([]energy.Meter(nil), c.meters...) }

func (c *Combined) DataRange() energy.DateRange {
	var r energy.DateRange
	for i, m := range c.meters {
		mr := m.DataRange()
		if i == 0 || mr.Start.Before(r.Start) {
			r.Start = mr.Start
		}
		if i == 0 || mr.End.After(r.End) {
			r.End = mr.End
		}
	}
	return r
}

// KWh sums the meters that have a reading for the date.
func (c *Combined) KWh(date time.Time) (energy.HalfHourly, error) {
	var total energy.HalfHourly
	found := false
	for _, m := range c.meters {
		kwh, err := m.KWh(date)
		if err != nil {
			continue
		}
		found = true
		for i, v := range kwh {
			total[i] += v
		}
	}
	if !found {
		return energy.HalfHourly{}, &energy.NotEnoughDataError{
			What:  fmt.Sprintf("no %s meter has a reading for %s", c.fuel, date.Format(time.DateOnly)),
			Range: c.DataRange(),
		}
	}
	return total, nil
}

// Source is a school's meter set.
type Source struct {
	meters []energy.Meter
}

// NewSource wraps the school's top-level meters.
func NewSource(meters ...energy.Meter) *Source {
	return &Source{meters: meters}
}

// Meters returns the top-level meters.
func (s *Source) Meters() []energy.Meter {
	return append([]energy.Meter(nil), s.meters...)
}

// Aggregate returns the single meter of a fuel, or a Combined meter when there are several.
func (s *Source) Aggregate(fuel energy.FuelType) (energy.Meter, bool) {
	var matched []energy.Meter
	for _, m := range s.meters {
		if m.Fuel() == fuel {
			matched = append(matched, m)
		}
	}
	switch len(matched) {
	case 0:
		return nil, false
	case 1:
		return matched[0], true
	}
	return NewCombined(fuel, matched), true
}
