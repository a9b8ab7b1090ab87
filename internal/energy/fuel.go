package energy

import (
	"fmt"
	"strings"
	"time"
)

// SlotsPerDay is the number of half-hourly readings in one meter day.
const SlotsPerDay = 48

// FuelType classifies a meter's supply.
type FuelType string

const (
	Electricity   FuelType = "electricity"
	Gas           FuelType = "gas"
	StorageHeater FuelType = "storage heaters"
	SolarPV       FuelType = "solar pv"
)

// Fuels lists the fuel types in their canonical series order.
var Fuels = []FuelType{Electricity, Gas, StorageHeater, SolarPV}

// ParseFuel accepts canonical names and the common aliases used in chart definitions.
func ParseFuel(s string) (FuelType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "electricity", "electric":
		return Electricity, nil
	case "gas", "heat":
		return Gas, nil
	case "storage heaters", "storage_heaters", "storage_heater", "storage heater":
		return StorageHeater, nil
	case "solar pv", "solar_pv", "solar":
		return SolarPV, nil
	}
	return "", fmt.Errorf("unknown fuel type %q", s)
}

// IsHeat reports whether the fuel is benchmarked by floor area rather than pupils.
func (f FuelType) IsHeat() bool {
	return f == Gas || f == StorageHeater
}

// HalfHourly is one day of half-hourly values, slot 0 being 00:00-00:30.
type HalfHourly [SlotsPerDay]float64

// Sum returns the day total.
func (h HalfHourly) Sum() float64 {
	total := 0.0
	for _, v := range h {
		total += v
	}
	return total
}

// Masked returns a copy with every slot outside mask zeroed.
func (h HalfHourly) Masked(mask SlotMask) HalfHourly {
	var out HalfHourly
	for i, v := range h {
		if mask[i] {
			out[i] = v
		}
	}
	return out
}

// SlotMask selects half-hour slots within a day.
type SlotMask [SlotsPerDay]bool

// AllSlots selects the whole day.
var AllSlots = func() SlotMask {
	var m SlotMask
	for i := range m {
		m[i] = true
	}
	return m
}()

// Any reports whether at least one slot is selected.
func (m SlotMask) Any() bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}

// And intersects two masks.
func (m SlotMask) And(o SlotMask) SlotMask {
	var out SlotMask
	for i := range m {
		out[i] = m[i] && o[i]
	}
	return out
}

// SlotLabel returns the "15:04" start time of a half-hour slot.
func SlotLabel(slot int) string {
	return fmt.Sprintf("%02d:%02d", slot/2, (slot%2)*30)
}

// ParseSlot converts "HH:MM" into a slot index, rounding down to the half hour.
func ParseSlot(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*2 + t.Minute()/30, nil
}

// Day truncates t to midnight UTC. All meter dates are UTC calendar days.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a UTC calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the inclusive number of calendar days from start to end.
func DaysBetween(start, end time.Time) int {
	return int(Day(end).Sub(Day(start)).Hours()/24) + 1
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether date lies within the range.
func (r DateRange) Contains(date time.Time) bool {
	return !date.Before(r.Start) && !date.After(r.End)
}

// Days returns the inclusive day count, zero for an inverted range.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return DaysBetween(r.Start, r.End)
}

// Intersect returns the overlap of two ranges and whether it is non-empty.
func (r DateRange) Intersect(o DateRange) (DateRange, bool) {
	out := r
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	if o.End.Before(out.End) {
		out.End = o.End
	}
	return out, !out.End.Before(out.Start)
}
