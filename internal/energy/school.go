package energy

import "time"

// Meter is one half-hourly metered supply, real or combined.
type Meter interface {
	ID() string
	Name() string
	Fuel() FuelType
	DataRange() DateRange
	// KWh returns the day's readings, failing with NotEnoughDataError outside DataRange.
	KWh(date time.Time) (HalfHourly, error)
	Submeters() []Meter
}

// Composite is implemented by meters that sum several physical meters.
type Composite interface {
	Parts() []Meter
}

// MeterDataSource enumerates a school's meters.
type MeterDataSource interface {
	Meters() []Meter
	// Aggregate returns the combined meter for a fuel, if the school has one.
	Aggregate(fuel FuelType) (Meter, bool)
}

// HolidayCalendar classifies calendar days.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
	IsWeekend(date time.Time) bool
}

// Temperatures supplies outside air temperatures for the school's location.
type Temperatures interface {
	DataRange() DateRange
	AverageTemperature(date time.Time) (float64, error)
	DegreeDays(date time.Time, base float64) (float64, error)
}

// HeatingModel is a fitted regression of heating energy against temperature for one meter.
type HeatingModel interface {
	PredictedKWh(date time.Time, temperature float64) (float64, error)
	HeatingOn(date time.Time) (bool, error)
	ModelType(date time.Time) (string, error)
	ModelTypes() []string
	// BoilerOff reports a day whose consumption is no more than meter noise.
	BoilerOff(date time.Time) (bool, error)
	// StandingKWh is the daily consumption of an unoccupied, unheated day.
	StandingKWh() float64
}

// HeatingModels returns a fitted model for a meter as of a date.
type HeatingModels interface {
	Model(meter Meter, asOf time.Time) (HeatingModel, error)
}

// TariffCostModel prices half-hourly consumption.
type TariffCostModel interface {
	// Costs splits the day's cost into named components, each priced per slot.
	// Accounting costs include standing charges; economic costs do not.
	Costs(meterID string, fuel FuelType, date time.Time, kwh HalfHourly, accounting bool) (map[string]HalfHourly, error)
	// Components lists the component names that Costs can return over the range.
	Components(meterID string, fuel FuelType, r DateRange, accounting bool) []string
}

// Comparison selects which reference school a benchmark value describes.
type Comparison string

const (
	Benchmark Comparison = "benchmark"
	Exemplar  Comparison = "exemplar"
)

// AnnualUsageBenchmarkService returns a reference school's annual kWh scaled to the given school.
type AnnualUsageBenchmarkService interface {
	AnnualUsage(school *School, fuel FuelType, asOf time.Time, compare Comparison) (float64, error)
}

// CommunityWindow is a weekly out-of-hours letting, slots [From, To).
type CommunityWindow struct {
	Weekday time.Weekday
	From    int
	To      int
}

// School bundles the descriptive data and collaborators needed to chart one school.
type School struct {
	ID           string
	Name         string
	Type         string
	Pupils       int
	FloorArea    float64
	OpenSlot     int
	CloseSlot    int
	CommunityUse []CommunityWindow

	Meters       MeterDataSource
	Holidays     HolidayCalendar
	Tariffs      TariffCostModel
	Temperatures Temperatures
}

// HasCommunityUse reports whether any community window is configured.
func (s *School) HasCommunityUse() bool {
	return len(s.CommunityUse) > 0
}

// CommunityMask returns the slots let for community use on date.
func (s *School) CommunityMask(date time.Time) SlotMask {
	var m SlotMask
	for _, w := range s.CommunityUse {
		if w.Weekday != date.Weekday() {
			continue
		}
		for i := w.From; i < w.To && i < SlotsPerDay; i++ {
			if i >= 0 {
				m[i] = true
			}
		}
	}
	return m
}

// OpenMask returns the slots within school opening hours.
func (s *School) OpenMask() SlotMask {
	var m SlotMask
	for i := s.OpenSlot; i < s.CloseSlot && i < SlotsPerDay; i++ {
		if i >= 0 {
			m[i] = true
		}
	}
	return m
}
