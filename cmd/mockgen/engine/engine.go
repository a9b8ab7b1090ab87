package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"amr-charts/internal/amr"
	"amr-charts/internal/energy"
)

type GeneratorConfig struct {
	SchoolID string
	Scenario string // "typical", "leaky" or "drift"
	Days     int
	Now      time.Time
	Seed     uint64
	// StorageHeaters adds an electric storage heater meter charging overnight.
	StorageHeaters bool
}

// Dataset is everything mockgen writes for one school.
type Dataset struct {
	School       amr.Descriptor
	Readings     []amr.Reading
	Temperatures []amr.TemperatureReading
}

const (
	openSlot  = 17 // 08:30
	closeSlot = 31 // 15:30
)

func Generate(cfg GeneratorConfig) Dataset {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	if cfg.Days <= 0 {
		cfg.Days = 730
	}
	if cfg.SchoolID == "" {
		cfg.SchoolID = "mock-primary"
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	end := energy.Date(cfg.Now.Year(), cfg.Now.Month(), cfg.Now.Day()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(cfg.Days - 1))

	d := amr.Descriptor{
		ID:          cfg.SchoolID,
		Name:        "Mock Primary School",
		Type:        "primary",
		Pupils:      240,
		FloorArea:   1350,
		OpeningTime: "08:30",
		ClosingTime: "15:30",
		CommunityUse: []amr.CommunityWindow{
			{Day: "wednesday", From: "18:00", To: "20:00"},
		},
		Holidays: holidays(start.Year()-1, end.Year()),
		Meters: []amr.MeterInfo{
			{ID: "e1", Name: "Main incomer", Fuel: string(energy.Electricity)},
			{ID: "g1", Name: "Boiler house", Fuel: string(energy.Gas)},
		},
		Tariffs: []amr.TariffInfo{
			{MeterID: "e1", Start: start.Format(time.DateOnly), Type: "differential", DayRate: 0.28, NightRate: 0.14, NightFrom: "00:00", NightTo: "07:00", StandingCharge: 1.1},
			{MeterID: "g1", Start: start.Format(time.DateOnly), Type: "flat", Rate: 0.06, StandingCharge: 0.9},
		},
	}
	if cfg.StorageHeaters {
		d.Meters = append(d.Meters, amr.MeterInfo{ID: "s1", Name: "Storage heaters", Fuel: string(energy.StorageHeater)})
	}
	onHoliday := holidayLookup(d.Holidays)

	var ds Dataset
	ds.School = d
	for day, i := start, 0; !day.After(end); day, i = day.AddDate(0, 0, 1), i+1 {
		temps := temperatures(day, rng)
		ds.Temperatures = append(ds.Temperatures, amr.TemperatureReading{Date: day.Format(time.DateOnly), Temps: temps[:]})

		occupied := day.Weekday() != time.Saturday && day.Weekday() != time.Sunday && !onHoliday(day)
		growth := 1.0
		if cfg.Scenario == "drift" {
			growth = 1 + 0.5*float64(i)/float64(cfg.Days)
		}

		var elec, gas, storage energy.HalfHourly
		for s := 0; s < energy.SlotsPerDay; s++ {
			// 1. Electricity: baseload plus occupied load
			base := 1.0
			if cfg.Scenario == "leaky" {
				base = 2.5
			}
			v := base
			if occupied && s >= openSlot && s < closeSlot {
				v += 4 + rng.Float64()
			}
			if day.Weekday() == time.Wednesday && s >= 36 && s < 40 {
				v += 1.5
			}
			elec[s] = round(v * growth * (0.95 + 0.1*rng.Float64()))

			// 2. Gas: heating from two hours before opening, driven by the outside temperature
			if occupied && s >= openSlot-4 && s < closeSlot {
				gas[s] = round(math.Max(0, 15.5-temps[s]) * 1.8 * growth)
			} else if s%8 == 0 {
				gas[s] = 0.2 // frost protection and hot water
			}

			// 3. Storage heaters charge overnight in the heating season
			if cfg.StorageHeaters && s < 14 {
				storage[s] = round(math.Max(0, 15.5-temps[s]) * 0.6)
			}
		}
		ds.Readings = append(ds.Readings,
			amr.Reading{MeterID: "e1", Date: day.Format(time.DateOnly), KWh: elec[:]},
			amr.Reading{MeterID: "g1", Date: day.Format(time.DateOnly), KWh: gas[:]},
		)
		if cfg.StorageHeaters {
			ds.Readings = append(ds.Readings, amr.Reading{MeterID: "s1", Date: day.Format(time.DateOnly), KWh: storage[:]})
		}
	}
	return ds
}

// temperatures follows a seasonal curve coldest in mid January with a daily swing peaking mid afternoon.
func temperatures(day time.Time, rng *rand.Rand) energy.HalfHourly {
	season := 10 - 6*math.Cos(2*math.Pi*float64(day.YearDay()-15)/365)
	offset := rng.NormFloat64() * 2
	var t energy.HalfHourly
	for s := range t {
		daily := 3 * math.Sin(2*math.Pi*float64(s-16)/float64(energy.SlotsPerDay))
		t[s] = round(season + offset + daily)
	}
	return t
}

// holidays returns English-style school holidays for the calendar years from..to.
func holidays(from, to int) []amr.HolidayPeriod {
	var out []amr.HolidayPeriod
	add := func(name string, y int, sm time.Month, sd int, em time.Month, ed int) {
		out = append(out, amr.HolidayPeriod{
			Name:  fmt.Sprintf("%s %d", name, y),
			Start: energy.Date(y, sm, sd).Format(time.DateOnly),
			End:   energy.Date(y, em, ed).Format(time.DateOnly),
		})
	}
	for y := from; y <= to; y++ {
		add("New Year", y, time.January, 1, time.January, 3)
		add("February half term", y, time.February, 12, time.February, 16)
		add("Easter", y, time.April, 1, time.April, 12)
		add("May half term", y, time.May, 27, time.May, 31)
		add("Summer", y, time.July, 22, time.August, 31)
		add("October half term", y, time.October, 23, time.October, 31)
		add("Christmas", y, time.December, 20, time.December, 31)
	}
	return out
}

func holidayLookup(hs []amr.HolidayPeriod) func(time.Time) bool {
	return func(day time.Time) bool {
		d := day.Format(time.DateOnly)
		for _, h := range hs {
			if d >= h.Start && d <= h.End {
				return true
			}
		}
		return false
	}
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Save writes <id>_school.json, <id>.jsonl and <id>_temperatures.jsonl into outDir.
func Save(outDir string, ds Dataset) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	if err := amr.WriteDescriptor(outDir, ds.School); err != nil {
		return err
	}
	store := amr.NewStore()
	if err := store.Append(ds.School.ID, ds.Readings); err != nil {
		return err
	}
	if err := store.Save(outDir, ds.School.ID); err != nil {
		return err
	}
	return amr.SaveTemperatures(outDir, ds.School.ID, ds.Temperatures)
}
