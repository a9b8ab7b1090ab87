package amr

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"amr-charts/internal/energy"
	"amr-charts/internal/holiday"
	"amr-charts/internal/tariff"
	"amr-charts/internal/units"

	"github.com/goccy/go-json"
)

// Descriptor is the on-disk description of a school (<id>_school.json).
type Descriptor struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Pupils       int               `json:"pupils"`
	FloorArea    float64           `json:"floor_area"`
	OpeningTime  string            `json:"opening_time"`
	ClosingTime  string            `json:"closing_time"`
	CommunityUse []CommunityWindow `json:"community_use,omitempty"`
	Holidays     []HolidayPeriod   `json:"holidays,omitempty"`
	Meters       []MeterInfo       `json:"meters"`
	Tariffs      []TariffInfo      `json:"tariffs,omitempty"`
}

// CommunityWindow is a weekly letting, e.g. {"day": "tuesday", "from": "18:00", "to": "21:00"}.
type CommunityWindow struct {
	Day  string `json:"day"`
	From string `json:"from"`
	To   string `json:"to"`
}

type HolidayPeriod struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type MeterInfo struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Fuel      string      `json:"fuel"`
	Submeters []MeterInfo `json:"submeters,omitempty"`
}

type TariffInfo struct {
	MeterID        string  `json:"meter_id"`
	Start          string  `json:"start"`
	End            string  `json:"end,omitempty"`
	Type           string  `json:"type"`
	Rate           float64 `json:"rate,omitempty"`
	DayRate        float64 `json:"day_rate,omitempty"`
	NightRate      float64 `json:"night_rate,omitempty"`
	NightFrom      string  `json:"night_from,omitempty"`
	NightTo        string  `json:"night_to,omitempty"`
	StandingCharge float64 `json:"standing_charge,omitempty"`
}

// ReadDescriptor loads <dir>/<id>_school.json.
func ReadDescriptor(dir, id string) (Descriptor, error) {
	var d Descriptor
	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("%s_school.json", id)))
	if err != nil {
		return d, fmt.Errorf("failed to read school %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("failed to parse school %s: %w", id, err)
	}
	if d.ID == "" {
		d.ID = id
	}
	return d, nil
}

// WriteDescriptor saves <dir>/<id>_school.json.
func WriteDescriptor(dir string, d Descriptor) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("%s_school.json", d.ID)), data, 0644)
}

// ListSchools returns the ids of every school descriptor in dir.
func ListSchools(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*_school.json"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), "_school.json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadSchool assembles a School from its descriptor, readings and temperatures.
func (s *Store) LoadSchool(dir, id string) (*energy.School, error) {
	d, err := ReadDescriptor(dir, id)
	if err != nil {
		return nil, err
	}
	if s.Count(id) == 0 {
		if err := s.Load(dir, id); err != nil {
			return nil, err
		}
	}
	school, err := d.build(s)
	if err != nil {
		return nil, fmt.Errorf("school %s: %w", id, err)
	}
	temps, err := LoadTemperatures(dir, id)
	if err != nil {
		return nil, err
	}
	if temps != nil {
		school.Temperatures = temps
	}
	return school, nil
}

func (d Descriptor) build(store *Store) (*energy.School, error) {
	school := &energy.School{
		ID:        d.ID,
		Name:      d.Name,
		Type:      d.Type,
		Pupils:    d.Pupils,
		FloorArea: d.FloorArea,
	}

	// 1. Opening hours and lettings
	var err error
	if school.OpenSlot, err = parseSlotOr(d.OpeningTime, "08:30"); err != nil {
		return nil, err
	}
	if school.CloseSlot, err = parseSlotOr(d.ClosingTime, "15:30"); err != nil {
		return nil, err
	}
	for _, w := range d.CommunityUse {
		cw, err := w.parse()
		if err != nil {
			return nil, err
		}
		school.CommunityUse = append(school.CommunityUse, cw)
	}

	// 2. Holidays
	var hs []holiday.Holiday
	for _, h := range d.Holidays {
		start, err := time.Parse(time.DateOnly, h.Start)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h.Name, err)
		}
		end, err := time.Parse(time.DateOnly, h.End)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h.Name, err)
		}
		hs = append(hs, holiday.Holiday{Name: h.Name, Start: start, End: end})
	}
	school.Holidays = holiday.New(hs)

	// 3. Meters, filled from the store
	byID := make(map[string]*Meter)
	var top []energy.Meter
	for _, mi := range d.Meters {
		m, err := mi.build(byID)
		if err != nil {
			return nil, err
		}
		top = append(top, m)
	}
	store.Fill(d.ID, byID)
	school.Meters = NewSource(top...)

	// 4. Tariffs
	var ts []tariff.Tariff
	for _, ti := range d.Tariffs {
		t, err := ti.parse()
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	school.Tariffs = tariff.New(ts, units.DefaultRates)
	return school, nil
}

func (mi MeterInfo) build(byID map[string]*Meter) (*Meter, error) {
	fuel, err := energy.ParseFuel(mi.Fuel)
	if err != nil {
		return nil, fmt.Errorf("meter %s: %w", mi.ID, err)
	}
	if _, dup := byID[mi.ID]; dup {
		return nil, fmt.Errorf("meter %s declared twice", mi.ID)
	}
	m := NewMeter(mi.ID, mi.Name, fuel)
	byID[mi.ID] = m
	for _, si := range mi.Submeters {
		if si.Fuel == "" {
			si.Fuel = mi.Fuel
		}
		sub, err := si.build(byID)
		if err != nil {
			return nil, err
		}
		m.AddSubmeter(sub)
	}
	return m, nil
}

func (w CommunityWindow) parse() (energy.CommunityWindow, error) {
	var cw energy.CommunityWindow
	found := false
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), w.Day) {
			cw.Weekday, found = wd, true
		}
	}
	if !found {
		return cw, fmt.Errorf("community use: unknown day %q", w.Day)
	}
	var err error
	if cw.From, err = energy.ParseSlot(w.From); err != nil {
		return cw, err
	}
	if cw.To, err = energy.ParseSlot(w.To); err != nil {
		return cw, err
	}
	return cw, nil
}

func (ti TariffInfo) parse() (tariff.Tariff, error) {
	t := tariff.Tariff{
		MeterID:        ti.MeterID,
		Kind:           tariff.Kind(strings.ToLower(ti.Type)),
		Rate:           ti.Rate,
		DayRate:        ti.DayRate,
		NightRate:      ti.NightRate,
		StandingCharge: ti.StandingCharge,
	}
	var err error
	if t.Start, err = time.Parse(time.DateOnly, ti.Start); err != nil {
		return t, fmt.Errorf("tariff for %s: %w", ti.MeterID, err)
	}
	if ti.End != "" {
		if t.End, err = time.Parse(time.DateOnly, ti.End); err != nil {
			return t, fmt.Errorf("tariff for %s: %w", ti.MeterID, err)
		}
	}
	switch t.Kind {
	case tariff.Flat:
	case tariff.Differential:
		if t.NightFrom, err = parseSlotOr(ti.NightFrom, "00:00"); err != nil {
			return t, err
		}
		if t.NightTo, err = parseSlotOr(ti.NightTo, "07:00"); err != nil {
			return t, err
		}
	default:
		return t, fmt.Errorf("tariff for %s: unknown type %q", ti.MeterID, ti.Type)
	}
	return t, nil
}

func parseSlotOr(s, def string) (int, error) {
	if s == "" {
		s = def
	}
	return energy.ParseSlot(s)
}
