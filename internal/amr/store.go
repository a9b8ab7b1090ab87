package amr

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"amr-charts/internal/energy"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Reading is one JSONL line: a meter's 48 half-hourly kWh values for a day.
type Reading struct {
	MeterID string    `json:"meter_id"`
	Date    string    `json:"date"`
	KWh     []float64 `json:"kwh"`
}

// TemperatureReading is one JSONL line of the temperatures file.
type TemperatureReading struct {
	Date  string    `json:"date"`
	Temps []float64 `json:"temps"`
}

// Store provides thread-safe storage of meter readings, partitioned by school.
type Store struct {
	mu       sync.RWMutex
	readings map[string]map[string]map[string]Reading // school -> meter -> date
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{readings: make(map[string]map[string]map[string]Reading)}
}

// Append adds readings for a school. A later reading for the same meter and date replaces the earlier one.
func (s *Store) Append(schoolID string, readings []Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySchool, ok := s.readings[schoolID]
	if !ok {
		bySchool = make(map[string]map[string]Reading)
		s.readings[schoolID] = bySchool
	}
	for _, r := range readings {
		if len(r.KWh) != energy.SlotsPerDay {
			return fmt.Errorf("meter %s on %s: expected %d half-hourly values, got %d", r.MeterID, r.Date, energy.SlotsPerDay, len(r.KWh))
		}
		if _, err := time.Parse(time.DateOnly, r.Date); err != nil {
			return fmt.Errorf("meter %s: invalid date %q: %w", r.MeterID, r.Date, err)
		}
		byMeter, ok := bySchool[r.MeterID]
		if !ok {
			byMeter = make(map[string]Reading)
			bySchool[r.MeterID] = byMeter
		}
		byMeter[r.Date] = r
	}
	return nil
}

// Count returns the number of meter-days held for a school.
func (s *Store) Count(schoolID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byMeter := range s.readings[schoolID] {
		n += len(byMeter)
	}
	return n
}

// Fill copies a school's readings into meters keyed by id. Readings for unknown meters are skipped.
func (s *Store) Fill(schoolID string, meters map[string]*Meter) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for meterID, byMeter := range s.readings[schoolID] {
		m, ok := meters[meterID]
		if !ok {
			log.Warn().Str("school", schoolID).Str("meter", meterID).Msg("Skipping readings for undeclared meter")
			continue
		}
		for dateStr, r := range byMeter {
			date, _ := time.Parse(time.DateOnly, dateStr)
			var kwh energy.HalfHourly
			copy(kwh[:], r.KWh)
			m.Set(date, kwh)
		}
	}
}

// Load reads a school's readings from <dir>/<schoolID>.jsonl.
func (s *Store) Load(dir string, schoolID string) error {
	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl", schoolID))
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open readings: %w", err)
	}
	defer file.Close()

	var readings []Reading
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r Reading
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			log.Warn().Err(err).Str("school", schoolID).Msg("Skipping invalid JSON line in readings")
			continue
		}
		readings = append(readings, r)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading readings: %w", err)
	}

	log.Info().Str("school", schoolID).Int("count", len(readings)).Msg("Loaded meter readings")
	return s.Append(schoolID, readings)
}

// Save persists a school's readings to <dir>/<schoolID>.jsonl, sorted by meter and date.
func (s *Store) Save(dir string, schoolID string) error {
	s.mu.RLock()
	var readings []Reading
	for _, byMeter := range s.readings[schoolID] {
		for _, r := range byMeter {
			readings = append(readings, r)
		}
	}
	s.mu.RUnlock()

	if len(readings) == 0 {
		return nil
	}
	sort.Slice(readings, func(i, j int) bool {
		if readings[i].MeterID != readings[j].MeterID {
			return readings[i].MeterID < readings[j].MeterID
		}
		return readings[i].Date < readings[j].Date
	})

	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl", schoolID))
	if err := writeJSONL(path, readings); err != nil {
		return err
	}
	log.Info().Str("school", schoolID).Int("count", len(readings)).Msg("Meter readings saved")
	return nil
}

// writeJSONL writes via a temp file and an atomic rename.
func writeJSONL[T any](path string, rows []T) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	for _, r := range rows {
		if err := encoder.Encode(r); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode row: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// LoadTemperatures reads <dir>/<schoolID>_temperatures.jsonl. A missing file yields nil.
func LoadTemperatures(dir string, schoolID string) (*Temperatures, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_temperatures.jsonl", schoolID))
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open temperatures: %w", err)
	}
	defer file.Close()

	temps := NewTemperatures()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r TemperatureReading
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil || len(r.Temps) != energy.SlotsPerDay {
			log.Warn().Str("school", schoolID).Msg("Skipping invalid temperature line")
			continue
		}
		date, err := time.Parse(time.DateOnly, r.Date)
		if err != nil {
			continue
		}
		var h energy.HalfHourly
		copy(h[:], r.Temps)
		temps.Set(date, h)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading temperatures: %w", err)
	}
	return temps, nil
}

// SaveTemperatures writes the temperatures file.
func SaveTemperatures(dir string, schoolID string, rows []TemperatureReading) error {
	return writeJSONL(filepath.Join(dir, fmt.Sprintf("%s_temperatures.jsonl", schoolID)), rows)
}
