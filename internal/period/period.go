package period

import (
	"fmt"
	"time"

	"amr-charts/internal/energy"
)

// yearDays is the length of a chart year: 52 whole weeks, so day-of-week alignment holds across years.
const yearDays = 364

// Period is a resolved timescale, bounded by the available meter data.
type Period struct {
	Spec     Spec      `json:"-"`
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	DataEnd  time.Time `json:"data_end"`
	FullDays int       `json:"full_days"`
	Partial  bool      `json:"partial"`
}

// Range returns the inclusive date range of the period.
func (p Period) Range() energy.DateRange {
	return energy.DateRange{Start: p.Start, End: p.End}
}

// Days returns the number of calendar days in the period.
func (p Period) Days() int {
	return energy.DaysBetween(p.Start, p.End)
}

// DataDays returns the number of days up to the last real reading.
func (p Period) DataDays() int {
	end := p.End
	if !p.DataEnd.IsZero() && p.DataEnd.Before(end) {
		end = p.DataEnd
	}
	if end.Before(p.Start) {
		return 0
	}
	return energy.DaysBetween(p.Start, end)
}

// HasData reports whether date is on or before the last real reading.
func (p Period) HasData(date time.Time) bool {
	return p.DataEnd.IsZero() || !date.After(p.DataEnd)
}

// Availability is the data span periods are resolved against.
// Horizon, when set, extends the anchor past the last reading for forward-looking charts.
type Availability struct {
	Data    energy.DateRange
	Horizon time.Time
}

func (a Availability) anchor() time.Time {
	if !a.Horizon.IsZero() && a.Horizon.After(a.Data.End) {
		return a.Horizon
	}
	return a.Data.End
}

// Resolve turns a timescale into concrete dates, clipping to the data and flagging partial periods.
func Resolve(spec Spec, avail Availability) (Period, error) {
	if err := spec.Validate(); err != nil {
		return Period{}, err
	}
	anchor := energy.Day(avail.anchor())
	n := spec.Offset

	var start, end time.Time
	switch spec.Kind {
	case Year, UpToAYear:
		end = anchor.AddDate(0, 0, yearDays*n)
		start = end.AddDate(0, 0, -(yearDays - 1))
	case AcademicYear:
		y := anchor.Year()
		if anchor.Month() < time.September {
			y--
		}
		start = energy.Date(y+n, time.September, 1)
		end = energy.Date(y+n+1, time.August, 31)
	case Month:
		start = energy.Date(anchor.Year(), anchor.Month()+time.Month(n), 1)
		end = start.AddDate(0, 1, -1)
	case Week:
		start = weekStart(anchor).AddDate(0, 0, 7*n)
		end = start.AddDate(0, 0, 6)
	case Day:
		start = anchor.AddDate(0, 0, n)
		end = start
	case DateRange:
		start, end = energy.Day(spec.From), energy.Day(spec.To)
	case All:
		start, end = energy.Day(avail.Data.Start), anchor
	default:
		return Period{}, &energy.InvalidConfigError{Field: "timescale", Reason: fmt.Sprintf("unsupported timescale %q", spec.Kind)}
	}

	p := Period{
		Spec:     spec,
		FullDays: energy.DaysBetween(start, end),
		DataEnd:  energy.Day(avail.Data.End),
	}
	label := formatLabel(spec.Kind, start, end)

	// 1. Trim the part of a current period that lies beyond the anchor
	if end.After(anchor) {
		end = anchor
	}

	// 2. Clip history we do not have
	dataStart := energy.Day(avail.Data.Start)
	if end.Before(dataStart) || start.After(anchor) {
		return Period{}, &energy.NotEnoughDataError{
			What:  fmt.Sprintf("no meter data for timescale %s", spec),
			Range: energy.DateRange{Start: start, End: end},
		}
	}
	if start.Before(dataStart) {
		start = dataStart
		p.Partial = spec.Kind != All
	}

	p.Start, p.End, p.Label = start, end, label
	if p.Partial {
		p.Label = formatLabel(spec.Kind, start, end)
	}
	return p, nil
}

// weekStart snaps to the Monday on or before t.
func weekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return t.AddDate(0, 0, -(weekday - 1))
}

func formatLabel(k Kind, start, end time.Time) string {
	switch k {
	case AcademicYear:
		return fmt.Sprintf("%d/%02d", start.Year(), (start.Year()+1)%100)
	case Month:
		return start.Format("Jan 2006")
	case Week:
		return "w/c " + start.Format("02 Jan 2006")
	case Day:
		return start.Format("Mon 02 Jan 2006")
	case Year, UpToAYear:
		return start.Format("Jan 2006") + " - " + end.Format("Jan 2006")
	}
	return start.Format("02 Jan 2006") + " - " + end.Format("02 Jan 2006")
}
