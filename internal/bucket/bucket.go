package bucket

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"amr-charts/internal/energy"
	"amr-charts/internal/period"
)

// Mode is an x-axis granularity.
type Mode string

const (
	Intraday     Mode = "intraday"
	DateTime     Mode = "datetime"
	Day          Mode = "day"
	Week         Mode = "week"
	DayOfWeek    Mode = "dayofweek"
	Month        Mode = "month"
	AcademicYear Mode = "academicyear"
	Year         Mode = "year"
	YearToDate   Mode = "yeartodate"
	None         Mode = "none"
)

var modes = map[string]Mode{
	"intraday":      Intraday,
	"datetime":      DateTime,
	"day":           Day,
	"week":          Week,
	"dayofweek":     DayOfWeek,
	"month":         Month,
	"academicyear":  AcademicYear,
	"academic_year": AcademicYear,
	"year":          Year,
	"yeartodate":    YearToDate,
	"year_to_date":  YearToDate,
	"none":          None,
	"nodatebuckets": None,
}

// ParseMode resolves an x-axis name or alias.
func ParseMode(s string) (Mode, error) {
	m, ok := modes[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", &energy.InvalidConfigError{Field: "x_axis", Reason: fmt.Sprintf("unknown x-axis %q", s)}
	}
	return m, nil
}

// PerHalfHour reports whether buckets are addressed by slot as well as date.
func (m Mode) PerHalfHour() bool {
	return m == Intraday || m == DateTime
}

// ErrNotBucketed marks an in-period date that no bucket covers (the year-to-date gaps).
var ErrNotBucketed = errors.New("date not covered by any bucket")

// OutOfPeriodError is returned by Index for dates outside the period.
type OutOfPeriodError struct {
	Date   time.Time
	Period energy.DateRange
}

func (e *OutOfPeriodError) Error() string {
	return fmt.Sprintf("date %s outside period %s to %s", e.Date.Format(time.DateOnly),
		e.Period.Start.Format(time.DateOnly), e.Period.End.Format(time.DateOnly))
}

// Bucket is one x-axis category and the dates it represents.
type Bucket struct {
	Label string
	Range energy.DateRange
}

// Bucketer maps (date, slot) pairs of one period onto x-axis indices.
type Bucketer struct {
	mode    Mode
	period  period.Period
	buckets []Bucket
}

// New builds the buckets for mode over p.
func New(mode Mode, p period.Period) (*Bucketer, error) {
	if p.End.Before(p.Start) {
		return nil, &energy.NotEnoughDataError{What: "empty period", Range: p.Range()}
	}
	b := &Bucketer{mode: mode, period: p}

	// 1. Subdivide the period into bucket ranges
	switch mode {
	case Intraday:
		for slot := 0; slot < energy.SlotsPerDay; slot++ {
			b.buckets = append(b.buckets, Bucket{Label: energy.SlotLabel(slot), Range: p.Range()})
		}
	case DateTime:
		for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
			for slot := 0; slot < energy.SlotsPerDay; slot++ {
				b.buckets = append(b.buckets, Bucket{
					Label: d.Format("2006-01-02") + " " + energy.SlotLabel(slot),
					Range: energy.DateRange{Start: d, End: d},
				})
			}
		}
	case DayOfWeek:
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			b.buckets = append(b.buckets, Bucket{Label: wd.String(), Range: p.Range()})
		}
	case Year:
		b.buckets = yearBuckets(p)
	case YearToDate:
		b.buckets = yearToDateBuckets(p)
	case None:
		b.buckets = []Bucket{{Label: p.Label, Range: p.Range()}}
	case Day, Week, Month, AcademicYear:
		for start := snapToStart(p.Start, mode); !start.After(p.End); start = next(start, mode) {
			r := energy.DateRange{Start: start, End: next(start, mode).AddDate(0, 0, -1)}
			r, _ = r.Intersect(p.Range())
			b.buckets = append(b.buckets, Bucket{Label: generateLabel(start, mode), Range: r})
		}
	default:
		return nil, &energy.InvalidConfigError{Field: "x_axis", Reason: fmt.Sprintf("unsupported x-axis %q", mode)}
	}
	return b, nil
}

// Mode returns the granularity.
func (b *Bucketer) Mode() Mode { return b.mode }

// Period returns the bucketed period.
func (b *Bucketer) Period() period.Period { return b.period }

// Len returns the bucket count.
func (b *Bucketer) Len() int { return len(b.buckets) }

// Labels returns the x-axis labels in order.
func (b *Bucketer) Labels() []string {
	out := make([]string, len(b.buckets))
	for i, bk := range b.buckets {
		out[i] = bk.Label
	}
	return out
}

// Ranges returns the date range behind each bucket.
func (b *Bucketer) Ranges() []energy.DateRange {
	out := make([]energy.DateRange, len(b.buckets))
	for i, bk := range b.buckets {
		out[i] = bk.Range
	}
	return out
}

// Index returns the bucket for a date and half-hour slot. The slot is ignored by day-level modes.
func (b *Bucketer) Index(date time.Time, slot int) (int, error) {
	date = energy.Day(date)
	if !b.period.Range().Contains(date) {
		return -1, &OutOfPeriodError{Date: date, Period: b.period.Range()}
	}
	if slot < 0 || slot >= energy.SlotsPerDay {
		return -1, fmt.Errorf("half-hour slot %d out of range", slot)
	}

	switch b.mode {
	case Intraday:
		return slot, nil
	case DateTime:
		return daysFrom(b.period.Start, date)*energy.SlotsPerDay + slot, nil
	case DayOfWeek:
		return int(date.Weekday()), nil
	case None:
		return 0, nil
	case Day:
		return daysFrom(b.period.Start, date), nil
	case Week:
		return daysFrom(snapToStart(b.period.Start, Week), snapToStart(date, Week)) / 7, nil
	case Month:
		s := b.period.Start
		return (date.Year()-s.Year())*12 + int(date.Month()-s.Month()), nil
	case AcademicYear:
		return academicYear(date) - academicYear(b.period.Start), nil
	case Year:
		// 364-day years counted back from the period end
		return len(b.buckets) - 1 - daysFrom(date, b.period.End)/364, nil
	case YearToDate:
		for i, bk := range b.buckets {
			if bk.Range.Contains(date) {
				return i, nil
			}
		}
		return -1, ErrNotBucketed
	}
	return -1, fmt.Errorf("unsupported x-axis %q", b.mode)
}

func daysFrom(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func academicYear(t time.Time) int {
	if t.Month() < time.September {
		return t.Year() - 1
	}
	return t.Year()
}

// snapToStart normalizes a date to the beginning of its bucket.
func snapToStart(t time.Time, mode Mode) time.Time {
	switch mode {
	case Month:
		return energy.Date(t.Year(), t.Month(), 1)
	case Week:
		// Snap to Monday
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return energy.Date(t.Year(), t.Month(), t.Day()-(weekday-1))
	case AcademicYear:
		return energy.Date(academicYear(t), time.September, 1)
	default:
		return energy.Day(t)
	}
}

func next(t time.Time, mode Mode) time.Time {
	switch mode {
	case Month:
		return t.AddDate(0, 1, 0)
	case Week:
		return t.AddDate(0, 0, 7)
	case AcademicYear:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// generateLabel returns the x-axis label for a bucket starting at t.
func generateLabel(t time.Time, mode Mode) string {
	switch mode {
	case Month:
		return t.Format("Jan 2006")
	case AcademicYear:
		return fmt.Sprintf("%d/%02d", t.Year(), (t.Year()+1)%100)
	default: // day, week
		return t.Format("02 Jan 2006")
	}
}

func yearBuckets(p period.Period) []Bucket {
	n := (p.Days() + 363) / 364
	out := make([]Bucket, n)
	end := p.End
	for i := n - 1; i >= 0; i-- {
		start := end.AddDate(0, 0, -363)
		if start.Before(p.Start) {
			start = p.Start
		}
		out[i] = Bucket{
			Label: start.Format("Jan 2006") + " - " + end.Format("Jan 2006"),
			Range: energy.DateRange{Start: start, End: end},
		}
		end = start.AddDate(0, 0, -1)
	}
	return out
}

// yearToDateBuckets covers 1 Jan to the period end's day of year, in every year of the period.
func yearToDateBuckets(p period.Period) []Bucket {
	var out []Bucket
	for y := p.Start.Year(); y <= p.End.Year(); y++ {
		start := energy.Date(y, time.January, 1)
		end := energy.Date(y, p.End.Month(), p.End.Day())
		if end.Month() != p.End.Month() {
			// 29 Feb in a non-leap year
			end = energy.Date(y, p.End.Month()+1, 0)
		}
		r, ok := energy.DateRange{Start: start, End: end}.Intersect(p.Range())
		if !ok {
			continue
		}
		out = append(out, Bucket{Label: fmt.Sprintf("%d (to %s)", y, end.Format("02 Jan")), Range: r})
	}
	return out
}
