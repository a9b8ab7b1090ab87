package holiday

import (
	"sort"
	"time"

	"amr-charts/internal/energy"
)

// Holiday is a named school closure, inclusive of both dates.
type Holiday struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Calendar answers holiday and weekend questions for one school.
type Calendar struct {
	holidays []Holiday
}

// New sorts the holidays by start date.
func New(holidays []Holiday) *Calendar {
	hs := make([]Holiday, len(holidays))
	for i, h := range holidays {
		hs[i] = Holiday{Name: h.Name, Start: energy.Day(h.Start), End: energy.Day(h.End)}
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Start.Before(hs[j].Start) })
	return &Calendar{holidays: hs}
}

// Holiday returns the holiday covering date, if any.
func (c *Calendar) Holiday(date time.Time) (Holiday, bool) {
	date = energy.Day(date)
	// holidays do not overlap, so only the last one starting on or before date can cover it
	i := sort.Search(len(c.holidays), func(i int) bool { return c.holidays[i].Start.After(date) })
	if i > 0 && !date.After(c.holidays[i-1].End) {
		return c.holidays[i-1], true
	}
	return Holiday{}, false
}

// IsHoliday reports whether the school is on holiday.
func (c *Calendar) IsHoliday(date time.Time) bool {
	_, ok := c.Holiday(date)
	return ok
}

// IsWeekend reports Saturday and Sunday.
func (c *Calendar) IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// SchoolDays counts days that are neither holiday nor weekend.
func (c *Calendar) SchoolDays(r energy.DateRange) int {
	n := 0
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		if !c.IsHoliday(d) && !c.IsWeekend(d) {
			n++
		}
	}
	return n
}

// Holidays returns the calendar's holidays in date order.
func (c *Calendar) Holidays() []Holiday {
	return append([]Holiday(nil), c.holidays...)
}

// EnglishTerms approximates the holidays of an English state school academic year starting in September.
func EnglishTerms(startYear int) []Holiday {
	y := startYear
	next := y + 1
	return []Holiday{
		{Name: "Autumn half term", Start: energy.Date(y, time.October, 23), End: energy.Date(y, time.October, 31)},
		{Name: "Christmas", Start: energy.Date(y, time.December, 20), End: energy.Date(next, time.January, 3)},
		{Name: "Spring half term", Start: energy.Date(next, time.February, 12), End: energy.Date(next, time.February, 16)},
		{Name: "Easter", Start: energy.Date(next, time.March, 29), End: energy.Date(next, time.April, 12)},
		{Name: "Summer half term", Start: energy.Date(next, time.May, 27), End: energy.Date(next, time.May, 31)},
		{Name: "Summer", Start: energy.Date(next, time.July, 22), End: energy.Date(next, time.September, 3)},
	}
}
