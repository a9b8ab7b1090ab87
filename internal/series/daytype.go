package series

import (
	"strings"
	"time"

	"amr-charts/internal/energy"
)

// Series names produced by the built-in dimensions.
const (
	Energy          = "Energy"
	Holiday         = "Holiday"
	Weekend         = "Weekend"
	SchoolDayOpen   = "School Day Open"
	SchoolDayClosed = "School Day Closed"
	Community       = "Community"
	HeatingDay      = "Heating Day"
	NonHeatingDay   = "Hot Water (& Kitchen)"
	MainsConsume    = "Mains Consumption"
)

// DayClass is the day-level classification used by filters.
type DayClass int

const (
	SchoolDay DayClass = iota
	WeekendDay
	HolidayDay
)

// ClassifyDay applies holiday before weekend: a weekend inside a holiday is a holiday.
func ClassifyDay(cal energy.HolidayCalendar, date time.Time) DayClass {
	switch {
	case cal != nil && cal.IsHoliday(date):
		return HolidayDay
	case isWeekend(cal, date):
		return WeekendDay
	default:
		return SchoolDay
	}
}

func isWeekend(cal energy.HolidayCalendar, date time.Time) bool {
	if cal != nil {
		return cal.IsWeekend(date)
	}
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// ParseDayClass maps a filter value onto a day class. Open and closed both select school days.
func ParseDayClass(s string) (DayClass, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", " ")
	switch norm {
	case "holiday", "holidays":
		return HolidayDay, nil
	case "weekend", "weekends":
		return WeekendDay, nil
	case "school day", "schoolday", "school day open", "school day closed", "schoolday open", "schoolday closed":
		return SchoolDay, nil
	}
	return 0, &energy.MalformedFilterError{Dimension: "daytype", Value: s}
}

// DayTypeMasks partitions one day's slots into day-type series.
func DayTypeMasks(school *energy.School, date time.Time) map[string]energy.SlotMask {
	var community energy.SlotMask
	if school.HasCommunityUse() {
		community = school.CommunityMask(date)
	}
	rest := energy.AllSlots
	for i := range rest {
		rest[i] = !community[i]
	}

	out := make(map[string]energy.SlotMask, 3)
	if community.Any() {
		out[Community] = community
	}
	switch ClassifyDay(school.Holidays, date) {
	case HolidayDay:
		out[Holiday] = rest
	case WeekendDay:
		out[Weekend] = rest
	default:
		open := school.OpenMask().And(rest)
		var closed energy.SlotMask
		for i := range closed {
			closed[i] = rest[i] && !open[i]
		}
		out[SchoolDayOpen] = open
		out[SchoolDayClosed] = closed
	}
	return out
}

// DayTypeKeys lists the day-type series for a school in display order.
func DayTypeKeys(school *energy.School) []string {
	keys := []string{Holiday, Weekend, SchoolDayOpen, SchoolDayClosed}
	if school.HasCommunityUse() {
		keys = append(keys, Community)
	}
	return keys
}
