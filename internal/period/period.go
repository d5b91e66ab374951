// Package period defines the calendar-aligned windows that running sums
// are kept over. Each window's start is the floor of the current local
// time on that window's grid; the overall window has a fixed epoch start
// and therefore never resets.
package period

import "time"

// Period keys, also used in the persisted accumulator document.
const (
	Key15m     = "p15m"
	KeyHour    = "phour"
	KeyDay     = "pday"
	KeyWeek    = "pweek"
	KeyMonth   = "pmonth"
	KeyYear    = "pyear"
	KeyOverall = "poverall"
)

// Spec describes one accumulation window.
type Spec struct {
	Key   string
	Label string
	Start func(now time.Time, loc *time.Location) time.Time
}

// All returns the fixed period table.
func All() []Spec {
	return []Spec{
		{Key: Key15m, Label: "15m", Start: start15m},
		{Key: KeyHour, Label: "Hour", Start: startHour},
		{Key: KeyDay, Label: "Day", Start: startDay},
		{Key: KeyWeek, Label: "Week", Start: startWeek},
		{Key: KeyMonth, Label: "Month", Start: startMonth},
		{Key: KeyYear, Label: "Year", Start: startYear},
		{Key: KeyOverall, Label: "Overall", Start: startOverall},
	}
}

// ByKey looks up a period spec.
func ByKey(key string) (Spec, bool) {
	for _, p := range All() {
		if p.Key == key {
			return p, true
		}
	}
	return Spec{}, false
}

func start15m(now time.Time, loc *time.Location) time.Time {
	nl := now.In(loc)
	minute := (nl.Minute() / 15) * 15
	return time.Date(nl.Year(), nl.Month(), nl.Day(), nl.Hour(), minute, 0, 0, loc).UTC()
}

func startHour(now time.Time, loc *time.Location) time.Time {
	nl := now.In(loc)
	return time.Date(nl.Year(), nl.Month(), nl.Day(), nl.Hour(), 0, 0, 0, loc).UTC()
}

func startDay(now time.Time, loc *time.Location) time.Time {
	nl := now.In(loc)
	return time.Date(nl.Year(), nl.Month(), nl.Day(), 0, 0, 0, 0, loc).UTC()
}

func startWeek(now time.Time, loc *time.Location) time.Time {
	nl := now.In(loc)
	// Monday-based week.
	offset := (int(nl.Weekday()) + 6) % 7
	return time.Date(nl.Year(), nl.Month(), nl.Day()-offset, 0, 0, 0, 0, loc).UTC()
}

func startMonth(now time.Time, loc *time.Location) time.Time {
	nl := now.In(loc)
	return time.Date(nl.Year(), nl.Month(), 1, 0, 0, 0, 0, loc).UTC()
}

func startYear(now time.Time, loc *time.Location) time.Time {
	nl := now.In(loc)
	return time.Date(nl.Year(), 1, 1, 0, 0, 0, 0, loc).UTC()
}

func startOverall(time.Time, *time.Location) time.Time {
	return time.Unix(0, 0).UTC()
}
