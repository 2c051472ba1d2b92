package planning

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WORKING DAYS - the single rule shared by display, warnings and deduction
// =============================================================================

// WorkingDays counts the working days a shift spanning [start, end) consumes.
//
// Every calendar day from start's date through end's date is considered, in
// loc. End's date is left out when end falls exactly on midnight, so a
// 08:00-00:00 shift is one day and a 20:00-08:00 night shift is two.
// Monday to Friday count one day each; Saturday and Sunday count only for
// weekend-duty shifts.
//
// The function is pure: equal inputs always give equal results.
func WorkingDays(start, end time.Time, shiftType ShiftType, loc *time.Location) decimal.Decimal {
	if loc == nil {
		loc = time.UTC
	}
	if !start.Before(end) {
		return decimal.Zero
	}
	first := DateOf(start, loc)
	last := DateOf(end, loc)
	local := end.In(loc)
	if local.Hour() == 0 && local.Minute() == 0 && local.Second() == 0 && local.Nanosecond() == 0 {
		last = last.AddDate(0, 0, -1)
	}
	return decimal.NewFromInt(int64(countDays(first, last, shiftType == ShiftWeekendDuty)))
}

// WeekdaysBetween counts Monday-Friday dates in [first, last], both inclusive.
// Absences use it for their working-days value.
func WeekdaysBetween(first, last time.Time) decimal.Decimal {
	return decimal.NewFromInt(int64(countDays(dateUTC(first), dateUTC(last), false)))
}

func countDays(first, last time.Time, includeWeekends bool) int {
	n := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if includeWeekends || !IsWeekend(d) {
			n++
		}
	}
	return n
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// =============================================================================
// CALENDAR DATES
// =============================================================================
// Calendar dates (absence bounds, range parameters) are represented as
// midnight UTC so they compare and store without zone drift.

// DateOf returns t's calendar date in loc, as midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns midnight of date (a calendar date) in loc.
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}

// WeekStart returns the Monday of date's week (a calendar date).
func WeekStart(date time.Time) time.Time {
	d := dateUTC(date)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// MonthBounds returns [first instant, first instant of next month) in loc.
func MonthBounds(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// MonthKeyFor returns the schedule key a shift starting at start belongs to.
func MonthKeyFor(villaID string, start time.Time, loc *time.Location) MonthKey {
	l := start.In(loc)
	return MonthKey{VillaID: villaID, Year: l.Year(), Month: l.Month()}
}
