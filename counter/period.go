package counter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - boundaries behind a counter's period key
// =============================================================================

// Period is an inclusive range of calendar days.
type Period struct {
	Start time.Time // first day, 00:00
	End   time.Time // last day, 00:00
}

// Contains reports whether the calendar day of t lies within the period.
func (p Period) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, p.Start.Location())
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format(time.DateOnly) + ", " + p.End.Format(time.DateOnly) + "]"
}

// Periods computes period keys.
//
// Examples with PeriodicStartMonth = June:
//   - annual key for 2026-03-10:   "2026"
//   - periodic key for 2026-03-10: "2025-2026" (June 1 2025 - May 31 2026)
//   - periodic key for 2026-07-01: "2026-2027"
//
// With PeriodicStartMonth = January the periodic key is the calendar year.
type Periods struct {
	PeriodicStartMonth time.Month
	Location           *time.Location
}

// DefaultPeriods uses a June reference period in UTC.
func DefaultPeriods() Periods {
	return Periods{PeriodicStartMonth: time.June, Location: time.UTC}
}

func (p Periods) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p Periods) startMonth() time.Month {
	if p.PeriodicStartMonth < time.January || p.PeriodicStartMonth > time.December {
		return time.January
	}
	return p.PeriodicStartMonth
}

// KeyFor returns the period key of kind containing t.
func (p Periods) KeyFor(kind Kind, t time.Time) string {
	t = t.In(p.loc())
	if kind == KindAnnual {
		return strconv.Itoa(t.Year())
	}
	start := t.Year()
	if t.Month() < p.startMonth() {
		start--
	}
	return p.periodicKey(start)
}

// KeyForYear returns the key of the period of kind starting in year.
func (p Periods) KeyForYear(kind Kind, year int) string {
	if kind == KindAnnual {
		return strconv.Itoa(year)
	}
	return p.periodicKey(year)
}

func (p Periods) periodicKey(startYear int) string {
	if p.startMonth() == time.January {
		return strconv.Itoa(startYear)
	}
	return fmt.Sprintf("%d-%d", startYear, startYear+1)
}

// StartYear parses the first calendar year of a period key.
func (p Periods) StartYear(kind Kind, key string) (int, error) {
	if kind == KindAnnual || p.startMonth() == time.January {
		year, err := strconv.Atoi(key)
		if err != nil || year < 1 {
			return 0, fmt.Errorf("%w: period %q", ErrInvalidKey, key)
		}
		return year, nil
	}

	first, second, ok := strings.Cut(key, "-")
	if !ok {
		return 0, fmt.Errorf("%w: periodic key %q must look like 2025-2026", ErrInvalidKey, key)
	}
	a, errA := strconv.Atoi(first)
	b, errB := strconv.Atoi(second)
	if errA != nil || errB != nil || b != a+1 {
		return 0, fmt.Errorf("%w: periodic key %q must look like 2025-2026", ErrInvalidKey, key)
	}
	return a, nil
}

// Bounds returns the calendar days covered by a period key.
func (p Periods) Bounds(kind Kind, key string) (Period, error) {
	year, err := p.StartYear(kind, key)
	if err != nil {
		return Period{}, err
	}
	month := time.January
	if kind == KindPeriodic {
		month = p.startMonth()
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, p.loc())
	return Period{Start: start, End: start.AddDate(1, 0, -1)}, nil
}

// Next returns the key of the period following key.
func (p Periods) Next(kind Kind, key string) (string, error) {
	year, err := p.StartYear(kind, key)
	if err != nil {
		return "", err
	}
	if kind == KindAnnual {
		return strconv.Itoa(year + 1), nil
	}
	return p.periodicKey(year + 1), nil
}

// Validate checks that key is well formed for kind.
func (p Periods) Validate(kind Kind, key string) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidKey, kind)
	}
	_, err := p.StartYear(kind, key)
	return err
}
