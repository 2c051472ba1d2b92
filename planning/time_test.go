package planning_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/villacare/planning-engine/planning"
)

func TestWorkingDays(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		typ   planning.ShiftType
		loc   *time.Location
		want  int64
	}{
		{"weekday day shift", at(2026, 1, 12, 8, 0), at(2026, 1, 12, 20, 0), planning.ShiftRegular, time.UTC, 1},
		{"saturday regular", at(2026, 1, 10, 8, 0), at(2026, 1, 10, 20, 0), planning.ShiftRegular, time.UTC, 0},
		{"saturday weekend duty", at(2026, 1, 10, 8, 0), at(2026, 1, 10, 20, 0), planning.ShiftWeekendDuty, time.UTC, 1},
		{"weekday night shift", at(2026, 1, 14, 20, 0), at(2026, 1, 15, 8, 0), planning.ShiftRegular, time.UTC, 2},
		{"friday night into saturday", at(2026, 1, 16, 20, 0), at(2026, 1, 17, 8, 0), planning.ShiftRegular, time.UTC, 1},
		{"ends at midnight", at(2026, 1, 12, 8, 0), at(2026, 1, 13, 0, 0), planning.ShiftRegular, time.UTC, 1},
		{"full week", at(2026, 1, 12, 0, 0), at(2026, 1, 19, 0, 0), planning.ShiftRegular, time.UTC, 5},
		{"full week weekend duty", at(2026, 1, 12, 0, 0), at(2026, 1, 19, 0, 0), planning.ShiftWeekendDuty, time.UTC, 7},
		{"empty range", at(2026, 1, 12, 8, 0), at(2026, 1, 12, 8, 0), planning.ShiftRegular, time.UTC, 0},
		// 23:30 UTC on Friday is already Saturday in Paris.
		{"friday late in UTC", at(2026, 1, 16, 23, 30), at(2026, 1, 17, 6, 0), planning.ShiftRegular, time.UTC, 1},
		{"saturday in Paris", at(2026, 1, 16, 23, 30), at(2026, 1, 17, 6, 0), planning.ShiftRegular, paris, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planning.WorkingDays(tt.start, tt.end, tt.typ, tt.loc)
			assert.True(t, days(tt.want).Equal(got), "want %d, got %s", tt.want, got)
		})
	}
}

func TestWorkingDays_IsDeterministic(t *testing.T) {
	start, end := at(2026, 1, 5, 7, 0), at(2026, 1, 9, 19, 0)
	first := planning.WorkingDays(start, end, planning.ShiftRegular, time.UTC)
	for i := 0; i < 10; i++ {
		assert.True(t, first.Equal(planning.WorkingDays(start, end, planning.ShiftRegular, time.UTC)))
	}
}

func TestWeekdaysBetween_January2026(t *testing.T) {
	// January 2026 starts on a Thursday: 22 weekdays.
	got := planning.WeekdaysBetween(date(2026, 1, 1), date(2026, 1, 31))
	assert.True(t, days(22).Equal(got), "got %s", got)
}

func TestWeekStart(t *testing.T) {
	assert.Equal(t, date(2026, 1, 12), planning.WeekStart(date(2026, 1, 12)))
	assert.Equal(t, date(2026, 1, 12), planning.WeekStart(date(2026, 1, 18)))
	assert.Equal(t, date(2025, 12, 29), planning.WeekStart(date(2026, 1, 1)))
}
