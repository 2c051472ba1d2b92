package planning_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/planning/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	ctx    context.Context
	svc    *planning.Service
	store  *store.Memory
	ledger *counter.Ledger
	now    time.Time
}

func defaultAllocation() counter.Allocation {
	return counter.Allocation{
		AnnualDays:   decimal.NewFromInt(218),
		PeriodicDays: decimal.NewFromInt(25),
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithAllocation(t, defaultAllocation())
}

func newFixtureWithAllocation(t *testing.T, alloc counter.Allocation) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: store.NewMemory(),
		now:   time.Date(2025, time.December, 15, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.ledger = counter.NewLedger(f.store, counter.DefaultPeriods(), alloc, counter.WithClock(clock))
	f.svc = planning.NewService(f.store, f.ledger, planning.WithClock(clock))
	return f
}

func (f *fixture) villa(t *testing.T, name string) planning.Villa {
	t.Helper()
	v, err := f.svc.CreateVilla(f.ctx, planning.NewVilla{Name: name, Color: "#10B981"})
	require.NoError(t, err)
	return *v
}

func (f *fixture) poolVilla(t *testing.T, name string) planning.Villa {
	t.Helper()
	v, err := f.svc.CreateVilla(f.ctx, planning.NewVilla{Name: name, IsReinforcementPool: true})
	require.NoError(t, err)
	return *v
}

func (f *fixture) user(t *testing.T, name string) planning.User {
	t.Helper()
	u, err := f.svc.CreateUser(f.ctx, planning.NewUser{Name: name, Roles: []string{"educator"}})
	require.NoError(t, err)
	return *u
}

// weekdayTemplate is one 08:00-20:00 day shift Monday to Friday.
func (f *fixture) weekdayTemplate(t *testing.T, isDefault bool) planning.Template {
	t.Helper()
	tmpl, err := f.svc.CreateTemplate(f.ctx, planning.Template{
		Name:      "Weekdays",
		IsDefault: isDefault,
		Slots: []planning.TemplateSlot{{
			Label:     "Day",
			Weekdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			StartTime: "08:00",
			EndTime:   "20:00",
			Type:      planning.ShiftRegular,
		}},
	})
	require.NoError(t, err)
	return *tmpl
}

// generateJanuary fills January 2026 of villa from the default template.
func (f *fixture) generateJanuary(t *testing.T, villaID string) (planning.MonthSchedule, []planning.Shift) {
	t.Helper()
	sched, _, err := f.svc.GenerateMonth(f.ctx, villaID, 2026, time.January)
	require.NoError(t, err)
	shifts, err := f.store.ListShiftsBySchedule(f.ctx, sched.ID)
	require.NoError(t, err)
	return *sched, shifts
}

func (f *fixture) approvedAbsence(t *testing.T, userID string, typ planning.AbsenceType, from, to time.Time) planning.Absence {
	t.Helper()
	a := planning.Absence{
		ID:        "abs-" + from.Format("0102") + "-" + userID,
		UserID:    userID,
		Type:      typ,
		StartDate: from,
		EndDate:   to,
		Status:    planning.AbsenceApproved,
	}
	require.NoError(t, f.store.SaveAbsence(f.ctx, a))
	return a
}

func (f *fixture) annual(t *testing.T, userID string) counter.Counter {
	t.Helper()
	c, err := f.store.GetCounter(f.ctx, counter.Key{UserID: userID, Kind: counter.KindAnnual, PeriodKey: "2026"})
	require.NoError(t, err)
	return *c
}

func shiftOn(t *testing.T, shifts []planning.Shift, day time.Time) planning.Shift {
	t.Helper()
	for _, sh := range shifts {
		y, m, d := sh.Start.Date()
		if y == day.Year() && m == day.Month() && d == day.Day() {
			return sh
		}
	}
	t.Fatalf("no shift on %s", day.Format(time.DateOnly))
	return planning.Shift{}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func days(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func warningsOfType(ws []planning.Warning, typ planning.WarningType) []planning.Warning {
	var out []planning.Warning
	for _, w := range ws {
		if w.Type == typ {
			out = append(out, w)
		}
	}
	return out
}
