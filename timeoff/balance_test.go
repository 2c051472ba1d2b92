package timeoff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/timeoff"
)

func TestCheckBalance(t *testing.T) {
	f := newFixture(t, standardAllocation())
	u := f.user(t, "alice")

	t.Run("fits", func(t *testing.T) {
		res, err := f.svc.CheckBalance(f.ctx, u, planning.AbsenceLeave, date(2026, 2, 2), date(2026, 2, 6))
		require.NoError(t, err)
		assert.Equal(t, "2025-2026", res.PeriodKey)
		assert.True(t, days(5).Equal(res.Requested))
		assert.True(t, days(25).Equal(res.Remaining))
		assert.True(t, days(20).Equal(res.RemainingAfter))
		assert.True(t, res.Sufficient)
	})

	t.Run("does not fit", func(t *testing.T) {
		// January (22) + February (20) 2026 weekdays
		res, err := f.svc.CheckBalance(f.ctx, u, planning.AbsenceLeave, date(2026, 1, 1), date(2026, 2, 28))
		require.NoError(t, err)
		assert.True(t, days(42).Equal(res.Requested), "got %s", res.Requested)
		assert.True(t, days(-17).Equal(res.RemainingAfter))
		assert.False(t, res.Sufficient)
	})

	t.Run("no counter", func(t *testing.T) {
		res, err := f.svc.CheckBalance(f.ctx, u, planning.AbsenceSick, date(2026, 2, 2), date(2026, 2, 6))
		require.NoError(t, err)
		assert.Empty(t, res.PeriodKey)
		assert.True(t, res.Sufficient)
	})

	t.Run("bad input", func(t *testing.T) {
		_, err := f.svc.CheckBalance(f.ctx, u, "holiday", date(2026, 2, 2), date(2026, 2, 6))
		assert.ErrorIs(t, err, planning.ErrInvalidInput)
		_, err = f.svc.CheckBalance(f.ctx, u, planning.AbsenceLeave, date(2026, 2, 6), date(2026, 2, 2))
		assert.ErrorIs(t, err, planning.ErrInvalidTimeRange)
		_, err = f.svc.CheckBalance(f.ctx, "ghost", planning.AbsenceLeave, date(2026, 2, 2), date(2026, 2, 6))
		assert.ErrorIs(t, err, planning.ErrUserNotFound)
	})

	// a check never creates counters
	counters, err := f.store.ListCounters(f.ctx, u)
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestCheckBalance_SeesApprovedAbsences(t *testing.T) {
	f := newFixture(t, standardAllocation())
	u := f.user(t, "alice")
	a := f.create(t, u, planning.AbsenceLeave, date(2026, 2, 2), date(2026, 2, 6))
	_, err := f.svc.Approve(f.ctx, a.ID)
	require.NoError(t, err)

	res, err := f.svc.CheckBalance(f.ctx, u, planning.AbsenceLeave, date(2026, 3, 2), date(2026, 3, 6))
	require.NoError(t, err)
	assert.True(t, days(20).Equal(res.Remaining))
	assert.True(t, days(15).Equal(res.RemainingAfter))
}

func TestSummaries(t *testing.T) {
	f := newFixture(t, standardAllocation())
	u := f.user(t, "alice")
	a := f.create(t, u, planning.AbsenceLeave, date(2026, 2, 2), date(2026, 2, 6))
	_, err := f.svc.Approve(f.ctx, a.ID)
	require.NoError(t, err)

	// GIVEN: 2025 covers the annual 2025 counter and the 2025-2026 leave period
	rows, err := f.svc.Summaries(f.ctx, u, 2025)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, timeoff.SummaryAnnualDays, rows[0].Type)
	assert.Equal(t, 2025, rows[0].Year)
	assert.Equal(t, "2025", rows[0].PeriodKey)
	assert.True(t, days(218).Equal(rows[0].Remaining))

	leave := rows[1]
	assert.Equal(t, timeoff.SummaryPaidLeave, leave.Type)
	assert.Equal(t, counter.KindPeriodic, leave.Kind)
	assert.Equal(t, "2025-2026", leave.PeriodKey)
	assert.True(t, days(25).Equal(leave.Earned))
	assert.True(t, days(5).Equal(leave.Taken))
	assert.True(t, days(20).Equal(leave.Remaining))
	assert.False(t, leave.IsNegative)
}

func TestSummaries_SkipsKindsWithoutAllocation(t *testing.T) {
	f := newFixture(t, counter.Allocation{AnnualDays: days(218)})
	u := f.user(t, "alice")

	rows, err := f.svc.Summaries(f.ctx, u, 2026)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, counter.KindAnnual, rows[0].Kind)
}

func TestCounterKind(t *testing.T) {
	kind, ok := timeoff.CounterKind(planning.AbsenceLeave)
	assert.True(t, ok)
	assert.Equal(t, counter.KindPeriodic, kind)

	kind, ok = timeoff.CounterKind(planning.AbsenceAnnualDay)
	assert.True(t, ok)
	assert.Equal(t, counter.KindAnnual, kind)

	_, ok = timeoff.CounterKind(planning.AbsenceTraining)
	assert.False(t, ok)
}
