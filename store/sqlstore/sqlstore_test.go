package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/store/sqlstore"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	st, err := sqlstore.NewSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

var t0 = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func seedSchedule(t *testing.T, st *sqlstore.Store) planning.MonthSchedule {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SaveVilla(ctx, planning.Villa{ID: "v1", Name: "Les Tilleuls", Color: "#10B981", CreatedAt: t0}))
	m := planning.MonthSchedule{
		ID: "p1", VillaID: "v1", Year: 2026, Month: time.January,
		Status: planning.ScheduleDraft, CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, st.SaveSchedule(ctx, m))
	return m
}

func shiftAt(id, planningID string, start time.Time, hours int) planning.Shift {
	return planning.Shift{
		ID:          id,
		PlanningID:  planningID,
		VillaID:     ptr("v1"),
		Start:       start,
		End:         start.Add(time.Duration(hours) * time.Hour),
		Type:        planning.ShiftRegular,
		Status:      planning.ShiftDraft,
		WorkingDays: decimal.NewFromInt(1),
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestMigrate_IsIdempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Migrate(context.Background()))
	assert.Equal(t, sqlstore.SQLite, st.Dialect())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := sqlstore.Open(context.Background(), "oracle", "x", nil)
	assert.Error(t, err)
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestShift_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, st)

	deducted := t0.Add(48 * time.Hour)
	sh := shiftAt("s1", sched.ID, t0, 12)
	sh.UserID = ptr("u1")
	sh.Comment = "morning"
	sh.FromTemplate = true
	sh.TemplateID = ptr("tpl")
	sh.WorkingDays = decimal.RequireFromString("1.5")
	sh.DeductedDays = decimal.RequireFromString("1.5")
	sh.DeductedAt = &deducted
	sh.DeductionSeq = 2
	require.NoError(t, st.SaveShift(ctx, sh))

	got, err := st.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Assignee())
	assert.Equal(t, "morning", got.Comment)
	assert.True(t, got.FromTemplate)
	assert.Equal(t, "tpl", *got.TemplateID)
	assert.True(t, t0.Equal(got.Start))
	assert.True(t, sh.End.Equal(got.End))
	assert.True(t, sh.WorkingDays.Equal(got.WorkingDays))
	assert.True(t, got.IsDeducted())
	assert.True(t, deducted.Equal(*got.DeductedAt))
	assert.Equal(t, 2, got.DeductionSeq)

	// unassign and update in place
	got.UserID = nil
	got.Status = planning.ShiftValidated
	require.NoError(t, st.SaveShift(ctx, *got))
	again, err := st.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, again.IsAssigned())
	assert.Equal(t, planning.ShiftValidated, again.Status)
}

func TestShift_NeedsSchedule(t *testing.T) {
	st := newTestStore(t)
	err := st.SaveShift(context.Background(), shiftAt("s1", "missing", t0, 12))
	assert.ErrorIs(t, err, planning.ErrScheduleNotFound)
}

func TestNotFound(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.GetShift(ctx, "x")
	assert.True(t, planning.IsNotFound(err))
	_, err = st.GetVilla(ctx, "x")
	assert.ErrorIs(t, err, planning.ErrVillaNotFound)
	_, err = st.GetUser(ctx, "x")
	assert.ErrorIs(t, err, planning.ErrUserNotFound)
	_, err = st.FindSchedule(ctx, planning.MonthKey{VillaID: "v", Year: 2026, Month: 1})
	assert.ErrorIs(t, err, planning.ErrScheduleNotFound)
	_, err = st.GetCounter(ctx, counter.Key{UserID: "u", Kind: counter.KindAnnual, PeriodKey: "2026"})
	assert.ErrorIs(t, err, counter.ErrCounterNotFound)
	assert.ErrorIs(t, st.DeleteShift(ctx, "x"), planning.ErrShiftNotFound)
	assert.ErrorIs(t, st.DeleteVilla(ctx, "x"), planning.ErrVillaNotFound)
}

func TestUser_RolesAndVilla(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveUser(ctx, planning.User{ID: "u1", Name: "Camille", Roles: []string{"educator", "lead"}, VillaID: ptr("v1"), CreatedAt: t0}))
	require.NoError(t, st.SaveUser(ctx, planning.User{ID: "u2", Name: "Alex", CreatedAt: t0}))

	u, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"educator", "lead"}, u.Roles)
	assert.Equal(t, "v1", *u.VillaID)

	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alex", users[0].Name)
	assert.Empty(t, users[0].Roles)

	_, n, err := st.CountVillaDependents(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSchedule_UniquePerVillaMonth(t *testing.T) {
	st := newTestStore(t)
	sched := seedSchedule(t, st)

	dup := sched
	dup.ID = "p2"
	err := st.SaveSchedule(context.Background(), dup)
	assert.ErrorIs(t, err, planning.ErrDuplicate)
}

func TestDeleteSchedule_Cascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, st)
	require.NoError(t, st.SaveShift(ctx, shiftAt("s1", sched.ID, t0, 12)))
	require.NoError(t, st.SavePublication(ctx, planning.Publication{ID: "pub1", PlanningID: sched.ID, PublishedAt: t0}))

	require.NoError(t, st.DeleteSchedule(ctx, sched.ID))

	_, err := st.GetShift(ctx, "s1")
	assert.ErrorIs(t, err, planning.ErrShiftNotFound)
	pubs, err := st.ListPublications(ctx, sched.ID)
	require.NoError(t, err)
	assert.Empty(t, pubs)
	assert.ErrorIs(t, st.DeleteSchedule(ctx, sched.ID), planning.ErrScheduleNotFound)
}

func TestPublication_KeepsFindings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, st)

	p := planning.Publication{
		ID: "pub1", PlanningID: sched.ID, PublishedAt: t0, Deducted: 3,
		TotalDays: decimal.NewFromInt(3),
		Warnings:  []planning.Warning{{Type: planning.WarnCounterError, Message: "no allocation", Severity: planning.SeverityError, AffectationID: "s9"}},
		Failures:  []planning.DeductionFailure{{AffectationID: "s9", UserID: "u1", Days: decimal.NewFromInt(1), Error: "no allocation"}},
	}
	require.NoError(t, st.SavePublication(ctx, p))

	pubs, err := st.ListPublications(ctx, sched.ID)
	require.NoError(t, err)
	require.Len(t, pubs, 1)
	assert.Equal(t, 3, pubs[0].Deducted)
	assert.Equal(t, p.Warnings, pubs[0].Warnings)
	require.Len(t, pubs[0].Failures, 1)
	assert.True(t, decimal.NewFromInt(1).Equal(pubs[0].Failures[0].Days))
}

func TestTemplate_SlotsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	tmpl := planning.Template{
		ID: "tpl", Name: "Weekdays", IsDefault: true, CreatedAt: t0,
		Slots: []planning.TemplateSlot{{
			Label:     "Night",
			Weekdays:  []time.Weekday{time.Monday, time.Friday},
			StartTime: "20:00",
			EndTime:   "08:00",
			Type:      planning.ShiftRegular,
		}, {
			Label:     "Fortnight",
			Rule:      "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO",
			StartTime: "08:00",
			EndTime:   "20:00",
			Type:      planning.ShiftReinforcement,
		}},
	}
	require.NoError(t, st.SaveTemplate(ctx, tmpl))

	got, err := st.GetTemplate(ctx, "tpl")
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
	assert.True(t, got.Anchor.IsZero())
	assert.Equal(t, tmpl.Slots, got.Slots)
}

// =============================================================================
// RANGE QUERIES
// =============================================================================

func TestFindOverlappingShifts_HalfOpen(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, st)

	a := shiftAt("a", sched.ID, t0, 12) // 08:00-20:00
	a.UserID = ptr("u1")
	b := shiftAt("b", sched.ID, t0.Add(24*time.Hour), 12)
	b.UserID = ptr("u1")
	c := shiftAt("c", sched.ID, t0, 12)
	c.UserID = ptr("u2")
	for _, sh := range []planning.Shift{a, b, c} {
		require.NoError(t, st.SaveShift(ctx, sh))
	}

	got, err := st.FindOverlappingShifts(ctx, "u1", t0.Add(11*time.Hour), t0.Add(13*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	// touching at 20:00 is not an overlap
	got, err = st.FindOverlappingShifts(ctx, "u1", t0.Add(12*time.Hour), t0.Add(14*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindApprovedAbsencesInRange(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2026, time.January, d, 0, 0, 0, 0, time.UTC) }

	save := func(id string, from, to int, status planning.AbsenceStatus) {
		require.NoError(t, st.SaveAbsence(ctx, planning.Absence{
			ID: id, UserID: "u1", Type: planning.AbsenceLeave, StartDate: day(from), EndDate: day(to),
			Status: status, WorkingDays: decimal.NewFromInt(1), CreatedAt: t0, UpdatedAt: t0,
		}))
	}
	save("approved", 5, 9, planning.AbsenceApproved)
	save("pending", 5, 9, planning.AbsencePending)
	save("later", 20, 21, planning.AbsenceApproved)

	got, err := st.FindApprovedAbsencesInRange(ctx, "u1", day(9), day(12))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "approved", got[0].ID)
	assert.True(t, day(5).Equal(got[0].StartDate))

	all, err := st.ListAbsences(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFindAppointmentsInRange_MatchesParticipants(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	appt := planning.Appointment{
		ID: "a1", OrganizerID: "boss", Title: "Synthèse", Type: planning.AppointmentRequest,
		Status: planning.AppointmentPending, Start: t0, End: t0.Add(time.Hour), ImpactsDuty: true,
		Participants: []planning.Participant{
			{UserID: "u2", Presence: planning.PresencePending},
			{UserID: "u1", Presence: planning.PresenceAbsent},
		},
		CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, st.SaveAppointment(ctx, appt))

	for _, user := range []string{"boss", "u1", "u2"} {
		got, err := st.FindAppointmentsInRange(ctx, user, t0, t0.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1, user)
		assert.Equal(t, appt.Participants, got[0].Participants)
	}
	got, err := st.FindAppointmentsInRange(ctx, "stranger", t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)

	// replacing the participant list
	appt.Participants = appt.Participants[:1]
	require.NoError(t, st.SaveAppointment(ctx, appt))
	got, err = st.FindAppointmentsInRange(ctx, "u1", t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOnCallRanges(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	week := 7 * 24 * time.Hour
	require.NoError(t, st.SaveOnCall(ctx, planning.OnCall{ID: "o1", UserID: ptr("u1"), Start: t0, End: t0.Add(week), CreatedAt: t0, UpdatedAt: t0}))
	require.NoError(t, st.SaveOnCall(ctx, planning.OnCall{ID: "o2", Start: t0.Add(week), End: t0.Add(2 * week), CreatedAt: t0, UpdatedAt: t0}))

	all, err := st.FindOnCallInRange(ctx, t0, t0.Add(2*week))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := st.FindUserOnCallInRange(ctx, "u1", t0.Add(week), t0.Add(2*week))
	require.NoError(t, err)
	assert.Empty(t, mine, "o1 ends where the range starts")

	o2, err := st.GetOnCall(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, planning.OnCallUnassigned, o2.Status())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(tx planning.Store) error {
		require.NoError(t, tx.SaveVilla(ctx, planning.Villa{ID: "v1", Name: "A", CreatedAt: t0}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.GetVilla(ctx, "v1")
	assert.ErrorIs(t, err, planning.ErrVillaNotFound)
}

func TestWithTx_NestedIsSavepoint(t *testing.T) {
	// GIVEN: an outer transaction writing villa A
	// WHEN: a nested transaction writes villa B and fails
	// THEN: A is committed, B is not

	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(tx planning.Store) error {
		if err := tx.SaveVilla(ctx, planning.Villa{ID: "a", Name: "A", CreatedAt: t0}); err != nil {
			return err
		}
		inner := tx.WithTx(ctx, func(item planning.Store) error {
			if err := item.SaveVilla(ctx, planning.Villa{ID: "b", Name: "B", CreatedAt: t0}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, inner, boom)

		return tx.WithTx(ctx, func(item planning.Store) error {
			return item.SaveVilla(ctx, planning.Villa{ID: "c", Name: "C", CreatedAt: t0})
		})
	})
	require.NoError(t, err)

	villas, err := st.ListVillas(ctx)
	require.NoError(t, err)
	require.Len(t, villas, 2)
	assert.Equal(t, "a", villas[0].ID)
	assert.Equal(t, "c", villas[1].ID)
}

// =============================================================================
// COUNTERS
// =============================================================================

func TestCounter_UniqueKeyAndIdempotency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c := counter.Counter{
		ID: "c1", UserID: "u1", Kind: counter.KindAnnual, PeriodKey: "2026",
		Allocated: decimal.NewFromInt(218), CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, st.SaveCounter(ctx, c))

	dup := c
	dup.ID = "c2"
	assert.ErrorIs(t, st.SaveCounter(ctx, dup), planning.ErrDuplicate)

	m := counter.Mutation{
		ID: "m1", CounterID: "c1", UserID: "u1", Kind: counter.KindAnnual, PeriodKey: "2026",
		Operation: counter.OpDecrement, Amount: decimal.NewFromInt(1), IdempotencyKey: "shift:s1:deduct:0", CreatedAt: t0,
	}
	require.NoError(t, st.AppendMutation(ctx, m))
	m.ID = "m2"
	assert.ErrorIs(t, st.AppendMutation(ctx, m), counter.ErrDuplicateIdempotencyKey)

	exists, err := st.MutationExists(ctx, "shift:s1:deduct:0")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLedger_OnSQLite(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ledger := counter.NewLedger(st, counter.DefaultPeriods(),
		counter.Allocation{AnnualDays: decimal.NewFromInt(218), PeriodicDays: decimal.NewFromInt(25)})
	key := counter.Key{UserID: "u1", Kind: counter.KindAnnual, PeriodKey: "2026"}

	_, err := ledger.Decrement(ctx, counter.Change{Key: key, Amount: decimal.NewFromInt(3), IdempotencyKey: "k1"})
	require.NoError(t, err)
	_, err = ledger.Decrement(ctx, counter.Change{Key: key, Amount: decimal.NewFromInt(3), IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, counter.ErrDuplicateIdempotencyKey)
	_, err = ledger.Increment(ctx, counter.Change{Key: key, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	c, err := st.GetCounter(ctx, key)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(c.Consumed))
	assert.True(t, decimal.NewFromInt(216).Equal(c.Remaining()))

	muts, err := ledger.Mutations(ctx, key)
	require.NoError(t, err)
	require.Len(t, muts, 3)
	assert.Equal(t, counter.OpCreate, muts[0].Operation)
	assert.Equal(t, counter.OpDecrement, muts[1].Operation)
	assert.Equal(t, counter.OpIncrement, muts[2].Operation)
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestEngine_PublishOnSQLite(t *testing.T) {
	// GIVEN: a villa with a weekday template and five assigned January shifts
	// WHEN: validating and publishing the month
	// THEN: the assigned shifts are deducted once from the annual counter

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.December, 15, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ledger := counter.NewLedger(st, counter.DefaultPeriods(),
		counter.Allocation{AnnualDays: decimal.NewFromInt(218)}, counter.WithClock(clock))
	svc := planning.NewService(st, ledger, planning.WithClock(clock))

	_, err := svc.CreateTemplate(ctx, planning.Template{
		Name: "Weekdays", IsDefault: true,
		Slots: []planning.TemplateSlot{{
			Label:     "Day",
			Weekdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			StartTime: "08:00",
			EndTime:   "20:00",
			Type:      planning.ShiftRegular,
		}},
	})
	require.NoError(t, err)
	villa, err := svc.CreateVilla(ctx, planning.NewVilla{Name: "Les Tilleuls"})
	require.NoError(t, err)
	user, err := svc.CreateUser(ctx, planning.NewUser{Name: "Camille"})
	require.NoError(t, err)

	sched, _, err := svc.GenerateMonth(ctx, villa.ID, 2026, time.January)
	require.NoError(t, err)
	shifts, err := st.ListShiftsBySchedule(ctx, sched.ID)
	require.NoError(t, err)
	require.Len(t, shifts, 22)

	// Jan 2 and Jan 5-8
	for _, sh := range shifts[1:6] {
		_, err := svc.Assign(ctx, sh.ID, user.ID)
		require.NoError(t, err)
	}
	_, err = svc.ValidatePlanning(ctx, sched.ID, false)
	require.NoError(t, err)

	res, err := svc.Publish(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Deducted)

	c, err := st.GetCounter(ctx, counter.Key{UserID: user.ID, Kind: counter.KindAnnual, PeriodKey: "2026"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(213).Equal(c.Remaining()))

	_, err = svc.Publish(ctx, sched.ID)
	assert.ErrorIs(t, err, planning.ErrAlreadyPublished)
}
