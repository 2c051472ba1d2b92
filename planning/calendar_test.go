package planning_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/planning/store"
)

// =============================================================================
// DIRECTORY
// =============================================================================

func TestDeleteVilla_Guarded(t *testing.T) {
	f := newFixture(t)
	busy := f.villa(t, "A")
	empty := f.villa(t, "B")
	_, err := f.svc.CreateUser(f.ctx, planning.NewUser{Name: "Camille", VillaID: busy.ID})
	require.NoError(t, err)

	err = f.svc.DeleteVilla(f.ctx, busy.ID)
	assert.ErrorIs(t, err, planning.ErrVillaInUse)

	require.NoError(t, f.svc.DeleteVilla(f.ctx, empty.ID))
	_, err = f.store.GetVilla(f.ctx, empty.ID)
	assert.ErrorIs(t, err, planning.ErrVillaNotFound)

	assert.ErrorIs(t, f.svc.DeleteVilla(f.ctx, "missing"), planning.ErrVillaNotFound)
}

func TestCreateUser_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateUser(f.ctx, planning.NewUser{Name: "  "})
	assert.ErrorIs(t, err, planning.ErrInvalidInput)

	_, err = f.svc.CreateUser(f.ctx, planning.NewUser{Name: "Camille", VillaID: "nope"})
	assert.ErrorIs(t, err, planning.ErrVillaNotFound)

	u, err := f.svc.CreateUser(f.ctx, planning.NewUser{Name: "Camille"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Empty(t, u.Roles)
	assert.NotNil(t, u.Roles)
}

// =============================================================================
// MONTH VIEW
// =============================================================================

func TestMonthPlanning(t *testing.T) {
	f := newFixture(t)
	villa := f.villa(t, "A")
	f.weekdayTemplate(t, true)
	user := f.user(t, "Camille")

	view, err := f.svc.MonthPlanning(f.ctx, villa.ID, 2026, time.January)
	require.NoError(t, err)
	assert.Nil(t, view.Schedule)
	assert.Empty(t, view.Shifts)

	sched, shifts := f.generateJanuary(t, villa.ID)
	_, err = f.svc.Assign(f.ctx, shifts[0].ID, user.ID)
	require.NoError(t, err)

	view, err = f.svc.MonthPlanning(f.ctx, villa.ID, 2026, time.January)
	require.NoError(t, err)
	require.NotNil(t, view.Schedule)
	assert.Equal(t, sched.ID, view.Schedule.ID)
	require.Len(t, view.Shifts, 22)
	require.NotNil(t, view.Shifts[0].User)
	assert.Equal(t, "Camille", view.Shifts[0].User.Name)
	assert.Nil(t, view.Shifts[1].User)

	_, err = f.svc.MonthPlanning(f.ctx, "nope", 2026, time.January)
	assert.ErrorIs(t, err, planning.ErrVillaNotFound)
}

func TestDeleteSchedule_Cascades(t *testing.T) {
	f := newFixture(t)
	villa := f.villa(t, "A")
	f.weekdayTemplate(t, true)
	sched, shifts := f.generateJanuary(t, villa.ID)

	require.NoError(t, f.svc.DeleteSchedule(f.ctx, sched.ID))

	_, err := f.store.GetSchedule(f.ctx, sched.ID)
	assert.ErrorIs(t, err, planning.ErrScheduleNotFound)
	_, err = f.store.GetShift(f.ctx, shifts[0].ID)
	assert.ErrorIs(t, err, planning.ErrShiftNotFound)

	// The villa is free again.
	require.NoError(t, f.svc.DeleteVilla(f.ctx, villa.ID))
}

func TestDeleteSchedule_Published(t *testing.T) {
	f := newFixture(t)
	villa := f.villa(t, "A")
	f.weekdayTemplate(t, true)
	sched, _ := f.generateJanuary(t, villa.ID)
	_, err := f.svc.ValidatePlanning(f.ctx, sched.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Publish(f.ctx, sched.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteSchedule(f.ctx, sched.ID), planning.ErrSchedulePublished)
}

// =============================================================================
// APPOINTMENTS & ON-CALL
// =============================================================================

func TestAppointmentStatus_StateMachine(t *testing.T) {
	f := newFixture(t)
	boss := f.user(t, "Direction")
	appt, err := f.svc.CreateAppointment(f.ctx, planning.NewAppointment{
		OrganizerID: boss.ID, Title: "Review", Start: at(2026, 1, 13, 10, 0), End: at(2026, 1, 13, 11, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, planning.AppointmentPending, appt.Status)
	assert.Equal(t, planning.AppointmentRequest, appt.Type)

	_, err = f.svc.SetAppointmentStatus(f.ctx, appt.ID, planning.AppointmentCompleted)
	assert.ErrorIs(t, err, planning.ErrInvalidTransition)

	got, err := f.svc.SetAppointmentStatus(f.ctx, appt.ID, planning.AppointmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, planning.AppointmentConfirmed, got.Status)

	got, err = f.svc.SetAppointmentStatus(f.ctx, appt.ID, planning.AppointmentCompleted)
	require.NoError(t, err)
	assert.Equal(t, planning.AppointmentCompleted, got.Status)

	_, err = f.svc.SetAppointmentStatus(f.ctx, appt.ID, planning.AppointmentCancelled)
	assert.ErrorIs(t, err, planning.ErrInvalidTransition)

	_, err = f.svc.SetAppointmentStatus(f.ctx, appt.ID, "postponed")
	assert.ErrorIs(t, err, planning.ErrInvalidInput)
}

func TestCreateAppointment_Validation(t *testing.T) {
	f := newFixture(t)
	boss := f.user(t, "Direction")

	_, err := f.svc.CreateAppointment(f.ctx, planning.NewAppointment{OrganizerID: boss.ID, Start: at(2026, 1, 13, 10, 0), End: at(2026, 1, 13, 11, 0)})
	assert.ErrorIs(t, err, planning.ErrInvalidInput, "title required")

	_, err = f.svc.CreateAppointment(f.ctx, planning.NewAppointment{OrganizerID: boss.ID, Title: "x", Start: at(2026, 1, 13, 11, 0), End: at(2026, 1, 13, 10, 0)})
	assert.ErrorIs(t, err, planning.ErrInvalidTimeRange)

	_, err = f.svc.CreateAppointment(f.ctx, planning.NewAppointment{OrganizerID: boss.ID, Title: "x", Start: at(2026, 1, 13, 10, 0), End: at(2026, 1, 13, 11, 0), ParticipantIDs: []string{"ghost"}})
	assert.ErrorIs(t, err, planning.ErrUserNotFound)
}

func TestCreateOnCall_NoOverlap(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOnCall(f.ctx, at(2026, 1, 12, 0, 0), at(2026, 1, 19, 0, 0), "")
	require.NoError(t, err)

	_, err = f.svc.CreateOnCall(f.ctx, at(2026, 1, 18, 0, 0), at(2026, 1, 25, 0, 0), "")
	assert.ErrorIs(t, err, planning.ErrOnCallOverlap)
	assert.True(t, planning.IsConflict(err))

	// Touching periods do not overlap.
	next, err := f.svc.CreateOnCall(f.ctx, at(2026, 1, 19, 0, 0), at(2026, 1, 26, 0, 0), "")
	require.NoError(t, err)
	assert.Equal(t, planning.OnCallUnassigned, next.Status())
}

// readCommittedStore runs transactions without isolation and pauses after
// every on-call read, the way two PostgreSQL sessions can interleave.
type readCommittedStore struct {
	*store.Memory
}

func (s readCommittedStore) WithTx(_ context.Context, fn func(planning.Store) error) error {
	return fn(s)
}

func (s readCommittedStore) FindOnCallInRange(ctx context.Context, from, to time.Time) ([]planning.OnCall, error) {
	out, err := s.Memory.FindOnCallInRange(ctx, from, to)
	time.Sleep(20 * time.Millisecond)
	return out, err
}

func TestCreateOnCall_ConcurrentOverlapRejected(t *testing.T) {
	// GIVEN: a store that does not isolate the overlap check from the write
	// WHEN: four overlapping periods are created at the same time
	// THEN: exactly one is stored, the others are overlap conflicts

	f := newFixture(t)
	st := readCommittedStore{Memory: f.store}
	svc := planning.NewService(st, f.ledger, planning.WithClock(func() time.Time { return f.now }))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			_, err := svc.CreateOnCall(f.ctx, at(2026, 1, 12+offset, 0, 0), at(2026, 1, 19+offset, 0, 0), "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if assert.ErrorIs(t, err, planning.ErrOnCallOverlap) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 3, conflicts)
	stored, err := f.store.FindOnCallInRange(f.ctx, at(2026, 1, 1, 0, 0), at(2026, 2, 1, 0, 0))
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestAssignOnCall_CountsReplacements(t *testing.T) {
	// GIVEN: an on-call week assigned to Camille
	// WHEN: reassigning it before it starts, then after it started
	// THEN: only the second reassignment counts as a replacement

	f := newFixture(t)
	camille := f.user(t, "Camille")
	dominique := f.user(t, "Dominique")
	oc, err := f.svc.CreateOnCall(f.ctx, at(2026, 1, 12, 0, 0), at(2026, 1, 19, 0, 0), camille.ID)
	require.NoError(t, err)
	assert.Equal(t, planning.OnCallAssigned, oc.Status())

	got, err := f.svc.AssignOnCall(f.ctx, oc.ID, dominique.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ReplacementCount)

	f.now = at(2026, 1, 14, 9, 0)
	got, err = f.svc.AssignOnCall(f.ctx, oc.ID, camille.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReplacementCount)

	got, err = f.svc.AssignOnCall(f.ctx, oc.ID, camille.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReplacementCount, "same assignee is not a replacement")

	_, err = f.svc.AssignOnCall(f.ctx, oc.ID, "ghost")
	assert.ErrorIs(t, err, planning.ErrUserNotFound)
	_, err = f.svc.AssignOnCall(f.ctx, "missing", camille.ID)
	assert.ErrorIs(t, err, planning.ErrOnCallNotFound)
}
