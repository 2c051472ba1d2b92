package planning_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villacare/planning-engine/planning"
)

func TestAvailability_MergesCalendars(t *testing.T) {
	// GIVEN: one approved absence, one duty-impacting confirmed appointment,
	//        one assigned shift, plus records that must be ignored
	// WHEN: resolving the week of Jan 12 2026
	// THEN: exactly three intervals, ordered by start

	f := newFixture(t)
	villa := f.villa(t, "Les Tilleuls")
	user := f.user(t, "Camille")
	boss := f.user(t, "Direction")

	f.approvedAbsence(t, user.ID, planning.AbsenceLeave, date(2026, 1, 12), date(2026, 1, 12))
	require.NoError(t, f.store.SaveAbsence(f.ctx, planning.Absence{
		ID: "pending", UserID: user.ID, Type: planning.AbsenceLeave,
		StartDate: date(2026, 1, 15), EndDate: date(2026, 1, 15), Status: planning.AbsencePending,
	}))

	appt, err := f.svc.CreateAppointment(f.ctx, planning.NewAppointment{
		OrganizerID: boss.ID, Title: "Annual review", Type: planning.AppointmentSummons,
		Start: at(2026, 1, 13, 10, 0), End: at(2026, 1, 13, 11, 0),
		ImpactsDuty: true, ParticipantIDs: []string{user.ID},
	})
	require.NoError(t, err)
	_, err = f.svc.SetAppointmentStatus(f.ctx, appt.ID, planning.AppointmentConfirmed)
	require.NoError(t, err)

	_, err = f.svc.CreateAppointment(f.ctx, planning.NewAppointment{
		OrganizerID: boss.ID, Title: "Coffee", Start: at(2026, 1, 13, 15, 0), End: at(2026, 1, 13, 16, 0),
		ImpactsDuty: false, ParticipantIDs: []string{user.ID},
	})
	require.NoError(t, err)
	cancelled, err := f.svc.CreateAppointment(f.ctx, planning.NewAppointment{
		OrganizerID: boss.ID, Title: "Cancelled", Start: at(2026, 1, 14, 9, 0), End: at(2026, 1, 14, 10, 0),
		ImpactsDuty: true, ParticipantIDs: []string{user.ID},
	})
	require.NoError(t, err)
	_, err = f.svc.SetAppointmentStatus(f.ctx, cancelled.ID, planning.AppointmentCancelled)
	require.NoError(t, err)

	shift, err := f.svc.CreateShift(f.ctx, planning.NewShift{
		VillaID: villa.ID, UserID: user.ID, Start: at(2026, 1, 16, 8, 0), End: at(2026, 1, 16, 20, 0),
	})
	require.NoError(t, err)

	busy, err := f.svc.Availability(f.ctx, user.ID, at(2026, 1, 12, 0, 0), at(2026, 1, 19, 0, 0))
	require.NoError(t, err)

	require.Len(t, busy, 3)

	assert.Equal(t, planning.SourceAbsence, busy[0].Source)
	assert.Equal(t, at(2026, 1, 12, 0, 0), busy[0].Start)
	assert.Equal(t, at(2026, 1, 13, 0, 0), busy[0].End)
	assert.Equal(t, planning.ColorAbsence, busy[0].Color)
	assert.Equal(t, "Absence (leave)", busy[0].Label)

	assert.Equal(t, planning.SourceAppointment, busy[1].Source)
	assert.Equal(t, "Annual review", busy[1].Label)
	assert.Equal(t, planning.ColorAppointment, busy[1].Color)

	assert.Equal(t, planning.SourceShift, busy[2].Source)
	assert.Equal(t, shift.Shift.ID, busy[2].RefID)
	assert.Equal(t, "Shift Les Tilleuls", busy[2].Label)
	assert.Equal(t, villa.Color, busy[2].Color)
}

func TestAvailability_OnCallAndDeclinedParticipant(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "Camille")
	boss := f.user(t, "Direction")

	_, err := f.svc.CreateOnCall(f.ctx, at(2026, 1, 12, 0, 0), at(2026, 1, 19, 0, 0), user.ID)
	require.NoError(t, err)

	appt, err := f.svc.CreateAppointment(f.ctx, planning.NewAppointment{
		OrganizerID: boss.ID, Title: "Training", Start: at(2026, 1, 13, 9, 0), End: at(2026, 1, 13, 12, 0),
		ImpactsDuty: true, ParticipantIDs: []string{user.ID},
	})
	require.NoError(t, err)
	stored, err := f.store.GetAppointment(f.ctx, appt.ID)
	require.NoError(t, err)
	stored.Participants[0].Presence = planning.PresenceAbsent
	require.NoError(t, f.store.SaveAppointment(f.ctx, *stored))

	busy, err := f.svc.Availability(f.ctx, user.ID, at(2026, 1, 13, 0, 0), at(2026, 1, 14, 0, 0))
	require.NoError(t, err)

	require.Len(t, busy, 1)
	assert.Equal(t, planning.SourceOnCall, busy[0].Source)
	assert.Equal(t, planning.ColorOnCall, busy[0].Color)

	// The organizer still sees the appointment.
	busy, err = f.svc.Availability(f.ctx, boss.ID, at(2026, 1, 13, 0, 0), at(2026, 1, 14, 0, 0))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, planning.SourceAppointment, busy[0].Source)
}

func TestAvailability_Errors(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "Camille")

	_, err := f.svc.Availability(f.ctx, user.ID, at(2026, 1, 13, 0, 0), at(2026, 1, 12, 0, 0))
	assert.ErrorIs(t, err, planning.ErrInvalidTimeRange)

	_, err = f.svc.Availability(f.ctx, "ghost", at(2026, 1, 12, 0, 0), at(2026, 1, 13, 0, 0))
	assert.ErrorIs(t, err, planning.ErrUserNotFound)
}

func TestAvailability_CancelledShiftIsFree(t *testing.T) {
	f := newFixture(t)
	villa := f.villa(t, "A")
	user := f.user(t, "Camille")
	res, err := f.svc.CreateShift(f.ctx, planning.NewShift{VillaID: villa.ID, UserID: user.ID, Start: at(2026, 1, 12, 8, 0), End: at(2026, 1, 12, 20, 0)})
	require.NoError(t, err)

	cancelled := planning.ShiftCancelled
	batch, err := f.svc.ProcessBatch(f.ctx, []planning.BatchChange{{
		AffectationID: res.Shift.ID, Type: planning.ChangeUpdate, Data: planning.BatchData{Status: &cancelled},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, batch.Processed)

	busy, err := f.svc.Availability(f.ctx, user.ID, at(2026, 1, 12, 0, 0), at(2026, 1, 13, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, busy)
}
