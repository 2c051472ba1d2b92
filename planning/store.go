/*
store.go - Persistence contract of the planning engine

PURPOSE:
  The decision logic never speaks SQL. Every multi-record question it asks
  ("which approved absences of this user touch this range?") is a named
  repository method returning plain records. Implementations:
    - planning/store/memory.go: in-memory, for tests and demos
    - store/sqlstore: SQLite and PostgreSQL through database/sql

NOT FOUND:
  Single-record getters return a *NotFoundError wrapping the matching
  sentinel (ErrShiftNotFound, ...). List methods return an empty slice.

TRANSACTIONS:
  WithTx runs fn against a transactional view. Everything fn does through
  that view commits together or not at all. A nested WithTx on a view is a
  savepoint: an error rolls back only what the nested fn wrote, and the
  outer transaction carries on. Counter persistence (counter.Store) lives on
  the same store so one database holds everything.

SEE ALSO:
  - availability.go: CalendarSource, the read subset the resolver needs
*/
package planning

import (
	"context"
	"time"

	"github.com/villacare/planning-engine/counter"
)

// CalendarSource is the read side the Availability Resolver works from.
// Ranges are half-open instants [from, to) unless stated otherwise.
type CalendarSource interface {
	// FindApprovedAbsencesInRange returns approved absences of userID whose
	// inclusive date range touches the calendar dates [fromDate, toDate].
	FindApprovedAbsencesInRange(ctx context.Context, userID string, fromDate, toDate time.Time) ([]Absence, error)

	// FindAppointmentsInRange returns appointments overlapping [from, to)
	// where userID is organizer or participant, whatever their status.
	FindAppointmentsInRange(ctx context.Context, userID string, from, to time.Time) ([]Appointment, error)

	// FindUserOnCallInRange returns on-call periods assigned to userID
	// overlapping [from, to).
	FindUserOnCallInRange(ctx context.Context, userID string, from, to time.Time) ([]OnCall, error)

	// FindOverlappingShifts returns shifts assigned to userID overlapping
	// [from, to), cancelled ones included.
	FindOverlappingShifts(ctx context.Context, userID string, from, to time.Time) ([]Shift, error)

	GetVilla(ctx context.Context, id string) (*Villa, error)
}

// Store is the full persistence contract.
type Store interface {
	CalendarSource
	counter.Store

	// Villas & users
	ListVillas(ctx context.Context) ([]Villa, error)
	SaveVilla(ctx context.Context, v Villa) error
	DeleteVilla(ctx context.Context, id string) error
	CountVillaDependents(ctx context.Context, villaID string) (shifts int, users int, err error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SaveUser(ctx context.Context, u User) error

	// Month schedules
	GetSchedule(ctx context.Context, id string) (*MonthSchedule, error)
	FindSchedule(ctx context.Context, key MonthKey) (*MonthSchedule, error)
	ListSchedulesByMonth(ctx context.Context, year int, month time.Month) ([]MonthSchedule, error)
	SaveSchedule(ctx context.Context, m MonthSchedule) error
	// DeleteSchedule removes the schedule and cascades to its shifts.
	DeleteSchedule(ctx context.Context, id string) error

	// Shifts
	GetShift(ctx context.Context, id string) (*Shift, error)
	SaveShift(ctx context.Context, s Shift) error
	DeleteShift(ctx context.Context, id string) error
	// ListShiftsBySchedule returns a schedule's shifts ordered by start.
	ListShiftsBySchedule(ctx context.Context, planningID string) ([]Shift, error)
	// FindTemplateShifts returns shifts generated from templateID for villaID
	// starting within [from, to).
	FindTemplateShifts(ctx context.Context, templateID, villaID string, from, to time.Time) ([]Shift, error)

	// Absences
	GetAbsence(ctx context.Context, id string) (*Absence, error)
	SaveAbsence(ctx context.Context, a Absence) error
	ListAbsences(ctx context.Context, userID string) ([]Absence, error)

	// Appointments
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	SaveAppointment(ctx context.Context, a Appointment) error

	// On-call
	GetOnCall(ctx context.Context, id string) (*OnCall, error)
	SaveOnCall(ctx context.Context, o OnCall) error
	// FindOnCallInRange returns all on-call periods overlapping [from, to).
	FindOnCallInRange(ctx context.Context, from, to time.Time) ([]OnCall, error)

	// Templates
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	SaveTemplate(ctx context.Context, t Template) error

	// Publications
	SavePublication(ctx context.Context, p Publication) error
	ListPublications(ctx context.Context, planningID string) ([]Publication, error)

	WithTx(ctx context.Context, fn func(Store) error) error
}
