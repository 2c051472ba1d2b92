/*
Package planning is the shift-planning and assignment engine for villas.

PURPOSE:
  Generates draft month schedules from weekly templates, assigns educators to
  shifts while checking their availability across four calendars (absences,
  appointments, on-call duty, other shifts), validates a month before it is
  published, and deducts shift working days from day counters exactly once
  at publication.

KEY CONCEPTS IN THIS FILE (types.go):
  - Shift: a duty period for a villa, optionally assigned to a user
  - MonthSchedule: the draft/validated/published aggregate of a villa's month
  - Villa, User: the directory records shifts point at (by id only)
  - Absence, Appointment, OnCall: the calendars availability is built from
  - Template: a weekly pattern of slots expanded into shifts
  - Warning: a non-blocking finding returned next to a successful mutation

STATUS TYPES:
  Every status is a closed string enum with IsValid(). Transitions are
  decided in one switch per type, so an unknown status never slips through.

OPTIONAL REFERENCES:
  A shift's villa and assignee are *string ids, never embedded objects.
  Lookups happen explicitly when a name or color is needed.

SEE ALSO:
  - service.go: Service wiring and the per-month lock
  - store.go: persistence contract
  - time.go: the working-days rule
*/
package planning

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SHIFT
// =============================================================================

// ShiftType is the kind of duty a shift covers.
type ShiftType string

const (
	ShiftRegular       ShiftType = "regular"
	ShiftReinforcement ShiftType = "reinforcement"
	// ShiftWeekendDuty is an on-duty weekend slot: Saturdays and Sundays
	// count as working days.
	ShiftWeekendDuty ShiftType = "weekend_duty"
	ShiftOther       ShiftType = "other"
)

func (t ShiftType) IsValid() bool {
	switch t {
	case ShiftRegular, ShiftReinforcement, ShiftWeekendDuty, ShiftOther:
		return true
	}
	return false
}

// ShiftStatus is the lifecycle state of a single shift.
type ShiftStatus string

const (
	ShiftDraft              ShiftStatus = "draft"
	ShiftValidated          ShiftStatus = "validated"
	ShiftPendingReplacement ShiftStatus = "pending_replacement"
	ShiftCancelled          ShiftStatus = "cancelled"
)

func (s ShiftStatus) IsValid() bool {
	switch s {
	case ShiftDraft, ShiftValidated, ShiftPendingReplacement, ShiftCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an ordinary edit may move a shift from s
// to next. Going back to draft is reserved to reopen.
func (s ShiftStatus) CanTransitionTo(next ShiftStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case ShiftDraft:
		return next == ShiftValidated || next == ShiftPendingReplacement || next == ShiftCancelled
	case ShiftValidated:
		return next == ShiftPendingReplacement || next == ShiftCancelled
	case ShiftPendingReplacement:
		return next == ShiftValidated || next == ShiftCancelled
	case ShiftCancelled:
		return false
	}
	return false
}

// canReopen reports whether reopen may move a shift from s back to draft.
func (s ShiftStatus) canReopen() bool {
	switch s {
	case ShiftValidated, ShiftPendingReplacement, ShiftCancelled:
		return true
	case ShiftDraft:
		return false
	}
	return false
}

// Shift is a scheduled duty period ("affectation").
type Shift struct {
	ID         string
	PlanningID string
	VillaID    *string
	UserID     *string

	Start time.Time
	End   time.Time

	Type        ShiftType
	Status      ShiftStatus
	WorkingDays decimal.Decimal
	Comment     string

	FromTemplate bool
	TemplateID   *string

	// Deduction bookkeeping. DeductedAt is set once the shift's working days
	// were taken from the assignee's counter. DeductionSeq increases on every
	// reopen so the next publish uses a fresh idempotency key.
	DeductedDays decimal.Decimal
	DeductedAt   *time.Time
	DeductionSeq int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAssigned reports whether the shift has an assignee.
func (s Shift) IsAssigned() bool { return s.UserID != nil && *s.UserID != "" }

// Assignee returns the assignee id or "".
func (s Shift) Assignee() string {
	if s.UserID == nil {
		return ""
	}
	return *s.UserID
}

// IsDeducted reports whether the shift already consumed counter days.
func (s Shift) IsDeducted() bool { return s.DeductedAt != nil }

// Overlaps reports whether the shift intersects [from, to).
func (s Shift) Overlaps(from, to time.Time) bool {
	return s.Start.Before(to) && s.End.After(from)
}

// =============================================================================
// MONTH SCHEDULE
// =============================================================================

// ScheduleStatus is the lifecycle state of a month schedule.
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "draft"
	ScheduleValidated ScheduleStatus = "validated"
	SchedulePublished ScheduleStatus = "published"
)

func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleDraft, ScheduleValidated, SchedulePublished:
		return true
	}
	return false
}

// MonthKey identifies a month schedule and scopes its lock.
type MonthKey struct {
	VillaID string
	Year    int
	Month   time.Month
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.VillaID, k.Year, int(k.Month))
}

// Compare orders keys for deterministic multi-month locking.
func (k MonthKey) Compare(other MonthKey) int {
	switch a, b := k.String(), other.String(); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// MonthSchedule is the aggregate record of one villa's month ("planning").
type MonthSchedule struct {
	ID          string
	VillaID     string
	Year        int
	Month       time.Month
	Status      ScheduleStatus
	ValidatedAt *time.Time
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the schedule's month key.
func (m MonthSchedule) Key() MonthKey {
	return MonthKey{VillaID: m.VillaID, Year: m.Year, Month: m.Month}
}

// IsPublished reports whether the schedule reached its terminal state.
func (m MonthSchedule) IsPublished() bool { return m.Status == SchedulePublished }

// =============================================================================
// DIRECTORY
// =============================================================================

// Villa is a residential facility.
type Villa struct {
	ID    string
	Name  string
	Color string

	// IsReinforcementPool marks the pseudo-villa holding reinforcement staff.
	IsReinforcementPool bool

	DefaultTemplateID *string
	CreatedAt         time.Time
}

// User is an educator or administrator.
type User struct {
	ID        string
	Name      string
	Email     string
	Roles     []string
	VillaID   *string
	Color     string
	CreatedAt time.Time
}

// =============================================================================
// CALENDARS
// =============================================================================

// AbsenceType classifies an absence.
type AbsenceType string

const (
	AbsenceLeave     AbsenceType = "leave"      // paid leave, periodic counter
	AbsenceAnnualDay AbsenceType = "annual_day" // day off on the annual counter
	AbsenceSick      AbsenceType = "sick"
	AbsenceUnpaid    AbsenceType = "unpaid"
	AbsenceTraining  AbsenceType = "training"
	AbsenceOther     AbsenceType = "other"
)

func (t AbsenceType) IsValid() bool {
	switch t {
	case AbsenceLeave, AbsenceAnnualDay, AbsenceSick, AbsenceUnpaid, AbsenceTraining, AbsenceOther:
		return true
	}
	return false
}

// AbsenceStatus is the approval state of an absence.
type AbsenceStatus string

const (
	AbsencePending   AbsenceStatus = "pending"
	AbsenceApproved  AbsenceStatus = "approved"
	AbsenceCancelled AbsenceStatus = "cancelled"
	AbsenceRefused   AbsenceStatus = "refused"
)

func (s AbsenceStatus) IsValid() bool {
	switch s {
	case AbsencePending, AbsenceApproved, AbsenceCancelled, AbsenceRefused:
		return true
	}
	return false
}

// Absence is a user's leave, sickness or other absence over whole days.
// StartDate and EndDate are calendar dates (midnight UTC), both inclusive.
type Absence struct {
	ID             string
	UserID         string
	Type           AbsenceType
	StartDate      time.Time
	EndDate        time.Time
	Status         AbsenceStatus
	DeductsCounter bool
	WorkingDays    decimal.Decimal
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AppointmentType distinguishes requested meetings from summons.
type AppointmentType string

const (
	AppointmentRequest AppointmentType = "request"
	AppointmentSummons AppointmentType = "summons"
)

func (t AppointmentType) IsValid() bool {
	return t == AppointmentRequest || t == AppointmentSummons
}

// AppointmentStatus is the appointment state machine.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentRefused   AppointmentStatus = "refused"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentRefused, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// CanTransitionTo implements pending -> confirmed/refused -> completed/cancelled.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case AppointmentPending:
		return next == AppointmentConfirmed || next == AppointmentRefused || next == AppointmentCancelled
	case AppointmentConfirmed:
		return next == AppointmentCompleted || next == AppointmentCancelled
	case AppointmentRefused, AppointmentCompleted, AppointmentCancelled:
		return false
	}
	return false
}

// IsActive reports whether the appointment still occupies its slot.
func (s AppointmentStatus) IsActive() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentCompleted:
		return true
	case AppointmentRefused, AppointmentCancelled:
		return false
	}
	return false
}

// Presence is a participant's answer to an appointment.
type Presence string

const (
	PresencePending   Presence = "pending"
	PresenceConfirmed Presence = "confirmed"
	PresenceAbsent    Presence = "absent"
)

func (p Presence) IsValid() bool {
	return p == PresencePending || p == PresenceConfirmed || p == PresenceAbsent
}

// Participant is a user invited to an appointment.
type Participant struct {
	UserID   string
	Presence Presence
}

// Appointment is a meeting ("rendez-vous").
type Appointment struct {
	ID           string
	OrganizerID  string
	Title        string
	Type         AppointmentType
	Status       AppointmentStatus
	Start        time.Time
	End          time.Time
	ImpactsDuty  bool
	Participants []Participant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Involves reports whether userID organizes the appointment or is a
// participant who did not decline.
func (a Appointment) Involves(userID string) bool {
	if a.OrganizerID == userID {
		return true
	}
	for _, p := range a.Participants {
		if p.UserID == userID {
			return p.Presence != PresenceAbsent
		}
	}
	return false
}

// OnCallStatus is derived from assignment presence.
type OnCallStatus string

const (
	OnCallUnassigned OnCallStatus = "unassigned"
	OnCallAssigned   OnCallStatus = "assigned"
)

// OnCall is a weekly stand-by period ("astreinte").
type OnCall struct {
	ID               string
	UserID           *string
	Start            time.Time
	End              time.Time
	ReplacementCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Status derives the on-call status from its assignee.
func (o OnCall) Status() OnCallStatus {
	if o.UserID != nil && *o.UserID != "" {
		return OnCallAssigned
	}
	return OnCallUnassigned
}

// =============================================================================
// TEMPLATE
// =============================================================================

// Template is a reusable weekly duty pattern ("squelette").
type Template struct {
	ID          string
	Name        string
	Description string
	IsDefault   bool

	// Anchor is the Monday recurrence rules are evaluated from. Rules with an
	// INTERVAL keep their phase relative to it.
	Anchor time.Time

	Slots     []TemplateSlot
	CreatedAt time.Time
}

// TemplateSlot is one recurring duty inside a template week.
type TemplateSlot struct {
	Label string

	// Either Rule (an RFC 5545 RRULE such as "FREQ=WEEKLY;BYDAY=MO,WE") or
	// Weekdays must be set. Weekdays is turned into a weekly rule.
	Rule     string
	Weekdays []time.Weekday

	// Wall-clock times "HH:MM". An end at or before the start ends next day.
	StartTime string
	EndTime   string

	Type ShiftType
}

// =============================================================================
// WARNINGS & PUBLICATION RECORDS
// =============================================================================

// WarningType names a finding.
type WarningType string

const (
	WarnAbsenceConflict     WarningType = "absence_conflict"
	WarnAppointmentConflict WarningType = "appointment_conflict"
	WarnOnCallConflict      WarningType = "on_call_conflict"
	WarnShiftOverlap        WarningType = "shift_overlap"
	WarnInsufficientBalance WarningType = "insufficient_balance"
	WarnUnassigned          WarningType = "unassigned"
	WarnCounterError        WarningType = "counter_error"
	WarnItemFailed          WarningType = "item_failed"
	WarnSchedulePublished   WarningType = "schedule_published"
)

// Severity ranks a warning.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Warning is a non-blocking finding attached to a successful operation.
type Warning struct {
	Type          WarningType
	Message       string
	Severity      Severity
	AffectationID string
	UserID        string
}

// DeductionFailure records a shift whose counter deduction failed at publish.
type DeductionFailure struct {
	AffectationID string
	UserID        string
	Days          decimal.Decimal
	Error         string
}

// Publication is the audit record of one publish.
type Publication struct {
	ID          string
	PlanningID  string
	PublishedAt time.Time
	Deducted    int
	TotalDays   decimal.Decimal
	Warnings    []Warning
	Failures    []DeductionFailure
}
