/*
errors.go - Error taxonomy of the planning engine

CATEGORIES:
  not-found   a referenced shift/user/villa/template/schedule is absent.
              Always a hard failure, never downgraded to a warning.
  validation  malformed or missing input, rejected before any mutation.
  conflict    a business rule forbids the operation (re-publishing,
              overlapping on-call periods, editing a published month).
  warning     not an error at all: see Warning in types.go.

USAGE:
  if planning.IsNotFound(err) { ... 404 ... }
  if errors.Is(err, planning.ErrAlreadyPublished) { ... }

SEE ALSO:
  - api/handlers.go: maps the categories to HTTP status codes
*/
package planning

import (
	"errors"
	"fmt"

	"github.com/villacare/planning-engine/counter"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrShiftNotFound       = errors.New("shift not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrVillaNotFound       = errors.New("villa not found")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrScheduleNotFound    = errors.New("month schedule not found")
	ErrAbsenceNotFound     = errors.New("absence not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrOnCallNotFound      = errors.New("on-call period not found")
)

var (
	// ErrInvalidInput is returned for malformed or missing request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTimeRange is returned when start is not before end.
	ErrInvalidTimeRange = errors.New("invalid time range: start must be before end")
)

var (
	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyPublished is returned when publishing a published schedule.
	ErrAlreadyPublished = errors.New("month schedule already published")

	// ErrNotValidated is returned when publishing a schedule still in draft.
	ErrNotValidated = errors.New("month schedule must be validated before publication")

	// ErrSchedulePublished is returned when editing shifts of a published month.
	ErrSchedulePublished = errors.New("month schedule is published")

	// ErrVillaInUse is returned when deleting a villa that owns shifts or users.
	ErrVillaInUse = errors.New("villa still has shifts or users")

	// ErrOnCallOverlap is returned when two on-call periods would overlap.
	ErrOnCallOverlap = errors.New("on-call period overlaps an existing one")

	// ErrShiftCancelled is returned when assigning or resizing a cancelled shift.
	ErrShiftCancelled = errors.New("shift is cancelled")

	// ErrDuplicate is returned by stores on a uniqueness violation.
	ErrDuplicate = errors.New("duplicate record")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func notFound(entity, id string, sentinel error) error {
	return &NotFoundError{Entity: entity, ID: id, Err: sentinel}
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError describes a refused status change.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot go from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrShiftNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrVillaNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrAbsenceNotFound) ||
		errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrOnCallNotFound) ||
		errors.Is(err, counter.ErrCounterNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		counter.IsClientError(err)
}

// IsConflict returns true if a business rule refused the operation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadyPublished) ||
		errors.Is(err, ErrNotValidated) ||
		errors.Is(err, ErrSchedulePublished) ||
		errors.Is(err, ErrVillaInUse) ||
		errors.Is(err, ErrOnCallOverlap) ||
		errors.Is(err, ErrShiftCancelled) ||
		errors.Is(err, ErrDuplicate) ||
		counter.IsConflict(err)
}
