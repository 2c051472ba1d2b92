/*
Package timeoff manages absences and the day counters they draw from.

PURPOSE:
  An absence ("congé") moves pending -> approved -> cancelled, or pending ->
  refused/cancelled. Approval of a counted absence takes its working days
  from the user's counter; cancelling an approved absence gives them back.
  The planning engine only reads approved absences, through the
  Availability Resolver.

WHICH COUNTER:
  leave       periodic counter of the period containing the start date
  annual_day  annual counter of the start date's year
  others      no counter (sick, unpaid, training, other)

SEE ALSO:
  - request.go: absence lifecycle
  - balance.go: pre-flight balance checks and counter summaries
  - counter/ledger.go: the only place balances change
*/
package timeoff

import (
	"errors"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
)

// CounterKind returns the counter an absence type draws from.
func CounterKind(t planning.AbsenceType) (counter.Kind, bool) {
	switch t {
	case planning.AbsenceLeave:
		return counter.KindPeriodic, true
	case planning.AbsenceAnnualDay:
		return counter.KindAnnual, true
	case planning.AbsenceSick, planning.AbsenceUnpaid, planning.AbsenceTraining, planning.AbsenceOther:
		return "", false
	}
	return "", false
}

// canTransition implements the absence state machine.
func canTransition(from, to planning.AbsenceStatus) bool {
	switch from {
	case planning.AbsencePending:
		return to == planning.AbsenceApproved || to == planning.AbsenceRefused || to == planning.AbsenceCancelled
	case planning.AbsenceApproved:
		return to == planning.AbsenceCancelled
	case planning.AbsenceRefused, planning.AbsenceCancelled:
		return false
	}
	return false
}

// ErrAbsenceOverlap is returned when a user already has a pending or
// approved absence on one of the requested days.
var ErrAbsenceOverlap = errors.New("absence overlaps an existing one")
