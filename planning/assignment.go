/*
assignment.go - Assignment Engine

PURPOSE:
  Assigns, reassigns and resizes shifts. Conflicts never block: the mutation
  is performed and every conflict found is returned as a Warning, so an
  administrator can knowingly override. Only a missing shift or user, a
  published month or a cancelled shift is a hard failure.

WARNINGS:
  absence_conflict      assignee has an approved absence over the span
  appointment_conflict  assignee has a duty-impacting appointment
  on_call_conflict      assignee is on call
  shift_overlap         assignee already works another shift
  insufficient_balance  projected annual counter goes below zero

BALANCE PROJECTION:
  projected = remaining
            - working days of the assignee's other pending shifts that year
            - this shift's working days (unless already deducted)
  "Pending" means assigned, not cancelled, not yet deducted. Validation uses
  the same function, so the assign-time and publish-time views agree.

SEE ALSO:
  - availability.go: the busy intervals warnings are built from
  - time.go: WorkingDays
*/
package planning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/villacare/planning-engine/counter"
)

// AssignResult is the outcome of Assign.
type AssignResult struct {
	Shift    Shift
	Warnings []Warning
}

// ResizeResult is the outcome of Resize.
type ResizeResult struct {
	Shift       Shift
	WorkingDays decimal.Decimal
	Warnings    []Warning
}

// Assign sets (or with an empty userID, clears) a shift's assignee.
func (s *Service) Assign(ctx context.Context, shiftID, userID string) (*AssignResult, error) {
	var res AssignResult
	err := s.withShift(ctx, shiftID, func(st Store, shift *Shift, sched *MonthSchedule) error {
		warnings, err := s.assignIn(ctx, st, shift, sched, userID)
		if err != nil {
			return err
		}
		res = AssignResult{Shift: *shift, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("shift assigned",
		zap.String("shift_id", shiftID),
		zap.String("user_id", userID),
		zap.Int("warnings", len(res.Warnings)),
	)
	return &res, nil
}

func (s *Service) assignIn(ctx context.Context, st Store, shift *Shift, sched *MonthSchedule, userID string) ([]Warning, error) {
	if err := checkEditable(shift, sched); err != nil {
		return nil, err
	}
	if userID != "" {
		if _, err := st.GetUser(ctx, userID); err != nil {
			return nil, err
		}
	}

	shift.UserID = strPtr(userID)
	shift.UpdatedAt = s.timestamp()
	if err := st.SaveShift(ctx, *shift); err != nil {
		return nil, err
	}
	return s.shiftWarnings(ctx, st, *shift)
}

// Resize changes a shift's time bounds and recomputes its working days.
// The start must stay within the shift's month.
func (s *Service) Resize(ctx context.Context, shiftID string, start, end time.Time) (*ResizeResult, error) {
	var res ResizeResult
	err := s.withShift(ctx, shiftID, func(st Store, shift *Shift, sched *MonthSchedule) error {
		warnings, err := s.resizeIn(ctx, st, shift, sched, start, end)
		if err != nil {
			return err
		}
		res = ResizeResult{Shift: *shift, WorkingDays: shift.WorkingDays, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("shift resized",
		zap.String("shift_id", shiftID),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.String("working_days", res.WorkingDays.String()),
		zap.Int("warnings", len(res.Warnings)),
	)
	return &res, nil
}

func (s *Service) resizeIn(ctx context.Context, st Store, shift *Shift, sched *MonthSchedule, start, end time.Time) ([]Warning, error) {
	if err := checkEditable(shift, sched); err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, ErrInvalidTimeRange
	}
	if key := MonthKeyFor(sched.VillaID, start, s.loc); key != sched.Key() {
		return nil, invalid("startAt", "shift must start within %04d-%02d", sched.Year, int(sched.Month))
	}

	shift.Start = start
	shift.End = end
	shift.WorkingDays = WorkingDays(start, end, shift.Type, s.loc)
	shift.UpdatedAt = s.timestamp()
	if err := st.SaveShift(ctx, *shift); err != nil {
		return nil, err
	}
	return s.shiftWarnings(ctx, st, *shift)
}

// ShiftWarnings re-derives the warnings of an existing shift without
// mutating anything.
func (s *Service) ShiftWarnings(ctx context.Context, shiftID string) ([]Warning, error) {
	shift, err := s.store.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	return s.shiftWarnings(ctx, s.store, *shift)
}

// =============================================================================
// MANUAL SHIFT CREATION / DELETION
// =============================================================================

// NewShift is the input of CreateShift.
type NewShift struct {
	VillaID string
	UserID  string
	Start   time.Time
	End     time.Time
	Type    ShiftType
	Comment string
}

// CreateShift adds a draft shift to a villa, creating the month schedule if
// needed.
func (s *Service) CreateShift(ctx context.Context, in NewShift) (*AssignResult, error) {
	if !in.Start.Before(in.End) {
		return nil, ErrInvalidTimeRange
	}
	if in.Type == "" {
		in.Type = ShiftRegular
	}
	if !in.Type.IsValid() {
		return nil, invalid("type", "unknown shift type %q", in.Type)
	}
	if _, err := s.store.GetVilla(ctx, in.VillaID); err != nil {
		return nil, err
	}

	key := MonthKeyFor(in.VillaID, in.Start, s.loc)
	unlock := s.lockMonth(key)
	defer unlock()

	var res AssignResult
	err := s.store.WithTx(ctx, func(st Store) error {
		if in.UserID != "" {
			if _, err := st.GetUser(ctx, in.UserID); err != nil {
				return err
			}
		}
		sched, _, err := s.findOrCreateSchedule(ctx, st, key)
		if err != nil {
			return err
		}
		if sched.IsPublished() {
			return ErrSchedulePublished
		}
		now := s.timestamp()
		shift := Shift{
			ID:          newID(),
			PlanningID:  sched.ID,
			VillaID:     strPtr(in.VillaID),
			UserID:      strPtr(in.UserID),
			Start:       in.Start,
			End:         in.End,
			Type:        in.Type,
			Status:      ShiftDraft,
			WorkingDays: WorkingDays(in.Start, in.End, in.Type, s.loc),
			Comment:     in.Comment,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := st.SaveShift(ctx, shift); err != nil {
			return err
		}
		warnings, err := s.shiftWarnings(ctx, st, shift)
		if err != nil {
			return err
		}
		res = AssignResult{Shift: shift, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("shift created",
		zap.String("shift_id", res.Shift.ID),
		zap.String("villa_id", in.VillaID),
		zap.String("planning_id", res.Shift.PlanningID),
		zap.Int("warnings", len(res.Warnings)),
	)
	return &res, nil
}

// DeleteShift removes a shift from a non-published month.
func (s *Service) DeleteShift(ctx context.Context, shiftID string) error {
	err := s.withShift(ctx, shiftID, func(st Store, shift *Shift, sched *MonthSchedule) error {
		return s.deleteIn(ctx, st, shift, sched)
	})
	if err != nil {
		return err
	}
	s.logger.Info("shift deleted", zap.String("shift_id", shiftID))
	return nil
}

func (s *Service) deleteIn(ctx context.Context, st Store, shift *Shift, sched *MonthSchedule) error {
	if sched.IsPublished() {
		return ErrSchedulePublished
	}
	return st.DeleteShift(ctx, shift.ID)
}

// checkEditable rejects edits of published months and cancelled shifts.
func checkEditable(shift *Shift, sched *MonthSchedule) error {
	if sched.IsPublished() {
		return ErrSchedulePublished
	}
	if shift.Status == ShiftCancelled {
		return ErrShiftCancelled
	}
	return nil
}

// =============================================================================
// WARNINGS
// =============================================================================

// shiftWarnings computes availability and balance warnings for an assigned
// shift. Unassigned and cancelled shifts have none.
func (s *Service) shiftWarnings(ctx context.Context, st Store, shift Shift) ([]Warning, error) {
	if !shift.IsAssigned() || shift.Status == ShiftCancelled {
		return []Warning{}, nil
	}
	warnings, err := s.conflictWarnings(ctx, st, shift)
	if err != nil {
		return nil, err
	}
	w, err := s.balanceWarning(ctx, st, shift)
	if err != nil {
		return nil, err
	}
	if w != nil {
		warnings = append(warnings, *w)
	}
	return warnings, nil
}

func (s *Service) conflictWarnings(ctx context.Context, st Store, shift Shift) ([]Warning, error) {
	userID := shift.Assignee()
	busy, err := NewAvailabilityResolver(st, s.loc).Resolve(ctx, userID, shift.Start, shift.End)
	if err != nil {
		return nil, err
	}

	warnings := []Warning{}
	for _, b := range busy {
		if b.Source == SourceShift && b.RefID == shift.ID {
			continue
		}
		warnings = append(warnings, Warning{
			Type:          conflictType(b.Source),
			Message:       conflictMessage(b, s.loc),
			Severity:      SeverityWarning,
			AffectationID: shift.ID,
			UserID:        userID,
		})
	}
	return warnings, nil
}

func conflictType(src BusySource) WarningType {
	switch src {
	case SourceAbsence:
		return WarnAbsenceConflict
	case SourceAppointment:
		return WarnAppointmentConflict
	case SourceOnCall:
		return WarnOnCallConflict
	case SourceShift:
		return WarnShiftOverlap
	}
	return WarnShiftOverlap
}

func conflictMessage(b BusyInterval, loc *time.Location) string {
	const layout = "2006-01-02 15:04"
	span := b.Start.In(loc).Format(layout) + " - " + b.End.In(loc).Format(layout)
	switch b.Source {
	case SourceAbsence:
		last := b.End.In(loc).AddDate(0, 0, -1)
		return fmt.Sprintf("User is away: %s from %s to %s",
			b.Label, b.Start.In(loc).Format(time.DateOnly), last.Format(time.DateOnly))
	case SourceAppointment:
		return fmt.Sprintf("User has an appointment %q (%s)", b.Label, span)
	case SourceOnCall:
		return fmt.Sprintf("User is on call (%s)", span)
	case SourceShift:
		return fmt.Sprintf("User already works %s (%s)", b.Label, span)
	}
	return b.Label
}

func (s *Service) balanceWarning(ctx context.Context, st Store, shift Shift) (*Warning, error) {
	projected, err := s.projectedBalance(ctx, st, shift)
	if err != nil {
		if errors.Is(err, counter.ErrNoAllocation) {
			return &Warning{
				Type:          WarnInsufficientBalance,
				Message:       "No counter can be created for the assignee: no allocation configured",
				Severity:      SeverityWarning,
				AffectationID: shift.ID,
				UserID:        shift.Assignee(),
			}, nil
		}
		return nil, err
	}
	if !projected.IsNegative() {
		return nil, nil
	}
	return &Warning{
		Type: WarnInsufficientBalance,
		Message: fmt.Sprintf("Annual counter %s would drop to %s days",
			s.counterKeyFor(shift).PeriodKey, projected.String()),
		Severity:      SeverityWarning,
		AffectationID: shift.ID,
		UserID:        shift.Assignee(),
	}, nil
}

// projectedBalance is the assignee's annual remaining after every pending
// shift of the year, this one included, is deducted.
func (s *Service) projectedBalance(ctx context.Context, st Store, shift Shift) (decimal.Decimal, error) {
	key := s.counterKeyFor(shift)
	c, err := s.ledger.Peek(ctx, st, key)
	if err != nil {
		return decimal.Zero, err
	}
	bounds, err := s.ledger.Periods().Bounds(counter.KindAnnual, key.PeriodKey)
	if err != nil {
		return decimal.Zero, err
	}

	from := StartOfDay(bounds.Start, s.loc)
	to := StartOfDay(bounds.End, s.loc).AddDate(0, 0, 1)
	others, err := st.FindOverlappingShifts(ctx, key.UserID, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	projected := c.Remaining()
	for _, o := range others {
		if o.ID == shift.ID || !isPending(o) || o.Start.Before(from) || !o.Start.Before(to) {
			continue
		}
		projected = projected.Sub(WorkingDays(o.Start, o.End, o.Type, s.loc))
	}
	if isPending(shift) {
		projected = projected.Sub(WorkingDays(shift.Start, shift.End, shift.Type, s.loc))
	}
	return projected, nil
}

// isPending reports whether the shift will still be deducted at publication.
func isPending(sh Shift) bool {
	return sh.IsAssigned() && sh.Status != ShiftCancelled && !sh.IsDeducted()
}
