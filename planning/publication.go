/*
publication.go - Publication Workflow

STATE MACHINE:

    draft ──validate──▶ validated ──publish──▶ published
      ▲                    │                      │
      └───────reopen───────┴────────reopen────────┘

  publish is only reachable from validated. Publishing a published schedule
  is a conflict (ErrAlreadyPublished) and deducts nothing.

EXACTLY-ONCE DEDUCTION:
  For every assigned, non-cancelled shift not yet deducted, publish calls
  Ledger.Decrement with the idempotency key shift:<id>:deduct:<seq> and then
  stamps DeductedDays/DeductedAt on the shift. If a publish is interrupted
  halfway, the schedule is still validated; the retry skips stamped shifts
  and the idempotency key absorbs a deduction that landed before the stamp.

PARTIAL SUCCESS:
  A failing deduction (no allocation, storage error) is recorded as a
  DeductionFailure plus a counter_error warning. The publish still
  completes; nothing already deducted is rolled back.

REOPEN:
  Gives back every deducted shift's days (Increment, key
  shift:<id>:restore:<seq>), clears the stamps, bumps DeductionSeq and
  returns schedule and shifts to draft.
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

// PublishResult is the outcome of Publish.
type PublishResult struct {
	PlanningID  string
	PublishedAt time.Time
	Deducted    int
	TotalDays   decimal.Decimal
	Warnings    []Warning
	Failures    []DeductionFailure
}

// Publish moves a validated schedule to published and deducts each shift's
// working days from its assignee's annual counter exactly once.
func (s *Service) Publish(ctx context.Context, planningID string) (*PublishResult, error) {
	sched, err := s.store.GetSchedule(ctx, planningID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockMonth(sched.Key())
	defer unlock()

	// Reload under the lock: a concurrent publish may have finished.
	sched, err = s.store.GetSchedule(ctx, planningID)
	if err != nil {
		return nil, err
	}
	switch sched.Status {
	case SchedulePublished:
		return nil, ErrAlreadyPublished
	case ScheduleDraft:
		return nil, ErrNotValidated
	case ScheduleValidated:
	default:
		return nil, &TransitionError{Entity: "month schedule", From: string(sched.Status), To: string(SchedulePublished)}
	}

	report, err := s.buildReport(ctx, s.store, *sched)
	if err != nil {
		return nil, err
	}
	shifts, err := s.store.ListShiftsBySchedule(ctx, planningID)
	if err != nil {
		return nil, err
	}

	res := &PublishResult{
		PlanningID: planningID,
		TotalDays:  decimal.Zero,
		Warnings:   report.Warnings(),
		Failures:   []DeductionFailure{},
	}
	for _, sh := range shifts {
		if !isPending(sh) {
			continue
		}
		days, err := s.deduct(ctx, sh)
		if err != nil {
			res.Failures = append(res.Failures, DeductionFailure{
				AffectationID: sh.ID,
				UserID:        sh.Assignee(),
				Days:          days,
				Error:         err.Error(),
			})
			res.Warnings = append(res.Warnings, Warning{
				Type:          WarnCounterError,
				Message:       fmt.Sprintf("Counter deduction failed: %v", err),
				Severity:      SeverityError,
				AffectationID: sh.ID,
				UserID:        sh.Assignee(),
			})
			continue
		}
		res.Deducted++
		res.TotalDays = res.TotalDays.Add(days)
	}

	now := s.timestamp()
	res.PublishedAt = now
	err = s.store.WithTx(ctx, func(st Store) error {
		sched, err := st.GetSchedule(ctx, planningID)
		if err != nil {
			return err
		}
		sched.Status = SchedulePublished
		sched.PublishedAt = &now
		sched.UpdatedAt = now
		if err := st.SaveSchedule(ctx, *sched); err != nil {
			return err
		}
		return st.SavePublication(ctx, Publication{
			ID:          newID(),
			PlanningID:  planningID,
			PublishedAt: now,
			Deducted:    res.Deducted,
			TotalDays:   res.TotalDays,
			Warnings:    res.Warnings,
			Failures:    res.Failures,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("month schedule published",
		zap.String("planning_id", planningID),
		zap.Int("deducted", res.Deducted),
		zap.String("total_days", res.TotalDays.String()),
		zap.Int("warnings", len(res.Warnings)),
		zap.Int("failures", len(res.Failures)),
	)
	return res, nil
}

// deduct takes one shift's working days from its counter and stamps the
// shift. The caller holds the month lock.
func (s *Service) deduct(ctx context.Context, sh Shift) (decimal.Decimal, error) {
	days := WorkingDays(sh.Start, sh.End, sh.Type, s.loc)
	if !days.Equal(sh.WorkingDays) {
		s.logger.Warn("working days drift corrected at publication",
			zap.String("shift_id", sh.ID),
			zap.String("stored", sh.WorkingDays.String()),
			zap.String("recomputed", days.String()),
		)
	}

	if days.IsPositive() {
		_, err := s.ledger.Decrement(ctx, counter.Change{
			Key:            s.counterKeyFor(sh),
			Amount:         days,
			Reference:      sh.ID,
			Reason:         "shift publication",
			IdempotencyKey: fmt.Sprintf("shift:%s:deduct:%d", sh.ID, sh.DeductionSeq),
		})
		if err != nil && !errors.Is(err, counter.ErrDuplicateIdempotencyKey) {
			return days, err
		}
	}

	now := s.timestamp()
	sh.WorkingDays = days
	sh.DeductedDays = days
	sh.DeductedAt = &now
	sh.UpdatedAt = now
	if err := s.store.SaveShift(ctx, sh); err != nil {
		return days, fmt.Errorf("stamp shift: %w", err)
	}
	return days, nil
}

// ReopenResult is the outcome of Reopen.
type ReopenResult struct {
	PlanningID string
	Restored   int
	TotalDays  decimal.Decimal
	Failures   []DeductionFailure
}

// Reopen returns a validated or published schedule to draft. Deductions of
// a published schedule are given back first.
func (s *Service) Reopen(ctx context.Context, planningID string) (*ReopenResult, error) {
	sched, err := s.store.GetSchedule(ctx, planningID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockMonth(sched.Key())
	defer unlock()

	sched, err = s.store.GetSchedule(ctx, planningID)
	if err != nil {
		return nil, err
	}
	if sched.Status == ScheduleDraft {
		return nil, &TransitionError{Entity: "month schedule", From: string(ScheduleDraft), To: string(ScheduleDraft)}
	}

	shifts, err := s.store.ListShiftsBySchedule(ctx, planningID)
	if err != nil {
		return nil, err
	}

	res := &ReopenResult{PlanningID: planningID, TotalDays: decimal.Zero, Failures: []DeductionFailure{}}
	for _, sh := range shifts {
		if !sh.IsDeducted() {
			continue
		}
		if sh.DeductedDays.IsPositive() && sh.IsAssigned() {
			_, err := s.ledger.Increment(ctx, counter.Change{
				Key:            s.counterKeyFor(sh),
				Amount:         sh.DeductedDays,
				Reference:      sh.ID,
				Reason:         "schedule reopened",
				IdempotencyKey: fmt.Sprintf("shift:%s:restore:%d", sh.ID, sh.DeductionSeq),
			})
			if err != nil && !errors.Is(err, counter.ErrDuplicateIdempotencyKey) {
				res.Failures = append(res.Failures, DeductionFailure{
					AffectationID: sh.ID,
					UserID:        sh.Assignee(),
					Days:          sh.DeductedDays,
					Error:         err.Error(),
				})
				continue
			}
		}
		res.Restored++
		res.TotalDays = res.TotalDays.Add(sh.DeductedDays)
		sh.DeductedDays = decimal.Zero
		sh.DeductedAt = nil
		sh.DeductionSeq++
		sh.UpdatedAt = s.timestamp()
		if err := s.store.SaveShift(ctx, sh); err != nil {
			return nil, err
		}
	}
	if len(res.Failures) > 0 {
		// Stay published: the remaining deductions still hold.
		return res, fmt.Errorf("%d deductions could not be restored: %w", len(res.Failures), ErrInvalidTransition)
	}

	err = s.store.WithTx(ctx, func(st Store) error {
		shifts, err := st.ListShiftsBySchedule(ctx, planningID)
		if err != nil {
			return err
		}
		now := s.timestamp()
		for _, sh := range shifts {
			if !sh.Status.canReopen() || sh.Status == ShiftCancelled {
				continue
			}
			sh.Status = ShiftDraft
			sh.UpdatedAt = now
			if err := st.SaveShift(ctx, sh); err != nil {
				return err
			}
		}
		sched.Status = ScheduleDraft
		sched.ValidatedAt = nil
		sched.PublishedAt = nil
		sched.UpdatedAt = now
		return st.SaveSchedule(ctx, *sched)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("month schedule reopened",
		zap.String("planning_id", planningID),
		zap.Int("restored", res.Restored),
		zap.String("total_days", res.TotalDays.String()),
	)
	return res, nil
}

// Publications lists the publish audit records of a schedule.
func (s *Service) Publications(ctx context.Context, planningID string) ([]Publication, error) {
	if _, err := s.store.GetSchedule(ctx, planningID); err != nil {
		return nil, err
	}
	return s.store.ListPublications(ctx, planningID)
}
