/*
batch.go - Batch Mutation Processor

PURPOSE:
  Applies an ordered list of shift edits in one request. Items run in order
  and each sees the effects of the ones before it (a delete followed by an
  update of the same shift fails the update with not-found).

ISOLATE AND CONTINUE:
  Every item runs in its own savepoint inside the batch transaction. A
  failing item is rolled back alone and reported as an item_failed warning;
  the batch keeps going and commits everything that succeeded in a single
  flush at the end.

LOCKING:
  The months touched by the batch are resolved up front and locked together
  in sorted order before the transaction starts. An item whose shift cannot
  be found up front still runs, and fails inside the transaction.
*/
package planning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ChangeType is the kind of a batch item.
type ChangeType string

const (
	ChangeAssign ChangeType = "assign"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

func (t ChangeType) IsValid() bool {
	return t == ChangeAssign || t == ChangeUpdate || t == ChangeDelete
}

// BatchData carries the fields of one change. Nil fields are left alone.
type BatchData struct {
	UserID  *string
	StartAt *time.Time
	EndAt   *time.Time
	Type    *ShiftType
	Status  *ShiftStatus
	Comment *string
}

// BatchChange is one batch item.
type BatchChange struct {
	AffectationID string
	Type          ChangeType
	Data          BatchData
}

// BatchResult is the outcome of ProcessBatch.
type BatchResult struct {
	Processed int
	Warnings  []Warning
}

// ProcessBatch applies changes in order. Item failures never fail the batch;
// only a storage error on commit does.
func (s *Service) ProcessBatch(ctx context.Context, changes []BatchChange) (*BatchResult, error) {
	keys := make([]MonthKey, 0, len(changes))
	seen := make(map[string]bool)
	for _, c := range changes {
		if seen[c.AffectationID] {
			continue
		}
		seen[c.AffectationID] = true
		shift, err := s.store.GetShift(ctx, c.AffectationID)
		if err != nil {
			continue
		}
		sched, err := s.store.GetSchedule(ctx, shift.PlanningID)
		if err != nil {
			continue
		}
		keys = append(keys, sched.Key())
	}
	unlock := s.lockMonths(keys)
	defer unlock()

	res := &BatchResult{Warnings: []Warning{}}
	err := s.store.WithTx(ctx, func(st Store) error {
		for i, c := range changes {
			var warnings []Warning
			err := st.WithTx(ctx, func(item Store) error {
				var err error
				warnings, err = s.applyChange(ctx, item, c)
				return err
			})
			if err != nil {
				if !IsClientError(err) && !IsNotFound(err) && !IsConflict(err) {
					s.logger.Warn("batch item failed",
						zap.Int("index", i),
						zap.String("affectation_id", c.AffectationID),
						zap.Error(err),
					)
				}
				res.Warnings = append(res.Warnings, Warning{
					Type:          WarnItemFailed,
					Message:       fmt.Sprintf("%s %s: %v", c.Type, c.AffectationID, err),
					Severity:      SeverityError,
					AffectationID: c.AffectationID,
				})
				continue
			}
			res.Processed++
			res.Warnings = append(res.Warnings, warnings...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch processed",
		zap.Int("items", len(changes)),
		zap.Int("processed", res.Processed),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

// applyChange runs one item against the item savepoint.
func (s *Service) applyChange(ctx context.Context, st Store, c BatchChange) ([]Warning, error) {
	if !c.Type.IsValid() {
		return nil, invalid("type", "unknown change type %q", c.Type)
	}
	if c.AffectationID == "" {
		return nil, invalid("affectationId", "is required")
	}
	shift, err := st.GetShift(ctx, c.AffectationID)
	if err != nil {
		return nil, err
	}
	sched, err := st.GetSchedule(ctx, shift.PlanningID)
	if err != nil {
		return nil, err
	}

	switch c.Type {
	case ChangeAssign:
		userID := ""
		if c.Data.UserID != nil {
			userID = *c.Data.UserID
		}
		return s.assignIn(ctx, st, shift, sched, userID)
	case ChangeDelete:
		return []Warning{}, s.deleteIn(ctx, st, shift, sched)
	default:
		return s.updateIn(ctx, st, shift, sched, c.Data)
	}
}

// updateIn applies the non-nil fields of d. Working days are recomputed
// whenever the range or the type changes.
func (s *Service) updateIn(ctx context.Context, st Store, shift *Shift, sched *MonthSchedule, d BatchData) ([]Warning, error) {
	if err := checkEditable(shift, sched); err != nil {
		return nil, err
	}

	next := *shift
	if d.UserID != nil {
		if *d.UserID != "" {
			if _, err := st.GetUser(ctx, *d.UserID); err != nil {
				return nil, err
			}
		}
		next.UserID = strPtr(*d.UserID)
	}
	if d.StartAt != nil {
		next.Start = *d.StartAt
	}
	if d.EndAt != nil {
		next.End = *d.EndAt
	}
	if !next.Start.Before(next.End) {
		return nil, ErrInvalidTimeRange
	}
	if MonthKeyFor(sched.VillaID, next.Start, s.loc) != sched.Key() {
		return nil, invalid("startAt", "shift must start within %04d-%02d", sched.Year, int(sched.Month))
	}
	if d.Type != nil {
		if !d.Type.IsValid() {
			return nil, invalid("type", "unknown shift type %q", *d.Type)
		}
		next.Type = *d.Type
	}
	if d.Status != nil {
		if !d.Status.IsValid() {
			return nil, invalid("status", "unknown shift status %q", *d.Status)
		}
		if !shift.Status.CanTransitionTo(*d.Status) {
			return nil, &TransitionError{Entity: "shift", From: string(shift.Status), To: string(*d.Status)}
		}
		next.Status = *d.Status
	}
	if d.Comment != nil {
		next.Comment = *d.Comment
	}

	next.WorkingDays = WorkingDays(next.Start, next.End, next.Type, s.loc)
	next.UpdatedAt = s.timestamp()
	if err := st.SaveShift(ctx, next); err != nil {
		return nil, err
	}
	*shift = next
	return s.shiftWarnings(ctx, st, next)
}
