package timeoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/keylock"
	"github.com/villacare/planning-engine/planning"
)

// =============================================================================
// ABSENCE SERVICE - Handles the absence lifecycle and its counter effects
// =============================================================================

// Service manages absences. Counter changes go through the Ledger with
// idempotency keys absence:<id>:deduct and absence:<id>:restore, so a
// retried approval or cancellation never counts twice.
type Service struct {
	store  planning.Store
	ledger *counter.Ledger
	locks  *keylock.Map[string]
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store planning.Store, ledger *counter.Ledger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		locks:  keylock.New[string](),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAbsence is the input of Create. Dates are inclusive calendar dates.
// DeductsCounter defaults to true for types that have a counter.
type NewAbsence struct {
	UserID         string
	Type           planning.AbsenceType
	StartDate      time.Time
	EndDate        time.Time
	Reason         string
	DeductsCounter *bool
}

// =============================================================================
// CREATE
// =============================================================================

// Create records a pending absence.
func (s *Service) Create(ctx context.Context, in NewAbsence) (*planning.Absence, error) {
	if !in.Type.IsValid() {
		return nil, &planning.ValidationError{Field: "type", Message: fmt.Sprintf("unknown absence type %q", in.Type)}
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, &planning.ValidationError{Field: "startDate", Message: "start and end dates are required"}
	}
	start, end := dateOnly(in.StartDate), dateOnly(in.EndDate)
	if end.Before(start) {
		return nil, planning.ErrInvalidTimeRange
	}

	_, hasCounter := CounterKind(in.Type)
	deducts := hasCounter
	if in.DeductsCounter != nil {
		deducts = *in.DeductsCounter
	}
	if deducts && !hasCounter {
		return nil, &planning.ValidationError{Field: "deductsCounter", Message: fmt.Sprintf("absence type %q has no counter", in.Type)}
	}

	unlock := s.locks.Lock("user:" + in.UserID)
	defer unlock()

	var out planning.Absence
	err := s.store.WithTx(ctx, func(st planning.Store) error {
		if _, err := st.GetUser(ctx, in.UserID); err != nil {
			return err
		}
		existing, err := st.ListAbsences(ctx, in.UserID)
		if err != nil {
			return err
		}
		for _, a := range existing {
			if a.Status != planning.AbsencePending && a.Status != planning.AbsenceApproved {
				continue
			}
			if !a.StartDate.After(end) && !a.EndDate.Before(start) {
				return fmt.Errorf("%w: %s to %s", ErrAbsenceOverlap,
					a.StartDate.Format(time.DateOnly), a.EndDate.Format(time.DateOnly))
			}
		}

		now := s.now().UTC()
		out = planning.Absence{
			ID:             uuid.NewString(),
			UserID:         in.UserID,
			Type:           in.Type,
			StartDate:      start,
			EndDate:        end,
			Status:         planning.AbsencePending,
			DeductsCounter: deducts,
			WorkingDays:    planning.WeekdaysBetween(start, end),
			Reason:         in.Reason,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return st.SaveAbsence(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns a user's absences, or every absence when userID is empty.
func (s *Service) List(ctx context.Context, userID string) ([]planning.Absence, error) {
	return s.store.ListAbsences(ctx, userID)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Approve approves a pending absence and takes its working days from the
// matching counter. The counter may go negative: an overdrawn balance is
// shown, not refused.
func (s *Service) Approve(ctx context.Context, id string) (*planning.Absence, error) {
	return s.transition(ctx, id, planning.AbsenceApproved, func(a planning.Absence) error {
		if !a.DeductsCounter || !a.WorkingDays.IsPositive() {
			return nil
		}
		_, err := s.ledger.Decrement(ctx, counter.Change{
			Key:            s.counterKey(a),
			Amount:         a.WorkingDays,
			Reference:      a.ID,
			Reason:         "absence approved",
			IdempotencyKey: fmt.Sprintf("absence:%s:deduct", a.ID),
		})
		return ignoreDuplicate(err)
	})
}

// Cancel cancels a pending or approved absence. An approved absence gives
// its days back.
func (s *Service) Cancel(ctx context.Context, id string) (*planning.Absence, error) {
	return s.transition(ctx, id, planning.AbsenceCancelled, func(a planning.Absence) error {
		if a.Status != planning.AbsenceApproved || !a.DeductsCounter || !a.WorkingDays.IsPositive() {
			return nil
		}
		_, err := s.ledger.Increment(ctx, counter.Change{
			Key:            s.counterKey(a),
			Amount:         a.WorkingDays,
			Reference:      a.ID,
			Reason:         "absence cancelled",
			IdempotencyKey: fmt.Sprintf("absence:%s:restore", a.ID),
		})
		return ignoreDuplicate(err)
	})
}

// Refuse refuses a pending absence.
func (s *Service) Refuse(ctx context.Context, id string) (*planning.Absence, error) {
	return s.transition(ctx, id, planning.AbsenceRefused, nil)
}

// transition runs effect with the absence as loaded, then saves the new
// status. The counter effect comes first: if saving fails, a retry finds the
// idempotency key already used and only saves.
func (s *Service) transition(ctx context.Context, id string, to planning.AbsenceStatus, effect func(planning.Absence) error) (*planning.Absence, error) {
	unlock := s.locks.Lock("absence:" + id)
	defer unlock()

	a, err := s.store.GetAbsence(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(a.Status, to) {
		return nil, &planning.TransitionError{Entity: "absence", From: string(a.Status), To: string(to)}
	}
	if effect != nil {
		if err := effect(*a); err != nil {
			return nil, err
		}
	}

	from := a.Status
	a.Status = to
	a.UpdatedAt = s.now().UTC()
	if err := s.store.SaveAbsence(ctx, *a); err != nil {
		return nil, err
	}
	s.logger.Info("absence status changed",
		zap.String("absence_id", id),
		zap.String("user_id", a.UserID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("working_days", a.WorkingDays.String()),
	)
	return a, nil
}

// counterKey is the counter an absence draws from. Callers check
// DeductsCounter first.
func (s *Service) counterKey(a planning.Absence) counter.Key {
	kind, _ := CounterKind(a.Type)
	return counter.Key{
		UserID:    a.UserID,
		Kind:      kind,
		PeriodKey: s.ledger.Periods().KeyFor(kind, a.StartDate),
	}
}

func ignoreDuplicate(err error) error {
	if errors.Is(err, counter.ErrDuplicateIdempotencyKey) {
		return nil
	}
	return err
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
