package planning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/keylock"
)

// =============================================================================
// SERVICE - wiring of the engine components
// =============================================================================

// Service exposes the planning operations: availability, template
// application, assignment, validation, publication and batch edits.
//
// Concurrency: every operation that mutates the shifts of a month holds the
// per-(villa, year, month) lock for its whole duration, then works inside a
// single store transaction. Counter mutations go through the Ledger, which
// serializes per counter, and are never issued from inside a store
// transaction. Lock order is therefore month lock, then store transaction
// or counter lock. On-call periods form one roster guarded by onCall, so the
// overlap check and the write it guards cannot interleave.
type Service struct {
	store  Store
	ledger *counter.Ledger
	months *keylock.Map[MonthKey]
	onCall sync.Mutex
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the engine.
func NewService(store Store, ledger *counter.Ledger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		months: keylock.New[MonthKey](),
		loc:    time.UTC,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the planning time zone.
func (s *Service) Location() *time.Location { return s.loc }

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// Ledger returns the counter ledger.
func (s *Service) Ledger() *counter.Ledger { return s.ledger }

// =============================================================================
// HELPERS
// =============================================================================

func newID() string { return uuid.NewString() }

func (s *Service) timestamp() time.Time { return s.now().UTC() }

// lockMonth takes the lock of one month schedule.
func (s *Service) lockMonth(key MonthKey) func() {
	return s.months.Lock(key)
}

// lockMonths takes several month locks in a deterministic order.
func (s *Service) lockMonths(keys []MonthKey) func() {
	return s.months.LockAll(keys, MonthKey.Compare)
}

// withShift runs fn on a shift and its schedule under the month lock and
// inside a store transaction. The shift is reloaded after the lock is held.
func (s *Service) withShift(ctx context.Context, shiftID string, fn func(st Store, shift *Shift, sched *MonthSchedule) error) error {
	shift, err := s.store.GetShift(ctx, shiftID)
	if err != nil {
		return err
	}
	sched, err := s.store.GetSchedule(ctx, shift.PlanningID)
	if err != nil {
		return err
	}

	unlock := s.lockMonth(sched.Key())
	defer unlock()

	return s.store.WithTx(ctx, func(st Store) error {
		shift, err := st.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		sched, err := st.GetSchedule(ctx, shift.PlanningID)
		if err != nil {
			return err
		}
		return fn(st, shift, sched)
	})
}

// findOrCreateSchedule returns the schedule for key, creating a draft one
// when absent. The caller holds the month lock.
func (s *Service) findOrCreateSchedule(ctx context.Context, st Store, key MonthKey) (*MonthSchedule, bool, error) {
	sched, err := st.FindSchedule(ctx, key)
	if err == nil {
		return sched, false, nil
	}
	if !errors.Is(err, ErrScheduleNotFound) {
		return nil, false, err
	}
	now := s.timestamp()
	created := MonthSchedule{
		ID:        newID(),
		VillaID:   key.VillaID,
		Year:      key.Year,
		Month:     key.Month,
		Status:    ScheduleDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.SaveSchedule(ctx, created); err != nil {
		return nil, false, err
	}
	return &created, true, nil
}

// counterKeyFor is the counter a shift deducts from: the annual counter of
// the year the shift starts in.
func (s *Service) counterKeyFor(shift Shift) counter.Key {
	return counter.Key{
		UserID:    shift.Assignee(),
		Kind:      counter.KindAnnual,
		PeriodKey: s.ledger.Periods().KeyFor(counter.KindAnnual, shift.Start),
	}
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
