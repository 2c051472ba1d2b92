/*
ledger.go - The only mutation entry points for counters

PURPOSE:
  Decrement, Increment, Adjust and RollToNewPeriod are the contract through
  which balances change. Each call:
    1. takes the per-(user, kind, period) lock
    2. opens a store transaction
    3. lazily creates the counter with its configured allocation
    4. applies the change and appends a Mutation with before/after values
    5. logs the change

SERIALIZATION:
  A publish fans out one decrement per shift, many of them hitting the same
  counter. The keyed lock makes those read-modify-write cycles sequential, so
  no deduction is lost. Locks are taken before the store transaction and
  callers must not call the Ledger from inside their own store transaction.

IDEMPOTENCY:
  A Change may carry an IdempotencyKey. A key seen before returns
  ErrDuplicateIdempotencyKey and leaves the counter untouched, which lets
  the publication workflow retry a half-finished publish safely.

SEE ALSO:
  - types.go: Counter, Mutation
  - planning/publication.go: deducts shift working days
  - timeoff/absence.go: deducts and restores leave days
*/
package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/villacare/planning-engine/keylock"
)

// Allocation configures lazily created counters.
type Allocation struct {
	AnnualDays   decimal.Decimal
	PeriodicDays decimal.Decimal

	// MaxCarryover caps RollToNewPeriod. Zero means no cap.
	MaxCarryover decimal.Decimal
}

// For returns the allocation of kind.
func (a Allocation) For(kind Kind) decimal.Decimal {
	if kind == KindAnnual {
		return a.AnnualDays
	}
	return a.PeriodicDays
}

// Ledger applies counter mutations.
type Ledger struct {
	store   Store
	periods Periods
	alloc   Allocation
	locks   *keylock.Map[Key]
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger creates a ledger on top of store.
func NewLedger(store Store, periods Periods, alloc Allocation, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		periods: periods,
		alloc:   alloc,
		locks:   keylock.New[Key](),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Periods returns the period calculator used for keys.
func (l *Ledger) Periods() Periods { return l.periods }

// Allocation returns the configured allocation.
func (l *Ledger) Allocation() Allocation { return l.alloc }

// =============================================================================
// READS
// =============================================================================

// GetOrCreate returns the counter for key, creating it with the configured
// allocation when absent. This is the single place counters are created.
func (l *Ledger) GetOrCreate(ctx context.Context, key Key) (*Counter, error) {
	if err := l.validateKey(key); err != nil {
		return nil, err
	}
	unlock := l.locks.Lock(key)
	defer unlock()

	var out *Counter
	err := l.store.WithCounterTx(ctx, func(st Store) error {
		c, err := l.getOrCreateIn(ctx, st, key)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Peek returns the counter for key as it stands, or the counter GetOrCreate
// would create, without persisting anything. Use it on read paths.
func (l *Ledger) Peek(ctx context.Context, r Reader, key Key) (Counter, error) {
	if err := l.validateKey(key); err != nil {
		return Counter{}, err
	}
	c, err := r.GetCounter(ctx, key)
	if err == nil {
		return *c, nil
	}
	if !errors.Is(err, ErrCounterNotFound) {
		return Counter{}, err
	}
	allocated := l.alloc.For(key.Kind)
	if !allocated.IsPositive() {
		return Counter{}, &KeyError{Key: key, Err: ErrNoAllocation}
	}
	return Counter{
		UserID:    key.UserID,
		Kind:      key.Kind,
		PeriodKey: key.PeriodKey,
		Allocated: allocated,
	}, nil
}

// Counters lists a user's persisted counters.
func (l *Ledger) Counters(ctx context.Context, userID string) ([]Counter, error) {
	return l.store.ListCounters(ctx, userID)
}

// Mutations returns the audit trail of the counter at key.
func (l *Ledger) Mutations(ctx context.Context, key Key) ([]Mutation, error) {
	c, err := l.store.GetCounter(ctx, key)
	if err != nil {
		return nil, err
	}
	return l.store.ListMutations(ctx, c.ID)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Decrement consumes amount days from the counter.
// Consumed may exceed Earned: an overdrawn counter is reported, not refused.
func (l *Ledger) Decrement(ctx context.Context, ch Change) (*Mutation, error) {
	if !ch.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: decrement of %s", ErrInvalidAmount, ch.Amount)
	}
	return l.mutate(ctx, ch, OpDecrement, func(c *Counter) error {
		c.Consumed = c.Consumed.Add(ch.Amount)
		return nil
	})
}

// Increment gives back amount days. Consumed is clamped at zero, so restoring
// more than was consumed is harmless.
func (l *Ledger) Increment(ctx context.Context, ch Change) (*Mutation, error) {
	if !ch.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: increment of %s", ErrInvalidAmount, ch.Amount)
	}
	return l.mutate(ctx, ch, OpIncrement, func(c *Counter) error {
		c.Consumed = decimal.Max(decimal.Zero, c.Consumed.Sub(ch.Amount))
		return nil
	})
}

// Adjust applies a signed administrative correction to a periodic counter.
func (l *Ledger) Adjust(ctx context.Context, ch Change) (*Mutation, error) {
	if ch.Key.Kind != KindPeriodic {
		return nil, &KeyError{Key: ch.Key, Err: ErrAdjustmentNotSupported}
	}
	if ch.Amount.IsZero() {
		return nil, fmt.Errorf("%w: zero adjustment", ErrInvalidAmount)
	}
	return l.mutate(ctx, ch, OpAdjust, func(c *Counter) error {
		c.Adjustment = c.Adjustment.Add(ch.Amount)
		return nil
	})
}

func (l *Ledger) mutate(ctx context.Context, ch Change, op Operation, apply func(*Counter) error) (*Mutation, error) {
	if err := l.validateKey(ch.Key); err != nil {
		return nil, err
	}
	unlock := l.locks.Lock(ch.Key)
	defer unlock()

	var out Mutation
	err := l.store.WithCounterTx(ctx, func(st Store) error {
		if ch.IdempotencyKey != "" {
			exists, err := st.MutationExists(ctx, ch.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}

		c, err := l.getOrCreateIn(ctx, st, ch.Key)
		if err != nil {
			return err
		}
		before := *c
		if err := apply(c); err != nil {
			return err
		}
		c.UpdatedAt = l.now().UTC()
		if err := st.SaveCounter(ctx, *c); err != nil {
			return fmt.Errorf("save counter: %w", err)
		}

		out = l.newMutation(op, before, *c, ch)
		return st.AppendMutation(ctx, out)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("counter mutated",
		zap.String("operation", string(op)),
		zap.String("user_id", ch.Key.UserID),
		zap.String("kind", string(ch.Key.Kind)),
		zap.String("period", ch.Key.PeriodKey),
		zap.String("amount", ch.Amount.String()),
		zap.String("consumed_before", out.ConsumedBefore.String()),
		zap.String("consumed_after", out.ConsumedAfter.String()),
		zap.String("remaining_before", out.RemainingBefore.String()),
		zap.String("remaining_after", out.RemainingAfter.String()),
		zap.String("reference", ch.Reference),
	)
	return &out, nil
}

// =============================================================================
// ROLL TO NEW PERIOD
// =============================================================================

// RollToNewPeriod closes the periodic counter fromKey of a user and opens the
// next period with the remaining balance as its carried-over amount.
// A negative remaining carries forward as debt. MaxCarryover caps positive
// balances; the excess is forfeited.
func (l *Ledger) RollToNewPeriod(ctx context.Context, userID, fromKey string) (*RolloverResult, error) {
	from := Key{UserID: userID, Kind: KindPeriodic, PeriodKey: fromKey}
	if err := l.validateKey(from); err != nil {
		return nil, err
	}
	toKey, err := l.periods.Next(KindPeriodic, fromKey)
	if err != nil {
		return nil, err
	}
	to := Key{UserID: userID, Kind: KindPeriodic, PeriodKey: toKey}

	unlock := l.locks.LockAll([]Key{from, to}, Key.Compare)
	defer unlock()

	result := &RolloverResult{UserID: userID, FromKey: fromKey, ToKey: toKey}
	err = l.store.WithCounterTx(ctx, func(st Store) error {
		src, err := st.GetCounter(ctx, from)
		if err != nil {
			return &KeyError{Key: from, Err: err}
		}
		if src.RolledOverAt != nil {
			return &KeyError{Key: from, Err: ErrAlreadyRolledOver}
		}

		remaining := src.Remaining()
		carried := remaining
		if l.alloc.MaxCarryover.IsPositive() && carried.GreaterThan(l.alloc.MaxCarryover) {
			carried = l.alloc.MaxCarryover
		}
		result.Remaining = remaining
		result.CarriedOver = carried
		result.Forfeited = remaining.Sub(carried)

		dst, err := l.getOrCreateIn(ctx, st, to)
		if err != nil {
			return err
		}

		now := l.now().UTC()
		srcBefore, dstBefore := *src, *dst
		src.RolledOverAt = &now
		src.UpdatedAt = now
		dst.CarriedOver = dst.CarriedOver.Add(carried)
		dst.UpdatedAt = now

		if err := st.SaveCounter(ctx, *src); err != nil {
			return err
		}
		if err := st.SaveCounter(ctx, *dst); err != nil {
			return err
		}

		reason := fmt.Sprintf("rollover %s -> %s", fromKey, toKey)
		out := l.newMutation(OpRolloverOut, srcBefore, *src, Change{Key: from, Amount: carried, Reason: reason, Reference: dst.ID})
		in := l.newMutation(OpRolloverIn, dstBefore, *dst, Change{Key: to, Amount: carried, Reason: reason, Reference: src.ID})
		if err := st.AppendMutation(ctx, out); err != nil {
			return err
		}
		return st.AppendMutation(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("counter rolled over",
		zap.String("user_id", userID),
		zap.String("from", fromKey),
		zap.String("to", toKey),
		zap.String("carried_over", result.CarriedOver.String()),
		zap.String("forfeited", result.Forfeited.String()),
	)
	return result, nil
}

// RollAll rolls every periodic counter of fromKey that has not been rolled
// yet. Failures are collected per user; one failure does not stop the rest.
func (l *Ledger) RollAll(ctx context.Context, fromKey string) ([]RolloverResult, map[string]error, error) {
	counters, err := l.store.ListCountersByPeriod(ctx, KindPeriodic, fromKey)
	if err != nil {
		return nil, nil, err
	}

	var results []RolloverResult
	failures := make(map[string]error)
	for _, c := range counters {
		if c.RolledOverAt != nil {
			continue
		}
		res, err := l.RollToNewPeriod(ctx, c.UserID, fromKey)
		if err != nil {
			failures[c.UserID] = err
			continue
		}
		results = append(results, *res)
	}
	return results, failures, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Ledger) validateKey(key Key) error {
	if key.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidKey)
	}
	return l.periods.Validate(key.Kind, key.PeriodKey)
}

// getOrCreateIn must be called with the key lock held and inside st's transaction.
func (l *Ledger) getOrCreateIn(ctx context.Context, st Store, key Key) (*Counter, error) {
	c, err := st.GetCounter(ctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCounterNotFound) {
		return nil, err
	}

	allocated := l.alloc.For(key.Kind)
	if !allocated.IsPositive() {
		return nil, &KeyError{Key: key, Err: ErrNoAllocation}
	}

	now := l.now().UTC()
	created := Counter{
		ID:        uuid.NewString(),
		UserID:    key.UserID,
		Kind:      key.Kind,
		PeriodKey: key.PeriodKey,
		Allocated: allocated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.SaveCounter(ctx, created); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	m := l.newMutation(OpCreate, Counter{Kind: key.Kind}, created, Change{Key: key, Amount: allocated, Reason: "lazy creation"})
	if err := st.AppendMutation(ctx, m); err != nil {
		return nil, err
	}
	l.logger.Debug("counter created", zap.String("key", key.String()), zap.String("allocated", allocated.String()))
	return &created, nil
}

func (l *Ledger) newMutation(op Operation, before, after Counter, ch Change) Mutation {
	return Mutation{
		ID:              uuid.NewString(),
		CounterID:       after.ID,
		UserID:          after.UserID,
		Kind:            after.Kind,
		PeriodKey:       after.PeriodKey,
		Operation:       op,
		Amount:          ch.Amount,
		ConsumedBefore:  before.Consumed,
		ConsumedAfter:   after.Consumed,
		RemainingBefore: before.Remaining(),
		RemainingAfter:  after.Remaining(),
		Reference:       ch.Reference,
		Reason:          ch.Reason,
		IdempotencyKey:  ch.IdempotencyKey,
		CreatedAt:       l.now().UTC(),
	}
}
