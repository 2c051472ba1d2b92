package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
)

// =============================================================================
// COUNTERS
// =============================================================================

const counterColumns = `id, user_id, kind, period_key, allocated, consumed, adjustment, carried_over,
	rolled_over_at, created_at, updated_at`

func scanCounter(r scanner) (counter.Counter, error) {
	var (
		c                       counter.Counter
		kind                    string
		allocated, consumed     string
		adjustment, carriedOver string
		rolledOverAt            sql.NullString
		created, updated        string
	)
	if err := r.Scan(&c.ID, &c.UserID, &kind, &c.PeriodKey, &allocated, &consumed, &adjustment, &carriedOver,
		&rolledOverAt, &created, &updated); err != nil {
		return c, err
	}
	var d decoder
	c.Kind = counter.Kind(kind)
	c.Allocated = d.decimal("allocated", allocated)
	c.Consumed = d.decimal("consumed", consumed)
	c.Adjustment = d.decimal("adjustment", adjustment)
	c.CarriedOver = d.decimal("carried_over", carriedOver)
	c.RolledOverAt = d.timePtr("rolled_over_at", rolledOverAt)
	c.CreatedAt = d.time("created_at", created)
	c.UpdatedAt = d.time("updated_at", updated)
	return c, d.err
}

func (s *Store) GetCounter(ctx context.Context, key counter.Key) (*counter.Counter, error) {
	c, err := scanCounter(s.queryRow(ctx,
		`SELECT `+counterColumns+` FROM counters WHERE user_id = ? AND kind = ? AND period_key = ?`,
		key.UserID, string(key.Kind), key.PeriodKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &counter.KeyError{Key: key, Err: counter.ErrCounterNotFound}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCounters(ctx context.Context, userID string) ([]counter.Counter, error) {
	return queryAll(ctx, s, scanCounter,
		`SELECT `+counterColumns+` FROM counters WHERE user_id = ? ORDER BY kind, period_key`, userID)
}

func (s *Store) ListCountersByPeriod(ctx context.Context, kind counter.Kind, periodKey string) ([]counter.Counter, error) {
	return queryAll(ctx, s, scanCounter,
		`SELECT `+counterColumns+` FROM counters WHERE kind = ? AND period_key = ? ORDER BY user_id`,
		string(kind), periodKey)
}

// SaveCounter upserts by id. A second counter for the same key is refused.
func (s *Store) SaveCounter(ctx context.Context, c counter.Counter) error {
	err := s.exec(ctx, `
		INSERT INTO counters (`+counterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			allocated = excluded.allocated,
			consumed = excluded.consumed,
			adjustment = excluded.adjustment,
			carried_over = excluded.carried_over,
			rolled_over_at = excluded.rolled_over_at,
			updated_at = excluded.updated_at`,
		c.ID, c.UserID, string(c.Kind), c.PeriodKey,
		c.Allocated.String(), c.Consumed.String(), c.Adjustment.String(), c.CarriedOver.String(),
		nullTime(c.RolledOverAt), formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("counter %s: %w", c.Key(), planning.ErrDuplicate)
	}
	return err
}

// =============================================================================
// MUTATIONS - append-only
// =============================================================================

const mutationColumns = `id, counter_id, user_id, kind, period_key, operation, amount,
	consumed_before, consumed_after, remaining_before, remaining_after,
	reference, reason, idempotency_key, created_at`

func scanMutation(r scanner) (counter.Mutation, error) {
	var (
		m                               counter.Mutation
		kind, op                        string
		amount                          string
		consumedBefore, consumedAfter   string
		remainingBefore, remainingAfter string
		idempotencyKey                  sql.NullString
		created                         string
	)
	if err := r.Scan(&m.ID, &m.CounterID, &m.UserID, &kind, &m.PeriodKey, &op, &amount,
		&consumedBefore, &consumedAfter, &remainingBefore, &remainingAfter,
		&m.Reference, &m.Reason, &idempotencyKey, &created); err != nil {
		return m, err
	}
	var d decoder
	m.Kind = counter.Kind(kind)
	m.Operation = counter.Operation(op)
	m.Amount = d.decimal("amount", amount)
	m.ConsumedBefore = d.decimal("consumed_before", consumedBefore)
	m.ConsumedAfter = d.decimal("consumed_after", consumedAfter)
	m.RemainingBefore = d.decimal("remaining_before", remainingBefore)
	m.RemainingAfter = d.decimal("remaining_after", remainingAfter)
	m.IdempotencyKey = idempotencyKey.String
	m.CreatedAt = d.time("created_at", created)
	return m, d.err
}

func (s *Store) ListMutations(ctx context.Context, counterID string) ([]counter.Mutation, error) {
	return queryAll(ctx, s, scanMutation,
		`SELECT `+mutationColumns+` FROM counter_mutations WHERE counter_id = ? ORDER BY seq`, counterID)
}

func (s *Store) MutationExists(ctx context.Context, idempotencyKey string) (bool, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM counter_mutations WHERE idempotency_key = ?`, idempotencyKey).Scan(&n)
	return n > 0, err
}

// AppendMutation inserts an audit entry after the counter's last one.
func (s *Store) AppendMutation(ctx context.Context, m counter.Mutation) error {
	var idem sql.NullString
	if m.IdempotencyKey != "" {
		idem = sql.NullString{String: m.IdempotencyKey, Valid: true}
	}
	err := s.exec(ctx, `
		INSERT INTO counter_mutations (`+mutationColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM counter_mutations WHERE counter_id = ?))`,
		m.ID, m.CounterID, m.UserID, string(m.Kind), m.PeriodKey, string(m.Operation), m.Amount.String(),
		m.ConsumedBefore.String(), m.ConsumedAfter.String(), m.RemainingBefore.String(), m.RemainingAfter.String(),
		m.Reference, m.Reason, idem, formatTime(m.CreatedAt), m.CounterID)
	if isUniqueViolation(err) && idem.Valid {
		return counter.ErrDuplicateIdempotencyKey
	}
	return err
}
