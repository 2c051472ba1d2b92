/*
Package counter implements the day-counter store: per-user, per-period
balances of allocated versus consumed days.

PURPOSE:
  Shifts consume days from an educator's annual counter when a month is
  published; leave absences consume days from the periodic (season-spanning)
  counter. This package owns those balances and nothing else: it has no
  knowledge of shifts, villas or absences.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: annual ("2026") or periodic ("2025-2026") counter
  - Key: the unique (user, kind, period) identity of a counter
  - Counter: allocated, consumed, adjustment and carried-over amounts
  - Mutation: an audit entry with before/after values for every change

INVARIANTS:
  1. At most one counter exists per Key (enforced by GetOrCreate)
  2. Consumed is never negative; Increment clamps at zero
  3. Fields are never overwritten directly; every change goes through the
     Ledger and leaves a Mutation behind

REMAINING:
  annual:   allocated - consumed
  periodic: allocated + carriedOver - consumed + adjustment

SEE ALSO:
  - ledger.go: the only mutation entry points
  - period.go: period keys and boundaries
  - store.go: persistence contract
*/
package counter

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KIND & KEY
// =============================================================================

// Kind distinguishes the two counter families.
type Kind string

const (
	// KindAnnual counts duty days over a calendar year. Shifts deduct here.
	KindAnnual Kind = "annual"

	// KindPeriodic counts paid leave over a reference period that may span
	// two calendar years (e.g. June 1 to May 31).
	KindPeriodic Kind = "periodic"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindAnnual, KindPeriodic:
		return true
	}
	return false
}

// Key identifies a counter.
type Key struct {
	UserID    string
	Kind      Kind
	PeriodKey string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.UserID, k.Kind, k.PeriodKey)
}

// Compare orders keys for deterministic multi-key locking.
func (k Key) Compare(other Key) int {
	switch a, b := k.String(), other.String(); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// =============================================================================
// COUNTER
// =============================================================================

// Counter is a per-user, per-period balance record.
type Counter struct {
	ID        string
	UserID    string
	Kind      Kind
	PeriodKey string

	Allocated   decimal.Decimal
	Consumed    decimal.Decimal
	Adjustment  decimal.Decimal // administrative correction, periodic only
	CarriedOver decimal.Decimal // opening balance brought from the prior period

	RolledOverAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the identity of the counter.
func (c Counter) Key() Key {
	return Key{UserID: c.UserID, Kind: c.Kind, PeriodKey: c.PeriodKey}
}

// Earned is everything credited to the counter for its period.
func (c Counter) Earned() decimal.Decimal {
	if c.Kind == KindPeriodic {
		return c.Allocated.Add(c.CarriedOver).Add(c.Adjustment)
	}
	return c.Allocated
}

// Remaining is Earned minus Consumed. It may be negative.
func (c Counter) Remaining() decimal.Decimal {
	return c.Earned().Sub(c.Consumed)
}

// IsNegative reports an overdrawn counter.
func (c Counter) IsNegative() bool {
	return c.Remaining().IsNegative()
}

// =============================================================================
// MUTATION - audit trail
// =============================================================================

// Operation names a counter mutation.
type Operation string

const (
	OpCreate      Operation = "create"
	OpDecrement   Operation = "decrement"
	OpIncrement   Operation = "increment"
	OpAdjust      Operation = "adjust"
	OpRolloverOut Operation = "rollover_out"
	OpRolloverIn  Operation = "rollover_in"
)

// Mutation records one change to a counter with its before/after values.
// Mutations are append-only.
type Mutation struct {
	ID        string
	CounterID string
	UserID    string
	Kind      Kind
	PeriodKey string
	Operation Operation

	// Amount is the requested quantity. For a clamped increment the
	// effective change is ConsumedBefore - ConsumedAfter.
	Amount decimal.Decimal

	ConsumedBefore  decimal.Decimal
	ConsumedAfter   decimal.Decimal
	RemainingBefore decimal.Decimal
	RemainingAfter  decimal.Decimal

	Reference      string // shift id, absence id, ...
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Change is the input to a ledger mutation.
type Change struct {
	Key            Key
	Amount         decimal.Decimal
	Reference      string
	Reason         string
	IdempotencyKey string
}

// RolloverResult summarizes a roll-to-new-period.
type RolloverResult struct {
	UserID      string
	FromKey     string
	ToKey       string
	Remaining   decimal.Decimal // remaining of the closed period
	CarriedOver decimal.Decimal // amount opened in the new period
	Forfeited   decimal.Decimal // amount above the carry-over cap
}
