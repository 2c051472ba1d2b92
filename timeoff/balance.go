package timeoff

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
)

// =============================================================================
// BALANCE CHECK - "can this absence be afforded?"
// =============================================================================

// BalanceCheck is the answer to a pre-flight balance question. Nothing is
// persisted: a user without a counter yet is shown the full allocation.
type BalanceCheck struct {
	UserID         string
	Type           planning.AbsenceType
	PeriodKey      string
	Requested      decimal.Decimal
	Remaining      decimal.Decimal
	RemainingAfter decimal.Decimal
	Sufficient     bool
}

// CheckBalance projects the counter an absence of type t over [start, end]
// would draw from. Types without a counter are always sufficient.
func (s *Service) CheckBalance(ctx context.Context, userID string, t planning.AbsenceType, start, end time.Time) (*BalanceCheck, error) {
	if !t.IsValid() {
		return nil, &planning.ValidationError{Field: "type", Message: "unknown absence type " + string(t)}
	}
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return nil, planning.ErrInvalidTimeRange
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	out := &BalanceCheck{
		UserID:     userID,
		Type:       t,
		Requested:  planning.WeekdaysBetween(start, end),
		Sufficient: true,
	}
	kind, ok := CounterKind(t)
	if !ok {
		return out, nil
	}

	key := counter.Key{UserID: userID, Kind: kind, PeriodKey: s.ledger.Periods().KeyFor(kind, start)}
	out.PeriodKey = key.PeriodKey
	c, err := s.ledger.Peek(ctx, s.store, key)
	if err != nil {
		return nil, err
	}
	out.Remaining = c.Remaining()
	out.RemainingAfter = out.Remaining.Sub(out.Requested)
	out.Sufficient = !out.RemainingAfter.IsNegative()
	return out, nil
}

// =============================================================================
// SUMMARIES - the "compteurs" view
// =============================================================================

// Summary row types.
const (
	SummaryAnnualDays = "annual_days"
	SummaryPaidLeave  = "paid_leave"
)

// Summary is one row of a user's counter overview.
type Summary struct {
	Type       string
	Year       int
	Kind       counter.Kind
	PeriodKey  string
	Earned     decimal.Decimal
	Taken      decimal.Decimal
	Remaining  decimal.Decimal
	IsNegative bool
}

// Summaries returns the annual-days and paid-leave rows of a user for year.
// The paid-leave row is the period starting in year. A kind with no
// allocation configured is left out.
func (s *Service) Summaries(ctx context.Context, userID string, year int) ([]Summary, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	periods := s.ledger.Periods()
	rows := []struct {
		typ  string
		kind counter.Kind
	}{
		{SummaryAnnualDays, counter.KindAnnual},
		{SummaryPaidLeave, counter.KindPeriodic},
	}

	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		key := counter.Key{UserID: userID, Kind: r.kind, PeriodKey: periods.KeyForYear(r.kind, year)}
		c, err := s.ledger.Peek(ctx, s.store, key)
		if errors.Is(err, counter.ErrNoAllocation) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{
			Type:       r.typ,
			Year:       year,
			Kind:       r.kind,
			PeriodKey:  key.PeriodKey,
			Earned:     c.Earned(),
			Taken:      c.Consumed,
			Remaining:  c.Remaining(),
			IsNegative: c.IsNegative(),
		})
	}
	return out, nil
}
