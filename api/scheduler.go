/*
scheduler.go - Automated counter rollover scheduler

PURPOSE:
  Periodically closes the periodic leave counters of the previous
  reference period, carrying their remaining balance into the current
  one. Same operation as POST /counters/rollover without a user.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Derives the period that just ended from the clock
  - Counters already rolled over are skipped by the ledger, so each run
    is idempotent and a restart never double-carries a balance

CONFIGURATION:
  - scheduler.interval:         How often to check (default: 1 hour)
  - scheduler.rollover_enabled: Whether the scheduler runs (default: false)

USAGE:
  scheduler := NewRolloverScheduler(ledger, interval, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - absences.go: RolloverCounters endpoint (manual rollover)
  - counter/ledger.go: RollAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/villacare/planning-engine/counter"
)

// RolloverScheduler rolls periodic counters once their period has ended.
type RolloverScheduler struct {
	ledger   *counter.Ledger
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRolloverScheduler creates a scheduler. It does nothing until Start.
func NewRolloverScheduler(ledger *counter.Ledger, interval time.Duration, logger *zap.Logger) *RolloverScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &RolloverScheduler{
		ledger:   ledger,
		interval: interval,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		return
	}
	rs.ticker = time.NewTicker(rs.interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.logger.Info("rollover scheduler started", zap.Duration("interval", rs.interval))
}

// Stop stops the scheduler and waits for a running check to finish.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("rollover scheduler stopped")
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// PreviousPeriodKey is the periodic key of the period before the one
// containing now.
func (rs *RolloverScheduler) PreviousPeriodKey() (string, error) {
	periods := rs.ledger.Periods()
	current := periods.KeyFor(counter.KindPeriodic, rs.now())
	startYear, err := periods.StartYear(counter.KindPeriodic, current)
	if err != nil {
		return "", err
	}
	return periods.KeyForYear(counter.KindPeriodic, startYear-1), nil
}

// RunNow rolls every counter of the previous period that is still open and
// returns how many were rolled.
func (rs *RolloverScheduler) RunNow(ctx context.Context) int {
	fromKey, err := rs.PreviousPeriodKey()
	if err != nil {
		rs.logger.Error("cannot derive previous period", zap.Error(err))
		return 0
	}

	results, failures, err := rs.ledger.RollAll(ctx, fromKey)
	if err != nil {
		rs.logger.Error("rollover failed", zap.String("from", fromKey), zap.Error(err))
		return 0
	}
	for userID, ferr := range failures {
		rs.logger.Warn("rollover failed for user",
			zap.String("from", fromKey),
			zap.String("user_id", userID),
			zap.Error(ferr),
		)
	}
	if len(results) > 0 || len(failures) > 0 {
		rs.logger.Info("rollover completed",
			zap.String("from", fromKey),
			zap.Int("rolled", len(results)),
			zap.Int("failed", len(failures)),
		)
	}
	return len(results)
}

// NextRunTime returns when the next scheduled check will occur.
func (rs *RolloverScheduler) NextRunTime() time.Time {
	return rs.now().Add(rs.interval)
}
