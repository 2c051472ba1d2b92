/*
validation.go - Validation Service and the validate transitions

PURPOSE:
  Scans a month schedule and reports, per shift:
    (a) unassigned         no assignee                         severity error
    (b) conflicts          assignee busy during the shift      severity warning
    (c) counter deficits   projected annual counter below zero severity warning

  The report is advisory. buildReport never writes; the "validate" action
  (ValidatePlanning) and publication both run it and then decide what to do.

TRANSITIONS:
  ValidatePlanning  one schedule: draft|validated -> validated, draft shifts
                    -> validated (skipped with dryRun)
  ValidateMonth     every non-published schedule of a (year, month), across
                    villas; returns one unassigned warning per shift
*/
package planning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ValidationReport is the structured outcome of validating a schedule.
type ValidationReport struct {
	PlanningID string
	VillaID    string
	Year       int
	Month      time.Month
	Status     ScheduleStatus

	TotalShifts    int
	AssignedShifts int

	Unassigned      []Warning
	Conflicts       []Warning
	CounterDeficits []Warning
}

// HasBlockingIssues reports whether any error-severity issue was found.
// Publication proceeds anyway; the flag is for display.
func (r ValidationReport) HasBlockingIssues() bool {
	return len(r.Unassigned) > 0
}

// Warnings returns every issue in report order.
func (r ValidationReport) Warnings() []Warning {
	out := make([]Warning, 0, len(r.Unassigned)+len(r.Conflicts)+len(r.CounterDeficits))
	out = append(out, r.Unassigned...)
	out = append(out, r.Conflicts...)
	out = append(out, r.CounterDeficits...)
	return out
}

// ValidateSchedule builds the report of a schedule without any transition.
func (s *Service) ValidateSchedule(ctx context.Context, planningID string) (*ValidationReport, error) {
	sched, err := s.store.GetSchedule(ctx, planningID)
	if err != nil {
		return nil, err
	}
	return s.buildReport(ctx, s.store, *sched)
}

func (s *Service) buildReport(ctx context.Context, st Store, sched MonthSchedule) (*ValidationReport, error) {
	shifts, err := st.ListShiftsBySchedule(ctx, sched.ID)
	if err != nil {
		return nil, err
	}

	r := &ValidationReport{
		PlanningID:      sched.ID,
		VillaID:         sched.VillaID,
		Year:            sched.Year,
		Month:           sched.Month,
		Status:          sched.Status,
		Unassigned:      []Warning{},
		Conflicts:       []Warning{},
		CounterDeficits: []Warning{},
	}
	for _, sh := range shifts {
		if sh.Status == ShiftCancelled {
			continue
		}
		r.TotalShifts++
		if !sh.IsAssigned() {
			r.Unassigned = append(r.Unassigned, unassignedWarning(sh, s.loc))
			continue
		}
		r.AssignedShifts++

		conflicts, err := s.conflictWarnings(ctx, st, sh)
		if err != nil {
			return nil, err
		}
		r.Conflicts = append(r.Conflicts, conflicts...)

		deficit, err := s.balanceWarning(ctx, st, sh)
		if err != nil {
			return nil, err
		}
		if deficit != nil {
			r.CounterDeficits = append(r.CounterDeficits, *deficit)
		}
	}
	return r, nil
}

func unassignedWarning(sh Shift, loc *time.Location) Warning {
	return Warning{
		Type:          WarnUnassigned,
		Message:       fmt.Sprintf("Shift on %s has no assignee", sh.Start.In(loc).Format("2006-01-02 15:04")),
		Severity:      SeverityError,
		AffectationID: sh.ID,
	}
}

// ValidatePlanning runs the report and, unless dryRun, moves the schedule
// and its draft shifts to validated. A published schedule can only be
// dry-run.
func (s *Service) ValidatePlanning(ctx context.Context, planningID string, dryRun bool) (*ValidationReport, error) {
	if dryRun {
		return s.ValidateSchedule(ctx, planningID)
	}

	sched, err := s.store.GetSchedule(ctx, planningID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockMonth(sched.Key())
	defer unlock()

	var report *ValidationReport
	err = s.store.WithTx(ctx, func(st Store) error {
		sched, err := st.GetSchedule(ctx, planningID)
		if err != nil {
			return err
		}
		if sched.IsPublished() {
			return ErrAlreadyPublished
		}
		if _, err := s.validateIn(ctx, st, sched); err != nil {
			return err
		}
		report, err = s.buildReport(ctx, st, *sched)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("month schedule validated",
		zap.String("planning_id", planningID),
		zap.Int("shifts", report.TotalShifts),
		zap.Int("unassigned", len(report.Unassigned)),
		zap.Int("conflicts", len(report.Conflicts)),
		zap.Int("deficits", len(report.CounterDeficits)),
	)
	return report, nil
}

// validateIn moves a non-published schedule and its draft shifts to
// validated and returns the shifts it transitioned.
func (s *Service) validateIn(ctx context.Context, st Store, sched *MonthSchedule) ([]Shift, error) {
	shifts, err := st.ListShiftsBySchedule(ctx, sched.ID)
	if err != nil {
		return nil, err
	}
	now := s.timestamp()

	var moved []Shift
	for _, sh := range shifts {
		if sh.Status != ShiftDraft {
			continue
		}
		sh.Status = ShiftValidated
		sh.UpdatedAt = now
		if err := st.SaveShift(ctx, sh); err != nil {
			return nil, err
		}
		moved = append(moved, sh)
	}

	sched.Status = ScheduleValidated
	sched.ValidatedAt = &now
	sched.UpdatedAt = now
	if err := st.SaveSchedule(ctx, *sched); err != nil {
		return nil, err
	}
	return moved, nil
}

// MonthValidation is the outcome of ValidateMonth.
type MonthValidation struct {
	Count     int      // shifts moved from draft to validated
	Plannings []string // schedules moved to validated
	Warnings  []Warning
}

// ValidateMonth validates every non-published schedule of a month across
// villas. Unassigned shifts are reported, not refused.
func (s *Service) ValidateMonth(ctx context.Context, year int, month time.Month) (*MonthValidation, error) {
	if year < 1 || month < time.January || month > time.December {
		return nil, invalid("month", "year/month out of range")
	}
	schedules, err := s.store.ListSchedulesByMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}
	keys := make([]MonthKey, 0, len(schedules))
	for _, sc := range schedules {
		keys = append(keys, sc.Key())
	}
	unlock := s.lockMonths(keys)
	defer unlock()

	res := &MonthValidation{Plannings: []string{}, Warnings: []Warning{}}
	err = s.store.WithTx(ctx, func(st Store) error {
		for _, sc := range schedules {
			sched, err := st.GetSchedule(ctx, sc.ID)
			if err != nil {
				return err
			}
			if sched.IsPublished() {
				continue
			}
			moved, err := s.validateIn(ctx, st, sched)
			if err != nil {
				return err
			}
			res.Count += len(moved)
			res.Plannings = append(res.Plannings, sched.ID)
			for _, sh := range moved {
				if !sh.IsAssigned() {
					res.Warnings = append(res.Warnings, unassignedWarning(sh, s.loc))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("month validated",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("shifts", res.Count),
		zap.Int("plannings", len(res.Plannings)),
	)
	return res, nil
}
