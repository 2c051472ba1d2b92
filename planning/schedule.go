package planning

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// MonthView is a villa's month as the planning screen shows it. Schedule is
// nil when the month was never generated.
type MonthView struct {
	Schedule *MonthSchedule
	Shifts   []ShiftView
}

// ShiftView is a shift with its assignee resolved.
type ShiftView struct {
	Shift
	User *User
}

// MonthPlanning returns the schedule and shifts of a villa's month.
func (s *Service) MonthPlanning(ctx context.Context, villaID string, year int, month time.Month) (*MonthView, error) {
	if month < time.January || month > time.December {
		return nil, invalid("month", "month must be between 1 and 12")
	}
	if _, err := s.store.GetVilla(ctx, villaID); err != nil {
		return nil, err
	}

	view := &MonthView{Shifts: []ShiftView{}}
	sched, err := s.store.FindSchedule(ctx, MonthKey{VillaID: villaID, Year: year, Month: month})
	if errors.Is(err, ErrScheduleNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	view.Schedule = sched

	shifts, err := s.store.ListShiftsBySchedule(ctx, sched.ID)
	if err != nil {
		return nil, err
	}
	users := make(map[string]*User)
	for _, sh := range shifts {
		sv := ShiftView{Shift: sh}
		if id := sh.Assignee(); id != "" {
			u, ok := users[id]
			if !ok {
				u, err = s.store.GetUser(ctx, id)
				if err != nil && !IsNotFound(err) {
					return nil, err
				}
				users[id] = u
			}
			sv.User = u
		}
		view.Shifts = append(view.Shifts, sv)
	}
	return view, nil
}

// DeleteSchedule removes a non-published schedule and its shifts.
func (s *Service) DeleteSchedule(ctx context.Context, planningID string) error {
	sched, err := s.store.GetSchedule(ctx, planningID)
	if err != nil {
		return err
	}
	unlock := s.lockMonth(sched.Key())
	defer unlock()

	err = s.store.WithTx(ctx, func(st Store) error {
		sched, err := st.GetSchedule(ctx, planningID)
		if err != nil {
			return err
		}
		if sched.IsPublished() {
			return ErrSchedulePublished
		}
		return st.DeleteSchedule(ctx, planningID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("month schedule deleted", zap.String("planning_id", planningID))
	return nil
}
