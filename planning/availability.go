/*
availability.go - Availability Resolver

PURPOSE:
  Merges a user's four calendars into one ordered list of busy intervals:

    absences      approved only, whole days in the planning time zone
    appointments  duty-impacting, not cancelled/refused, not declined
    on-call       periods assigned to the user
    shifts        shifts assigned to the user, not cancelled

  The resolver is a pure function over the CalendarSource: it never writes.
  The Assignment Engine turns its output into warnings and the API renders it
  as the user's calendar.

SEE ALSO:
  - assignment.go: conflictWarnings
  - store.go: CalendarSource
*/
package planning

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// BusySource tags where a busy interval comes from.
type BusySource string

const (
	SourceAbsence     BusySource = "absence"
	SourceAppointment BusySource = "appointment"
	SourceOnCall      BusySource = "on_call"
	SourceShift       BusySource = "shift"
)

// Display colors per source. Shifts use their villa's color.
const (
	ColorAbsence     = "#F59E0B"
	ColorAppointment = "#8B5CF6"
	ColorOnCall      = "#EF4444"
	ColorShift       = "#3B82F6"
)

var sourceOrder = map[BusySource]int{
	SourceAbsence:     0,
	SourceAppointment: 1,
	SourceOnCall:      2,
	SourceShift:       3,
}

// BusyInterval is one occupied span of a user's calendar.
type BusyInterval struct {
	Start  time.Time
	End    time.Time
	Source BusySource
	Label  string
	Color  string
	RefID  string // id of the absence/appointment/on-call/shift
}

// AvailabilityResolver builds busy intervals from a CalendarSource.
type AvailabilityResolver struct {
	src CalendarSource
	loc *time.Location
}

// NewAvailabilityResolver creates a resolver reading from src.
func NewAvailabilityResolver(src CalendarSource, loc *time.Location) *AvailabilityResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityResolver{src: src, loc: loc}
}

// Resolve returns the busy intervals of userID overlapping [from, to),
// ordered by start then source.
func (r *AvailabilityResolver) Resolve(ctx context.Context, userID string, from, to time.Time) ([]BusyInterval, error) {
	if !from.Before(to) {
		return nil, ErrInvalidTimeRange
	}

	var out []BusyInterval

	absences, err := r.src.FindApprovedAbsencesInRange(ctx, userID, DateOf(from, r.loc), DateOf(to, r.loc))
	if err != nil {
		return nil, fmt.Errorf("load absences: %w", err)
	}
	for _, a := range absences {
		if a.Status != AbsenceApproved {
			continue
		}
		start := StartOfDay(a.StartDate, r.loc)
		end := StartOfDay(a.EndDate, r.loc).AddDate(0, 0, 1)
		if !overlaps(start, end, from, to) {
			continue
		}
		out = append(out, BusyInterval{
			Start:  start,
			End:    end,
			Source: SourceAbsence,
			Label:  "Absence (" + string(a.Type) + ")",
			Color:  ColorAbsence,
			RefID:  a.ID,
		})
	}

	appointments, err := r.src.FindAppointmentsInRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	for _, a := range appointments {
		if !a.ImpactsDuty || !a.Status.IsActive() || !a.Involves(userID) {
			continue
		}
		if !overlaps(a.Start, a.End, from, to) {
			continue
		}
		label := a.Title
		if label == "" {
			label = "Appointment"
		}
		out = append(out, BusyInterval{
			Start:  a.Start,
			End:    a.End,
			Source: SourceAppointment,
			Label:  label,
			Color:  ColorAppointment,
			RefID:  a.ID,
		})
	}

	onCalls, err := r.src.FindUserOnCallInRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load on-call: %w", err)
	}
	for _, o := range onCalls {
		if o.Status() != OnCallAssigned || *o.UserID != userID {
			continue
		}
		if !overlaps(o.Start, o.End, from, to) {
			continue
		}
		out = append(out, BusyInterval{
			Start:  o.Start,
			End:    o.End,
			Source: SourceOnCall,
			Label:  "On-call duty",
			Color:  ColorOnCall,
			RefID:  o.ID,
		})
	}

	shifts, err := r.src.FindOverlappingShifts(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load shifts: %w", err)
	}
	villas := make(map[string]*Villa)
	for _, sh := range shifts {
		if !sh.IsAssigned() || sh.Assignee() != userID || sh.Status == ShiftCancelled {
			continue
		}
		if !sh.Overlaps(from, to) {
			continue
		}
		label, color := "Shift", ColorShift
		if sh.VillaID != nil {
			v, ok := villas[*sh.VillaID]
			if !ok {
				// A dangling villa reference degrades the label, not the result.
				v, _ = r.src.GetVilla(ctx, *sh.VillaID)
				villas[*sh.VillaID] = v
			}
			if v != nil {
				label = "Shift " + v.Name
				if v.Color != "" {
					color = v.Color
				}
			}
		}
		out = append(out, BusyInterval{
			Start:  sh.Start,
			End:    sh.End,
			Source: SourceShift,
			Label:  label,
			Color:  color,
			RefID:  sh.ID,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return sourceOrder[out[i].Source] < sourceOrder[out[j].Source]
	})
	return out, nil
}

// Availability resolves userID's busy intervals over [from, to).
// The user must exist.
func (s *Service) Availability(ctx context.Context, userID string, from, to time.Time) ([]BusyInterval, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return NewAvailabilityResolver(s.store, s.loc).Resolve(ctx, userID, from, to)
}

func overlaps(aStart, aEnd, from, to time.Time) bool {
	return aStart.Before(to) && aEnd.After(from)
}
