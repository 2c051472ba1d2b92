package planning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// APPOINTMENTS
// =============================================================================

// NewAppointment is the input of CreateAppointment.
type NewAppointment struct {
	OrganizerID    string
	Title          string
	Type           AppointmentType
	Start          time.Time
	End            time.Time
	ImpactsDuty    bool
	ParticipantIDs []string
}

// CreateAppointment schedules a pending appointment. Participants start
// with a pending presence.
func (s *Service) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("title", "title is required")
	}
	if in.Type == "" {
		in.Type = AppointmentRequest
	}
	if !in.Type.IsValid() {
		return nil, invalid("type", "unknown appointment type %q", in.Type)
	}
	if !in.Start.Before(in.End) {
		return nil, ErrInvalidTimeRange
	}
	if _, err := s.store.GetUser(ctx, in.OrganizerID); err != nil {
		return nil, err
	}

	participants := make([]Participant, 0, len(in.ParticipantIDs))
	seen := map[string]bool{in.OrganizerID: true}
	for _, id := range in.ParticipantIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.store.GetUser(ctx, id); err != nil {
			return nil, err
		}
		participants = append(participants, Participant{UserID: id, Presence: PresencePending})
	}

	now := s.timestamp()
	a := Appointment{
		ID:           newID(),
		OrganizerID:  in.OrganizerID,
		Title:        in.Title,
		Type:         in.Type,
		Status:       AppointmentPending,
		Start:        in.Start,
		End:          in.End,
		ImpactsDuty:  in.ImpactsDuty,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveAppointment(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAppointmentStatus moves an appointment through its state machine.
func (s *Service) SetAppointmentStatus(ctx context.Context, id string, next AppointmentStatus) (*Appointment, error) {
	if !next.IsValid() {
		return nil, invalid("status", "unknown appointment status %q", next)
	}
	var out Appointment
	err := s.store.WithTx(ctx, func(st Store) error {
		a, err := st.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.CanTransitionTo(next) {
			return &TransitionError{Entity: "appointment", From: string(a.Status), To: string(next)}
		}
		a.Status = next
		a.UpdatedAt = s.timestamp()
		if err := st.SaveAppointment(ctx, *a); err != nil {
			return err
		}
		out = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// ON-CALL
// =============================================================================

// CreateOnCall opens an on-call period. Periods never overlap.
func (s *Service) CreateOnCall(ctx context.Context, start, end time.Time, userID string) (*OnCall, error) {
	if !start.Before(end) {
		return nil, ErrInvalidTimeRange
	}
	s.onCall.Lock()
	defer s.onCall.Unlock()

	var out OnCall
	err := s.store.WithTx(ctx, func(st Store) error {
		if userID != "" {
			if _, err := st.GetUser(ctx, userID); err != nil {
				return err
			}
		}
		existing, err := st.FindOnCallInRange(ctx, start, end)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: %s to %s", ErrOnCallOverlap,
				existing[0].Start.Format(time.RFC3339), existing[0].End.Format(time.RFC3339))
		}
		now := s.timestamp()
		out = OnCall{
			ID:        newID(),
			UserID:    strPtr(userID),
			Start:     start,
			End:       end,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return st.SaveOnCall(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignOnCall sets or clears an on-call period's assignee. Replacing the
// assignee once the period has started counts as a replacement.
func (s *Service) AssignOnCall(ctx context.Context, id, userID string) (*OnCall, error) {
	s.onCall.Lock()
	defer s.onCall.Unlock()

	var out OnCall
	err := s.store.WithTx(ctx, func(st Store) error {
		o, err := st.GetOnCall(ctx, id)
		if err != nil {
			return err
		}
		if userID != "" {
			if _, err := st.GetUser(ctx, userID); err != nil {
				return err
			}
		}
		now := s.timestamp()
		prev := ""
		if o.UserID != nil {
			prev = *o.UserID
		}
		if prev != "" && prev != userID && !now.Before(o.Start) {
			o.ReplacementCount++
			s.logger.Info("on-call replacement",
				zap.String("on_call_id", id), zap.String("from", prev), zap.String("to", userID))
		}
		o.UserID = strPtr(userID)
		o.UpdatedAt = now
		if err := st.SaveOnCall(ctx, *o); err != nil {
			return err
		}
		out = *o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
