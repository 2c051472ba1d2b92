package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/villacare/planning-engine/planning"
)

// =============================================================================
// APPOINTMENTS
// =============================================================================

// CreateAppointment schedules a pending appointment.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.Planning.CreateAppointment(r.Context(), planning.NewAppointment{
		OrganizerID:    req.OrganizerID,
		Title:          req.Title,
		Type:           planning.AppointmentType(req.Type),
		Start:          req.StartAt,
		End:            req.EndAt,
		ImpactsDuty:    req.ImpactsDuty,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		h.fail(w, r, "Failed to create appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentDTO(*a))
}

// SetAppointmentStatus moves an appointment through its state machine.
func (h *Handler) SetAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	var req AppointmentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.Planning.SetAppointmentStatus(r.Context(), chi.URLParam(r, "appointmentId"), planning.AppointmentStatus(req.Status))
	if err != nil {
		h.fail(w, r, "Failed to update appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentDTO(*a))
}

// =============================================================================
// ON-CALL
// =============================================================================

// CreateOnCall opens an on-call period. Overlapping periods are a 409.
func (h *Handler) CreateOnCall(w http.ResponseWriter, r *http.Request) {
	var req CreateOnCallRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.Planning.CreateOnCall(r.Context(), req.StartAt, req.EndAt, req.UserID)
	if err != nil {
		h.fail(w, r, "Failed to create on-call period", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOnCallDTO(*o))
}

// AssignOnCall changes the assignee of an on-call period.
func (h *Handler) AssignOnCall(w http.ResponseWriter, r *http.Request) {
	var req AssignOnCallRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.Planning.AssignOnCall(r.Context(), chi.URLParam(r, "onCallId"), req.UserID)
	if err != nil {
		h.fail(w, r, "Failed to assign on-call period", err)
		return
	}
	writeJSON(w, http.StatusOK, toOnCallDTO(*o))
}
