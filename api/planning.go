package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/villacare/planning-engine/planning"
)

// =============================================================================
// MONTH PLANNING
// =============================================================================

// GetMonthPlanning returns a villa's month schedule and its affectations.
// year and month default to the current month.
func (h *Handler) GetMonthPlanning(w http.ResponseWriter, r *http.Request) {
	villaID := chi.URLParam(r, "villaId")
	today := h.today()

	year, err := queryInt(r, "year", today.Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	month, err := queryInt(r, "month", int(today.Month()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	view, err := h.Planning.MonthPlanning(r.Context(), villaID, year, time.Month(month))
	if err != nil {
		h.fail(w, r, "Failed to load planning", err)
		return
	}

	resp := MonthPlanningResponse{
		Planning:     toPlanningDTO(view.Schedule),
		Affectations: make([]AffectationDTO, 0, len(view.Shifts)),
	}
	for _, sv := range view.Shifts {
		resp.Affectations = append(resp.Affectations, toAffectationDTO(sv.Shift, sv.User))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GenerateMonth applies the villa's template to one month.
func (h *Handler) GenerateMonth(w http.ResponseWriter, r *http.Request) {
	var req GenerateMonthRequest
	if !h.decode(w, r, &req) {
		return
	}

	sched, res, err := h.Planning.GenerateMonth(r.Context(), chi.URLParam(r, "villaId"), req.Year, time.Month(req.Month))
	if err != nil {
		h.fail(w, r, "Failed to generate planning", err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateMonthResponse{
		ID:       sched.ID,
		Created:  res.Created,
		Skipped:  res.Skipped,
		Warnings: toWarningDTOs(res.Warnings),
	})
}

// CreateAffectation adds a manual shift to a villa.
func (h *Handler) CreateAffectation(w http.ResponseWriter, r *http.Request) {
	var req CreateAffectationRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Planning.CreateShift(r.Context(), planning.NewShift{
		VillaID: chi.URLParam(r, "villaId"),
		UserID:  req.UserID,
		Start:   req.StartAt,
		End:     req.EndAt,
		Type:    planning.ShiftType(req.Type),
		Comment: req.Comment,
	})
	if err != nil {
		h.fail(w, r, "Failed to create affectation", err)
		return
	}

	writeJSON(w, http.StatusCreated, AffectationResponse{
		Success:     true,
		Affectation: toAffectationDTO(res.Shift, nil),
		Warnings:    toWarningDTOs(res.Warnings),
	})
}

// DeletePlanning removes a non-published month schedule and its shifts.
func (h *Handler) DeletePlanning(w http.ResponseWriter, r *http.Request) {
	if err := h.Planning.DeleteSchedule(r.Context(), chi.URLParam(r, "planningId")); err != nil {
		h.fail(w, r, "Failed to delete planning", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPublications returns the publication audit records of a schedule.
func (h *Handler) ListPublications(w http.ResponseWriter, r *http.Request) {
	pubs, err := h.Planning.Publications(r.Context(), chi.URLParam(r, "planningId"))
	if err != nil {
		h.fail(w, r, "Failed to list publications", err)
		return
	}

	dtos := make([]PublicationDTO, 0, len(pubs))
	for _, p := range pubs {
		dtos = append(dtos, PublicationDTO{
			ID:          p.ID,
			PlanningID:  p.PlanningID,
			PublishedAt: p.PublishedAt,
			Deducted:    p.Deducted,
			TotalDays:   toFloat(p.TotalDays),
			Warnings:    toWarningDTOs(p.Warnings),
			Failures:    toFailureDTOs(p.Failures),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PLANNING ASSIGNMENT
// =============================================================================

// ApplyTemplate runs the Template Applicator over a date range and scope.
func (h *Handler) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var req ApplyTemplateRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, to, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	res, err := h.Planning.ApplyTemplate(r.Context(), planning.ApplyTemplateRequest{
		TemplateID: req.TemplateID,
		StartDate:  from,
		EndDate:    to,
		Scope:      planning.Scope(req.Scope),
		VillaID:    req.VillaID,
	})
	if err != nil {
		h.fail(w, r, "Failed to apply template", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplyTemplateResponse(res))
}

// Assign assigns a user to a shift. Conflicts come back as warnings.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Planning.Assign(r.Context(), req.AffectationID, req.UserID)
	if err != nil {
		h.fail(w, r, "Failed to assign affectation", err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Warnings: toWarningDTOs(res.Warnings)})
}

// UpdateHours changes a shift's bounds and returns its new working days.
func (h *Handler) UpdateHours(w http.ResponseWriter, r *http.Request) {
	var req HoursRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Planning.Resize(r.Context(), chi.URLParam(r, "id"), req.StartAt, req.EndAt)
	if err != nil {
		h.fail(w, r, "Failed to update hours", err)
		return
	}
	writeJSON(w, http.StatusOK, HoursResponse{
		Success:     true,
		WorkingDays: toFloat(res.WorkingDays),
		Warnings:    toWarningDTOs(res.Warnings),
	})
}

// GetWarnings re-derives the warnings of an assigned shift without mutating it.
func (h *Handler) GetWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Planning.ShiftWarnings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to compute warnings", err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Warnings: toWarningDTOs(warnings)})
}

// GetAvailability returns the busy intervals of a user over inclusive dates.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "Missing userId", nil)
		return
	}
	from, to, err := parseDateRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	loc := h.Planning.Location()
	busy, err := h.Planning.Availability(r.Context(), userID,
		planning.StartOfDay(from, loc),
		planning.StartOfDay(to.AddDate(0, 0, 1), loc),
	)
	if err != nil {
		h.fail(w, r, "Failed to resolve availability", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{UserID: userID, Periods: toPeriodDTOs(busy)})
}

// Validate runs the Validation Service on a schedule. Unless dryRun, the
// schedule and its draft shifts move to validated.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	report, err := h.Planning.ValidatePlanning(r.Context(), req.PlanningID, req.DryRun)
	if err != nil {
		h.fail(w, r, "Failed to validate planning", err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationResponse(report, req.DryRun))
}

// Publish publishes a validated schedule and deducts counters once.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PlanningIDRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Planning.Publish(r.Context(), req.PlanningID)
	if err != nil {
		h.fail(w, r, "Failed to publish planning", err)
		return
	}
	writeJSON(w, http.StatusOK, PublishResponse{
		Success:     true,
		PlanningID:  res.PlanningID,
		PublishedAt: res.PublishedAt,
		Deducted:    res.Deducted,
		TotalDays:   toFloat(res.TotalDays),
		Warnings:    toWarningDTOs(res.Warnings),
		Failures:    toFailureDTOs(res.Failures),
	})
}

// Reopen returns a schedule to draft, restoring deducted counters.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	var req PlanningIDRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Planning.Reopen(r.Context(), req.PlanningID)
	if err != nil {
		h.fail(w, r, "Failed to reopen planning", err)
		return
	}
	writeJSON(w, http.StatusOK, ReopenResponse{
		Success:    true,
		PlanningID: res.PlanningID,
		Restored:   res.Restored,
		TotalDays:  toFloat(res.TotalDays),
		Failures:   toFailureDTOs(res.Failures),
	})
}

// BatchUpdate applies heterogeneous changes. Failing items become warnings.
func (h *Handler) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req BatchUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	changes := make([]planning.BatchChange, 0, len(req.Changes))
	for _, c := range req.Changes {
		changes = append(changes, c.toDomain())
	}

	res, err := h.Planning.ProcessBatch(r.Context(), changes)
	if err != nil {
		h.fail(w, r, "Failed to process batch", err)
		return
	}
	writeJSON(w, http.StatusOK, BatchUpdateResponse{
		Success:   true,
		Processed: res.Processed,
		Warnings:  toWarningDTOs(res.Warnings),
	})
}

// ValidateMonth moves every non-published schedule of a month to validated.
func (h *Handler) ValidateMonth(w http.ResponseWriter, r *http.Request) {
	var req ValidateMonthRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Planning.ValidateMonth(r.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		h.fail(w, r, "Failed to validate month", err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateMonthResponse{
		Success:   true,
		Count:     res.Count,
		Plannings: nonNilStrings(res.Plannings),
		Warnings:  toWarningDTOs(res.Warnings),
	})
}
