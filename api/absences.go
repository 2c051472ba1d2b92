package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/timeoff"
)

// =============================================================================
// ABSENCES
// =============================================================================

// CreateAbsence records a pending absence.
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	var req CreateAbsenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, to, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	a, err := h.Absences.Create(r.Context(), timeoff.NewAbsence{
		UserID:         req.UserID,
		Type:           planning.AbsenceType(req.Type),
		StartDate:      from,
		EndDate:        to,
		Reason:         req.Reason,
		DeductsCounter: req.DeductsCounter,
	})
	if err != nil {
		h.fail(w, r, "Failed to create absence", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAbsenceDTO(*a))
}

// ListAbsences returns the absences of ?userId.
func (h *Handler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "Missing userId", nil)
		return
	}

	absences, err := h.Absences.List(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "Failed to list absences", err)
		return
	}

	dtos := make([]AbsenceDTO, 0, len(absences))
	for _, a := range absences {
		dtos = append(dtos, toAbsenceDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveAbsence approves a pending absence and deducts its counter.
func (h *Handler) ApproveAbsence(w http.ResponseWriter, r *http.Request) {
	h.absenceTransition(w, r, "Failed to approve absence", h.Absences.Approve)
}

// CancelAbsence cancels an absence, restoring its counter when approved.
func (h *Handler) CancelAbsence(w http.ResponseWriter, r *http.Request) {
	h.absenceTransition(w, r, "Failed to cancel absence", h.Absences.Cancel)
}

// RefuseAbsence refuses a pending absence.
func (h *Handler) RefuseAbsence(w http.ResponseWriter, r *http.Request) {
	h.absenceTransition(w, r, "Failed to refuse absence", h.Absences.Refuse)
}

func (h *Handler) absenceTransition(w http.ResponseWriter, r *http.Request, message string,
	fn func(ctx context.Context, id string) (*planning.Absence, error)) {
	a, err := fn(r.Context(), chi.URLParam(r, "absenceId"))
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(*a))
}

// GetCompteurs returns the counter summaries of a user for ?year (default:
// the current year).
func (h *Handler) GetCompteurs(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", h.today().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	rows, err := h.Absences.Summaries(r.Context(), chi.URLParam(r, "userId"), year)
	if err != nil {
		h.fail(w, r, "Failed to load counters", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompteurDTOs(rows))
}

// CheckBalance reports whether a prospective absence fits its counter.
func (h *Handler) CheckBalance(w http.ResponseWriter, r *http.Request) {
	var req CheckBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, to, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	check, err := h.Absences.CheckBalance(r.Context(), req.UserID, planning.AbsenceType(req.Type), from, to)
	if err != nil {
		h.fail(w, r, "Failed to check balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckBalanceResponse(check))
}

// =============================================================================
// COUNTERS
// =============================================================================

// ListCounters returns a user's persisted counters.
func (h *Handler) ListCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.Planning.Ledger().Counters(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, "Failed to list counters", err)
		return
	}

	dtos := make([]CounterDTO, 0, len(counters))
	for _, c := range counters {
		dtos = append(dtos, toCounterDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListMutations returns the audit trail of every counter of a user.
func (h *Handler) ListMutations(w http.ResponseWriter, r *http.Request) {
	ledger := h.Planning.Ledger()
	counters, err := ledger.Counters(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, "Failed to list counters", err)
		return
	}

	dtos := []MutationDTO{}
	for _, c := range counters {
		muts, err := ledger.Mutations(r.Context(), c.Key())
		if err != nil {
			h.fail(w, r, "Failed to list mutations", err)
			return
		}
		for _, m := range muts {
			dtos = append(dtos, toMutationDTO(m))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdjustCounter applies an administrative correction to a periodic counter.
func (h *Handler) AdjustCounter(w http.ResponseWriter, r *http.Request) {
	var req AdjustCounterRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.Planning.GetUser(r.Context(), req.UserID); err != nil {
		h.fail(w, r, "Failed to adjust counter", err)
		return
	}

	m, err := h.Planning.Ledger().Adjust(r.Context(), counter.Change{
		Key:    counter.Key{UserID: req.UserID, Kind: counter.KindPeriodic, PeriodKey: req.PeriodKey},
		Amount: decimal.NewFromFloat(req.Amount),
		Reason: req.Reason,
	})
	if err != nil {
		h.fail(w, r, "Failed to adjust counter", err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationDTO(*m))
}

// RolloverCounters rolls a user's periodic counter, or every user's, to the
// next period.
func (h *Handler) RolloverCounters(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if !h.decode(w, r, &req) {
		return
	}
	ledger := h.Planning.Ledger()

	if req.UserID != "" {
		res, err := ledger.RollToNewPeriod(r.Context(), req.UserID, req.FromPeriodKey)
		if err != nil {
			h.fail(w, r, "Failed to roll over counter", err)
			return
		}
		writeJSON(w, http.StatusOK, RolloverResponse{
			Success:  true,
			Rolled:   []RolloverDTO{toRolloverDTO(*res)},
			Failures: map[string]string{},
		})
		return
	}

	results, failures, err := ledger.RollAll(r.Context(), req.FromPeriodKey)
	if err != nil {
		h.fail(w, r, "Failed to roll over counters", err)
		return
	}
	resp := RolloverResponse{
		Success:  len(failures) == 0,
		Rolled:   make([]RolloverDTO, 0, len(results)),
		Failures: make(map[string]string, len(failures)),
	}
	for _, res := range results {
		resp.Rolled = append(resp.Rolled, toRolloverDTO(res))
	}
	for userID, ferr := range failures {
		resp.Failures[userID] = ferr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
