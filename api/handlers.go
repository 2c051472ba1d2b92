/*
handlers.go - HTTP API handlers of the planning engine

PURPOSE:
  Exposes the planning engine, the absence side and the counter ledger as
  a JSON API. Handlers parse and validate the request, delegate to the
  domain services and serialize the response.

ENDPOINTS:
  Month planning (planning.go):
    GET    /planning/villas/{villaId}?year&month       Month view
    POST   /planning/villas/{villaId}/generate         Apply the villa's template to a month
    POST   /planning/villas/{villaId}/affectations     Manual shift creation
    DELETE /planning/{planningId}                      Delete a non-published month
    GET    /planning/{planningId}/publications         Publication audit trail

  Planning assignment (planning.go):
    POST   /planning-assignment/generate               Template Applicator with scope
    POST   /planning-assignment/assign                 Assign / unassign a shift
    PUT    /planning-assignment/hours/{id}             Resize a shift
    GET    /planning-assignment/warnings/{id}          Warnings of a shift
    GET    /planning-assignment/availability           Busy intervals of a user
    POST   /planning-assignment/validate               Validation report (+ transition)
    POST   /planning-assignment/publish                Publication with counter deduction
    POST   /planning-assignment/reopen                 Back to draft with counter restoration
    POST   /planning-assignment/batch-update           Batch Mutation Processor
    POST   /planning-assignment/validate-month         Bulk draft -> validated

  Directory (directory.go):
    /villas, /users, /templates

  Absences & counters (absences.go):
    /absences, /absences/compteurs/{userId}, /absences/check-balance,
    /counters/...

  Calendar (calendar.go):
    /appointments, /on-call

ERROR HANDLING:
  Errors are returned as JSON {error, details} with:
  - 400: Validation errors, invalid input
  - 404: Referenced record not found
  - 409: Business-rule conflict (published month, overlap, transition)
  - 500: Internal errors
  Soft successes return 2xx with {success: true, warnings: [...]}.

SECURITY NOTE:
  Access control is enforced by the gateway in front of this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/factory"
	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Planning  *planning.Service
	Absences  *timeoff.Service
	Templates *factory.TemplateFactory

	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler creates a handler over the planning and absence services.
func NewHandler(svc *planning.Service, absences *timeoff.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Planning:  svc,
		Absences:  absences,
		Templates: factory.NewTemplateFactory(),
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case planning.IsNotFound(err):
		return http.StatusNotFound
	case planning.IsClientError(err):
		return http.StatusBadRequest
	case planning.IsConflict(err),
		errors.Is(err, timeoff.ErrAbsenceOverlap),
		errors.Is(err, counter.ErrNoAllocation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status of its category. Internal errors are
// logged; client errors are not.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, message, err)
}

// decode reads a JSON body into dst and validates its struct tags.
// On failure it writes a 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// parseDate parses a YYYY-MM-DD calendar date.
func parseDate(field, v string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, &planning.ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return d, nil
}

// parseDateRange parses two calendar dates and checks their order.
func parseDateRange(start, end string) (time.Time, time.Time, error) {
	from, err := parseDate("startDate", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate("endDate", end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, &planning.ValidationError{Field: "endDate", Message: "must not be before startDate"}
	}
	return from, to, nil
}

// queryInt reads an integer query parameter, falling back to def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &planning.ValidationError{Field: name, Message: "must be an integer"}
	}
	return n, nil
}

// today is the current date in the planning time zone.
func (h *Handler) today() time.Time {
	return h.now().In(h.Planning.Location())
}
