/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the planning API. These types decouple
  the domain model from the wire contract the planning screens consume.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Request types carry validator/v10 struct tags. Handlers call
  Handler.decode, which rejects unknown shapes with 400 before any domain
  call. Business rules (ranges, transitions) stay in the domain packages.

DATES:
  Instants are RFC 3339. Calendar dates (startDate, endDate) are
  YYYY-MM-DD in the planning time zone.

SEE ALSO:
  - handlers.go: Uses these types
  - planning/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/factory"
	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/timeoff"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// WARNINGS
// =============================================================================

// WarningDTO is a non-blocking issue attached to a successful response.
type WarningDTO struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	Severity      string `json:"severity"`
	AffectationID string `json:"affectationId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

func toWarningDTOs(ws []planning.Warning) []WarningDTO {
	out := make([]WarningDTO, 0, len(ws))
	for _, w := range ws {
		out = append(out, WarningDTO{
			Type:          string(w.Type),
			Message:       w.Message,
			Severity:      string(w.Severity),
			AffectationID: w.AffectationID,
			UserID:        w.UserID,
		})
	}
	return out
}

// =============================================================================
// MONTH PLANNING
// =============================================================================

// PlanningDTO is a month schedule header.
type PlanningDTO struct {
	ID          string     `json:"id"`
	VillaID     string     `json:"villaId"`
	Year        int        `json:"year"`
	Month       int        `json:"month"`
	Status      string     `json:"status"`
	ValidatedAt *time.Time `json:"validatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// UserRefDTO is the assignee embedded in an affectation.
type UserRefDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// AffectationDTO is a shift as the planning screen shows it.
type AffectationDTO struct {
	ID              string      `json:"id"`
	PlanningID      string      `json:"planningId"`
	Start           time.Time   `json:"start"`
	End             time.Time   `json:"end"`
	Type            string      `json:"type"`
	Status          string      `json:"status"`
	WorkingDays     float64     `json:"workingDays"`
	Comment         string      `json:"comment,omitempty"`
	IsFromSquelette bool        `json:"isFromSquelette"`
	User            *UserRefDTO `json:"user"`
}

// MonthPlanningResponse is the body of GET /planning/villas/{villaId}.
type MonthPlanningResponse struct {
	Planning     *PlanningDTO     `json:"planning"`
	Affectations []AffectationDTO `json:"affectations"`
}

// GenerateMonthRequest is the body of POST /planning/villas/{villaId}/generate.
type GenerateMonthRequest struct {
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

// GenerateMonthResponse returns the created or updated schedule.
type GenerateMonthResponse struct {
	ID       string       `json:"id"`
	Created  int          `json:"created"`
	Skipped  int          `json:"skipped"`
	Warnings []WarningDTO `json:"warnings"`
}

// CreateAffectationRequest is a manual shift creation.
type CreateAffectationRequest struct {
	UserID  string    `json:"userId"`
	StartAt time.Time `json:"startAt" validate:"required"`
	EndAt   time.Time `json:"endAt" validate:"required"`
	Type    string    `json:"type" validate:"omitempty,oneof=regular reinforcement weekend_duty other"`
	Comment string    `json:"comment"`
}

// AffectationResponse is a shift with the warnings its mutation produced.
type AffectationResponse struct {
	Success     bool           `json:"success"`
	Affectation AffectationDTO `json:"affectation"`
	Warnings    []WarningDTO   `json:"warnings"`
}

func toPlanningDTO(m *planning.MonthSchedule) *PlanningDTO {
	if m == nil {
		return nil
	}
	return &PlanningDTO{
		ID:          m.ID,
		VillaID:     m.VillaID,
		Year:        m.Year,
		Month:       int(m.Month),
		Status:      string(m.Status),
		ValidatedAt: m.ValidatedAt,
		PublishedAt: m.PublishedAt,
	}
}

func toAffectationDTO(s planning.Shift, u *planning.User) AffectationDTO {
	dto := AffectationDTO{
		ID:              s.ID,
		PlanningID:      s.PlanningID,
		Start:           s.Start,
		End:             s.End,
		Type:            string(s.Type),
		Status:          string(s.Status),
		WorkingDays:     s.WorkingDays.InexactFloat64(),
		Comment:         s.Comment,
		IsFromSquelette: s.FromTemplate,
	}
	if u != nil {
		dto.User = &UserRefDTO{ID: u.ID, Name: u.Name, Color: u.Color}
	} else if s.IsAssigned() {
		dto.User = &UserRefDTO{ID: s.Assignee()}
	}
	return dto
}

// =============================================================================
// PLANNING ASSIGNMENT
// =============================================================================

// ApplyTemplateRequest is the body of POST /planning-assignment/generate.
type ApplyTemplateRequest struct {
	TemplateID string `json:"templateId" validate:"required"`
	StartDate  string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Scope      string `json:"scope" validate:"required,oneof=villa all reinforcement"`
	VillaID    string `json:"villaId" validate:"required_if=Scope villa"`
}

// SkippedWeekDTO is a week the applicator found already populated.
type SkippedWeekDTO struct {
	VillaID   string `json:"villaId"`
	WeekStart string `json:"weekStart"`
}

// ApplyTemplateResponse summarizes a template application.
type ApplyTemplateResponse struct {
	Success      bool             `json:"success"`
	Created      int              `json:"created"`
	Skipped      int              `json:"skipped"`
	SkippedWeeks []SkippedWeekDTO `json:"skippedWeeks"`
	Plannings    []string         `json:"plannings"`
	Warnings     []WarningDTO     `json:"warnings"`
}

func toApplyTemplateResponse(res *planning.ApplyTemplateResult) ApplyTemplateResponse {
	out := ApplyTemplateResponse{
		Success:      true,
		Created:      res.Created,
		Skipped:      res.Skipped,
		SkippedWeeks: make([]SkippedWeekDTO, 0, len(res.SkippedWeeks)),
		Plannings:    nonNilStrings(res.Plannings),
		Warnings:     toWarningDTOs(res.Warnings),
	}
	for _, w := range res.SkippedWeeks {
		out.SkippedWeeks = append(out.SkippedWeeks, SkippedWeekDTO{
			VillaID:   w.VillaID,
			WeekStart: w.WeekStart.Format(time.DateOnly),
		})
	}
	return out
}

// AssignRequest is the body of POST /planning-assignment/assign. An empty
// userId unassigns the shift.
type AssignRequest struct {
	AffectationID string `json:"affectationId" validate:"required"`
	UserID        string `json:"userId"`
}

// SuccessResponse is a soft success with warnings.
type SuccessResponse struct {
	Success  bool         `json:"success"`
	Warnings []WarningDTO `json:"warnings"`
}

// HoursRequest is the body of PUT /planning-assignment/hours/{id}.
type HoursRequest struct {
	StartAt time.Time `json:"startAt" validate:"required"`
	EndAt   time.Time `json:"endAt" validate:"required"`
}

// HoursResponse returns the recomputed working days.
type HoursResponse struct {
	Success     bool         `json:"success"`
	WorkingDays float64      `json:"workingDays"`
	Warnings    []WarningDTO `json:"warnings"`
}

// PeriodDTO is one busy interval of a user's calendar.
type PeriodDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"`
	Color string    `json:"color"`
	Label string    `json:"label"`
	RefID string    `json:"refId,omitempty"`
}

// AvailabilityResponse is the Availability Resolver output.
type AvailabilityResponse struct {
	UserID  string      `json:"userId"`
	Periods []PeriodDTO `json:"periods"`
}

func toPeriodDTOs(busy []planning.BusyInterval) []PeriodDTO {
	out := make([]PeriodDTO, 0, len(busy))
	for _, b := range busy {
		out = append(out, PeriodDTO{
			Start: b.Start,
			End:   b.End,
			Type:  string(b.Source),
			Color: b.Color,
			Label: b.Label,
			RefID: b.RefID,
		})
	}
	return out
}

// PlanningIDRequest is the body of publish and reopen.
type PlanningIDRequest struct {
	PlanningID string `json:"planningId" validate:"required"`
}

// ValidateRequest is the body of POST /planning-assignment/validate.
type ValidateRequest struct {
	PlanningID string `json:"planningId" validate:"required"`
	DryRun     bool   `json:"dryRun"`
}

// ValidationResponse is the Validation Service report.
type ValidationResponse struct {
	Success           bool         `json:"success"`
	PlanningID        string       `json:"planningId"`
	Status            string       `json:"status"`
	DryRun            bool         `json:"dryRun"`
	TotalShifts       int          `json:"totalShifts"`
	AssignedShifts    int          `json:"assignedShifts"`
	HasBlockingIssues bool         `json:"hasBlockingIssues"`
	Unassigned        []WarningDTO `json:"unassigned"`
	Conflicts         []WarningDTO `json:"conflicts"`
	CounterDeficits   []WarningDTO `json:"counterDeficits"`
	Warnings          []WarningDTO `json:"warnings"`
}

func toValidationResponse(r *planning.ValidationReport, dryRun bool) ValidationResponse {
	return ValidationResponse{
		Success:           true,
		PlanningID:        r.PlanningID,
		Status:            string(r.Status),
		DryRun:            dryRun,
		TotalShifts:       r.TotalShifts,
		AssignedShifts:    r.AssignedShifts,
		HasBlockingIssues: r.HasBlockingIssues(),
		Unassigned:        toWarningDTOs(r.Unassigned),
		Conflicts:         toWarningDTOs(r.Conflicts),
		CounterDeficits:   toWarningDTOs(r.CounterDeficits),
		Warnings:          toWarningDTOs(r.Warnings()),
	}
}

// DeductionFailureDTO is a shift whose counter deduction failed.
type DeductionFailureDTO struct {
	AffectationID string  `json:"affectationId"`
	UserID        string  `json:"userId"`
	Days          float64 `json:"days"`
	Error         string  `json:"error"`
}

func toFailureDTOs(fs []planning.DeductionFailure) []DeductionFailureDTO {
	out := make([]DeductionFailureDTO, 0, len(fs))
	for _, f := range fs {
		out = append(out, DeductionFailureDTO{
			AffectationID: f.AffectationID,
			UserID:        f.UserID,
			Days:          f.Days.InexactFloat64(),
			Error:         f.Error,
		})
	}
	return out
}

// PublishResponse is the outcome of a publication.
type PublishResponse struct {
	Success     bool                  `json:"success"`
	PlanningID  string                `json:"planningId"`
	PublishedAt time.Time             `json:"publishedAt"`
	Deducted    int                   `json:"deducted"`
	TotalDays   float64               `json:"totalDays"`
	Warnings    []WarningDTO          `json:"warnings"`
	Failures    []DeductionFailureDTO `json:"failures"`
}

// ReopenResponse is the outcome of a reopen-to-draft.
type ReopenResponse struct {
	Success    bool                  `json:"success"`
	PlanningID string                `json:"planningId"`
	Restored   int                   `json:"restored"`
	TotalDays  float64               `json:"totalDays"`
	Failures   []DeductionFailureDTO `json:"failures"`
}

// PublicationDTO is one publication audit record.
type PublicationDTO struct {
	ID          string                `json:"id"`
	PlanningID  string                `json:"planningId"`
	PublishedAt time.Time             `json:"publishedAt"`
	Deducted    int                   `json:"deducted"`
	TotalDays   float64               `json:"totalDays"`
	Warnings    []WarningDTO          `json:"warnings"`
	Failures    []DeductionFailureDTO `json:"failures"`
}

// BatchDataDTO carries the optional fields of one change.
type BatchDataDTO struct {
	UserID  *string    `json:"userId"`
	StartAt *time.Time `json:"startAt"`
	EndAt   *time.Time `json:"endAt"`
	Type    *string    `json:"type"`
	Status  *string    `json:"status"`
	Comment *string    `json:"comment"`
}

// BatchChangeDTO is one batch item.
type BatchChangeDTO struct {
	AffectationID string       `json:"affectationId"`
	Type          string       `json:"type"`
	Data          BatchDataDTO `json:"data"`
}

// BatchUpdateRequest is the body of POST /planning-assignment/batch-update.
// Items are checked one by one so one bad item does not reject the batch.
type BatchUpdateRequest struct {
	Changes []BatchChangeDTO `json:"changes" validate:"required,dive"`
}

// BatchUpdateResponse reports processed items and accumulated warnings.
type BatchUpdateResponse struct {
	Success   bool         `json:"success"`
	Processed int          `json:"processed"`
	Warnings  []WarningDTO `json:"warnings"`
}

func (c BatchChangeDTO) toDomain() planning.BatchChange {
	out := planning.BatchChange{
		AffectationID: c.AffectationID,
		Type:          planning.ChangeType(c.Type),
		Data: planning.BatchData{
			UserID:  c.Data.UserID,
			StartAt: c.Data.StartAt,
			EndAt:   c.Data.EndAt,
			Comment: c.Data.Comment,
		},
	}
	if c.Data.Type != nil {
		t := planning.ShiftType(*c.Data.Type)
		out.Data.Type = &t
	}
	if c.Data.Status != nil {
		s := planning.ShiftStatus(*c.Data.Status)
		out.Data.Status = &s
	}
	return out
}

// ValidateMonthRequest is the body of POST /planning-assignment/validate-month.
type ValidateMonthRequest struct {
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

// ValidateMonthResponse is the outcome of a bulk validation.
type ValidateMonthResponse struct {
	Success   bool         `json:"success"`
	Count     int          `json:"count"`
	Plannings []string     `json:"plannings"`
	Warnings  []WarningDTO `json:"warnings"`
}

// =============================================================================
// VILLAS, USERS & TEMPLATES
// =============================================================================

// VillaDTO represents a villa.
type VillaDTO struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Color               string  `json:"color"`
	IsReinforcementPool bool    `json:"isReinforcementPool"`
	DefaultTemplateID   *string `json:"defaultTemplateId"`
}

// CreateVillaRequest is the body of POST /villas.
type CreateVillaRequest struct {
	Name                string `json:"name" validate:"required"`
	Color               string `json:"color" validate:"omitempty,hexcolor"`
	IsReinforcementPool bool   `json:"isReinforcementPool"`
	DefaultTemplateID   string `json:"defaultTemplateId"`
}

func toVillaDTO(v planning.Villa) VillaDTO {
	return VillaDTO{
		ID:                  v.ID,
		Name:                v.Name,
		Color:               v.Color,
		IsReinforcementPool: v.IsReinforcementPool,
		DefaultTemplateID:   v.DefaultTemplateID,
	}
}

// UserDTO represents an educator or administrator.
type UserDTO struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
	VillaID *string  `json:"villaId"`
	Color   string   `json:"color"`
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Name    string   `json:"name" validate:"required"`
	Email   string   `json:"email" validate:"omitempty,email"`
	Roles   []string `json:"roles"`
	VillaID string   `json:"villaId"`
	Color   string   `json:"color" validate:"omitempty,hexcolor"`
}

func toUserDTO(u planning.User) UserDTO {
	return UserDTO{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Roles:   nonNilStrings(u.Roles),
		VillaID: u.VillaID,
		Color:   u.Color,
	}
}

// TemplateDTO wraps the template document with its server fields.
type TemplateDTO struct {
	factory.TemplateDocument
	CreatedAt time.Time `json:"createdAt"`
}

// =============================================================================
// ABSENCES & COUNTERS
// =============================================================================

// CreateAbsenceRequest is the body of POST /absences.
type CreateAbsenceRequest struct {
	UserID         string `json:"userId" validate:"required"`
	Type           string `json:"type" validate:"required,oneof=leave annual_day sick unpaid training other"`
	StartDate      string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate        string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason         string `json:"reason"`
	DeductsCounter *bool  `json:"deductsCounter"`
}

// AbsenceDTO represents an absence.
type AbsenceDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"userId"`
	Type           string  `json:"type"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	Status         string  `json:"status"`
	DeductsCounter bool    `json:"deductsCounter"`
	WorkingDays    float64 `json:"workingDays"`
	Reason         string  `json:"reason,omitempty"`
}

func toAbsenceDTO(a planning.Absence) AbsenceDTO {
	return AbsenceDTO{
		ID:             a.ID,
		UserID:         a.UserID,
		Type:           string(a.Type),
		StartDate:      a.StartDate.Format(time.DateOnly),
		EndDate:        a.EndDate.Format(time.DateOnly),
		Status:         string(a.Status),
		DeductsCounter: a.DeductsCounter,
		WorkingDays:    a.WorkingDays.InexactFloat64(),
		Reason:         a.Reason,
	}
}

// CheckBalanceRequest is the body of POST /absences/check-balance.
type CheckBalanceRequest struct {
	UserID    string `json:"userId" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=leave annual_day sick unpaid training other"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

// CheckBalanceResponse is a pre-flight sufficiency check.
type CheckBalanceResponse struct {
	UserID         string  `json:"userId"`
	Type           string  `json:"type"`
	PeriodKey      string  `json:"periodKey"`
	Requested      float64 `json:"requested"`
	Remaining      float64 `json:"remaining"`
	RemainingAfter float64 `json:"remainingAfter"`
	Sufficient     bool    `json:"sufficient"`
}

func toCheckBalanceResponse(b *timeoff.BalanceCheck) CheckBalanceResponse {
	return CheckBalanceResponse{
		UserID:         b.UserID,
		Type:           string(b.Type),
		PeriodKey:      b.PeriodKey,
		Requested:      b.Requested.InexactFloat64(),
		Remaining:      b.Remaining.InexactFloat64(),
		RemainingAfter: b.RemainingAfter.InexactFloat64(),
		Sufficient:     b.Sufficient,
	}
}

// CompteurDTO is one row of GET /absences/compteurs/{userId}.
type CompteurDTO struct {
	Type       string  `json:"type"`
	Year       int     `json:"year"`
	PeriodKey  string  `json:"periodKey"`
	Earned     float64 `json:"earned"`
	Taken      float64 `json:"taken"`
	Remaining  float64 `json:"remaining"`
	IsNegative bool    `json:"isNegative"`
}

func toCompteurDTOs(rows []timeoff.Summary) []CompteurDTO {
	out := make([]CompteurDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, CompteurDTO{
			Type:       r.Type,
			Year:       r.Year,
			PeriodKey:  r.PeriodKey,
			Earned:     r.Earned.InexactFloat64(),
			Taken:      r.Taken.InexactFloat64(),
			Remaining:  r.Remaining.InexactFloat64(),
			IsNegative: r.IsNegative,
		})
	}
	return out
}

// AdjustCounterRequest is the body of POST /counters/adjust.
type AdjustCounterRequest struct {
	UserID    string  `json:"userId" validate:"required"`
	PeriodKey string  `json:"periodKey" validate:"required"`
	Amount    float64 `json:"amount" validate:"required"`
	Reason    string  `json:"reason" validate:"required"`
}

// RolloverRequest is the body of POST /counters/rollover. Without userId
// every user's counter of the period is rolled.
type RolloverRequest struct {
	FromPeriodKey string `json:"fromPeriodKey" validate:"required"`
	UserID        string `json:"userId"`
}

// RolloverDTO is one rolled counter.
type RolloverDTO struct {
	UserID      string  `json:"userId"`
	FromKey     string  `json:"fromKey"`
	ToKey       string  `json:"toKey"`
	Remaining   float64 `json:"remaining"`
	CarriedOver float64 `json:"carriedOver"`
	Forfeited   float64 `json:"forfeited"`
}

// RolloverResponse lists rolled counters and per-user failures.
type RolloverResponse struct {
	Success  bool              `json:"success"`
	Rolled   []RolloverDTO     `json:"rolled"`
	Failures map[string]string `json:"failures"`
}

func toRolloverDTO(r counter.RolloverResult) RolloverDTO {
	return RolloverDTO{
		UserID:      r.UserID,
		FromKey:     r.FromKey,
		ToKey:       r.ToKey,
		Remaining:   r.Remaining.InexactFloat64(),
		CarriedOver: r.CarriedOver.InexactFloat64(),
		Forfeited:   r.Forfeited.InexactFloat64(),
	}
}

// CounterDTO represents a counter.
type CounterDTO struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Kind         string     `json:"kind"`
	PeriodKey    string     `json:"periodKey"`
	Allocated    float64    `json:"allocated"`
	Consumed     float64    `json:"consumed"`
	Adjustment   float64    `json:"adjustment"`
	CarriedOver  float64    `json:"carriedOver"`
	Remaining    float64    `json:"remaining"`
	RolledOverAt *time.Time `json:"rolledOverAt,omitempty"`
}

func toCounterDTO(c counter.Counter) CounterDTO {
	return CounterDTO{
		ID:           c.ID,
		UserID:       c.UserID,
		Kind:         string(c.Kind),
		PeriodKey:    c.PeriodKey,
		Allocated:    c.Allocated.InexactFloat64(),
		Consumed:     c.Consumed.InexactFloat64(),
		Adjustment:   c.Adjustment.InexactFloat64(),
		CarriedOver:  c.CarriedOver.InexactFloat64(),
		Remaining:    c.Remaining().InexactFloat64(),
		RolledOverAt: c.RolledOverAt,
	}
}

// MutationDTO is one audit entry.
type MutationDTO struct {
	ID              string    `json:"id"`
	CounterID       string    `json:"counterId"`
	Kind            string    `json:"kind"`
	PeriodKey       string    `json:"periodKey"`
	Operation       string    `json:"operation"`
	Amount          float64   `json:"amount"`
	ConsumedBefore  float64   `json:"consumedBefore"`
	ConsumedAfter   float64   `json:"consumedAfter"`
	RemainingBefore float64   `json:"remainingBefore"`
	RemainingAfter  float64   `json:"remainingAfter"`
	Reference       string    `json:"reference,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	IdempotencyKey  string    `json:"idempotencyKey,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toMutationDTO(m counter.Mutation) MutationDTO {
	return MutationDTO{
		ID:              m.ID,
		CounterID:       m.CounterID,
		Kind:            string(m.Kind),
		PeriodKey:       m.PeriodKey,
		Operation:       string(m.Operation),
		Amount:          m.Amount.InexactFloat64(),
		ConsumedBefore:  m.ConsumedBefore.InexactFloat64(),
		ConsumedAfter:   m.ConsumedAfter.InexactFloat64(),
		RemainingBefore: m.RemainingBefore.InexactFloat64(),
		RemainingAfter:  m.RemainingAfter.InexactFloat64(),
		Reference:       m.Reference,
		Reason:          m.Reason,
		IdempotencyKey:  m.IdempotencyKey,
		CreatedAt:       m.CreatedAt,
	}
}

// =============================================================================
// APPOINTMENTS & ON-CALL
// =============================================================================

// CreateAppointmentRequest is the body of POST /appointments.
type CreateAppointmentRequest struct {
	OrganizerID    string    `json:"organizerId" validate:"required"`
	Title          string    `json:"title" validate:"required"`
	Type           string    `json:"type" validate:"required,oneof=request summons"`
	StartAt        time.Time `json:"startAt" validate:"required"`
	EndAt          time.Time `json:"endAt" validate:"required"`
	ImpactsDuty    bool      `json:"impactsDuty"`
	ParticipantIDs []string  `json:"participantIds" validate:"dive,required"`
}

// AppointmentStatusRequest is the body of POST /appointments/{id}/status.
type AppointmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed refused completed cancelled"`
}

// ParticipantDTO is one appointment participant.
type ParticipantDTO struct {
	UserID   string `json:"userId"`
	Presence string `json:"presence"`
}

// AppointmentDTO represents an appointment.
type AppointmentDTO struct {
	ID           string           `json:"id"`
	OrganizerID  string           `json:"organizerId"`
	Title        string           `json:"title"`
	Type         string           `json:"type"`
	Status       string           `json:"status"`
	Start        time.Time        `json:"start"`
	End          time.Time        `json:"end"`
	ImpactsDuty  bool             `json:"impactsDuty"`
	Participants []ParticipantDTO `json:"participants"`
}

func toAppointmentDTO(a planning.Appointment) AppointmentDTO {
	dto := AppointmentDTO{
		ID:           a.ID,
		OrganizerID:  a.OrganizerID,
		Title:        a.Title,
		Type:         string(a.Type),
		Status:       string(a.Status),
		Start:        a.Start,
		End:          a.End,
		ImpactsDuty:  a.ImpactsDuty,
		Participants: make([]ParticipantDTO, 0, len(a.Participants)),
	}
	for _, p := range a.Participants {
		dto.Participants = append(dto.Participants, ParticipantDTO{UserID: p.UserID, Presence: string(p.Presence)})
	}
	return dto
}

// CreateOnCallRequest is the body of POST /on-call.
type CreateOnCallRequest struct {
	StartAt time.Time `json:"startAt" validate:"required"`
	EndAt   time.Time `json:"endAt" validate:"required"`
	UserID  string    `json:"userId"`
}

// AssignOnCallRequest is the body of POST /on-call/{id}/assign. An empty
// userId unassigns the period.
type AssignOnCallRequest struct {
	UserID string `json:"userId"`
}

// OnCallDTO represents an on-call period.
type OnCallDTO struct {
	ID               string    `json:"id"`
	UserID           *string   `json:"userId"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Status           string    `json:"status"`
	ReplacementCount int       `json:"replacementCount"`
}

func toOnCallDTO(o planning.OnCall) OnCallDTO {
	return OnCallDTO{
		ID:               o.ID,
		UserID:           o.UserID,
		Start:            o.Start,
		End:              o.End,
		Status:           string(o.Status()),
		ReplacementCount: o.ReplacementCount,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toFloat(d decimal.Decimal) float64 { return d.InexactFloat64() }
