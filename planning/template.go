/*
template.go - Template Applicator

PURPOSE:
  Expands a weekly template into concrete draft shifts for one villa, every
  regular villa, or the reinforcement pool, over an arbitrary date range.

EXPANSION:
  Each slot carries an RFC 5545 recurrence (explicit RRULE, or weekdays
  turned into FREQ=WEEKLY;BYDAY=...). The rule is evaluated with rrule-go
  from the template's anchor at the slot's start time, so INTERVAL=2 rules
  keep a stable phase. Only occurrences whose start date lies inside the
  requested range are kept. End times at or before the start time roll to
  the next day (night shifts).

IDEMPOTENCY:
  The unit is (template, villa, week). A Monday-to-Sunday week that already
  holds any shift generated from the template for that villa is left alone
  and reported in SkippedWeeks, even after its shifts were resized or some
  of them deleted. Clearing a week entirely lets the template fill it again.

PUBLISHED MONTHS:
  Occurrences that would land in a published month are not created; each
  affected month yields one schedule_published warning.

SEE ALSO:
  - factory/template.go: template documents (JSON/YAML)
*/
package planning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
)

// DefaultAnchor is the Monday recurrence rules start from when a template
// does not set its own anchor.
var DefaultAnchor = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Scope selects the villas a template is applied to.
type Scope string

const (
	ScopeVilla         Scope = "villa"
	ScopeAll           Scope = "all"
	ScopeReinforcement Scope = "reinforcement"
)

func (s Scope) IsValid() bool {
	switch s {
	case ScopeVilla, ScopeAll, ScopeReinforcement:
		return true
	}
	return false
}

// =============================================================================
// SLOT RECURRENCE
// =============================================================================

var rruleDays = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// Recurrence returns the slot's RRULE string.
func (slot TemplateSlot) Recurrence() string {
	if slot.Rule != "" {
		return strings.TrimPrefix(slot.Rule, "RRULE:")
	}
	days := append([]time.Weekday(nil), slot.Weekdays...)
	sort.Slice(days, func(i, j int) bool { return (days[i]+6)%7 < (days[j]+6)%7 })
	codes := make([]string, 0, len(days))
	for _, d := range days {
		codes = append(codes, rruleDays[d])
	}
	return "FREQ=WEEKLY;BYDAY=" + strings.Join(codes, ",")
}

// Validate checks times, type and recurrence of a slot.
func (slot TemplateSlot) Validate() error {
	if slot.Rule == "" && len(slot.Weekdays) == 0 {
		return invalid("slots", "slot %q needs a rule or weekdays", slot.Label)
	}
	if _, _, err := parseClock(slot.StartTime); err != nil {
		return invalid("slots.startTime", "slot %q: %v", slot.Label, err)
	}
	if _, _, err := parseClock(slot.EndTime); err != nil {
		return invalid("slots.endTime", "slot %q: %v", slot.Label, err)
	}
	if slot.Type != "" && !slot.Type.IsValid() {
		return invalid("slots.type", "slot %q: unknown shift type %q", slot.Label, slot.Type)
	}
	if _, err := rrule.StrToROption(slot.Recurrence()); err != nil {
		return invalid("slots.rule", "slot %q: %v", slot.Label, err)
	}
	return nil
}

// Validate checks a whole template.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return invalid("name", "required")
	}
	if len(t.Slots) == 0 {
		return invalid("slots", "at least one slot required")
	}
	for _, slot := range t.Slots {
		if err := slot.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func parseClock(v string) (int, int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("time %q must be HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}

// Occurrence is one concrete instance of a template slot.
type Occurrence struct {
	Slot      int
	Label     string
	Start     time.Time
	End       time.Time
	Type      ShiftType
	WeekStart time.Time // calendar date of the Monday
}

// ExpandTemplate lists the occurrences of t whose start date lies within the
// calendar dates [fromDate, toDate], ordered by start.
func ExpandTemplate(t Template, fromDate, toDate time.Time, loc *time.Location) ([]Occurrence, error) {
	if loc == nil {
		loc = time.UTC
	}
	anchor := t.Anchor
	if anchor.IsZero() {
		anchor = DefaultAnchor
	}
	rangeStart := StartOfDay(fromDate, loc)
	rangeEnd := StartOfDay(toDate, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)

	var out []Occurrence
	for i, slot := range t.Slots {
		sh, sm, err := parseClock(slot.StartTime)
		if err != nil {
			return nil, invalid("slots.startTime", "%v", err)
		}
		eh, em, err := parseClock(slot.EndTime)
		if err != nil {
			return nil, invalid("slots.endTime", "%v", err)
		}
		opt, err := rrule.StrToROption(slot.Recurrence())
		if err != nil {
			return nil, invalid("slots.rule", "%v", err)
		}
		opt.Dtstart = time.Date(anchor.Year(), anchor.Month(), anchor.Day(), sh, sm, 0, 0, loc)
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, invalid("slots.rule", "%v", err)
		}

		shiftType := slot.Type
		if shiftType == "" {
			shiftType = ShiftRegular
		}
		for _, start := range rule.Between(rangeStart, rangeEnd, true) {
			start = start.In(loc)
			end := time.Date(start.Year(), start.Month(), start.Day(), eh, em, 0, 0, loc)
			if !end.After(start) {
				end = end.AddDate(0, 0, 1)
			}
			out = append(out, Occurrence{
				Slot:      i,
				Label:     slot.Label,
				Start:     start,
				End:       end,
				Type:      shiftType,
				WeekStart: WeekStart(DateOf(start, loc)),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// =============================================================================
// TEMPLATE MANAGEMENT
// =============================================================================

// CreateTemplate validates and stores a template. A template flagged default
// clears the flag on every other template.
func (s *Service) CreateTemplate(ctx context.Context, t Template) (*Template, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Anchor.IsZero() {
		t.Anchor = DefaultAnchor
	}
	t.Anchor = WeekStart(t.Anchor)
	t.CreatedAt = s.timestamp()

	err := s.store.WithTx(ctx, func(st Store) error {
		if t.IsDefault {
			existing, err := st.ListTemplates(ctx)
			if err != nil {
				return err
			}
			for _, other := range existing {
				if other.IsDefault && other.ID != t.ID {
					other.IsDefault = false
					if err := st.SaveTemplate(ctx, other); err != nil {
						return err
					}
				}
			}
		}
		return st.SaveTemplate(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// APPLICATION
// =============================================================================

// ApplyTemplateRequest selects a template, a date range and a scope.
// StartDate and EndDate are inclusive calendar dates.
type ApplyTemplateRequest struct {
	TemplateID string
	StartDate  time.Time
	EndDate    time.Time
	Scope      Scope
	VillaID    string
}

// SkippedWeek reports a week that was already populated.
type SkippedWeek struct {
	VillaID   string
	WeekStart time.Time
}

// ApplyTemplateResult summarizes a template application.
type ApplyTemplateResult struct {
	Created      int
	Skipped      int
	SkippedWeeks []SkippedWeek
	Plannings    []string
	Warnings     []Warning
}

// ApplyTemplate instantiates template shifts over a range for a scope.
func (s *Service) ApplyTemplate(ctx context.Context, req ApplyTemplateRequest) (*ApplyTemplateResult, error) {
	if req.TemplateID == "" {
		return nil, invalid("templateId", "required")
	}
	if !req.Scope.IsValid() {
		return nil, invalid("scope", "must be one of villa, all, reinforcement")
	}
	if req.Scope == ScopeVilla && req.VillaID == "" {
		return nil, invalid("villaId", "required for scope villa")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() || req.EndDate.Before(req.StartDate) {
		return nil, invalid("endDate", "must not be before startDate")
	}

	tmpl, err := s.store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	villas, err := s.villasInScope(ctx, req.Scope, req.VillaID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, *tmpl, villas, req.StartDate, req.EndDate, req.Scope == ScopeReinforcement)
}

// GenerateMonth applies the villa's template to one month and returns the
// month schedule, which exists afterwards even when no shift was created.
// The template is the villa's default template, else the template flagged
// default.
func (s *Service) GenerateMonth(ctx context.Context, villaID string, year int, month time.Month) (*MonthSchedule, *ApplyTemplateResult, error) {
	if year < 1 || month < time.January || month > time.December {
		return nil, nil, invalid("month", "year/month out of range")
	}
	villa, err := s.store.GetVilla(ctx, villaID)
	if err != nil {
		return nil, nil, err
	}
	tmpl, err := s.templateForVilla(ctx, *villa)
	if err != nil {
		return nil, nil, err
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	res, err := s.apply(ctx, *tmpl, []Villa{*villa}, first, last, villa.IsReinforcementPool)
	if err != nil {
		return nil, nil, err
	}

	key := MonthKey{VillaID: villaID, Year: year, Month: month}
	unlock := s.lockMonth(key)
	defer unlock()
	var sched *MonthSchedule
	err = s.store.WithTx(ctx, func(st Store) error {
		var err error
		sched, _, err = s.findOrCreateSchedule(ctx, st, key)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return sched, res, nil
}

func (s *Service) templateForVilla(ctx context.Context, villa Villa) (*Template, error) {
	if villa.DefaultTemplateID != nil && *villa.DefaultTemplateID != "" {
		return s.store.GetTemplate(ctx, *villa.DefaultTemplateID)
	}
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if t.IsDefault {
			return &t, nil
		}
	}
	return nil, notFound("default template for villa", villa.ID, ErrTemplateNotFound)
}

func (s *Service) villasInScope(ctx context.Context, scope Scope, villaID string) ([]Villa, error) {
	if scope == ScopeVilla {
		v, err := s.store.GetVilla(ctx, villaID)
		if err != nil {
			return nil, err
		}
		return []Villa{*v}, nil
	}

	all, err := s.store.ListVillas(ctx)
	if err != nil {
		return nil, err
	}
	var out []Villa
	for _, v := range all {
		if v.IsReinforcementPool == (scope == ScopeReinforcement) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, tmpl Template, villas []Villa, fromDate, toDate time.Time, reinforcement bool) (*ApplyTemplateResult, error) {
	occurrences, err := ExpandTemplate(tmpl, fromDate, toDate, s.loc)
	if err != nil {
		return nil, err
	}

	var keys []MonthKey
	for _, v := range villas {
		for _, occ := range occurrences {
			keys = append(keys, MonthKeyFor(v.ID, occ.Start, s.loc))
		}
	}
	unlock := s.lockMonths(keys)
	defer unlock()

	res := &ApplyTemplateResult{SkippedWeeks: []SkippedWeek{}, Plannings: []string{}, Warnings: []Warning{}}
	err = s.store.WithTx(ctx, func(st Store) error {
		touched := make(map[string]bool)
		schedules := make(map[MonthKey]*MonthSchedule)
		warnedPublished := make(map[MonthKey]bool)

		for _, villa := range villas {
			weeks := groupByWeek(occurrences)
			for _, week := range weeks {
				weekFrom := StartOfDay(week.start, s.loc)
				existing, err := st.FindTemplateShifts(ctx, tmpl.ID, villa.ID, weekFrom, weekFrom.AddDate(0, 0, 7))
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					res.Skipped += len(week.items)
					res.SkippedWeeks = append(res.SkippedWeeks, SkippedWeek{VillaID: villa.ID, WeekStart: week.start})
					continue
				}

				created, skipped := 0, 0
				for _, occ := range week.items {
					key := MonthKeyFor(villa.ID, occ.Start, s.loc)
					sched, ok := schedules[key]
					if !ok {
						sched, _, err = s.findOrCreateSchedule(ctx, st, key)
						if err != nil {
							return err
						}
						schedules[key] = sched
					}
					if !touched[sched.ID] {
						touched[sched.ID] = true
						res.Plannings = append(res.Plannings, sched.ID)
					}

					if sched.IsPublished() {
						if !warnedPublished[key] {
							warnedPublished[key] = true
							res.Warnings = append(res.Warnings, Warning{
								Type:     WarnSchedulePublished,
								Message:  fmt.Sprintf("Month %s is published; template shifts were not added", key),
								Severity: SeverityWarning,
							})
						}
						skipped++
						continue
					}

					shiftType := occ.Type
					if reinforcement {
						shiftType = ShiftReinforcement
					}
					now := s.timestamp()
					shift := Shift{
						ID:           newID(),
						PlanningID:   sched.ID,
						VillaID:      strPtr(villa.ID),
						Start:        occ.Start,
						End:          occ.End,
						Type:         shiftType,
						Status:       ShiftDraft,
						WorkingDays:  WorkingDays(occ.Start, occ.End, shiftType, s.loc),
						Comment:      occ.Label,
						FromTemplate: true,
						TemplateID:   strPtr(tmpl.ID),
						CreatedAt:    now,
						UpdatedAt:    now,
					}
					if err := st.SaveShift(ctx, shift); err != nil {
						return err
					}
					created++
				}

				res.Created += created
				res.Skipped += skipped
				if created == 0 && skipped > 0 {
					res.SkippedWeeks = append(res.SkippedWeeks, SkippedWeek{VillaID: villa.ID, WeekStart: week.start})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("template applied",
		zap.String("template_id", tmpl.ID),
		zap.Int("villas", len(villas)),
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("skipped_weeks", len(res.SkippedWeeks)),
	)
	return res, nil
}

type weekGroup struct {
	start time.Time // Monday, calendar date
	items []Occurrence
}

func groupByWeek(occs []Occurrence) []weekGroup {
	var weeks []weekGroup
	for _, occ := range occs {
		if n := len(weeks); n > 0 && weeks[n-1].start.Equal(occ.WeekStart) {
			weeks[n-1].items = append(weeks[n-1].items, occ)
			continue
		}
		weeks = append(weeks, weekGroup{start: occ.WeekStart, items: []Occurrence{occ}})
	}
	return weeks
}
