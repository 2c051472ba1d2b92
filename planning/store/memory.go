// Package store provides an in-memory planning.Store.
package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record in maps guarded by one RWMutex. Values are
// copied in and out, so callers never share memory with the store.
//
// WithTx holds the write lock for the whole of fn, takes a snapshot and
// restores it when fn fails. The view passed to fn works on the same state
// without locking. WithTx on a view is a savepoint: its own snapshot,
// restored on error, with the outer transaction left running.
type Memory struct {
	mu   *sync.RWMutex
	st   *state
	inTx bool
}

var (
	_ planning.Store = (*Memory)(nil)
	_ counter.Store  = (*Memory)(nil)
)

type state struct {
	villas       map[string]planning.Villa
	users        map[string]planning.User
	schedules    map[string]planning.MonthSchedule
	shifts       map[string]planning.Shift
	absences     map[string]planning.Absence
	appointments map[string]planning.Appointment
	onCalls      map[string]planning.OnCall
	templates    map[string]planning.Template
	publications map[string][]planning.Publication

	counters    map[counter.Key]counter.Counter
	mutations   map[string][]counter.Mutation
	idempotency map[string]bool
}

func newState() *state {
	return &state{
		villas:       make(map[string]planning.Villa),
		users:        make(map[string]planning.User),
		schedules:    make(map[string]planning.MonthSchedule),
		shifts:       make(map[string]planning.Shift),
		absences:     make(map[string]planning.Absence),
		appointments: make(map[string]planning.Appointment),
		onCalls:      make(map[string]planning.OnCall),
		templates:    make(map[string]planning.Template),
		publications: make(map[string][]planning.Publication),
		counters:     make(map[counter.Key]counter.Counter),
		mutations:    make(map[string][]counter.Mutation),
		idempotency:  make(map[string]bool),
	}
}

func NewMemory() *Memory {
	return &Memory{mu: &sync.RWMutex{}, st: newState()}
}

func (m *Memory) rlock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(planning.Store) error) error {
	unlock := m.lock()
	defer unlock()

	snap := m.st.clone()
	view := &Memory{mu: m.mu, st: m.st, inTx: true}
	if err := fn(view); err != nil {
		*m.st = *snap
		return err
	}
	return nil
}

// WithCounterTx is WithTx for the counter ledger.
func (m *Memory) WithCounterTx(ctx context.Context, fn func(counter.Store) error) error {
	return m.WithTx(ctx, func(st planning.Store) error { return fn(st) })
}

func (s *state) clone() *state {
	c := &state{
		villas:       cloneMap(s.villas),
		users:        cloneMap(s.users),
		schedules:    cloneMap(s.schedules),
		shifts:       cloneMap(s.shifts),
		absences:     cloneMap(s.absences),
		appointments: cloneMap(s.appointments),
		onCalls:      cloneMap(s.onCalls),
		templates:    cloneMap(s.templates),
		publications: make(map[string][]planning.Publication, len(s.publications)),
		counters:     cloneMap(s.counters),
		mutations:    make(map[string][]counter.Mutation, len(s.mutations)),
		idempotency:  cloneMap(s.idempotency),
	}
	for k, v := range s.publications {
		c.publications[k] = slices.Clone(v)
	}
	for k, v := range s.mutations {
		c.mutations[k] = slices.Clone(v)
	}
	return c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// =============================================================================
// CALENDAR SOURCE
// =============================================================================

func (m *Memory) FindApprovedAbsencesInRange(_ context.Context, userID string, fromDate, toDate time.Time) ([]planning.Absence, error) {
	defer m.rlock()()
	out := []planning.Absence{}
	for _, a := range m.st.absences {
		if a.UserID != userID || a.Status != planning.AbsenceApproved {
			continue
		}
		if a.StartDate.After(toDate) || a.EndDate.Before(fromDate) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Memory) FindAppointmentsInRange(_ context.Context, userID string, from, to time.Time) ([]planning.Appointment, error) {
	defer m.rlock()()
	out := []planning.Appointment{}
	for _, a := range m.st.appointments {
		if !a.Start.Before(to) || !a.End.After(from) {
			continue
		}
		if a.OrganizerID != userID && !slices.ContainsFunc(a.Participants, func(p planning.Participant) bool {
			return p.UserID == userID
		}) {
			continue
		}
		out = append(out, cloneAppointment(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) FindUserOnCallInRange(_ context.Context, userID string, from, to time.Time) ([]planning.OnCall, error) {
	defer m.rlock()()
	out := []planning.OnCall{}
	for _, o := range m.st.onCalls {
		if o.UserID == nil || *o.UserID != userID {
			continue
		}
		if o.Start.Before(to) && o.End.After(from) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) FindOverlappingShifts(_ context.Context, userID string, from, to time.Time) ([]planning.Shift, error) {
	defer m.rlock()()
	out := []planning.Shift{}
	for _, s := range m.st.shifts {
		if s.Assignee() == userID && s.Overlaps(from, to) {
			out = append(out, s)
		}
	}
	sortShifts(out)
	return out, nil
}

// =============================================================================
// VILLAS & USERS
// =============================================================================

func (m *Memory) GetVilla(_ context.Context, id string) (*planning.Villa, error) {
	defer m.rlock()()
	v, ok := m.st.villas[id]
	if !ok {
		return nil, &planning.NotFoundError{Entity: "villa", ID: id, Err: planning.ErrVillaNotFound}
	}
	return &v, nil
}

func (m *Memory) ListVillas(_ context.Context) ([]planning.Villa, error) {
	defer m.rlock()()
	out := make([]planning.Villa, 0, len(m.st.villas))
	for _, v := range m.st.villas {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveVilla(_ context.Context, v planning.Villa) error {
	defer m.lock()()
	m.st.villas[v.ID] = v
	return nil
}

func (m *Memory) DeleteVilla(_ context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.st.villas[id]; !ok {
		return &planning.NotFoundError{Entity: "villa", ID: id, Err: planning.ErrVillaNotFound}
	}
	delete(m.st.villas, id)
	return nil
}

func (m *Memory) CountVillaDependents(_ context.Context, villaID string) (int, int, error) {
	defer m.rlock()()
	var shifts, users int
	for _, s := range m.st.shifts {
		if s.VillaID != nil && *s.VillaID == villaID {
			shifts++
		}
	}
	for _, u := range m.st.users {
		if u.VillaID != nil && *u.VillaID == villaID {
			users++
		}
	}
	return shifts, users, nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*planning.User, error) {
	defer m.rlock()()
	u, ok := m.st.users[id]
	if !ok {
		return nil, &planning.NotFoundError{Entity: "user", ID: id, Err: planning.ErrUserNotFound}
	}
	u.Roles = slices.Clone(u.Roles)
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]planning.User, error) {
	defer m.rlock()()
	out := make([]planning.User, 0, len(m.st.users))
	for _, u := range m.st.users {
		u.Roles = slices.Clone(u.Roles)
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveUser(_ context.Context, u planning.User) error {
	defer m.lock()()
	u.Roles = slices.Clone(u.Roles)
	m.st.users[u.ID] = u
	return nil
}

// =============================================================================
// MONTH SCHEDULES
// =============================================================================

func (m *Memory) GetSchedule(_ context.Context, id string) (*planning.MonthSchedule, error) {
	defer m.rlock()()
	s, ok := m.st.schedules[id]
	if !ok {
		return nil, &planning.NotFoundError{Entity: "month schedule", ID: id, Err: planning.ErrScheduleNotFound}
	}
	return &s, nil
}

func (m *Memory) FindSchedule(_ context.Context, key planning.MonthKey) (*planning.MonthSchedule, error) {
	defer m.rlock()()
	for _, s := range m.st.schedules {
		if s.Key() == key {
			return &s, nil
		}
	}
	return nil, &planning.NotFoundError{Entity: "month schedule", ID: key.String(), Err: planning.ErrScheduleNotFound}
}

func (m *Memory) ListSchedulesByMonth(_ context.Context, year int, month time.Month) ([]planning.MonthSchedule, error) {
	defer m.rlock()()
	out := []planning.MonthSchedule{}
	for _, s := range m.st.schedules {
		if s.Year == year && s.Month == month {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VillaID < out[j].VillaID })
	return out, nil
}

func (m *Memory) SaveSchedule(_ context.Context, s planning.MonthSchedule) error {
	defer m.lock()()
	for _, other := range m.st.schedules {
		if other.ID != s.ID && other.Key() == s.Key() {
			return fmt.Errorf("month schedule %s: %w", s.Key(), planning.ErrDuplicate)
		}
	}
	m.st.schedules[s.ID] = s
	return nil
}

func (m *Memory) DeleteSchedule(_ context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.st.schedules[id]; !ok {
		return &planning.NotFoundError{Entity: "month schedule", ID: id, Err: planning.ErrScheduleNotFound}
	}
	for sid, s := range m.st.shifts {
		if s.PlanningID == id {
			delete(m.st.shifts, sid)
		}
	}
	delete(m.st.publications, id)
	delete(m.st.schedules, id)
	return nil
}

// =============================================================================
// SHIFTS
// =============================================================================

func (m *Memory) GetShift(_ context.Context, id string) (*planning.Shift, error) {
	defer m.rlock()()
	s, ok := m.st.shifts[id]
	if !ok {
		return nil, &planning.NotFoundError{Entity: "shift", ID: id, Err: planning.ErrShiftNotFound}
	}
	return &s, nil
}

func (m *Memory) SaveShift(_ context.Context, s planning.Shift) error {
	defer m.lock()()
	if _, ok := m.st.schedules[s.PlanningID]; !ok {
		return &planning.NotFoundError{Entity: "month schedule", ID: s.PlanningID, Err: planning.ErrScheduleNotFound}
	}
	m.st.shifts[s.ID] = s
	return nil
}

func (m *Memory) DeleteShift(_ context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.st.shifts[id]; !ok {
		return &planning.NotFoundError{Entity: "shift", ID: id, Err: planning.ErrShiftNotFound}
	}
	delete(m.st.shifts, id)
	return nil
}

func (m *Memory) ListShiftsBySchedule(_ context.Context, planningID string) ([]planning.Shift, error) {
	defer m.rlock()()
	out := []planning.Shift{}
	for _, s := range m.st.shifts {
		if s.PlanningID == planningID {
			out = append(out, s)
		}
	}
	sortShifts(out)
	return out, nil
}

func (m *Memory) FindTemplateShifts(_ context.Context, templateID, villaID string, from, to time.Time) ([]planning.Shift, error) {
	defer m.rlock()()
	out := []planning.Shift{}
	for _, s := range m.st.shifts {
		if !s.FromTemplate || s.TemplateID == nil || *s.TemplateID != templateID {
			continue
		}
		if s.VillaID == nil || *s.VillaID != villaID {
			continue
		}
		if s.Start.Before(from) || !s.Start.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sortShifts(out)
	return out, nil
}

func sortShifts(s []planning.Shift) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].Start.Equal(s[j].Start) {
			return s[i].Start.Before(s[j].Start)
		}
		return s[i].ID < s[j].ID
	})
}

// =============================================================================
// ABSENCES, APPOINTMENTS, ON-CALL
// =============================================================================

func (m *Memory) GetAbsence(_ context.Context, id string) (*planning.Absence, error) {
	defer m.rlock()()
	a, ok := m.st.absences[id]
	if !ok {
		return nil, &planning.NotFoundError{Entity: "absence", ID: id, Err: planning.ErrAbsenceNotFound}
	}
	return &a, nil
}

func (m *Memory) SaveAbsence(_ context.Context, a planning.Absence) error {
	defer m.lock()()
	m.st.absences[a.ID] = a
	return nil
}

func (m *Memory) ListAbsences(_ context.Context, userID string) ([]planning.Absence, error) {
	defer m.rlock()()
	out := []planning.Absence{}
	for _, a := range m.st.absences {
		if userID == "" || a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (*planning.Appointment, error) {
	defer m.rlock()()
	a, ok := m.st.appointments[id]
	if !ok {
		return nil, &planning.NotFoundError{Entity: "appointment", ID: id, Err: planning.ErrAppointmentNotFound}
	}
	a = cloneAppointment(a)
	return &a, nil
}

func (m *Memory) SaveAppointment(_ context.Context, a planning.Appointment) error {
	defer m.lock()()
	m.st.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func cloneAppointment(a planning.Appointment) planning.Appointment {
	a.Participants = slices.Clone(a.Participants)
	return a
}

func (m *Memory) GetOnCall(_ context.Context, id string) (*planning.OnCall, error) {
	defer m.rlock()()
	o, ok := m.st.onCalls[id]
	if !ok {
		return nil, &planning.NotFoundError{Entity: "on-call period", ID: id, Err: planning.ErrOnCallNotFound}
	}
	return &o, nil
}

func (m *Memory) SaveOnCall(_ context.Context, o planning.OnCall) error {
	defer m.lock()()
	m.st.onCalls[o.ID] = o
	return nil
}

func (m *Memory) FindOnCallInRange(_ context.Context, from, to time.Time) ([]planning.OnCall, error) {
	defer m.rlock()()
	out := []planning.OnCall{}
	for _, o := range m.st.onCalls {
		if o.Start.Before(to) && o.End.After(from) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// =============================================================================
// TEMPLATES & PUBLICATIONS
// =============================================================================

func (m *Memory) GetTemplate(_ context.Context, id string) (*planning.Template, error) {
	defer m.rlock()()
	t, ok := m.st.templates[id]
	if !ok {
		return nil, &planning.NotFoundError{Entity: "template", ID: id, Err: planning.ErrTemplateNotFound}
	}
	t = cloneTemplate(t)
	return &t, nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]planning.Template, error) {
	defer m.rlock()()
	out := make([]planning.Template, 0, len(m.st.templates))
	for _, t := range m.st.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveTemplate(_ context.Context, t planning.Template) error {
	defer m.lock()()
	m.st.templates[t.ID] = cloneTemplate(t)
	return nil
}

func cloneTemplate(t planning.Template) planning.Template {
	t.Slots = slices.Clone(t.Slots)
	for i := range t.Slots {
		t.Slots[i].Weekdays = slices.Clone(t.Slots[i].Weekdays)
	}
	return t
}

func (m *Memory) SavePublication(_ context.Context, p planning.Publication) error {
	defer m.lock()()
	p.Warnings = slices.Clone(p.Warnings)
	p.Failures = slices.Clone(p.Failures)
	m.st.publications[p.PlanningID] = append(m.st.publications[p.PlanningID], p)
	return nil
}

func (m *Memory) ListPublications(_ context.Context, planningID string) ([]planning.Publication, error) {
	defer m.rlock()()
	out := slices.Clone(m.st.publications[planningID])
	if out == nil {
		out = []planning.Publication{}
	}
	return out, nil
}

// =============================================================================
// COUNTERS
// =============================================================================

func (m *Memory) GetCounter(_ context.Context, key counter.Key) (*counter.Counter, error) {
	defer m.rlock()()
	c, ok := m.st.counters[key]
	if !ok {
		return nil, &counter.KeyError{Key: key, Err: counter.ErrCounterNotFound}
	}
	return &c, nil
}

func (m *Memory) ListCounters(_ context.Context, userID string) ([]counter.Counter, error) {
	defer m.rlock()()
	out := []counter.Counter{}
	for k, c := range m.st.counters {
		if k.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Compare(out[j].Key()) < 0 })
	return out, nil
}

func (m *Memory) ListCountersByPeriod(_ context.Context, kind counter.Kind, periodKey string) ([]counter.Counter, error) {
	defer m.rlock()()
	out := []counter.Counter{}
	for k, c := range m.st.counters {
		if k.Kind == kind && k.PeriodKey == periodKey {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) ListMutations(_ context.Context, counterID string) ([]counter.Mutation, error) {
	defer m.rlock()()
	out := slices.Clone(m.st.mutations[counterID])
	if out == nil {
		out = []counter.Mutation{}
	}
	return out, nil
}

func (m *Memory) MutationExists(_ context.Context, idempotencyKey string) (bool, error) {
	defer m.rlock()()
	return m.st.idempotency[idempotencyKey], nil
}

func (m *Memory) SaveCounter(_ context.Context, c counter.Counter) error {
	defer m.lock()()
	if existing, ok := m.st.counters[c.Key()]; ok && existing.ID != c.ID {
		return fmt.Errorf("counter %s: %w", c.Key(), planning.ErrDuplicate)
	}
	m.st.counters[c.Key()] = c
	return nil
}

func (m *Memory) AppendMutation(_ context.Context, mu counter.Mutation) error {
	defer m.lock()()
	if mu.IdempotencyKey != "" {
		if m.st.idempotency[mu.IdempotencyKey] {
			return counter.ErrDuplicateIdempotencyKey
		}
		m.st.idempotency[mu.IdempotencyKey] = true
	}
	m.st.mutations[mu.CounterID] = append(m.st.mutations[mu.CounterID], mu)
	return nil
}
