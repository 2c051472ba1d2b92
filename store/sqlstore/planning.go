package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/villacare/planning-engine/planning"
)

// =============================================================================
// VILLAS
// =============================================================================

const villaColumns = `id, name, color, is_reinforcement_pool, default_template_id, created_at`

func scanVilla(r scanner) (planning.Villa, error) {
	var (
		v        planning.Villa
		pool     int64
		template sql.NullString
		created  string
	)
	if err := r.Scan(&v.ID, &v.Name, &v.Color, &pool, &template, &created); err != nil {
		return v, err
	}
	var d decoder
	v.IsReinforcementPool = pool != 0
	v.DefaultTemplateID = stringPtr(template)
	v.CreatedAt = d.time("created_at", created)
	return v, d.err
}

func (s *Store) GetVilla(ctx context.Context, id string) (*planning.Villa, error) {
	v, err := scanVilla(s.queryRow(ctx, `SELECT `+villaColumns+` FROM villas WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "villa", id, planning.ErrVillaNotFound)
	}
	return &v, nil
}

func (s *Store) ListVillas(ctx context.Context) ([]planning.Villa, error) {
	return queryAll(ctx, s, scanVilla, `SELECT `+villaColumns+` FROM villas ORDER BY name, id`)
}

func (s *Store) SaveVilla(ctx context.Context, v planning.Villa) error {
	return s.exec(ctx, `
		INSERT INTO villas (`+villaColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			is_reinforcement_pool = excluded.is_reinforcement_pool,
			default_template_id = excluded.default_template_id`,
		v.ID, v.Name, v.Color, boolInt(v.IsReinforcementPool), nullString(v.DefaultTemplateID), formatTime(v.CreatedAt))
}

func (s *Store) DeleteVilla(ctx context.Context, id string) error {
	n, err := s.execCount(ctx, `DELETE FROM villas WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &planning.NotFoundError{Entity: "villa", ID: id, Err: planning.ErrVillaNotFound}
	}
	return nil
}

func (s *Store) CountVillaDependents(ctx context.Context, villaID string) (int, int, error) {
	var shifts, users int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM shifts WHERE villa_id = ?`, villaID).Scan(&shifts); err != nil {
		return 0, 0, err
	}
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE villa_id = ?`, villaID).Scan(&users); err != nil {
		return 0, 0, err
	}
	return shifts, users, nil
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, name, email, roles_json, villa_id, color, created_at`

func scanUser(r scanner) (planning.User, error) {
	var (
		u       planning.User
		roles   string
		villa   sql.NullString
		created string
	)
	if err := r.Scan(&u.ID, &u.Name, &u.Email, &roles, &villa, &u.Color, &created); err != nil {
		return u, err
	}
	var d decoder
	d.json("roles_json", roles, &u.Roles)
	u.VillaID = stringPtr(villa)
	u.CreatedAt = d.time("created_at", created)
	return u, d.err
}

func (s *Store) GetUser(ctx context.Context, id string) (*planning.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "user", id, planning.ErrUserNotFound)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]planning.User, error) {
	return queryAll(ctx, s, scanUser, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
}

func (s *Store) SaveUser(ctx context.Context, u planning.User) error {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := toJSON(roles)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			roles_json = excluded.roles_json,
			villa_id = excluded.villa_id,
			color = excluded.color`,
		u.ID, u.Name, u.Email, rolesJSON, nullString(u.VillaID), u.Color, formatTime(u.CreatedAt))
}

// =============================================================================
// MONTH SCHEDULES
// =============================================================================

const scheduleColumns = `id, villa_id, year, month, status, validated_at, published_at, created_at, updated_at`

func scanSchedule(r scanner) (planning.MonthSchedule, error) {
	var (
		m                    planning.MonthSchedule
		month                int
		status               string
		validated, published sql.NullString
		created, updated     string
	)
	if err := r.Scan(&m.ID, &m.VillaID, &m.Year, &month, &status, &validated, &published, &created, &updated); err != nil {
		return m, err
	}
	var d decoder
	m.Month = time.Month(month)
	m.Status = planning.ScheduleStatus(status)
	m.ValidatedAt = d.timePtr("validated_at", validated)
	m.PublishedAt = d.timePtr("published_at", published)
	m.CreatedAt = d.time("created_at", created)
	m.UpdatedAt = d.time("updated_at", updated)
	return m, d.err
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*planning.MonthSchedule, error) {
	m, err := scanSchedule(s.queryRow(ctx, `SELECT `+scheduleColumns+` FROM month_schedules WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "month schedule", id, planning.ErrScheduleNotFound)
	}
	return &m, nil
}

func (s *Store) FindSchedule(ctx context.Context, key planning.MonthKey) (*planning.MonthSchedule, error) {
	m, err := scanSchedule(s.queryRow(ctx,
		`SELECT `+scheduleColumns+` FROM month_schedules WHERE villa_id = ? AND year = ? AND month = ?`,
		key.VillaID, key.Year, int(key.Month)))
	if err != nil {
		return nil, notFound(err, "month schedule", key.String(), planning.ErrScheduleNotFound)
	}
	return &m, nil
}

func (s *Store) ListSchedulesByMonth(ctx context.Context, year int, month time.Month) ([]planning.MonthSchedule, error) {
	return queryAll(ctx, s, scanSchedule,
		`SELECT `+scheduleColumns+` FROM month_schedules WHERE year = ? AND month = ? ORDER BY villa_id`,
		year, int(month))
}

func (s *Store) SaveSchedule(ctx context.Context, m planning.MonthSchedule) error {
	err := s.exec(ctx, `
		INSERT INTO month_schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			validated_at = excluded.validated_at,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at`,
		m.ID, m.VillaID, m.Year, int(m.Month), string(m.Status),
		nullTime(m.ValidatedAt), nullTime(m.PublishedAt), formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("month schedule %s: %w", m.Key(), planning.ErrDuplicate)
	}
	return err
}

// DeleteSchedule removes the schedule with its shifts and publication records.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(st planning.Store) error {
		view := st.(*Store)
		n, err := view.execCount(ctx, `DELETE FROM month_schedules WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return &planning.NotFoundError{Entity: "month schedule", ID: id, Err: planning.ErrScheduleNotFound}
		}
		if err := view.exec(ctx, `DELETE FROM shifts WHERE planning_id = ?`, id); err != nil {
			return err
		}
		return view.exec(ctx, `DELETE FROM publications WHERE planning_id = ?`, id)
	})
}

// =============================================================================
// SHIFTS
// =============================================================================

const shiftColumns = `id, planning_id, villa_id, user_id, start_at, end_at, type, status, working_days, comment,
	from_template, template_id, deducted_days, deducted_at, deduction_seq, created_at, updated_at`

func scanShift(r scanner) (planning.Shift, error) {
	var (
		sh                    planning.Shift
		villa, user, tmpl     sql.NullString
		start, end            string
		typ, status           string
		workingDays, deducted string
		fromTemplate          int64
		deductedAt            sql.NullString
		created, updated      string
	)
	if err := r.Scan(&sh.ID, &sh.PlanningID, &villa, &user, &start, &end, &typ, &status, &workingDays, &sh.Comment,
		&fromTemplate, &tmpl, &deducted, &deductedAt, &sh.DeductionSeq, &created, &updated); err != nil {
		return sh, err
	}
	var d decoder
	sh.VillaID = stringPtr(villa)
	sh.UserID = stringPtr(user)
	sh.Start = d.time("start_at", start)
	sh.End = d.time("end_at", end)
	sh.Type = planning.ShiftType(typ)
	sh.Status = planning.ShiftStatus(status)
	sh.WorkingDays = d.decimal("working_days", workingDays)
	sh.FromTemplate = fromTemplate != 0
	sh.TemplateID = stringPtr(tmpl)
	sh.DeductedDays = d.decimal("deducted_days", deducted)
	sh.DeductedAt = d.timePtr("deducted_at", deductedAt)
	sh.CreatedAt = d.time("created_at", created)
	sh.UpdatedAt = d.time("updated_at", updated)
	return sh, d.err
}

func (s *Store) GetShift(ctx context.Context, id string) (*planning.Shift, error) {
	sh, err := scanShift(s.queryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "shift", id, planning.ErrShiftNotFound)
	}
	return &sh, nil
}

// SaveShift upserts a shift. Its month schedule must exist.
func (s *Store) SaveShift(ctx context.Context, sh planning.Shift) error {
	var exists int
	err := s.queryRow(ctx, `SELECT 1 FROM month_schedules WHERE id = ?`, sh.PlanningID).Scan(&exists)
	if err != nil {
		return notFound(err, "month schedule", sh.PlanningID, planning.ErrScheduleNotFound)
	}

	return s.exec(ctx, `
		INSERT INTO shifts (`+shiftColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			planning_id = excluded.planning_id,
			villa_id = excluded.villa_id,
			user_id = excluded.user_id,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			type = excluded.type,
			status = excluded.status,
			working_days = excluded.working_days,
			comment = excluded.comment,
			from_template = excluded.from_template,
			template_id = excluded.template_id,
			deducted_days = excluded.deducted_days,
			deducted_at = excluded.deducted_at,
			deduction_seq = excluded.deduction_seq,
			updated_at = excluded.updated_at`,
		sh.ID, sh.PlanningID, nullString(sh.VillaID), nullString(sh.UserID),
		formatTime(sh.Start), formatTime(sh.End), string(sh.Type), string(sh.Status),
		sh.WorkingDays.String(), sh.Comment, boolInt(sh.FromTemplate), nullString(sh.TemplateID),
		sh.DeductedDays.String(), nullTime(sh.DeductedAt), sh.DeductionSeq,
		formatTime(sh.CreatedAt), formatTime(sh.UpdatedAt))
}

func (s *Store) DeleteShift(ctx context.Context, id string) error {
	n, err := s.execCount(ctx, `DELETE FROM shifts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &planning.NotFoundError{Entity: "shift", ID: id, Err: planning.ErrShiftNotFound}
	}
	return nil
}

func (s *Store) ListShiftsBySchedule(ctx context.Context, planningID string) ([]planning.Shift, error) {
	return queryAll(ctx, s, scanShift,
		`SELECT `+shiftColumns+` FROM shifts WHERE planning_id = ? ORDER BY start_at, id`, planningID)
}

func (s *Store) FindTemplateShifts(ctx context.Context, templateID, villaID string, from, to time.Time) ([]planning.Shift, error) {
	return queryAll(ctx, s, scanShift, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE from_template = 1 AND template_id = ? AND villa_id = ? AND start_at >= ? AND start_at < ?
		ORDER BY start_at, id`,
		templateID, villaID, formatTime(from), formatTime(to))
}

func (s *Store) FindOverlappingShifts(ctx context.Context, userID string, from, to time.Time) ([]planning.Shift, error) {
	return queryAll(ctx, s, scanShift, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE user_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		userID, formatTime(to), formatTime(from))
}

// =============================================================================
// ABSENCES
// =============================================================================

const absenceColumns = `id, user_id, type, start_date, end_date, status, deducts_counter, working_days, reason, created_at, updated_at`

func scanAbsence(r scanner) (planning.Absence, error) {
	var (
		a                planning.Absence
		typ, status      string
		start, end       string
		deducts          int64
		workingDays      string
		created, updated string
	)
	if err := r.Scan(&a.ID, &a.UserID, &typ, &start, &end, &status, &deducts, &workingDays, &a.Reason, &created, &updated); err != nil {
		return a, err
	}
	var d decoder
	a.Type = planning.AbsenceType(typ)
	a.Status = planning.AbsenceStatus(status)
	a.StartDate = d.date("start_date", start)
	a.EndDate = d.date("end_date", end)
	a.DeductsCounter = deducts != 0
	a.WorkingDays = d.decimal("working_days", workingDays)
	a.CreatedAt = d.time("created_at", created)
	a.UpdatedAt = d.time("updated_at", updated)
	return a, d.err
}

func (s *Store) GetAbsence(ctx context.Context, id string) (*planning.Absence, error) {
	a, err := scanAbsence(s.queryRow(ctx, `SELECT `+absenceColumns+` FROM absences WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "absence", id, planning.ErrAbsenceNotFound)
	}
	return &a, nil
}

func (s *Store) SaveAbsence(ctx context.Context, a planning.Absence) error {
	return s.exec(ctx, `
		INSERT INTO absences (`+absenceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			type = excluded.type,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			deducts_counter = excluded.deducts_counter,
			working_days = excluded.working_days,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		a.ID, a.UserID, string(a.Type), formatDate(a.StartDate), formatDate(a.EndDate), string(a.Status),
		boolInt(a.DeductsCounter), a.WorkingDays.String(), a.Reason, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
}

// ListAbsences returns a user's absences, or all of them when userID is "".
func (s *Store) ListAbsences(ctx context.Context, userID string) ([]planning.Absence, error) {
	if userID == "" {
		return queryAll(ctx, s, scanAbsence, `SELECT `+absenceColumns+` FROM absences ORDER BY start_date, id`)
	}
	return queryAll(ctx, s, scanAbsence,
		`SELECT `+absenceColumns+` FROM absences WHERE user_id = ? ORDER BY start_date, id`, userID)
}

func (s *Store) FindApprovedAbsencesInRange(ctx context.Context, userID string, fromDate, toDate time.Time) ([]planning.Absence, error) {
	return queryAll(ctx, s, scanAbsence, `
		SELECT `+absenceColumns+` FROM absences
		WHERE user_id = ? AND status = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date, id`,
		userID, string(planning.AbsenceApproved), formatDate(toDate), formatDate(fromDate))
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

const appointmentColumns = `id, organizer_id, title, type, status, start_at, end_at, impacts_duty, created_at, updated_at`

func scanAppointment(r scanner) (planning.Appointment, error) {
	var (
		a                planning.Appointment
		typ, status      string
		start, end       string
		impacts          int64
		created, updated string
	)
	if err := r.Scan(&a.ID, &a.OrganizerID, &a.Title, &typ, &status, &start, &end, &impacts, &created, &updated); err != nil {
		return a, err
	}
	var d decoder
	a.Type = planning.AppointmentType(typ)
	a.Status = planning.AppointmentStatus(status)
	a.Start = d.time("start_at", start)
	a.End = d.time("end_at", end)
	a.ImpactsDuty = impacts != 0
	a.CreatedAt = d.time("created_at", created)
	a.UpdatedAt = d.time("updated_at", updated)
	return a, d.err
}

func scanParticipant(r scanner) (planning.Participant, error) {
	var (
		p        planning.Participant
		presence string
	)
	err := r.Scan(&p.UserID, &presence)
	p.Presence = planning.Presence(presence)
	return p, err
}

// withParticipants loads the participants of each appointment, in the
// order they were saved.
func (s *Store) withParticipants(ctx context.Context, appts []planning.Appointment) error {
	for i := range appts {
		ps, err := queryAll(ctx, s, scanParticipant, `
			SELECT user_id, presence FROM appointment_participants
			WHERE appointment_id = ? ORDER BY position`, appts[i].ID)
		if err != nil {
			return err
		}
		appts[i].Participants = ps
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*planning.Appointment, error) {
	a, err := scanAppointment(s.queryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "appointment", id, planning.ErrAppointmentNotFound)
	}
	appts := []planning.Appointment{a}
	if err := s.withParticipants(ctx, appts); err != nil {
		return nil, err
	}
	return &appts[0], nil
}

// SaveAppointment upserts the appointment and replaces its participant list.
func (s *Store) SaveAppointment(ctx context.Context, a planning.Appointment) error {
	return s.WithTx(ctx, func(st planning.Store) error {
		view := st.(*Store)
		err := view.exec(ctx, `
			INSERT INTO appointments (`+appointmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				organizer_id = excluded.organizer_id,
				title = excluded.title,
				type = excluded.type,
				status = excluded.status,
				start_at = excluded.start_at,
				end_at = excluded.end_at,
				impacts_duty = excluded.impacts_duty,
				updated_at = excluded.updated_at`,
			a.ID, a.OrganizerID, a.Title, string(a.Type), string(a.Status),
			formatTime(a.Start), formatTime(a.End), boolInt(a.ImpactsDuty), formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
		if err != nil {
			return err
		}
		if err := view.exec(ctx, `DELETE FROM appointment_participants WHERE appointment_id = ?`, a.ID); err != nil {
			return err
		}
		for i, p := range a.Participants {
			if err := view.exec(ctx, `
				INSERT INTO appointment_participants (appointment_id, user_id, presence, position)
				VALUES (?, ?, ?, ?)`, a.ID, p.UserID, string(p.Presence), i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) FindAppointmentsInRange(ctx context.Context, userID string, from, to time.Time) ([]planning.Appointment, error) {
	appts, err := queryAll(ctx, s, scanAppointment, `
		SELECT `+appointmentColumns+` FROM appointments a
		WHERE a.start_at < ? AND a.end_at > ?
		  AND (a.organizer_id = ? OR EXISTS (
			SELECT 1 FROM appointment_participants p
			WHERE p.appointment_id = a.id AND p.user_id = ?))
		ORDER BY a.start_at, a.id`,
		formatTime(to), formatTime(from), userID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.withParticipants(ctx, appts); err != nil {
		return nil, err
	}
	return appts, nil
}

// =============================================================================
// ON-CALL
// =============================================================================

const onCallColumns = `id, user_id, start_at, end_at, replacement_count, created_at, updated_at`

func scanOnCall(r scanner) (planning.OnCall, error) {
	var (
		o                planning.OnCall
		user             sql.NullString
		start, end       string
		created, updated string
	)
	if err := r.Scan(&o.ID, &user, &start, &end, &o.ReplacementCount, &created, &updated); err != nil {
		return o, err
	}
	var d decoder
	o.UserID = stringPtr(user)
	o.Start = d.time("start_at", start)
	o.End = d.time("end_at", end)
	o.CreatedAt = d.time("created_at", created)
	o.UpdatedAt = d.time("updated_at", updated)
	return o, d.err
}

func (s *Store) GetOnCall(ctx context.Context, id string) (*planning.OnCall, error) {
	o, err := scanOnCall(s.queryRow(ctx, `SELECT `+onCallColumns+` FROM on_calls WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "on-call period", id, planning.ErrOnCallNotFound)
	}
	return &o, nil
}

func (s *Store) SaveOnCall(ctx context.Context, o planning.OnCall) error {
	return s.exec(ctx, `
		INSERT INTO on_calls (`+onCallColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			replacement_count = excluded.replacement_count,
			updated_at = excluded.updated_at`,
		o.ID, nullString(o.UserID), formatTime(o.Start), formatTime(o.End), o.ReplacementCount,
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
}

func (s *Store) FindOnCallInRange(ctx context.Context, from, to time.Time) ([]planning.OnCall, error) {
	return queryAll(ctx, s, scanOnCall, `
		SELECT `+onCallColumns+` FROM on_calls
		WHERE start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		formatTime(to), formatTime(from))
}

func (s *Store) FindUserOnCallInRange(ctx context.Context, userID string, from, to time.Time) ([]planning.OnCall, error) {
	return queryAll(ctx, s, scanOnCall, `
		SELECT `+onCallColumns+` FROM on_calls
		WHERE user_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		userID, formatTime(to), formatTime(from))
}

// =============================================================================
// TEMPLATES
// =============================================================================

const templateColumns = `id, name, description, is_default, anchor, slots_json, created_at`

func scanTemplate(r scanner) (planning.Template, error) {
	var (
		t         planning.Template
		isDefault int64
		anchor    sql.NullString
		slots     string
		created   string
	)
	if err := r.Scan(&t.ID, &t.Name, &t.Description, &isDefault, &anchor, &slots, &created); err != nil {
		return t, err
	}
	var d decoder
	t.IsDefault = isDefault != 0
	if a := d.timePtr("anchor", anchor); a != nil {
		t.Anchor = *a
	}
	d.json("slots_json", slots, &t.Slots)
	t.CreatedAt = d.time("created_at", created)
	return t, d.err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*planning.Template, error) {
	t, err := scanTemplate(s.queryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "template", id, planning.ErrTemplateNotFound)
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]planning.Template, error) {
	return queryAll(ctx, s, scanTemplate, `SELECT `+templateColumns+` FROM templates ORDER BY name, id`)
}

func (s *Store) SaveTemplate(ctx context.Context, t planning.Template) error {
	slots, err := toJSON(t.Slots)
	if err != nil {
		return err
	}
	var anchor *time.Time
	if !t.Anchor.IsZero() {
		anchor = &t.Anchor
	}
	return s.exec(ctx, `
		INSERT INTO templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			is_default = excluded.is_default,
			anchor = excluded.anchor,
			slots_json = excluded.slots_json`,
		t.ID, t.Name, t.Description, boolInt(t.IsDefault), nullTime(anchor), slots, formatTime(t.CreatedAt))
}

// =============================================================================
// PUBLICATIONS
// =============================================================================

const publicationColumns = `id, planning_id, published_at, deducted, total_days, warnings_json, failures_json`

func scanPublication(r scanner) (planning.Publication, error) {
	var (
		p                  planning.Publication
		publishedAt        string
		totalDays          string
		warnings, failures string
	)
	if err := r.Scan(&p.ID, &p.PlanningID, &publishedAt, &p.Deducted, &totalDays, &warnings, &failures); err != nil {
		return p, err
	}
	var d decoder
	p.PublishedAt = d.time("published_at", publishedAt)
	p.TotalDays = d.decimal("total_days", totalDays)
	d.json("warnings_json", warnings, &p.Warnings)
	d.json("failures_json", failures, &p.Failures)
	return p, d.err
}

func (s *Store) SavePublication(ctx context.Context, p planning.Publication) error {
	warnings, err := toJSON(nonNil(p.Warnings))
	if err != nil {
		return err
	}
	failures, err := toJSON(nonNil(p.Failures))
	if err != nil {
		return err
	}
	return s.exec(ctx, `INSERT INTO publications (`+publicationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PlanningID, formatTime(p.PublishedAt), p.Deducted, p.TotalDays.String(), warnings, failures)
}

func (s *Store) ListPublications(ctx context.Context, planningID string) ([]planning.Publication, error) {
	return queryAll(ctx, s, scanPublication,
		`SELECT `+publicationColumns+` FROM publications WHERE planning_id = ? ORDER BY published_at, id`, planningID)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
