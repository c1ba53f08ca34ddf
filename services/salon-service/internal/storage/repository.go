package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/outbox"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
)

const (
	EventConfigChanged   = "salon.config.changed.v1"
	EventTimeOffApproved = "salon.timeoff.approved.v1"
)

// ErrInvalidTransition is returned when a time-off request has already been decided.
var ErrInvalidTransition = errors.New("time-off already decided")

// IsNotFound re-exports the shared classification so handlers need not import libs/db.
func IsNotFound(err error) bool { return db.IsNotFound(err) }

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

type configChanged struct {
	SalonID   string    `json:"salon_id"`
	Reason    string    `json:"reason"`
	ChangedAt time.Time `json:"changed_at"`
}

func (r *Repository) configChanged(ctx context.Context, tx pgx.Tx, salonID, reason string) error {
	evt, err := outbox.NewEvent("salon", salonID, EventConfigChanged, configChanged{
		SalonID:   salonID,
		Reason:    reason,
		ChangedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func (r *Repository) GetOrCreateProfile(ctx context.Context, salonID string) (model.Profile, error) {
	def := model.DefaultProfile(salonID)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO salon_profiles (salon_id, timezone, slot_interval_minutes, max_days_ahead)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (salon_id) DO NOTHING
	`, salonID, def.Timezone, def.SlotIntervalMinutes, def.MaxDaysAhead)
	if err != nil {
		return model.Profile{}, err
	}

	var p model.Profile
	err = r.pool.QueryRow(ctx, `
		SELECT salon_id, name, timezone, opening_hours, slot_interval_minutes,
			min_notice_hours, max_days_ahead, auto_approve, updated_at
		FROM salon_profiles
		WHERE salon_id = $1
	`, salonID).Scan(&p.SalonID, &p.Name, &p.Timezone, &p.OpeningHours, &p.SlotIntervalMinutes,
		&p.MinNoticeHours, &p.MaxDaysAhead, &p.AutoApprove, &p.UpdatedAt)
	return p, err
}

func (r *Repository) UpdateProfile(ctx context.Context, p model.Profile) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO salon_profiles (salon_id, name, timezone, opening_hours, slot_interval_minutes,
				min_notice_hours, max_days_ahead, auto_approve)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (salon_id) DO UPDATE
			SET name = EXCLUDED.name,
				timezone = EXCLUDED.timezone,
				opening_hours = EXCLUDED.opening_hours,
				slot_interval_minutes = EXCLUDED.slot_interval_minutes,
				min_notice_hours = EXCLUDED.min_notice_hours,
				max_days_ahead = EXCLUDED.max_days_ahead,
				auto_approve = EXCLUDED.auto_approve,
				updated_at = now()
		`, p.SalonID, p.Name, p.Timezone, p.OpeningHours, p.SlotIntervalMinutes,
			p.MinNoticeHours, p.MaxDaysAhead, p.AutoApprove)
		if err != nil {
			return err
		}
		return r.configChanged(ctx, tx, p.SalonID, "profile")
	})
}

func (r *Repository) CreateService(ctx context.Context, s model.Service) (string, error) {
	id := uuid.NewString()
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO salon_services (id, salon_id, name, duration_minutes, price, description, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id, s.SalonID, s.Name, s.DurationMinutes, s.Price, s.Description, s.IsActive)
		if err != nil {
			return err
		}
		return r.configChanged(ctx, tx, s.SalonID, "service")
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

const serviceColumns = `id::text, salon_id, name, duration_minutes, price::text, description, is_active, created_at`

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.SalonID, &s.Name, &s.DurationMinutes, &s.Price, &s.Description, &s.IsActive, &s.CreatedAt)
	return s, err
}

func (r *Repository) ListServices(ctx context.Context, salonID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM salon_services
		WHERE salon_id = $1
		ORDER BY name ASC
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetService(ctx context.Context, salonID, serviceID string) (model.Service, error) {
	if _, err := uuid.Parse(serviceID); err != nil {
		return model.Service{}, pgx.ErrNoRows
	}
	return scanService(r.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM salon_services
		WHERE salon_id = $1 AND id = $2
	`, salonID, serviceID))
}

// CreateStaff inserts the staff member and their initial week in one transaction. hours carries
// no staff id yet; the new id is filled in. A negative SortOrder appends to the roster.
func (r *Repository) CreateStaff(ctx context.Context, st model.Staff, hours []model.WorkingHours) (string, error) {
	var id string
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO staff (salon_id, name, is_active, sort_order)
			VALUES ($1, $2, $3, COALESCE($4, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM staff WHERE salon_id = $1)))
			RETURNING id::text
		`, st.SalonID, st.Name, st.IsActive, nullableInt(st.SortOrder)).Scan(&id)
		if err != nil {
			return err
		}
		for _, wh := range hours {
			wh.StaffID = id
			if err := upsertWorkingHours(ctx, tx, wh); err != nil {
				return err
			}
		}
		return r.configChanged(ctx, tx, st.SalonID, "staff")
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func nullableInt(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

// ListStaff returns the roster in booking order.
func (r *Repository) ListStaff(ctx context.Context, salonID string) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id, name, is_active, sort_order, created_at
		FROM staff
		WHERE salon_id = $1
		ORDER BY sort_order ASC, created_at ASC
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.SalonID, &s.Name, &s.IsActive, &s.SortOrder, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpdateStaff(ctx context.Context, salonID, staffID string, patch model.StaffPatch) (model.Staff, error) {
	var s model.Staff
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE staff
			SET name = COALESCE($3, name),
				is_active = COALESCE($4, is_active),
				sort_order = COALESCE($5, sort_order)
			WHERE salon_id = $1 AND id::text = $2
			RETURNING id::text, salon_id, name, is_active, sort_order, created_at
		`, salonID, staffID, patch.Name, patch.IsActive, patch.SortOrder).Scan(
			&s.ID, &s.SalonID, &s.Name, &s.IsActive, &s.SortOrder, &s.CreatedAt)
		if err != nil {
			return err
		}
		return r.configChanged(ctx, tx, salonID, "staff")
	})
	return s, err
}

const workingHoursColumns = `h.staff_id::text, h.weekday, h.is_working, h.start_minute, h.end_minute, h.break_start_minute, h.break_end_minute`

func scanWorkingHours(row pgx.Row) (model.WorkingHours, error) {
	var (
		wh                   model.WorkingHours
		weekday, start, end  int
		breakStart, breakEnd *int
	)
	if err := row.Scan(&wh.StaffID, &weekday, &wh.IsWorking, &start, &end, &breakStart, &breakEnd); err != nil {
		return model.WorkingHours{}, err
	}
	wh.Weekday = time.Weekday(weekday)
	wh.Start, wh.End = availability.Clock(start), availability.Clock(end)
	wh.BreakStart, wh.BreakEnd = clockPtr(breakStart), clockPtr(breakEnd)
	return wh, nil
}

func clockPtr(v *int) *availability.Clock {
	if v == nil {
		return nil
	}
	c := availability.Clock(*v)
	return &c
}

func intPtr(c *availability.Clock) *int {
	if c == nil {
		return nil
	}
	v := int(*c)
	return &v
}

func (r *Repository) ListWorkingHours(ctx context.Context, salonID, staffID string) ([]model.WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+workingHoursColumns+`
		FROM staff_working_hours h
		JOIN staff s ON s.id = h.staff_id
		WHERE s.salon_id = $1 AND h.staff_id::text = $2
		ORDER BY h.weekday ASC
	`, salonID, staffID)
	if err != nil {
		return nil, err
	}
	return collectWorkingHours(rows)
}

// ListSalonWorkingHours returns every staff member's week keyed by staff id.
func (r *Repository) ListSalonWorkingHours(ctx context.Context, salonID string) (map[string][]model.WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+workingHoursColumns+`
		FROM staff_working_hours h
		JOIN staff s ON s.id = h.staff_id
		WHERE s.salon_id = $1
		ORDER BY h.staff_id, h.weekday ASC
	`, salonID)
	if err != nil {
		return nil, err
	}
	all, err := collectWorkingHours(rows)
	if err != nil {
		return nil, err
	}
	out := map[string][]model.WorkingHours{}
	for _, wh := range all {
		out[wh.StaffID] = append(out[wh.StaffID], wh)
	}
	return out, nil
}

func collectWorkingHours(rows pgx.Rows) ([]model.WorkingHours, error) {
	defer rows.Close()
	var out []model.WorkingHours
	for rows.Next() {
		wh, err := scanWorkingHours(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpsertWorkingHours(ctx context.Context, salonID string, wh model.WorkingHours) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := staffExists(ctx, tx, salonID, wh.StaffID); err != nil {
			return err
		}
		if err := upsertWorkingHours(ctx, tx, wh); err != nil {
			return err
		}
		return r.configChanged(ctx, tx, salonID, "working_hours")
	})
}

func upsertWorkingHours(ctx context.Context, tx pgx.Tx, wh model.WorkingHours) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO staff_working_hours (staff_id, weekday, is_working, start_minute, end_minute, break_start_minute, break_end_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (staff_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			break_start_minute = EXCLUDED.break_start_minute,
			break_end_minute = EXCLUDED.break_end_minute
	`, wh.StaffID, int(wh.Weekday), wh.IsWorking, int(wh.Start), int(wh.End), intPtr(wh.BreakStart), intPtr(wh.BreakEnd))
	return err
}

func staffExists(ctx context.Context, tx pgx.Tx, salonID, staffID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff WHERE id::text = $1 AND salon_id = $2
		)
	`, staffID, salonID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) CreateTimeOff(ctx context.Context, salonID string, t model.TimeOff) (string, error) {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := staffExists(ctx, tx, salonID, t.StaffID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO staff_time_off (staff_id, start_date, end_date, start_minute, end_minute, reason, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id::text
		`, t.StaffID, t.StartDate, t.EndDate, intPtr(t.StartTime), intPtr(t.EndTime), t.Reason, t.Status).Scan(&t.ID); err != nil {
			return err
		}
		if t.Status == availability.TimeOffApproved {
			return r.timeOffApproved(ctx, tx, salonID, t)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// TimeOffFilter narrows ListTimeOff. Empty fields match everything.
type TimeOffFilter struct {
	StaffID string
	Status  string
	From    time.Time
	To      time.Time
}

const timeOffColumns = `t.id::text, t.staff_id::text, t.start_date, t.end_date, t.start_minute, t.end_minute,
	t.reason, t.status, t.created_at, t.decided_at`

func scanTimeOff(row pgx.Row) (model.TimeOff, error) {
	var (
		t          model.TimeOff
		start, end *int
	)
	if err := row.Scan(&t.ID, &t.StaffID, &t.StartDate, &t.EndDate, &start, &end, &t.Reason, &t.Status, &t.CreatedAt, &t.DecidedAt); err != nil {
		return model.TimeOff{}, err
	}
	t.StartTime, t.EndTime = clockPtr(start), clockPtr(end)
	return t, nil
}

// ListTimeOff returns time-off entries overlapping [From, To] (calendar dates, inclusive).
func (r *Repository) ListTimeOff(ctx context.Context, salonID string, f TimeOffFilter) ([]model.TimeOff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+timeOffColumns+`
		FROM staff_time_off t
		JOIN staff s ON s.id = t.staff_id
		WHERE s.salon_id = $1
			AND ($2 = '' OR t.staff_id::text = $2)
			AND ($3 = '' OR t.status = $3)
			AND t.end_date >= $4::date
			AND t.start_date <= $5::date
		ORDER BY t.start_date ASC, t.created_at ASC
	`, salonID, f.StaffID, f.Status, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimeOff
	for rows.Next() {
		t, err := scanTimeOff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DecideTimeOff moves a pending request to approved or rejected.
func (r *Repository) DecideTimeOff(ctx context.Context, salonID, timeOffID, status string) (model.TimeOff, error) {
	var out model.TimeOff
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTimeOff(tx.QueryRow(ctx, `
			SELECT `+timeOffColumns+`
			FROM staff_time_off t
			JOIN staff s ON s.id = t.staff_id
			WHERE s.salon_id = $1 AND t.id::text = $2
			FOR UPDATE OF t
		`, salonID, timeOffID))
		if err != nil {
			return err
		}
		if t.Status != availability.TimeOffPending {
			return ErrInvalidTransition
		}
		if err := tx.QueryRow(ctx, `
			UPDATE staff_time_off
			SET status = $2, decided_at = now()
			WHERE id::text = $1
			RETURNING decided_at
		`, timeOffID, status).Scan(&t.DecidedAt); err != nil {
			return err
		}
		t.Status = status
		out = t
		if status == availability.TimeOffApproved {
			return r.timeOffApproved(ctx, tx, salonID, t)
		}
		return nil
	})
	return out, err
}

type timeOffApproved struct {
	SalonID   string `json:"salon_id"`
	TimeOffID string `json:"time_off_id"`
	StaffID   string `json:"staff_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (r *Repository) timeOffApproved(ctx context.Context, tx pgx.Tx, salonID string, t model.TimeOff) error {
	evt, err := outbox.NewEvent("staff_time_off", t.ID, EventTimeOffApproved, timeOffApproved{
		SalonID:   salonID,
		TimeOffID: t.ID,
		StaffID:   t.StaffID,
		StartDate: t.StartDate.Format("2006-01-02"),
		EndDate:   t.EndDate.Format("2006-01-02"),
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func (r *Repository) DeleteTimeOff(ctx context.Context, salonID, timeOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff_time_off t
		USING staff s
		WHERE t.staff_id = s.id
		  AND s.salon_id = $1
		  AND t.id::text = $2
	`, salonID, timeOffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
