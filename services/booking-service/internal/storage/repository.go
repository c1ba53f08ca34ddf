package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

const (
	EventOnlineBookingSubmitted     = "booking.online_booking.submitted.v1"
	EventOnlineBookingStatusChanged = "booking.online_booking.status_changed.v1"
	EventAppointmentBooked          = "booking.appointment.booked.v1"
	EventAppointmentCancelled       = "booking.appointment.cancelled.v1"
)

var (
	// ErrConflict is returned when an exclusion constraint rejects an overlapping write.
	ErrConflict = errors.New("time range already taken")
	// ErrInvalidTransition is returned for status changes the current status does not allow.
	ErrInvalidTransition = errors.New("status change not allowed")
)

func IsNotFound(err error) bool { return db.IsNotFound(err) }

type IdempotencyRecord struct {
	SalonID         string
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

// Finalized reports whether a response was stored for the key.
func (r IdempotencyRecord) Finalized() bool {
	return r.StatusCode > 0
}

// Tx is the write side of a booking transaction.
type Tx interface {
	LockIdempotencyKey(ctx context.Context, salonID, key string) (IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, salonID, key, bookingID string, statusCode int, response []byte) error
	// LockDay serialises writers on one salon calendar day.
	LockDay(ctx context.Context, salonID string, day time.Time) error
	Commitments(ctx context.Context, salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error)
	CreateOnlineBooking(ctx context.Context, b *model.OnlineBooking) (string, error)
	GetOnlineBookingForUpdate(ctx context.Context, salonID, id string) (model.OnlineBooking, error)
	SetOnlineBookingStatus(ctx context.Context, salonID, id, status string) (time.Time, error)
	CreateAppointment(ctx context.Context, a *model.Appointment) (string, error)
	GetAppointmentForUpdate(ctx context.Context, salonID, id string) (model.Appointment, error)
	CancelAppointment(ctx context.Context, salonID, id, reason string) (time.Time, error)
	Publish(ctx context.Context, evt outbox.Event) error
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// WithTx runs fn in one transaction; returning an error rolls everything back.
func (r *Repository) WithTx(ctx context.Context, fn func(Tx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&txRepo{tx: tx, outbox: r.outbox})
	})
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Commitments returns appointments and online bookings overlapping [from, to), whatever their
// status; the engine decides which statuses block.
func (r *Repository) Commitments(ctx context.Context, salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error) {
	return commitments(ctx, r.pool, salonID, from, to)
}

func commitments(ctx context.Context, q queryer, salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error) {
	appts, err := queryAppointments(ctx, q, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE salon_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC
	`, salonID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("appointments: %w", err)
	}
	bookings, err := queryOnlineBookings(ctx, q, `
		SELECT `+onlineBookingColumns+`
		FROM online_bookings
		WHERE salon_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC
	`, salonID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("online bookings: %w", err)
	}
	return appts, bookings, nil
}

// ListOnlineBookings lists a salon's submissions, newest first.
func (r *Repository) ListOnlineBookings(ctx context.Context, salonID, status string, limit int) ([]model.OnlineBooking, error) {
	if limit <= 0 {
		limit = 50
	}
	return queryOnlineBookings(ctx, r.pool, `
		SELECT `+onlineBookingColumns+`
		FROM online_bookings
		WHERE salon_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY start_time DESC
		LIMIT $3
	`, salonID, status, limit)
}

// ListAppointments lists a salon's appointments in [from, to), earliest first.
func (r *Repository) ListAppointments(ctx context.Context, salonID string, from, to time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return queryAppointments(ctx, r.pool, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE salon_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC
		LIMIT $4
	`, salonID, from, to, limit)
}

const appointmentColumns = `id::text, salon_id, service_id, staff_id, customer_name, customer_email, customer_phone,
	start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.SalonID, &a.ServiceID, &a.StaffID, &a.CustomerName, &a.CustomerEmail, &a.CustomerPhone,
		&a.StartTime, &a.EndTime, &a.Status, &a.CancelledAt, &a.CancelReason, &a.CreatedAt)
	return a, err
}

func queryAppointments(ctx context.Context, q queryer, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

const onlineBookingColumns = `id::text, salon_id, service_id, staff_id, customer_name, customer_email, customer_phone,
	notes, start_time, end_time, status, created_at, decided_at`

func scanOnlineBooking(row pgx.Row) (model.OnlineBooking, error) {
	var b model.OnlineBooking
	err := row.Scan(&b.ID, &b.SalonID, &b.ServiceID, &b.StaffID, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone,
		&b.Notes, &b.StartTime, &b.EndTime, &b.Status, &b.CreatedAt, &b.DecidedAt)
	return b, err
}

func queryOnlineBookings(ctx context.Context, q queryer, sql string, args ...any) ([]model.OnlineBooking, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OnlineBooking
	for rows.Next() {
		b, err := scanOnlineBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type txRepo struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *txRepo) LockIdempotencyKey(ctx context.Context, salonID, key string) (IdempotencyRecord, bool, error) {
	rec, err := t.selectIdempotencyForUpdate(ctx, salonID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (salon_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (salon_id, idempotency_key) DO NOTHING
	`, salonID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = t.selectIdempotencyForUpdate(ctx, salonID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (t *txRepo) selectIdempotencyForUpdate(ctx context.Context, salonID, key string) (IdempotencyRecord, error) {
	var (
		rec          IdempotencyRecord
		responseText string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT salon_id,
			idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE salon_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, salonID, key).Scan(&rec.SalonID, &rec.IdempotencyKey, &rec.BookingID, &rec.StatusCode, &responseText)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

func (t *txRepo) FinalizeIdempotency(ctx context.Context, salonID, key, bookingID string, statusCode int, response []byte) error {
	var id *string
	if bookingID != "" {
		id = &bookingID
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE salon_id = $1 AND idempotency_key = $2
	`, salonID, key, id, statusCode, response)
	return err
}

func (t *txRepo) LockDay(ctx context.Context, salonID string, day time.Time) error {
	return db.AdvisoryXactLock(ctx, t.tx, "booking:"+salonID+":"+day.Format("2006-01-02"))
}

func (t *txRepo) Commitments(ctx context.Context, salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error) {
	return commitments(ctx, t.tx, salonID, from, to)
}

func (t *txRepo) CreateOnlineBooking(ctx context.Context, b *model.OnlineBooking) (string, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO online_bookings
			(salon_id, service_id, staff_id, customer_name, customer_email, customer_phone, notes, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id::text, created_at
	`, b.SalonID, b.ServiceID, b.StaffID, b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.Notes,
		b.StartTime, b.EndTime, b.Status).Scan(&id, &b.CreatedAt)
	if db.IsConflict(err) {
		return "", ErrConflict
	}
	if err != nil {
		return "", err
	}
	b.ID = id
	return id, nil
}

func (t *txRepo) GetOnlineBookingForUpdate(ctx context.Context, salonID, id string) (model.OnlineBooking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.OnlineBooking{}, pgx.ErrNoRows
	}
	return scanOnlineBooking(t.tx.QueryRow(ctx, `
		SELECT `+onlineBookingColumns+`
		FROM online_bookings
		WHERE id = $1 AND salon_id = $2
		FOR UPDATE
	`, id, salonID))
}

// SetOnlineBookingStatus moves a booking to status. Reinstating a released booking can collide
// with a newer commitment, reported as ErrConflict.
func (t *txRepo) SetOnlineBookingStatus(ctx context.Context, salonID, id, status string) (time.Time, error) {
	var decidedAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE online_bookings
		SET status = $3, decided_at = now()
		WHERE id = $1 AND salon_id = $2
		RETURNING decided_at
	`, id, salonID, status).Scan(&decidedAt)
	if db.IsConflict(err) {
		return time.Time{}, ErrConflict
	}
	return decidedAt, err
}

func (t *txRepo) CreateAppointment(ctx context.Context, a *model.Appointment) (string, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(salon_id, service_id, staff_id, customer_name, customer_email, customer_phone, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at
	`, a.SalonID, a.ServiceID, a.StaffID, a.CustomerName, a.CustomerEmail, a.CustomerPhone,
		a.StartTime, a.EndTime, a.Status).Scan(&id, &a.CreatedAt)
	if db.IsConflict(err) {
		return "", ErrConflict
	}
	if err != nil {
		return "", err
	}
	a.ID = id
	return id, nil
}

func (t *txRepo) GetAppointmentForUpdate(ctx context.Context, salonID, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND salon_id = $2
		FOR UPDATE
	`, id, salonID))
}

func (t *txRepo) CancelAppointment(ctx context.Context, salonID, id, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND salon_id = $2
		RETURNING cancelled_at
	`, id, salonID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (t *txRepo) Publish(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
