package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/outbox"
	"github.com/md-rashed-zaman/salonbook/libs/salonapi"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/salon"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

// memStore keeps commitments in memory. A transaction that returns an error restores the
// state it started from.
type memStore struct {
	mu       sync.Mutex
	appts    []model.Appointment
	bookings []model.OnlineBooking
	keys     map[string]storage.IdempotencyRecord
	events   []outbox.Event
	locks    []string
}

func newMemStore() *memStore {
	return &memStore{keys: map[string]storage.IdempotencyRecord{}}
}

func (s *memStore) Commitments(_ context.Context, salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitments(salonID, from, to)
}

func (s *memStore) commitments(salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error) {
	var appts []model.Appointment
	for _, a := range s.appts {
		if a.SalonID == salonID && a.StartTime.Before(to) && a.EndTime.After(from) {
			appts = append(appts, a)
		}
	}
	var bookings []model.OnlineBooking
	for _, b := range s.bookings {
		if b.SalonID == salonID && b.StartTime.Before(to) && b.EndTime.After(from) {
			bookings = append(bookings, b)
		}
	}
	return appts, bookings, nil
}

func (s *memStore) ListOnlineBookings(_ context.Context, salonID, status string, limit int) ([]model.OnlineBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OnlineBooking
	for _, b := range s.bookings {
		if b.SalonID == salonID && (status == "" || b.Status == status) && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) ListAppointments(_ context.Context, salonID string, from, to time.Time, limit int) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appts, _, _ := s.commitments(salonID, from, to)
	if len(appts) > limit {
		appts = appts[:limit]
	}
	return appts, nil
}

func (s *memStore) WithTx(_ context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appts := append([]model.Appointment(nil), s.appts...)
	bookings := append([]model.OnlineBooking(nil), s.bookings...)
	events := append([]outbox.Event(nil), s.events...)
	keys := make(map[string]storage.IdempotencyRecord, len(s.keys))
	for k, v := range s.keys {
		keys[k] = v
	}

	if err := fn(&memTx{s: s}); err != nil {
		s.appts, s.bookings, s.events, s.keys = appts, bookings, events, keys
		return err
	}
	return nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) LockIdempotencyKey(_ context.Context, salonID, key string) (storage.IdempotencyRecord, bool, error) {
	k := salonID + "/" + key
	if rec, ok := t.s.keys[k]; ok {
		return rec, true, nil
	}
	rec := storage.IdempotencyRecord{SalonID: salonID, IdempotencyKey: key}
	t.s.keys[k] = rec
	return rec, false, nil
}

func (t *memTx) FinalizeIdempotency(_ context.Context, salonID, key, bookingID string, statusCode int, response []byte) error {
	k := salonID + "/" + key
	rec := t.s.keys[k]
	rec.BookingID, rec.StatusCode, rec.ResponsePayload = bookingID, statusCode, response
	t.s.keys[k] = rec
	return nil
}

func (t *memTx) LockDay(_ context.Context, salonID string, day time.Time) error {
	t.s.locks = append(t.s.locks, salonID+":"+day.Format("2006-01-02"))
	return nil
}

func (t *memTx) Commitments(_ context.Context, salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error) {
	return t.s.commitments(salonID, from, to)
}

func (t *memTx) CreateOnlineBooking(_ context.Context, b *model.OnlineBooking) (string, error) {
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now()
	t.s.bookings = append(t.s.bookings, *b)
	return b.ID, nil
}

func (t *memTx) GetOnlineBookingForUpdate(_ context.Context, salonID, id string) (model.OnlineBooking, error) {
	for _, b := range t.s.bookings {
		if b.ID == id && b.SalonID == salonID {
			return b, nil
		}
	}
	return model.OnlineBooking{}, pgx.ErrNoRows
}

func (t *memTx) SetOnlineBookingStatus(_ context.Context, salonID, id, status string) (time.Time, error) {
	now := time.Now()
	for i := range t.s.bookings {
		if t.s.bookings[i].ID == id && t.s.bookings[i].SalonID == salonID {
			t.s.bookings[i].Status = status
			t.s.bookings[i].DecidedAt = &now
			return now, nil
		}
	}
	return time.Time{}, pgx.ErrNoRows
}

func (t *memTx) CreateAppointment(_ context.Context, a *model.Appointment) (string, error) {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	t.s.appts = append(t.s.appts, *a)
	return a.ID, nil
}

func (t *memTx) GetAppointmentForUpdate(_ context.Context, salonID, id string) (model.Appointment, error) {
	for _, a := range t.s.appts {
		if a.ID == id && a.SalonID == salonID {
			return a, nil
		}
	}
	return model.Appointment{}, pgx.ErrNoRows
}

func (t *memTx) CancelAppointment(_ context.Context, salonID, id, reason string) (time.Time, error) {
	now := time.Now()
	for i := range t.s.appts {
		if t.s.appts[i].ID == id && t.s.appts[i].SalonID == salonID {
			t.s.appts[i].Status = availability.AppointmentCancelled
			t.s.appts[i].CancelledAt = &now
			t.s.appts[i].CancelReason = reason
			return now, nil
		}
	}
	return time.Time{}, pgx.ErrNoRows
}

func (t *memTx) Publish(_ context.Context, evt outbox.Event) error {
	t.s.events = append(t.s.events, evt)
	return nil
}

// fakeSalons serves one booking config and a fixed time-off list.
type fakeSalons struct {
	cfg        salonapi.BookingConfig
	timeOff    []availability.TimeOff
	err        error
	freshCalls int
}

func (f *fakeSalons) BookingConfig(_ context.Context, salonID, serviceID string) (salonapi.BookingConfig, error) {
	if f.err != nil {
		return salonapi.BookingConfig{}, f.err
	}
	if salonID != f.cfg.SalonID || serviceID != f.cfg.Service.ID {
		return salonapi.BookingConfig{}, salon.ErrNotFound
	}
	return f.cfg, nil
}

func (f *fakeSalons) FreshBookingConfig(ctx context.Context, salonID, serviceID string) (salonapi.BookingConfig, error) {
	f.freshCalls++
	return f.BookingConfig(ctx, salonID, serviceID)
}

func (f *fakeSalons) TimeOff(_ context.Context, _ string, date time.Time) ([]availability.TimeOff, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []availability.TimeOff
	for _, t := range f.timeOff {
		if _, ok := t.BlockOn(date); ok {
			out = append(out, t)
		}
	}
	return out, nil
}
