package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/outbox"
	"github.com/md-rashed-zaman/salonbook/libs/salonapi"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type createAppointmentRequest struct {
	SalonID         string              `json:"salon_id" validate:"max=100"`
	ServiceID       string              `json:"service_id" validate:"required,max=100"`
	MemberID        string              `json:"team_member_id" validate:"max=100"`
	Date            string              `json:"date" validate:"required,datetime=2006-01-02"`
	Time            *availability.Clock `json:"time" validate:"required"`
	DurationMinutes int                 `json:"duration_minutes" validate:"omitempty,min=1,max=720"`
	CustomerName    string              `json:"customer_name" validate:"required,max=200"`
	CustomerEmail   string              `json:"customer_email" validate:"omitempty,email,max=200"`
	CustomerPhone   string              `json:"customer_phone" validate:"max=40"`
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type appointmentResponse struct {
	ID            string     `json:"id"`
	ServiceID     string     `json:"service_id"`
	MemberID      string     `json:"team_member_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        string     `json:"status"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type appointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	SalonID       string    `json:"salon_id"`
	ServiceID     string    `json:"service_id"`
	StaffID       string    `json:"staff_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Reason        string    `json:"reason,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:            a.ID,
		ServiceID:     a.ServiceID,
		MemberID:      a.StaffID,
		CustomerName:  a.CustomerName,
		CustomerEmail: a.CustomerEmail,
		CustomerPhone: a.CustomerPhone,
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		Status:        a.Status,
		CancelledAt:   a.CancelledAt,
		CancelReason:  a.CancelReason,
		CreatedAt:     a.CreatedAt.UTC(),
	}
}

func appointmentEventOf(a model.Appointment) appointmentEvent {
	return appointmentEvent{
		AppointmentID: a.ID,
		SalonID:       a.SalonID,
		ServiceID:     a.ServiceID,
		StaffID:       a.StaffID,
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		Reason:        a.CancelReason,
	}
}

// CreateAppointment writes a staff calendar entry. Staff may book outside the public grid, so
// only overlap with the member's active commitments is checked. An empty team_member_id blocks
// the whole salon and collides with every commitment.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBadRequest(w, err)
		return
	}
	salonID := strings.TrimSpace(req.SalonID)
	if salonID == "" {
		salonID = salonIDFrom(r)
	}
	if salonID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "missing salon id")
		return
	}
	memberID := strings.TrimSpace(req.MemberID)
	at := *req.Time
	if at >= availability.MinutesPerDay {
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "time must be before 24:00")
		return
	}

	ctx := r.Context()
	cfg, err := h.salons.FreshBookingConfig(ctx, salonID, req.ServiceID)
	if err != nil {
		h.fail(w, r, "create appointment", err)
		return
	}
	if memberID != "" && !hasMember(cfg, memberID) {
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "unknown team member")
		return
	}
	day, err := h.resolveDay(cfg, req.Date)
	if err != nil {
		h.fail(w, r, "create appointment", err)
		return
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = cfg.Service.DurationMinutes
	}
	if duration <= 0 {
		h.fail(w, r, "create appointment", fmt.Errorf("%w: service %s", availability.ErrInvalidDuration, cfg.Service.ID))
		return
	}

	appt := model.Appointment{
		SalonID:       salonID,
		ServiceID:     cfg.Service.ID,
		StaffID:       memberID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		StartTime:     at.On(day.date),
		Status:        availability.AppointmentBooked,
	}
	appt.EndTime = appt.StartTime.Add(time.Duration(duration) * time.Minute)

	err = h.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.LockDay(ctx, salonID, day.date); err != nil {
			return err
		}
		appts, bookings, err := tx.Commitments(ctx, salonID, appt.StartTime, appt.EndTime)
		if err != nil {
			return err
		}
		if collides(memberID, appts, bookings) {
			return storage.ErrConflict
		}
		if _, err := tx.CreateAppointment(ctx, &appt); err != nil {
			return err
		}
		evt, err := outbox.NewEvent("appointment", appt.ID, storage.EventAppointmentBooked, appointmentEventOf(appt))
		if err != nil {
			return err
		}
		return tx.Publish(ctx, evt)
	})
	if errors.Is(err, storage.ErrConflict) {
		httpx.WriteError(w, http.StatusConflict, httpx.KindConflict, "time range overlaps another commitment")
		return
	}
	if err != nil {
		h.fail(w, r, "create appointment", err)
		return
	}

	h.logger.Info("appointment booked", "salon_id", salonID, "appointment_id", appt.ID, "staff_id", memberID)
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func hasMember(cfg salonapi.BookingConfig, id string) bool {
	for _, m := range cfg.Staff {
		if m.ID == id {
			return true
		}
	}
	return false
}

// collides reports whether a new entry for memberID would overlap a blocking commitment. The
// candidates were already read for the new entry's time range.
func collides(memberID string, appts []model.Appointment, bookings []model.OnlineBooking) bool {
	sameCalendar := func(staffID string) bool {
		return memberID == "" || staffID == "" || staffID == memberID
	}
	for _, a := range appts {
		if availability.AppointmentActive(a.Status) && sameCalendar(a.StaffID) {
			return true
		}
	}
	for _, b := range bookings {
		if availability.BookingBlocks(b.Status) && sameCalendar(b.StaffID) {
			return true
		}
	}
	return false
}

// ListAppointments lists entries for one day, or for the next 30 days when date is omitted.
// The day is taken in UTC unless tz names another location.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	salonID := salonIDFrom(r)
	if salonID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "missing salon id")
		return
	}
	q := r.URL.Query()
	loc := time.UTC
	if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "invalid tz")
			return
		}
		loc = l
	}
	var from, to time.Time
	if date := strings.TrimSpace(q.Get("date")); date != "" {
		d, err := time.ParseInLocation(salonapi.DateLayout, date, loc)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "date must be YYYY-MM-DD")
			return
		}
		from, to = model.DayBounds(d, loc)
	} else {
		from, _ = model.DayBounds(h.now().In(loc), loc)
		to = from.AddDate(0, 0, 30)
	}
	limit, err := limitParam(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, err.Error())
		return
	}

	items, err := h.store.ListAppointments(r.Context(), salonID, from, to, limit)
	if err != nil {
		h.fail(w, r, "list appointments", err)
		return
	}
	out := make([]appointmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAppointmentResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

// CancelAppointment releases a booked entry. Cancelling twice returns the cancelled entry.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	salonID := salonIDFrom(r)
	if salonID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "missing salon id")
		return
	}
	var req cancelAppointmentRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteBadRequest(w, err)
			return
		}
	}
	id := chi.URLParam(r, "appointmentID")
	ctx := r.Context()

	var appt model.Appointment
	err := h.store.WithTx(ctx, func(tx storage.Tx) error {
		a, err := tx.GetAppointmentForUpdate(ctx, salonID, id)
		if err != nil {
			return err
		}
		appt = a
		if a.Status == availability.AppointmentCancelled {
			return nil
		}
		if a.Status != availability.AppointmentBooked {
			return storage.ErrInvalidTransition
		}
		cancelledAt, err := tx.CancelAppointment(ctx, salonID, id, strings.TrimSpace(req.Reason))
		if err != nil {
			return err
		}
		appt.Status = availability.AppointmentCancelled
		appt.CancelledAt = &cancelledAt
		appt.CancelReason = strings.TrimSpace(req.Reason)

		evt, err := outbox.NewEvent("appointment", appt.ID, storage.EventAppointmentCancelled, appointmentEventOf(appt))
		if err != nil {
			return err
		}
		return tx.Publish(ctx, evt)
	})
	switch {
	case storage.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, httpx.KindNotFound, "appointment not found")
		return
	case errors.Is(err, storage.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, httpx.KindConflict, "appointment is "+appt.Status)
		return
	case err != nil:
		h.fail(w, r, "cancel appointment", err)
		return
	}

	h.logger.Info("appointment cancelled", "salon_id", salonID, "appointment_id", appt.ID)
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
