package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/salonapi"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

type availabilityQuery struct {
	SalonID   string `json:"salon_id" validate:"required,max=100"`
	ServiceID string `json:"service_id" validate:"required,max=100"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	MemberID  string `json:"team_member_id" validate:"max=100"`
}

// Availability answers GET /api/v1/public/availability with the bookable start times of one
// service on one salon-local date. An empty list means nothing is bookable.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(availabilitySeconds)
	defer timer.ObserveDuration()

	q := r.URL.Query()
	req := availabilityQuery{
		SalonID:   strings.TrimSpace(q.Get("salon_id")),
		ServiceID: strings.TrimSpace(q.Get("service_id")),
		Date:      strings.TrimSpace(q.Get("date")),
		MemberID:  strings.TrimSpace(q.Get("team_member_id")),
	}
	if err := httpx.Validate(&req); err != nil {
		availabilityQueries.WithLabelValues(httpx.KindInvalidRequest).Inc()
		httpx.WriteBadRequest(w, err)
		return
	}

	ctx := r.Context()
	cfg, err := h.salons.BookingConfig(ctx, req.SalonID, req.ServiceID)
	if err != nil {
		h.failQuery(w, r, err)
		return
	}
	day, err := h.resolveDay(cfg, req.Date)
	if err != nil {
		h.failQuery(w, r, err)
		return
	}
	timeOff, err := h.salons.TimeOff(ctx, req.SalonID, day.date)
	if err != nil {
		h.failQuery(w, r, err)
		return
	}
	in, err := h.engineInput(ctx, h.store, cfg, day, timeOff, req.MemberID)
	if err != nil {
		h.failQuery(w, r, err)
		return
	}

	res, err := availability.Compute(in)
	if err != nil {
		h.failQuery(w, r, err)
		return
	}
	outcome := "ok"
	if res.NoAvailability() {
		outcome = "no_availability"
	}
	availabilityQueries.WithLabelValues(outcome).Inc()
	httpx.WriteJSON(w, http.StatusOK, res.Slots)
}

func (h *Handler) failQuery(w http.ResponseWriter, r *http.Request, err error) {
	status, body, _ := errorResponse(err)
	availabilityQueries.WithLabelValues(outcomeOf(status, body.Kind)).Inc()
	h.fail(w, r, "availability", err)
}

// salonDay is a calendar date in the salon's location with the instants bounding it.
type salonDay struct {
	loc      *time.Location
	date     time.Time
	from, to time.Time
}

func (h *Handler) resolveDay(cfg salonapi.BookingConfig, date string) (salonDay, error) {
	loc, err := cfg.Location()
	if err != nil {
		return salonDay{}, fmt.Errorf("salon %s timezone: %w", cfg.SalonID, err)
	}
	d, err := time.ParseInLocation(salonapi.DateLayout, date, loc)
	if err != nil {
		return salonDay{}, err
	}
	from, to := model.DayBounds(d, loc)
	return salonDay{loc: loc, date: d, from: from, to: to}, nil
}

// commitmentSource is implemented by the store and by a storage transaction, so the query
// path and the submission path read commitments the same way.
type commitmentSource interface {
	Commitments(ctx context.Context, salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error)
}

func (h *Handler) engineInput(ctx context.Context, src commitmentSource, cfg salonapi.BookingConfig, day salonDay, timeOff []availability.TimeOff, memberID string) (availability.Input, error) {
	appts, bookings, err := src.Commitments(ctx, cfg.SalonID, day.from, day.to)
	if err != nil {
		return availability.Input{}, err
	}
	fromAppts, fromBookings := model.Commitments(day.date, appts, bookings)
	return availability.Input{
		Now:            h.now().In(day.loc),
		Date:           day.date,
		ScheduleText:   cfg.OpeningHours,
		Policy:         cfg.Policy,
		DurationMin:    cfg.Service.DurationMinutes,
		IntervalMin:    cfg.SlotIntervalMinutes,
		Members:        cfg.Staff,
		Appointments:   fromAppts,
		OnlineBookings: fromBookings,
		TimeOff:        timeOff,
		MemberID:       memberID,
	}, nil
}
