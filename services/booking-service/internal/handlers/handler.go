package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/salon"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

// Error kinds specific to availability and booking responses.
const (
	KindPolicyViolation = "policy_violation"
	KindStaleSlot       = "stale_slot"
	KindSlotNotOffered  = "slot_not_offered"
	KindInvalidDuration = "invalid_duration"
)

// Store is the booking persistence; *storage.Repository implements it.
type Store interface {
	Commitments(ctx context.Context, salonID string, from, to time.Time) ([]model.Appointment, []model.OnlineBooking, error)
	ListOnlineBookings(ctx context.Context, salonID, status string, limit int) ([]model.OnlineBooking, error)
	ListAppointments(ctx context.Context, salonID string, from, to time.Time, limit int) ([]model.Appointment, error)
	WithTx(ctx context.Context, fn func(storage.Tx) error) error
}

type Handler struct {
	store  Store
	salons salon.Provider
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, salons salon.Provider, logger *slog.Logger) *Handler {
	return &Handler{store: store, salons: salons, logger: logger, now: time.Now}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/v1/public/availability", h.Availability)
	r.Post("/api/v1/public/bookings", h.Submit)

	r.Get("/api/v1/online-bookings", h.ListOnlineBookings)
	r.Post("/api/v1/online-bookings/{bookingID}/approve", h.decideOnlineBooking(availability.BookingApproved))
	r.Post("/api/v1/online-bookings/{bookingID}/reject", h.decideOnlineBooking(availability.BookingRejected))
	r.Post("/api/v1/online-bookings/{bookingID}/cancel", h.decideOnlineBooking(availability.BookingCancelled))

	r.Post("/api/v1/appointments", h.CreateAppointment)
	r.Get("/api/v1/appointments", h.ListAppointments)
	r.Post("/api/v1/appointments/{appointmentID}/cancel", h.CancelAppointment)
}

// salonIDFrom reads the salon from X-Salon-Id, falling back to the salon_id query parameter.
func salonIDFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(httpx.SalonIDHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("salon_id"))
}

// errorResponse maps engine and dependency errors to a status and body. ok is false for
// errors that are not part of the API contract and must be reported as internal.
func errorResponse(err error) (int, httpx.ErrorBody, bool) {
	var pv *availability.PolicyViolation
	switch {
	case errors.As(err, &pv):
		return http.StatusUnprocessableEntity, httpx.ErrorBody{Error: pv.Error(), Kind: KindPolicyViolation, Rule: pv.Rule}, true
	case errors.Is(err, availability.ErrStaleSlot), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, httpx.ErrorBody{Error: availability.ErrStaleSlot.Error(), Kind: KindStaleSlot, Retryable: true}, true
	case errors.Is(err, availability.ErrSlotNotOffered):
		return http.StatusUnprocessableEntity, httpx.ErrorBody{Error: err.Error(), Kind: KindSlotNotOffered}, true
	case errors.Is(err, availability.ErrInvalidDuration):
		return http.StatusInternalServerError, httpx.ErrorBody{Error: "salon configuration error", Kind: KindInvalidDuration}, true
	case errors.Is(err, salon.ErrNotFound):
		return http.StatusNotFound, httpx.ErrorBody{Error: "service not found", Kind: httpx.KindNotFound}, true
	case errors.Is(err, salon.ErrUnavailable):
		return http.StatusServiceUnavailable, httpx.ErrorBody{Error: "salon service unavailable", Kind: httpx.KindUnavailable, Retryable: true}, true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, httpx.ErrorBody{Error: "request timed out", Kind: httpx.KindUnavailable, Retryable: true}, true
	}
	return http.StatusInternalServerError, httpx.ErrorBody{Error: "internal error", Kind: httpx.KindInternal}, false
}

// fail writes err using errorResponse. Server-side failures are logged with the request id.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body, known := errorResponse(err)
	if !known || status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err, "op", op, "request_id", httpx.RequestIDFromContext(r.Context()))
	}
	httpx.WriteErrorBody(w, status, body)
}
