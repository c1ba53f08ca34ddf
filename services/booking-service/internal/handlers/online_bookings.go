package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type onlineBookingResponse struct {
	ID            string     `json:"id"`
	ServiceID     string     `json:"service_id"`
	MemberID      string     `json:"team_member_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

func toOnlineBookingResponse(b model.OnlineBooking) onlineBookingResponse {
	return onlineBookingResponse{
		ID:            b.ID,
		ServiceID:     b.ServiceID,
		MemberID:      b.StaffID,
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		CustomerPhone: b.CustomerPhone,
		Notes:         b.Notes,
		StartTime:     b.StartTime.UTC(),
		EndTime:       b.EndTime.UTC(),
		Status:        b.Status,
		CreatedAt:     b.CreatedAt.UTC(),
		DecidedAt:     b.DecidedAt,
	}
}

func (h *Handler) ListOnlineBookings(w http.ResponseWriter, r *http.Request) {
	salonID := salonIDFrom(r)
	if salonID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "missing salon id")
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", availability.BookingPending, availability.BookingApproved, availability.BookingRejected, availability.BookingCancelled:
	default:
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "invalid status filter")
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, err.Error())
		return
	}

	items, err := h.store.ListOnlineBookings(r.Context(), salonID, status, limit)
	if err != nil {
		h.fail(w, r, "list online bookings", err)
		return
	}
	out := make([]onlineBookingResponse, 0, len(items))
	for _, b := range items {
		out = append(out, toOnlineBookingResponse(b))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

// canMove lists the statuses each online booking status may move to.
var canMove = map[string][]string{
	availability.BookingPending:  {availability.BookingApproved, availability.BookingRejected, availability.BookingCancelled},
	availability.BookingApproved: {availability.BookingCancelled},
}

func transitionAllowed(from, to string) bool {
	for _, s := range canMove[from] {
		if s == to {
			return true
		}
	}
	return false
}

// decideOnlineBooking moves a submission to status. Repeating the current status is a no-op
// that returns the booking unchanged.
func (h *Handler) decideOnlineBooking(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		salonID := salonIDFrom(r)
		if salonID == "" {
			httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "missing salon id")
			return
		}
		id := chi.URLParam(r, "bookingID")
		ctx := r.Context()

		var booking model.OnlineBooking
		err := h.store.WithTx(ctx, func(tx storage.Tx) error {
			b, err := tx.GetOnlineBookingForUpdate(ctx, salonID, id)
			if err != nil {
				return err
			}
			booking = b
			if b.Status == status {
				return nil
			}
			if !transitionAllowed(b.Status, status) {
				return storage.ErrInvalidTransition
			}
			decidedAt, err := tx.SetOnlineBookingStatus(ctx, salonID, id, status)
			if err != nil {
				return err
			}
			b.Status = status
			b.DecidedAt = &decidedAt
			booking = b

			evt, err := outbox.NewEvent("online_booking", b.ID, storage.EventOnlineBookingStatusChanged, onlineBookingEventOf(b))
			if err != nil {
				return err
			}
			return tx.Publish(ctx, evt)
		})
		switch {
		case storage.IsNotFound(err):
			httpx.WriteError(w, http.StatusNotFound, httpx.KindNotFound, "online booking not found")
			return
		case errors.Is(err, storage.ErrInvalidTransition):
			httpx.WriteError(w, http.StatusConflict, httpx.KindConflict, "online booking is "+booking.Status+"; cannot become "+status)
			return
		case err != nil:
			h.fail(w, r, "decide online booking", err)
			return
		}

		h.logger.Info("online booking decided", "salon_id", salonID, "booking_id", booking.ID, "status", status)
		httpx.WriteJSON(w, http.StatusOK, toOnlineBookingResponse(booking))
	}
}

func limitParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 50, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 200 {
		return 0, errors.New("limit must be between 1 and 200")
	}
	return n, nil
}
