package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/outbox"
	"github.com/md-rashed-zaman/salonbook/libs/salonapi"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type submitRequest struct {
	SalonID       string              `json:"salon_id" validate:"required,max=100"`
	ServiceID     string              `json:"service_id" validate:"required,max=100"`
	MemberID      string              `json:"team_member_id" validate:"max=100"`
	Date          string              `json:"date" validate:"required,datetime=2006-01-02"`
	Time          *availability.Clock `json:"time" validate:"required"`
	CustomerName  string              `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string              `json:"customer_email" validate:"omitempty,email,max=200"`
	CustomerPhone string              `json:"customer_phone" validate:"max=40"`
	Notes         string              `json:"notes" validate:"max=1000"`
}

type submitResponse struct {
	BookingID string             `json:"booking_id"`
	MemberID  string             `json:"team_member_id"`
	Status    string             `json:"status"`
	Date      string             `json:"date"`
	Time      availability.Clock `json:"time"`
}

type onlineBookingEvent struct {
	BookingID string    `json:"booking_id"`
	SalonID   string    `json:"salon_id"`
	ServiceID string    `json:"service_id"`
	StaffID   string    `json:"staff_id"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// reply is a finished response produced inside the submission transaction.
type reply struct {
	status int
	body   []byte
}

func errorReply(status int, body httpx.ErrorBody) (reply, error) {
	raw, err := json.Marshal(body)
	return reply{status: status, body: raw}, err
}

// Submit handles POST /api/v1/public/bookings. The chosen slot is re-validated against fresh
// salon config and the commitments read inside the transaction that inserts the booking, under
// an advisory lock on the salon's calendar day.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		submissions.WithLabelValues(httpx.KindInvalidRequest).Inc()
		httpx.WriteBadRequest(w, err)
		return
	}
	req.SalonID = strings.TrimSpace(req.SalonID)
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	at := *req.Time
	if at >= availability.MinutesPerDay {
		submissions.WithLabelValues(httpx.KindInvalidRequest).Inc()
		httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "time must be before 24:00")
		return
	}

	// Dependency failures before the transaction leave the idempotency key untouched so the
	// client can retry with the same key.
	ctx := r.Context()
	cfg, err := h.salons.FreshBookingConfig(ctx, req.SalonID, req.ServiceID)
	if err != nil {
		h.failSubmit(w, r, err)
		return
	}
	day, err := h.resolveDay(cfg, req.Date)
	if err != nil {
		h.failSubmit(w, r, err)
		return
	}
	if err := cfg.Policy.CheckSlot(h.now().In(day.loc), at.On(day.date)); err != nil {
		h.failSubmit(w, r, err)
		return
	}
	timeOff, err := h.salons.TimeOff(ctx, req.SalonID, day.date)
	if err != nil {
		h.failSubmit(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	var out reply
	err = h.store.WithTx(ctx, func(tx storage.Tx) error {
		if key != "" {
			rec, exists, err := tx.LockIdempotencyKey(ctx, req.SalonID, key)
			if err != nil {
				return err
			}
			if exists && rec.Finalized() {
				out = reply{status: rec.StatusCode, body: rec.ResponsePayload}
				return nil
			}
		}
		if err := tx.LockDay(ctx, req.SalonID, day.date); err != nil {
			return err
		}

		in, err := h.engineInput(ctx, tx, cfg, day, timeOff, req.MemberID)
		if err != nil {
			return err
		}
		memberID, err := availability.CheckBookable(in, at)
		if err != nil {
			return h.rejectInTx(ctx, tx, req.SalonID, key, err, &out)
		}

		booking := model.OnlineBooking{
			SalonID:       req.SalonID,
			ServiceID:     cfg.Service.ID,
			StaffID:       memberID,
			CustomerName:  req.CustomerName,
			CustomerEmail: strings.TrimSpace(req.CustomerEmail),
			CustomerPhone: strings.TrimSpace(req.CustomerPhone),
			Notes:         strings.TrimSpace(req.Notes),
			StartTime:     at.On(day.date),
			Status:        availability.BookingPending,
		}
		booking.EndTime = booking.StartTime.Add(time.Duration(cfg.Service.DurationMinutes) * time.Minute)
		if cfg.AutoApprove {
			booking.Status = availability.BookingApproved
		}
		id, err := tx.CreateOnlineBooking(ctx, &booking)
		if err != nil {
			return err
		}

		evt, err := outbox.NewEvent("online_booking", id, storage.EventOnlineBookingSubmitted, onlineBookingEventOf(booking))
		if err != nil {
			return err
		}
		if err := tx.Publish(ctx, evt); err != nil {
			return err
		}

		body, err := json.Marshal(submitResponse{
			BookingID: id,
			MemberID:  memberID,
			Status:    booking.Status,
			Date:      day.date.Format(salonapi.DateLayout),
			Time:      at,
		})
		if err != nil {
			return err
		}
		out = reply{status: http.StatusCreated, body: body}
		if key != "" {
			return tx.FinalizeIdempotency(ctx, req.SalonID, key, id, out.status, out.body)
		}
		return nil
	})
	if err != nil {
		h.failSubmit(w, r, err)
		return
	}

	submissions.WithLabelValues(outcomeOf(out.status, kindOf(out.body))).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(out.status)
	_, _ = w.Write(out.body)
}

// rejectInTx turns a non-retryable engine rejection into a stored reply so a replay with the
// same key gets the same answer. Retryable and internal errors are returned to roll back.
func (h *Handler) rejectInTx(ctx context.Context, tx storage.Tx, salonID, key string, cause error, out *reply) error {
	status, body, known := errorResponse(cause)
	if !known || body.Retryable || status >= http.StatusInternalServerError {
		return cause
	}
	r, err := errorReply(status, body)
	if err != nil {
		return err
	}
	*out = r
	if key != "" {
		return tx.FinalizeIdempotency(ctx, salonID, key, "", r.status, r.body)
	}
	return nil
}

func (h *Handler) failSubmit(w http.ResponseWriter, r *http.Request, err error) {
	status, body, _ := errorResponse(err)
	submissions.WithLabelValues(outcomeOf(status, body.Kind)).Inc()
	h.fail(w, r, "submit", err)
}

func kindOf(body []byte) string {
	var b httpx.ErrorBody
	if err := json.Unmarshal(body, &b); err != nil {
		return ""
	}
	return b.Kind
}

func onlineBookingEventOf(b model.OnlineBooking) onlineBookingEvent {
	return onlineBookingEvent{
		BookingID: b.ID,
		SalonID:   b.SalonID,
		ServiceID: b.ServiceID,
		StaffID:   b.StaffID,
		Status:    b.Status,
		StartTime: b.StartTime.UTC(),
		EndTime:   b.EndTime.UTC(),
	}
}
