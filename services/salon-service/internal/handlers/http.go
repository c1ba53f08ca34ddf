package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/storage"
)

const dateLayout = "2006-01-02"

// Store is the persistence the admin API needs; *storage.Repository implements it.
type Store interface {
	GetOrCreateProfile(ctx context.Context, salonID string) (model.Profile, error)
	UpdateProfile(ctx context.Context, p model.Profile) error
	CreateService(ctx context.Context, s model.Service) (string, error)
	ListServices(ctx context.Context, salonID string) ([]model.Service, error)
	CreateStaff(ctx context.Context, st model.Staff, hours []model.WorkingHours) (string, error)
	ListStaff(ctx context.Context, salonID string) ([]model.Staff, error)
	UpdateStaff(ctx context.Context, salonID, staffID string, patch model.StaffPatch) (model.Staff, error)
	ListWorkingHours(ctx context.Context, salonID, staffID string) ([]model.WorkingHours, error)
	UpsertWorkingHours(ctx context.Context, salonID string, wh model.WorkingHours) error
	CreateTimeOff(ctx context.Context, salonID string, t model.TimeOff) (string, error)
	ListTimeOff(ctx context.Context, salonID string, f storage.TimeOffFilter) ([]model.TimeOff, error)
	DecideTimeOff(ctx context.Context, salonID, timeOffID, status string) (model.TimeOff, error)
	DeleteTimeOff(ctx context.Context, salonID, timeOffID string) error
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes mounts the admin API. Every route is scoped by the X-Salon-Id header.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/salon", func(r chi.Router) {
		r.Use(requireSalonID)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Get("/opening-hours", h.GetOpeningHours)
		r.Post("/services", h.CreateService)
		r.Get("/services", h.ListServices)
		r.Post("/staff", h.CreateStaff)
		r.Get("/staff", h.ListStaff)
		r.Patch("/staff/{staffID}", h.UpdateStaff)
		r.Get("/staff/{staffID}/working-hours", h.ListWorkingHours)
		r.Put("/staff/{staffID}/working-hours", h.UpsertWorkingHours)
		r.Post("/staff/{staffID}/time-off", h.CreateTimeOff)
		r.Get("/staff/{staffID}/time-off", h.ListTimeOff)
		r.Get("/time-off", h.ListTimeOff)
		r.Post("/time-off/{timeOffID}/approve", h.decideTimeOff(availability.TimeOffApproved))
		r.Post("/time-off/{timeOffID}/reject", h.decideTimeOff(availability.TimeOffRejected))
		r.Delete("/time-off/{timeOffID}", h.DeleteTimeOff)
	})
}

type ctxKey int

const ctxKeySalonID ctxKey = iota

func requireSalonID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		salonID := strings.TrimSpace(r.Header.Get(httpx.SalonIDHeader))
		if salonID == "" {
			httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, "missing X-Salon-Id")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeySalonID, salonID)))
	})
}

func salonID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeySalonID).(string)
	return v
}

// fail maps storage errors to responses; anything unexpected is logged and reported as 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case storage.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, httpx.KindNotFound, what+" not found")
	case errors.Is(err, storage.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, httpx.KindConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httpx.WriteErrorBody(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "request timed out", Kind: httpx.KindUnavailable, Retryable: true})
	default:
		h.logger.Error("salon store error", "err", err, "op", what, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.KindInternal, "failed to process "+what)
	}
}

type profileResponse struct {
	SalonID             string    `json:"salon_id"`
	Name                string    `json:"name"`
	Timezone            string    `json:"timezone"`
	OpeningHours        string    `json:"opening_hours"`
	SlotIntervalMinutes int       `json:"slot_interval_minutes"`
	MinNoticeHours      int       `json:"min_notice_hours"`
	MaxDaysAhead        int       `json:"max_days_ahead"`
	AutoApprove         bool      `json:"auto_approve"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toProfileResponse(p model.Profile) profileResponse {
	return profileResponse{
		SalonID:             p.SalonID,
		Name:                p.Name,
		Timezone:            p.Timezone,
		OpeningHours:        p.OpeningHours,
		SlotIntervalMinutes: p.SlotIntervalMinutes,
		MinNoticeHours:      p.MinNoticeHours,
		MaxDaysAhead:        p.MaxDaysAhead,
		AutoApprove:         p.AutoApprove,
		UpdatedAt:           p.UpdatedAt,
	}
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetOrCreateProfile(r.Context(), salonID(r))
	if err != nil {
		h.fail(w, r, "profile", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProfileResponse(p))
}

type profileRequest struct {
	Name                string `json:"name" validate:"max=200"`
	Timezone            string `json:"timezone" validate:"required"`
	OpeningHours        string `json:"opening_hours" validate:"max=4000"`
	SlotIntervalMinutes int    `json:"slot_interval_minutes" validate:"gt=0,lte=1440"`
	MinNoticeHours      int    `json:"min_notice_hours" validate:"gte=0,lte=8760"`
	MaxDaysAhead        int    `json:"max_days_ahead" validate:"gte=0,lte=730"`
	AutoApprove         bool   `json:"auto_approve"`
}

// UpdateProfile replaces the profile. Opening hours the parser would have to repair are
// rejected with the list of problems rather than silently stored.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBadRequest(w, err)
		return
	}
	p := model.Profile{
		SalonID:             salonID(r),
		Name:                strings.TrimSpace(req.Name),
		Timezone:            strings.TrimSpace(req.Timezone),
		OpeningHours:        strings.TrimSpace(req.OpeningHours),
		SlotIntervalMinutes: req.SlotIntervalMinutes,
		MinNoticeHours:      req.MinNoticeHours,
		MaxDaysAhead:        req.MaxDaysAhead,
		AutoApprove:         req.AutoApprove,
	}
	if problems := p.Validate(); len(problems) > 0 {
		httpx.WriteBadRequest(w, &httpx.ValidationError{Details: problems})
		return
	}
	if err := h.store.UpdateProfile(r.Context(), p); err != nil {
		h.fail(w, r, "profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type openingHoursResponse struct {
	Text     string                  `json:"text"`
	Schedule []availability.NamedDay `json:"schedule"`
}

func (h *Handler) GetOpeningHours(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetOrCreateProfile(r.Context(), salonID(r))
	if err != nil {
		h.fail(w, r, "profile", err)
		return
	}
	schedule := p.Schedule()
	httpx.WriteJSON(w, http.StatusOK, openingHoursResponse{Text: schedule.Format(), Schedule: schedule.MondayFirst()})
}

type serviceRequest struct {
	Name            string  `json:"name" validate:"required,max=200"`
	DurationMinutes int     `json:"duration_minutes" validate:"gt=0,lte=1440"`
	Price           float64 `json:"price" validate:"gte=0"`
	Description     string  `json:"description" validate:"max=2000"`
}

type serviceResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price"`
	Description     string    `json:"description"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBadRequest(w, err)
		return
	}
	id, err := h.store.CreateService(r.Context(), model.Service{
		SalonID:         salonID(r),
		Name:            strings.TrimSpace(req.Name),
		DurationMinutes: req.DurationMinutes,
		Price:           strconv.FormatFloat(req.Price, 'f', 2, 64),
		Description:     strings.TrimSpace(req.Description),
		IsActive:        true,
	})
	if err != nil {
		h.fail(w, r, "service", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context(), salonID(r))
	if err != nil {
		h.fail(w, r, "services", err)
		return
	}
	out := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		out = append(out, serviceResponse{
			ID:              s.ID,
			Name:            s.Name,
			DurationMinutes: s.DurationMinutes,
			Price:           s.Price,
			Description:     s.Description,
			IsActive:        s.IsActive,
			CreatedAt:       s.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type staffRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	IsActive  *bool  `json:"is_active"`
	SortOrder *int   `json:"sort_order" validate:"omitempty,gte=0"`
}

type staffResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

func toStaffResponse(s model.Staff) staffResponse {
	return staffResponse{ID: s.ID, Name: s.Name, IsActive: s.IsActive, SortOrder: s.SortOrder, CreatedAt: s.CreatedAt}
}

// CreateStaff adds a member to the end of the roster (or at sort_order) with working hours
// copied from the salon's opening hours.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBadRequest(w, err)
		return
	}
	p, err := h.store.GetOrCreateProfile(r.Context(), salonID(r))
	if err != nil {
		h.fail(w, r, "profile", err)
		return
	}

	st := model.Staff{SalonID: salonID(r), Name: strings.TrimSpace(req.Name), IsActive: true, SortOrder: -1}
	if req.IsActive != nil {
		st.IsActive = *req.IsActive
	}
	if req.SortOrder != nil {
		st.SortOrder = *req.SortOrder
	}
	id, err := h.store.CreateStaff(r.Context(), st, model.HoursFromSchedule("", p.Schedule()))
	if err != nil {
		h.fail(w, r, "staff", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.store.ListStaff(r.Context(), salonID(r))
	if err != nil {
		h.fail(w, r, "staff", err)
		return
	}
	out := make([]staffResponse, 0, len(staff))
	for _, s := range staff {
		out = append(out, toStaffResponse(s))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type staffPatchRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=200"`
	IsActive  *bool   `json:"is_active"`
	SortOrder *int    `json:"sort_order" validate:"omitempty,gte=0"`
}

func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffPatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBadRequest(w, err)
		return
	}
	st, err := h.store.UpdateStaff(r.Context(), salonID(r), chi.URLParam(r, "staffID"), model.StaffPatch{
		Name:      req.Name,
		IsActive:  req.IsActive,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		h.fail(w, r, "staff", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toStaffResponse(st))
}

type workingHoursBody struct {
	Weekday    *int                `json:"weekday" validate:"required,min=0,max=6"`
	IsWorking  bool                `json:"is_working"`
	Start      availability.Clock  `json:"start"`
	End        availability.Clock  `json:"end"`
	BreakStart *availability.Clock `json:"break_start,omitempty"`
	BreakEnd   *availability.Clock `json:"break_end,omitempty"`
}

func (b workingHoursBody) toModel(staffID string) model.WorkingHours {
	return model.WorkingHours{
		StaffID:    staffID,
		Weekday:    time.Weekday(*b.Weekday),
		IsWorking:  b.IsWorking,
		Start:      b.Start,
		End:        b.End,
		BreakStart: b.BreakStart,
		BreakEnd:   b.BreakEnd,
	}
}

func (h *Handler) ListWorkingHours(w http.ResponseWriter, r *http.Request) {
	hours, err := h.store.ListWorkingHours(r.Context(), salonID(r), chi.URLParam(r, "staffID"))
	if err != nil {
		h.fail(w, r, "working hours", err)
		return
	}
	out := make([]workingHoursBody, 0, len(hours))
	for _, wh := range hours {
		wd := int(wh.Weekday)
		out = append(out, workingHoursBody{
			Weekday:    &wd,
			IsWorking:  wh.IsWorking,
			Start:      wh.Start,
			End:        wh.End,
			BreakStart: wh.BreakStart,
			BreakEnd:   wh.BreakEnd,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) UpsertWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req workingHoursBody
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBadRequest(w, err)
		return
	}
	if (req.BreakStart == nil) != (req.BreakEnd == nil) {
		httpx.WriteBadRequest(w, &httpx.ValidationError{Details: []string{"break_start and break_end must be given together"}})
		return
	}
	wh := req.toModel(chi.URLParam(r, "staffID"))
	if wh.IsWorking {
		if err := wh.Day().Validate(); err != nil {
			httpx.WriteBadRequest(w, &httpx.ValidationError{Details: strings.Split(err.Error(), "\n")})
			return
		}
	}
	if err := h.store.UpsertWorkingHours(r.Context(), salonID(r), wh); err != nil {
		h.fail(w, r, "staff", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timeOffRequest struct {
	StartDate string              `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string              `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	StartTime *availability.Clock `json:"start_time,omitempty"`
	EndTime   *availability.Clock `json:"end_time,omitempty"`
	Reason    string              `json:"reason" validate:"max=500"`
	Status    string              `json:"status" validate:"omitempty,oneof=pending approved"`
}

type timeOffResponse struct {
	ID        string              `json:"id"`
	StaffID   string              `json:"staff_id"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	StartTime *availability.Clock `json:"start_time,omitempty"`
	EndTime   *availability.Clock `json:"end_time,omitempty"`
	Reason    string              `json:"reason"`
	Status    string              `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	DecidedAt *time.Time          `json:"decided_at,omitempty"`
}

func toTimeOffResponse(t model.TimeOff) timeOffResponse {
	return timeOffResponse{
		ID:        t.ID,
		StaffID:   t.StaffID,
		StartDate: t.StartDate.Format(dateLayout),
		EndDate:   t.EndDate.Format(dateLayout),
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Reason:    t.Reason,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		DecidedAt: t.DecidedAt,
	}
}

// CreateTimeOff records a leave request. Requests start pending unless the caller approves
// them up front.
func (h *Handler) CreateTimeOff(w http.ResponseWriter, r *http.Request) {
	var req timeOffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBadRequest(w, err)
		return
	}
	start, _ := time.Parse(dateLayout, req.StartDate)
	end := start
	if req.EndDate != "" {
		end, _ = time.Parse(dateLayout, req.EndDate)
	}
	t := model.TimeOff{
		StaffID:   chi.URLParam(r, "staffID"),
		StartDate: start,
		EndDate:   end,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    availability.TimeOffPending,
	}
	if req.Status != "" {
		t.Status = req.Status
	}
	if err := t.Validate(); err != nil {
		httpx.WriteBadRequest(w, &httpx.ValidationError{Details: []string{err.Error()}})
		return
	}

	id, err := h.store.CreateTimeOff(r.Context(), salonID(r), t)
	if err != nil {
		h.fail(w, r, "staff", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id, "status": t.Status})
}

// ListTimeOff lists entries overlapping [from, to]; both default to an open range. The
// staff-scoped route narrows to one member.
func (h *Handler) ListTimeOff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.TimeOffFilter{
		StaffID: chi.URLParam(r, "staffID"),
		Status:  strings.TrimSpace(q.Get("status")),
		From:    time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.KindInvalidRequest, key+" must be YYYY-MM-DD")
			return
		}
		*dst = d
	}

	entries, err := h.store.ListTimeOff(r.Context(), salonID(r), f)
	if err != nil {
		h.fail(w, r, "time-off", err)
		return
	}
	out := make([]timeOffResponse, 0, len(entries))
	for _, t := range entries {
		out = append(out, toTimeOffResponse(t))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) decideTimeOff(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := h.store.DecideTimeOff(r.Context(), salonID(r), chi.URLParam(r, "timeOffID"), status)
		if err != nil {
			h.fail(w, r, "time-off", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toTimeOffResponse(t))
	}
}

func (h *Handler) DeleteTimeOff(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteTimeOff(r.Context(), salonID(r), chi.URLParam(r, "timeOffID")); err != nil {
		h.fail(w, r, "time-off", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
