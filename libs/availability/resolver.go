package availability

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	TimeOffPending  = "pending"
	TimeOffApproved = "approved"
	TimeOffRejected = "rejected"

	BookingPending   = "pending"
	BookingApproved  = "approved"
	BookingRejected  = "rejected"
	BookingCancelled = "cancelled"

	AppointmentBooked    = "booked"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentDeleted   = "deleted"
	AppointmentNoShow    = "no_show"
)

// Commitment is an existing appointment or online booking, clipped to the query date.
// An empty MemberID blocks the whole salon.
type Commitment struct {
	Start    Clock
	End      Clock
	MemberID string
	Status   string
}

func (c Commitment) Interval() Interval {
	return Interval{Start: c.Start, End: c.End}
}

// AppointmentActive reports whether an appointment with this status still holds its time.
func AppointmentActive(status string) bool {
	switch strings.ToLower(status) {
	case AppointmentCancelled, AppointmentDeleted, AppointmentNoShow:
		return false
	}
	return true
}

// BookingBlocks reports whether an online booking with this status holds its time.
func BookingBlocks(status string) bool {
	switch strings.ToLower(status) {
	case BookingPending, BookingApproved:
		return true
	}
	return false
}

// TimeOff excludes a member from StartDate through EndDate (inclusive, calendar dates).
// Nil times mean the range starts at the beginning of StartDate and ends at the end of EndDate.
// With times the block is continuous: days strictly inside the range are fully blocked.
type TimeOff struct {
	MemberID  string    `json:"member_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	StartTime *Clock    `json:"start_time,omitempty"`
	EndTime   *Clock    `json:"end_time,omitempty"`
	Status    string    `json:"status"`
}

// BlockOn returns the part of the time-off that falls on date.
func (t TimeOff) BlockOn(date time.Time) (Interval, bool) {
	d, first, last := civil(date), civil(t.StartDate), civil(t.EndDate)
	if d.Before(first) || d.After(last) {
		return Interval{}, false
	}
	iv := Interval{Start: 0, End: MinutesPerDay}
	if t.StartTime != nil && d.Equal(first) {
		iv.Start = *t.StartTime
	}
	if t.EndTime != nil && d.Equal(last) {
		iv.End = *t.EndTime
	}
	if iv.Start >= iv.End {
		return Interval{}, false
	}
	return iv, true
}

// Member is a staff member with per-weekday working hours. A weekday missing from Hours
// means the member does not work that day.
type Member struct {
	ID     string                       `json:"id"`
	Name   string                       `json:"name"`
	Active bool                         `json:"active"`
	Hours  map[time.Weekday]DaySchedule `json:"hours"`
}

// AvailableSlot is a start time with the members free for the whole service duration,
// in roster order.
type AvailableSlot struct {
	Time    Clock
	Members []string
}

func (s AvailableSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time    Clock    `json:"time"`
		Members []string `json:"available_members"`
		Total   int      `json:"total_available_members"`
	}{s.Time, s.Members, len(s.Members)})
}

type ResolveRequest struct {
	Date           time.Time
	DurationMin    int
	Candidates     []Slot
	Members        []Member
	Appointments   []Commitment
	OnlineBookings []Commitment
	TimeOff        []TimeOff
	// MemberID narrows the result to one member when set.
	MemberID string
}

// Resolve keeps the available candidates for which at least one member is free. A member is
// free for a slot when the slot lies inside their working hours and overlaps none of their
// approved time-off, active appointments and pending or approved online bookings.
func Resolve(req ResolveRequest) []AvailableSlot {
	days := memberDays(req)
	out := []AvailableSlot{}
	if req.DurationMin <= 0 || len(days) == 0 {
		return out
	}

	duration := Clock(req.DurationMin)
	for _, c := range req.Candidates {
		if !c.Available {
			continue
		}
		iv := Interval{Start: c.Time, End: c.Time + duration}
		var free []string
		for _, md := range days {
			if md.free(iv) {
				free = append(free, md.id)
			}
		}
		if len(free) > 0 {
			out = append(out, AvailableSlot{Time: c.Time, Members: free})
		}
	}
	return out
}

// memberDay is one member's view of the query date with every blocking source reduced to
// intervals, so each slot check is four overlap scans.
type memberDay struct {
	id           string
	hours        DaySchedule
	timeOff      []Interval
	appointments []Interval
	bookings     []Interval
}

func (md memberDay) free(iv Interval) bool {
	if !md.hours.Covers(iv) {
		return false
	}
	if overlapsAny(iv, md.timeOff) {
		return false
	}
	if overlapsAny(iv, md.appointments) {
		return false
	}
	return !overlapsAny(iv, md.bookings)
}

func memberDays(req ResolveRequest) []memberDay {
	wd := req.Date.Weekday()
	var out []memberDay
	for _, m := range req.Members {
		if !m.Active {
			continue
		}
		hours, working := m.Hours[wd]
		if req.MemberID != "" {
			if m.ID != req.MemberID {
				continue
			}
		} else if !working || !hours.IsOpen {
			continue
		}
		if !working {
			hours = ClosedDay()
		}

		md := memberDay{id: m.ID, hours: hours}
		for _, t := range req.TimeOff {
			if t.MemberID != m.ID || !strings.EqualFold(t.Status, TimeOffApproved) {
				continue
			}
			if iv, ok := t.BlockOn(req.Date); ok {
				md.timeOff = append(md.timeOff, iv)
			}
		}
		for _, a := range req.Appointments {
			if (a.MemberID == "" || a.MemberID == m.ID) && AppointmentActive(a.Status) {
				md.appointments = append(md.appointments, a.Interval())
			}
		}
		for _, b := range req.OnlineBookings {
			if (b.MemberID == "" || b.MemberID == m.ID) && BookingBlocks(b.Status) {
				md.bookings = append(md.bookings, b.Interval())
			}
		}
		out = append(out, md)
	}
	return out
}
