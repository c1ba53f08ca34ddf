package model

import (
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
)

// Appointment is a staff calendar entry. An empty StaffID blocks the whole salon.
type Appointment struct {
	ID            string
	SalonID       string
	ServiceID     string
	StaffID       string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}

// OnlineBooking is a customer submission from the public booking page.
type OnlineBooking struct {
	ID            string
	SalonID       string
	ServiceID     string
	StaffID       string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Notes         string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	CreatedAt     time.Time
	DecidedAt     *time.Time
}

// Commitments clips appointments and online bookings to date's calendar day in date's location.
// Entries that do not touch the day are dropped.
func Commitments(date time.Time, appts []Appointment, bookings []OnlineBooking) (fromAppts, fromBookings []availability.Commitment) {
	for _, a := range appts {
		if iv, ok := availability.ClipToDay(date, a.StartTime, a.EndTime); ok {
			fromAppts = append(fromAppts, availability.Commitment{Start: iv.Start, End: iv.End, MemberID: a.StaffID, Status: a.Status})
		}
	}
	for _, b := range bookings {
		if iv, ok := availability.ClipToDay(date, b.StartTime, b.EndTime); ok {
			fromBookings = append(fromBookings, availability.Commitment{Start: iv.Start, End: iv.End, MemberID: b.StaffID, Status: b.Status})
		}
	}
	return fromAppts, fromBookings
}

// DayBounds returns the instants at which date's calendar day starts and ends in loc.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}
