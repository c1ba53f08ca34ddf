package model

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitments_ClipsToSalonDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	date := time.Date(2026, 10, 19, 0, 0, 0, 0, loc)

	appts := []Appointment{
		{StaffID: "a", Status: availability.AppointmentBooked,
			StartTime: time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC), EndTime: time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)},
		{StaffID: "a", Status: availability.AppointmentBooked,
			StartTime: time.Date(2026, 10, 20, 2, 0, 0, 0, time.UTC), EndTime: time.Date(2026, 10, 20, 4, 0, 0, 0, time.UTC)},
		{StaffID: "a", Status: availability.AppointmentBooked,
			StartTime: time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC), EndTime: time.Date(2026, 10, 18, 11, 0, 0, 0, time.UTC)},
	}
	bookings := []OnlineBooking{
		{StaffID: "b", Status: availability.BookingPending,
			StartTime: time.Date(2026, 10, 19, 12, 30, 0, 0, loc), EndTime: time.Date(2026, 10, 19, 13, 0, 0, 0, loc)},
	}

	a, b := Commitments(date, appts, bookings)
	require.Len(t, a, 2)
	assert.Equal(t, availability.Clock(10*60), a[0].Start, "13:00 UTC is 10:00 in Sao Paulo")
	assert.Equal(t, availability.Clock(23*60), a[1].Start)
	assert.Equal(t, availability.Clock(availability.MinutesPerDay), a[1].End, "clipped at midnight")
	require.Len(t, b, 1)
	assert.Equal(t, "b", b[0].MemberID)
	assert.Equal(t, availability.BookingPending, b[0].Status)
}

func TestDayBounds(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	start, end := DayBounds(time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}
