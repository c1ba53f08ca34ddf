package availability

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func weekdayHours(day DaySchedule) map[time.Weekday]DaySchedule {
	return map[time.Weekday]DaySchedule{
		time.Monday: day, time.Tuesday: day, time.Wednesday: day, time.Thursday: day, time.Friday: day,
	}
}

func member(id string, day DaySchedule) Member {
	return Member{ID: id, Name: id, Active: true, Hours: weekdayHours(day)}
}

func candidates(t *testing.T, day DaySchedule, duration, interval int) []Slot {
	t.Helper()
	slots, err := GenerateSlots(day, duration, interval, nil)
	require.NoError(t, err)
	return slots
}

func membersAt(res []AvailableSlot, at string) ([]string, bool) {
	for _, s := range res {
		if s.Time == hm(at) {
			return s.Members, true
		}
	}
	return nil, false
}

func TestResolve_PerMemberIndependence(t *testing.T) {
	day := OpenDay(hm("09:00"), hm("12:00"))
	res := Resolve(ResolveRequest{
		Date:        monday,
		DurationMin: 30,
		Candidates:  candidates(t, day, 30, 30),
		Members:     []Member{member("A", day), member("B", day)},
		Appointments: []Commitment{
			{Start: hm("10:00"), End: hm("10:30"), MemberID: "A", Status: AppointmentBooked},
		},
	})

	got, ok := membersAt(res, "10:00")
	require.True(t, ok, "slot stays while B is free")
	assert.Equal(t, []string{"B"}, got)

	got, _ = membersAt(res, "10:30")
	assert.Equal(t, []string{"A", "B"}, got)
}

func TestResolve_RosterOrderPreserved(t *testing.T) {
	day := OpenDay(hm("09:00"), hm("10:00"))
	res := Resolve(ResolveRequest{
		Date:        monday,
		DurationMin: 30,
		Candidates:  candidates(t, day, 30, 30),
		Members:     []Member{member("zoe", day), member("ana", day)},
	})
	require.Len(t, res, 2)
	assert.Equal(t, []string{"zoe", "ana"}, res[0].Members)
}

func TestResolve_StatusesThatDoNotBlock(t *testing.T) {
	day := OpenDay(hm("09:00"), hm("11:00"))
	res := Resolve(ResolveRequest{
		Date:        monday,
		DurationMin: 60,
		Candidates:  candidates(t, day, 60, 60),
		Members:     []Member{member("A", day)},
		Appointments: []Commitment{
			{Start: hm("09:00"), End: hm("10:00"), MemberID: "A", Status: AppointmentCancelled},
		},
		OnlineBookings: []Commitment{
			{Start: hm("10:00"), End: hm("11:00"), MemberID: "A", Status: BookingRejected},
		},
		TimeOff: []TimeOff{
			{MemberID: "A", StartDate: monday, EndDate: monday, Status: TimeOffPending},
		},
	})
	assert.Len(t, res, 2)
}

func TestResolve_PendingOnlineBookingBlocks(t *testing.T) {
	day := OpenDay(hm("09:00"), hm("11:00"))
	res := Resolve(ResolveRequest{
		Date:        monday,
		DurationMin: 60,
		Candidates:  candidates(t, day, 60, 30),
		Members:     []Member{member("A", day)},
		OnlineBookings: []Commitment{
			{Start: hm("09:30"), End: hm("10:30"), MemberID: "A", Status: BookingPending},
		},
	})
	// 09:00, 09:30 and 10:00 all overlap 09:30-10:30
	assert.Empty(t, res)
}

func TestResolve_TimeOff(t *testing.T) {
	day := OpenDay(hm("09:00"), hm("17:00"))
	afternoon := hm("14:00")
	back := hm("15:00")
	res := Resolve(ResolveRequest{
		Date:        monday,
		DurationMin: 30,
		Candidates:  candidates(t, day, 30, 30),
		Members:     []Member{member("A", day), member("B", day)},
		TimeOff: []TimeOff{
			{MemberID: "A", StartDate: monday.AddDate(0, 0, -2), EndDate: monday.AddDate(0, 0, 1), Status: TimeOffApproved},
			{MemberID: "B", StartDate: monday, EndDate: monday, StartTime: &afternoon, EndTime: &back, Status: TimeOffApproved},
		},
	})

	for _, s := range res {
		assert.NotContains(t, s.Members, "A", "all-day time-off blocks %s", s.Time)
	}
	_, ok := membersAt(res, "14:00")
	assert.False(t, ok)
	_, ok = membersAt(res, "14:30")
	assert.False(t, ok)
	got, _ := membersAt(res, "13:30")
	assert.Equal(t, []string{"B"}, got)
	got, _ = membersAt(res, "15:00")
	assert.Equal(t, []string{"B"}, got)
}

func TestTimeOff_BlockOnContinuousRange(t *testing.T) {
	start, end := hm("14:00"), hm("11:00")
	off := TimeOff{StartDate: monday, EndDate: monday.AddDate(0, 0, 2), StartTime: &start, EndTime: &end}

	iv, ok := off.BlockOn(monday)
	require.True(t, ok)
	assert.Equal(t, Interval{Start: hm("14:00"), End: MinutesPerDay}, iv)

	iv, ok = off.BlockOn(monday.AddDate(0, 0, 1))
	require.True(t, ok)
	assert.Equal(t, Interval{Start: 0, End: MinutesPerDay}, iv)

	iv, ok = off.BlockOn(monday.AddDate(0, 0, 2))
	require.True(t, ok)
	assert.Equal(t, Interval{Start: 0, End: hm("11:00")}, iv)

	_, ok = off.BlockOn(monday.AddDate(0, 0, 3))
	assert.False(t, ok)
}

func TestResolve_MemberHoursOverrideSalon(t *testing.T) {
	salon := OpenDay(hm("09:00"), hm("18:00"))
	short := OpenDay(hm("10:00"), hm("14:00")).WithBreak(hm("12:00"), hm("12:30"))
	res := Resolve(ResolveRequest{
		Date:        monday,
		DurationMin: 30,
		Candidates:  candidates(t, salon, 30, 30),
		Members:     []Member{member("A", short)},
	})

	_, ok := membersAt(res, "09:30")
	assert.False(t, ok)
	_, ok = membersAt(res, "13:30")
	assert.True(t, ok, "ends exactly at the member's end of day")
	_, ok = membersAt(res, "14:00")
	assert.False(t, ok)
	_, ok = membersAt(res, "12:00")
	assert.False(t, ok, "member break")
}

func TestResolve_MemberSelection(t *testing.T) {
	day := OpenDay(hm("09:00"), hm("10:00"))
	inactive := member("C", day)
	inactive.Active = false
	weekend := Member{ID: "D", Active: true, Hours: map[time.Weekday]DaySchedule{time.Saturday: day}}
	roster := []Member{member("A", day), member("B", day), inactive, weekend}

	res := Resolve(ResolveRequest{Date: monday, DurationMin: 30, Candidates: candidates(t, day, 30, 30), Members: roster})
	require.Len(t, res, 2)
	assert.Equal(t, []string{"A", "B"}, res[0].Members)

	res = Resolve(ResolveRequest{Date: monday, DurationMin: 30, Candidates: candidates(t, day, 30, 30), Members: roster, MemberID: "B"})
	require.Len(t, res, 2)
	assert.Equal(t, []string{"B"}, res[1].Members)

	res = Resolve(ResolveRequest{Date: monday, DurationMin: 30, Candidates: candidates(t, day, 30, 30), Members: roster, MemberID: "D"})
	assert.Empty(t, res, "D does not work on Mondays")

	res = Resolve(ResolveRequest{Date: monday, DurationMin: 30, Candidates: candidates(t, day, 30, 30), Members: roster, MemberID: "C"})
	assert.Empty(t, res)
}

func TestResolve_SalonWideCommitmentBlocksEveryone(t *testing.T) {
	day := OpenDay(hm("09:00"), hm("10:00"))
	res := Resolve(ResolveRequest{
		Date:         monday,
		DurationMin:  30,
		Candidates:   candidates(t, day, 30, 30),
		Members:      []Member{member("A", day), member("B", day)},
		Appointments: []Commitment{{Start: hm("09:00"), End: hm("09:30"), Status: AppointmentBooked}},
	})
	require.Len(t, res, 1)
	assert.Equal(t, hm("09:30"), res[0].Time)
}

func TestResolve_SkipsUnavailableCandidates(t *testing.T) {
	day := OpenDay(hm("09:00"), hm("11:00")).WithBreak(hm("10:00"), hm("10:30"))
	res := Resolve(ResolveRequest{
		Date:        monday,
		DurationMin: 30,
		Candidates:  candidates(t, day, 30, 30),
		Members:     []Member{member("A", OpenDay(hm("09:00"), hm("11:00")))},
	})
	_, ok := membersAt(res, "10:00")
	assert.False(t, ok)
	assert.Len(t, res, 3)
}

func TestAvailableSlot_JSON(t *testing.T) {
	b, err := json.Marshal([]AvailableSlot{{Time: hm("10:00"), Members: []string{"B"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"time":"10:00","available_members":["B"],"total_available_members":1}]`, string(b))
}
