package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mondayOnly = "Segunda-feira: 09:00 - 18:00\n  Pausa: 12:00 - 13:00\n"

func mondayInput() Input {
	day := OpenDay(hm("09:00"), hm("18:00")).WithBreak(hm("12:00"), hm("13:00"))
	return Input{
		Now:          monday.AddDate(0, 0, -3).Add(10 * time.Hour),
		Date:         monday,
		ScheduleText: mondayOnly,
		DurationMin:  30,
		IntervalMin:  30,
		Members:      []Member{member("A", day), member("B", day)},
	}
}

func TestCompute_EndToEnd(t *testing.T) {
	in := mondayInput()
	in.Appointments = []Commitment{{Start: hm("10:00"), End: hm("10:30"), MemberID: "A", Status: AppointmentBooked}}

	res, err := Compute(in)
	require.NoError(t, err)
	require.Len(t, res.Slots, 16, "9h x 2 slots/h minus the two break slots")

	got, ok := membersAt(res.Slots, "10:00")
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, got)

	_, ok = membersAt(res.Slots, "12:30")
	assert.False(t, ok)
	_, ok = membersAt(res.Slots, "12:00")
	assert.False(t, ok)

	got, ok = membersAt(res.Slots, "17:30")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, got)

	again, err := Compute(in)
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestCompute_ClosedDayIsNoAvailability(t *testing.T) {
	in := mondayInput()
	in.Date = monday.AddDate(0, 0, 1)
	res, err := Compute(in)
	require.NoError(t, err)
	assert.True(t, res.NoAvailability())
	assert.NotNil(t, res.Slots)
}

func TestCompute_InvalidDurationSurfaces(t *testing.T) {
	in := mondayInput()
	in.DurationMin = 0
	_, err := Compute(in)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestCompute_MinNoticeRemovesEverySlot(t *testing.T) {
	in := mondayInput()
	in.Now = monday.Add(16 * time.Hour)
	in.Policy = Policy{MinNoticeHours: 2}

	_, err := Compute(in)
	require.ErrorIs(t, err, ErrPolicyViolation)
	var pv *PolicyViolation
	require.True(t, errors.As(err, &pv))
	assert.Equal(t, RuleMinNotice, pv.Rule)
	assert.Equal(t, monday.Add(18*time.Hour), pv.Earliest)
}

func TestCompute_MinNoticeTrimsEarlySlots(t *testing.T) {
	in := mondayInput()
	in.Now = monday.Add(14 * time.Hour)
	in.Policy = Policy{MinNoticeHours: 2}

	res, err := Compute(in)
	require.NoError(t, err)
	require.Len(t, res.Slots, 4)
	assert.Equal(t, hm("16:00"), res.Slots[0].Time)
}

func TestCompute_PastSlotsAreNotAViolation(t *testing.T) {
	in := mondayInput()
	in.Now = monday.Add(19 * time.Hour)

	res, err := Compute(in)
	require.NoError(t, err)
	assert.True(t, res.NoAvailability())
}

func TestCompute_DateGuards(t *testing.T) {
	in := mondayInput()
	in.Policy = Policy{MaxDaysAhead: 2}

	_, err := Compute(in)
	var pv *PolicyViolation
	require.True(t, errors.As(err, &pv))
	assert.Equal(t, RuleMaxDaysAhead, pv.Rule)

	in.Policy = Policy{}
	in.Now = monday.AddDate(0, 0, 1)
	_, err = Compute(in)
	require.True(t, errors.As(err, &pv))
	assert.Equal(t, RulePastDate, pv.Rule)
}

func TestPolicy_MinNoticeBoundary(t *testing.T) {
	p := Policy{MinNoticeHours: 2}
	now := monday.Add(8 * time.Hour)

	err := p.CheckSlot(now, now.Add(90*time.Minute))
	require.ErrorIs(t, err, ErrPolicyViolation)

	assert.NoError(t, p.CheckSlot(now, now.Add(2*time.Hour)))
}

func TestPolicy_HugeNoticeStillGuards(t *testing.T) {
	now := monday.Add(8 * time.Hour)
	p := Policy{MinNoticeHours: 3_000_000}

	assert.Equal(t, now.Add(MaxNoticeHours*time.Hour), p.Horizon(now))
	assert.ErrorIs(t, p.CheckSlot(now, now.AddDate(0, 6, 0)), ErrPolicyViolation)
}

func TestPolicy_MaxDaysAheadIsInclusive(t *testing.T) {
	p := Policy{MaxDaysAhead: 30}
	now := monday.Add(20 * time.Hour)

	assert.NoError(t, p.CheckDate(now, monday.AddDate(0, 0, 30)))
	assert.ErrorIs(t, p.CheckDate(now, monday.AddDate(0, 0, 31)), ErrPolicyViolation)
}

func TestCheckBookable(t *testing.T) {
	t.Run("free slot goes to the first member", func(t *testing.T) {
		member, err := CheckBookable(mondayInput(), hm("09:00"))
		require.NoError(t, err)
		assert.Equal(t, "A", member)
	})

	t.Run("taken since the query", func(t *testing.T) {
		in := mondayInput()
		in.OnlineBookings = []Commitment{
			{Start: hm("10:00"), End: hm("10:30"), MemberID: "A", Status: BookingApproved},
			{Start: hm("09:45"), End: hm("10:15"), MemberID: "B", Status: BookingPending},
		}
		_, err := CheckBookable(in, hm("10:00"))
		assert.ErrorIs(t, err, ErrStaleSlot)
	})

	t.Run("salon-wide block", func(t *testing.T) {
		in := mondayInput()
		in.Appointments = []Commitment{{Start: hm("10:00"), End: hm("11:00"), Status: AppointmentBooked}}
		_, err := CheckBookable(in, hm("10:30"))
		assert.ErrorIs(t, err, ErrStaleSlot)
	})

	t.Run("requested member busy", func(t *testing.T) {
		in := mondayInput()
		in.MemberID = "B"
		in.Appointments = []Commitment{{Start: hm("11:00"), End: hm("11:30"), MemberID: "B", Status: AppointmentBooked}}
		_, err := CheckBookable(in, hm("11:00"))
		assert.ErrorIs(t, err, ErrStaleSlot)

		in.MemberID = ""
		member, err := CheckBookable(in, hm("11:00"))
		require.NoError(t, err)
		assert.Equal(t, "A", member)
	})

	t.Run("requested member on leave", func(t *testing.T) {
		in := mondayInput()
		in.MemberID = "B"
		in.TimeOff = []TimeOff{{MemberID: "B", StartDate: monday, EndDate: monday, Status: TimeOffApproved}}
		_, err := CheckBookable(in, hm("11:00"))
		assert.ErrorIs(t, err, ErrSlotNotOffered)
	})

	t.Run("not offered", func(t *testing.T) {
		for _, at := range []string{"10:10", "12:00", "08:00", "17:45"} {
			_, err := CheckBookable(mondayInput(), hm(at))
			assert.ErrorIs(t, err, ErrSlotNotOffered, at)
		}
	})

	t.Run("policy", func(t *testing.T) {
		in := mondayInput()
		in.Now = monday.Add(8 * time.Hour)
		in.Policy = Policy{MinNoticeHours: 2}
		_, err := CheckBookable(in, hm("09:30"))
		assert.ErrorIs(t, err, ErrPolicyViolation)
	})
}
