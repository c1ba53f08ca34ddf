package availability

import (
	"fmt"
	"time"
)

// Input is everything one availability computation needs. Now and Date must be expressed in
// the salon's location; commitments are already clipped to Date.
type Input struct {
	Now            time.Time
	Date           time.Time
	ScheduleText   string
	Policy         Policy
	DurationMin    int
	IntervalMin    int
	Members        []Member
	Appointments   []Commitment
	OnlineBookings []Commitment
	TimeOff        []TimeOff
	MemberID       string
}

type Result struct {
	Day   DaySchedule
	Slots []AvailableSlot
}

// NoAvailability reports a successful computation that found nothing bookable.
func (r Result) NoAvailability() bool {
	return len(r.Slots) == 0
}

// Compute runs the policy date guard, the parser, the generator, the notice filter and the
// resolver in that order.
func Compute(in Input) (Result, error) {
	if err := checkDurations(in); err != nil {
		return Result{}, err
	}
	if err := in.Policy.CheckDate(in.Now, in.Date); err != nil {
		return Result{}, err
	}

	day := ParseSchedule(in.ScheduleText).For(in.Date)
	candidates, err := GenerateSlots(day, in.DurationMin, in.IntervalMin, salonWide(in))
	if err != nil {
		return Result{Day: day}, err
	}
	candidates, err = in.Policy.FilterNotice(in.Now, in.Date, candidates)
	if err != nil {
		return Result{Day: day}, err
	}

	slots := Resolve(in.resolveRequest(candidates))
	return Result{Day: day, Slots: slots}, nil
}

// CheckBookable re-validates one start time against current data and returns the member who
// should take it: the requested member, or the first free member in roster order.
func CheckBookable(in Input, at Clock) (string, error) {
	if err := checkDurations(in); err != nil {
		return "", err
	}
	if err := in.Policy.CheckSlot(in.Now, at.On(in.Date)); err != nil {
		return "", err
	}

	day := ParseSchedule(in.ScheduleText).For(in.Date)
	offered, err := GenerateSlots(day, in.DurationMin, in.IntervalMin, nil)
	if err != nil {
		return "", err
	}
	base, ok := findSlot(offered, at)
	if !ok || !base.Available {
		return "", fmt.Errorf("%w: %s on %s", ErrSlotNotOffered, at, in.Date.Format("2006-01-02"))
	}

	// Without commitments the slot must still have someone working, otherwise the request
	// was never valid and retrying will not help.
	idle := in
	idle.Appointments = nil
	idle.OnlineBookings = nil
	if len(Resolve(idle.resolveRequest([]Slot{base}))) == 0 {
		return "", fmt.Errorf("%w: nobody works at %s", ErrSlotNotOffered, at)
	}

	live, err := GenerateSlots(day, in.DurationMin, in.IntervalMin, salonWide(in))
	if err != nil {
		return "", err
	}
	current, _ := findSlot(live, at)
	res := Resolve(in.resolveRequest([]Slot{current}))
	if len(res) == 0 {
		return "", fmt.Errorf("%w: %s", ErrStaleSlot, at)
	}
	return res[0].Members[0], nil
}

func (in Input) resolveRequest(candidates []Slot) ResolveRequest {
	return ResolveRequest{
		Date:           in.Date,
		DurationMin:    in.DurationMin,
		Candidates:     candidates,
		Members:        in.Members,
		Appointments:   in.Appointments,
		OnlineBookings: in.OnlineBookings,
		TimeOff:        in.TimeOff,
		MemberID:       in.MemberID,
	}
}

func checkDurations(in Input) error {
	if in.DurationMin <= 0 || in.IntervalMin <= 0 {
		return fmt.Errorf("%w: duration %d min, interval %d min", ErrInvalidDuration, in.DurationMin, in.IntervalMin)
	}
	return nil
}

// salonWide collects the blocking commitments that have no member, which the generator marks
// as booked for everyone.
func salonWide(in Input) []Interval {
	var out []Interval
	for _, a := range in.Appointments {
		if a.MemberID == "" && AppointmentActive(a.Status) {
			out = append(out, a.Interval())
		}
	}
	for _, b := range in.OnlineBookings {
		if b.MemberID == "" && BookingBlocks(b.Status) {
			out = append(out, b.Interval())
		}
	}
	return out
}
