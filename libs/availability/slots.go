package availability

import "fmt"

const (
	ReasonBreak  = "break"
	ReasonBooked = "booked"
)

// Slot is a candidate start time. Reason is set only when Available is false.
type Slot struct {
	Time      Clock  `json:"time"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// GenerateSlots enumerates every start time in day at which a service of durationMin minutes
// fits before closing, stepping by intervalMin. A service may end exactly at closing time.
// Slots overlapping the break are marked "break"; slots overlapping any booked interval are
// marked "booked". A closed day yields an empty slice.
func GenerateSlots(day DaySchedule, durationMin, intervalMin int, booked []Interval) ([]Slot, error) {
	if durationMin <= 0 || intervalMin <= 0 {
		return nil, fmt.Errorf("%w: duration %d min, interval %d min", ErrInvalidDuration, durationMin, intervalMin)
	}
	if !day.IsOpen || day.End-day.Start < Clock(durationMin) {
		return []Slot{}, nil
	}

	brk, hasBreak := day.Break()
	duration := Clock(durationMin)
	step := Clock(intervalMin)
	last := day.End - duration

	slots := make([]Slot, 0, int(last-day.Start)/intervalMin+1)
	for t := day.Start; t <= last; t += step {
		iv := Interval{Start: t, End: t + duration}
		s := Slot{Time: t, Available: true}
		switch {
		case hasBreak && Overlaps(iv, brk):
			s.Available = false
			s.Reason = ReasonBreak
		case overlapsAny(iv, booked):
			s.Available = false
			s.Reason = ReasonBooked
		}
		slots = append(slots, s)
	}
	return slots, nil
}

func findSlot(slots []Slot, at Clock) (Slot, bool) {
	for _, s := range slots {
		if s.Time == at {
			return s, true
		}
	}
	return Slot{}, false
}
