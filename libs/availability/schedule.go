package availability

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultOpen  Clock = 9 * 60
	DefaultClose Clock = 18 * 60
)

// DaySchedule is the opening window of one weekday with an optional break.
// Closed days keep their time fields populated so a WeeklySchedule is total over all seven days.
type DaySchedule struct {
	IsOpen     bool  `json:"is_open"`
	Start      Clock `json:"start"`
	End        Clock `json:"end"`
	HasBreak   bool  `json:"has_break"`
	BreakStart Clock `json:"break_start"`
	BreakEnd   Clock `json:"break_end"`
}

// ClosedDay is a closed day with defaulted hours.
func ClosedDay() DaySchedule {
	return DaySchedule{Start: DefaultOpen, End: DefaultClose}
}

// OpenDay returns an open day without a break.
func OpenDay(start, end Clock) DaySchedule {
	return DaySchedule{IsOpen: true, Start: start, End: end}
}

// WithBreak returns a copy of d with the given break window.
func (d DaySchedule) WithBreak(start, end Clock) DaySchedule {
	d.HasBreak = true
	d.BreakStart = start
	d.BreakEnd = end
	return d
}

// Break returns the break window. A break with a non-positive length is ignored.
func (d DaySchedule) Break() (Interval, bool) {
	if !d.HasBreak || d.BreakStart >= d.BreakEnd {
		return Interval{}, false
	}
	return Interval{Start: d.BreakStart, End: d.BreakEnd}, true
}

// Covers reports whether iv fits inside the open window without touching the break.
func (d DaySchedule) Covers(iv Interval) bool {
	if !d.IsOpen || iv.Start < d.Start || iv.End > d.End {
		return false
	}
	if brk, ok := d.Break(); ok && Overlaps(iv, brk) {
		return false
	}
	return true
}

// Validate checks the invariants callers are expected to enforce before persisting a schedule.
func (d DaySchedule) Validate() error {
	if !d.IsOpen {
		return nil
	}
	var errs []error
	if d.Start < 0 || d.End > MinutesPerDay || d.Start >= d.End {
		errs = append(errs, fmt.Errorf("%w: hours %s-%s", ErrInvalidSchedule, d.Start, d.End))
	}
	if d.HasBreak {
		if d.BreakStart >= d.BreakEnd {
			errs = append(errs, fmt.Errorf("%w: break %s-%s is empty", ErrInvalidSchedule, d.BreakStart, d.BreakEnd))
		} else if d.BreakStart < d.Start || d.BreakEnd > d.End {
			errs = append(errs, fmt.Errorf("%w: break %s-%s outside hours %s-%s", ErrInvalidSchedule, d.BreakStart, d.BreakEnd, d.Start, d.End))
		}
	}
	return errors.Join(errs...)
}

// WeeklySchedule is indexed by time.Weekday: 0=Sunday through 6=Saturday.
type WeeklySchedule [7]DaySchedule

// DefaultWeeklySchedule is open Monday to Saturday 09:00-18:00 and closed on Sunday.
func DefaultWeeklySchedule() WeeklySchedule {
	var w WeeklySchedule
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if wd == time.Sunday {
			w[wd] = ClosedDay()
			continue
		}
		w[wd] = OpenDay(DefaultOpen, DefaultClose)
	}
	return w
}

func closedWeek() WeeklySchedule {
	var w WeeklySchedule
	for i := range w {
		w[i] = ClosedDay()
	}
	return w
}

// For returns the schedule for date's weekday.
func (w WeeklySchedule) For(date time.Time) DaySchedule {
	return w[date.Weekday()]
}

func (w WeeklySchedule) Validate() error {
	var errs []error
	for wd, d := range w {
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", time.Weekday(wd), err))
		}
	}
	return errors.Join(errs...)
}

// DisplayOrder lists weekdays Monday first, the order salons present their hours in.
var DisplayOrder = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// Format renders w in the text form ParseSchedule reads, listing open days only.
func (w WeeklySchedule) Format() string {
	var out []byte
	for _, wd := range DisplayOrder {
		d := w[wd]
		if !d.IsOpen {
			continue
		}
		out = fmt.Appendf(out, "%s: %s - %s\n", DayName(wd), d.Start, d.End)
		if brk, ok := d.Break(); ok {
			out = fmt.Appendf(out, "  Pausa: %s - %s\n", brk.Start, brk.End)
		}
	}
	return string(out)
}

// NamedDay is one weekday of a WeeklySchedule together with its display name.
type NamedDay struct {
	Weekday time.Weekday `json:"weekday"`
	Name    string       `json:"name"`
	DaySchedule
}

// MondayFirst returns all seven days in DisplayOrder.
func (w WeeklySchedule) MondayFirst() []NamedDay {
	out := make([]NamedDay, 0, len(DisplayOrder))
	for _, wd := range DisplayOrder {
		out = append(out, NamedDay{Weekday: wd, Name: DayName(wd), DaySchedule: w[wd]})
	}
	return out
}
