package availability

import (
	"fmt"
	"time"
)

const (
	RuleMinNotice    = "min_notice"
	RuleMaxDaysAhead = "max_days_ahead"
	RulePastDate     = "past_date"
)

// Policy holds the salon-level booking window. Zero values disable the corresponding guard.
type Policy struct {
	MinNoticeHours int `json:"min_notice_hours"`
	MaxDaysAhead   int `json:"max_days_ahead"`
}

// PolicyViolation is returned when a query or booking falls outside the booking window.
// Earliest and Latest bound the window the salon accepts, when known.
type PolicyViolation struct {
	Rule     string
	Earliest time.Time
	Latest   time.Time
}

func (e *PolicyViolation) Error() string {
	switch e.Rule {
	case RuleMinNotice:
		return fmt.Sprintf("bookings need notice: earliest start is %s", e.Earliest.Format("2006-01-02 15:04"))
	case RuleMaxDaysAhead:
		return fmt.Sprintf("bookings open only until %s", e.Latest.Format("2006-01-02"))
	case RulePastDate:
		return "date is in the past"
	}
	return "booking policy violation: " + e.Rule
}

func (e *PolicyViolation) Is(target error) bool {
	return target == ErrPolicyViolation
}

// MaxNoticeHours caps MinNoticeHours; larger values are treated as a year of notice.
const MaxNoticeHours = 8760

// Horizon is the earliest instant a booking may start.
func (p Policy) Horizon(now time.Time) time.Time {
	return now.Add(time.Duration(min(p.MinNoticeHours, MaxNoticeHours)) * time.Hour)
}

// LastDate is the last calendar date open for booking, or the zero time if unlimited.
func (p Policy) LastDate(now time.Time) time.Time {
	if p.MaxDaysAhead <= 0 {
		return time.Time{}
	}
	return civil(now).AddDate(0, 0, p.MaxDaysAhead)
}

// CheckDate rejects dates before today or more than MaxDaysAhead days after today. now and
// date must be in the salon's location.
func (p Policy) CheckDate(now, date time.Time) error {
	d, today := civil(date), civil(now)
	if d.Before(today) {
		return &PolicyViolation{Rule: RulePastDate, Earliest: today}
	}
	if last := p.LastDate(now); !last.IsZero() && d.After(last) {
		return &PolicyViolation{Rule: RuleMaxDaysAhead, Latest: last}
	}
	return nil
}

// CheckSlot applies both guards to a single start instant.
func (p Policy) CheckSlot(now, start time.Time) error {
	if err := p.CheckDate(now, start); err != nil {
		return err
	}
	if horizon := p.Horizon(now); start.Before(horizon) {
		return &PolicyViolation{Rule: RuleMinNotice, Earliest: horizon}
	}
	return nil
}

// FilterNotice drops slots on date that start before the notice horizon. When the notice
// period, rather than the clock, removed every remaining bookable slot the result is a
// min_notice violation instead of an empty list.
func (p Policy) FilterNotice(now, date time.Time, slots []Slot) ([]Slot, error) {
	horizon := p.Horizon(now)
	kept := make([]Slot, 0, len(slots))
	var cutByNotice, availableKept int
	for _, s := range slots {
		start := s.Time.On(date)
		if start.Before(horizon) {
			if s.Available && !start.Before(now) {
				cutByNotice++
			}
			continue
		}
		if s.Available {
			availableKept++
		}
		kept = append(kept, s)
	}
	if cutByNotice > 0 && availableKept == 0 {
		return nil, &PolicyViolation{Rule: RuleMinNotice, Earliest: horizon}
	}
	return kept, nil
}
