package availability

import "errors"

var (
	// ErrInvalidSchedule marks opening-hours anomalies. The parser absorbs these and falls back
	// to defaults; they only surface through ParseScheduleReport and Validate.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidDuration is returned when a service duration or slot interval is not positive.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrPolicyViolation matches every *PolicyViolation via errors.Is.
	ErrPolicyViolation = errors.New("booking policy violation")

	// ErrStaleSlot means the slot was offered but a commitment has taken it since. Retryable.
	ErrStaleSlot = errors.New("slot is no longer available")

	// ErrSlotNotOffered means the requested start time is not a bookable slot at all
	// (closed day, break, off-grid time, or no staff member working then).
	ErrSlotNotOffered = errors.New("slot is not offered")

	ErrInvalidClock = errors.New("invalid time of day")
)
