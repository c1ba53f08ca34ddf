package model

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
)

const (
	DefaultTimezone            = "UTC"
	DefaultSlotIntervalMinutes = 30
	DefaultMaxDaysAhead        = 60
)

// Profile is the salon-level configuration the availability engine runs on.
type Profile struct {
	SalonID             string
	Name                string
	Timezone            string
	OpeningHours        string
	SlotIntervalMinutes int
	MinNoticeHours      int
	MaxDaysAhead        int
	AutoApprove         bool
	UpdatedAt           time.Time
}

func DefaultProfile(salonID string) Profile {
	return Profile{
		SalonID:             salonID,
		Timezone:            DefaultTimezone,
		SlotIntervalMinutes: DefaultSlotIntervalMinutes,
		MaxDaysAhead:        DefaultMaxDaysAhead,
	}
}

func (p Profile) Policy() availability.Policy {
	return availability.Policy{MinNoticeHours: p.MinNoticeHours, MaxDaysAhead: p.MaxDaysAhead}
}

func (p Profile) Schedule() availability.WeeklySchedule {
	return availability.ParseSchedule(p.OpeningHours)
}

// Validate rejects profiles the engine could not serve: unknown timezones, non-positive slot
// intervals, negative policy values and opening hours the parser had to repair.
func (p Profile) Validate() []string {
	var problems []string
	if _, err := time.LoadLocation(p.Timezone); err != nil || p.Timezone == "" {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", p.Timezone))
	}
	if p.SlotIntervalMinutes <= 0 {
		problems = append(problems, "slot_interval_minutes must be positive")
	}
	if p.MinNoticeHours < 0 {
		problems = append(problems, "min_notice_hours must not be negative")
	}
	if p.MaxDaysAhead < 0 {
		problems = append(problems, "max_days_ahead must not be negative")
	}
	_, issues := availability.ParseScheduleReport(p.OpeningHours)
	for _, err := range issues {
		problems = append(problems, err.Error())
	}
	return problems
}

type Service struct {
	ID              string
	SalonID         string
	Name            string
	DurationMinutes int
	Price           string
	Description     string
	IsActive        bool
	CreatedAt       time.Time
}

type Staff struct {
	ID        string
	SalonID   string
	Name      string
	IsActive  bool
	SortOrder int
	CreatedAt time.Time
}

// StaffPatch carries the optional fields of a staff update.
type StaffPatch struct {
	Name      *string
	IsActive  *bool
	SortOrder *int
}

// WorkingHours is one weekday row of a staff member's schedule. Weekday uses time.Weekday
// numbering.
type WorkingHours struct {
	StaffID    string
	Weekday    time.Weekday
	IsWorking  bool
	Start      availability.Clock
	End        availability.Clock
	BreakStart *availability.Clock
	BreakEnd   *availability.Clock
}

func (wh WorkingHours) Day() availability.DaySchedule {
	if !wh.IsWorking {
		return availability.ClosedDay()
	}
	d := availability.OpenDay(wh.Start, wh.End)
	if wh.BreakStart != nil && wh.BreakEnd != nil {
		d = d.WithBreak(*wh.BreakStart, *wh.BreakEnd)
	}
	return d
}

func WorkingHoursFromDay(staffID string, wd time.Weekday, d availability.DaySchedule) WorkingHours {
	wh := WorkingHours{StaffID: staffID, Weekday: wd, IsWorking: d.IsOpen, Start: d.Start, End: d.End}
	if brk, ok := d.Break(); ok && d.IsOpen {
		wh.BreakStart, wh.BreakEnd = &brk.Start, &brk.End
	}
	return wh
}

// HoursFromSchedule seeds a new staff member's week from the salon's opening hours.
func HoursFromSchedule(staffID string, w availability.WeeklySchedule) []WorkingHours {
	out := make([]WorkingHours, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		out = append(out, WorkingHoursFromDay(staffID, wd, w[wd]))
	}
	return out
}

// Member converts a staff row and its working hours into the engine's view. Days not working
// are left out of the map.
func Member(s Staff, hours []WorkingHours) availability.Member {
	m := availability.Member{ID: s.ID, Name: s.Name, Active: s.IsActive, Hours: map[time.Weekday]availability.DaySchedule{}}
	for _, wh := range hours {
		if wh.IsWorking {
			m.Hours[wh.Weekday] = wh.Day()
		}
	}
	return m
}

type TimeOff struct {
	ID        string
	StaffID   string
	StartDate time.Time
	EndDate   time.Time
	StartTime *availability.Clock
	EndTime   *availability.Clock
	Reason    string
	Status    string
	CreatedAt time.Time
	DecidedAt *time.Time
}

func (t TimeOff) Availability() availability.TimeOff {
	return availability.TimeOff{
		MemberID:  t.StaffID,
		StartDate: t.StartDate,
		EndDate:   t.EndDate,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Status:    t.Status,
	}
}

// Validate checks the range is non-empty. Times on the same day must be ordered.
func (t TimeOff) Validate() error {
	if t.EndDate.Before(t.StartDate) {
		return fmt.Errorf("end_date before start_date")
	}
	if (t.StartTime == nil) != (t.EndTime == nil) {
		return fmt.Errorf("start_time and end_time must be given together")
	}
	if t.StartTime != nil && t.StartDate.Equal(t.EndDate) && *t.StartTime >= *t.EndTime {
		return fmt.Errorf("end_time must be after start_time")
	}
	return nil
}
