// Package seed imports a salon definition from YAML for local development.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// File is the seed document:
//
//	salon_id: demo
//	timezone: America/Sao_Paulo
//	opening_hours: |
//	  Segunda-feira: 09:00 - 18:00
//	    Pausa: 12:00 - 13:00
//	services:
//	  - {name: Corte, duration_minutes: 45, price: 80}
//	staff:
//	  - name: Ana
//	    time_off:
//	      - {start_date: 2026-10-19, end_date: 2026-10-20}
type File struct {
	SalonID             string    `yaml:"salon_id"`
	Name                string    `yaml:"name"`
	Timezone            string    `yaml:"timezone"`
	OpeningHours        string    `yaml:"opening_hours"`
	SlotIntervalMinutes int       `yaml:"slot_interval_minutes"`
	MinNoticeHours      int       `yaml:"min_notice_hours"`
	MaxDaysAhead        *int      `yaml:"max_days_ahead"`
	AutoApprove         bool      `yaml:"auto_approve"`
	Services            []Service `yaml:"services"`
	Staff               []Staff   `yaml:"staff"`
}

type Service struct {
	Name            string  `yaml:"name"`
	DurationMinutes int     `yaml:"duration_minutes"`
	Price           float64 `yaml:"price"`
	Description     string  `yaml:"description"`
}

// Staff members without hours inherit the salon's opening hours.
type Staff struct {
	Name    string    `yaml:"name"`
	Active  *bool     `yaml:"active"`
	Hours   string    `yaml:"hours"`
	TimeOff []TimeOff `yaml:"time_off"`
}

type TimeOff struct {
	StartDate string              `yaml:"start_date"`
	EndDate   string              `yaml:"end_date"`
	StartTime *availability.Clock `yaml:"start_time"`
	EndTime   *availability.Clock `yaml:"end_time"`
	Reason    string              `yaml:"reason"`
	Status    string              `yaml:"status"`
}

// Store is what Apply writes through.
type Store interface {
	UpdateProfile(ctx context.Context, p model.Profile) error
	ListStaff(ctx context.Context, salonID string) ([]model.Staff, error)
	CreateService(ctx context.Context, s model.Service) (string, error)
	CreateStaff(ctx context.Context, st model.Staff, hours []model.WorkingHours) (string, error)
	CreateTimeOff(ctx context.Context, salonID string, t model.TimeOff) (string, error)
}

func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and validates a seed document. Unknown keys are rejected.
func Decode(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("seed: %w", err)
	}
	if strings.TrimSpace(f.SalonID) == "" {
		return File{}, fmt.Errorf("seed: salon_id is required")
	}
	if problems := f.Profile().Validate(); len(problems) > 0 {
		return File{}, fmt.Errorf("seed: %s", strings.Join(problems, "; "))
	}
	for _, s := range f.Services {
		if strings.TrimSpace(s.Name) == "" || s.DurationMinutes <= 0 {
			return File{}, fmt.Errorf("seed: service %q needs a name and a positive duration", s.Name)
		}
	}
	for _, st := range f.Staff {
		if strings.TrimSpace(st.Name) == "" {
			return File{}, fmt.Errorf("seed: staff without a name")
		}
		if _, issues := availability.ParseScheduleReport(st.Hours); st.Hours != "" && len(issues) > 0 {
			return File{}, fmt.Errorf("seed: hours of %s: %w", st.Name, issues[0])
		}
		for _, t := range st.TimeOff {
			if _, err := t.model(); err != nil {
				return File{}, fmt.Errorf("seed: time-off of %s: %w", st.Name, err)
			}
		}
	}
	return f, nil
}

func (f File) Profile() model.Profile {
	p := model.DefaultProfile(strings.TrimSpace(f.SalonID))
	p.Name = f.Name
	p.OpeningHours = strings.TrimSpace(f.OpeningHours)
	p.MinNoticeHours = f.MinNoticeHours
	p.AutoApprove = f.AutoApprove
	if f.Timezone != "" {
		p.Timezone = f.Timezone
	}
	if f.SlotIntervalMinutes != 0 {
		p.SlotIntervalMinutes = f.SlotIntervalMinutes
	}
	if f.MaxDaysAhead != nil {
		p.MaxDaysAhead = *f.MaxDaysAhead
	}
	return p
}

func (t TimeOff) model() (model.TimeOff, error) {
	start, err := time.Parse(dateLayout, t.StartDate)
	if err != nil {
		return model.TimeOff{}, err
	}
	end := start
	if t.EndDate != "" {
		if end, err = time.Parse(dateLayout, t.EndDate); err != nil {
			return model.TimeOff{}, err
		}
	}
	out := model.TimeOff{
		StartDate: start,
		EndDate:   end,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Reason:    t.Reason,
		Status:    availability.TimeOffApproved,
	}
	if t.Status != "" {
		out.Status = t.Status
	}
	if out.Status != availability.TimeOffApproved && out.Status != availability.TimeOffPending {
		return model.TimeOff{}, fmt.Errorf("status %q", out.Status)
	}
	return out, out.Validate()
}

// Apply writes the profile, then services, staff and time-off. A salon that already has staff
// only gets its profile refreshed, so restarting with the same file does not duplicate rows.
func Apply(ctx context.Context, store Store, f File) error {
	p := f.Profile()
	if err := store.UpdateProfile(ctx, p); err != nil {
		return fmt.Errorf("seed profile: %w", err)
	}
	existing, err := store.ListStaff(ctx, p.SalonID)
	if err != nil {
		return fmt.Errorf("seed staff: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, s := range f.Services {
		if _, err := store.CreateService(ctx, model.Service{
			SalonID:         p.SalonID,
			Name:            s.Name,
			DurationMinutes: s.DurationMinutes,
			Price:           fmt.Sprintf("%.2f", s.Price),
			Description:     s.Description,
			IsActive:        true,
		}); err != nil {
			return fmt.Errorf("seed service %s: %w", s.Name, err)
		}
	}

	salonWeek := p.Schedule()
	for i, st := range f.Staff {
		week := salonWeek
		if st.Hours != "" {
			week = availability.ParseSchedule(st.Hours)
		}
		member := model.Staff{SalonID: p.SalonID, Name: st.Name, IsActive: true, SortOrder: i}
		if st.Active != nil {
			member.IsActive = *st.Active
		}
		id, err := store.CreateStaff(ctx, member, model.HoursFromSchedule("", week))
		if err != nil {
			return fmt.Errorf("seed staff %s: %w", st.Name, err)
		}
		for _, t := range st.TimeOff {
			off, err := t.model()
			if err != nil {
				return err
			}
			off.StaffID = id
			if _, err := store.CreateTimeOff(ctx, p.SalonID, off); err != nil {
				return fmt.Errorf("seed time-off for %s: %w", st.Name, err)
			}
		}
	}
	return nil
}
