package grpcserver

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/salonapi"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Source is the read side of the salon store the booking contract is served from.
type Source interface {
	GetOrCreateProfile(ctx context.Context, salonID string) (model.Profile, error)
	GetService(ctx context.Context, salonID, serviceID string) (model.Service, error)
	ListStaff(ctx context.Context, salonID string) ([]model.Staff, error)
	ListSalonWorkingHours(ctx context.Context, salonID string) (map[string][]model.WorkingHours, error)
	ListTimeOff(ctx context.Context, salonID string, f storage.TimeOffFilter) ([]model.TimeOff, error)
}

type server struct {
	src Source
}

func Register(grpcServer grpc.ServiceRegistrar, src Source) {
	salonapi.RegisterSalonConfigServer(grpcServer, &server{src: src})
}

func (s *server) GetBookingConfig(ctx context.Context, req *salonapi.GetBookingConfigRequest) (*salonapi.BookingConfig, error) {
	salonID := strings.TrimSpace(req.SalonID)
	if salonID == "" || strings.TrimSpace(req.ServiceID) == "" {
		return nil, status.Error(codes.InvalidArgument, "salon_id and service_id are required")
	}

	profile, err := s.src.GetOrCreateProfile(ctx, salonID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load profile: %v", err)
	}
	svc, err := s.src.GetService(ctx, salonID, req.ServiceID)
	if storage.IsNotFound(err) || (err == nil && !svc.IsActive) {
		return nil, status.Errorf(codes.NotFound, "service %s not found", req.ServiceID)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load service: %v", err)
	}
	staff, err := s.src.ListStaff(ctx, salonID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load staff: %v", err)
	}
	hours, err := s.src.ListSalonWorkingHours(ctx, salonID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load working hours: %v", err)
	}

	members := make([]availability.Member, 0, len(staff))
	for _, st := range staff {
		members = append(members, model.Member(st, hours[st.ID]))
	}
	return &salonapi.BookingConfig{
		SalonID:             salonID,
		Name:                profile.Name,
		Timezone:            profile.Timezone,
		OpeningHours:        profile.OpeningHours,
		SlotIntervalMinutes: profile.SlotIntervalMinutes,
		Policy:              profile.Policy(),
		AutoApprove:         profile.AutoApprove,
		Service: salonapi.Service{
			ID:              svc.ID,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
		},
		Staff:     members,
		UpdatedAt: profile.UpdatedAt,
	}, nil
}

// ListTimeOff returns approved time-off overlapping [From, To]; pending and rejected entries
// never block availability.
func (s *server) ListTimeOff(ctx context.Context, req *salonapi.ListTimeOffRequest) (*salonapi.ListTimeOffResponse, error) {
	if strings.TrimSpace(req.SalonID) == "" {
		return nil, status.Error(codes.InvalidArgument, "salon_id is required")
	}
	from, err := time.Parse(salonapi.DateLayout, req.From)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "from: %v", err)
	}
	to, err := time.Parse(salonapi.DateLayout, req.To)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "to: %v", err)
	}
	if to.Before(from) {
		return nil, status.Error(codes.InvalidArgument, "to before from")
	}

	entries, err := s.src.ListTimeOff(ctx, req.SalonID, storage.TimeOffFilter{
		Status: availability.TimeOffApproved,
		From:   from,
		To:     to,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load time-off: %v", err)
	}
	out := &salonapi.ListTimeOffResponse{TimeOff: make([]availability.TimeOff, 0, len(entries))}
	for _, t := range entries {
		out.TimeOff = append(out.TimeOff, t.Availability())
	}
	return out, nil
}
