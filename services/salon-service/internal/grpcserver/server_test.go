package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/salonapi"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeSource struct {
	profile  model.Profile
	services map[string]model.Service
	staff    []model.Staff
	hours    map[string][]model.WorkingHours
	timeOff  []model.TimeOff
	filter   storage.TimeOffFilter
}

func (f *fakeSource) GetOrCreateProfile(context.Context, string) (model.Profile, error) {
	return f.profile, nil
}

func (f *fakeSource) GetService(_ context.Context, _, serviceID string) (model.Service, error) {
	s, ok := f.services[serviceID]
	if !ok {
		return model.Service{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeSource) ListStaff(context.Context, string) ([]model.Staff, error) {
	return f.staff, nil
}

func (f *fakeSource) ListSalonWorkingHours(context.Context, string) (map[string][]model.WorkingHours, error) {
	return f.hours, nil
}

func (f *fakeSource) ListTimeOff(_ context.Context, _ string, filter storage.TimeOffFilter) ([]model.TimeOff, error) {
	f.filter = filter
	return f.timeOff, nil
}

func clock(t *testing.T, s string) availability.Clock {
	t.Helper()
	c, err := availability.ParseClock(s)
	require.NoError(t, err)
	return c
}

func dial(t *testing.T, src Source) *salonapi.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpcx.NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	Register(s, src)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpcx.NewClient("passthrough:///bufnet", grpcx.ClientOptions{},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return salonapi.NewClient(conn)
}

func fixture(t *testing.T) *fakeSource {
	brk, brkEnd := clock(t, "12:00"), clock(t, "13:00")
	return &fakeSource{
		profile: model.Profile{
			SalonID:             "salon-1",
			Name:                "Studio",
			Timezone:            "America/Sao_Paulo",
			OpeningHours:        "Segunda-feira: 09:00 - 18:00",
			SlotIntervalMinutes: 30,
			MinNoticeHours:      2,
			MaxDaysAhead:        30,
			AutoApprove:         true,
		},
		services: map[string]model.Service{
			"svc-1": {ID: "svc-1", Name: "Corte", DurationMinutes: 45, IsActive: true},
			"svc-2": {ID: "svc-2", Name: "Antigo", DurationMinutes: 30},
		},
		staff: []model.Staff{
			{ID: "b", Name: "Bia", IsActive: true, SortOrder: 0},
			{ID: "a", Name: "Ana", IsActive: false, SortOrder: 1},
		},
		hours: map[string][]model.WorkingHours{
			"b": {
				{StaffID: "b", Weekday: time.Monday, IsWorking: true, Start: clock(t, "09:00"), End: clock(t, "18:00"), BreakStart: &brk, BreakEnd: &brkEnd},
				{StaffID: "b", Weekday: time.Tuesday, IsWorking: false},
			},
		},
	}
}

func TestGetBookingConfig(t *testing.T) {
	client := dial(t, fixture(t))

	cfg, err := client.GetBookingConfig(context.Background(), &salonapi.GetBookingConfigRequest{SalonID: "salon-1", ServiceID: "svc-1"})
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone)
	assert.Equal(t, 45, cfg.Service.DurationMinutes)
	assert.Equal(t, availability.Policy{MinNoticeHours: 2, MaxDaysAhead: 30}, cfg.Policy)
	assert.True(t, cfg.AutoApprove)

	require.Len(t, cfg.Staff, 2)
	assert.Equal(t, "b", cfg.Staff[0].ID, "roster order is kept")
	assert.False(t, cfg.Staff[1].Active)
	assert.Empty(t, cfg.Staff[1].Hours)
	require.Len(t, cfg.Staff[0].Hours, 1)
	monday := cfg.Staff[0].Hours[time.Monday]
	brk, ok := monday.Break()
	require.True(t, ok)
	assert.Equal(t, clock(t, "12:00"), brk.Start)
}

func TestGetBookingConfig_Errors(t *testing.T) {
	client := dial(t, fixture(t))

	_, err := client.GetBookingConfig(context.Background(), &salonapi.GetBookingConfigRequest{SalonID: "salon-1", ServiceID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetBookingConfig(context.Background(), &salonapi.GetBookingConfigRequest{SalonID: "salon-1", ServiceID: "svc-2"})
	assert.Equal(t, codes.NotFound, status.Code(err), "inactive services are not bookable")

	_, err = client.GetBookingConfig(context.Background(), &salonapi.GetBookingConfigRequest{ServiceID: "svc-1"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListTimeOff_ApprovedOnly(t *testing.T) {
	src := fixture(t)
	ten := clock(t, "10:00")
	src.timeOff = []model.TimeOff{{
		ID:        "to-1",
		StaffID:   "b",
		StartDate: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		StartTime: &ten,
		EndTime:   nil,
		Status:    availability.TimeOffApproved,
	}}
	client := dial(t, src)

	resp, err := client.ListTimeOff(context.Background(), &salonapi.ListTimeOffRequest{SalonID: "salon-1", From: "2026-10-19", To: "2026-10-19"})
	require.NoError(t, err)
	require.Len(t, resp.TimeOff, 1)
	assert.Equal(t, "b", resp.TimeOff[0].MemberID)
	require.NotNil(t, resp.TimeOff[0].StartTime)
	assert.Equal(t, ten, *resp.TimeOff[0].StartTime)
	assert.Equal(t, availability.TimeOffApproved, src.filter.Status)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), src.filter.From)

	_, err = client.ListTimeOff(context.Background(), &salonapi.ListTimeOffRequest{SalonID: "salon-1", From: "2026-10-20", To: "2026-10-19"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = client.ListTimeOff(context.Background(), &salonapi.ListTimeOffRequest{SalonID: "salon-1", From: "today", To: "2026-10-19"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
