// Package salonapi is the gRPC contract of salon.v1.SalonConfig. Messages are plain Go structs
// carried by the grpcx JSON codec, so clients must call with grpcx.CallJSON.
package salonapi

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"google.golang.org/grpc"
)

const (
	ServiceName = "salon.v1.SalonConfig"

	getBookingConfigMethod = "/" + ServiceName + "/GetBookingConfig"
	listTimeOffMethod      = "/" + ServiceName + "/ListTimeOff"

	// DateLayout is the wire format of calendar dates.
	DateLayout = "2006-01-02"
)

type GetBookingConfigRequest struct {
	SalonID   string `json:"salon_id"`
	ServiceID string `json:"service_id"`
}

// BookingConfig is everything the booking side needs to compute availability for one service.
// Staff is ordered by roster position.
type BookingConfig struct {
	SalonID             string                `json:"salon_id"`
	Name                string                `json:"name"`
	Timezone            string                `json:"timezone"`
	OpeningHours        string                `json:"opening_hours"`
	SlotIntervalMinutes int                   `json:"slot_interval_minutes"`
	Policy              availability.Policy   `json:"policy"`
	AutoApprove         bool                  `json:"auto_approve"`
	Service             Service               `json:"service"`
	Staff               []availability.Member `json:"staff"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Location resolves the salon timezone, falling back to UTC for an empty name.
func (c BookingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

type ListTimeOffRequest struct {
	SalonID string `json:"salon_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type ListTimeOffResponse struct {
	TimeOff []availability.TimeOff `json:"time_off"`
}

type SalonConfigServer interface {
	GetBookingConfig(context.Context, *GetBookingConfigRequest) (*BookingConfig, error)
	ListTimeOff(context.Context, *ListTimeOffRequest) (*ListTimeOffResponse, error)
}

func RegisterSalonConfigServer(s grpc.ServiceRegistrar, srv SalonConfigServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SalonConfigServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetBookingConfig",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(GetBookingConfigRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				call := func(ctx context.Context, req any) (any, error) {
					return srv.(SalonConfigServer).GetBookingConfig(ctx, req.(*GetBookingConfigRequest))
				}
				if interceptor == nil {
					return call(ctx, in)
				}
				return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: getBookingConfigMethod}, call)
			},
		},
		{
			MethodName: "ListTimeOff",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(ListTimeOffRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				call := func(ctx context.Context, req any) (any, error) {
					return srv.(SalonConfigServer).ListTimeOff(ctx, req.(*ListTimeOffRequest))
				}
				if interceptor == nil {
					return call(ctx, in)
				}
				return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: listTimeOffMethod}, call)
			},
		},
	},
	Metadata: "salon/v1/salon_config",
}

// Client is the SalonConfig client stub.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetBookingConfig(ctx context.Context, in *GetBookingConfigRequest, opts ...grpc.CallOption) (*BookingConfig, error) {
	out := new(BookingConfig)
	if err := c.cc.Invoke(ctx, getBookingConfigMethod, in, out, append([]grpc.CallOption{grpcx.CallJSON()}, opts...)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListTimeOff(ctx context.Context, in *ListTimeOffRequest, opts ...grpc.CallOption) (*ListTimeOffResponse, error) {
	out := new(ListTimeOffResponse)
	if err := c.cc.Invoke(ctx, listTimeOffMethod, in, out, append([]grpc.CallOption{grpcx.CallJSON()}, opts...)...); err != nil {
		return nil, err
	}
	return out, nil
}
