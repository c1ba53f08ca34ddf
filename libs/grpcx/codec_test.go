package grpcx

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoReply struct {
	Text      string `json:"text"`
	RequestID string `json:"request_id"`
}

type echoServer interface {
	Echo(context.Context, *echoRequest) (*echoReply, error)
}

type echoImpl struct{}

func (echoImpl) Echo(ctx context.Context, req *echoRequest) (*echoReply, error) {
	if req.Text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	return &echoReply{Text: req.Text, RequestID: httpx.RequestIDFromContext(ctx)}, nil
}

var echoDesc = grpc.ServiceDesc{
	ServiceName: "test.v1.Echo",
	HandlerType: (*echoServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Echo",
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(echoRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/test.v1.Echo/Echo"}
			handler := func(ctx context.Context, req any) (any, error) {
				return srv.(echoServer).Echo(ctx, req.(*echoRequest))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, info, handler)
		},
	}},
}

func startEcho(t *testing.T) (*grpc.ClientConn, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(slog.New(slog.NewJSONHandler(&logs, nil)))
	srv.RegisterService(&echoDesc, echoImpl{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := NewClient("passthrough:///bufnet", ClientOptions{},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, &logs
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	conn, logs := startEcho(t)

	ctx := httpx.ContextWithRequestID(context.Background(), "req-42")
	var header metadata.MD
	out := new(echoReply)
	err := conn.Invoke(ctx, "/test.v1.Echo/Echo", &echoRequest{Text: "olá"}, out, grpc.Header(&header))
	require.NoError(t, err)

	assert.Equal(t, "olá", out.Text)
	assert.Equal(t, "req-42", out.RequestID)
	assert.Equal(t, []string{"req-42"}, header.Get(RequestIDMetadataKey))
	assert.Contains(t, logs.String(), `"method":"/test.v1.Echo/Echo"`)
	assert.Contains(t, logs.String(), `"code":"OK"`)
}

func TestServer_MintsRequestIDAndLogsFailures(t *testing.T) {
	conn, logs := startEcho(t)

	var header metadata.MD
	err := conn.Invoke(context.Background(), "/test.v1.Echo/Echo", &echoRequest{}, new(echoReply), grpc.Header(&header))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	require.Len(t, header.Get(RequestIDMetadataKey), 1)
	assert.True(t, httpx.ValidRequestID(header.Get(RequestIDMetadataKey)[0]))
	assert.Contains(t, logs.String(), `"code":"InvalidArgument"`)
	assert.Contains(t, logs.String(), `"err":"text is required"`)
}

func TestReadyCheck(t *testing.T) {
	conn, _ := startEcho(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, ReadyCheck(conn)(ctx))

	dead, err := NewClient("passthrough:///nowhere", ClientOptions{},
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return nil, net.ErrClosed }),
	)
	require.NoError(t, err)
	defer dead.Close()
	short, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	assert.Error(t, ReadyCheck(dead)(short))
}
