package grpcx

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// retryServiceConfig retries every method on UNAVAILABLE, which covers salon-service restarts
// and rolling deploys. Reads are idempotent; callers bound the total with their own deadline.
const retryServiceConfig = `{
	"loadBalancingConfig": [{"round_robin": {}}],
	"methodConfig": [{
		"name": [{}],
		"retryPolicy": {
			"maxAttempts": 3,
			"initialBackoff": "0.1s",
			"maxBackoff": "1s",
			"backoffMultiplier": 2,
			"retryableStatusCodes": ["UNAVAILABLE"]
		}
	}]
}`

type ClientOptions struct {
	// Nil means plaintext, for in-cluster traffic behind a mesh.
	TransportCredentials grpc.DialOption
}

// NewClient returns a lazily connecting JSON-codec client with tracing, request-id propagation
// and retries. Connection problems surface on the first call or through ReadyCheck.
func NewClient(target string, opts ClientOptions, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(UnaryClientRequestIDInterceptor()),
		grpc.WithDefaultServiceConfig(retryServiceConfig),
		grpc.WithDefaultCallOptions(CallJSON()),
	}
	if opts.TransportCredentials != nil {
		dialOpts = append(dialOpts, opts.TransportCredentials)
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return grpc.NewClient(target, append(dialOpts, extra...)...)
}

// ReadyCheck waits, within ctx, for conn to reach READY, kicking it out of IDLE first.
func ReadyCheck(conn *grpc.ClientConn) func(context.Context) error {
	return func(ctx context.Context) error {
		conn.Connect()
		for {
			state := conn.GetState()
			if state == connectivity.Ready {
				return nil
			}
			if !conn.WaitForStateChange(ctx, state) {
				return fmt.Errorf("%s: %s", conn.Target(), state)
			}
		}
	}
}
