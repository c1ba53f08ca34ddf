package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context of a span, flattened for storage next to an outbox row
// so the publisher can continue the trace that wrote it.
type TraceContext struct {
	Parent string
	State  string
}

// CaptureTraceContext returns the active span's trace context; both fields are empty outside a
// sampled span.
func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

// Context returns parent carrying tc as its remote span context.
func (tc TraceContext) Context(parent context.Context) context.Context {
	if tc.Parent == "" {
		return parent
	}
	carrier := propagation.MapCarrier{"traceparent": tc.Parent}
	if tc.State != "" {
		carrier["tracestate"] = tc.State
	}
	return otel.GetTextMapPropagator().Extract(parent, carrier)
}
