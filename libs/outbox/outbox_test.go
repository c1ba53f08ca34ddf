package outbox

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("salon", "s1", "salon.config.changed.v1", map[string]string{"salon_id": "s1", "reason": "profile"})
	require.NoError(t, err)
	assert.Equal(t, "salon.config.changed.v1", evt.EventType)
	assert.JSONEq(t, `{"salon_id":"s1","reason":"profile"}`, string(evt.Payload))

	_, err = NewEvent("salon", "s1", "bad", func() {})
	assert.Error(t, err)
}

func TestToMessage_CarriesMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	rec := Record{
		EventID:       "7f1c9a51-8a43-4a8e-9b8f-0d1e3c5a7b90",
		AggregateType: "online_booking",
		AggregateID:   "b1",
		EventType:     "booking.online_booking.submitted.v1",
		Payload:       []byte(`{"booking_id":"b1"}`),
		Trace:         otelx.TraceContext{Parent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	}

	msg := toMessage(context.Background(), rec)
	assert.Equal(t, rec.EventType, msg.Topic)
	assert.Equal(t, []byte("b1"), msg.Key)

	meta := kafkax.ExtractEventMeta(msg)
	assert.Equal(t, rec.EventID, meta.EventID)
	assert.Equal(t, rec.EventType, meta.EventType)
	assert.Equal(t, "online_booking", meta.AggregateType)
	assert.Equal(t, "b1", meta.AggregateID)
	assert.Equal(t, rec.Trace.Parent, kafkax.HeaderValue(msg.Headers, "traceparent"))
}
