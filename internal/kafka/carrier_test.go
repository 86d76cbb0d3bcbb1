package kafka_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrovskifilip/agri-management-system/internal/kafka"
)

func TestHeaderCarrier_SetReplacesExisting(t *testing.T) {
	c := kafka.HeaderCarrier{}
	c.Set(kafka.EventKindHeader, "completed")
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "completed", c.Get(kafka.EventKindHeader))
	assert.Len(t, c, 2)
	assert.ElementsMatch(t, []string{kafka.EventKindHeader, "traceparent"}, c.Keys())
	assert.Empty(t, c.Get("missing"))
}

func TestHeaderCarrier_TraceContextRoundTrip(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prop := propagation.TraceContext{}
	c := kafka.HeaderCarrier{}
	prop.Inject(ctx, &c)

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), &c))
	assert.Equal(t, traceID, got.TraceID())
	assert.True(t, got.IsRemote())
}
