package traces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func setupPropagation(t *testing.T) {
	t.Helper()
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	otel.SetTextMapPropagator(propagation.TraceContext{})
}

func TestCaptureWithoutSpan(t *testing.T) {
	setupPropagation(t)

	traceparent, tracestate := Capture(context.Background())
	assert.Empty(t, traceparent)
	assert.Empty(t, tracestate)
}

func TestCaptureResumeRoundTrip(t *testing.T) {
	setupPropagation(t)

	tracer := otel.Tracer("traces.test")
	ctx, span := tracer.Start(context.Background(), "enqueue")
	defer span.End()

	traceparent, tracestate := Capture(ctx)
	require.NotEmpty(t, traceparent)
	_ = tracestate

	resumed := Resume(context.Background(), traceparent, tracestate)
	resumedSpan := trace.SpanContextFromContext(resumed)
	require.True(t, resumedSpan.IsValid())
	assert.Equal(t, span.SpanContext().TraceID(), resumedSpan.TraceID())
}

func TestResumeWithEmptyTraceparent(t *testing.T) {
	setupPropagation(t)

	ctx := context.Background()
	resumed := Resume(ctx, "", "")
	assert.Equal(t, ctx, resumed)
	assert.False(t, trace.SpanContextFromContext(resumed).IsValid())
}
