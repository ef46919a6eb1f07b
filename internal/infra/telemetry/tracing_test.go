package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSDKProviderHonoursSamplingRate(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()

	sampled := newSDKProvider(resource.Empty(), sdktrace.WithSpanProcessor(recorder), 1)
	_, span := sampled.Tracer("test").Start(context.Background(), "session.sign_in")
	span.End()

	if got := len(recorder.Ended()); got != 1 {
		t.Fatalf("expected 1 recorded span, got %d", got)
	}

	dropped := tracetest.NewSpanRecorder()
	never := newSDKProvider(resource.Empty(), sdktrace.WithSpanProcessor(dropped), 0)
	_, span = never.Tracer("test").Start(context.Background(), "session.sign_in")
	span.End()

	if got := len(dropped.Ended()); got != 0 {
		t.Fatalf("expected no spans at rate 0, got %d", got)
	}
}
