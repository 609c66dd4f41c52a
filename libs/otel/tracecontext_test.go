package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestTraceContextStrings_RoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	traceparent := "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	tracestate := "vendor=frontdesk"

	ctx := ContextWithTraceContext(context.Background(), traceparent, tracestate)
	gotParent, gotState := TraceContextStrings(ctx)
	if gotParent != traceparent {
		t.Fatalf("traceparent round-trip: got %q, want %q", gotParent, traceparent)
	}
	if gotState != tracestate {
		t.Fatalf("tracestate round-trip: got %q, want %q", gotState, tracestate)
	}
}

// A context without an active trace must yield empty strings, never a panic or
// omitted values, so rows written outside a span still carry non-NULL columns.
func TestTraceContextStrings_NoSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	traceparent, tracestate := TraceContextStrings(context.Background())
	if traceparent != "" || tracestate != "" {
		t.Fatalf("expected empty trace strings, got %q / %q", traceparent, tracestate)
	}
}

func TestContextWithTraceContext_EmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithTraceContext(ctx, "", ""); got != ctx {
		t.Fatalf("empty trace strings should return the original context")
	}
}
