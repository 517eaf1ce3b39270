package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/CadenzaLabs/NarrateKit/engine/logger"
)

func TestExtractTraceContext_W3C(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.Header.Set("tracestate", "congo=t61rcWkgMzE")

	tc := ExtractTraceContext(r)

	if tc.Traceparent != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Errorf("Traceparent = %q", tc.Traceparent)
	}
	if tc.Tracestate != "congo=t61rcWkgMzE" {
		t.Errorf("Tracestate = %q", tc.Tracestate)
	}
	if tc.XRayTraceID != "" {
		t.Errorf("XRayTraceID = %q, want empty", tc.XRayTraceID)
	}
	if tc.IsEmpty() {
		t.Error("expected non-empty TraceContext")
	}
}

func TestExtractTraceContext_XRay(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set("X-Amzn-Trace-Id", "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1")

	tc := ExtractTraceContext(r)

	if tc.XRayTraceID != "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1" {
		t.Errorf("XRayTraceID = %q", tc.XRayTraceID)
	}
	if tc.Traceparent != "" {
		t.Errorf("Traceparent = %q, want empty", tc.Traceparent)
	}
	if tc.IsEmpty() {
		t.Error("expected non-empty TraceContext")
	}
}

func TestExtractTraceContext_Both(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.Header.Set("tracestate", "congo=t61rcWkgMzE")
	r.Header.Set("X-Amzn-Trace-Id", "Root=1-5759e988-bd862e3fe1be46a994272793")

	tc := ExtractTraceContext(r)

	if tc.Traceparent == "" {
		t.Error("expected Traceparent")
	}
	if tc.Tracestate == "" {
		t.Error("expected Tracestate")
	}
	if tc.XRayTraceID == "" {
		t.Error("expected XRayTraceID")
	}
}

func TestExtractTraceContext_None(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	tc := ExtractTraceContext(r)

	if !tc.IsEmpty() {
		t.Errorf("expected empty TraceContext, got %+v", tc)
	}
}

func TestExtractTraceContext_InvalidTraceparent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set("traceparent", "not-a-valid-traceparent")

	tc := ExtractTraceContext(r)

	if tc.Traceparent != "" {
		t.Errorf("Traceparent = %q, want empty for invalid input", tc.Traceparent)
	}
}

func TestContextRoundTrip(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.Header.Set("tracestate", "congo=t61rcWkgMzE")
	r.Header.Set("X-Amzn-Trace-Id", "Root=1-5759e988-bd862e3fe1be46a994272793")

	// Extract from inbound request.
	tc := ExtractTraceContext(r)

	// Store in context.
	ctx := ContextWithTrace(context.Background(), tc)

	// Inject into outbound request.
	outReq := httptest.NewRequest(http.MethodPost, "/synthesize", http.NoBody)
	InjectTraceHeaders(ctx, outReq)

	if got := outReq.Header.Get("traceparent"); got != tc.Traceparent {
		t.Errorf("traceparent = %q, want %q", got, tc.Traceparent)
	}
	if got := outReq.Header.Get("tracestate"); got != tc.Tracestate {
		t.Errorf("tracestate = %q, want %q", got, tc.Tracestate)
	}
	if got := outReq.Header.Get("X-Amzn-Trace-Id"); got != tc.XRayTraceID {
		t.Errorf("X-Amzn-Trace-Id = %q, want %q", got, tc.XRayTraceID)
	}
}

func TestTraceMiddleware(t *testing.T) {
	wantTP := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	var gotTC TraceContext
	inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotTC = TraceContextFromContext(r.Context())
	})

	handler := TraceMiddleware(inner)
	r := httptest.NewRequest(http.MethodPost, "/runs", http.NoBody)
	r.Header.Set("traceparent", wantTP)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if gotTC.Traceparent != wantTP {
		t.Errorf("Traceparent = %q, want %q", gotTC.Traceparent, wantTP)
	}
}

func TestTraceMiddleware_NoHeaders(t *testing.T) {
	var gotTC TraceContext
	inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotTC = TraceContextFromContext(r.Context())
	})

	handler := TraceMiddleware(inner)
	r := httptest.NewRequest(http.MethodPost, "/runs", http.NoBody)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !gotTC.IsEmpty() {
		t.Errorf("expected empty TraceContext, got %+v", gotTC)
	}
}

func TestInjectTraceHeaders_NoOp(t *testing.T) {
	ctx := context.Background() // no trace context stored

	outReq := httptest.NewRequest(http.MethodPost, "/synthesize", http.NoBody)
	InjectTraceHeaders(ctx, outReq)

	if got := outReq.Header.Get("traceparent"); got != "" {
		t.Errorf("traceparent = %q, want empty", got)
	}
	if got := outReq.Header.Get("tracestate"); got != "" {
		t.Errorf("tracestate = %q, want empty", got)
	}
	if got := outReq.Header.Get("X-Amzn-Trace-Id"); got != "" {
		t.Errorf("X-Amzn-Trace-Id = %q, want empty", got)
	}
}

// spanContext builds a valid sampled span context for the log helper tests.
func spanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("trace ID: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("span ID: %v", err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestSpanLogAttrs(t *testing.T) {
	if got := SpanLogAttrs(context.Background()); got != nil {
		t.Errorf("expected nil attrs without a span, got %v", got)
	}

	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(t))

	attrs := SpanLogAttrs(ctx)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attrs, got %d", len(attrs))
	}
	if attrs[0].Key != "trace_id" || attrs[0].Value.String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id attr = %v", attrs[0])
	}
	if attrs[1].Key != "span_id" || attrs[1].Value.String() != "00f067aa0ba902b7" {
		t.Errorf("span_id attr = %v", attrs[1])
	}
}

func TestWithTraceCorrelation(t *testing.T) {
	base := context.Background()
	if got := WithTraceCorrelation(base); got != base {
		t.Error("expected context unchanged without a span")
	}

	ctx := WithTraceCorrelation(trace.ContextWithSpanContext(base, spanContext(t)))

	fields := logger.ExtractLoggingFields(ctx)
	if fields.CorrelationID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("CorrelationID = %q, want trace ID", fields.CorrelationID)
	}
}
