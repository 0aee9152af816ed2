package observability

import (
	"bytes"
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, NopLogger())
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if tp != nil {
		t.Error("Expected no tracer provider when tracing is disabled")
	}
	if err := ShutdownTracing(context.Background(), nil, NopLogger()); err != nil {
		t.Errorf("ShutdownTracing(nil) error = %v", err)
	}
}

func TestShutdownTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	if err := ShutdownTracing(context.Background(), tp, NopLogger()); err != nil {
		t.Fatalf("ShutdownTracing() error = %v", err)
	}
	if got := len(exporter.GetSpans()); got != 1 {
		t.Errorf("Expected 1 exported span, got %d", got)
	}
}

func TestLoggerWithTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	t.Run("no span", func(t *testing.T) {
		var buf bytes.Buffer
		LoggerWithTrace(context.Background(), NewLogger(InfoLevel, &buf)).Info("plain")

		entry := decodeEntry(t, &buf)
		if _, ok := entry["trace_id"]; ok {
			t.Error("Expected no trace_id without a span")
		}
	})

	t.Run("recording span", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		var buf bytes.Buffer
		logger := NewLogger(InfoLevel, &buf)
		FromContext(WithLogger(ctx, logger)).Info("traced")

		entry := decodeEntry(t, &buf)
		if entry["trace_id"] != span.SpanContext().TraceID().String() {
			t.Errorf("Expected trace_id %s, got %v", span.SpanContext().TraceID(), entry["trace_id"])
		}
		if entry["span_id"] != span.SpanContext().SpanID().String() {
			t.Errorf("Expected span_id %s, got %v", span.SpanContext().SpanID(), entry["span_id"])
		}
	})
}
