package observe

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer swaps in a tracer provider backed by an in-memory exporter
// and restores the previous global when the test ends.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

// captureLogs redirects the default logger into a buffer for the duration of
// the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID_EmptyOutsideSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty without a span", got)
	}
}

func TestCorrelationID_IsTheTraceID(t *testing.T) {
	installTracer(t)

	ctx, span := StartSpan(context.Background(), "refine")
	defer span.End()

	cid := CorrelationID(ctx)
	if raw, err := hex.DecodeString(cid); err != nil || len(raw) != 16 {
		t.Errorf("CorrelationID = %q, want a 128-bit hex trace ID", cid)
	}
}

func TestStartSpan_RecordsThroughGlobalProvider(t *testing.T) {
	exporter := installTracer(t)

	_, span := StartSpan(context.Background(), "session.stop")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "session.stop" {
		t.Errorf("span name = %q, want session.stop", spans[0].Name)
	}
	if spans[0].InstrumentationScope.Name != scopeName {
		t.Errorf("scope = %q, want %q", spans[0].InstrumentationScope.Name, scopeName)
	}
}

func TestLogger_AttachesSpanIdentity(t *testing.T) {
	installTracer(t)
	buf := captureLogs(t)

	ctx, span := StartSpan(context.Background(), "deliver")
	defer span.End()

	Logger(ctx).Info("refining")

	line := buf.String()
	if !strings.Contains(line, "trace_id="+CorrelationID(ctx)) {
		t.Errorf("log line missing the trace ID: %s", line)
	}
	if !strings.Contains(line, "span_id=") {
		t.Errorf("log line missing the span ID: %s", line)
	}
}

func TestLogger_PlainOutsideSpan(t *testing.T) {
	buf := captureLogs(t)

	Logger(context.Background()).Info("starting up")

	if line := buf.String(); strings.Contains(line, "trace_id") {
		t.Errorf("log line carries a trace ID without a span: %s", line)
	}
}
