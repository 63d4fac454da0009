package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// telemetry bundles the fakes a middleware test needs: metrics with a
// manual reader and the in-memory span exporter installed as the global
// tracer.
type telemetry struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

func setupTelemetry(t *testing.T) telemetry {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	return telemetry{metrics: m, reader: reader, spans: installTracer(t)}
}

// serve pushes one request through the instrumented handler chain.
func (tel telemetry) serve(t *testing.T, method, target string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	Middleware(tel.metrics)(handler).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_TagsResponseWithTraceID(t *testing.T) {
	tel := setupTelemetry(t)

	var inHandler string
	rec := tel.serve(t, "POST", "/toggle", func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	if inHandler == "" {
		t.Fatal("handler context carries no trace")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inHandler {
		t.Errorf("X-Correlation-ID = %q, want the handler's trace ID %q", got, inHandler)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("response missing the injected traceparent header")
	}
}

func TestMiddleware_NamesSpanAfterRequest(t *testing.T) {
	tel := setupTelemetry(t)

	tel.serve(t, "GET", "/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	spans := tel.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "GET /status" {
		t.Errorf("span name = %q, want GET /status", spans[0].Name)
	}
}

func TestMiddleware_RecordsStatusOnSpan(t *testing.T) {
	tel := setupTelemetry(t)

	rec := tel.serve(t, "GET", "/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 passed through", rec.Code)
	}

	spans := tel.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	for _, attr := range spans[0].Attributes {
		if string(attr.Key) == "http.response.status_code" {
			if got := attr.Value.AsInt64(); got != http.StatusNotFound {
				t.Errorf("status attribute = %d, want 404", got)
			}
			return
		}
	}
	t.Error("span missing the http.response.status_code attribute")
}

func TestMiddleware_TimesRequests(t *testing.T) {
	tel := setupTelemetry(t)

	tel.serve(t, "GET", "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var rm metricdata.ResourceMetrics
	if err := tel.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(t, rm, "voxtype.http.request.duration")
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("metric data = %T with no points, want a histogram sample", met.Data)
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	var method, path string
	for _, kv := range dp.Attributes.ToSlice() {
		switch string(kv.Key) {
		case "method":
			method = kv.Value.AsString()
		case "path":
			path = kv.Value.AsString()
		}
	}
	if method != "GET" || path != "/healthz" {
		t.Errorf("attributes = (%q, %q), want (GET, /healthz)", method, path)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	tel := setupTelemetry(t)
	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inHandler string
	handler := Middleware(tel.metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if inHandler != upstream {
		t.Errorf("handler trace ID = %q, want the upstream one %q", inHandler, upstream)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("X-Correlation-ID = %q, want %q", got, upstream)
	}
}
