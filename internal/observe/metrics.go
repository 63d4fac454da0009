// Package observe carries the daemon's telemetry: OpenTelemetry metrics and
// traces, the trace-aware logger, and the HTTP middleware tying them to the
// control API.
//
// [Init] installs the global providers once in main; metrics reach the
// /metrics endpoint through a Prometheus bridge. Instruments live on
// [Metrics], with [DefaultMetrics] for production wiring. Tests build their
// own via [NewMetrics] over a manual reader instead of sharing globals.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxtype metrics.
const meterName = "github.com/MrWong99/voxtype"

// Metrics holds the daemon's metric instruments. The underlying OTel types
// are safe for concurrent use.
type Metrics struct {
	// --- Stage latencies ---

	// STTDuration tracks the time from capture stop to the final transcript.
	STTDuration metric.Float64Histogram

	// RefineDuration tracks the AI refinement round trip.
	RefineDuration metric.Float64Histogram

	// PasteDuration tracks the clipboard insertion sequence.
	PasteDuration metric.Float64Histogram

	// SessionDuration tracks a whole dictation session, from the start
	// hotkey until text is delivered or the session is discarded.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts vendor round trips, attributed by provider,
	// kind, and status. Incremented where the request is actually made, so
	// a session with AI refinement disabled adds no chat request.
	ProviderRequests metric.Int64Counter

	// Sessions counts completed dictation sessions. Use with attribute:
	//   attribute.String("outcome", ...): "pasted", "discarded", "empty", "failed"
	Sessions metric.Int64Counter

	// VoiceCommands counts recognised spoken control phrases. Use with attribute:
	//   attribute.String("action", ...)
	VoiceCommands metric.Int64Counter

	// RefineFallbacks counts refinements that fell back to the cleaned raw
	// transcript. Use with attribute:
	//   attribute.String("reason", ...): "timeout", "error", "validation"
	RefineFallbacks metric.Int64Counter

	// STTReconnects counts re-established transcription streams.
	STTReconnects metric.Int64Counter

	// ProviderErrors counts failed vendor round trips by provider and kind.
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// RecordingActive tracks live dictation sessions. In normal operation
	// this is 0 or 1; the controller enforces a single active session.
	RecordingActive metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control API request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bounds in seconds. Dictation turns live in
// the 0.1s to 5s range; the outer buckets catch pathological provider
// stalls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// instrumentSet creates instruments against one meter and remembers the
// first creation error, letting [NewMetrics] read as a flat list instead of
// a ladder of error checks.
type instrumentSet struct {
	meter metric.Meter
	err   error
}

// seconds returns a histogram in seconds. Without explicit buckets the SDK
// defaults apply.
func (is *instrumentSet) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := is.meter.Float64Histogram(name, opts...)
	if err != nil && is.err == nil {
		is.err = err
	}
	return h
}

func (is *instrumentSet) count(name, desc string) metric.Int64Counter {
	c, err := is.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && is.err == nil {
		is.err = err
	}
	return c
}

func (is *instrumentSet) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := is.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil && is.err == nil {
		is.err = err
	}
	return g
}

// NewMetrics creates every instrument on a meter from mp and returns the
// populated [Metrics]. The first instrument creation failure aborts the
// whole set.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	is := instrumentSet{meter: mp.Meter(meterName)}
	met := &Metrics{
		STTDuration:     is.seconds("voxtype.stt.duration", "Latency from capture stop to the final transcript.", latencyBuckets...),
		RefineDuration:  is.seconds("voxtype.refine.duration", "Latency of the AI refinement round trip.", latencyBuckets...),
		PasteDuration:   is.seconds("voxtype.paste.duration", "Duration of the clipboard insertion sequence.", latencyBuckets...),
		SessionDuration: is.seconds("voxtype.session.duration", "Dictation session length from start to delivery.", latencyBuckets...),

		ProviderRequests: is.count("voxtype.provider.requests", "Total provider API requests by provider, kind, and status."),
		Sessions:         is.count("voxtype.sessions", "Total completed dictation sessions by outcome."),
		VoiceCommands:    is.count("voxtype.voice_commands", "Total recognised spoken control phrases by action."),
		RefineFallbacks:  is.count("voxtype.refine.fallbacks", "Total refinements that fell back to the cleaned transcript, by reason."),
		STTReconnects:    is.count("voxtype.stt.reconnects", "Total re-established transcription streams."),
		ProviderErrors:   is.count("voxtype.provider.errors", "Total provider errors by provider and kind."),

		RecordingActive: is.gauge("voxtype.recording_active", "Number of live dictation sessions."),

		HTTPRequestDuration: is.seconds("voxtype.http.request.duration", "HTTP request latency by method and path."),
	}
	if is.err != nil {
		return nil, is.err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared [Metrics] built on the global meter
// provider, creating it on first call. Panics if instrument creation fails,
// which the global provider does not do.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest counts one vendor round trip. status is "ok" or
// "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordSession counts a finished dictation session under its outcome.
func (m *Metrics) RecordSession(ctx context.Context, outcome string) {
	m.Sessions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordVoiceCommand counts a recognised spoken control phrase.
func (m *Metrics) RecordVoiceCommand(ctx context.Context, action string) {
	m.VoiceCommands.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordRefineFallback counts a refinement that fell back to the cleaned
// transcript.
func (m *Metrics) RecordRefineFallback(ctx context.Context, reason string) {
	m.RefineFallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordProviderError counts one failed vendor round trip.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
