// Package observe provides application-wide observability primitives for
// Ocean Wave: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Ocean Wave metrics.
const meterName = "github.com/MrWong99/oceanwave"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Vision sessions ---

	// VisionSessions counts finished session attempts. Use with attribute:
	//   attribute.String("outcome", ...): closed, acquisition, connection, transport
	VisionSessions metric.Int64Counter

	// ActiveSessions tracks the number of open live sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// ConnectDuration tracks how long the live provider took to accept a session.
	ConnectDuration metric.Float64Histogram

	// MediaSent counts payloads written to the live session. Use with
	// attribute.String("kind", "audio"|"image").
	MediaSent metric.Int64Counter

	// MediaDropped counts payloads that never reached the session. Use with
	// attribute.String("kind", ...), attribute.String("reason", ...).
	MediaDropped metric.Int64Counter

	// PlaybackChunks counts model audio chunks handed to the scheduler.
	PlaybackChunks metric.Int64Counter

	// PlaybackAhead tracks how far ahead of the audio clock each chunk was
	// queued, in seconds. Zero means the chunk arrived after an underrun.
	PlaybackAhead metric.Float64Histogram

	// DecodeFailures counts inbound audio payloads that could not be decoded.
	DecodeFailures metric.Int64Counter

	// --- Assist (request/response) providers ---

	// AssistDuration tracks assist request latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("op", ...)
	AssistDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Board ---

	// Utterances counts messages spoken from the board. Use with attribute:
	//   attribute.String("tone", ...)
	Utterances metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network round trips to model providers.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// aheadBuckets covers how much audio sits queued in front of the clock.
var aheadBuckets = []float64{
	0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Vision.
	if met.VisionSessions, err = m.Int64Counter("oceanwave.vision.sessions",
		metric.WithDescription("Vision sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("oceanwave.vision.active_sessions",
		metric.WithDescription("Number of open live sessions."),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("oceanwave.vision.connect.duration",
		metric.WithDescription("Latency of opening a live session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MediaSent, err = m.Int64Counter("oceanwave.vision.media.sent",
		metric.WithDescription("Media payloads sent to the live session by kind."),
	); err != nil {
		return nil, err
	}
	if met.MediaDropped, err = m.Int64Counter("oceanwave.vision.media.dropped",
		metric.WithDescription("Media payloads dropped by kind and reason."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackChunks, err = m.Int64Counter("oceanwave.vision.playback.chunks",
		metric.WithDescription("Model audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackAhead, err = m.Float64Histogram("oceanwave.vision.playback.ahead",
		metric.WithDescription("Queued audio in front of the playback clock when a chunk is scheduled."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(aheadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("oceanwave.vision.decode_failures",
		metric.WithDescription("Inbound audio payloads that failed to decode."),
	); err != nil {
		return nil, err
	}

	// Assist.
	if met.AssistDuration, err = m.Float64Histogram("oceanwave.assist.duration",
		metric.WithDescription("Latency of assist requests by provider and operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("oceanwave.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("oceanwave.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Board.
	if met.Utterances, err = m.Int64Counter("oceanwave.board.utterances",
		metric.WithDescription("Messages spoken from the board by tone."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("oceanwave.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSessionOutcome counts a finished vision session.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, outcome string) {
	m.VisionSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordMediaSent counts a payload written to the live session.
func (m *Metrics) RecordMediaSent(ctx context.Context, kind string) {
	m.MediaSent.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordMediaDropped counts a payload that was not sent.
func (m *Metrics) RecordMediaDropped(ctx context.Context, kind, reason string) {
	m.MediaDropped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("reason", reason),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordUtterance counts a message spoken from the board.
func (m *Metrics) RecordUtterance(ctx context.Context, tone string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("tone", tone)))
}
