// Package observe provides application-wide observability primitives for
// voxmerge: OpenTelemetry metrics, distributed tracing, structured logging,
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxmerge metrics.
const meterName = "github.com/MrWong99/voxmerge"

// Cycle outcomes recorded on [Metrics.MergeCycles].
const (
	CycleMixed = "mixed"
	CycleIdle  = "idle"
	CycleFault = "fault"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// --- Merge loop ---

	// MergeCycles counts merge cycles. Use with attribute:
	//   attribute.String("status", CycleMixed|CycleIdle|CycleFault)
	MergeCycles metric.Int64Counter

	// CycleDuration tracks wall time spent gathering and mixing one cycle.
	CycleDuration metric.Float64Histogram

	// MissingChunks counts streams that delivered nothing before the cycle
	// deadline and were mixed as silence.
	MissingChunks metric.Int64Counter

	// ClippedSamples counts output samples that were hard-clipped.
	ClippedSamples metric.Int64Counter

	// DroppedChunks counts buffered input chunks discarded without being
	// mixed. Use with attribute:
	//   attribute.String("reason", "deregister"|"stop")
	DroppedChunks metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of registered input streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- Transport ---

	// IngestChunks counts chunks accepted from network producers.
	IngestChunks metric.Int64Counter

	// ListenerDrops counts merged chunks a slow listener did not receive.
	ListenerDrops metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// cycleBuckets defines histogram bucket boundaries (in seconds) around the
// default ≈23 ms merge period.
var cycleBuckets = []float64{
	0.001, 0.005, 0.01, 0.02, 0.025, 0.03, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.MergeCycles, err = m.Int64Counter("voxmerge.merge.cycles",
		metric.WithDescription("Total merge cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CycleDuration, err = m.Float64Histogram("voxmerge.merge.cycle.duration",
		metric.WithDescription("Wall time of one gather-and-mix cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MissingChunks, err = m.Int64Counter("voxmerge.merge.missing_chunks",
		metric.WithDescription("Streams mixed as silence because no chunk arrived in time."),
	); err != nil {
		return nil, err
	}
	if met.ClippedSamples, err = m.Int64Counter("voxmerge.merge.clipped_samples",
		metric.WithDescription("Output samples hard-clipped to the int16 range."),
	); err != nil {
		return nil, err
	}
	if met.DroppedChunks, err = m.Int64Counter("voxmerge.merge.dropped_chunks",
		metric.WithDescription("Buffered input chunks discarded without mixing, by reason."),
	); err != nil {
		return nil, err
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("voxmerge.active_streams",
		metric.WithDescription("Number of registered input streams."),
	); err != nil {
		return nil, err
	}

	if met.IngestChunks, err = m.Int64Counter("voxmerge.ingest.chunks",
		metric.WithDescription("Chunks accepted from network producers."),
	); err != nil {
		return nil, err
	}
	if met.ListenerDrops, err = m.Int64Counter("voxmerge.listener.drops",
		metric.WithDescription("Merged chunks dropped for slow listeners."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxmerge.http.request.duration",
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

// RecordCycle records one merge cycle with its outcome and duration.
func (m *Metrics) RecordCycle(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.MergeCycles.Add(ctx, 1, attrs)
	if status != CycleIdle {
		m.CycleDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordMix records the missing-stream and clipping statistics of one mix.
// Zero values are skipped.
func (m *Metrics) RecordMix(ctx context.Context, missing, clipped int) {
	if missing > 0 {
		m.MissingChunks.Add(ctx, int64(missing))
	}
	if clipped > 0 {
		m.ClippedSamples.Add(ctx, int64(clipped))
	}
}

// RecordDropped records n input chunks discarded for reason.
func (m *Metrics) RecordDropped(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.DroppedChunks.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// ObserveSinkDepth registers an asynchronous gauge reporting the number of
// merged chunks waiting to be consumed. depth is called on every collection.
// Unregister the returned registration when the sink goes away.
func (m *Metrics) ObserveSinkDepth(depth func() int) (metric.Registration, error) {
	g, err := m.meter.Int64ObservableGauge("voxmerge.sink.depth",
		metric.WithDescription("Merged chunks waiting in the output sink."),
	)
	if err != nil {
		return nil, err
	}
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(g, int64(depth()))
		return nil
	}, g)
}
