// Package observe provides application-wide observability primitives for
// the voxtask pipeline: OpenTelemetry metrics with a Prometheus exporter
// bridge, a scorer instrumentation decorator, and an event-bus observer that
// turns dispatcher outcomes into counters.
//
// A package-level default is deliberately absent: tests construct their own
// [Metrics] from a private MeterProvider to avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxtask metrics.
const meterName = "github.com/voxtask/voxtask"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SimilarityDuration tracks one similarity comparison end to end,
	// including any remote call and fallback. Use with attribute:
	//   attribute.String("method", "remote"|"fallback")
	SimilarityDuration metric.Float64Histogram

	// MatchDuration tracks a full match sweep across all open tasks.
	MatchDuration metric.Float64Histogram

	// BatchDuration tracks one dispatcher batch from drain to completion.
	BatchDuration metric.Float64Histogram

	// ScorerRequests counts similarity comparisons. Use with attribute:
	//   attribute.String("method", ...)
	ScorerRequests metric.Int64Counter

	// DispatchedEntries counts processed dispatcher entries. Use with attributes:
	//   attribute.String("type", ...), attribute.String("status", "success"|"error")
	DispatchedEntries metric.Int64Counter

	// DuplicatesDropped counts complete-task enqueues dropped because the
	// task already had an in-flight or committed completion.
	DuplicatesDropped metric.Int64Counter

	// FragmentsIngested counts transcript fragments accepted by windows.
	FragmentsIngested metric.Int64Counter

	// QueueDepth tracks the pending dispatcher queue length.
	QueueDepth metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies: sub-100ms lexical scores up to multi-second
// remote calls and batch drains.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// MeterProvider. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SimilarityDuration, err = m.Float64Histogram("voxtask.similarity.duration",
		metric.WithDescription("Latency of one similarity comparison."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchDuration, err = m.Float64Histogram("voxtask.match.duration",
		metric.WithDescription("Latency of a full match sweep."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("voxtask.dispatch.batch.duration",
		metric.WithDescription("Latency of one dispatcher batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ScorerRequests, err = m.Int64Counter("voxtask.scorer.requests",
		metric.WithDescription("Similarity comparisons performed."),
	); err != nil {
		return nil, err
	}
	if met.DispatchedEntries, err = m.Int64Counter("voxtask.dispatch.entries",
		metric.WithDescription("Dispatcher entries processed."),
	); err != nil {
		return nil, err
	}
	if met.DuplicatesDropped, err = m.Int64Counter("voxtask.dispatch.duplicates_dropped",
		metric.WithDescription("Duplicate complete-task enqueues dropped."),
	); err != nil {
		return nil, err
	}
	if met.FragmentsIngested, err = m.Int64Counter("voxtask.window.fragments",
		metric.WithDescription("Transcript fragments accepted by accumulation windows."),
	); err != nil {
		return nil, err
	}

	if met.QueueDepth, err = m.Int64UpDownCounter("voxtask.dispatch.queue_depth",
		metric.WithDescription("Pending dispatcher queue length."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxtask.sessions.active",
		metric.WithDescription("Live recording sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}
