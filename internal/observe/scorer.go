package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxtask/voxtask/internal/similarity"
)

// Ensure InstrumentedScorer satisfies the Scorer interface.
var _ similarity.Scorer = (*InstrumentedScorer)(nil)

// InstrumentedScorer decorates a [similarity.Scorer] with latency and
// request metrics, labelled by the method that produced each score.
type InstrumentedScorer struct {
	inner   similarity.Scorer
	metrics *Metrics
}

// NewInstrumentedScorer wraps inner. A nil metrics value returns inner's
// behaviour unchanged (no-op instrumentation).
func NewInstrumentedScorer(inner similarity.Scorer, metrics *Metrics) *InstrumentedScorer {
	return &InstrumentedScorer{inner: inner, metrics: metrics}
}

// Score implements [similarity.Scorer].
func (s *InstrumentedScorer) Score(ctx context.Context, taskText, transcriptText string) similarity.Result {
	start := time.Now()
	r := s.inner.Score(ctx, taskText, transcriptText)
	if s.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("method", string(r.Method)))
		s.metrics.SimilarityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		s.metrics.ScorerRequests.Add(ctx, 1, attrs)
	}
	return r
}
