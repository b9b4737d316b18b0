package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/voxtask/voxtask/internal/event"
	"github.com/voxtask/voxtask/internal/similarity"
	simmock "github.com/voxtask/voxtask/internal/similarity/mock"
)

// collect gathers all currently recorded metrics from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

// metricNames returns the set of metric names present in rm.
func metricNames(rm metricdata.ResourceMetrics) map[string]bool {
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestNewMetricsCreatesAllInstruments(t *testing.T) {
	t.Parallel()

	mp := sdkmetric.NewMeterProvider()
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.SimilarityDuration == nil || m.DispatchedEntries == nil || m.QueueDepth == nil {
		t.Fatal("instrument left nil")
	}
}

func TestInstrumentedScorerRecordsAndPassesThrough(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	inner := &simmock.Scorer{Scores: map[string]float64{"task": 0.7}}
	s := NewInstrumentedScorer(inner, m)

	got := s.Score(context.Background(), "task", "transcript")
	if got.Similarity != 0.7 || got.Method != similarity.MethodFallback {
		t.Fatalf("result not passed through: %+v", got)
	}

	names := metricNames(collect(t, reader))
	if !names["voxtask.similarity.duration"] || !names["voxtask.scorer.requests"] {
		t.Fatalf("scorer metrics not recorded: %v", names)
	}
}

func TestObserveBusRecordsDispatchOutcomes(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	bus := event.NewBus()
	ObserveBus(bus, m)

	bus.Emit(event.SessionStarted{SessionID: "s1"})
	bus.Emit(event.UpdateSuccess{RequestID: "r1", RequestType: "complete-task"})
	bus.Emit(event.UpdateError{RequestID: "r2", RequestType: "complete-task"})
	bus.Emit(event.BatchComplete{Succeeded: 1, Failed: 1, Duration: 5 * time.Millisecond})
	bus.Emit(event.SessionStopped{SessionID: "s1"})

	names := metricNames(collect(t, reader))
	for _, want := range []string{
		"voxtask.dispatch.entries",
		"voxtask.dispatch.batch.duration",
		"voxtask.sessions.active",
	} {
		if !names[want] {
			t.Errorf("metric %s not recorded; have %v", want, names)
		}
	}
}
