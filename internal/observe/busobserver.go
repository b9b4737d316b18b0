package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxtask/voxtask/internal/event"
)

// ObserveBus subscribes metric-recording callbacks to the event bus:
// dispatcher outcomes become counters, batch summaries become histograms,
// and session lifecycle events move the active-session gauge.
//
// Subscriptions live for the lifetime of the bus; there is no unsubscribe
// path because the bus and the metrics share the application's lifetime.
func ObserveBus(bus *event.Bus, m *Metrics) {
	ctx := context.Background()

	bus.On(event.KindUpdateSuccess, func(ev event.Event) {
		us := ev.(event.UpdateSuccess)
		m.DispatchedEntries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", us.RequestType),
			attribute.String("status", "success"),
		))
	})

	bus.On(event.KindUpdateError, func(ev event.Event) {
		ue := ev.(event.UpdateError)
		m.DispatchedEntries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", ue.RequestType),
			attribute.String("status", "error"),
		))
	})

	bus.On(event.KindBatchComplete, func(ev event.Event) {
		bc := ev.(event.BatchComplete)
		m.BatchDuration.Record(ctx, bc.Duration.Seconds())
	})

	bus.On(event.KindSessionStarted, func(event.Event) {
		m.ActiveSessions.Add(ctx, 1)
	})

	bus.On(event.KindSessionStopped, func(event.Event) {
		m.ActiveSessions.Add(ctx, -1)
	})
}
