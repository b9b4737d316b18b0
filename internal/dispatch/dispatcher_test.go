package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	compmock "github.com/voxtask/voxtask/internal/completion/mock"
	"github.com/voxtask/voxtask/internal/event"
	"github.com/voxtask/voxtask/internal/match"
	"github.com/voxtask/voxtask/internal/observe"
	simmock "github.com/voxtask/voxtask/internal/similarity/mock"
	"github.com/voxtask/voxtask/internal/task"
)

// waitFor polls cond until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// eventCollector records bus events of the given kinds.
type eventCollector struct {
	mu     sync.Mutex
	events []event.Event
}

func collectEvents(bus *event.Bus, kinds ...event.Kind) *eventCollector {
	c := &eventCollector{}
	for _, k := range kinds {
		bus.On(k, func(ev event.Event) {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		})
	}
	return c
}

func (c *eventCollector) snapshot() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *eventCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func fixedThreshold(v float64) func() float64 {
	return func() float64 { return v }
}

func openTasks(descByID map[string]string) []task.Task {
	tasks := make([]task.Task, 0, len(descByID))
	for id, desc := range descByID {
		tasks = append(tasks, task.Task{ID: id, Description: desc, Priority: task.PriorityMedium})
	}
	return tasks
}

func TestDuplicateCompletionsCollapse(t *testing.T) {
	t.Parallel()

	store := task.NewMemStore()
	store.Put(openTasks(map[string]string{"t1": "send the report"})...)
	completer := &compmock.Completer{}
	bus := event.NewBus()
	matcher := match.New(&simmock.Scorer{})

	d := New(bus, store, matcher, completer, fixedThreshold(0.5), WithTick(20*time.Millisecond))

	for range 3 {
		d.Enqueue(Request{Type: TypeCompleteTask, TaskID: "t1", Transcript: "report sent", Similarity: 0.95})
	}
	if got := d.Pending(); got != 1 {
		t.Fatalf("pending after duplicate enqueues = %d, want 1", got)
	}

	d.Start(context.Background())
	defer d.Stop()

	waitFor(t, 2*time.Second, func() bool { return completer.CallsFor("t1") >= 1 }, "first completion")

	// Give a few ticks a chance to re-process; the count must not move.
	time.Sleep(100 * time.Millisecond)
	if got := completer.CallsFor("t1"); got != 1 {
		t.Errorf("completions for t1 = %d, want 1", got)
	}

	// A committed completion keeps later enqueues out of the queue too.
	d.Enqueue(Request{Type: TypeCompleteTask, TaskID: "t1", Similarity: 0.95})
	if got := d.Pending(); got != 0 {
		t.Errorf("pending after post-commit enqueue = %d, want 0", got)
	}
}

func TestBatchCapDefersOverflow(t *testing.T) {
	t.Parallel()

	store := task.NewMemStore()
	completer := &compmock.Completer{}
	bus := event.NewBus()
	batches := collectEvents(bus, event.KindBatchComplete)

	d := New(bus, store, match.New(&simmock.Scorer{}), completer, fixedThreshold(0.5),
		WithTick(30*time.Millisecond))

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
	for _, id := range ids {
		d.Enqueue(Request{Type: TypeCompleteTask, TaskID: id, Similarity: 0.9})
	}
	if got := d.Pending(); got != 11 {
		t.Fatalf("pending = %d, want 11", got)
	}

	d.Start(context.Background())
	defer d.Stop()

	waitFor(t, 2*time.Second, func() bool { return batches.len() >= 1 }, "first batch")
	first := batches.snapshot()[0].(event.BatchComplete)
	if first.Succeeded != 10 || first.Failed != 0 {
		t.Errorf("first batch = %d ok / %d failed, want 10 / 0", first.Succeeded, first.Failed)
	}
	if first.Remaining != 1 {
		t.Errorf("first batch remaining = %d, want 1", first.Remaining)
	}

	waitFor(t, 2*time.Second, func() bool { return completer.Count() == 11 }, "deferred entry")
}

func TestImmediateSkipsTick(t *testing.T) {
	t.Parallel()

	store := task.NewMemStore()
	completer := &compmock.Completer{}
	bus := event.NewBus()

	// A tick this long never fires inside the test; only the immediate wake
	// can trigger processing.
	d := New(bus, store, match.New(&simmock.Scorer{}), completer, fixedThreshold(0.5),
		WithTick(time.Hour))
	d.Start(context.Background())
	defer d.Stop()

	d.Enqueue(Request{Type: TypeCompleteTask, Immediate: true, TaskID: "t1", Similarity: 0.95})

	waitFor(t, 2*time.Second, func() bool { return completer.CallsFor("t1") == 1 }, "immediate completion")
}

func TestUnknownTypeFailsEntry(t *testing.T) {
	t.Parallel()

	store := task.NewMemStore()
	bus := event.NewBus()
	errs := collectEvents(bus, event.KindUpdateError)
	batches := collectEvents(bus, event.KindBatchComplete)

	d := New(bus, store, match.New(&simmock.Scorer{}), &compmock.Completer{}, fixedThreshold(0.5),
		WithTick(time.Hour))
	d.Start(context.Background())
	defer d.Stop()

	d.Enqueue(Request{Type: Type("bogus"), Immediate: true, TaskID: "t1"})

	waitFor(t, 2*time.Second, func() bool { return errs.len() == 1 }, "error event")
	ue := errs.snapshot()[0].(event.UpdateError)
	if ue.RequestType != "bogus" {
		t.Errorf("RequestType = %q, want the unrecognised value verbatim", ue.RequestType)
	}
	if ue.Err == nil {
		t.Error("Err is nil, want the terminal failure")
	}

	waitFor(t, 2*time.Second, func() bool { return batches.len() == 1 }, "batch summary")
	bc := batches.snapshot()[0].(event.BatchComplete)
	if bc.Succeeded != 0 || bc.Failed != 1 {
		t.Errorf("batch = %d ok / %d failed, want 0 / 1", bc.Succeeded, bc.Failed)
	}
}

func TestVoiceMatchBatchCompletesMatches(t *testing.T) {
	t.Parallel()

	store := task.NewMemStore()
	store.Put(openTasks(map[string]string{
		"t1": "email the budget summary",
		"t2": "book the meeting room",
		"t3": "water the plants",
	})...)

	scorer := &simmock.Scorer{Scores: map[string]float64{
		"email the budget summary": 0.95,
		"book the meeting room":    0.6,
		"water the plants":         0.2,
	}}
	completer := &compmock.Completer{}
	bus := event.NewBus()

	d := New(bus, store, match.New(scorer), completer, fixedThreshold(0.5),
		WithTick(30*time.Millisecond))
	d.Start(context.Background())
	defer d.Stop()

	d.Enqueue(Request{Type: TypeVoiceMatchBatch, Immediate: true, Transcript: "budget summary emailed and room booked"})

	waitFor(t, 2*time.Second, func() bool {
		a, _ := store.Get("t1")
		b, _ := store.Get("t2")
		return a.Completed && b.Completed
	}, "both matches to complete")

	if got := completer.CallsFor("t3"); got != 0 {
		t.Errorf("completions for below-threshold task = %d, want 0", got)
	}

	var rec *struct{ sim float64 }
	for _, r := range completer.Records {
		if r.TaskID == "t1" {
			rec = &struct{ sim float64 }{r.Similarity}
			if r.TranscribedText != "budget summary emailed and room booked" {
				t.Errorf("TranscribedText = %q, want the triggering transcript", r.TranscribedText)
			}
			if r.Method != "fallback" {
				t.Errorf("Method = %q, want fallback", r.Method)
			}
		}
	}
	if rec == nil {
		t.Fatal("no completion record for t1")
	}
	if rec.sim != 0.95 {
		t.Errorf("Similarity = %v, want 0.95", rec.sim)
	}
}

func TestOverlappingSweepsCompleteOnce(t *testing.T) {
	t.Parallel()

	store := task.NewMemStore()
	store.Put(openTasks(map[string]string{"t1": "submit the expense report"})...)
	scorer := &simmock.Scorer{Scores: map[string]float64{"submit the expense report": 0.95}}
	completer := &compmock.Completer{}
	bus := event.NewBus()

	d := New(bus, store, match.New(scorer), completer, fixedThreshold(0.5),
		WithTick(30*time.Millisecond))

	// Two sweeps of the same transcript land before the first tick. Both run,
	// both find the same candidate, but enqueue-time dedup lets only one
	// completion through.
	for range 2 {
		d.Enqueue(Request{Type: TypeVoiceMatchBatch, Transcript: "expense report submitted"})
	}

	d.Start(context.Background())
	defer d.Stop()

	waitFor(t, 2*time.Second, func() bool { return completer.CallsFor("t1") >= 1 }, "completion")
	time.Sleep(100 * time.Millisecond)
	if got := completer.CallsFor("t1"); got != 1 {
		t.Errorf("persistence calls for t1 = %d, want exactly 1", got)
	}
}

func TestMatchSweepRecordsDuration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	store := task.NewMemStore()
	store.Put(openTasks(map[string]string{"t1": "send the report"})...)
	bus := event.NewBus()
	batches := collectEvents(bus, event.KindBatchComplete)

	d := New(bus, store, match.New(&simmock.Scorer{}), &compmock.Completer{}, fixedThreshold(0.5),
		WithTick(time.Hour), WithMetrics(metrics))
	d.Start(context.Background())
	defer d.Stop()

	d.Enqueue(Request{Type: TypeVoiceMatchBatch, Immediate: true, Transcript: "report sent"})
	waitFor(t, 2*time.Second, func() bool { return batches.len() >= 1 }, "sweep batch")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "voxtask.match.duration" {
				return
			}
		}
	}
	t.Error("match sweep duration not recorded")
}

func TestFailedCompletionReleasesTask(t *testing.T) {
	t.Parallel()

	store := task.NewMemStore()
	store.Put(openTasks(map[string]string{"t1": "send the invoice"})...)
	completer := &compmock.Completer{ErrFor: map[string]error{"t1": errors.New("service unavailable")}}
	bus := event.NewBus()
	errs := collectEvents(bus, event.KindUpdateError)

	d := New(bus, store, match.New(&simmock.Scorer{}), completer, fixedThreshold(0.5),
		WithTick(time.Hour))
	d.Start(context.Background())
	defer d.Stop()

	d.Enqueue(Request{Type: TypeCompleteTask, Immediate: true, TaskID: "t1", Similarity: 0.95})
	waitFor(t, 2*time.Second, func() bool { return errs.len() == 1 }, "failure event")

	got, err := store.Get("t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Completed {
		t.Error("task marked completed despite persistence failure")
	}

	// The failed task is eligible again: a fresh enqueue is not dropped as a
	// duplicate and reaches the completer a second time.
	d.Enqueue(Request{Type: TypeCompleteTask, Immediate: true, TaskID: "t1", Similarity: 0.95})
	waitFor(t, 2*time.Second, func() bool { return completer.CallsFor("t1") == 2 }, "retry attempt")
}

func TestSimilarityRefresh(t *testing.T) {
	t.Parallel()

	t.Run("above threshold re-enqueues completion", func(t *testing.T) {
		t.Parallel()

		store := task.NewMemStore()
		store.Put(openTasks(map[string]string{"t1": "call the client"})...)
		completer := &compmock.Completer{}
		bus := event.NewBus()

		d := New(bus, store, match.New(&simmock.Scorer{}), completer, fixedThreshold(0.5),
			WithTick(30*time.Millisecond))
		d.Start(context.Background())
		defer d.Stop()

		d.Enqueue(Request{Type: TypeSimilarityRefresh, Immediate: true, TaskID: "t1", Similarity: 0.85})

		waitFor(t, 2*time.Second, func() bool { return completer.CallsFor("t1") == 1 }, "refreshed completion")
	})

	t.Run("below threshold resolves without completing", func(t *testing.T) {
		t.Parallel()

		store := task.NewMemStore()
		store.Put(openTasks(map[string]string{"t1": "call the client"})...)
		completer := &compmock.Completer{}
		bus := event.NewBus()
		oks := collectEvents(bus, event.KindUpdateSuccess)

		d := New(bus, store, match.New(&simmock.Scorer{}), completer, fixedThreshold(0.5),
			WithTick(time.Hour))
		d.Start(context.Background())
		defer d.Stop()

		d.Enqueue(Request{Type: TypeSimilarityRefresh, Immediate: true, TaskID: "t1", Similarity: 0.7})

		waitFor(t, 2*time.Second, func() bool { return oks.len() == 1 }, "no-op resolution")
		if got := completer.Count(); got != 0 {
			t.Errorf("completer calls = %d, want 0", got)
		}
	})
}
