package app

import (
	"context"
	"testing"
	"time"

	compmock "github.com/voxtask/voxtask/internal/completion/mock"
	"github.com/voxtask/voxtask/internal/config"
	simmock "github.com/voxtask/voxtask/internal/similarity/mock"
	"github.com/voxtask/voxtask/internal/task"
	llmmock "github.com/voxtask/voxtask/pkg/provider/llm/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":0", LogLevel: config.LogInfo},
		Matching: config.MatchingConfig{
			Threshold:            0.5,
			WindowMode:           "per-fragment",
			FlushIntervalSeconds: 30,
			MatchTimeoutSeconds:  10,
			LLMTimeoutSeconds:    5,
		},
		Dispatch:   config.DispatchConfig{TickSeconds: 5, BatchSize: 10},
		Completion: config.CompletionConfig{Endpoint: "http://tasks.internal/complete", TimeoutSeconds: 15, MaxRetries: 2},
	}
}

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

func TestFragmentToCompletionFlow(t *testing.T) {
	t.Parallel()

	store := task.NewMemStore(task.Task{ID: "t1", Description: "send the weekly report", Priority: task.PriorityHigh})
	scorer := &simmock.Scorer{Scores: map[string]float64{"send the weekly report": 0.95}}
	completer := &compmock.Completer{}

	a, err := New(testConfig(), nil,
		WithTaskStore(store),
		WithScorer(scorer),
		WithCompleter(completer),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = a.Run(ctx)
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	if err := a.StartSession("s1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := a.StartSession("s1"); err == nil {
		t.Error("duplicate StartSession succeeded, want error")
	}

	if !a.Fragment("s1", "I sent the weekly report just now") {
		t.Fatal("fragment rejected")
	}

	// Per-fragment mode plus a 0.95 score rides the immediate path end to
	// end: flush, match sweep, completion.
	waitFor(t, 3*time.Second, func() bool { return completer.CallsFor("t1") == 1 }, "completion call")
	waitFor(t, 3*time.Second, func() bool {
		got, err := store.Get("t1")
		return err == nil && got.Completed
	}, "store mark")

	a.StopSession("s1")

	// The session is gone; its fragments no longer land anywhere.
	if a.Fragment("s1", "and another thing") {
		t.Error("fragment accepted after StopSession")
	}
}

func TestFragmentForUnknownSessionDropped(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(), nil,
		WithScorer(&simmock.Scorer{}),
		WithCompleter(&compmock.Completer{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	if a.Fragment("nobody", "hello") {
		t.Error("fragment for unknown session accepted")
	}
}

func TestInvalidWindowModeRejected(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Matching.WindowMode = "streaming"
	if _, err := New(cfg, nil, WithCompleter(&compmock.Completer{})); err == nil {
		t.Fatal("New accepted an invalid window mode")
	}
}

func TestRemoteBreakersExposedForReadiness(t *testing.T) {
	t.Parallel()

	providers := &Providers{LLM: &llmmock.Provider{}}
	a, err := New(testConfig(), providers, WithCompleter(&compmock.Completer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	bs := a.RemoteBreakers()
	if len(bs) != 1 {
		t.Fatalf("breakers = %d, want one for the llm backend", len(bs))
	}
	for name, b := range bs {
		if b.Open() {
			t.Errorf("fresh breaker %s reported open", name)
		}
	}

	// An injected scorer bypasses the composite; no breakers to report.
	plain, err := New(testConfig(), nil,
		WithScorer(&simmock.Scorer{}),
		WithCompleter(&compmock.Completer{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer plain.Shutdown()
	if got := plain.RemoteBreakers(); len(got) != 0 {
		t.Errorf("injected scorer exposes breakers: %v", got)
	}
}

func TestShutdownFlushesLiveSessions(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Matching.WindowMode = "periodic"

	store := task.NewMemStore(task.Task{ID: "t1", Description: "book the venue"})
	scorer := &simmock.Scorer{Scores: map[string]float64{"book the venue": 0.95}}
	completer := &compmock.Completer{}

	a, err := New(cfg, nil,
		WithTaskStore(store),
		WithScorer(scorer),
		WithCompleter(completer),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.StartSession("s1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	// The 30s periodic interval never fires in this test; the fragment can
	// only reach the queue through the window's final flush. The dispatcher
	// is deliberately never started so the enqueue is observable.
	a.Fragment("s1", "venue is booked")

	a.Shutdown()

	if got := a.dispatcher.Pending(); got != 1 {
		t.Errorf("pending after shutdown = %d, want the flushed sweep", got)
	}
}
