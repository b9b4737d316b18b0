// Package app wires all voxtask subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes until the context ends, and Shutdown tears
// everything down in order. It also implements [ingress.Hub], managing one
// accumulation window per live recording session.
//
// For testing, inject mock implementations via functional options
// (WithCompleter, WithScorer, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxtask/voxtask/internal/completion"
	"github.com/voxtask/voxtask/internal/config"
	"github.com/voxtask/voxtask/internal/dispatch"
	"github.com/voxtask/voxtask/internal/event"
	"github.com/voxtask/voxtask/internal/ingress"
	"github.com/voxtask/voxtask/internal/match"
	"github.com/voxtask/voxtask/internal/observe"
	"github.com/voxtask/voxtask/internal/resilience"
	"github.com/voxtask/voxtask/internal/similarity"
	"github.com/voxtask/voxtask/internal/task"
	"github.com/voxtask/voxtask/internal/window"
	"github.com/voxtask/voxtask/pkg/provider/embeddings"
	"github.com/voxtask/voxtask/pkg/provider/llm"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go from the config.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the transcript-to-task
// pipeline. It implements [ingress.Hub].
type App struct {
	cfg       *config.Config
	providers *Providers

	bus        *event.Bus
	metrics    *observe.Metrics
	tasks      task.Store
	scorer     similarity.Scorer
	matcher    *match.Matcher
	completer  completion.Completer
	dispatcher *dispatch.Dispatcher
	threshold  func() float64

	// remoteBreakers guards each remote scoring backend; exposed for
	// readiness checks.
	remoteBreakers map[string]*resilience.Breaker

	windowMode window.Mode

	// windows tracks one accumulation window per live session.
	winMu   sync.Mutex
	windows map[string]*window.Window

	stopOnce sync.Once
}

// Ensure App satisfies the ingress hub contract at compile time.
var _ ingress.Hub = (*App)(nil)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTaskStore injects a task store instead of creating a MemStore.
func WithTaskStore(s task.Store) Option {
	return func(a *App) { a.tasks = s }
}

// WithCompleter injects a completion client instead of building the HTTP
// client from config.
func WithCompleter(c completion.Completer) Option {
	return func(a *App) { a.completer = c }
}

// WithScorer injects a similarity scorer instead of building the composite
// remote-plus-lexical scorer from the configured providers.
func WithScorer(s similarity.Scorer) Option {
	return func(a *App) { a.scorer = s }
}

// WithThresholdFunc injects the live threshold source, typically
// [config.Watcher.Threshold]. Default: the value loaded at startup.
func WithThresholdFunc(fn func() float64) Option {
	return func(a *App) { a.threshold = fn }
}

// WithMetrics attaches metric instruments to every subsystem that records
// them. Default: no metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. Use Option functions to inject test doubles for any
// subsystem.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		bus:       event.NewBus(),
		windows:   make(map[string]*window.Window),
	}
	for _, o := range opts {
		o(a)
	}

	mode, err := window.ParseMode(cfg.Matching.WindowMode)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.windowMode = mode

	if a.tasks == nil {
		a.tasks = task.NewMemStore()
	}
	if a.threshold == nil {
		static := cfg.Matching.Threshold
		a.threshold = func() float64 { return static }
	}

	a.initScorer()
	a.matcher = match.New(a.scorer, match.WithTimeout(cfg.Matching.MatchTimeout()))

	if err := a.initCompleter(); err != nil {
		return nil, fmt.Errorf("app: init completer: %w", err)
	}

	a.dispatcher = dispatch.New(a.bus, a.tasks, a.matcher, a.completer, a.threshold,
		dispatch.WithTick(cfg.Dispatch.Tick()),
		dispatch.WithBatchSize(cfg.Dispatch.BatchSize),
		dispatch.WithMetrics(a.metrics),
	)

	if a.metrics != nil {
		observe.ObserveBus(a.bus, a.metrics)
	}
	return a, nil
}

// initScorer builds the composite scorer from the configured providers: LLM
// judgement first, embeddings comparison second, lexical fallback always.
func (a *App) initScorer() {
	if a.scorer != nil {
		return
	}

	lexical := similarity.NewLexical(
		append(append([]string{}, similarity.DefaultKeywords...), a.cfg.Matching.Keywords...)...,
	)

	var remotes []similarity.RemoteScorer
	if a.providers.LLM != nil {
		remotes = append(remotes, similarity.NewLLMScorer(a.providers.LLM,
			similarity.WithLLMTimeout(a.cfg.Matching.LLMTimeout()),
			similarity.WithLLMRateLimit(a.cfg.Matching.LLMRateLimit, a.cfg.Matching.LLMRateBurst),
		))
	}
	if a.providers.Embeddings != nil {
		remotes = append(remotes, similarity.NewEmbeddingScorer(a.providers.Embeddings, a.cfg.Matching.LLMTimeout()))
	}

	composite := similarity.NewComposite(lexical, resilience.BreakerConfig{}, remotes...)
	a.remoteBreakers = composite.RemoteBreakers()

	scorer := similarity.Scorer(composite)
	if a.metrics != nil {
		scorer = observe.NewInstrumentedScorer(scorer, a.metrics)
	}
	a.scorer = scorer
	slog.Info("scorer initialised", "remoteBackends", len(remotes))
}

// initCompleter builds the HTTP completion client from config.
func (a *App) initCompleter() error {
	if a.completer != nil {
		return nil
	}
	c, err := completion.NewHTTPClient(a.cfg.Completion.Endpoint,
		completion.WithTimeout(a.cfg.Completion.Timeout()),
		completion.WithMaxRetries(a.cfg.Completion.MaxRetries),
	)
	if err != nil {
		return err
	}
	a.completer = c
	return nil
}

// Bus returns the application event bus for additional subscribers (UI
// bridges, alternative observers).
func (a *App) Bus() *event.Bus { return a.bus }

// Tasks returns the task store, for loading checklists at startup.
func (a *App) Tasks() task.Store { return a.tasks }

// RemoteBreakers returns the circuit breaker for each remote scoring
// backend, keyed by backend name. Empty when scoring is lexical-only or a
// custom scorer was injected.
func (a *App) RemoteBreakers() map[string]*resilience.Breaker { return a.remoteBreakers }

// Enqueue forwards a request to the dispatcher. Exposed so callers outside
// the session flow (admin endpoints, replays) can inject work.
func (a *App) Enqueue(r dispatch.Request) { a.dispatcher.Enqueue(r) }

// StartSession implements [ingress.Hub]: it creates and starts the session's
// accumulation window. Starting an already-live session is an error.
func (a *App) StartSession(sessionID string) error {
	w := window.New(sessionID, a.windowMode, a.dispatcher, a.bus,
		window.WithInterval(a.cfg.Matching.FlushInterval()),
		window.WithMetrics(a.metrics),
	)

	a.winMu.Lock()
	if _, exists := a.windows[sessionID]; exists {
		a.winMu.Unlock()
		return fmt.Errorf("app: session %s already live", sessionID)
	}
	a.windows[sessionID] = w
	a.winMu.Unlock()

	if err := w.Start(); err != nil {
		a.winMu.Lock()
		delete(a.windows, sessionID)
		a.winMu.Unlock()
		return err
	}
	return nil
}

// Fragment implements [ingress.Hub]: it appends a transcript fragment to the
// session's window. Fragments for unknown sessions are dropped.
func (a *App) Fragment(sessionID, text string) bool {
	a.winMu.Lock()
	w := a.windows[sessionID]
	a.winMu.Unlock()
	if w == nil {
		return false
	}
	return w.AddFragment(text)
}

// StopSession implements [ingress.Hub]: it stops the session's window,
// running its final flush. Unknown sessions are a no-op.
func (a *App) StopSession(sessionID string) {
	a.winMu.Lock()
	w := a.windows[sessionID]
	delete(a.windows, sessionID)
	a.winMu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// Run starts the dispatcher and blocks until ctx is cancelled, then shuts
// down.
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start(ctx)
	slog.Info("app running",
		"windowMode", string(a.windowMode),
		"threshold", a.threshold(),
	)

	<-ctx.Done()
	a.Shutdown()
	return ctx.Err()
}

// Shutdown stops all live session windows (running their final flushes) and
// then the dispatcher. Idempotent.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		a.winMu.Lock()
		live := make([]*window.Window, 0, len(a.windows))
		for _, w := range a.windows {
			live = append(live, w)
		}
		a.windows = make(map[string]*window.Window)
		a.winMu.Unlock()

		for _, w := range live {
			w.Stop()
		}

		a.dispatcher.Stop()
		slog.Info("shutdown complete", "sessionsClosed", len(live))
	})
}
