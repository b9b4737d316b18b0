// Package window buffers transcript fragments per recording session and
// turns them into match work at the right moments.
//
// A [Window] moves through a small lifecycle: idle until [Window.Start],
// recording while fragments arrive, stopped after [Window.Stop]. In periodic
// mode the buffer flushes on a fixed interval; in per-fragment mode every
// accepted fragment flushes on its own. A flush joins and normalises the
// buffered text, clears the buffer, and enqueues one voice-match-batch
// request for the dispatcher. Flushes serialise behind the window mutex, so
// two flushes never interleave and fragments are consumed exactly once.
package window

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxtask/voxtask/internal/dispatch"
	"github.com/voxtask/voxtask/internal/event"
	"github.com/voxtask/voxtask/internal/normalize"
	"github.com/voxtask/voxtask/internal/observe"
)

// defaultInterval is the periodic flush interval.
const defaultInterval = 30 * time.Second

// Mode selects when a window flushes its buffer.
type Mode string

const (
	// ModePeriodic flushes the accumulated buffer on a fixed interval.
	ModePeriodic Mode = "periodic"

	// ModePerFragment flushes every fragment as soon as it arrives.
	ModePerFragment Mode = "per-fragment"
)

// ParseMode converts a configuration string into a [Mode]. An empty string
// selects [ModePeriodic].
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePeriodic, "":
		return ModePeriodic, nil
	case ModePerFragment:
		return ModePerFragment, nil
	}
	return "", fmt.Errorf("unknown window mode %q", s)
}

// Enqueuer accepts dispatcher work produced by flushes.
type Enqueuer interface {
	Enqueue(r dispatch.Request)
}

type state int

const (
	stateIdle state = iota
	stateRecording
	stateStopped
)

// Option is a functional option for configuring a [Window].
type Option func(*Window)

// WithInterval sets the periodic flush interval. Default: 30s.
func WithInterval(d time.Duration) Option {
	return func(w *Window) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(w *Window) {
		if log != nil {
			w.log = log
		}
	}
}

// WithMetrics attaches metric instruments. Default: none.
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Window) { w.metrics = m }
}

// Window is one session's fragment accumulator. Safe for concurrent use.
type Window struct {
	sessionID string
	mode      Mode
	queue     Enqueuer
	bus       *event.Bus
	log       *slog.Logger
	metrics   *observe.Metrics
	interval  time.Duration

	mu    sync.Mutex
	state state
	buf   []string
	total int

	done     chan struct{}
	loopDone chan struct{}
}

// New returns an idle [Window] for the given session.
func New(sessionID string, mode Mode, queue Enqueuer, bus *event.Bus, opts ...Option) *Window {
	w := &Window{
		sessionID: sessionID,
		mode:      mode,
		queue:     queue,
		bus:       bus,
		log:       slog.Default(),
		interval:  defaultInterval,
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// SessionID returns the recording session this window belongs to.
func (w *Window) SessionID() string { return w.sessionID }

// Start moves the window from idle to recording and announces the session on
// the bus. In periodic mode it also launches the flush loop. Starting a
// window twice, or after Stop, is an error.
func (w *Window) Start() error {
	w.mu.Lock()
	if w.state != stateIdle {
		w.mu.Unlock()
		return fmt.Errorf("window %s: already started", w.sessionID)
	}
	w.state = stateRecording
	w.mu.Unlock()

	w.bus.Emit(event.SessionStarted{SessionID: w.sessionID})
	w.log.Info("recording session started", "sessionId", w.sessionID, "mode", string(w.mode))

	if w.mode == ModePeriodic {
		go w.loop()
	} else {
		close(w.loopDone)
	}
	return nil
}

// AddFragment appends one transcript fragment to the buffer. Blank fragments
// and fragments arriving after Stop are ignored; the return value reports
// whether the fragment was accepted. In per-fragment mode an accepted
// fragment flushes before AddFragment returns.
func (w *Window) AddFragment(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	w.mu.Lock()
	if w.state != stateRecording {
		w.mu.Unlock()
		w.log.Debug("fragment ignored outside recording", "sessionId", w.sessionID)
		return false
	}
	w.buf = append(w.buf, text)
	w.total++
	if w.mode == ModePerFragment {
		w.flushLocked()
	}
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.FragmentsIngested.Add(context.Background(), 1)
	}
	return true
}

// Flush drains the buffer into one voice-match-batch request. An empty
// buffer, or one that normalises to nothing, enqueues no work.
func (w *Window) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// flushLocked requires w.mu to be held. The buffer is cleared whether or not
// a request is produced, so stale fragments never leak into a later flush.
func (w *Window) flushLocked() {
	if len(w.buf) == 0 {
		return
	}
	joined := strings.Join(w.buf, " ")
	w.buf = w.buf[:0]

	text := normalize.ForMatching(joined)
	if text == "" {
		return
	}

	w.queue.Enqueue(dispatch.Request{
		Type:       dispatch.TypeVoiceMatchBatch,
		Immediate:  w.mode == ModePerFragment,
		Transcript: text,
	})
	w.log.Debug("window flushed", "sessionId", w.sessionID, "chars", len(text))
}

// Stop closes the window: a final flush drains whatever the buffer still
// holds, the periodic loop (if any) terminates, and the session-stopped
// event is published with the total fragment count. Stop is idempotent.
func (w *Window) Stop() {
	w.mu.Lock()
	if w.state == stateStopped {
		w.mu.Unlock()
		return
	}
	started := w.state == stateRecording
	w.state = stateStopped
	w.flushLocked()
	total := w.total
	w.mu.Unlock()

	close(w.done)
	if started && w.mode == ModePeriodic {
		<-w.loopDone
	}

	if started {
		w.bus.Emit(event.SessionStopped{SessionID: w.sessionID, Fragments: total})
		w.log.Info("recording session stopped", "sessionId", w.sessionID, "fragments", total)
	}
}

func (w *Window) loop() {
	defer close(w.loopDone)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.Flush()
		}
	}
}
