// Package dispatch owns the update queue: the single serialisation point
// between transcript matching and the external task store.
//
// Requests enter through [Dispatcher.Enqueue] and leave in batches processed
// by one background goroutine. Batches start on a periodic tick or, for
// requests marked immediate, as soon as the current batch (if any) finishes.
// At most one batch is ever in flight, so downstream writes are naturally
// rate-limited no matter how fast transcripts arrive.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxtask/voxtask/internal/completion"
	"github.com/voxtask/voxtask/internal/event"
	"github.com/voxtask/voxtask/internal/match"
	"github.com/voxtask/voxtask/internal/observe"
	"github.com/voxtask/voxtask/internal/task"
)

const (
	// defaultTick is the periodic batch interval.
	defaultTick = 5 * time.Second

	// defaultBatchSize caps how many requests one batch drains.
	defaultBatchSize = 10

	// defaultImmediateThreshold marks the confidence at which a match skips
	// the tick and completes at the next opportunity.
	defaultImmediateThreshold = 0.9

	// defaultRefreshThreshold is the confidence a similarity-refresh must
	// carry for the task to still be considered completed.
	defaultRefreshThreshold = 0.8
)

// Option is a functional option for configuring a [Dispatcher].
type Option func(*Dispatcher)

// WithTick sets the periodic batch interval. Default: 5s.
func WithTick(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.tick = d
		}
	}
}

// WithBatchSize caps how many requests one batch drains. Default: 10.
func WithBatchSize(n int) Option {
	return func(dp *Dispatcher) {
		if n > 0 {
			dp.batchSize = n
		}
	}
}

// WithImmediateThreshold sets the confidence at which a match-sweep
// candidate is enqueued as immediate. Default: 0.9.
func WithImmediateThreshold(v float64) Option {
	return func(dp *Dispatcher) { dp.immediateThreshold = v }
}

// WithRefreshThreshold sets the confidence a similarity-refresh must carry
// to re-enqueue a completion. Default: 0.8.
func WithRefreshThreshold(v float64) Option {
	return func(dp *Dispatcher) { dp.refreshThreshold = v }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(dp *Dispatcher) {
		if log != nil {
			dp.log = log
		}
	}
}

// WithMetrics attaches metric instruments. Default: none.
func WithMetrics(m *observe.Metrics) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// Dispatcher drains queued requests in bounded batches on a single
// background goroutine. Safe for concurrent use.
type Dispatcher struct {
	bus       *event.Bus
	tasks     task.Store
	matcher   *match.Matcher
	completer completion.Completer
	threshold func() float64
	metrics   *observe.Metrics
	log       *slog.Logger

	tick               time.Duration
	batchSize          int
	immediateThreshold float64
	refreshThreshold   float64

	mu       sync.Mutex
	pending  []Request
	inflight map[string]struct{}

	wake chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	loopDone  chan struct{}
}

// New returns a stopped [Dispatcher]. The threshold func is consulted on
// every match sweep, so a live-reloaded configuration value takes effect
// without restarting the dispatcher.
func New(bus *event.Bus, tasks task.Store, matcher *match.Matcher, completer completion.Completer, threshold func() float64, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bus:                bus,
		tasks:              tasks,
		matcher:            matcher,
		completer:          completer,
		threshold:          threshold,
		log:                slog.Default(),
		tick:               defaultTick,
		batchSize:          defaultBatchSize,
		immediateThreshold: defaultImmediateThreshold,
		refreshThreshold:   defaultRefreshThreshold,
		inflight:           make(map[string]struct{}),
		wake:               make(chan struct{}, 1),
		done:               make(chan struct{}),
		loopDone:           make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start launches the batch loop. ctx bounds all downstream calls made by
// batches; cancelling it stops the loop just like [Dispatcher.Stop].
// Subsequent calls are no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.mu.Lock()
		d.started = true
		d.mu.Unlock()
		go d.loop(ctx)
	})
}

// Stop terminates the batch loop and waits for an in-flight batch to finish.
// Pending requests that never made it into a batch are discarded. Stopping a
// dispatcher that was never started is a no-op.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if started {
		<-d.loopDone
	}
}

// Enqueue appends r to the pending queue.
//
// A complete-task request whose task already has an in-flight or committed
// completion is dropped, keeping the downstream write idempotent no matter
// how many overlapping transcripts matched the same task. Requests marked
// immediate additionally signal the loop to start a batch as soon as the
// current one (if any) finishes.
func (d *Dispatcher) Enqueue(r Request) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.EnqueuedAt = time.Now()

	d.mu.Lock()
	if r.Type == TypeCompleteTask {
		if _, dup := d.inflight[r.TaskID]; dup {
			d.mu.Unlock()
			d.log.Debug("duplicate completion dropped", "taskId", r.TaskID, "requestId", r.ID)
			if d.metrics != nil {
				d.metrics.DuplicatesDropped.Add(context.Background(), 1)
			}
			return
		}
		d.inflight[r.TaskID] = struct{}{}
	}
	d.pending = append(d.pending, r)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.QueueDepth.Add(context.Background(), 1)
	}
	if r.Immediate {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// Pending reports the current queue depth.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.loopDone)

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.processBatch(ctx)
		case <-d.wake:
			d.processBatch(ctx)
		}
	}
}

// processBatch drains up to batchSize of the oldest pending requests and
// processes them concurrently. Runs only on the loop goroutine, so batches
// never overlap.
func (d *Dispatcher) processBatch(ctx context.Context) {
	d.mu.Lock()
	n := min(d.batchSize, len(d.pending))
	if n == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]Request, n)
	copy(batch, d.pending[:n])
	d.pending = d.pending[n:]
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.QueueDepth.Add(ctx, -int64(n))
	}

	start := time.Now()
	var (
		resMu     sync.Mutex
		succeeded int
		failed    int
	)

	var wg sync.WaitGroup
	for _, r := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.process(ctx, r)

			resMu.Lock()
			if err != nil {
				failed++
			} else {
				succeeded++
			}
			resMu.Unlock()

			if err != nil {
				d.log.Warn("request failed",
					"requestId", r.ID, "type", string(r.Type), "taskId", r.TaskID, "error", err)
				d.bus.Emit(event.UpdateError{
					RequestID:   r.ID,
					RequestType: string(r.Type),
					TaskID:      r.TaskID,
					Err:         err,
				})
				return
			}
			d.bus.Emit(event.UpdateSuccess{
				RequestID:   r.ID,
				RequestType: string(r.Type),
				TaskID:      r.TaskID,
				Similarity:  r.Similarity,
			})
		}()
	}
	wg.Wait()

	d.mu.Lock()
	remaining := len(d.pending)
	d.mu.Unlock()

	d.bus.Emit(event.BatchComplete{
		Succeeded: succeeded,
		Failed:    failed,
		Remaining: remaining,
		Duration:  time.Since(start),
	})
}

func (d *Dispatcher) process(ctx context.Context, r Request) error {
	switch r.Type {
	case TypeCompleteTask:
		return d.completeTask(ctx, r)
	case TypeVoiceMatchBatch:
		return d.matchBatch(ctx, r)
	case TypeSimilarityRefresh:
		return d.refresh(r)
	default:
		return fmt.Errorf("unknown request type %q", r.Type)
	}
}

// completeTask persists one completion. On failure the task is released from
// the in-flight set so a later transcript can complete it again.
func (d *Dispatcher) completeTask(ctx context.Context, r Request) error {
	now := time.Now()
	err := d.completer.Complete(ctx, completion.Record{
		TaskID:          r.TaskID,
		TranscribedText: r.Transcript,
		Similarity:      r.Similarity,
		Method:          string(r.Method),
		CompletedAt:     now,
	})
	if err != nil {
		d.mu.Lock()
		delete(d.inflight, r.TaskID)
		d.mu.Unlock()
		return fmt.Errorf("complete task %s: %w", r.TaskID, err)
	}

	if err := d.tasks.MarkCompleted(r.TaskID, now); err != nil {
		// The external write committed; a stale local copy only costs an
		// extra no-op sweep hit, so log rather than fail the entry.
		d.log.Warn("local completion mark failed", "taskId", r.TaskID, "error", err)
	}
	d.log.Info("task completed by voice match",
		"taskId", r.TaskID, "similarity", r.Similarity, "method", string(r.Method))
	return nil
}

// matchBatch sweeps the transcript across all open tasks and enqueues a
// completion for every candidate above the threshold. Candidates that clear
// the immediate threshold are marked immediate; everything else waits for
// the tick.
func (d *Dispatcher) matchBatch(ctx context.Context, r Request) error {
	sweepStart := time.Now()
	cands := d.matcher.Match(ctx, r.Transcript, d.tasks.ListOpen(), d.threshold())
	if d.metrics != nil {
		d.metrics.MatchDuration.Record(ctx, time.Since(sweepStart).Seconds())
	}
	for _, c := range cands {
		d.Enqueue(Request{
			Type:       TypeCompleteTask,
			Immediate:  c.Similarity >= d.immediateThreshold,
			TaskID:     c.TaskID,
			Transcript: c.TranscriptText,
			Similarity: c.Similarity,
			Method:     c.Method,
		})
	}
	d.log.Debug("match sweep finished", "requestId", r.ID, "candidates", len(cands))
	return nil
}

// refresh re-checks a previously computed score. A score that still clears
// the refresh threshold re-enqueues the completion; anything lower resolves
// as a successful no-op.
func (d *Dispatcher) refresh(r Request) error {
	if r.Similarity < d.refreshThreshold {
		return nil
	}
	d.Enqueue(Request{
		Type:       TypeCompleteTask,
		TaskID:     r.TaskID,
		Transcript: r.Transcript,
		Similarity: r.Similarity,
		Method:     r.Method,
	})
	return nil
}
