// Package match selects which open tasks a spoken transcript has satisfied.
//
// The [Matcher] fans similarity scoring out across all open tasks
// concurrently, bounds the whole sweep with a deadline, and returns the
// candidates that clear the caller's threshold in a deterministic order.
// How many of those candidates to act on is the caller's policy, not the
// matcher's.
package match

import (
	"context"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxtask/voxtask/internal/similarity"
	"github.com/voxtask/voxtask/internal/task"
)

// defaultTimeout bounds one full match sweep. Scores that have not resolved
// by then take the scorer's fallback path instead of hanging the flush cycle.
const defaultTimeout = 10 * time.Second

// Candidate is the ephemeral result of comparing one task against one
// accumulated transcript.
type Candidate struct {
	// TaskID identifies the matched task.
	TaskID string

	// TranscriptText is the (normalised) transcript that was compared.
	TranscriptText string

	// Similarity is the match score in [0, 1].
	Similarity float64

	// Method records which scoring path produced the score.
	Method similarity.Method

	// ComputedAt records when the comparison finished.
	ComputedAt time.Time
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithTimeout sets the overall deadline for one match sweep. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Matcher scores a transcript against open tasks. Safe for concurrent use.
type Matcher struct {
	scorer  similarity.Scorer
	timeout time.Duration
}

// New returns a [Matcher] using scorer.
func New(scorer similarity.Scorer, opts ...Option) *Matcher {
	m := &Matcher{
		scorer:  scorer,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match scores transcript against every open task in tasks and returns the
// candidates whose similarity is at least threshold, ordered by descending
// similarity with ties broken by ascending task ID.
//
// Completed tasks are filtered out before any scoring. An empty transcript
// or an empty open-task set short-circuits to nil with zero scorer calls.
// Scoring runs concurrently across tasks; the sweep as a whole is bounded
// by the configured timeout, after which unresolved scores resolve through
// the scorer's fallback path rather than blocking.
func (m *Matcher) Match(ctx context.Context, transcript string, tasks []task.Task, threshold float64) []Candidate {
	if strings.TrimSpace(transcript) == "" {
		return nil
	}

	open := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	results := make([]Candidate, len(open))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range open {
		g.Go(func() error {
			r := m.scorer.Score(gctx, t.Description, transcript)
			results[i] = Candidate{
				TaskID:         t.ID,
				TranscriptText: transcript,
				Similarity:     r.Similarity,
				Method:         r.Method,
				ComputedAt:     time.Now(),
			}
			return nil
		})
	}
	// Goroutines never return errors; the scorer converts every failure
	// into a fallback score.
	_ = g.Wait()

	kept := results[:0]
	for _, c := range results {
		if c.Similarity >= threshold {
			kept = append(kept, c)
		}
	}

	slices.SortFunc(kept, func(a, b Candidate) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return strings.Compare(a.TaskID, b.TaskID)
	})

	if len(kept) == 0 {
		return nil
	}
	return slices.Clone(kept)
}
