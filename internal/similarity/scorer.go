// Package similarity computes a 0..1 semantic-match score between a task
// description and a spoken transcript.
//
// The [Composite] scorer prefers remote backends (an LLM judgement call,
// optionally backed by an embeddings comparison) and falls back synchronously
// to the deterministic [Lexical] scorer when every remote path fails. Remote
// backends sit behind per-backend circuit breakers so a flapping provider is
// bypassed instead of retried on every utterance.
//
// Scoring sits on the hot path of a live voice session: [Composite.Score]
// never returns an error. Every failure resolves to a fallback score.
package similarity

import (
	"context"
	"log/slog"

	"github.com/voxtask/voxtask/internal/resilience"
)

// Method records which path produced a score.
type Method string

const (
	// MethodRemote means a remote semantic backend produced the score.
	// Remote scores may vary run-to-run and are advisory, not reproducible.
	MethodRemote Method = "remote"

	// MethodFallback means the local lexical scorer produced the score.
	// Fallback scores are deterministic for identical normalised inputs.
	MethodFallback Method = "fallback"
)

// Result is the outcome of one similarity comparison.
type Result struct {
	// Similarity is the match score in [0, 1].
	Similarity float64

	// Method records which path produced the score.
	Method Method
}

// Scorer computes the similarity between a task description and a
// transcript. Implementations must be safe for concurrent use and must not
// fail: every error path resolves to a score.
type Scorer interface {
	Score(ctx context.Context, taskText, transcriptText string) Result
}

// RemoteScorer is a semantic backend that may fail. [Composite] wraps one or
// more of these behind circuit breakers.
type RemoteScorer interface {
	// ScoreRemote returns a similarity in [0, 1] or an error. Implementations
	// must bound their own latency (timeout on the underlying call).
	ScoreRemote(ctx context.Context, taskText, transcriptText string) (float64, error)

	// Name identifies the backend in logs and breaker state.
	Name() string
}

// Composite is the production [Scorer]: remote backends first, lexical
// fallback always. Safe for concurrent use.
type Composite struct {
	chain   *resilience.Chain[RemoteScorer]
	lexical *Lexical
}

// Ensure Composite satisfies Scorer at compile time.
var _ Scorer = (*Composite)(nil)

// NewComposite builds a [Composite] from a lexical fallback and zero or more
// remote backends, tried in the order given. With no remotes every score
// takes the fallback path.
func NewComposite(lexical *Lexical, cfg resilience.BreakerConfig, remotes ...RemoteScorer) *Composite {
	c := &Composite{lexical: lexical}
	for _, r := range remotes {
		if c.chain == nil {
			c.chain = resilience.NewChain(r.Name(), r, cfg)
			continue
		}
		c.chain.Add(r.Name(), r)
	}
	return c
}

// RemoteBreakers returns the circuit breaker guarding each remote backend,
// keyed by backend name. Empty when no remotes are configured.
func (c *Composite) RemoteBreakers() map[string]*resilience.Breaker {
	if c.chain == nil {
		return nil
	}
	return c.chain.Breakers()
}

// Score implements [Scorer]. Empty input short-circuits to zero without
// touching any backend.
func (c *Composite) Score(ctx context.Context, taskText, transcriptText string) Result {
	if taskText == "" || transcriptText == "" {
		return Result{Similarity: 0, Method: MethodFallback}
	}

	if c.chain != nil {
		sim, err := resilience.Run(c.chain, func(r RemoteScorer) (float64, error) {
			return r.ScoreRemote(ctx, taskText, transcriptText)
		})
		if err == nil {
			return Result{Similarity: clamp01(sim), Method: MethodRemote}
		}
		slog.Debug("similarity: remote scoring unavailable, using lexical fallback",
			"error", err,
		)
	}

	return c.lexical.Score(ctx, taskText, transcriptText)
}

// clamp01 bounds v to [0, 1]. Remote model output is advisory and is never
// trusted verbatim.
func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
