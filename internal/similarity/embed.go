package similarity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/voxtask/voxtask/pkg/provider/embeddings"
)

const defaultEmbedTimeout = 5 * time.Second

// EmbeddingScorer is a secondary [RemoteScorer] that compares the two texts
// by cosine similarity of their embedding vectors. Cheaper and steadier than
// an LLM judgement, at the cost of not understanding negation ("I did not
// check the budget" embeds close to the task). It therefore sits behind the
// LLM scorer in the fallback chain rather than in front of it.
//
// Safe for concurrent use.
type EmbeddingScorer struct {
	provider embeddings.Provider
	timeout  time.Duration
}

// Ensure EmbeddingScorer satisfies RemoteScorer at compile time.
var _ RemoteScorer = (*EmbeddingScorer)(nil)

// NewEmbeddingScorer returns an [EmbeddingScorer] backed by provider.
// A non-positive timeout selects the 5s default.
func NewEmbeddingScorer(provider embeddings.Provider, timeout time.Duration) *EmbeddingScorer {
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	return &EmbeddingScorer{provider: provider, timeout: timeout}
}

// Name implements [RemoteScorer].
func (s *EmbeddingScorer) Name() string {
	return "embeddings/" + s.provider.ModelID()
}

// ScoreRemote implements [RemoteScorer]: one batch embedding call for both
// texts, cosine similarity mapped from [-1, 1] to [0, 1].
func (s *EmbeddingScorer) ScoreRemote(ctx context.Context, taskText, transcriptText string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vecs, err := s.provider.EmbedBatch(ctx, []string{taskText, transcriptText})
	if err != nil {
		return 0, fmt.Errorf("similarity: embed: %w", err)
	}
	if len(vecs) != 2 || len(vecs[0]) == 0 || len(vecs[0]) != len(vecs[1]) {
		return 0, fmt.Errorf("similarity: embed: malformed vectors (%d)", len(vecs))
	}

	cos, err := cosine(vecs[0], vecs[1])
	if err != nil {
		return 0, err
	}
	return clamp01((cos + 1) / 2), nil
}

// cosine computes the cosine similarity of two equal-length vectors.
func cosine(a, b []float32) (float64, error) {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("similarity: embed: zero-magnitude vector")
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
