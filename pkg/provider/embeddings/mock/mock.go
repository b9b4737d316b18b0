// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxtask/voxtask/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
//
// Vectors returns a fixed embedding per input text; unknown texts receive
// the Default vector. Set Err to inject failures.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to the vector returned for it.
	Vectors map[string][]float32

	// Default is returned for texts not present in Vectors.
	Default []float32

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// Dims is returned by Dimensions. Defaults to 4.
	Dims int

	// EmbedBatchCalls records the texts slices passed to EmbedBatch.
	EmbedBatchCalls [][]string
}

// Embed returns the configured vector for text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vectorFor(text), nil
}

// EmbedBatch returns configured vectors for each text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	recorded := make([]string, len(texts))
	copy(recorded, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, recorded)

	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectorFor(t)
	}
	return out, nil
}

// Dimensions returns Dims, or 4 when unset.
func (p *Provider) Dimensions() int {
	if p.Dims == 0 {
		return 4
	}
	return p.Dims
}

// ModelID returns a fixed identifier.
func (p *Provider) ModelID() string { return "mock-embeddings" }

// vectorFor must be called with p.mu held.
func (p *Provider) vectorFor(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return v
	}
	return p.Default
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
