// Package embeddings defines the Provider interface for vector embedding
// backends used by the embedding-based similarity scorer.
//
// A provider maps text strings to dense float32 vectors. All vectors from a
// single Provider instance share the same dimensionality; callers must not
// mix vectors from different instances in one similarity computation.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns
	// a float32 slice of length Dimensions() or an error if the request
	// fails or ctx is cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in a single provider
	// call. The returned slice has the same length as texts and the i-th
	// element corresponds to texts[i]. Partial results are not returned;
	// on error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider, constant for the instance's lifetime.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging.
	ModelID() string
}
