// Package embedding provides text embedding via an OpenAI-compatible
// embedding service, plus a deterministic mock for tests.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
