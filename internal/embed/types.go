// Package embed maps text to fixed-dimension vectors.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for one embedding request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultEmbeddingCacheSize is the default number of cached embeddings.
	DefaultEmbeddingCacheSize = 4096
)

var (
	// ErrDimensionMismatch is returned when an embedder produces vectors of a
	// different size than the configured index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrClosed is returned by a closed embedder.
	ErrClosed = errors.New("embedder is closed")
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Verify checks that e produces vectors of the configured size.
// A mismatch is a fatal configuration error: the index would mix spaces.
func Verify(ctx context.Context, e Embedder, dims int) error {
	if e.Dimensions() != dims {
		return fmt.Errorf("%w: embedder %s has %d dimensions, index configured for %d",
			ErrDimensionMismatch, e.ModelName(), e.Dimensions(), dims)
	}
	vec, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probe embedding failed: %w", err)
	}
	if len(vec) != dims {
		return fmt.Errorf("%w: embedder %s returned %d values, index configured for %d",
			ErrDimensionMismatch, e.ModelName(), len(vec), dims)
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length, or zero vectors, score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
