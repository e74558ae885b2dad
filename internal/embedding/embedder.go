// Package embedding provides query and chunk embedding generation.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
)

// ErrEmptyInput is returned when asked to embed blank text.
var ErrEmptyInput = errors.New("cannot embed empty text")

// Embedder turns text into vectors.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector length produced by the model.
	Dimension() int

	// Model returns the model identifier.
	Model() string
}

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg)
	case "mock":
		return NewMockClient(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// l2normalize scales v to unit length in place.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
