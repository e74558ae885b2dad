package monitoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
)

// ErrDimensionMismatch is returned when the embedding model and the vector
// store disagree on vector length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Prober embeds a probe text. Satisfied by embedding.Embedder.
type Prober interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// EmbeddingGuard verifies at startup that the configured embedding model
// produces vectors the store can hold.
type EmbeddingGuard struct {
	logger         *observability.Logger
	storeDimension int
}

// NewEmbeddingGuard creates a guard for a store expecting storeDimension.
func NewEmbeddingGuard(logger *observability.Logger, storeDimension int) *EmbeddingGuard {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &EmbeddingGuard{logger: logger, storeDimension: storeDimension}
}

// Verify embeds a probe and compares its length with the store dimension.
// A zero store dimension adopts whatever the model produces.
func (g *EmbeddingGuard) Verify(ctx context.Context, p Prober) (int, error) {
	vec, err := p.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("embedding probe failed: %w", err)
	}

	got := len(vec)
	if g.storeDimension > 0 && got != g.storeDimension {
		g.logger.Error().
			Str("model", p.Model()).
			Int("model_dimension", got).
			Int("store_dimension", g.storeDimension).
			Msg("Embedding model does not match vector store")
		return got, fmt.Errorf("%w: model %s produces %d, store expects %d",
			ErrDimensionMismatch, p.Model(), got, g.storeDimension)
	}

	g.logger.Debug().
		Str("model", p.Model()).
		Int("dimension", got).
		Msg("Embedding guard passed")
	return got, nil
}
