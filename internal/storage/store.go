package storage

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
)

// Store is the vector store adapter consumed by retrieval.
type Store interface {
	// Query returns up to topK results ordered by descending cosine
	// similarity (1 - distance).
	Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Result, error)

	// Scan returns up to limit stored chunks in a stable order for the lexical
	// paths. Scores are zero.
	Scan(ctx context.Context, limit int, filter Filter) ([]Result, error)

	// Upsert inserts or replaces chunks by id.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Delete removes every chunk matching a non-empty filter and returns the
	// number removed.
	Delete(ctx context.Context, filter Filter) (int, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(cfg.Dimension), nil
	case "sqlite":
		return NewSQLiteStore(ctx, SQLiteOptions{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			JournalMode:  cfg.SQLite.JournalMode,
			Dimension:    cfg.Dimension,
		})
	case "pgvector":
		return NewPGVectorStore(ctx, PGVectorOptions{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			Dimension:       cfg.Dimension,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// prepareChunks normalizes and validates chunks at the store boundary.
func prepareChunks(chunks []Chunk, dimension int) ([]Chunk, error) {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		c = c.Normalize()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if dimension > 0 && len(c.Embedding) != dimension {
			return nil, fmt.Errorf("%w: expected %d, got %d for id %s",
				ErrDimensionMismatch, dimension, len(c.Embedding), c.ID)
		}
		out = append(out, c)
	}
	return out, nil
}

// cosineSimilarity returns dot(a,b)/(|a||b|), clamped to [-1, 1].
func cosineSimilarity(a, b []float32) float64 {
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
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

// normalizeVector returns a unit-length copy of v.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// rankByScore sorts descending by score, breaking ties by id, and truncates.
func rankByScore(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k >= 0 && k < len(results) {
		results = results[:k]
	}
	return results
}
