package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store with brute-force cosine search.
// Used for development, tests and small corpora.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]indexedChunk
}

type indexedChunk struct {
	chunk  Chunk
	vector []float32 // unit length
}

// NewMemoryStore creates an empty store. A non-positive dimension is
// detected from the first upserted chunk.
func NewMemoryStore(dimension int) *MemoryStore {
	if dimension < 0 {
		dimension = 0
	}
	return &MemoryStore{
		dimension: dimension,
		chunks:    make(map[string]indexedChunk),
	}
}

// Query finds the topK nearest chunks by cosine similarity.
func (s *MemoryStore) Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension > 0 && len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dimension, len(embedding))
	}

	query := normalizeVector(embedding)
	results := make([]Result, 0, len(s.chunks))
	for _, ic := range s.chunks {
		// Chunks stored without an embedding are only reachable by Scan.
		if len(ic.vector) != len(query) || !filter.Matches(ic.chunk.Metadata) {
			continue
		}
		// Both vectors are unit length, so the dot product is the similarity.
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(ic.vector[i])
		}
		results = append(results, ResultFromChunk(ic.chunk, dot))
	}

	return rankByScore(results, topK), nil
}

// Scan returns up to limit chunks ordered by id.
func (s *MemoryStore) Scan(ctx context.Context, limit int, filter Filter) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.chunks))
	for id, ic := range s.chunks {
		if filter.Matches(ic.chunk.Metadata) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		results = append(results, ResultFromChunk(s.chunks[id].chunk, 0))
	}
	s.mu.RUnlock()

	return results, nil
}

// Upsert inserts or replaces chunks.
func (s *MemoryStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		for _, c := range chunks {
			if len(c.Embedding) > 0 {
				s.dimension = len(c.Embedding)
				break
			}
		}
	}

	prepared, err := prepareChunks(chunks, s.dimension)
	if err != nil {
		return err
	}

	for _, c := range prepared {
		s.chunks[c.ID] = indexedChunk{
			chunk:  c,
			vector: normalizeVector(c.Embedding),
		}
	}
	return nil
}

// Delete removes chunks matching filter.
func (s *MemoryStore) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ic := range s.chunks {
		if filter.Matches(ic.chunk.Metadata) {
			delete(s.chunks, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
