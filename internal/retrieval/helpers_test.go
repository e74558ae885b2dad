package retrieval

import (
	"context"
	"errors"
	"sync"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

var errStoreDown = errors.New("store unavailable")

// stubStore returns canned query and scan results.
type stubStore struct {
	mu        sync.Mutex
	query     []storage.Result
	scan      []storage.Result
	queryErr  error
	scanErr   error
	scanPanic bool
	scans     int
}

func (s *stubStore) Query(_ context.Context, _ []float32, topK int, _ storage.Filter) ([]storage.Result, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := append([]storage.Result(nil), s.query...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *stubStore) Scan(_ context.Context, limit int, _ storage.Filter) ([]storage.Result, error) {
	s.mu.Lock()
	s.scans++
	s.mu.Unlock()
	if s.scanPanic {
		panic("corrupt row")
	}
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	out := append([]storage.Result(nil), s.scan...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) Upsert(context.Context, []storage.Chunk) error       { return nil }
func (s *stubStore) Delete(context.Context, storage.Filter) (int, error) { return 0, nil }
func (s *stubStore) Count(context.Context) (int, error)                  { return len(s.scan), nil }
func (s *stubStore) Close() error                                        { return nil }

func result(id, doc string, score float64, text string) storage.Result {
	return storage.ResultFromChunk(storage.Chunk{
		ID:       id,
		Text:     text,
		Metadata: storage.ChunkMetadata{DocName: doc},
	}, score)
}

func sheetResult(id, doc, sheet string, score float64, text string) storage.Result {
	return storage.ResultFromChunk(storage.Chunk{
		ID:       id,
		Text:     text,
		Metadata: storage.ChunkMetadata{DocName: doc, Sheet: sheet},
	}, score)
}

func pageResult(id, doc string, page int, score float64, text string) storage.Result {
	return storage.ResultFromChunk(storage.Chunk{
		ID:       id,
		Text:     text,
		Metadata: storage.ChunkMetadata{DocName: doc, Page: page},
	}, score)
}

func resultIDs(results []storage.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func testWeights() config.WeightsConfig {
	return config.DefaultConfig().Retrieval.Weights
}
