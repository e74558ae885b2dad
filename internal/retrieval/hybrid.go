package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// HybridRetriever merges vector similarity with keyword overlap over a
// bounded scan of the store.
type HybridRetriever struct {
	store     storage.Store
	logger    *observability.Logger
	scanLimit int
	weights   config.WeightsConfig
}

// NewHybridRetriever creates a retriever over store. scanLimit bounds the
// lexical scan (default 2000).
func NewHybridRetriever(store storage.Store, logger *observability.Logger, scanLimit int, weights config.WeightsConfig) *HybridRetriever {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if scanLimit <= 0 {
		scanLimit = 2000
	}
	return &HybridRetriever{
		store:     store,
		logger:    logger.WithComponent("hybrid_retriever"),
		scanLimit: scanLimit,
		weights:   weights,
	}
}

// Search returns up to topK results. The vector pass always runs; a failed
// vector query is returned as an error. When useHybrid is set and the text
// yields keywords, lexical matches are merged in: a chunk found by both
// passes scores vector + lexical*merge, a lexical-only chunk scores
// lexical*merge. A failed lexical scan degrades to vector-only results.
func (h *HybridRetriever) Search(ctx context.Context, embedding []float32, text string, topK int, useHybrid bool, filter storage.Filter) ([]storage.Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	vector, err := h.store.Query(ctx, embedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	var topScore float64
	if len(vector) > 0 {
		topScore = vector[0].Score
	}
	h.logger.Debug().
		Int("vector_results", len(vector)).
		Int("top_k", topK).
		Float64("top_score", topScore).
		Msg("Vector search complete")

	if !useHybrid || text == "" {
		return vector, nil
	}

	keywords := dedupe(ExtractKeywords(text))
	if len(keywords) == 0 {
		return vector, nil
	}

	lexical, err := h.lexicalSearch(ctx, keywords, 2*topK, filter)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Lexical search failed, using vector results only")
		return vector, nil
	}

	merged := h.merge(vector, lexical)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	h.logger.Debug().
		Strs("keywords", keywords).
		Int("lexical_results", len(lexical)).
		Int("merged_results", len(merged)).
		Msg("Hybrid search complete")

	return merged, nil
}

// lexicalSearch scores scanned chunks by the share of keywords they contain.
func (h *HybridRetriever) lexicalSearch(ctx context.Context, keywords []string, limit int, filter storage.Filter) ([]storage.Result, error) {
	scanned, err := h.store.Scan(ctx, h.scanLimit, filter)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	var out []storage.Result
	for _, r := range scanned {
		text := normalizeText(r.Text)
		matched := 0
		for _, k := range keywords {
			if strings.Contains(text, k) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(keywords)) * h.weights.LexicalMatch
		out = append(out, r.WithScore(score))
	}

	sortByScore(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *HybridRetriever) merge(vector, lexical []storage.Result) []storage.Result {
	merged := make([]storage.Result, len(vector), len(vector)+len(lexical))
	copy(merged, vector)

	index := make(map[string]int, len(vector))
	for i, r := range merged {
		index[r.ID] = i
	}

	for _, r := range lexical {
		boost := r.Score * h.weights.LexicalMerge
		if i, ok := index[r.ID]; ok {
			merged[i] = merged[i].WithScore(merged[i].Score + boost)
			continue
		}
		index[r.ID] = len(merged)
		merged = append(merged, r.WithScore(boost))
	}

	sortByScore(merged)
	return merged
}

// sortByScore orders results by descending score, keeping input order on ties.
func sortByScore(results []storage.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
