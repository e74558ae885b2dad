// Package retrieval implements the bilingual question answering pipeline:
// hybrid retrieval, lexical augmentation, chunk selection, deterministic
// aggregation and grounded answer generation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/embedding"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/llm"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/monitoring"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

var (
	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("question is required")
	// ErrInvalidFilter indicates an unknown module type in the request filter.
	ErrInvalidFilter = errors.New("invalid query filter")
)

// QueryRequest is the inbound query.
type QueryRequest struct {
	Question   string             `json:"question"`
	ProjectID  string             `json:"project_id,omitempty"`
	ModuleType storage.ModuleType `json:"module_type,omitempty"`
	DocumentID string             `json:"document_id,omitempty"`
}

// Filter returns the store filter for the request.
func (r QueryRequest) Filter() storage.Filter {
	return storage.Filter{
		ProjectID:  r.ProjectID,
		ModuleType: r.ModuleType,
		DocumentID: r.DocumentID,
	}
}

// QueryResponse is the answer and its source. Source is nil when no single
// document applies.
type QueryResponse struct {
	Answer string    `json:"answer"`
	Source *string   `json:"source"`
	Meta   QueryMeta `json:"-"`
}

// QueryMeta describes how an answer was produced.
type QueryMeta struct {
	Language   Language
	Class      QueryClass
	Intents    []string
	Retrieved  int
	Selected   int
	Aggregated bool
	Fallback   bool
	Cached     bool
	Error      bool
	Latency    time.Duration
}

// Dependencies are the collaborators of an Engine. Store, Embedder and
// Completer are required.
type Dependencies struct {
	Store     storage.Store
	Embedder  embedding.Embedder
	Completer llm.Completer
	Intents   *Intents
	Cache     *ResponseCache
	Audit     *monitoring.AuditLogger
	Logger    *observability.Logger
}

// Engine answers questions against the chunk store.
type Engine struct {
	store      storage.Store
	embedder   embedding.Embedder
	completer  llm.Completer
	cache      *ResponseCache
	audit      *monitoring.AuditLogger
	logger     *observability.Logger
	config     config.RetrievalConfig
	classifier *Classifier
	hybrid     *HybridRetriever
	augmenter  *Augmenter
	selector   *Selector
	aggregator *Aggregator
	post       *PostProcessor
}

// NewEngine wires the pipeline components from deps and cfg.
func NewEngine(deps Dependencies, cfg config.RetrievalConfig) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("engine requires an embedder")
	}
	if deps.Completer == nil {
		return nil, fmt.Errorf("engine requires a completer")
	}

	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	in := deps.Intents
	if in == nil {
		in = DefaultIntents()
	}
	audit := deps.Audit
	if audit == nil {
		audit = monitoring.NewAuditLogger(logger, nil, "")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 60
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 12
	}

	return &Engine{
		store:      deps.Store,
		embedder:   deps.Embedder,
		completer:  deps.Completer,
		cache:      deps.Cache,
		audit:      audit,
		logger:     logger.WithComponent("engine"),
		config:     cfg,
		classifier: NewClassifier(in),
		hybrid:     NewHybridRetriever(deps.Store, logger, cfg.ScanLimit, cfg.Weights),
		augmenter:  NewAugmenter(deps.Store, in, logger, cfg.AugmentScanLimit, cfg.Weights.AugmentedScore),
		selector:   NewSelector(in, cfg.Weights, logger),
		aggregator: NewAggregator(in, logger),
		post:       NewPostProcessor(),
	}, nil
}

// Query answers req. Dependency failures are reported in the answer text;
// the returned error is reserved for invalid requests.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, ErrEmptyQuestion
	}
	if !req.ModuleType.Valid() {
		return nil, fmt.Errorf("%w: unknown module type %q", ErrInvalidFilter, req.ModuleType)
	}

	log := e.logger.WithContext(ctx).WithOperation("query")
	qc := e.classifier.Analyze(req.Question)

	var resp *QueryResponse
	if cached, ok := e.cache.get(ctx, req); ok {
		resp = cached
	} else {
		resp = e.answer(ctx, log, qc, req.Filter())
		resp.Meta.Language = qc.Language
		resp.Meta.Class = qc.Class
		if err := e.cache.set(ctx, req, resp); err != nil {
			log.Warn().Err(err).Msg("Failed to cache answer")
		}
	}
	resp.Meta.Intents = qc.DomainIntents()
	resp.Meta.Latency = time.Since(start)

	e.audit.LogQuery(ctx, monitoring.QueryEvent{
		Question:   req.Question,
		Language:   string(qc.Language),
		Intent:     string(qc.Class),
		Retrieved:  resp.Meta.Retrieved,
		Selected:   resp.Meta.Selected,
		Aggregated: resp.Meta.Aggregated,
		Fallback:   resp.Meta.Fallback,
		Cached:     resp.Meta.Cached,
		Error:      errorText(resp),
		Latency:    resp.Meta.Latency,
	})

	log.Info().
		Str("language", string(qc.Language)).
		Str("class", string(qc.Class)).
		Int("retrieved", resp.Meta.Retrieved).
		Int("selected", resp.Meta.Selected).
		Bool("aggregated", resp.Meta.Aggregated).
		Bool("fallback", resp.Meta.Fallback).
		Bool("cached", resp.Meta.Cached).
		Dur("latency", resp.Meta.Latency).
		Msg("Query answered")

	return resp, nil
}

func (e *Engine) answer(ctx context.Context, log *observability.Logger, qc QueryContext, filter storage.Filter) *QueryResponse {
	vec, err := e.embedder.Embed(ctx, qc.Question)
	if err != nil {
		log.Error().Err(err).Msg("Embedding failed")
		return &QueryResponse{
			Answer: "Error generating embedding: " + err.Error(),
			Meta:   QueryMeta{Error: true},
		}
	}

	results, err := e.hybrid.Search(ctx, vec, qc.Question, e.config.TopK, e.config.UseHybrid, filter)
	if err != nil {
		log.Warn().Err(err).Msg("Vector search failed, answering without context")
		results = nil
	}

	relevant := make([]storage.Result, 0, len(results))
	for _, r := range results {
		if r.Score >= e.config.SimilarityThreshold {
			relevant = append(relevant, r)
		}
	}
	log.Debug().Int("retrieved", len(results)).Int("relevant", len(relevant)).Msg("Retrieval complete")

	if len(relevant) == 0 {
		return &QueryResponse{
			Answer: FallbackMessage(qc.Language),
			Meta:   QueryMeta{Fallback: true},
		}
	}

	candidates := e.augmenter.Augment(ctx, relevant, qc.Question, filter)
	selection := e.selector.Select(qc, candidates, e.config.MaxChunks, e.config.PreferredKeywordChunks)
	meta := QueryMeta{Retrieved: len(relevant), Selected: len(selection)}

	if agg, ok := e.aggregator.TryAggregate(qc, candidates); ok {
		sources := make([]storage.Result, 0, len(agg.Sources)+len(selection))
		sources = append(sources, agg.Sources...)
		sources = append(sources, selection...)
		ans := e.post.Process(agg.Answer(qc.Language), qc.Language, sources)
		meta.Aggregated = true
		meta.Fallback = ans.Fallback
		return &QueryResponse{Answer: ans.Text, Source: ans.Source, Meta: meta}
	}

	raw, err := e.completer.Complete(ctx, SystemPrompt(qc.Language), UserPrompt(qc.Question, BuildContext(selection)))
	if err != nil {
		log.Error().Err(err).Str("model", e.completer.Model()).Msg("Completion failed")
		meta.Error = true
		return &QueryResponse{Answer: "Error generating answer: " + err.Error(), Meta: meta}
	}

	ans := e.post.Process(raw, qc.Language, selection)
	meta.Fallback = ans.Fallback
	return &QueryResponse{Answer: ans.Text, Source: ans.Source, Meta: meta}
}

// InvalidateCache drops cached answers after the store changed.
func (e *Engine) InvalidateCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Invalidate(ctx)
}

func (c *ResponseCache) get(ctx context.Context, req QueryRequest) (*QueryResponse, bool) {
	if c == nil {
		return nil, false
	}
	return c.Get(ctx, req)
}

func (c *ResponseCache) set(ctx context.Context, req QueryRequest, resp *QueryResponse) error {
	if c == nil {
		return nil
	}
	return c.Set(ctx, req, resp)
}

func errorText(resp *QueryResponse) string {
	if !resp.Meta.Error {
		return ""
	}
	return resp.Answer
}
