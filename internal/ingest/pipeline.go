package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/embedding"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/monitoring"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// CacheInvalidator drops answers that may be stale after the store changed.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

// Pipeline embeds and stores chunk records.
type Pipeline struct {
	logger      *observability.Logger
	store       storage.Store
	embedder    embedding.Embedder
	audit       *monitoring.AuditLogger
	invalidator CacheInvalidator
	config      PipelineConfig
}

// PipelineConfig holds pipeline configuration.
type PipelineConfig struct {
	BatchSize int
}

// IngestionRequest is a batch of records with defaults applied to records
// that leave the scope fields empty.
type IngestionRequest struct {
	Records    []Record
	ProjectID  string
	ModuleType storage.ModuleType
	DocumentID string
}

// IngestionResult represents the result of an ingestion job.
type IngestionResult struct {
	JobID         uuid.UUID     `json:"job_id"`
	ChunksCreated int           `json:"chunks_created"`
	Duplicates    int           `json:"duplicates"`
	Skipped       int           `json:"skipped"`
	Documents     []string      `json:"documents"`
	Errors        []string      `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// NewPipeline creates a new ingestion pipeline. audit and invalidator may
// be nil.
func NewPipeline(
	logger *observability.Logger,
	cfg PipelineConfig,
	store storage.Store,
	embedder embedding.Embedder,
	audit *monitoring.AuditLogger,
	invalidator CacheInvalidator,
) *Pipeline {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Pipeline{
		logger:      logger.WithComponent("ingest"),
		store:       store,
		embedder:    embedder,
		audit:       audit,
		invalidator: invalidator,
		config:      cfg,
	}
}

// Ingest validates, embeds and upserts req.Records batch by batch.
// progress, when non-nil, receives the number of records handled so far.
// Invalid records are skipped and reported in the result; store and
// embedding failures abort the job.
func (p *Pipeline) Ingest(ctx context.Context, req IngestionRequest, progress func(done, total int)) (*IngestionResult, error) {
	start := time.Now()
	result := &IngestionResult{JobID: uuid.New()}

	log := p.logger.WithContext(ctx)
	log.Info().
		Str("job_id", result.JobID.String()).
		Int("records", len(req.Records)).
		Msg("Starting ingestion job")

	chunks := make([]storage.Chunk, 0, len(req.Records))
	seen := make(map[string]bool, len(req.Records))
	docs := make(map[string]bool)

	for i, rec := range req.Records {
		c, err := p.toChunk(rec, req)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		hash := ContentHash(c.Text)
		if seen[hash] {
			result.Duplicates++
			continue
		}
		seen[hash] = true
		docs[c.Metadata.DocName] = true
		chunks = append(chunks, c)
	}

	total := len(chunks)
	for off := 0; off < total; off += p.config.BatchSize {
		end := off + p.config.BatchSize
		if end > total {
			end = total
		}
		batch := chunks[off:end]

		if err := p.embedMissing(ctx, batch); err != nil {
			return result, err
		}
		if err := p.store.Upsert(ctx, batch); err != nil {
			return result, fmt.Errorf("upsert chunks %d-%d: %w", off, end, err)
		}
		result.ChunksCreated += len(batch)
		if progress != nil {
			progress(end, total)
		}
	}

	for name := range docs {
		result.Documents = append(result.Documents, name)
	}
	sort.Strings(result.Documents)

	if result.ChunksCreated > 0 {
		p.invalidate(ctx)
		if p.audit != nil {
			p.audit.LogIngestion(ctx, result.Documents, result.ChunksCreated)
		}
	}

	result.Duration = time.Since(start)
	log.Info().
		Str("job_id", result.JobID.String()).
		Int("chunks_created", result.ChunksCreated).
		Int("duplicates", result.Duplicates).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Ingestion job completed")

	return result, nil
}

// Purge deletes every chunk matching filter and returns the count removed.
func (p *Pipeline) Purge(ctx context.Context, filter storage.Filter) (int, error) {
	removed, err := p.store.Delete(ctx, filter)
	if err != nil {
		return 0, err
	}

	p.logger.WithContext(ctx).Info().
		Str("filter", filter.Key()).
		Int("removed", removed).
		Msg("Purged chunks")

	if removed > 0 {
		p.invalidate(ctx)
	}
	if p.audit != nil {
		p.audit.LogPurge(ctx, filterFields(filter), removed)
	}
	return removed, nil
}

func (p *Pipeline) toChunk(rec Record, req IngestionRequest) (storage.Chunk, error) {
	meta := rec.Metadata
	if meta.ProjectID == "" {
		meta.ProjectID = req.ProjectID
	}
	if meta.ModuleType == "" {
		meta.ModuleType = req.ModuleType
	}
	if meta.DocumentID == "" {
		meta.DocumentID = req.DocumentID
	}
	if strings.TrimSpace(meta.DocName) == "" {
		return storage.Chunk{}, fmt.Errorf("%w: missing doc_name", storage.ErrInvalidChunk)
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewString()
	}

	c := storage.Chunk{
		ID:        id,
		Text:      rec.ChunkText(),
		Embedding: rec.Embedding,
		Metadata:  meta,
	}.Normalize()
	if err := c.Validate(); err != nil {
		return storage.Chunk{}, err
	}
	return c, nil
}

func (p *Pipeline) embedMissing(ctx context.Context, batch []storage.Chunk) error {
	var (
		idx   []int
		texts []string
	)
	for i, c := range batch {
		if len(c.Embedding) == 0 {
			idx = append(idx, i)
			texts = append(texts, c.Text)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	if p.embedder == nil {
		return fmt.Errorf("%d chunks have no embedding and no embedder is configured", len(texts))
	}

	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embed chunks: expected %d vectors, got %d", len(texts), len(vecs))
	}
	for j, i := range idx {
		batch[i].Embedding = vecs[j]
	}
	return nil
}

func (p *Pipeline) invalidate(ctx context.Context) {
	if p.invalidator == nil {
		return
	}
	if err := p.invalidator.InvalidateCache(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to invalidate answer cache")
	}
}

func filterFields(f storage.Filter) map[string]string {
	out := make(map[string]string)
	if f.ProjectID != "" {
		out["project_id"] = f.ProjectID
	}
	if f.ModuleType != "" {
		out["module_type"] = string(f.ModuleType)
	}
	if f.DocumentID != "" {
		out["document_id"] = f.DocumentID
	}
	if f.DocName != "" {
		out["doc_name"] = f.DocName
	}
	return out
}
