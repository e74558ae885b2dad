package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/ingest"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// maxIngestBody bounds a single ingestion upload.
const maxIngestBody = 64 << 20

// Ingester loads and removes chunks. *ingest.Pipeline implements it.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.IngestionRequest, progress func(done, total int)) (*ingest.IngestionResult, error)
	Purge(ctx context.Context, filter storage.Filter) (int, error)
}

// ChunkHandler handles ingestion-side chunk upserts and deletes.
type ChunkHandler struct {
	logger   *observability.Logger
	ingester Ingester
}

// NewChunkHandler creates a new chunk handler.
func NewChunkHandler(logger *observability.Logger, ingester Ingester) *ChunkHandler {
	return &ChunkHandler{logger: logger, ingester: ingester}
}

// DeleteResponseDTO reports a purge.
type DeleteResponseDTO struct {
	Removed int `json:"removed"`
}

// Upsert handles POST /api/v1/chunks. The body is a JSON array or JSON
// lines of chunk records; project_id, module_type and document_id query
// parameters scope records that do not set them.
func (h *ChunkHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid module_type", err.Error())
		return
	}

	records, err := ingest.DecodeRecords(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid records", err.Error())
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required", "")
		return
	}

	result, err := h.ingester.Ingest(ctx, ingest.IngestionRequest{
		Records:    records,
		ProjectID:  scope.ProjectID,
		ModuleType: scope.ModuleType,
		DocumentID: scope.DocumentID,
	}, nil)
	if err != nil {
		h.logger.WithContext(ctx).Error().Err(err).Msg("Ingestion failed")
		writeError(w, http.StatusInternalServerError, "ingestion failed", err.Error())
		return
	}

	status := http.StatusCreated
	if result.ChunksCreated == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// Delete handles DELETE /api/v1/chunks?document_id=&doc_name=&project_id=&module_type=.
func (h *ChunkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid module_type", err.Error())
		return
	}

	removed, err := h.ingester.Purge(r.Context(), filter)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyFilter) {
			writeError(w, http.StatusBadRequest, "at least one filter is required", "")
			return
		}
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Purge failed")
		writeError(w, http.StatusInternalServerError, "delete failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponseDTO{Removed: removed})
}

func filterFromQuery(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{
		DocumentID: q.Get("document_id"),
		DocName:    q.Get("doc_name"),
		ProjectID:  q.Get("project_id"),
		ModuleType: storage.ModuleType(q.Get("module_type")),
	}
	if !f.ModuleType.Valid() {
		return f, fmt.Errorf("unknown module type %q", f.ModuleType)
	}
	return f, nil
}
