// Package handlers provides HTTP handlers for the RAG engine API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/retrieval"
)

// maxBatchSize bounds the questions accepted by one batch request.
const maxBatchSize = 100

// Querier answers one question.
type Querier interface {
	Query(ctx context.Context, req retrieval.QueryRequest) (*retrieval.QueryResponse, error)
}

// BatchRunner answers several questions.
type BatchRunner interface {
	Process(ctx context.Context, reqs []retrieval.QueryRequest, progress func(done, total int)) ([]retrieval.BatchResult, error)
}

// QueryHandler handles question answering requests.
type QueryHandler struct {
	logger  *observability.Logger
	querier Querier
	batch   BatchRunner
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(logger *observability.Logger, querier Querier, batch BatchRunner) *QueryHandler {
	return &QueryHandler{
		logger:  logger,
		querier: querier,
		batch:   batch,
	}
}

// QueryResponseDTO is the answer body. Source is null when no single
// document supports the answer.
type QueryResponseDTO struct {
	Answer string  `json:"answer"`
	Source *string `json:"source"`
}

// BatchRequestDTO carries several questions.
type BatchRequestDTO struct {
	Queries []retrieval.QueryRequest `json:"queries"`
}

// BatchItemDTO is one batch answer, in request order.
type BatchItemDTO struct {
	Index      int     `json:"index"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer,omitempty"`
	Source     *string `json:"source"`
	Error      string  `json:"error,omitempty"`
	DurationMs int64   `json:"duration_ms"`
}

// BatchResponseDTO is the batch body.
type BatchResponseDTO struct {
	Results []BatchItemDTO `json:"results"`
}

// Query handles POST /api/v1/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req retrieval.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	resp, err := h.querier.Query(r.Context(), req)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponseDTO{Answer: resp.Answer, Source: resp.Source})
}

// Batch handles POST /api/v1/query/batch.
func (h *QueryHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(body.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries is required", "")
		return
	}
	if len(body.Queries) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "too many queries", "")
		return
	}

	results, err := h.batch.Process(r.Context(), body.Queries, nil)
	if err != nil {
		h.logger.WithContext(r.Context()).Warn().Err(err).Msg("Batch interrupted")
	}

	out := BatchResponseDTO{Results: make([]BatchItemDTO, len(results))}
	for i, res := range results {
		item := BatchItemDTO{
			Index:      res.Index,
			Question:   res.Request.Question,
			DurationMs: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		} else if res.Response != nil {
			item.Answer = res.Response.Answer
			item.Source = res.Response.Source
		}
		out.Results[i] = item
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *QueryHandler) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "question is required", "")
	case errors.Is(err, retrieval.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, "invalid filter", err.Error())
	default:
		h.logger.Error().Err(err).Msg("Query failed")
		writeError(w, http.StatusInternalServerError, "query failed", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["details"] = detail
	}
	writeJSON(w, status, resp)
}
