package handlers

import (
	"context"
	"net/http"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
)

// Counter reports the number of stored chunks.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// StatsHandler reports store statistics and health.
type StatsHandler struct {
	logger  *observability.Logger
	counter Counter
	driver  string
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(logger *observability.Logger, counter Counter, driver string) *StatsHandler {
	return &StatsHandler{logger: logger, counter: counter, driver: driver}
}

// StatsResponseDTO is the stats body.
type StatsResponseDTO struct {
	Chunks int    `json:"chunks"`
	Store  string `json:"store"`
}

// Stats handles GET /api/v1/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	n, err := h.counter.Count(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Count failed")
		writeError(w, http.StatusInternalServerError, "stats unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatsResponseDTO{Chunks: n, Store: h.driver})
}

// Health handles GET /health. The store must answer a count for the
// service to report healthy.
func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.counter.Count(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "rag-engine",
	})
}
