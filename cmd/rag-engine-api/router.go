// Package main provides the API router setup.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cew-ai/assistant/libs/rag-engine/cmd/rag-engine-api/handlers"
	"github.com/cew-ai/assistant/libs/rag-engine/cmd/rag-engine-api/middleware"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/app"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
)

// RouterConfig holds router settings.
type RouterConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	StoreDriver    string
}

// NewRouter creates the API router over the shared services.
func NewRouter(logger *observability.Logger, svc *app.Services, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	queryHandler := handlers.NewQueryHandler(logger, svc.Engine, svc.Batch)
	chunkHandler := handlers.NewChunkHandler(logger, svc.Pipeline)
	statsHandler := handlers.NewStatsHandler(logger, svc.Store, cfg.StoreDriver)

	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
			r.Post("/query", queryHandler.Query)
			r.Get("/stats", statsHandler.Stats)
			r.Delete("/chunks", chunkHandler.Delete)
		})

		// Batches and uploads run longer than a single question.
		r.Post("/query/batch", queryHandler.Batch)
		r.Post("/chunks", chunkHandler.Upsert)
	})

	return r
}
