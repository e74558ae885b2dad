// Package app constructs the engine and its collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/cache"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/embedding"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/ingest"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/llm"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/monitoring"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/retrieval"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// Services holds the long-lived components shared by the API and the CLI.
type Services struct {
	Config   *config.Config
	Logger   *observability.Logger
	Store    storage.Store
	Cache    cache.Backend
	Embedder embedding.Embedder
	Engine   *retrieval.Engine
	Batch    *retrieval.BatchProcessor
	Pipeline *ingest.Pipeline
	Audit    *monitoring.AuditLogger
}

// Options overrides collaborators, mainly for tests. Nil fields are built
// from the configuration.
type Options struct {
	Store     storage.Store
	Cache     cache.Backend
	Embedder  embedding.Embedder
	Completer llm.Completer
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config, service string) *observability.Logger {
	name := cfg.Observability.ServiceName
	if name == "" {
		name = service
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: name,
	})
}

// New wires every component. The caller owns the returned Services and must
// Close it.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (*Services, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Services{Config: cfg, Logger: logger}

	var err error
	s.Embedder = opts.Embedder
	if s.Embedder == nil {
		if s.Embedder, err = embedding.New(cfg.Embedding); err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}

	completer := opts.Completer
	if completer == nil {
		if completer, err = llm.New(ctx, cfg.LLM); err != nil {
			return nil, fmt.Errorf("create completer: %w", err)
		}
	}

	s.Store = opts.Store
	if s.Store == nil {
		guard := monitoring.NewEmbeddingGuard(logger, cfg.Store.Dimension)
		dim, err := guard.Verify(ctx, s.Embedder)
		if err != nil {
			return nil, err
		}
		storeCfg := cfg.Store
		storeCfg.Dimension = dim
		if s.Store, err = storage.Open(ctx, storeCfg); err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
		}
	}

	s.Cache = opts.Cache
	if s.Cache == nil {
		if s.Cache, err = cache.Open(ctx, cfg.Cache); err != nil {
			s.Store.Close()
			return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Driver, err)
		}
	}

	intents := retrieval.DefaultIntents()
	if cfg.Retrieval.IntentsPath != "" {
		if intents, err = retrieval.LoadIntents(cfg.Retrieval.IntentsPath); err != nil {
			s.Close()
			return nil, fmt.Errorf("load intents: %w", err)
		}
	}

	var publisher cache.Publisher
	if cfg.Audit.Enabled {
		publisher = s.Cache
	}
	s.Audit = monitoring.NewAuditLogger(logger, publisher, cfg.Audit.Channel)

	cacheCfg := retrieval.DefaultResponseCacheConfig()
	cacheCfg.TTL = cfg.Cache.TTL
	cacheCfg.Enabled = cfg.Cache.Driver != "none"

	s.Engine, err = retrieval.NewEngine(retrieval.Dependencies{
		Store:     s.Store,
		Embedder:  s.Embedder,
		Completer: completer,
		Intents:   intents,
		Cache:     retrieval.NewResponseCache(s.Cache, logger, cacheCfg),
		Audit:     s.Audit,
		Logger:    logger,
	}, cfg.Retrieval)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	s.Batch = retrieval.NewBatchProcessor(s.Engine, cfg.Retrieval.BatchWorkers, cfg.Retrieval.BatchTimeout)
	s.Pipeline = ingest.NewPipeline(logger, ingest.PipelineConfig{BatchSize: cfg.Embedding.BatchSize},
		s.Store, s.Embedder, s.Audit, s.Engine)

	logger.Info().
		Str("store", cfg.Store.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("embedding_model", s.Embedder.Model()).
		Str("llm_model", completer.Model()).
		Msg("Services initialised")

	return s, nil
}

// Close releases the store and cache connections.
func (s *Services) Close() error {
	var errs []error
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
