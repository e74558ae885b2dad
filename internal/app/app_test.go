package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/ingest"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/llm"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/monitoring"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/retrieval"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

func mockConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "memory"
	cfg.Store.Dimension = 32
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 32
	cfg.Cache.Driver = "memory"
	return cfg
}

func staticCompleter(answer string) llm.Completer {
	return llm.CompleterFunc(func(context.Context, string, string) (string, error) {
		return answer, nil
	})
}

func TestNew_WiresIngestAndQuery(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, mockConfig(), nil, Options{Completer: staticCompleter("The panel brand is Jinko.")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	res, err := s.Pipeline.Ingest(ctx, ingest.IngestionRequest{
		ProjectID: "p1",
		Records: []ingest.Record{{
			Metadata: storage.ChunkMetadata{DocName: "bom.xlsx", Sheet: "BOM"},
			Fields:   []storage.Field{{Key: "Equipment", Value: "Panel"}, {Key: "Brand", Value: "Jinko"}},
		}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksCreated)

	n, err := s.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp, err := s.Engine.Query(ctx, retrieval.QueryRequest{Question: "What is the panel brand?", ProjectID: "p1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Source)
	assert.Equal(t, "bom.xlsx (Sheet: BOM)", *resp.Source)

	again, err := s.Engine.Query(ctx, retrieval.QueryRequest{Question: "What is the panel brand?", ProjectID: "p1"})
	require.NoError(t, err)
	assert.True(t, again.Meta.Cached)
}

func TestNew_DimensionMismatch(t *testing.T) {
	cfg := mockConfig()
	cfg.Store.Dimension = 64

	_, err := New(context.Background(), cfg, nil, Options{Completer: staticCompleter("x")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, monitoring.ErrDimensionMismatch))
}

func TestNew_UnknownProviders(t *testing.T) {
	cfg := mockConfig()
	cfg.Embedding.Provider = "word2vec"
	_, err := New(context.Background(), cfg, nil, Options{Completer: staticCompleter("x")})
	assert.ErrorContains(t, err, "create embedder")

	cfg = mockConfig()
	cfg.Cache.Driver = "memcached"
	_, err = New(context.Background(), cfg, nil, Options{Completer: staticCompleter("x")})
	assert.ErrorContains(t, err, "open memcached cache")

	cfg = mockConfig()
	cfg.Retrieval.IntentsPath = "does-not-exist.yaml"
	_, err = New(context.Background(), cfg, nil, Options{Completer: staticCompleter("x")})
	assert.ErrorContains(t, err, "load intents")
}
