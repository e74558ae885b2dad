package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/cache"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

func newTestCache(t *testing.T) (*ResponseCache, *cache.MemoryClient) {
	t.Helper()
	client := cache.NewMemoryClient(100)
	t.Cleanup(func() { client.Close() })
	return NewResponseCache(client, nil, DefaultResponseCacheConfig()), client
}

func answered(text, source string) *QueryResponse {
	return &QueryResponse{
		Answer: text,
		Source: &source,
		Meta:   QueryMeta{Language: LanguageEnglish, Class: ClassNormal},
	}
}

func TestResponseCache_SetGet(t *testing.T) {
	rc, _ := newTestCache(t)
	ctx := context.Background()
	req := QueryRequest{Question: "What is the panel brand?"}

	_, ok := rc.Get(ctx, req)
	assert.False(t, ok)

	require.NoError(t, rc.Set(ctx, req, answered("Jinko [Source: bom.xlsx]", "bom.xlsx")))

	got, ok := rc.Get(ctx, req)
	require.True(t, ok)
	assert.Equal(t, "Jinko [Source: bom.xlsx]", got.Answer)
	require.NotNil(t, got.Source)
	assert.Equal(t, "bom.xlsx", *got.Source)
	assert.True(t, got.Meta.Cached)
	assert.Equal(t, LanguageEnglish, got.Meta.Language)
	assert.Equal(t, ClassNormal, got.Meta.Class)
}

func TestResponseCache_SkipsFallbackAndErrors(t *testing.T) {
	rc, client := newTestCache(t)
	ctx := context.Background()

	fallback := &QueryResponse{Answer: FallbackMessage(LanguageEnglish), Meta: QueryMeta{Fallback: true}}
	failed := &QueryResponse{Answer: "Error generating answer: timeout", Meta: QueryMeta{Error: true}}

	require.NoError(t, rc.Set(ctx, QueryRequest{Question: "a"}, fallback))
	require.NoError(t, rc.Set(ctx, QueryRequest{Question: "b"}, failed))
	require.NoError(t, rc.Set(ctx, QueryRequest{Question: "c"}, nil))
	assert.Zero(t, client.Len())
}

func TestResponseCache_Keys(t *testing.T) {
	rc, _ := newTestCache(t)

	base := rc.CacheKey(QueryRequest{Question: "What is the panel brand?"})
	assert.Equal(t, base, rc.CacheKey(QueryRequest{Question: "  what is the PANEL brand?  "}))
	assert.Regexp(t, `^answer:[0-9a-f]{32}$`, base)

	assert.NotEqual(t, base, rc.CacheKey(QueryRequest{Question: "What is the inverter brand?"}))
	assert.NotEqual(t, base, rc.CacheKey(QueryRequest{Question: "What is the panel brand?", ProjectID: "p1"}))
	assert.NotEqual(t,
		rc.CacheKey(QueryRequest{Question: "q", ProjectID: "p1"}),
		rc.CacheKey(QueryRequest{Question: "q", DocumentID: "p1"}))
	assert.NotEqual(t,
		rc.CacheKey(QueryRequest{Question: "q", ModuleType: storage.ModulePanel}),
		rc.CacheKey(QueryRequest{Question: "q"}))
}

func TestResponseCache_Invalidate(t *testing.T) {
	rc, client := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "other:key", []byte("x"), time.Minute))
	require.NoError(t, rc.Set(ctx, QueryRequest{Question: "a"}, answered("A", "a.pdf")))
	require.NoError(t, rc.Set(ctx, QueryRequest{Question: "b"}, answered("B", "b.pdf")))
	require.Equal(t, 3, client.Len())

	require.NoError(t, rc.Invalidate(ctx))
	_, ok := rc.Get(ctx, QueryRequest{Question: "a"})
	assert.False(t, ok)
	assert.Equal(t, 1, client.Len())
}

func TestResponseCache_Disabled(t *testing.T) {
	ctx := context.Background()
	req := QueryRequest{Question: "a"}

	nilClient := NewResponseCache(nil, nil, DefaultResponseCacheConfig())
	require.NoError(t, nilClient.Set(ctx, req, answered("A", "a.pdf")))
	_, ok := nilClient.Get(ctx, req)
	assert.False(t, ok)
	assert.NoError(t, nilClient.Invalidate(ctx))

	client := cache.NewMemoryClient(10)
	t.Cleanup(func() { client.Close() })
	cfg := DefaultResponseCacheConfig()
	cfg.Enabled = false
	off := NewResponseCache(client, nil, cfg)
	require.NoError(t, off.Set(ctx, req, answered("A", "a.pdf")))
	assert.Zero(t, client.Len())
}

func TestResponseCache_NilReceiver(t *testing.T) {
	var rc *ResponseCache
	_, ok := rc.get(context.Background(), QueryRequest{Question: "a"})
	assert.False(t, ok)
	assert.NoError(t, rc.set(context.Background(), QueryRequest{Question: "a"}, answered("A", "a.pdf")))
}
