package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/embedding"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateCache(context.Context) error {
	c.calls++
	return nil
}

type failingEmbedder struct {
	embedding.Embedder
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}

func TestDecodeRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"array", `[{"text":"a","metadata":{"doc_name":"a.pdf"}},{"text":"b","metadata":{"doc_name":"b.pdf"}}]`, 2},
		{"json lines", "{\"text\":\"a\",\"metadata\":{\"doc_name\":\"a.pdf\"}}\n\n{\"text\":\"b\",\"metadata\":{\"doc_name\":\"b.pdf\"}}\n", 2},
		{"empty", "  \n", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			records, err := DecodeRecords(strings.NewReader(tc.input))
			require.NoError(t, err)
			assert.Len(t, records, tc.want)
		})
	}

	_, err := DecodeRecords(strings.NewReader("{\"text\":\"a\"}\n{broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestRecordChunkText(t *testing.T) {
	row := Record{
		Metadata: storage.ChunkMetadata{DocName: "bom.xlsx", Sheet: "BOM", RowNum: 2},
		Fields:   []storage.Field{{Key: "Brand", Value: "Jinko"}, {Key: "Power", Value: "580W"}},
	}
	assert.Equal(t, "SOURCE: bom.xlsx | SHEET: BOM | ROW: 2 | DATA: Brand: Jinko, Power: 580W", row.ChunkText())

	page := Record{
		Metadata: storage.ChunkMetadata{DocName: "lemp.pdf", Page: 7},
		Content:  "  Bat boxes are fixed to mature trees. ",
	}
	assert.Equal(t, "SOURCE: lemp.pdf | PAGE: 7 | CONTENT:\nBat boxes are fixed to mature trees.", page.ChunkText())

	explicit := Record{Text: "verbatim", Content: "ignored"}
	assert.Equal(t, "verbatim", explicit.ChunkText())

	origin := storage.ParseOrigin(row.ChunkText(), "")
	assert.Equal(t, storage.OriginTabular, origin.Kind())
}

func TestPipeline_Ingest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(16)
	inv := &countingInvalidator{}
	p := NewPipeline(nil, PipelineConfig{BatchSize: 2}, store, embedding.NewMockClient(16), nil, inv)

	records := []Record{
		{ID: "bom-1", Text: "SOURCE: bom.xlsx | SHEET: BOM | DATA: Brand: Jinko, Power: 580W", Metadata: storage.ChunkMetadata{DocName: "bom.xlsx", Sheet: "BOM"}},
		{Text: "SOURCE: lemp.pdf | PAGE: 7 | CONTENT:\nBat boxes are fixed to mature trees.", Metadata: storage.ChunkMetadata{DocName: "lemp.pdf", Page: 7}},
		{Text: "SOURCE: lemp.pdf | PAGE: 7 | CONTENT:\nBat boxes are fixed to mature trees.", Metadata: storage.ChunkMetadata{DocName: "lemp.pdf", Page: 7}},
		{Text: "no document name"},
		{Text: "SOURCE: sld.pdf | PAGE: 3 | CONTENT:\nMV cable 3x240 mm2.", Metadata: storage.ChunkMetadata{DocName: "sld.pdf", Page: 3}},
	}

	var calls []int
	res, err := p.Ingest(ctx, IngestionRequest{Records: records, ProjectID: "p1", ModuleType: storage.ModuleGeneric}, func(done, total int) {
		calls = append(calls, done)
		assert.Equal(t, 3, total)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ChunksCreated)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, []string{"bom.xlsx", "lemp.pdf", "sld.pdf"}, res.Documents)
	assert.Equal(t, []int{2, 3}, calls)
	assert.Equal(t, 1, inv.calls)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	scoped, err := store.Scan(ctx, 0, storage.Filter{ProjectID: "p1", ModuleType: storage.ModuleGeneric})
	require.NoError(t, err)
	assert.Len(t, scoped, 3)
	for _, r := range scoped {
		assert.NotEmpty(t, r.ID)
	}
}

func TestPipeline_IngestEmbeddingFailure(t *testing.T) {
	p := NewPipeline(nil, PipelineConfig{}, storage.NewMemoryStore(0), failingEmbedder{}, nil, nil)

	_, err := p.Ingest(context.Background(), IngestionRequest{Records: []Record{
		{Text: "SOURCE: a.pdf | CONTENT:\nhello", Metadata: storage.ChunkMetadata{DocName: "a.pdf"}},
	}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestPipeline_IngestKeepsProvidedEmbedding(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(3)
	p := NewPipeline(nil, PipelineConfig{}, store, nil, nil, nil)

	res, err := p.Ingest(ctx, IngestionRequest{Records: []Record{
		{ID: "x", Text: "SOURCE: a.pdf | CONTENT:\nhello", Embedding: []float32{1, 0, 0}, Metadata: storage.ChunkMetadata{DocName: "a.pdf"}},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksCreated)

	results, err := store.Query(ctx, []float32{1, 0, 0}, 1, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
}

func TestPipeline_Purge(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(16)
	inv := &countingInvalidator{}
	p := NewPipeline(nil, PipelineConfig{}, store, embedding.NewMockClient(16), nil, inv)

	_, err := p.Ingest(ctx, IngestionRequest{DocumentID: "bom", Records: []Record{
		{Text: "SOURCE: bom.xlsx | DATA: Brand: Jinko", Metadata: storage.ChunkMetadata{DocName: "bom.xlsx"}},
		{Text: "SOURCE: bom.xlsx | DATA: Brand: Trina", Metadata: storage.ChunkMetadata{DocName: "bom.xlsx"}},
	}}, nil)
	require.NoError(t, err)

	_, err = p.Purge(ctx, storage.Filter{})
	assert.ErrorIs(t, err, storage.ErrEmptyFilter)

	removed, err := p.Purge(ctx, storage.Filter{DocumentID: "bom"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, inv.calls)
}

func TestContentHash(t *testing.T) {
	h := ContentHash("SOURCE: a.pdf")
	assert.Len(t, h, 64)
	assert.Equal(t, h, ContentHash("SOURCE: a.pdf"))
	assert.NotEqual(t, h, ContentHash("SOURCE: b.pdf"))
}
