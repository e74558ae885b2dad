package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// MockClient produces deterministic bag-of-words vectors. Texts sharing
// words have positive cosine similarity, which is enough for local runs
// and tests without network access.
type MockClient struct {
	dimension int
}

// NewMockClient returns a MockClient producing vectors of dimension (default 64).
func NewMockClient(dimension int) *MockClient {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockClient{dimension: dimension}
}

// Embed hashes each lowercased word into a bucket.
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, ErrEmptyInput
	}

	v := make([]float32, m.dimension)
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(m.dimension)]++
	}
	l2normalize(v)
	return v, nil
}

// EmbedBatch embeds each text in turn.
func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimension returns the vector length.
func (m *MockClient) Dimension() int { return m.dimension }

// Model returns "mock".
func (m *MockClient) Model() string { return "mock" }

var _ Embedder = (*MockClient)(nil)
