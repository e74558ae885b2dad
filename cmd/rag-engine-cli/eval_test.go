package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/retrieval"
)

func writeSet(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validation.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidationSet(t *testing.T) {
	t.Run("normalizes expected behaviour", func(t *testing.T) {
		path := writeSet(t, `{
			"name": "cew-strict",
			"tests": [
				{"id": "q1", "question": "Panel markası nedir?", "category": "bom", "expected_behavior": "answer", "expected_keywords": ["Jinko"]},
				{"id": "q2", "question": "What is the CEO's salary?", "expected_behavior": "FALLBACK"}
			]
		}`)

		set, err := LoadValidationSet(path)
		require.NoError(t, err)
		assert.Equal(t, "cew-strict", set.Name)
		require.Len(t, set.Tests, 2)
		assert.Equal(t, ExpectAnswer, set.Tests[0].ExpectedBehavior)
		assert.Equal(t, []string{"Jinko"}, set.Tests[0].ExpectedKeywords)
		assert.Equal(t, ExpectFallback, set.Tests[1].ExpectedBehavior)
	})

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid json", `{"tests": [`, "parse validation set"},
		{"no tests", `{"name": "empty", "tests": []}`, "has no tests"},
		{"blank question", `{"tests": [{"id": "q1", "question": " ", "expected_behavior": "ANSWER"}]}`, "question is required"},
		{"unknown behaviour", `{"tests": [{"id": "q1", "question": "x", "expected_behavior": "MAYBE"}]}`, "unknown expected_behavior"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadValidationSet(writeSet(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadValidationSet(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read validation set")
	})
}

func strPtr(s string) *string { return &s }

func TestGradeAnswer(t *testing.T) {
	cited := &retrieval.QueryResponse{
		Answer: "Panel markası Jinko Solar'dır. [Kaynak: bom.xlsx (Sheet: BOM)]",
		Source: strPtr("bom.xlsx (Sheet: BOM)"),
	}
	fallbackTR := &retrieval.QueryResponse{
		Answer: retrieval.FallbackMessage(retrieval.LanguageTurkish),
		Meta:   retrieval.QueryMeta{Fallback: true},
	}

	tests := []struct {
		name       string
		tc         ValidationCase
		resp       *retrieval.QueryResponse
		err        error
		wantPassed bool
		wantReason string
	}{
		{
			name:       "cited answer with keywords",
			tc:         ValidationCase{ExpectedBehavior: ExpectAnswer, ExpectedKeywords: []string{"jinko"}, ExpectedDocNames: []string{"BOM.xlsx"}},
			resp:       cited,
			wantPassed: true,
		},
		{
			name:       "answer expected but fallback returned",
			tc:         ValidationCase{ExpectedBehavior: ExpectAnswer},
			resp:       fallbackTR,
			wantReason: "expected an answer, got fallback",
		},
		{
			name:       "answer without citation",
			tc:         ValidationCase{ExpectedBehavior: ExpectAnswer},
			resp:       &retrieval.QueryResponse{Answer: "Jinko Solar.", Source: strPtr("bom.xlsx")},
			wantReason: "answer has no citation",
		},
		{
			name:       "missing keyword",
			tc:         ValidationCase{ExpectedBehavior: ExpectAnswer, ExpectedKeywords: []string{"Jinko", "580 Wp"}},
			resp:       cited,
			wantReason: "missing keywords: 580 Wp",
		},
		{
			name:       "wrong document",
			tc:         ValidationCase{ExpectedBehavior: ExpectAnswer, ExpectedDocNames: []string{"sld.pdf"}},
			resp:       cited,
			wantReason: "cites none of: sld.pdf",
		},
		{
			name:       "fallback expected and returned",
			tc:         ValidationCase{ExpectedBehavior: ExpectFallback},
			resp:       fallbackTR,
			wantPassed: true,
		},
		{
			name:       "fallback expected but answered",
			tc:         ValidationCase{ExpectedBehavior: ExpectFallback},
			resp:       cited,
			wantReason: "expected fallback, got an answer",
		},
		{
			name:       "dependency error",
			tc:         ValidationCase{ExpectedBehavior: ExpectFallback},
			resp:       &retrieval.QueryResponse{Answer: "Error generating answer: timeout", Meta: retrieval.QueryMeta{Error: true}},
			wantReason: "dependency error",
		},
		{
			name:       "query error",
			tc:         ValidationCase{ExpectedBehavior: ExpectAnswer},
			err:        errors.New("context deadline exceeded"),
			wantReason: "error: context deadline exceeded",
		},
		{
			name:       "nil response",
			tc:         ValidationCase{ExpectedBehavior: ExpectAnswer},
			wantReason: "no response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := GradeAnswer(tt.tc, tt.resp, tt.err)
			assert.Equal(t, tt.wantPassed, g.Passed)
			assert.Equal(t, tt.wantReason, g.Reason)
		})
	}
}

func TestBuildReport(t *testing.T) {
	grades := []Grade{
		{ID: "q1", Category: "bom", Passed: true},
		{ID: "q2", Category: "bom"},
		{ID: "q3", Category: ""},
		{ID: "q4", Category: "sld", Passed: true},
	}

	r := BuildReport("cew", grades, 2*time.Second)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 2, r.Passed)
	assert.InDelta(t, 0.5, r.PassRate, 1e-9)
	assert.Equal(t, map[string]int{"bom": 1, "uncategorized": 1}, r.ByCategory)

	empty := BuildReport("none", nil, 0)
	assert.Zero(t, empty.PassRate)
	assert.Nil(t, empty.ByCategory)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "kısa", truncate("kısa", 10))
	assert.Equal(t, "uzun…", truncate("uzunsoru", 5))
}
