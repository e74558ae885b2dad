package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cew-ai/assistant/libs/rag-engine/cmd/rag-engine-api/handlers"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/app"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/llm"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/retrieval"
)

const testRecords = `{"text": "SOURCE: bom.xlsx | SHEET: BOM | DATA: Equipment: Panel, Brand: Jinko", "metadata": {"doc_name": "bom.xlsx", "sheet": "BOM"}}
{"content": "Bat boxes are fixed to mature trees.", "metadata": {"doc_name": "lemp.pdf", "page": 7}}
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Store.Driver = "memory"
	cfg.Store.Dimension = 32
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 32
	cfg.Cache.Driver = "memory"

	completer := llm.CompleterFunc(func(_ context.Context, _, user string) (string, error) {
		if strings.Contains(user, "Jinko") {
			return "The panel brand is Jinko.", nil
		}
		return retrieval.FallbackMessage(retrieval.LanguageEnglish), nil
	})

	logger := observability.NopLogger()
	svc, err := app.New(context.Background(), cfg, logger, app.Options{Completer: completer})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	srv := httptest.NewServer(NewRouter(logger, svc, RouterConfig{StoreDriver: "memory"}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestRouter_IngestQueryPurge(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/chunks?project_id=p1", testRecords)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 2, body["chunks_created"])
	assert.Equal(t, []interface{}{"bom.xlsx", "lemp.pdf"}, body["documents"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["chunks"])
	assert.Equal(t, "memory", body["store"])

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/query", `{"question": "What is the panel brand?", "project_id": "p1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["answer"], "Jinko")
	assert.Equal(t, "bom.xlsx (Sheet: BOM)", body["source"])

	resp, body = do(t, http.MethodDelete, srv.URL+"/api/v1/chunks?doc_name=bom.xlsx", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["removed"])

	_, body = do(t, http.MethodGet, srv.URL+"/api/v1/stats", "")
	assert.EqualValues(t, 1, body["chunks"])
}

func TestRouter_QueryFallbackHasNullSource(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/query", `{"question": "What is the inverter brand?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, retrieval.FallbackMessage(retrieval.LanguageEnglish), body["answer"])
	v, ok := body["source"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestRouter_QueryValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"question":`, "invalid request body"},
		{"blank question", `{"question": "  "}`, "question is required"},
		{"unknown module", `{"question": "panel?", "module_type": "roofing"}`, "invalid filter"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/query", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tc.want, body["error"])
		})
	}
}

func TestRouter_Batch(t *testing.T) {
	srv := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/api/v1/chunks", testRecords)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/query/batch",
		strings.NewReader(`{"queries": [{"question": "What is the panel brand?"}, {"question": ""}, {"question": "Where are the bat boxes?"}]}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out handlers.BatchResponseDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 3)

	assert.Equal(t, 0, out.Results[0].Index)
	assert.Contains(t, out.Results[0].Answer, "Jinko")
	assert.Equal(t, "question is required", out.Results[1].Error)
	assert.Equal(t, "Where are the bat boxes?", out.Results[2].Question)

	resp2, body := do(t, http.MethodPost, srv.URL+"/api/v1/query/batch", `{"queries": []}`)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Equal(t, "queries is required", body["error"])
}

func TestRouter_ChunkValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodDelete, srv.URL+"/api/v1/chunks", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "at least one filter is required", body["error"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/chunks?module_type=roofing", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/chunks", "not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid records", body["error"])

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/chunks", "[]")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "records are required", body["error"])
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/query", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
