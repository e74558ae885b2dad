package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, content string, got *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  got.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
}

func openAIConfig(baseURL string) config.LLMConfig {
	cfg := config.DefaultConfig().LLM
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	return cfg
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, "  The panel brand is Jinko. [Source: bom.xlsx]\n", &got)
	defer srv.Close()

	c, err := NewOpenAICompleter(openAIConfig(srv.URL))
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), "system rules", "QUESTION:\nPanel markası nedir?")
	require.NoError(t, err)
	assert.Equal(t, "The panel brand is Jinko. [Source: bom.xlsx]", text)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 3000, got.MaxTokens)
	assert.Less(t, got.Temperature, float32(1e-6))
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "system rules", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAICompleter_EmptyCompletion(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, "   ", &got)
	defer srv.Close()

	c, err := NewOpenAICompleter(openAIConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAICompleter_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(openAIConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestGeminiCompleter_Complete(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Toplam 154 inverter var."}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig().LLM
	cfg.Provider = "gemini"
	cfg.Model = "gemini-2.5-flash"
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", c.Model())

	text, err := c.Complete(context.Background(), "system rules", "toplam inverter sayısı kaç")
	require.NoError(t, err)
	assert.Equal(t, "Toplam 154 inverter var.", text)
	assert.Contains(t, body, "systemInstruction")
	assert.Contains(t, body, "generationConfig")
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig().LLM
	cfg.Provider = "claude"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestCompleterFunc(t *testing.T) {
	f := CompleterFunc(func(ctx context.Context, s, u string) (string, error) {
		return s + "|" + u, nil
	})
	out, err := f.Complete(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a|b", out)
}
