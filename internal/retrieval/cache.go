package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/cache"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
)

// ResponseCache stores answered queries keyed by question and filter.
type ResponseCache struct {
	client cache.Client
	logger *observability.Logger
	config ResponseCacheConfig
}

// ResponseCacheConfig configures the response cache.
type ResponseCacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
	Enabled   bool
}

// DefaultResponseCacheConfig returns default cache configuration.
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{
		TTL:       10 * time.Minute,
		KeyPrefix: "answer:",
		Enabled:   true,
	}
}

// NewResponseCache creates a response cache over client. A nil client
// disables caching.
func NewResponseCache(client cache.Client, logger *observability.Logger, config ResponseCacheConfig) *ResponseCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "answer:"
	}
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ResponseCache{
		client: client,
		logger: logger.WithComponent("response_cache"),
		config: config,
	}
}

// CachedResponse is the stored form of an answer.
type CachedResponse struct {
	Answer    string    `json:"answer"`
	Source    *string   `json:"source"`
	Language  string    `json:"language"`
	Class     string    `json:"class"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CacheKey returns the key for req. Questions differing only in case or
// surrounding whitespace share a key.
func (c *ResponseCache) CacheKey(req QueryRequest) string {
	combined := normalizeText(strings.TrimSpace(req.Question)) + "|" + req.Filter().Key()
	hash := sha256.Sum256([]byte(combined))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:16])
}

// Get returns the cached response for req, if any.
func (c *ResponseCache) Get(ctx context.Context, req QueryRequest) (*QueryResponse, bool) {
	if !c.config.Enabled || c.client == nil {
		return nil, false
	}

	key := c.CacheKey(req)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached response")
		return nil, false
	}
	if time.Now().After(cached.ExpiresAt) {
		return nil, false
	}

	c.logger.Debug().Str("key", key).Msg("Cache hit")
	return &QueryResponse{
		Answer: cached.Answer,
		Source: cached.Source,
		Meta: QueryMeta{
			Language: Language(cached.Language),
			Class:    QueryClass(cached.Class),
			Cached:   true,
		},
	}, true
}

// Set stores resp for req. Errors and fallbacks are never cached.
func (c *ResponseCache) Set(ctx context.Context, req QueryRequest, resp *QueryResponse) error {
	if !c.config.Enabled || c.client == nil || resp == nil {
		return nil
	}
	if resp.Meta.Error || resp.Meta.Fallback {
		return nil
	}

	key := c.CacheKey(req)
	now := time.Now()
	cached := CachedResponse{
		Answer:    resp.Answer,
		Source:    resp.Source,
		Language:  string(resp.Meta.Language),
		Class:     string(resp.Meta.Class),
		CachedAt:  now,
		ExpiresAt: now.Add(c.config.TTL),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.config.TTL); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		return err
	}

	c.logger.Debug().Str("key", key).Dur("ttl", c.config.TTL).Msg("Cached response")
	return nil
}

// Invalidate drops every cached answer. Called after ingestion or purge
// since any stored chunk may change any answer.
func (c *ResponseCache) Invalidate(ctx context.Context) error {
	if !c.config.Enabled || c.client == nil {
		return nil
	}
	c.logger.Info().Str("prefix", c.config.KeyPrefix).Msg("Invalidating answer cache")
	return c.client.DeleteByPrefix(ctx, c.config.KeyPrefix)
}
