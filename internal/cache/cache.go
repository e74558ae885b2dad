// Package cache provides the answer cache and audit event transport.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Publisher fans messages out to channel subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Backend is a cache that can also carry pub/sub traffic.
type Backend interface {
	Client
	Publisher
}

// Open builds the backend selected by cfg.Driver. The "none" driver
// returns a NopClient that misses on every read.
func Open(ctx context.Context, cfg config.CacheConfig) (Backend, error) {
	switch cfg.Driver {
	case "none":
		return NopClient{}, nil
	case "memory":
		return NewMemoryClient(cfg.MaxEntries), nil
	case "redis":
		return NewRedisClient(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// Key joins key components with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// NopClient is a Backend that stores nothing and drops published messages.
type NopClient struct{}

// Get always misses.
func (NopClient) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

// Set discards the value.
func (NopClient) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NopClient) Delete(context.Context, string) error         { return nil }
func (NopClient) DeleteByPrefix(context.Context, string) error { return nil }
func (NopClient) Close() error                                 { return nil }

// Publish drops the payload.
func (NopClient) Publish(context.Context, string, []byte) error { return nil }

// Subscribe returns a closed channel.
func (NopClient) Subscribe(context.Context, string) (<-chan []byte, func(), error) {
	ch := make(chan []byte)
	close(ch)
	return ch, func() {}, nil
}
