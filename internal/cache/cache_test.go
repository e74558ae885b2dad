package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
)

func TestMemoryClient_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value := []byte("answer")
	require.NoError(t, c.Set(ctx, "q:1", value, time.Minute))
	value[0] = 'X'

	got, err := c.Get(ctx, "q:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("answer"), got)

	require.NoError(t, c.Delete(ctx, "q:1"))
	_, err = c.Get(ctx, "q:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_EvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Overwriting an existing key does not evict.
	require.NoError(t, c.Set(ctx, "b", []byte("22"), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	require.NoError(t, c.Set(ctx, Key("answer", "abc"), []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, Key("answer", "def"), []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, Key("stats", "x"), []byte("3"), time.Hour))

	require.NoError(t, c.DeleteByPrefix(ctx, "answer:"))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryClient_PubSub(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	ch, unsubscribe, err := c.Subscribe(ctx, "rag.audit")
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, "rag.audit", []byte(`{"q":1}`)))
	require.NoError(t, c.Publish(ctx, "other", []byte(`{"q":2}`)))

	select {
	case msg := <-ch:
		assert.Equal(t, `{"q":1}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestNopClient(t *testing.T) {
	ctx := context.Background()
	var c Backend = NopClient{}

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	ch, _, err := c.Subscribe(ctx, "x")
	require.NoError(t, err)
	_, open := <-ch
	assert.False(t, open)
}

func TestOpen(t *testing.T) {
	cfg := config.DefaultConfig().Cache

	cfg.Driver = "none"
	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, NopClient{}, b)

	cfg.Driver = "memory"
	b, err = Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &MemoryClient{}, b)

	cfg.Driver = "memcached"
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "answer:abc", Key("answer", "abc"))
	assert.Equal(t, "single", Key("single"))
}
