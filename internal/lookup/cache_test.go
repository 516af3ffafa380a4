package lookup

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/nutrilog/backend/internal/db"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type flakyStore struct {
	db.BlobStore
	failPut bool
}

func (s *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	if s.failPut {
		return errors.New("write failed")
	}
	return s.BlobStore.Put(ctx, key, value)
}

func newStore(t *testing.T) *flakyStore {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err)
	kv := db.NewKVStore(conn)
	t.Cleanup(func() {
		kv.Close()
		conn.Close()
	})
	return &flakyStore{BlobStore: kv}
}

func quiet() Option {
	return WithLogger(logging.New(&bytes.Buffer{}, logging.LevelDebug))
}

func newCache(t *testing.T, store db.BlobStore, c *clock) *Cache[string] {
	t.Helper()
	cache, err := NewCache[string](context.Background(), store, "test", WithClock(c.now), quiet())
	require.NoError(t, err)
	return cache
}

func TestKeys_normalizeInput(t *testing.T) {
	assert.Equal(t, "analysis_two eggs and toast", AnalysisKey("  Two Eggs and Toast "))
	assert.Equal(t, "barcode_0123abc", BarcodeKey("0123ABC\n"))
	assert.Equal(t, AnalysisKey("Apple"), AnalysisKey("apple"))
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	cache := newCache(t, newStore(t), c)

	require.NoError(t, cache.Set(ctx, "k", "v", 60000*time.Millisecond))

	got, ok := cache.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	c.advance(61000 * time.Millisecond)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_zeroTTLMissesImmediately(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t, newStore(t), &clock{t: time.Now()})

	require.NoError(t, cache.Set(ctx, "k", "v", 0))
	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCache_setSweepsExpired(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := newStore(t)
	cache := newCache(t, store, c)

	require.NoError(t, cache.Set(ctx, "short", "a", time.Second))
	require.NoError(t, cache.Set(ctx, "long", "b", time.Hour))
	c.advance(time.Minute)
	require.NoError(t, cache.Set(ctx, "new", "c", time.Hour))

	raw, found, err := store.Get(ctx, KeyPrefix+"test")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, string(raw), `"short"`)
	assert.Contains(t, string(raw), `"long"`)
	assert.Equal(t, 2, cache.Len())
}

func TestCache_persistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := newStore(t)

	require.NoError(t, newCache(t, store, c).Set(ctx, "k", "v", time.Hour))

	got, ok := newCache(t, store, c).Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCache_invalidateAndPurge(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t, newStore(t), &clock{t: time.Now()})

	require.NoError(t, cache.Set(ctx, "a", "1", time.Hour))
	require.NoError(t, cache.Set(ctx, "b", "2", time.Hour))

	require.NoError(t, cache.Invalidate(ctx, "a"))
	require.NoError(t, cache.Invalidate(ctx, "missing"))
	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Purge(ctx))
	assert.Equal(t, 0, cache.Len())
}

func TestCache_failedWriteKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	cache := newCache(t, store, &clock{t: time.Now()})

	require.NoError(t, cache.Set(ctx, "a", "1", time.Hour))
	store.failPut = true
	assert.Error(t, cache.Set(ctx, "b", "2", time.Hour))
	assert.Error(t, cache.Purge(ctx))

	_, ok := cache.Get(ctx, "b")
	assert.False(t, ok)
	got, ok := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", got)
}

func TestCache_corruptedBlobStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Put(ctx, KeyPrefix+"test", []byte("][")))

	cache := newCache(t, store, &clock{t: time.Now()})
	assert.Equal(t, 0, cache.Len())
	require.NoError(t, cache.Set(ctx, "k", "v", time.Hour))
}

func TestNewCache_requiresName(t *testing.T) {
	_, err := NewCache[int](context.Background(), newStore(t), " ")
	assert.Error(t, err)
}
