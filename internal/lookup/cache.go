// Package lookup caches resolved nutrition lookups with TTL expiration.
package lookup

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/nutrilog/backend/internal/db"
	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

// KeyPrefix namespaces every cache blob in the local store.
const KeyPrefix = "lookup_cache/"

// AnalysisKey is the cache key of a free-text analysis.
func AnalysisKey(text string) string {
	return "analysis_" + strings.ToLower(strings.TrimSpace(text))
}

// BarcodeKey is the cache key of a barcode lookup.
func BarcodeKey(code string) string {
	return "barcode_" + strings.ToLower(strings.TrimSpace(code))
}

type options struct {
	now func() time.Time
	log *logging.Logger
}

// Option configures a Cache or Resolver.
type Option func(*options)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger overrides the global logger.
func WithLogger(log *logging.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, log: logging.Get()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Cache is a TTL map persisted as a single blob. Expired entries are swept
// on every Set and evicted when read.
type Cache[T any] struct {
	mu      sync.Mutex
	store   db.BlobStore
	key     string
	entries map[string]models.CacheEntry[T]
	now     func() time.Time
	log     *logging.Logger
}

// NewCache loads the cache named name from store. An unreadable blob is
// logged and replaced by an empty cache.
func NewCache[T any](ctx context.Context, store db.BlobStore, name string, opts ...Option) (*Cache[T], error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "cache name is required")
	}
	o := buildOptions(opts)
	c := &Cache[T]{
		store:   store,
		key:     KeyPrefix + name,
		entries: make(map[string]models.CacheEntry[T]),
		now:     o.now,
		log:     o.log,
	}

	data, found, err := store.Get(ctx, c.key)
	if err != nil {
		return nil, err
	}
	if found && len(data) > 0 {
		var stored map[string]models.CacheEntry[T]
		if err := json.Unmarshal(data, &stored); err != nil {
			c.log.ErrorWithCode("lookup cache is unreadable, starting empty",
				apperrors.Wrap(apperrors.ErrCorruptedState, "decode cache", err),
				map[string]interface{}{"key": c.key})
		} else if stored != nil {
			c.entries = stored
		}
	}
	return c, nil
}

// Get returns the live value for key. An expired entry is removed.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if entry.IsExpired(c.now()) {
		delete(c.entries, key)
		if err := c.persist(ctx); err != nil {
			// the entry is gone from memory either way; the next write retries
			c.log.Warn("failed to persist cache eviction", map[string]interface{}{
				"key":   c.key,
				"error": err.Error(),
			})
		}
		return zero, false
	}
	return entry.Value, true
}

// Set stores value under key for ttl. A non-positive ttl stores an entry that
// is already expired. A failed write leaves the cache as it was.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	next := make(map[string]models.CacheEntry[T], len(c.entries)+1)
	for k, e := range c.entries {
		if !e.IsExpired(now) {
			next[k] = e
		}
	}
	next[key] = models.NewCacheEntry(key, value, now, ttl)

	return c.commit(ctx, next)
}

// Invalidate removes key.
func (c *Cache[T]) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return nil
	}
	next := make(map[string]models.CacheEntry[T], len(c.entries))
	for k, e := range c.entries {
		if k != key {
			next[k] = e
		}
	}
	return c.commit(ctx, next)
}

// Purge removes every entry.
func (c *Cache[T]) Purge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit(ctx, make(map[string]models.CacheEntry[T]))
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if !e.IsExpired(now) {
			n++
		}
	}
	return n
}

func (c *Cache[T]) commit(ctx context.Context, next map[string]models.CacheEntry[T]) error {
	prev := c.entries
	c.entries = next
	if err := c.persist(ctx); err != nil {
		c.entries = prev
		return err
	}
	return nil
}

func (c *Cache[T]) persist(ctx context.Context) error {
	data, err := json.Marshal(c.entries)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode cache", err)
	}
	return c.store.Put(ctx, c.key, data)
}
