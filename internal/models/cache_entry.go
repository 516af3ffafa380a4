package models

import "time"

// CacheEntry is a cached value with an absolute expiration time.
type CacheEntry[T any] struct {
	Key        string    `json:"key"`
	Value      T         `json:"value"`
	ExpiresAt  time.Time `json:"expires_at"`
	InsertedAt time.Time `json:"inserted_at"`
}

// NewCacheEntry builds an entry inserted at now that lives for ttl.
// A non-positive ttl yields an entry that is already expired.
func NewCacheEntry[T any](key string, value T, now time.Time, ttl time.Duration) CacheEntry[T] {
	if ttl < 0 {
		ttl = 0
	}
	return CacheEntry[T]{
		Key:        key,
		Value:      value,
		ExpiresAt:  now.Add(ttl),
		InsertedAt: now,
	}
}

// IsExpired reports whether the entry is expired at now. Monotone in now:
// once true for some instant it is true for every later one.
func (e CacheEntry[T]) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
