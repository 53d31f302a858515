// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader wraps a Cache with single-flight semantics: concurrent misses for
// the same key collapse into one fetch, with waiters sharing the result.
// The fetch runs outside any cache lock.
type Loader struct {
	cache Cache
	group singleflight.Group
}

// NewLoader creates a Loader over the given cache backend.
func NewLoader(c Cache) *Loader {
	return &Loader{cache: c}
}

// GetOrFetch returns the cached value for key, or runs fetch once for all
// concurrent callers and stores the result with ttl. Fetch errors are not
// cached.
func (l *Loader) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := l.group.Do(key, func() (any, error) {
		// Re-check: another flight may have populated the key between the
		// fast read and claiming ownership.
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Invalidate removes a key from the underlying cache.
func (l *Loader) Invalidate(key string) {
	l.cache.Delete(key)
}

// Stats exposes the underlying cache statistics.
func (l *Loader) Stats() Stats {
	return l.cache.Stats()
}
