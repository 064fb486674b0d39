// Package reqcache provides the per-request memo used for resolved access
// rules and audited-field lists. A Cache must be created per request and
// dropped with it; it is never shared across users or requests.
package reqcache

import (
	"fmt"

	"github.com/patrickmn/go-cache"
)

// Cache is a request-scoped memo. The zero value is not usable; use New.
type Cache struct {
	c *cache.Cache
}

// New creates an empty request cache. Entries never expire on their own.
func New() *Cache {
	return &Cache{c: cache.New(cache.NoExpiration, 0)}
}

// Get returns a cached value.
func (rc *Cache) Get(key string) (any, bool) {
	if rc == nil {
		return nil, false
	}
	return rc.c.Get(key)
}

// Set stores a value for the rest of the request.
func (rc *Cache) Set(key string, value any) {
	if rc == nil {
		return
	}
	rc.c.Set(key, value, cache.NoExpiration)
}

// Len returns the number of cached entries.
func (rc *Cache) Len() int {
	if rc == nil {
		return 0
	}
	return rc.c.ItemCount()
}

// Remember returns the cached value for key or computes and stores it.
// A nil cache always computes. Errors are not cached.
func Remember[T any](rc *Cache, key string, compute func() (T, error)) (T, error) {
	if v, ok := rc.Get(key); ok {
		typed, ok := v.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("reqcache: key %q holds %T", key, v)
		}
		return typed, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	rc.Set(key, v)
	return v, nil
}
