package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache wraps a loader with a cache. Errors are never cached.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool
	shouldStore     func(V) bool
}

func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
	}
}

// StoreIf restricts caching to values for which keep returns true.
func (r *ReadThroughCache[K, V, I]) StoreIf(keep func(V) bool) *ReadThroughCache[K, V, I] {
	r.shouldStore = keep
	return r
}

func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	return r.load(ctx, key, input, ttl)
}

// GetWithRefresh is Get, but a hit extends the cached value's ttl.
func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return value, nil
	}

	return r.load(ctx, key, input, ttl)
}

func (r *ReadThroughCache[K, V, I]) load(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}
	if r.shouldStore == nil || r.shouldStore(value) {
		r.cache.Set(ctx, key, value, ttl)
	}
	return value, nil
}
