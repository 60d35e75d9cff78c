// Package cache implements the shared cache-aside primitive used across the
// access-control core: read through a key-value Store, collapse concurrent
// misses on the same key into one factory execution, and optionally cache
// known-absent results so repeated lookups of a missing key stop hitting
// the factory.
//
// The cache is an optimization, never a correctness dependency: any store
// failure (backend down, corrupt payload) is logged and treated as a miss,
// and the call falls through to the factory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// nullSentinel marks a cached "no value" result. It is not valid JSON, so
// it can never collide with a genuinely cached payload.
const nullSentinel = "\x00null\x00"

// DefaultNullTTL bounds how long a known-absent result is remembered.
const DefaultNullTTL = 30 * time.Second

// TTL describes the expiration policy for a cached entry.
type TTL struct {
	Value   time.Duration
	Sliding bool
}

// Absolute returns a fixed-expiry TTL.
func Absolute(d time.Duration) TTL { return TTL{Value: d} }

// Sliding returns a TTL that is renewed on every cache hit.
func Sliding(d time.Duration) TTL { return TTL{Value: d, Sliding: true} }

// Metrics receives cache outcome events. All methods must be safe for
// concurrent use.
type Metrics interface {
	CacheHit()
	CacheMiss()
	CacheCollapsed()
}

type nopMetrics struct{}

func (nopMetrics) CacheHit()       {}
func (nopMetrics) CacheMiss()      {}
func (nopMetrics) CacheCollapsed() {}

// Options tunes optional Cache behavior.
type Options struct {
	// NullTTL is the expiry for cached absent results. Defaults to
	// DefaultNullTTL when zero.
	NullTTL time.Duration
	// Metrics receives hit/miss/collapse events. Defaults to a no-op.
	Metrics Metrics
}

// Cache is a stampede- and penetration-safe cache-aside front over a Store.
type Cache struct {
	store   Store
	locks   *keyMutexRegistry
	logger  zerolog.Logger
	nullTTL time.Duration
	metrics Metrics
}

// New creates a Cache over the given store.
func New(store Store, logger zerolog.Logger, opts Options) *Cache {
	nullTTL := opts.NullTTL
	if nullTTL <= 0 {
		nullTTL = DefaultNullTTL
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Cache{
		store:   store,
		locks:   newKeyMutexRegistry(),
		logger:  logger,
		nullTTL: nullTTL,
		metrics: metrics,
	}
}

// Invalidate removes a key so the next lookup re-runs the factory.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// read fetches a raw entry. Store failures are logged and reported as a
// miss; the sentinel is surfaced via isNull.
func (c *Cache) read(ctx context.Context, key string, ttl TTL) (raw string, isNull, found bool) {
	val, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		}
		return "", false, false
	}
	if val == nullSentinel {
		return "", true, true
	}
	if ttl.Sliding {
		if err := c.store.Touch(ctx, key, ttl.Value); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache ttl renewal failed")
		}
	}
	return val, false, true
}

func (c *Cache) write(ctx context.Context, key, raw string, ttl time.Duration) {
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed, result not cached")
	}
}

// GetOrSet returns the cached value for key, or runs factory once, caches
// its result under ttl, and returns it. Concurrent callers missing on the
// same key block on a per-key lock and observe the single factory result;
// callers on unrelated keys proceed independently.
//
// A factory error is returned as-is and nothing is cached.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, ttl TTL, factory func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, isNull, ok := c.read(ctx, key, ttl); ok && !isNull {
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			c.metrics.CacheHit()
			return out, nil
		}
		c.logger.Warn().Str("key", key).Msg("cache entry corrupt, treating as miss")
	}
	c.metrics.CacheMiss()

	km, err := c.locks.acquire(ctx, key)
	if err != nil {
		return zero, err
	}
	defer c.locks.release(key, km)

	// A concurrent populate may have finished while we waited on the lock.
	if raw, isNull, ok := c.read(ctx, key, ttl); ok && !isNull {
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			c.metrics.CacheCollapsed()
			return out, nil
		}
	}

	out, err := factory(ctx)
	if err != nil {
		return zero, err
	}
	if data, err := json.Marshal(out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed, result not cached")
	} else {
		c.write(ctx, key, string(data), ttl.Value)
	}
	return out, nil
}

// GetOrSetWithNullProtection is GetOrSet for factories that may legitimately
// find nothing. A nil factory result is cached as a reserved sentinel under
// the configured null TTL, so repeated lookups of a known-absent key return
// nil without re-invoking the factory.
func GetOrSetWithNullProtection[T any](ctx context.Context, c *Cache, key string, ttl TTL, factory func(context.Context) (*T, error)) (*T, error) {
	if raw, isNull, ok := c.read(ctx, key, ttl); ok {
		if isNull {
			c.metrics.CacheHit()
			return nil, nil
		}
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			c.metrics.CacheHit()
			return &out, nil
		}
		c.logger.Warn().Str("key", key).Msg("cache entry corrupt, treating as miss")
	}
	c.metrics.CacheMiss()

	km, err := c.locks.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer c.locks.release(key, km)

	if raw, isNull, ok := c.read(ctx, key, ttl); ok {
		if isNull {
			c.metrics.CacheCollapsed()
			return nil, nil
		}
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			c.metrics.CacheCollapsed()
			return &out, nil
		}
	}

	out, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		c.write(ctx, key, nullSentinel, c.nullTTL)
		return nil, nil
	}
	if data, err := json.Marshal(out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed, result not cached")
	} else {
		c.write(ctx, key, string(data), ttl.Value)
	}
	return out, nil
}
