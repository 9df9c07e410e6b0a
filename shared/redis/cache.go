package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const localCacheSize = 128

// ViewCache is a two-tier cache for read model projections: a small in-process
// TinyLFU in front of Redis. Values are stored as JSON so that decimals keep
// their exact representation.
type ViewCache[T any] struct {
	cache *cache.Cache
	ttl   time.Duration
}

// Option tweaks the underlying cache.
type Option func(*cache.Options)

// WithoutLocalCache skips the in-process tier. Use it for mutable views that
// other replicas may change.
func WithoutLocalCache() Option {
	return func(o *cache.Options) { o.LocalCache = nil }
}

// NewViewCache creates a ViewCache backed by the provided Redis client. A zero
// ttl uses the cache library's default of one hour.
func NewViewCache[T any](client goredis.UniversalClient, ttl time.Duration, opts ...Option) *ViewCache[T] {
	o := &cache.Options{
		Redis:      client,
		LocalCache: cache.NewTinyLFU(localCacheSize, time.Minute),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &ViewCache[T]{cache: cache.New(o), ttl: ttl}
}

// Get returns (nil, false) on a miss or when the stored value can't be decoded.
func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	var data []byte
	if err := c.cache.Get(ctx, key, &data); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logrus.WithError(err).WithField("key", key).Warn("view cache read failed")
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// Set stores value under key. Cache write failures are logged and swallowed.
func (c *ViewCache[T]) Set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("view cache marshal failed")
		return
	}
	if err := c.cache.Set(&cache.Item{Ctx: ctx, Key: key, Value: data, TTL: c.ttl}); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("view cache write failed")
	}
}

// Delete removes key from both tiers.
func (c *ViewCache[T]) Delete(ctx context.Context, key string) {
	if err := c.cache.Delete(ctx, key); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		logrus.WithError(err).WithField("key", key).Warn("view cache delete failed")
	}
}
