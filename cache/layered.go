package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiser/queryengine/internal/metrics"
)

// backendTimeout bounds how long a Redis round trip may take before this
// cache treats the call as a miss rather than blocking orchestration.
const backendTimeout = 50 * time.Millisecond

// Config tunes a LayeredCache instance.
type Config struct {
	LocalCapacity int
	DefaultTTL    time.Duration
	Redis         *redis.Client // nil disables the Redis tier
	// Namespace labels this cache's hit/miss metrics (e.g. "schema",
	// "query_result", "ai_response"); defaults to "default" when empty.
	Namespace string
	// Metrics, when set, receives one RecordCacheHit/RecordCacheMiss
	// observation per Get. Nil disables cache-level instrumentation.
	Metrics *metrics.Collector
}

// LayeredCache is a two-tier cache: Redis primary, in-process LRU fallback.
// Reads check Redis first and backfill the local tier on a hit; writes go to
// both tiers. Redis errors or timeouts degrade silently to the local tier.
type LayeredCache struct {
	local     *LRUCache
	redis     *redis.Client
	logger    *zap.Logger
	namespace string
	metrics   *metrics.Collector

	redisErrors int64
}

// New creates a LayeredCache.
func New(cfg Config, logger *zap.Logger) *LayeredCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
	}
	return &LayeredCache{
		local:     NewLRUCache(cfg.LocalCapacity),
		redis:     cfg.Redis,
		logger:    logger,
		namespace: namespace,
		metrics:   cfg.Metrics,
	}
}

// Get retrieves a value by key, trying Redis then the local LRU.
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.redis != nil {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout)
		val, err := c.redis.Get(bctx, key).Bytes()
		cancel()
		if err == nil {
			c.local.Set(key, val, time.Minute)
			c.recordResult(true)
			return val, true
		}
		if err != redis.Nil {
			c.redisErrors++
			c.logger.Debug("redis get failed, falling back to local cache", zap.Error(err))
		}
	}
	val, ok := c.local.Get(key)
	c.recordResult(ok)
	return val, ok
}

func (c *LayeredCache) recordResult(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.RecordCacheHit(c.namespace)
	} else {
		c.metrics.RecordCacheMiss(c.namespace)
	}
}

// Set writes a value to both tiers with the given TTL.
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.local.Set(key, value, ttl)
	if c.redis != nil {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout)
		defer cancel()
		if err := c.redis.Set(bctx, key, value, ttl).Err(); err != nil {
			c.redisErrors++
			c.logger.Debug("redis set failed", zap.Error(err))
		}
	}
}

// Delete removes a key from both tiers.
func (c *LayeredCache) Delete(ctx context.Context, key string) {
	c.local.Delete(key)
	if c.redis != nil {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout)
		defer cancel()
		c.redis.Del(bctx, key)
	}
}

// Stats reports local-tier hit/miss counters and cumulative Redis errors.
func (c *LayeredCache) Stats() (hits, misses, redisErrors int64) {
	h, m := c.local.Stats()
	return h, m, c.redisErrors
}
