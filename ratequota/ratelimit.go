// Package ratequota enforces per-identifier request-rate limits and
// per-tenant monthly credit/resource quotas.
//
// The sliding-window limiter uses a trim-expired-timestamps approach; the
// quota half is grounded on the original service's
// packages/chat2chart/.../pricing/rate_limiter.py plan-credit tables.
package ratequota

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a rate-limit admission check.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limits bundles the sliding-window thresholds for one identifier.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
	Burst     int
}

// DefaultLimits returns the platform's default per-identifier rate limits.
func DefaultLimits() Limits {
	return Limits{PerMinute: 60, PerHour: 1000, PerDay: 10000, Burst: 100}
}

// Limiter admits or denies a request for identifier under the configured
// sliding-window limits.
type Limiter interface {
	Allow(ctx context.Context, identifier string, limits Limits) (Result, error)
}

// windows pairs a limit with its duration, checked independently; the
// tightest violated window determines the response.
type window struct {
	duration time.Duration
	limit    func(Limits) int
}

var windows = []window{
	{time.Minute, func(l Limits) int { return l.PerMinute }},
	{time.Hour, func(l Limits) int { return l.PerHour }},
	{24 * time.Hour, func(l Limits) int { return l.PerDay }},
}

// InProcessLimiter is a mutex-guarded, best-effort limiter used when no
// shared backend is configured, or as the fallback when Redis is down. It is
// biased toward allowing requests under backend failure (never the sole
// source of truth across a distributed deployment).
type InProcessLimiter struct {
	mu        sync.Mutex
	instances map[string][]time.Time // per identifier+window key
}

// NewInProcessLimiter creates an in-process sliding-window limiter.
func NewInProcessLimiter() *InProcessLimiter {
	return &InProcessLimiter{instances: make(map[string][]time.Time)}
}

func (l *InProcessLimiter) Allow(_ context.Context, identifier string, limits Limits) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for _, w := range windows {
		cap := w.limit(limits)
		if cap <= 0 {
			continue
		}
		key := identifier + "|" + w.duration.String()
		ts := l.instances[key]
		ts = trimExpired(ts, now, w.duration)
		if len(ts) >= cap {
			oldest := ts[0]
			return Result{
				Allowed:    false,
				Remaining:  0,
				ResetAt:    oldest.Add(w.duration),
				RetryAfter: time.Until(oldest.Add(w.duration)),
			}, nil
		}
		l.instances[key] = ts
	}

	// All windows have room: admit, recording the timestamp in each window.
	for _, w := range windows {
		if w.limit(limits) <= 0 {
			continue
		}
		key := identifier + "|" + w.duration.String()
		l.instances[key] = append(l.instances[key], now)
	}

	minuteRemaining := limits.PerMinute - len(l.instances[identifier+"|"+time.Minute.String()])
	return Result{Allowed: true, Remaining: minuteRemaining, ResetAt: now.Add(time.Minute)}, nil
}

func trimExpired(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}

// RedisLimiter uses a Redis sorted set per identifier+window. Each window's
// trim-add-count-evict sequence runs inside one MULTI/EXEC pipeline, so two
// concurrent callers for the same identifier can't both observe room under
// the cap and both admit: the server serializes the pipelines, and whichever
// one pushes the count over the cap evicts its own just-added member before
// this method returns.
type RedisLimiter struct {
	rdb      *redis.Client
	fallback *InProcessLimiter
}

// NewRedisLimiter wraps rdb with an in-process fallback for when Redis errors.
func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, fallback: NewInProcessLimiter()}
}

func (l *RedisLimiter) Allow(ctx context.Context, identifier string, limits Limits) (Result, error) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10)

	for _, w := range windows {
		cap := w.limit(limits)
		if cap <= 0 {
			continue
		}
		key := "ratelimit:" + identifier + ":" + w.duration.String()
		cutoff := now.Add(-w.duration).UnixNano()

		pipe := l.rdb.TxPipeline()
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
		card := pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, w.duration)
		_, err := pipe.Exec(ctx)
		if err != nil {
			return l.fallback.Allow(ctx, identifier, limits)
		}

		if int(card.Val()) > cap {
			l.rdb.ZRem(ctx, key, member)
			return Result{Allowed: false, Remaining: 0, ResetAt: now.Add(w.duration), RetryAfter: w.duration}, nil
		}
	}

	return Result{Allowed: true, Remaining: limits.PerMinute, ResetAt: now.Add(time.Minute)}, nil
}
