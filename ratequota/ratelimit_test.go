package ratequota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessLimiter_AllowsUnderLimit(t *testing.T) {
	l := NewInProcessLimiter()
	ctx := context.Background()
	limits := Limits{PerMinute: 3, PerHour: 100, PerDay: 1000}

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "id1", limits)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestInProcessLimiter_DeniesOverLimit(t *testing.T) {
	l := NewInProcessLimiter()
	ctx := context.Background()
	limits := Limits{PerMinute: 2, PerHour: 100, PerDay: 1000}

	_, _ = l.Allow(ctx, "id1", limits)
	_, _ = l.Allow(ctx, "id1", limits)
	res, err := l.Allow(ctx, "id1", limits)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, res.RetryAfter > 0)
}

func TestInProcessLimiter_TightestWindowWins(t *testing.T) {
	l := NewInProcessLimiter()
	ctx := context.Background()
	limits := Limits{PerMinute: 1, PerHour: 1000, PerDay: 10000}

	_, _ = l.Allow(ctx, "id1", limits)
	res, err := l.Allow(ctx, "id1", limits)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "per-minute window is the tightest and should reject first")
}

func TestInProcessLimiter_ZeroLimitDisablesWindow(t *testing.T) {
	l := NewInProcessLimiter()
	ctx := context.Background()
	limits := Limits{PerMinute: 0, PerHour: 0, PerDay: 0}

	for i := 0; i < 50; i++ {
		res, err := l.Allow(ctx, "id1", limits)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "windows with cap<=0 are skipped entirely")
	}
}

func TestInProcessLimiter_IndependentIdentifiers(t *testing.T) {
	l := NewInProcessLimiter()
	ctx := context.Background()
	limits := Limits{PerMinute: 1, PerHour: 100, PerDay: 1000}

	res1, _ := l.Allow(ctx, "a", limits)
	res2, _ := l.Allow(ctx, "b", limits)
	assert.True(t, res1.Allowed)
	assert.True(t, res2.Allowed)
}

func TestInProcessLimiter_ExpiredEntriesAreTrimmed(t *testing.T) {
	l := NewInProcessLimiter()
	now := time.Now()
	old := now.Add(-2 * time.Minute)

	ts := trimExpired([]time.Time{old, now}, now, time.Minute)
	require.Len(t, ts, 1)
	assert.Equal(t, now, ts[0])
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLimiter_AllowsUnderLimit(t *testing.T) {
	l := NewRedisLimiter(newTestRedis(t))
	ctx := context.Background()
	limits := Limits{PerMinute: 3, PerHour: 100, PerDay: 1000}

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "id1", limits)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestRedisLimiter_DeniesOverLimit(t *testing.T) {
	l := NewRedisLimiter(newTestRedis(t))
	ctx := context.Background()
	limits := Limits{PerMinute: 2, PerHour: 100, PerDay: 1000}

	_, _ = l.Allow(ctx, "id1", limits)
	_, _ = l.Allow(ctx, "id1", limits)
	res, err := l.Allow(ctx, "id1", limits)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRedisLimiter_ConcurrentAdmissionNeverExceedsCap(t *testing.T) {
	l := NewRedisLimiter(newTestRedis(t))
	limits := Limits{PerMinute: 5, PerHour: 1000, PerDay: 10000}

	var wg sync.WaitGroup
	allowed := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "concurrent", limits)
			require.NoError(t, err)
			allowed[i] = res.Allowed
		}(i)
	}
	wg.Wait()

	count := 0
	for _, a := range allowed {
		if a {
			count++
		}
	}
	assert.Equal(t, 5, count, "the per-minute cap must hold even when admission races")
}

func TestRedisLimiter_FallsBackToInProcessWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLimiter(rdb)
	mr.Close() // simulate a dead backend before any call reaches it

	res, err := l.Allow(context.Background(), "id1", Limits{PerMinute: 1, PerHour: 100, PerDay: 1000})
	require.NoError(t, err, "a down Redis must fail open onto the in-process fallback, not error the caller")
	assert.True(t, res.Allowed)
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, 60, l.PerMinute)
	assert.Equal(t, 1000, l.PerHour)
	assert.Equal(t, 10000, l.PerDay)
}
