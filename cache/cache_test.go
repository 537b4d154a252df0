package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiser/queryengine/internal/metrics"
)

func newTestCache(t *testing.T) *LayeredCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(Config{LocalCapacity: 100, DefaultTTL: time.Minute, Redis: rdb}, nil)
}

func TestLayeredCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	val, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "v1", string(val))
}

func TestLayeredCache_FallsBackToLocalWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(Config{LocalCapacity: 100, Redis: rdb}, nil)

	ctx := context.Background()
	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	mr.Close() // simulate backend failure after the local tier already has it

	val, ok := c.Get(ctx, "k1")
	require.True(t, ok, "local tier should serve the value once Redis is unreachable")
	assert.Equal(t, "v1", string(val))
}

func TestNamespaceKeys_AreDeterministicAndIsolated(t *testing.T) {
	// Schema key: sha256("schema|"+dataSourceId) truncated to 32 hex chars
	assert.Len(t, SchemaKey("ds1"), 32)
	assert.Equal(t, SchemaKey("ds1"), SchemaKey("ds1"))
	assert.NotEqual(t, SchemaKey("ds1"), SchemaKey("ds2"))

	// AI key: md5(prompt+":"+contextFingerprint+":"+conversationId) — isolates per conversation.
	k1 := AIResponseKey("prompt", "fp", "conv1")
	k2 := AIResponseKey("prompt", "fp", "conv2")
	assert.NotEqual(t, k1, k2)
}

func TestLayeredCache_RecordsHitAndMissMetrics(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	collector := metrics.NewCollector("cache_test_hit_miss", zap.NewNop())
	c := New(Config{LocalCapacity: 100, Redis: rdb, Namespace: "schema", Metrics: collector}, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "absent")
	require.False(t, ok)

	c.Set(ctx, "present", []byte("v"), time.Minute)
	_, ok = c.Get(ctx, "present")
	require.True(t, ok)
}

func TestNamespace_JSONRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ns := Queries(c, time.Minute)
	ctx := context.Background()

	type payload struct{ N int }
	require.NoError(t, ns.SetJSON(ctx, "k", payload{N: 42}))

	var got payload
	require.True(t, ns.GetJSON(ctx, "k", &got))
	assert.Equal(t, 42, got.N)
}
