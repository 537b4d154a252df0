package agents

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/cache"
	"github.com/aiser/queryengine/executor"
	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/schema"
	"github.com/aiser/queryengine/testutil/mocks"
)

type stubFetcher struct{ schema *schema.Schema }

func (f stubFetcher) FetchSchema(_ context.Context, _ string) (*schema.Schema, error) {
	return f.schema, nil
}

func sampleSchema() *schema.Schema {
	return &schema.Schema{
		DataSourceID: "ds1",
		Tables: []schema.Table{
			{Name: "orders", Columns: []schema.Column{{Name: "id", Type: "int"}, {Name: "total", Type: "numeric"}, {Name: "customer_id", Type: "int"}}},
		},
	}
}

func newTestDeps(t *testing.T, provider llm.Provider) Deps {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.New(cache.Config{LocalCapacity: 100, DefaultTTL: time.Minute, Redis: rdb}, nil)

	registry := llm.NewProviderRegistry()
	registry.Register("mock", provider)
	require.NoError(t, registry.SetDefault("mock"))
	gw := llm.NewGateway(registry, llm.GatewayConfig{})

	return Deps{
		Gateway:  gw,
		Schemas:  nil, // set per test when needed
		Executor: executor.NewRegistry(nil),
		Cache:    c,
		Model:    "mock",
	}
}

func newMockProvider(response string) *mocks.MockProvider {
	return mocks.NewMockProvider().WithResponse(response)
}
