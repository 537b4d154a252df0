package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/agents"
	"github.com/aiser/queryengine/cache"
	"github.com/aiser/queryengine/executor"
	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/ratequota"
	"github.com/aiser/queryengine/schema"
	"github.com/aiser/queryengine/streaming"
	"github.com/aiser/queryengine/testutil/mocks"
	"github.com/aiser/queryengine/types"
)

type stubFetcher struct{ schema *schema.Schema }

func (f stubFetcher) FetchSchema(_ context.Context, _ string) (*schema.Schema, error) {
	return f.schema, nil
}

func sampleSchema() *schema.Schema {
	return &schema.Schema{
		DataSourceID: "ds1",
		Tables: []schema.Table{
			{Name: "orders", Columns: []schema.Column{{Name: "id", Type: "int"}, {Name: "total", Type: "numeric"}}},
		},
	}
}

func newTestDeps(t *testing.T, provider llm.Provider) agents.Deps {
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

	return agents.Deps{
		Gateway:  gw,
		Schemas:  schema.NewRegistry(stubFetcher{schema: sampleSchema()}, c),
		Executor: executor.NewRegistry(nil),
		Cache:    c,
		Model:    "mock",
	}
}

func newMockProvider(response string) *mocks.MockProvider {
	return mocks.NewMockProvider().WithResponse(response)
}

func newSession(t *testing.T) *streaming.Session {
	t.Helper()
	sess := streaming.NewSession(context.Background(), streaming.Config{BufferSize: 64})
	t.Cleanup(sess.Cancel)
	return sess
}

func drain(sess *streaming.Session) []streaming.Frame {
	var out []streaming.Frame
	for {
		select {
		case f := <-sess.Frames():
			out = append(out, f)
		default:
			return out
		}
	}
}

func baseState(requestID, dataSourceID string) *types.WorkflowState {
	return &types.WorkflowState{
		RequestID:    requestID,
		Query:        "how many orders do we have",
		DataSourceID: dataSourceID,
		Tenant:       types.Tenant{ID: "tenant1", Plan: types.PlanPro, AICreditsLimit: -1},
		UserRef:      types.UserRef{ID: "user1", Role: types.RoleAnalyst},
	}
}

const sqlFence = "```sql\nSELECT id, total FROM orders\n```"

func TestRun_HappyPathDataBranch(t *testing.T) {
	provider := newMockProvider(sqlFence)
	deps := newTestDeps(t, provider)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	deps.Executor.Register("ds1", executor.NewSQLBackend(db))
	rows := sqlmock.NewRows([]string{"id", "total"}).AddRow(1, 99.5).AddRow(2, 10.0)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	o := New(deps, nil, nil, nil)
	sess := newSession(t)
	state := baseState("req1", "ds1")

	got, err := o.Run(context.Background(), sess, state)
	require.NoError(t, err)
	assert.Equal(t, types.StageComplete, got.Stage)
	assert.NotNil(t, got.QueryResult)
	assert.Equal(t, 2, got.QueryResult.RowCount)
	assert.NotNil(t, got.EChartsConfig)
	assert.False(t, got.CriticalFailure)
	assert.Nil(t, got.Error)

	frames := drain(sess)
	require.NotEmpty(t, frames)
	assert.Equal(t, streaming.FrameStart, frames[0].Kind)
	last := frames[len(frames)-1]
	assert.Equal(t, streaming.FrameComplete, last.Kind)

	var sawChart, sawInsights bool
	for _, f := range frames {
		if f.Kind == streaming.FrameChart {
			sawChart = true
		}
		if f.Kind == streaming.FrameInsights {
			sawInsights = true
		}
	}
	assert.True(t, sawChart, "expected a dedicated chart frame")
	assert.True(t, sawInsights, "expected a dedicated insights frame")
}

func TestRun_ConversationalBranchSkipsDataStages(t *testing.T) {
	provider := newMockProvider("Hello! How can I help with your analytics today?")
	deps := newTestDeps(t, provider)

	o := New(deps, nil, nil, nil)
	sess := newSession(t)
	state := baseState("req2", "")

	got, err := o.Run(context.Background(), sess, state)
	require.NoError(t, err)
	assert.Equal(t, types.StageComplete, got.Stage)
	assert.Nil(t, got.QueryResult)
	assert.Nil(t, got.EChartsConfig)
	assert.NotEmpty(t, got.Narration)

	frames := drain(sess)
	for _, f := range frames {
		require.NotEqual(t, streaming.FrameChart, f.Kind)
		require.NotEqual(t, streaming.FrameInsights, f.Kind)
	}
}

func TestRun_RetriesAndRewindsToNL2SQL(t *testing.T) {
	calls := 0
	nl2sqlCalls := 0
	provider := mocks.NewMockProvider().WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		content := "Hello!"
		if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "translate a natural-language") {
			nl2sqlCalls++
			content = "```sql\nSELECT id FROM orders\n```"
			if nl2sqlCalls == 1 {
				// First generation omits the FROM clause; ValidateSQL rejects it
				// with a retryable missing_from_clause error that rewinds here.
				content = "```sql\nSELECT id\n```"
			}
		}
		return &llm.ChatResponse{
			Choices: []llm.ChatChoice{{Message: types.Message{Role: types.RoleAssistant, Content: content}}},
			Usage:   llm.ChatUsage{PromptTokens: 5, CompletionTokens: 5},
		}, nil
	})
	deps := newTestDeps(t, provider)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	deps.Executor.Register("ds1", executor.NewSQLBackend(db))
	rows := sqlmock.NewRows([]string{"id"}).AddRow(1)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	o := New(deps, nil, nil, nil)
	sess := newSession(t)
	state := baseState("req3", "ds1")

	got, err := o.Run(context.Background(), sess, state)
	require.NoError(t, err)
	assert.Equal(t, types.StageComplete, got.Stage)
	assert.GreaterOrEqual(t, nl2sqlCalls, 2, "expected nl2sql to run again after the rewind")
	assert.Greater(t, calls, nl2sqlCalls, "expected router/insights to also call the gateway")
	assert.Equal(t, 1, got.ExecutionMetadata.Retries[types.Stage(stageValidate)])
}

func TestRun_FailsAtUnrecoverableError(t *testing.T) {
	provider := newMockProvider("```sql\nSELECT id FROM orders; DROP TABLE orders\n```")
	deps := newTestDeps(t, provider)

	o := New(deps, nil, nil, nil)
	sess := newSession(t)
	state := baseState("req4", "ds1")

	got, err := o.Run(context.Background(), sess, state)
	require.Error(t, err)
	assert.Equal(t, types.StageFailed, got.Stage)
	assert.True(t, got.CriticalFailure)
	require.NotNil(t, got.Error)
	assert.Equal(t, "dangerous_statement", got.Error.Subtype)

	frames := drain(sess)
	last := frames[len(frames)-1]
	assert.Equal(t, streaming.FrameError, last.Kind)
}

func TestRun_WriteAllowListViolationFailsRun(t *testing.T) {
	orig := pipeline[stageIndex(stageChart)]
	misbehaving := orig
	misbehaving.run = func(ctx context.Context, state *types.WorkflowState, deps agents.Deps) (*types.WorkflowState, *types.ClassifiedError) {
		next, ce := orig.run(ctx, state, deps)
		if next != nil {
			next.Narration = "chart stage should not write this"
		}
		return next, ce
	}
	pipeline[stageIndex(stageChart)] = misbehaving
	defer func() { pipeline[stageIndex(stageChart)] = orig }()

	provider := newMockProvider(sqlFence)
	deps := newTestDeps(t, provider)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	deps.Executor.Register("ds1", executor.NewSQLBackend(db))
	rows := sqlmock.NewRows([]string{"id", "total"}).AddRow(1, 1.0)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	o := New(deps, nil, nil, nil)
	sess := newSession(t)
	state := baseState("req5", "ds1")

	got, err := o.Run(context.Background(), sess, state)
	require.Error(t, err)
	assert.Equal(t, types.StageFailed, got.Stage)
	require.NotNil(t, got.Error)
	assert.Equal(t, "state_integrity", got.Error.Subtype)
}

func TestRun_CircuitBreakerTripStopsRetrying(t *testing.T) {
	provider := newMockProvider("```sql\nSELECT id\n```") // always missing FROM, always retryable
	deps := newTestDeps(t, provider)

	o := New(deps, nil, nil, nil)
	b := o.Breakers.GetOrCreate(stageRoute)
	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}

	sess := newSession(t)
	state := baseState("req6", "ds1")

	got, err := o.Run(context.Background(), sess, state)
	require.Error(t, err)
	assert.Equal(t, types.StageFailed, got.Stage)
	require.NotNil(t, got.Error)
	assert.Equal(t, "circuit_open", got.Error.Subtype)
}

func TestRun_ConsumesQuotaOnlyOnSuccess(t *testing.T) {
	provider := newMockProvider(sqlFence)
	deps := newTestDeps(t, provider)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	deps.Executor.Register("ds1", executor.NewSQLBackend(db))
	rows := sqlmock.NewRows([]string{"id", "total"}).AddRow(1, 5.0)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	quota := ratequota.NewQuotaManager()
	o := New(deps, quota, nil, nil)
	sess := newSession(t)
	state := baseState("req7", "ds1")
	state.Tenant.AICreditsLimit = 1_000_000

	got, err := o.Run(context.Background(), sess, state)
	require.NoError(t, err)
	assert.Greater(t, got.ExecutionMetadata.TokensIn+got.ExecutionMetadata.TokensOut, 0)

	check := quota.Check(state.Tenant, 0)
	assert.Less(t, check.Remaining, int64(1_000_000), "expected tokens spent this run to be debited from the tenant's quota")
}

func TestRun_DoesNotConsumeQuotaOnFailure(t *testing.T) {
	provider := newMockProvider("```sql\nSELECT id FROM orders; DROP TABLE orders\n```")
	deps := newTestDeps(t, provider)

	quota := ratequota.NewQuotaManager()
	o := New(deps, quota, nil, nil)
	sess := newSession(t)
	state := baseState("req8", "ds1")
	state.Tenant.AICreditsLimit = 1_000_000

	_, err := o.Run(context.Background(), sess, state)
	require.Error(t, err)

	check := quota.Check(state.Tenant, 0)
	assert.Equal(t, int64(1_000_000), check.Remaining, "a failed run must never debit the tenant's quota")
}
