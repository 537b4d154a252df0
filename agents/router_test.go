package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/types"
)

func TestRoute_ConversationalBranchWhenNoDataSource(t *testing.T) {
	deps := newTestDeps(t, newMockProvider("irrelevant"))
	state := &types.WorkflowState{Query: "hi there"}

	got, ce := Route(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Equal(t, "conversation", got.RoutingDecision.PrimaryAgent)
	assert.Equal(t, types.StageRoutedInsights, got.Stage)
}

func TestRoute_ParsesModelJSONDecision(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(`{"primary_agent":"nl2sql","strategy":"sequential","confidence":0.9,"reasoning":"needs data"}`))
	state := &types.WorkflowState{Query: "show me revenue by region", DataSourceID: "ds1"}

	got, ce := Route(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Equal(t, "nl2sql", got.RoutingDecision.PrimaryAgent)
	assert.Equal(t, types.StageRoutedNL2SQL, got.Stage)
}

func TestRoute_FallsBackOnUnparseableReply(t *testing.T) {
	deps := newTestDeps(t, newMockProvider("not json at all"))
	state := &types.WorkflowState{Query: "show me revenue", DataSourceID: "ds1"}

	got, ce := Route(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Equal(t, "nl2sql", got.RoutingDecision.PrimaryAgent)
	assert.Equal(t, 0.5, got.RoutingDecision.Confidence)
}
