package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/types"
)

func TestGenerateInsights_EmptyResultShortCircuits(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(""))
	state := &types.WorkflowState{QueryResult: &types.QueryResult{RowCount: 0}}

	got, ce := GenerateInsights(context.Background(), state, deps)
	require.Nil(t, ce)
	require.Len(t, got.Insights, 1)
	assert.Equal(t, types.StageInsightsGenerated, got.Stage)
}

func TestGenerateInsights_ParsesModelJSON(t *testing.T) {
	reply := `{"insights":[{"title":"Revenue up","description":"Revenue grew 10%","confidence":0.8}],"recommendations":[{"title":"Investigate east region","description":"East region underperforms"}]}`
	deps := newTestDeps(t, newMockProvider(reply))
	state := &types.WorkflowState{
		UserRef:     types.UserRef{Role: types.RoleManager},
		QueryResult: &types.QueryResult{RowCount: 2, Schema: []string{"region", "revenue"}, Rows: []types.Row{{"region": "east", "revenue": 1.0}}},
	}

	got, ce := GenerateInsights(context.Background(), state, deps)
	require.Nil(t, ce)
	require.Len(t, got.Insights, 1)
	assert.Equal(t, "Revenue up", got.Insights[0].Title)
	require.Len(t, got.Recommendations, 1)
}

func TestGenerateInsights_UnparseableReplyYieldsNoInsightsNotFailure(t *testing.T) {
	deps := newTestDeps(t, newMockProvider("not json"))
	state := &types.WorkflowState{
		QueryResult: &types.QueryResult{RowCount: 1, Schema: []string{"id"}, Rows: []types.Row{{"id": 1}}},
	}

	got, ce := GenerateInsights(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Empty(t, got.Insights)
	assert.Equal(t, types.StageInsightsGenerated, got.Stage)
}
