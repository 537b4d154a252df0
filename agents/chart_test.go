package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/types"
)

func result(schemaCols []string, rows ...types.Row) *types.QueryResult {
	return &types.QueryResult{Schema: schemaCols, Rows: rows, RowCount: len(rows)}
}

func TestGenerateChart_EmptyResultIsTable(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(""))
	state := &types.WorkflowState{QueryResult: result([]string{"id"})}

	got, ce := GenerateChart(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Equal(t, "table", got.EChartsConfig.ChartType)
}

func TestGenerateChart_SingleMeasureFewRowsIsPie(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(""))
	state := &types.WorkflowState{QueryResult: result(
		[]string{"region", "revenue"},
		types.Row{"region": "east", "revenue": 100.0},
		types.Row{"region": "west", "revenue": 200.0},
	)}

	got, ce := GenerateChart(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Equal(t, "pie", got.EChartsConfig.ChartType)
}

func TestGenerateChart_TwoMeasuresIsLine(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(""))
	state := &types.WorkflowState{QueryResult: result(
		[]string{"month", "revenue", "cost"},
		types.Row{"month": "jan", "revenue": 100.0, "cost": 50.0},
	)}

	got, ce := GenerateChart(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Equal(t, "line", got.EChartsConfig.ChartType)
}

func TestGenerateChart_ManyRowsIsBar(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(""))
	rows := make([]types.Row, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, types.Row{"region": "r" + string(rune('a'+i)), "revenue": float64(i)})
	}
	state := &types.WorkflowState{QueryResult: result([]string{"region", "revenue"}, rows...)}

	got, ce := GenerateChart(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Equal(t, "bar", got.EChartsConfig.ChartType)
}
