package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/schema"
	"github.com/aiser/queryengine/types"
)

func TestGenerateSQL_ExtractsFromFencedBlock(t *testing.T) {
	deps := newTestDeps(t, newMockProvider("```sql\nSELECT id, total FROM orders LIMIT 10\n```"))
	deps.Schemas = schema.NewRegistry(stubFetcher{schema: sampleSchema()}, deps.Cache)

	state := &types.WorkflowState{Query: "show me order totals", DataSourceID: "ds1"}
	got, ce := GenerateSQL(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Contains(t, got.SQLQuery, "SELECT")
	assert.Equal(t, types.StageSQLGenerated, got.Stage)
}

func TestGenerateSQL_InjectsLimitInStandardMode(t *testing.T) {
	deps := newTestDeps(t, newMockProvider("SELECT id FROM orders"))
	deps.Schemas = schema.NewRegistry(stubFetcher{schema: sampleSchema()}, deps.Cache)

	state := &types.WorkflowState{Query: "list orders", DataSourceID: "ds1", AnalysisMode: types.AnalysisStandard}
	got, ce := GenerateSQL(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Contains(t, got.SQLQuery, "LIMIT")
}

func TestGenerateSQL_ClassifiesMissingSQL(t *testing.T) {
	deps := newTestDeps(t, newMockProvider("I'm not sure how to answer that."))
	deps.Schemas = schema.NewRegistry(stubFetcher{schema: sampleSchema()}, deps.Cache)

	state := &types.WorkflowState{Query: "asdkjf", DataSourceID: "ds1"}
	_, ce := GenerateSQL(context.Background(), state, deps)
	require.NotNil(t, ce)
	assert.Equal(t, types.CategorySQLGeneration, ce.Category)
}
