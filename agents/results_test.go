package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/types"
)

func TestValidateResults_RejectsMissingSchema(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(""))
	state := &types.WorkflowState{QueryResult: &types.QueryResult{}}

	_, ce := ValidateResults(context.Background(), state, deps)
	require.NotNil(t, ce)
	assert.Equal(t, "malformed_result", ce.Subtype)
}

func TestValidateResults_FlagsEmptyResultAsInfoNotFailure(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(""))
	state := &types.WorkflowState{QueryResult: &types.QueryResult{Schema: []string{"id"}, RowCount: 0}}

	got, ce := ValidateResults(context.Background(), state, deps)
	require.Nil(t, ce)
	require.NotNil(t, got.Error)
	assert.Equal(t, types.SeverityInfo, got.Error.Severity)
	assert.Equal(t, types.StageResultsValidated, got.Stage)
}

func TestValidateResults_AcceptsNonEmptyResult(t *testing.T) {
	deps := newTestDeps(t, newMockProvider(""))
	state := &types.WorkflowState{QueryResult: &types.QueryResult{Schema: []string{"id"}, RowCount: 3}}

	got, ce := ValidateResults(context.Background(), state, deps)
	require.Nil(t, ce)
	assert.Nil(t, got.Error)
}
