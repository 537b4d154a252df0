package agents

import (
	"context"

	"github.com/aiser/queryengine/types"
)

// ValidateResults checks the shape of a materialized query result before
// any downstream agent reasons about it: an empty result is not an error
// (it's information for the narrator), but a result with no schema at all
// signals the executor returned something malformed.
func ValidateResults(ctx context.Context, state *types.WorkflowState, deps Deps) (*types.WorkflowState, *types.ClassifiedError) {
	if state.QueryResult == nil || len(state.QueryResult.Schema) == 0 {
		return state, &types.ClassifiedError{
			Category: types.CategoryDataAccess, Subtype: "malformed_result",
			Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
			SuggestedFix: "retry query execution",
			Message:      "query result carries no column schema",
		}
	}

	if state.QueryResult.RowCount == 0 {
		state.Error = &types.ClassifiedError{
			Category: types.CategoryDataAccess, Subtype: "empty_result",
			Severity: types.SeverityInfo, Recoverability: types.RecoverNone,
			SuggestedFix: "inform the user the query returned no matching rows",
			Message:      "query returned no rows",
		}
	}

	state.Stage = types.StageResultsValidated
	return state, nil
}
