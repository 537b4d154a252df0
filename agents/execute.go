package agents

import (
	"context"
	"time"

	"github.com/aiser/queryengine/cache"
	"github.com/aiser/queryengine/errclass"
	"github.com/aiser/queryengine/executor"
	"github.com/aiser/queryengine/sqltranslate"
	"github.com/aiser/queryengine/types"
)

const (
	defaultQueryTimeoutSec = 30
	queryResultTTL         = time.Hour
)

// RunQuery translates the validated SQL to the data source's actual dialect
// and dispatches it through the executor registry, caching the result under
// the query-result namespace's key formula so an identical query within the
// cache TTL skips the database entirely.
func RunQuery(ctx context.Context, state *types.WorkflowState, deps Deps) (*types.WorkflowState, *types.ClassifiedError) {
	state.Stage = types.StageQueryExecuting

	dialect := sqltranslate.NormalizeDialect(state.Dialect)
	targetSQL, _, err := sqltranslate.Translate(state.SQLQuery, dialect)
	if err != nil {
		return state, &types.ClassifiedError{
			Category: types.CategorySQLValidation, Subtype: "dangerous_statement",
			Severity: types.SeverityCritical, Recoverability: types.RecoverNone,
			SuggestedFix: "reject the query; data-mutating statements are never executed",
			Message:      err.Error(),
		}
	}

	queries := cache.Queries(deps.Cache, queryResultTTL)
	key := cache.QueryKey(state.DataSourceID, sqltranslate.Normalize(targetSQL))

	var cached types.QueryResult
	if queries.GetJSON(ctx, key, &cached) {
		state.QueryResult = &cached
		state.Stage = types.StageQueryExecuted
		return state, nil
	}

	maxRows := sqltranslate.DefaultStandardModeLimit
	if state.AnalysisMode == types.AnalysisDeep {
		maxRows = 10000
	}

	result := executor.Execute(ctx, deps.Executor, executor.ExecuteRequest{
		SQL:          targetSQL,
		DataSourceID: state.DataSourceID,
		TimeoutSec:   defaultQueryTimeoutSec,
		MaxRows:      maxRows,
	})

	if !result.OK {
		return state, errclass.Classify(result.Error, errclass.StageContext{Stage: types.StageQueryExecuting})
	}

	state.QueryResult = &types.QueryResult{
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Schema:    result.Schema,
		Truncated: result.Truncated,
	}
	_ = queries.SetJSON(ctx, key, state.QueryResult)
	state.Stage = types.StageQueryExecuted
	return state, nil
}
