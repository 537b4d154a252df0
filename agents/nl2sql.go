package agents

import (
	"context"
	"regexp"
	"strings"

	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/schema"
	"github.com/aiser/queryengine/sqltranslate"
	"github.com/aiser/queryengine/types"
)

const nl2sqlSystemPrompt = `You translate a natural-language analytics question into a single read-only SQL query.
Use only the tables and columns listed in the schema below. Never write DROP, DELETE, TRUNCATE, ALTER, CREATE, INSERT, or UPDATE statements.
Respond with the SQL query only, wrapped in a single ` + "```sql" + ` code block, no prose.`

var sqlCodeBlockRe = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")

// GenerateSQL asks the gateway for a SQL query over the request's data
// source, using a token-budgeted view of its schema (ported from the
// original service's ai_schema_service.py schema-pruning step via
// schema.Optimize), and writes state.SQLQuery.
func GenerateSQL(ctx context.Context, state *types.WorkflowState, deps Deps) (*types.WorkflowState, *types.ClassifiedError) {
	full, err := deps.Schemas.Get(ctx, state.DataSourceID)
	if err != nil {
		return state, &types.ClassifiedError{
			Category: types.CategorySchema, Subtype: "schema_fetch_failed",
			Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
			SuggestedFix: "retry once the data source's schema is reachable",
			Message:      err.Error(),
		}
	}

	budget := 4000
	if state.AnalysisMode == types.AnalysisDeep {
		budget = 8000
	}
	pruned := schema.Optimize(full, state.Query, deps.Model, budget)

	prompt := nl2sqlSystemPrompt + "\n\nSchema:\n" + schema.FormatCompact(pruned) + "\n\nQuestion: " + state.Query

	resp, callErr := deps.Gateway.Complete(ctx, deps.Model, &llm.ChatRequest{
		Messages: []llm.Message{
			types.NewSystemMessage(prompt),
			types.NewUserMessage(state.Query),
		},
		Temperature: 0,
		MaxTokens:   800,
	})
	if callErr != nil {
		return state, &types.ClassifiedError{
			Category: types.CategorySQLGeneration, Subtype: "llm_call_failed",
			Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
			SuggestedFix: "retry SQL generation", Message: callErr.Error(),
		}
	}
	state.AddTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	sql := extractSQL(responseText(resp))
	if sql == "" {
		return state, &types.ClassifiedError{
			Category: types.CategorySQLGeneration, Subtype: "missing_from_clause",
			Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
			SuggestedFix: "re-prompt NL2SQL with an explicit table list",
			Message:      "model response contained no SQL",
		}
	}

	cap := sqltranslate.DefaultStandardModeLimit
	if state.AnalysisMode == types.AnalysisDeep {
		cap = 0 // deep mode: don't force a LIMIT
	}
	state.SQLQuery = sqltranslate.EnsureLimit(sql, cap)
	state.Stage = types.StageSQLGenerated
	return state, nil
}

func responseText(resp *llm.ChatResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// extractSQL pulls a query out of a fenced code block. When the model didn't
// fence its answer, the trimmed text is returned only if it starts with
// SELECT or WITH; otherwise the result is empty.
func extractSQL(text string) string {
	if m := sqlCodeBlockRe.FindStringSubmatch(text); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return trimmed
	}
	return ""
}
