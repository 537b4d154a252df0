// Package errclass classifies workflow failures into a stable taxonomy and
// plans how the orchestrator should recover from them.
//
// Ported from the original service's error_classifier.py: a keyword-pattern
// cascade over the error text plus the stage the failure occurred in,
// producing category -> subtype -> severity -> recoverability -> suggested
// fix -> retry strategy -> confidence, deterministically.
package errclass

import (
	"strings"

	"github.com/aiser/queryengine/types"
)

// StageContext is the minimal stage information the classifier needs; it
// avoids importing the orchestrator package to keep errclass dependency-free.
type StageContext struct {
	Stage types.Stage
}

type rule struct {
	keywords []string
	category types.ErrorCategory
	subtype  string
	severity types.Severity
	recover  types.Recoverability
	fix      string
	retry    string
	conf     float64
}

// rules is checked top-to-bottom; the first matching rule wins. Order
// mirrors the original Python cascade: syntax/shape errors before generic
// connection/permission errors, which are before the unknown fallback.
var rules = []rule{
	{
		keywords: []string{"unbalanced parenthes", "mismatched parenthes"},
		category: types.CategorySQLValidation, subtype: "unbalanced_parentheses",
		severity: types.SeverityMedium, recover: types.RecoverAutomatic,
		fix: "balance parentheses in the generated SQL", retry: "automatic_fix", conf: 0.9,
	},
	{
		keywords: []string{"missing from clause", "no from clause", "expected from"},
		category: types.CategorySQLGeneration, subtype: "missing_from_clause",
		severity: types.SeverityHigh, recover: types.RecoverRetry,
		fix: "re-prompt NL2SQL with an explicit table list", retry: "retry_with_backoff", conf: 0.9,
	},
	{
		keywords: []string{"table not found", "relation does not exist", "no such table", "unknown table"},
		category: types.CategorySchema, subtype: "table_not_found",
		severity: types.SeverityHigh, recover: types.RecoverRetry,
		fix: "re-fetch schema and regenerate SQL against verified table names", retry: "retry_with_fresh_schema", conf: 0.9,
	},
	{
		keywords: []string{"column not found", "unknown column", "no such column"},
		category: types.CategorySchema, subtype: "column_not_found",
		severity: types.SeverityMedium, recover: types.RecoverRetry,
		fix: "re-prompt NL2SQL with the exact column names", retry: "retry_with_fixed_sql", conf: 0.85,
	},
	{
		keywords: []string{"syntax error", "parse error", "unexpected token"},
		category: types.CategorySQLValidation, subtype: "syntax_error",
		severity: types.SeverityHigh, recover: types.RecoverRetry,
		fix: "regenerate SQL with a simplified prompt", retry: "retry_with_backoff", conf: 0.85,
	},
	{
		keywords: []string{"permission denied", "access denied", "not authorized", "insufficient privilege"},
		category: types.CategoryPermission, subtype: "access_denied",
		severity: types.SeverityHigh, recover: types.RecoverManual,
		fix: "request elevated data-source access", retry: "manual_intervention_required", conf: 0.9,
	},
	{
		keywords: []string{"connection refused", "connection reset", "could not connect", "no route to host"},
		category: types.CategoryConnection, subtype: "connection_refused",
		severity: types.SeverityCritical, recover: types.RecoverRetry,
		fix: "retry after a backoff delay; escalate if the data source stays unreachable", retry: "retry_with_backoff", conf: 0.8,
	},
	{
		keywords: []string{"timeout", "deadline exceeded", "context canceled"},
		category: types.CategoryTimeout, subtype: "operation_timeout",
		severity: types.SeverityMedium, recover: types.RecoverRetry,
		fix: "retry with a reduced row limit or narrower time range", retry: "retry_with_backoff", conf: 0.7,
	},
	{
		keywords: []string{"rate limit", "too many requests", "429"},
		category: types.CategoryLLM, subtype: "rate_limit_exceeded",
		severity: types.SeverityMedium, recover: types.RecoverRetry,
		fix: "retry after the provider's advertised backoff window", retry: "retry_with_backoff", conf: 0.9,
	},
	{
		keywords: []string{"context length", "too many tokens", "maximum context"},
		category: types.CategoryLLM, subtype: "context_too_long",
		severity: types.SeverityMedium, recover: types.RecoverAutomatic,
		fix: "prune the schema further and retry with a smaller prompt", retry: "automatic_fix", conf: 0.85,
	},
	{
		keywords: []string{"dangerous operation", "not a select", "mutating statement"},
		category: types.CategorySQLValidation, subtype: "dangerous_statement",
		severity: types.SeverityCritical, recover: types.RecoverNone,
		fix: "reject the query; data-mutating statements are never executed", retry: "manual_intervention_required", conf: 0.95,
	},
	{
		keywords: []string{"empty result", "no rows"},
		category: types.CategoryDataAccess, subtype: "empty_result",
		severity: types.SeverityInfo, recover: types.RecoverNone,
		fix: "inform the user the query returned no matching rows", retry: "", conf: 0.6,
	},
}

// recoveryOverrides holds per-subtype retry-budget overrides, mirroring the
// original static recovery_strategies table's max_retries/backoff_multiplier.
var recoveryOverrides = map[string]int{
	"table_not_found":     1,
	"column_not_found":    2,
	"connection_refused":  3,
	"rate_limit_exceeded":  3,
}

// MaxRetries returns the retry budget override for a classified error's
// subtype, or ok=false when no override exists (caller should use the
// stage's default budget).
func MaxRetries(subtype string) (int, bool) {
	n, ok := recoveryOverrides[subtype]
	return n, ok
}

// Classify maps a raw error message and the stage it occurred in to a
// ClassifiedError. Falls back to an unknown/manual classification when no
// rule matches, so the orchestrator always has a recoverability to act on.
func Classify(errMessage string, ctx StageContext) *types.ClassifiedError {
	lower := strings.ToLower(errMessage)

	for _, r := range rules {
		if matchesAny(lower, r.keywords) {
			return &types.ClassifiedError{
				Category:       r.category,
				Subtype:        r.subtype,
				Severity:       r.severity,
				Recoverability: r.recover,
				SuggestedFix:   r.fix,
				RetryStrategy:  r.retry,
				Confidence:     r.conf,
				Message:        errMessage,
			}
		}
	}

	return &types.ClassifiedError{
		Category:       categoryForStage(ctx.Stage),
		Subtype:        "unclassified",
		Severity:       types.SeverityMedium,
		Recoverability: types.RecoverManual,
		SuggestedFix:   "inspect the error manually; no automatic rule matched",
		RetryStrategy:  "manual_intervention_required",
		Confidence:     0.5,
		Message:        errMessage,
	}
}

func matchesAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// categoryForStage gives the unknown-rule fallback a category that at least
// reflects which part of the pipeline failed.
func categoryForStage(stage types.Stage) types.ErrorCategory {
	switch stage {
	case types.StageSQLGenerated:
		return types.CategorySQLGeneration
	case types.StageSQLValidated:
		return types.CategorySQLValidation
	case types.StageQueryExecuting, types.StageQueryExecuted:
		return types.CategorySQLExecution
	default:
		return types.CategoryUnknown
	}
}
