package agents

import (
	"context"
	"regexp"
	"strings"

	"github.com/aiser/queryengine/sqltranslate"
	"github.com/aiser/queryengine/types"
)

var fromClauseRe = regexp.MustCompile(`(?i)\bFROM\b`)

var fromTableRe = regexp.MustCompile(`(?i)\bFROM\s+([A-Za-z_]+)`)

var formatSuffixRe = regexp.MustCompile(`(?i)\s+FORMAT\s+\w+\s*$`)

// corruptionPatterns catches shapes the model sometimes emits that parse as
// syntactically plausible SQL but are never valid: truncated statements,
// doubled keywords from a retried/concatenated completion, and the literal
// "SELECT `table` AND columns" template echo.
var corruptionPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?i)SELECT\\s+`table`\\s+AND\\s+columns\\b"),
	regexp.MustCompile(`(?i)SELECT\s+SELECT\b`),
	regexp.MustCompile(`(?i)FROM\s+FROM\b`),
	regexp.MustCompile(`(?i)WHERE\s*$`),
	regexp.MustCompile(`(?i)\bFROM\s*$`),
}

// ValidateSQL runs the syntactic checks the original service's
// validation_node.py applies before a query ever reaches the database:
// statement shape, balanced parentheses (auto-fixed when the imbalance is
// small), and rejection of both dangerous operations and known corrupted
// shapes. It never executes the SQL.
func ValidateSQL(ctx context.Context, state *types.WorkflowState, deps Deps) (*types.WorkflowState, *types.ClassifiedError) {
	sql := strings.TrimSpace(state.SQLQuery)
	upper := strings.ToUpper(sql)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return state, &types.ClassifiedError{
			Category: types.CategorySQLValidation, Subtype: "syntax_error",
			Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
			SuggestedFix: "regenerate SQL with a simplified prompt",
			Message:      "query must start with SELECT or WITH",
		}
	}

	if !fromClauseRe.MatchString(sql) {
		return state, &types.ClassifiedError{
			Category: types.CategorySQLGeneration, Subtype: "missing_from_clause",
			Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
			SuggestedFix: "re-prompt NL2SQL with an explicit table list",
			Message:      "query has no FROM clause",
		}
	}

	for _, p := range corruptionPatterns {
		if p.MatchString(sql) {
			return state, &types.ClassifiedError{
				Category: types.CategorySQLValidation, Subtype: "syntax_error",
				Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
				SuggestedFix: "regenerate SQL with a simplified prompt",
				Message:      "query matches a known corrupted shape",
			}
		}
	}

	if m := fromTableRe.FindStringSubmatch(sql); m != nil {
		switch strings.ToUpper(m[1]) {
		case "SELECT", "WHERE", "GROUP", "ORDER", "BY", "LIMIT", "HAVING", "JOIN", "ON", "AND", "OR", "AS", "UNION":
			return state, &types.ClassifiedError{
				Category: types.CategorySQLValidation, Subtype: "syntax_error",
				Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
				SuggestedFix: "regenerate SQL with an explicit table after FROM",
				Message:      "FROM is followed by a reserved word instead of a table name",
			}
		}
	}

	fixed, ok := balanceParens(sql)
	if !ok {
		return state, &types.ClassifiedError{
			Category: types.CategorySQLValidation, Subtype: "unbalanced_parentheses",
			Severity: types.SeverityMedium, Recoverability: types.RecoverRetry,
			SuggestedFix: "regenerate SQL; parenthesis imbalance is too large to auto-fix",
			Message:      "parenthesis imbalance too large to auto-fix",
		}
	}

	// Validation normalizes against the standard (Postgres-flavoured) dialect
	// regardless of the data source's actual dialect; dialect-specific
	// translation happens immediately before execution, in RunQuery.
	normalized, _, err := sqltranslate.Translate(fixed, sqltranslate.Postgres)
	if err == sqltranslate.ErrDangerousStatement {
		return state, &types.ClassifiedError{
			Category: types.CategorySQLValidation, Subtype: "dangerous_statement",
			Severity: types.SeverityCritical, Recoverability: types.RecoverNone,
			SuggestedFix: "reject the query; data-mutating statements are never executed",
			Message:      "query contains a data-mutating statement",
		}
	}
	if err != nil {
		return state, &types.ClassifiedError{
			Category: types.CategorySQLValidation, Subtype: "syntax_error",
			Severity: types.SeverityHigh, Recoverability: types.RecoverRetry,
			SuggestedFix: "regenerate SQL with a simplified prompt", Message: err.Error(),
		}
	}

	state.SQLQuery = normalized
	state.Stage = types.StageSQLValidated
	return state, nil
}

// balanceParens repairs a parenthesis imbalance of at most two in either
// direction (the bound mirrors the original service's tolerance for minor
// LLM slips): up to two surplus closing parentheses are trimmed from the end
// of the statement, and up to two missing ones are inserted before a
// trailing FORMAT clause, or appended when there is none. ok is false when
// the imbalance exceeds that bound or an unmatched closing parenthesis is
// not at the end of the statement.
func balanceParens(sql string) (string, bool) {
	if extra := strings.Count(sql, ")") - strings.Count(sql, "("); extra > 0 && extra <= 2 {
		if !strings.HasSuffix(sql, strings.Repeat(")", extra)) {
			return sql, false
		}
		sql = sql[:len(sql)-extra]
	}
	depth := 0
	for _, r := range sql {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return sql, false
			}
		}
	}
	if depth == 0 {
		return sql, true
	}
	if depth > 2 {
		return sql, false
	}
	if loc := formatSuffixRe.FindStringIndex(sql); loc != nil {
		return sql[:loc[0]] + strings.Repeat(")", depth) + sql[loc[0]:], true
	}
	return sql + strings.Repeat(")", depth), true
}
