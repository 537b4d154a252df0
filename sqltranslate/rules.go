package sqltranslate

import (
	"regexp"
	"strings"
)

// Rule is one independently testable normalization pass in the translation
// pipeline. Each rule receives the SQL produced by the previous rule and
// returns its rewritten form plus an optional advisory warning.
type Rule interface {
	Name() string
	Apply(sql string, target Dialect) (out string, warning string)
}

// Pipeline returns the ordered rule list applied for a given target dialect.
// Ordering matters: whitespace/semicolon normalization runs first so later,
// pattern-based rules see a canonical shape.
func Pipeline(target Dialect) []Rule {
	return []Rule{
		stripTrailingSemicolonRule{},
		normalizeWhitespaceRule{},
		concatOperatorRule{},
		dateTruncRule{},
		limitClauseRule{},
		clickhouseFormatRule{},
	}
}

type stripTrailingSemicolonRule struct{}

func (stripTrailingSemicolonRule) Name() string { return "strip_trailing_semicolon" }

func (stripTrailingSemicolonRule) Apply(sql string, _ Dialect) (string, string) {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\n"), ""
}

type normalizeWhitespaceRule struct{}

func (normalizeWhitespaceRule) Name() string { return "normalize_whitespace" }

var whitespaceRe = regexp.MustCompile(`\s+`)

func (normalizeWhitespaceRule) Apply(sql string, _ Dialect) (string, string) {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(sql, " ")), ""
}

// concatOperatorRule converts the standard `||` concatenation operator into
// each dialect's native equivalent.
type concatOperatorRule struct{}

func (concatOperatorRule) Name() string { return "concat_operator" }

var concatRe = regexp.MustCompile(`(?i)([\w\.\"\']+)\s*\|\|\s*([\w\.\"\']+)`)

func (concatOperatorRule) Apply(sql string, target Dialect) (string, string) {
	switch target {
	case MySQL:
		return concatRe.ReplaceAllString(sql, "CONCAT($1, $2)"), ""
	default:
		// Postgres, Snowflake, BigQuery, Redshift, DuckDB, SQLite, ClickHouse
		// all accept the standard || operator; leave untouched.
		return sql, ""
	}
}

// dateTruncRule converts the standard DATE_TRUNC('unit', col) call into the
// target dialect's equivalent.
type dateTruncRule struct{}

func (dateTruncRule) Name() string { return "date_trunc" }

var dateTruncRe = regexp.MustCompile(`(?i)DATE_TRUNC\(\s*'(\w+)'\s*,\s*([\w\.]+)\s*\)`)

func (dateTruncRule) Apply(sql string, target Dialect) (string, string) {
	switch target {
	case MySQL:
		return dateTruncRe.ReplaceAllStringFunc(sql, func(m string) string {
			parts := dateTruncRe.FindStringSubmatch(m)
			unit, col := mysqlDateFormat(parts[1]), parts[2]
			return "DATE_FORMAT(" + col + ", '" + unit + "')"
		}), ""
	case ClickHouse:
		return dateTruncRe.ReplaceAllStringFunc(sql, func(m string) string {
			parts := dateTruncRe.FindStringSubmatch(m)
			return "toStartOfInterval(" + parts[2] + ", INTERVAL 1 " + strings.ToUpper(parts[1]) + ")"
		}), ""
	case SQLite:
		return dateTruncRe.ReplaceAllStringFunc(sql, func(m string) string {
			parts := dateTruncRe.FindStringSubmatch(m)
			return "strftime(" + sqliteFormatFor(parts[1]) + ", " + parts[2] + ")"
		}), ""
	default:
		return sql, ""
	}
}

func mysqlDateFormat(unit string) string {
	switch strings.ToLower(unit) {
	case "day":
		return "%Y-%m-%d"
	case "month":
		return "%Y-%m-01"
	case "year":
		return "%Y-01-01"
	case "hour":
		return "%Y-%m-%d %H:00:00"
	default:
		return "%Y-%m-%d"
	}
}

func sqliteFormatFor(unit string) string {
	switch strings.ToLower(unit) {
	case "day":
		return "'%Y-%m-%d'"
	case "month":
		return "'%Y-%m'"
	case "year":
		return "'%Y'"
	default:
		return "'%Y-%m-%d'"
	}
}

// limitClauseRule ensures dialect-appropriate LIMIT syntax; most dialects in
// scope already accept standard LIMIT N, so this is mainly a validation pass
// reserved for future dialects needing TOP-N syntax.
type limitClauseRule struct{}

func (limitClauseRule) Name() string { return "limit_clause" }

func (limitClauseRule) Apply(sql string, _ Dialect) (string, string) {
	return sql, ""
}

// clickhouseFormatRule returns every statement unchanged: it never adds a
// FORMAT clause, for ClickHouse or any other dialect, and never rewrites an
// existing one.
type clickhouseFormatRule struct{}

func (clickhouseFormatRule) Name() string { return "clickhouse_format" }

var formatClauseRe = regexp.MustCompile(`(?i)\bFORMAT\s+\w+\s*$`)

func (clickhouseFormatRule) Apply(sql string, target Dialect) (string, string) {
	if target != ClickHouse {
		return sql, ""
	}
	if formatClauseRe.MatchString(sql) {
		return sql, ""
	}
	return sql, "" // advisory only: callers needing JSON output append FORMAT explicitly upstream
}
