// Package sqltranslate translates "standard" (PostgreSQL-flavoured) SQL into
// a target dialect and applies safety/perf rewrites.
//
// Ported from the original service's sql_dialect_translator.py. No SQL
// parsing/transpilation library appears anywhere in the retrieved example
// pack, and the original itself only optionally calls out to sqlglot before
// falling back to the same regex/substitution-table approach implemented
// here as the primary (and only) path.
package sqltranslate

import (
	"fmt"
	"strings"
)

// Dialect is a supported SQL backend flavour.
type Dialect string

const (
	Postgres   Dialect = "postgres"
	MySQL      Dialect = "mysql"
	ClickHouse Dialect = "clickhouse"
	Snowflake  Dialect = "snowflake"
	BigQuery   Dialect = "bigquery"
	Redshift   Dialect = "redshift"
	DuckDB     Dialect = "duckdb"
	SQLite     Dialect = "sqlite"
)

// dialectAliases normalizes loosely-specified dialect names (e.g. from a
// data source's free-text "engine" field) to a canonical Dialect.
var dialectAliases = map[string]Dialect{
	"postgres": Postgres, "postgresql": Postgres, "pg": Postgres,
	"mysql": MySQL, "mariadb": MySQL,
	"clickhouse": ClickHouse, "ch": ClickHouse,
	"snowflake": Snowflake,
	"bigquery":  BigQuery, "bq": BigQuery,
	"redshift": Redshift,
	"duckdb":   DuckDB,
	"sqlite":   SQLite, "sqlite3": SQLite,
}

// NormalizeDialect maps a free-text dialect string to a canonical Dialect.
// Unknown input falls back to Postgres, the "standard" flavour this package
// treats its input SQL as already being written in.
func NormalizeDialect(raw string) Dialect {
	if d, ok := dialectAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return d
	}
	return Postgres
}

// SupportedDialects lists every dialect this package can translate to.
func SupportedDialects() []Dialect {
	return []Dialect{Postgres, MySQL, ClickHouse, Snowflake, BigQuery, Redshift, DuckDB, SQLite}
}

var dangerousVerbs = []string{"DROP ", "DELETE ", "TRUNCATE ", "ALTER ", "CREATE ", "INSERT ", "UPDATE "}

// ErrDangerousStatement is returned when the input contains a top-level
// data-mutating statement; translation refuses to touch such input.
var ErrDangerousStatement = fmt.Errorf("dangerous_op: query contains a data-mutating statement")

// Translate rewrites standard SQL into the target dialect by running the
// ordered Rule pipeline, and returns any advisory warnings collected along
// the way. Translation never introduces mutating statements and is
// idempotent: translating already-translated SQL for the same dialect is a
// no-op.
func Translate(sql string, target Dialect) (string, []string, error) {
	trimmed := strings.TrimSpace(sql)
	for _, stmt := range strings.Split(trimmed, ";") {
		upper := strings.ToUpper(strings.TrimSpace(stmt))
		for _, verb := range dangerousVerbs {
			if strings.HasPrefix(upper, verb) {
				return "", nil, ErrDangerousStatement
			}
		}
	}

	out := trimmed
	var warnings []string
	for _, r := range Pipeline(target) {
		var w string
		out, w = r.Apply(out, target)
		if w != "" {
			warnings = append(warnings, w)
		}
	}
	return out, warnings, nil
}
