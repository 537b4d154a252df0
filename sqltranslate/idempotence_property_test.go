package sqltranslate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: translating an already-translated query for the same dialect is
// a no-op.
func TestProperty_TranslationIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	dialects := []Dialect{Postgres, MySQL, ClickHouse, Snowflake, BigQuery, Redshift, DuckDB, SQLite}

	properties.Property("translate(translate(q, d), d) == translate(q, d)", prop.ForAll(
		func(table, col string, dialectIdx int) bool {
			if table == "" || col == "" {
				return true
			}
			d := dialects[dialectIdx%len(dialects)]
			sql := "SELECT " + col + " FROM " + table

			once, _, err := Translate(sql, d)
			if err != nil {
				return true
			}
			twice, _, err := Translate(once, d)
			if err != nil {
				return false
			}
			return once == twice
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
