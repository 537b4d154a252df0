package sqltranslate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate_RejectsDangerousStatements(t *testing.T) {
	for _, sql := range []string{
		"DROP TABLE users",
		"DELETE FROM users WHERE id = 1",
		"SELECT 1; DROP TABLE users",
		"SELECT 1;DROP TABLE users",
		"SELECT 1;\nDROP TABLE users",
		"SELECT 1 ;   DROP TABLE users",
	} {
		_, _, err := Translate(sql, Postgres)
		assert.ErrorIs(t, err, ErrDangerousStatement, "sql=%q", sql)
	}
}

func TestTranslate_ConcatOperatorMySQL(t *testing.T) {
	out, _, err := Translate(`SELECT first_name || last_name FROM users`, MySQL)
	require.NoError(t, err)
	assert.Contains(t, out, "CONCAT(first_name, last_name)")
}

func TestTranslate_ConcatOperatorUntouchedOnPostgres(t *testing.T) {
	out, _, err := Translate(`SELECT first_name || last_name FROM users`, Postgres)
	require.NoError(t, err)
	assert.Contains(t, out, "first_name || last_name")
}

func TestTranslate_DateTruncClickHouse(t *testing.T) {
	out, _, err := Translate(`SELECT DATE_TRUNC('day', created_at) FROM events`, ClickHouse)
	require.NoError(t, err)
	assert.Contains(t, out, "toStartOfInterval(created_at, INTERVAL 1 DAY)")
}

func TestTranslate_StripsTrailingSemicolon(t *testing.T) {
	out, _, err := Translate("SELECT 1;", Postgres)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out)
}

func TestNormalizeDialect(t *testing.T) {
	assert.Equal(t, ClickHouse, NormalizeDialect("ClickHouse"))
	assert.Equal(t, ClickHouse, NormalizeDialect("ch"))
	assert.Equal(t, Postgres, NormalizeDialect("something-unknown"))
}

func TestEnsureLimit(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t LIMIT 1000", EnsureLimit("SELECT * FROM t", 1000))
	assert.Equal(t, "SELECT * FROM t LIMIT 10", EnsureLimit("SELECT * FROM t LIMIT 10", 1000))
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("ds1", "SELECT * FROM t")
	b := Fingerprint("ds1", "select   *   from t")
	assert.Equal(t, a, b, "normalization should make equivalent queries hash identically")
}
