package sqltranslate

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// DefaultStandardModeLimit caps row counts for standard analysis mode when
// the generated SQL doesn't already specify a LIMIT.
const DefaultStandardModeLimit = 1000

var limitRe = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\b`)

// EnsureLimit injects a LIMIT clause into sql when none is present and the
// caller requests a cap (deep-analysis mode passes cap<=0 to skip this).
func EnsureLimit(sql string, cap int) string {
	if cap <= 0 || limitRe.MatchString(sql) {
		return sql
	}
	return strings.TrimRight(sql, "; ") + " LIMIT " + strconv.Itoa(cap)
}

// Normalize produces the canonical form of SQL used for cache-key hashing:
// outside single-quoted string literals, keywords and identifiers are
// lowercased and whitespace is collapsed; literals keep their case and
// spacing; a trailing semicolon is dropped.
func Normalize(sql string) string {
	parts := strings.Split(strings.TrimSpace(sql), "'")
	for i := 0; i < len(parts); i += 2 {
		parts[i] = strings.ToLower(whitespaceRe.ReplaceAllString(parts[i], " "))
	}
	return strings.TrimRight(strings.Join(parts, "'"), "; ")
}

// Fingerprint returns a deterministic query-result cache key:
// sha256("q|" + dataSourceID + "|" + normalized(sql)).
func Fingerprint(dataSourceID, sql string) string {
	h := sha256.Sum256([]byte("q|" + dataSourceID + "|" + Normalize(sql)))
	return hex.EncodeToString(h[:])
}
