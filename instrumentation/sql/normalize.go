package sql

import (
	"regexp"
	"strings"
)

// maxKeyLen bounds normalized keys so pathological statements cannot blow up
// header values or metric labels.
const maxKeyLen = 200

// numberPattern finds numeric literals. Simple on purpose; it does not try
// to cover every SQL dialect.
var numberPattern = regexp.MustCompile(`\b\d+\b`)

// Normalize reduces a SQL statement to a stable shape so that queries
// differing only in literal values group under one key: whitespace is
// collapsed, numeric literals become "?", the result is lower-cased and
// truncated. "SELECT * FROM users WHERE id = 7" and "... id = 9" normalize
// to the same key.
func Normalize(query string) string {
	reduced := strings.Join(strings.Fields(query), " ")
	reduced = numberPattern.ReplaceAllString(reduced, "?")
	reduced = strings.ToLower(reduced)
	if len(reduced) > maxKeyLen {
		reduced = reduced[:maxKeyLen]
	}
	return reduced
}

// Key builds the event key for a raw SQL statement.
func Key(query string) string {
	return "sql/" + Normalize(query)
}
