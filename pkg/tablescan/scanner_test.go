package tablescan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tomellm/hermes/pkg/tablescan"
)

func TestScanEmptyQuery(t *testing.T) {
	assert.Equal(t, []string{}, tablescan.Scan([]string{`"a"`}, ""))
}

func TestScanPrefixCollisionIsAvoidedByQuoting(t *testing.T) {
	got := tablescan.Scan([]string{`"a"`, `"aa"`}, `select * from "aa"`)
	assert.Equal(t, []string{`"aa"`}, got)
}

func TestScanDeduplicatesKnownTables(t *testing.T) {
	got := tablescan.Scan([]string{`"a"`, `"a"`}, `select "a" from "a"`)
	assert.Equal(t, []string{`"a"`}, got)
}

func TestScanPreservesKnownOrder(t *testing.T) {
	known := []string{`"tags"`, `"items"`, `"users"`}
	got := tablescan.Scan(known, `select * from "users" join "tags"`)
	assert.Equal(t, []string{`"tags"`, `"users"`}, got)
}

func TestScanFalsePositiveInsideStringLiteralIsAccepted(t *testing.T) {
	// A table name appearing inside a string literal is still reported;
	// the library accepts this as harmless over-invalidation.
	got := tablescan.Scan([]string{`"items"`}, `select 'contains "items" literally' as note`)
	assert.Equal(t, []string{`"items"`}, got)
}

func TestScanNoMatches(t *testing.T) {
	got := tablescan.Scan([]string{`"tags"`, `"items"`}, `select 1`)
	assert.Equal(t, []string{}, got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", tablescan.Truncate("abc", 10))
	assert.Equal(t, "abcde", tablescan.Truncate("abcdefgh", 5))
}
