package models

import (
	"strings"

	"golang.org/x/text/cases"
)

// NameKey is the form under which user, game and tag names are compared:
// trimmed and Unicode case-folded, so "Émile" and "émile" are one name.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
