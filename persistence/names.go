package persistence

import (
	"strings"

	"golang.org/x/text/cases"
)

// NameKey is the uniqueness key of a player name: trimmed and case folded,
// so "Élise" and "élise" collide while "Elise" does not.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
