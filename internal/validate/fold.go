package validate

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and strips diacritics so that "Operación" and
// "OPERACION" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// ContainsFolded reports whether needle occurs in haystack, ignoring case
// and accents. An empty needle never matches.
func ContainsFolded(haystack, needle string) bool {
	n := Fold(strings.TrimSpace(needle))
	if n == "" {
		return false
	}
	return strings.Contains(Fold(haystack), n)
}
