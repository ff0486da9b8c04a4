package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics strips combining marks after canonical decomposition.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	result, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		return s
	}
	return result
}

// NormalizeName folds a display name into the key used to resolve watch targets:
// no diacritics, lower case, dashes and underscores read as spaces, runs of
// whitespace collapsed. "Jan-Novák " and "jan  novak" resolve to the same subject.
func NormalizeName(name string) string {
	name = strings.ToLower(RemoveDiacritics(name))
	name = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return ' '
		}
		return r
	}, name)
	return strings.Join(strings.Fields(name), " ")
}

// SameName reports whether two display names resolve to the same key.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
