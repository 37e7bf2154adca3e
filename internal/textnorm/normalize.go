package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize lowercases a keyword, strips diacritics, and collapses
// internal whitespace. Two keyword strings are considered equivalent
// when their normalized forms are equal.
func Normalize(raw string) string {
	folded := FoldDiacritics(raw)
	lowered := strings.ToLower(folded)
	return strings.Join(strings.Fields(lowered), " ")
}

// FoldDiacritics removes combining marks (for example "café" -> "cafe").
// Input that cannot be transformed is returned unchanged.
func FoldDiacritics(raw string) string {
	folded, _, err := transform.String(foldTransformer, raw)
	if err != nil {
		return raw
	}
	return folded
}

// HasDiacritics reports whether the string carries at least one combining
// mark or precomposed accented rune.
func HasDiacritics(raw string) bool {
	return FoldDiacritics(raw) != raw
}
