package graph

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeName converts a free-form task phrase into PascalCase: words are
// split on anything that is not a letter or digit, each word gets an upper
// case first letter, and interior capitals are kept ("makeCoffee" stays
// "MakeCoffee", "wash face" becomes "WashFace").
func NormalizeName(s string) string {
	// Casers are stateful and not safe for concurrent use.
	caser := cases.Title(language.English, cases.NoLower)

	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(caser.String(w))
	}
	return b.String()
}

// IsNormalized reports whether name is already in canonical form.
func IsNormalized(name string) bool {
	return name != "" && NormalizeName(name) == name
}
