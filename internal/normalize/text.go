package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// lower builds a fresh Caser per call; a Caser keeps state and must not be
// shared between goroutines.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// prepare puts raw input into NFC form and trims it, so that composed and
// decomposed spellings of the same name canonicalize identically.
func prepare(raw string) string {
	return strings.TrimSpace(norm.NFC.String(raw))
}

// collapseSpaces replaces runs of whitespace with a single space and trims.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TitleCase capitalizes the first rune of every whitespace-delimited token
// and lower-cases the rest of it. Whitespace runs collapse to one space.
func TitleCase(s string) string {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		tokens[i] = titleToken(tok)
	}
	return strings.Join(tokens, " ")
}

func titleToken(tok string) string {
	r, size := utf8.DecodeRuneInString(tok)
	if r == utf8.RuneError && size <= 1 {
		return lower(tok)
	}
	return string(unicode.ToTitle(r)) + lower(tok[size:])
}
