package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Token length bounds applied by Normalize, counted in runes.
const (
	MinTokenLength = 2
	MaxTokenLength = 15
)

// Normalize prepares extracted text for indexing: it lowercases the input,
// strips accents, keeps runs of non-digit word characters as tokens, drops
// tokens outside [MinTokenLength, MaxTokenLength] or starting with an
// underscore, and joins the survivors with single spaces. Digits and
// punctuation act as separators and never appear in the output.
func Normalize(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// Tokenize returns the tokens Normalize would join.
func Tokenize(text string) []string {
	folded := Deaccent(strings.ToLower(text))

	var (
		tokens []string
		start  = -1
	)
	flush := func(end int) {
		if start < 0 {
			return
		}
		tok := folded[start:end]
		start = -1
		n := utf8.RuneCountInString(tok)
		if n < MinTokenLength || n > MaxTokenLength || strings.HasPrefix(tok, "_") {
			return
		}
		tokens = append(tokens, tok)
	}
	for i, r := range folded {
		if isTokenRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(folded))
	return tokens
}

// isTokenRune matches word characters other than decimal digits.
func isTokenRune(r rune) bool {
	if unicode.IsDigit(r) {
		return false
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r)
}

// Deaccent removes combining marks: "déjà" becomes "deja".
func Deaccent(text string) string {
	// Chained transformers keep state, so one is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}
