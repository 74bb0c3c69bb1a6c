package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and punctuation", "Hello, World!", "hello world"},
		{"accents", "Déjà vu à Montréal", "deja vu montreal"},
		{"digits split words", "abc123def 2024", "abc def"},
		{"short tokens dropped", "a b cd", "cd"},
		{"long tokens dropped", "supercalifragilistic word", "word"},
		{"leading underscore dropped", "_private a_b", "a_b"},
		{"whitespace collapsed", "  one\n\ttwo  ", "one two"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"quarterly", "report", "eur"}, Tokenize("Quarterly report: 42 EUR"))
	assert.Empty(t, Tokenize("1 2 3 ..."))
}

func TestDeaccent(t *testing.T) {
	assert.Equal(t, "creme brulee", Deaccent("crème brûlée"))
	// Repeated calls must not share transformer state.
	assert.Equal(t, "naive", Deaccent("naïve"))
	assert.Equal(t, "naive", Deaccent("naïve"))
}
