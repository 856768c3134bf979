// Package textutil provides token-based text matching used for looking up
// tracks by approximate title.
package textutil

import (
	"math"
	"regexp"
	"strings"
)

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// Fingerprint is a normalized term-frequency vector over a text's tokens.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint builds a fingerprint from text. Returns nil when the text
// yields no tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &Fingerprint{tokens: counts, norm: math.Sqrt(norm)}
}

// Tokenize lowercases text and splits it on non-alphanumeric runs. Single
// characters are dropped; two-letter words stay because track titles are
// short and every word counts.
func Tokenize(text string) []string {
	raw := tokenSplit.Split(strings.ToLower(text), -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len(token) < 2 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// Similarity is the cosine similarity between two fingerprints in [0, 1].
// Nil or empty fingerprints compare as 0.
func Similarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}
