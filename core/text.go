package core

import (
	"strings"
	"unicode"
)

// Stop words dropped from both indexed text and queries
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true,
}

// Tokenize splits text into lowercase terms on any rune that is not a letter
// or digit, and removes stop words. Term order and repeats are preserved.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(word)
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// TermFrequencies counts the terms produced by Tokenize.
// The second return value is the total number of terms.
func TermFrequencies(text string) (map[string]int, int) {
	terms := Tokenize(text)
	freqs := make(map[string]int, len(terms))
	for _, term := range terms {
		freqs[term]++
	}
	return freqs, len(terms)
}

// UniqueTerms tokenizes a query and drops repeated terms, keeping first-seen order.
func UniqueTerms(query string) []string {
	terms := Tokenize(query)
	seen := make(map[string]bool, len(terms))
	unique := terms[:0]
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		unique = append(unique, term)
	}
	return unique
}
