package memory

import (
	"math"
	"strings"
	"unicode"
)

// lexical scoring weights: term overlap dominates, an early first match
// in the record text earns a position bonus.
const (
	overlapWeight  = 0.7
	positionWeight = 0.3
	substringFloor = 0.95 // a record containing the exact query string scores at least this
)

// tokenize lowercases and splits text on non-alphanumeric runes.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// lexicalScore computes a term-overlap score with position bonus,
// normalized to the 0-1 similarity scale used by vector search so the
// two result sets can be merged and sorted in one pass.
func lexicalScore(query, text string) float64 {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || text == "" {
		return 0
	}

	textTerms := tokenize(text)
	positions := make(map[string]int, len(textTerms))
	for i, t := range textTerms {
		if _, seen := positions[t]; !seen {
			positions[t] = i
		}
	}

	matched := 0
	firstPos := -1
	for _, qt := range queryTerms {
		pos, ok := positions[qt]
		if !ok {
			continue
		}
		matched++
		if firstPos == -1 || pos < firstPos {
			firstPos = pos
		}
	}

	var score float64
	if matched > 0 {
		overlap := float64(matched) / float64(len(queryTerms))
		posBonus := 1 - float64(firstPos)/float64(len(textTerms))
		score = overlapWeight*overlap + positionWeight*posBonus
	}

	// Exact-substring containment is the strongest lexical signal.
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if trimmed != "" && strings.Contains(strings.ToLower(text), trimmed) && score < substringFloor {
		score = substringFloor
	}

	if score > 1 {
		score = 1
	}
	return score
}

// cosineSimilarity returns the cosine similarity of two vectors mapped
// into [0,1], or -1 when the vectors cannot be compared (dimension
// mismatch or zero norm). Cross-dimension records are skipped rather
// than treated as errors: providers may change dimensionality across
// configuration changes.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Map [-1,1] onto [0,1] so vector and lexical scores share a scale.
	return (cos + 1) / 2
}
