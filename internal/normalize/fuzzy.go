package normalize

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// similarity scores two field names in [0, 1] as one minus the edit
// distance over the longer length, case-insensitive. Identical names
// score 1.
func similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// bestMatch returns the candidate most similar to name and its score.
func bestMatch(name string, candidates []string) (string, float64) {
	best, bestScore := "", 0.0
	for _, candidate := range candidates {
		if score := similarity(name, candidate); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best, bestScore
}
