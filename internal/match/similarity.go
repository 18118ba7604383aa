package match

import (
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns the Levenshtein similarity of a and b on a 0..100
// scale. Either side being empty scores 0: two missing fields are not a
// perfect match.
func Similarity(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(float64(maxLen-dist) / float64(maxLen) * 100))
}
