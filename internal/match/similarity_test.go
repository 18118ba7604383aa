package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"both empty", "", "", 0},
		{"one empty", "duo", "", 0},
		{"other empty", "", "duo", 0},
		{"identical", "duo", "duo", 100},
		{"classic", "kitten", "sitting", 57},
		{"missing suffix", "s 15th", "s 15th st", 67},
		{"disjoint", "abc", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Similarity(tt.a, tt.b))
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"main st", "main ave"},
		{"the duo", "duo apartments"},
		{"s 15th st", "n 16th st"},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "%q vs %q", p[0], p[1])
	}
}

func TestSimilarity_Bounds(t *testing.T) {
	inputs := []string{"", "a", "ab", "duo", "222 s 15th st omaha ne 68102", "ünïcödé"}
	for _, a := range inputs {
		for _, b := range inputs {
			s := Similarity(a, b)
			assert.GreaterOrEqual(t, s, 0)
			assert.LessOrEqual(t, s, 100)
		}
	}
}
