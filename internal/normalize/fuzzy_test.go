package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	testcases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"coin_name", "coin_name", 1, 1},
		{"coin_name", "COIN_NAME", 1, 1},
		{"coin_name", "coinname", 0.8, 0.95},
		{"price", "pricing", 0.7, 0.8},
		{"title", "volume", 0, 0.2},
		{"", "", 1, 1},
		{"a", "", 0, 0},
	}

	for _, tc := range testcases {
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			score := similarity(tc.a, tc.b)
			assert.GreaterOrEqual(t, score, tc.min)
			assert.LessOrEqual(t, score, tc.max)
		})
	}
}

func TestBestMatch(t *testing.T) {
	match, score := bestMatch("coin_name", []string{"value", "coinname", "category"})
	assert.Equal(t, "coinname", match)
	assert.Greater(t, score, 0.8)

	match, score = bestMatch("coin_name", nil)
	assert.Empty(t, match)
	assert.Equal(t, 0.0, score)
}
