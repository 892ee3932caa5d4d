package services

import (
	"math"
	"strings"
)

// EstimateTokens approximates the token count of a text as whitespace
// word count times 1.3, rounded up. Every budget in the pipeline uses
// this same estimator so limits stay comparable.
func EstimateTokens(s string) int {
	words := len(strings.Fields(s))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 1.3))
}
