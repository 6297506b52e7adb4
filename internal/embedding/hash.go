package embedding

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// HashEmbedding derives a deterministic unit vector from text. Equal
// inputs always map to equal vectors; unrelated inputs are close to
// orthogonal. It carries no semantic signal.
func HashEmbedding(text string, dims int) []float32 {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	seed := xxhash.Sum64String(text)

	v := make([]float32, dims)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(float64(seed>>11)/float64(1<<53)*2 - 1)
	}
	return Normalize(v)
}

// Normalize scales v to unit length in place and returns it. A zero
// vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}
