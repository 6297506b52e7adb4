package vectorstore

import (
	"errors"
	"math"
)

// ErrNoDirection rejects vectors that cannot be compared by angle.
var ErrNoDirection = errors.New("vectorstore: zero or non-finite vector")

// HasDirection reports whether v has a finite, non-zero norm.
func HasDirection(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum > 0 && !math.IsInf(sum, 0) && !math.IsNaN(sum)
}

// Cosine is dot(a,b)/(|a|*|b|). It is 0 when either norm is 0, the
// lengths differ or any component is not finite, and is clamped to
// [-1, 1] against rounding.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, s))
}
