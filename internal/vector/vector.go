// Package vector holds the small amount of linear algebra the corpus needs.
package vector

import "math"

// Dot returns the dot product over the shared prefix of a and b.
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm is the Euclidean length of v.
func Norm(v []float64) float64 {
	return math.Sqrt(Dot(v, v))
}

// Cosine returns the cosine similarity of a and b. Mismatched lengths and
// zero vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := Dot(a, b) / (na * nb)
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

// Normalize returns a unit-length copy of v. A zero vector is returned as is.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Pool is the L2-normalized mean of vs. All inputs must share a length.
func Pool(vs ...[]float64) []float64 {
	if len(vs) == 0 {
		return nil
	}
	dim := len(vs[0])
	sum := make([]float64, dim)
	for _, v := range vs {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			sum[i] += x
		}
	}
	for i := range sum {
		sum[i] /= float64(len(vs))
	}
	return Normalize(sum)
}
