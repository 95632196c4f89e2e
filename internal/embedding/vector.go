// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is wrapped by operations given vectors of different
// lengths.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Norm returns the Euclidean length of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged.
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

// Cosine returns the cosine similarity of a and b in [-1,1]. A zero vector
// has similarity 0 with everything.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, c)), nil
}

// WeightedMean returns the L2-normalised weighted mean of vecs. A nil
// weights slice weights every vector equally.
func WeightedMean(vecs [][]float64, weights []float64) ([]float64, error) {
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no vectors to aggregate")
	}
	if weights != nil && len(weights) != len(vecs) {
		return nil, fmt.Errorf("%d weights for %d vectors", len(weights), len(vecs))
	}

	dim := len(vecs[0])
	sum := make([]float64, dim)
	var total float64
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		for j, x := range v {
			sum[j] += w * x
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("weights sum to zero")
	}
	for j := range sum {
		sum[j] /= total
	}
	return Normalize(sum), nil
}
