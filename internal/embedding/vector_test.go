// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 0}, []float64{5, 0}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 1}, []float64{-1, -1}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	_, err := Cosine([]float64{1}, []float64{1, 2})
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestNormalize(t *testing.T) {
	v := []float64{3, 4}
	got := Normalize(v)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, got, 1e-12)
	assert.Equal(t, []float64{3, 4}, v, "input must not be modified")
	assert.Equal(t, []float64{0, 0}, Normalize([]float64{0, 0}))
}

func TestWeightedMean(t *testing.T) {
	vecs := [][]float64{{1, 0}, {0, 1}}

	mean, err := WeightedMean(vecs, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{math.Sqrt2 / 2, math.Sqrt2 / 2}, mean, 1e-12)
	assert.InDelta(t, 1, Norm(mean), 1e-12)

	weighted, err := WeightedMean(vecs, []float64{3, 1})
	require.NoError(t, err)
	assert.Greater(t, weighted[0], weighted[1])

	_, err = WeightedMean(nil, nil)
	assert.Error(t, err)
	_, err = WeightedMean(vecs, []float64{1})
	assert.Error(t, err)
	_, err = WeightedMean([][]float64{{1, 0}, {1}}, nil)
	assert.Error(t, err)
	_, err = WeightedMean(vecs, []float64{0, 0})
	assert.Error(t, err)
}
