package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-3, 0}), 1e-12)
	assert.Equal(t, 0.0, Cosine([]float64{1, 0}, []float64{1, 0, 0}))
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 0}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func TestPool(t *testing.T) {
	p := Pool([]float64{1, 0}, []float64{0, 1}, []float64{1, 1})
	assert.InDelta(t, 1.0, Norm(p), 1e-12)
	assert.InDelta(t, p[0], p[1], 1e-12)

	assert.Nil(t, Pool())
	assert.Nil(t, Pool([]float64{1}, []float64{1, 2}))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-12)
	assert.InDelta(t, 0.8, v[1], 1e-12)
	assert.Equal(t, []float64{0, 0}, Normalize([]float64{0, 0}))
}

func TestNormTinyValues(t *testing.T) {
	assert.False(t, math.IsNaN(Norm([]float64{1e-200, 1e-200})))
}
