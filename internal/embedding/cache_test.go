package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	dims  []int
}

func (e *countingEmbedder) Name() string   { return "counting" }
func (e *countingEmbedder) Dimension() int { return 0 }

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	d := 2
	if e.calls < len(e.dims) {
		d = e.dims[e.calls]
	}
	e.calls++
	v := make([]float64, d)
	v[0] = float64(len(text))
	return v, nil
}

func TestCachedMemoizes(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	a[0] = 99 // callers must not be able to poison the cache

	b, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 5.0, b[0])
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2, c.Dimension())
	assert.Equal(t, 1, c.Len())
}

func TestCachedRejectsDimensionChange(t *testing.T) {
	inner := &countingEmbedder{dims: []int{2, 3}}
	c, err := NewCached(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Embed(ctx, "first")
	require.NoError(t, err)
	_, err = c.Embed(ctx, "second")
	assert.ErrorContains(t, err, "dimension 3")
}
