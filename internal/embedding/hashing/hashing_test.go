package hashing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/vector"
)

func TestEmbedDeterministicAndNormalized(t *testing.T) {
	e := NewEmbedder(256)
	ctx := context.Background()

	a, err := e.Embed(ctx, "The function f maps input x to output f(x).")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "The function f maps input x to output f(x).")
	require.NoError(t, err)

	assert.Len(t, a, 256)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, vector.Norm(a), 1e-9)
}

func TestEmbedSimilarityOrdering(t *testing.T) {
	e := NewEmbedder(1024)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "supply and demand set the market price")
	near, _ := e.Embed(ctx, "supply and demand determine market price")
	far, _ := e.Embed(ctx, "photosynthesis converts sunlight into chemical energy")

	assert.Greater(t, vector.Cosine(base, near), vector.Cosine(base, far))
}

func TestEmbedEmptyText(t *testing.T) {
	e := NewEmbedder(0)
	v, err := e.Embed(context.Background(), "the of and")
	require.NoError(t, err)
	assert.Len(t, v, 512)
	assert.Equal(t, 0.0, vector.Norm(v))
}

func TestEmbedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
