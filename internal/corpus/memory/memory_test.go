package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/corpus"
	"sandwich/internal/corpus/corpustest"
	"sandwich/internal/domain"
)

func TestStoreConformance(t *testing.T) {
	corpustest.Run(t, func(t *testing.T) domain.Repository {
		return NewStore(corpus.DefaultOptions())
	})
}

func TestReturnedArtifactsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore(corpus.Options{})
	res, err := s.InsertArtifact(ctx, corpustest.Artifact("a", "b", "c", []float64{1, 0}, "bound", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.NoError(t, err)

	got, err := s.GetArtifact(ctx, res.Artifact.ID)
	require.NoError(t, err)
	got.Concept[0] = 42

	again, err := s.GetArtifact(ctx, res.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Concept[0])
}
