package taxonomy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/domain"
)

type recorder struct{ names []string }

func (r *recorder) UpsertStructuralType(_ context.Context, st domain.StructuralType) error {
	r.names = append(r.names, st.Name)
	return nil
}

func TestSeedHasTenTypes(t *testing.T) {
	assert.Len(t, Seed(), 10)
	assert.Equal(t, "bound", Names()[0])

	st, ok := Lookup("  Stochastic ")
	require.True(t, ok)
	assert.Equal(t, "Posterior", st.BoundedRole)

	_, ok = Lookup("unknown")
	assert.False(t, ok)
}

func TestSeedIsACopy(t *testing.T) {
	s := Seed()
	s[0].Name = "mutated"
	assert.Equal(t, "bound", Seed()[0].Name)
}

func TestInstall(t *testing.T) {
	r := &recorder{}
	n, err := Install(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, Names(), r.names)
}
