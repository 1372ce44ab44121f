// Package taxonomy holds the seed set of structural types.
package taxonomy

import (
	"context"
	"fmt"
	"strings"

	"sandwich/internal/domain"
)

var seed = []domain.StructuralType{
	{Name: "bound", Description: "Upper and lower limits bounding a quantity", BoundRelation: "Upper/lower limits", BoundedRole: "Bounded quantity"},
	{Name: "dialectic", Description: "Thesis and antithesis framing a synthesis", BoundRelation: "Thesis/antithesis", BoundedRole: "Synthesis"},
	{Name: "epistemic", Description: "Assumption and evidence framing a conclusion", BoundRelation: "Assumption/evidence", BoundedRole: "Conclusion"},
	{Name: "temporal", Description: "Before and after states framing a transition", BoundRelation: "Before/after", BoundedRole: "Transition"},
	{Name: "perspectival", Description: "Two viewpoints framing a reconciliation", BoundRelation: "Viewpoint A/B", BoundedRole: "Reconciliation"},
	{Name: "conditional", Description: "Necessary and sufficient conditions framing a target property", BoundRelation: "Necessary/sufficient", BoundedRole: "Target property"},
	{Name: "stochastic", Description: "Prior and likelihood framing a posterior", BoundRelation: "Prior/likelihood", BoundedRole: "Posterior"},
	{Name: "optimization", Description: "Constraints framing an optimum", BoundRelation: "Constraints", BoundedRole: "Optimum"},
	{Name: "negotiation", Description: "Two positions framing a compromise", BoundRelation: "Position A/B", BoundedRole: "Compromise"},
	{Name: "definitional", Description: "Genus and differentia framing a defined concept", BoundRelation: "Genus/differentia", BoundedRole: "Defined concept"},
}

// Seed returns a copy of the built-in structural types.
func Seed() []domain.StructuralType {
	out := make([]domain.StructuralType, len(seed))
	copy(out, seed)
	return out
}

// Lookup finds a seed type by case-insensitive name.
func Lookup(name string) (domain.StructuralType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, st := range seed {
		if st.Name == name {
			return st, true
		}
	}
	return domain.StructuralType{}, false
}

// Names lists the seed type names in order.
func Names() []string {
	out := make([]string, len(seed))
	for i, st := range seed {
		out[i] = st.Name
	}
	return out
}

type upserter interface {
	UpsertStructuralType(ctx context.Context, st domain.StructuralType) error
}

// Install upserts every seed type. Existing rows are left untouched.
func Install(ctx context.Context, repo upserter) (int, error) {
	for i, st := range seed {
		if err := repo.UpsertStructuralType(ctx, st); err != nil {
			return i, fmt.Errorf("seed %s: %w", st.Name, err)
		}
	}
	return len(seed), nil
}
