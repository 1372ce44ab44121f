// Package corpus holds the rules shared by every repository backend: what
// makes an artifact insertable, how ingredients are derived from it, and how
// relations to existing artifacts are proposed.
package corpus

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sandwich/internal/domain"
)

// Options tunes relation building.
type Options struct {
	// EdgeThreshold is the minimum concept cosine for a similar relation.
	EdgeThreshold float64
}

func DefaultOptions() Options {
	return Options{EdgeThreshold: 0.70}
}

// WithDefaults fills unset options.
func (o Options) WithDefaults() Options {
	if o.EdgeThreshold <= 0 || o.EdgeThreshold > 1 {
		o.EdgeThreshold = DefaultOptions().EdgeThreshold
	}
	return o
}

// Prepare validates a and fills its ID and creation time when empty. Every
// failure wraps domain.ErrInvariant.
func Prepare(a *domain.Artifact, now time.Time) error {
	if a == nil {
		return domain.Invariantf("nil artifact")
	}
	if !a.Scores.Valid() {
		return domain.Invariantf("scores out of range: %+v", a.Scores)
	}
	if a.Aggregate < 0 || a.Aggregate > 1 || math.IsNaN(a.Aggregate) {
		return domain.Invariantf("aggregate %v out of range", a.Aggregate)
	}
	if math.Abs(a.Weights.Sum()-1) > 1e-6 {
		return domain.Invariantf("weights sum to %v", a.Weights.Sum())
	}
	if want := a.Scores.Aggregate(a.Weights); math.Abs(want-a.Aggregate) > domain.AggregateTolerance {
		return domain.Invariantf("aggregate %v does not match scores (%v)", a.Aggregate, want)
	}
	for _, el := range []domain.Element{a.BoundA, a.BoundB, a.Bounded} {
		if domain.NormalizeText(el.Text) == "" {
			return domain.Invariantf("empty element text")
		}
	}
	if domain.NormalizeText(a.BoundA.Text) == domain.NormalizeText(a.BoundB.Text) {
		return domain.Invariantf("bound elements are identical")
	}
	if len(a.Concept) == 0 {
		return domain.Invariantf("missing concept vector")
	}
	for _, el := range []domain.Element{a.BoundA, a.BoundB, a.Bounded} {
		if len(el.Vector) != len(a.Concept) {
			return domain.Invariantf("element vector dimension %d differs from concept %d", len(el.Vector), len(a.Concept))
		}
	}
	a.StructuralType = strings.ToLower(strings.TrimSpace(a.StructuralType))
	if a.StructuralType == "" {
		return domain.Invariantf("missing structural type")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return nil
}

// PrepareAttempt validates an attempt log entry and fills ID and timestamp.
// Referential checks are left to the backend.
func PrepareAttempt(e *domain.AttemptLog, now time.Time) error {
	if !e.Outcome.Valid() {
		return domain.Invariantf("unknown outcome %q", e.Outcome)
	}
	if e.Outcome == domain.OutcomeAccepted && e.ArtifactID == "" {
		return domain.Invariantf("accepted attempt without artifact")
	}
	if e.Outcome != domain.OutcomeAccepted && e.ArtifactID != "" {
		return domain.Invariantf("%s attempt references artifact %s", e.Outcome, e.ArtifactID)
	}
	if e.Scores != nil && !e.Scores.Valid() {
		return domain.Invariantf("attempt scores out of range")
	}
	if e.Aggregate != nil && (*e.Aggregate < 0 || *e.Aggregate > 1) {
		return domain.Invariantf("attempt aggregate out of range")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
	return nil
}

// IngredientSpec is one distinct ingredient of an artifact.
type IngredientSpec struct {
	Text       string
	Normalized string
	Role       domain.IngredientRole
	Vector     []float64
}

// Ingredients returns the distinct ingredients of a, bounds first. A text
// that appears twice is listed once with the role it first appeared in.
func Ingredients(a *domain.Artifact) []IngredientSpec {
	parts := []struct {
		el   domain.Element
		role domain.IngredientRole
	}{
		{a.BoundA, domain.RoleBound},
		{a.BoundB, domain.RoleBound},
		{a.Bounded, domain.RoleBounded},
	}
	seen := make(map[string]struct{}, 3)
	out := make([]IngredientSpec, 0, 3)
	for _, p := range parts {
		n := domain.NormalizeText(p.el.Text)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, IngredientSpec{
			Text:       strings.TrimSpace(p.el.Text),
			Normalized: n,
			Role:       p.role,
			Vector:     p.el.Vector,
		})
	}
	return out
}

// SimilarRelation builds the canonical similar edge between two artifacts.
func SimilarRelation(a, b string, sim float64, now time.Time) domain.Relation {
	return domain.Relation{
		ID:         uuid.NewString(),
		From:       a,
		To:         b,
		Type:       domain.RelationSimilar,
		Similarity: sim,
		Rationale:  fmt.Sprintf("concept cosine %.3f", sim),
		CreatedAt:  now,
	}.Canonical()
}

// SharedRelation builds the canonical shares_ingredient edge. Similarity is
// the fraction of the three parts that are shared.
func SharedRelation(a, b string, shared []string, now time.Time) domain.Relation {
	sort.Strings(shared)
	sim := float64(len(shared)) / 3
	if sim > 1 {
		sim = 1
	}
	return domain.Relation{
		ID:         uuid.NewString(),
		From:       a,
		To:         b,
		Type:       domain.RelationSharesIngredient,
		Similarity: sim,
		Rationale:  "shares " + strings.Join(shared, "; "),
		CreatedAt:  now,
	}.Canonical()
}

// PrepareRelation validates and canonicalizes a caller-supplied relation.
func PrepareRelation(r *domain.Relation, now time.Time) error {
	if !r.Type.Valid() {
		return domain.Invariantf("unknown relation type %q", r.Type)
	}
	if r.From == "" || r.To == "" || r.From == r.To {
		return domain.Invariantf("relation endpoints must be two distinct artifacts")
	}
	if r.Similarity < 0 || r.Similarity > 1 || math.IsNaN(r.Similarity) {
		return domain.Invariantf("relation similarity %v out of range", r.Similarity)
	}
	*r = r.Canonical()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return nil
}

// PrepareType validates and normalizes a structural type.
func PrepareType(st *domain.StructuralType) error {
	st.Name = strings.ToLower(strings.TrimSpace(st.Name))
	st.Parent = strings.ToLower(strings.TrimSpace(st.Parent))
	if st.Name == "" {
		return domain.Invariantf("structural type without name")
	}
	if st.Parent == st.Name {
		return domain.Invariantf("structural type %s is its own parent", st.Name)
	}
	return nil
}

// DayKey is the stats key of a timestamp.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
