// Package corpustest is the behavioural suite every repository backend must
// pass.
package corpustest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/domain"
)

// Factory opens an empty repository configured with an edge threshold of 0.70.
type Factory func(t *testing.T) domain.Repository

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// Artifact builds a valid accepted artifact whose three parts all carry the
// concept vector.
func Artifact(boundA, boundB, bounded string, concept []float64, typ string, at time.Time) *domain.Artifact {
	scores := domain.Scores{BoundCompatibility: 0.8, Containment: 0.9, Specificity: 0.7, NonTriviality: 0.6, Novelty: 0.75}
	w := domain.DefaultWeights()
	return &domain.Artifact{
		Name:           boundA + " / " + bounded + " / " + boundB,
		Description:    "test artifact",
		BoundA:         domain.Element{Text: boundA, Vector: concept},
		BoundB:         domain.Element{Text: boundB, Vector: concept},
		Bounded:        domain.Element{Text: bounded, Vector: concept},
		Concept:        concept,
		StructuralType: typ,
		Scores:         scores,
		Weights:        w,
		Aggregate:      scores.Aggregate(w),
		Provenance:     domain.Provenance{SourceName: "files", Reference: "doc.txt", Title: "Doc"},
		CreatedAt:      at,
	}
}

// Run executes the suite against fresh repositories from newRepo.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo domain.Repository)
	}{
		{"InsertAndGet", testInsertAndGet},
		{"IngredientCounters", testIngredientCounters},
		{"IngredientCountedOncePerArtifact", testIngredientCountedOnce},
		{"DuplicateTriple", testDuplicateTriple},
		{"InvariantViolations", testInvariantViolations},
		{"SimilarRelation", testSimilarRelation},
		{"SharesIngredientRelation", testSharesIngredient},
		{"Nearest", testNearest},
		{"AddRelation", testAddRelation},
		{"Attempts", testAttempts},
		{"Stats", testStats},
		{"AssemblerQueries", testAssemblerQueries},
		{"StructuralTypes", testStructuralTypes},
		{"ListArtifacts", testListArtifacts},
		{"ConcurrentDuplicateInsert", testConcurrentDuplicate},
		{"ConcurrentSharedIngredient", testConcurrentSharedIngredient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo(t)
			t.Cleanup(func() { _ = repo.Close() })
			tt.fn(t, repo)
		})
	}
}

func testInsertAndGet(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	a := Artifact("lower bound", "upper bound", "the estimate", []float64{0.6, 0.8}, "Bound", base)
	a.AssemblyRationale = "picked"
	a.ValidationRationale = "scored"

	res, err := repo.InsertArtifact(ctx, a)
	require.NoError(t, err)
	require.NotEmpty(t, res.Artifact.ID)
	assert.Len(t, res.Ingredients, 3)
	assert.Empty(t, res.Relations)

	got, err := repo.GetArtifact(ctx, res.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, "bound", got.StructuralType)
	assert.Equal(t, "lower bound", got.BoundA.Text)
	assert.Equal(t, []float64{0.6, 0.8}, got.Concept)
	assert.Equal(t, []float64{0.6, 0.8}, got.Bounded.Vector)
	assert.InDelta(t, a.Aggregate, got.Aggregate, 1e-12)
	assert.InDelta(t, 0.9, got.Scores.Containment, 1e-12)
	assert.InDelta(t, 0.25, got.Weights.Containment, 1e-12)
	assert.Equal(t, a.Provenance, got.Provenance)
	assert.Equal(t, "picked", got.AssemblyRationale)
	assert.Equal(t, "scored", got.ValidationRationale)
	assert.True(t, base.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)

	_, err = repo.GetArtifact(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := repo.CountArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testIngredientCounters(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	_, err := repo.InsertArtifact(ctx, Artifact("Input x", "Output y", "function f", []float64{1, 0}, "conditional", base))
	require.NoError(t, err)
	_, err = repo.InsertArtifact(ctx, Artifact("input x", "output z", "function g", []float64{0, 1}, "conditional", base.Add(time.Second)))
	require.NoError(t, err)
	_, err = repo.InsertArtifact(ctx, Artifact("input X.", "output w", "function h", []float64{-1, 0}, "conditional", base.Add(2*time.Second)))
	require.NoError(t, err)

	ings, err := repo.ListIngredients(ctx, 0)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, ing := range ings {
		counts[ing.Normalized] = ing.UsageCount
	}
	assert.Equal(t, 3, counts["input x"])
	assert.Equal(t, 1, counts["output y"])
	assert.Equal(t, 1, counts["function h"])
	assert.Len(t, ings, 7)
	assert.Equal(t, "input x", ings[0].Normalized, "most used ingredient first")
	assert.Equal(t, "Input x", ings[0].Text, "first spelling is kept")

	// counters equal the number of distinct referencing artifacts
	for _, ing := range ings {
		users, err := repo.FindByIngredientText(ctx, ing.Text)
		require.NoError(t, err)
		assert.Len(t, users, ing.UsageCount, ing.Normalized)
	}
}

func testIngredientCountedOnce(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	res, err := repo.InsertArtifact(ctx, Artifact("self", "other", "Self", []float64{1, 0}, "definitional", base))
	require.NoError(t, err)
	assert.Len(t, res.Ingredients, 2)

	ings, err := repo.ListIngredients(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ings, 2)
	for _, ing := range ings {
		assert.Equal(t, 1, ing.UsageCount)
		assert.Equal(t, res.Artifact.ID, ing.IntroducedBy)
	}
}

func testDuplicateTriple(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	_, err := repo.InsertArtifact(ctx, Artifact("input x", "output f(x)", "function f", []float64{1, 0}, "bound", base))
	require.NoError(t, err)

	// same triple with swapped bounds and different casing
	_, err = repo.InsertArtifact(ctx, Artifact("Output F(x)", "Input x", "Function f.", []float64{1, 0}, "bound", base.Add(time.Second)))
	assert.ErrorIs(t, err, domain.ErrDuplicateArtifact)

	n, err := repo.CountArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ings, err := repo.ListIngredients(ctx, 0)
	require.NoError(t, err)
	for _, ing := range ings {
		assert.Equal(t, 1, ing.UsageCount, "a rejected duplicate must not touch counters")
	}
}

func testInvariantViolations(t *testing.T, repo domain.Repository) {
	ctx := context.Background()

	drift := Artifact("a", "b", "c", []float64{1, 0}, "bound", base)
	drift.Aggregate += 0.01
	_, err := repo.InsertArtifact(ctx, drift)
	assert.ErrorIs(t, err, domain.ErrInvariant)

	bad := Artifact("a", "b", "c", []float64{1, 0}, "bound", base)
	bad.Scores.Novelty = 1.5
	_, err = repo.InsertArtifact(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvariant)

	_, err = repo.InsertArtifact(ctx, Artifact("a", "b", "c", []float64{1, 0}, "bound", base))
	require.NoError(t, err)
	_, err = repo.InsertArtifact(ctx, Artifact("d", "e", "f", []float64{1, 0, 0}, "bound", base))
	assert.ErrorIs(t, err, domain.ErrInvariant, "dimension must stay stable")

	n, err := repo.CountArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testSimilarRelation(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	first, err := repo.InsertArtifact(ctx, Artifact("alpha", "beta", "gamma", []float64{1, 0}, "dialectic", base))
	require.NoError(t, err)
	second, err := repo.InsertArtifact(ctx, Artifact("delta", "epsilon", "zeta", []float64{0.85, 0.5268}, "dialectic", base.Add(time.Second)))
	require.NoError(t, err)
	// orthogonal: below the edge threshold
	_, err = repo.InsertArtifact(ctx, Artifact("eta", "theta", "iota", []float64{0, 1}, "dialectic", base.Add(2*time.Second)))
	require.NoError(t, err)

	require.Len(t, second.Relations, 1)
	assert.Equal(t, domain.RelationSimilar, second.Relations[0].Type)
	assert.InDelta(t, 0.85, second.Relations[0].Similarity, 1e-3)

	assertSimilarEdges := func() {
		rels, err := repo.ListRelations(ctx, first.Artifact.ID)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		assert.Equal(t, domain.RelationSimilar, rels[0].Type)
		assert.InDelta(t, 0.85, rels[0].Similarity, 1e-3)
		ids := []string{rels[0].From, rels[0].To}
		assert.ElementsMatch(t, []string{first.Artifact.ID, second.Artifact.ID}, ids)
	}
	assertSimilarEdges()

	added, err := repo.RefreshRelations(ctx, second.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	added, err = repo.RefreshRelations(ctx, first.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assertSimilarEdges()

	_, err = repo.RefreshRelations(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testSharesIngredient(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	first, err := repo.InsertArtifact(ctx, Artifact("prior", "likelihood", "posterior", []float64{1, 0}, "stochastic", base))
	require.NoError(t, err)
	second, err := repo.InsertArtifact(ctx, Artifact("prior", "evidence", "posterior", []float64{0, 1}, "stochastic", base.Add(time.Second)))
	require.NoError(t, err)

	require.Len(t, second.Relations, 1)
	r := second.Relations[0]
	assert.Equal(t, domain.RelationSharesIngredient, r.Type)
	assert.InDelta(t, 2.0/3.0, r.Similarity, 1e-9)
	assert.ElementsMatch(t, []string{first.Artifact.ID, second.Artifact.ID}, []string{r.From, r.To})

	rels, err := repo.ListRelations(ctx, first.Artifact.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func testNearest(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	_, ok, err := repo.Nearest(ctx, []float64{1, 0})
	require.NoError(t, err)
	assert.False(t, ok, "empty corpus has no neighbour")

	a, err := repo.InsertArtifact(ctx, Artifact("a", "b", "c", []float64{1, 0}, "bound", base))
	require.NoError(t, err)
	b, err := repo.InsertArtifact(ctx, Artifact("d", "e", "f", []float64{0, 1}, "bound", base.Add(time.Second)))
	require.NoError(t, err)

	n, ok, err := repo.Nearest(ctx, []float64{1, 0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.Artifact.ID, n.Artifact.ID)
	assert.InDelta(t, 1.0, n.Similarity, 1e-9)

	n, ok, err = repo.Nearest(ctx, []float64{0.1, 0.9})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.Artifact.ID, n.Artifact.ID)
}

func testAddRelation(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	a, err := repo.InsertArtifact(ctx, Artifact("a", "b", "c", []float64{1, 0}, "bound", base))
	require.NoError(t, err)
	b, err := repo.InsertArtifact(ctx, Artifact("d", "e", "f", []float64{0, 1}, "bound", base.Add(time.Second)))
	require.NoError(t, err)

	err = repo.AddRelation(ctx, domain.Relation{From: a.Artifact.ID, To: "ghost", Type: domain.RelationInverse, Similarity: 0.5})
	assert.ErrorIs(t, err, domain.ErrInvariant)
	err = repo.AddRelation(ctx, domain.Relation{From: a.Artifact.ID, To: a.Artifact.ID, Type: domain.RelationInverse})
	assert.ErrorIs(t, err, domain.ErrInvariant)
	err = repo.AddRelation(ctx, domain.Relation{From: a.Artifact.ID, To: b.Artifact.ID, Type: "cousin"})
	assert.ErrorIs(t, err, domain.ErrInvariant)

	inv := domain.Relation{From: b.Artifact.ID, To: a.Artifact.ID, Type: domain.RelationGeneralization, Similarity: 0.4, Rationale: "b generalizes a"}
	require.NoError(t, repo.AddRelation(ctx, inv))
	require.NoError(t, repo.AddRelation(ctx, inv), "adding twice is a no-op")
	sim := domain.Relation{From: b.Artifact.ID, To: a.Artifact.ID, Type: domain.RelationSimilar, Similarity: 0.3}
	require.NoError(t, repo.AddRelation(ctx, sim))
	sim.From, sim.To = sim.To, sim.From
	require.NoError(t, repo.AddRelation(ctx, sim), "undirected edges are canonical")

	rels, err := repo.ListRelations(ctx, a.Artifact.ID)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	for _, r := range rels {
		if r.Type == domain.RelationGeneralization {
			assert.Equal(t, b.Artifact.ID, r.From, "directed edges keep their orientation")
			assert.Equal(t, "b generalizes a", r.Rationale)
		}
	}
}

func testAttempts(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	err := repo.AppendAttempt(ctx, domain.AttemptLog{RunID: "r", Outcome: domain.OutcomeAccepted})
	assert.ErrorIs(t, err, domain.ErrInvariant)
	err = repo.AppendAttempt(ctx, domain.AttemptLog{RunID: "r", Outcome: domain.OutcomeAccepted, ArtifactID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrInvariant)
	err = repo.AppendAttempt(ctx, domain.AttemptLog{RunID: "r", Outcome: "exploded"})
	assert.ErrorIs(t, err, domain.ErrInvariant)

	a, err := repo.InsertArtifact(ctx, Artifact("a", "b", "c", []float64{1, 0}, "bound", base))
	require.NoError(t, err)
	agg := a.Artifact.Aggregate
	scores := a.Artifact.Scores
	entries := []domain.AttemptLog{
		{RunID: "r1", Cycle: 1, Timestamp: base, Outcome: domain.OutcomeNoCandidate, Rationale: "empty"},
		{RunID: "r1", Cycle: 2, Timestamp: base.Add(time.Second), Outcome: domain.OutcomeAccepted, ArtifactID: a.Artifact.ID, Aggregate: &agg, Scores: &scores,
			Provenance: domain.Provenance{SourceName: "files", Reference: "x"}},
		{RunID: "r2", Cycle: 1, Timestamp: base.Add(2 * time.Second), Outcome: domain.OutcomeUpstreamError, Collaborator: domain.CollaboratorJudge, Rationale: "timeout"},
	}
	for _, e := range entries {
		require.NoError(t, repo.AppendAttempt(ctx, e))
	}

	all, err := repo.ListAttempts(ctx, domain.AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[0].RunID, "newest first")
	assert.Equal(t, domain.CollaboratorJudge, all[0].Collaborator)
	assert.Nil(t, all[0].Scores)

	r1, err := repo.ListAttempts(ctx, domain.AttemptFilter{RunID: "r1", Outcome: domain.OutcomeAccepted})
	require.NoError(t, err)
	require.Len(t, r1, 1)
	assert.Equal(t, a.Artifact.ID, r1[0].ArtifactID)
	require.NotNil(t, r1[0].Aggregate)
	assert.InDelta(t, agg, *r1[0].Aggregate, 1e-12)
	require.NotNil(t, r1[0].Scores)
	assert.InDelta(t, scores.Novelty, r1[0].Scores.Novelty, 1e-12)
	assert.Equal(t, "x", r1[0].Provenance.Reference)

	limited, err := repo.ListAttempts(ctx, domain.AttemptFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func testStats(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	day2 := base.Add(24 * time.Hour)
	_, err := repo.InsertArtifact(ctx, Artifact("a", "b", "c", []float64{1, 0}, "bound", base))
	require.NoError(t, err)
	_, err = repo.InsertArtifact(ctx, Artifact("d", "e", "f", []float64{0, 1}, "bound", day2))
	require.NoError(t, err)
	other := Artifact("g", "h", "i", []float64{-1, 0}, "temporal", day2.Add(time.Minute))
	other.Provenance.SourceName = "wikipedia"
	other.Scores.Novelty = 0.25
	other.Aggregate = other.Scores.Aggregate(other.Weights)
	_, err = repo.InsertArtifact(ctx, other)
	require.NoError(t, err)

	byType, err := repo.Stats(ctx, domain.GroupByStructuralType)
	require.NoError(t, err)
	require.Len(t, byType, 2)
	assert.Equal(t, "bound", byType[0].Key)
	assert.Equal(t, 2, byType[0].Count)
	assert.Equal(t, "temporal", byType[1].Key)
	assert.InDelta(t, 0.25, byType[1].MeanScores.Novelty, 1e-9)
	assert.InDelta(t, other.Aggregate, byType[1].MeanAggregate, 1e-9)

	byDay, err := repo.Stats(ctx, domain.GroupByDay)
	require.NoError(t, err)
	require.Len(t, byDay, 2)
	assert.Equal(t, "2025-03-14", byDay[0].Key)
	assert.Equal(t, 1, byDay[0].Count)
	assert.Equal(t, "2025-03-15", byDay[1].Key)
	assert.Equal(t, 2, byDay[1].Count)

	bySource, err := repo.Stats(ctx, domain.GroupBySource)
	require.NoError(t, err)
	require.Len(t, bySource, 2)
	assert.Equal(t, "files", bySource[0].Key)

	require.NoError(t, repo.AppendAttempt(ctx, domain.AttemptLog{RunID: "r", Outcome: domain.OutcomeNoCandidate}))
	require.NoError(t, repo.AppendAttempt(ctx, domain.AttemptLog{RunID: "r", Outcome: domain.OutcomeNoCandidate}))
	half := 0.5
	require.NoError(t, repo.AppendAttempt(ctx, domain.AttemptLog{RunID: "r", Outcome: domain.OutcomeMarginal, Aggregate: &half}))
	byOutcome, err := repo.Stats(ctx, domain.GroupByOutcome)
	require.NoError(t, err)
	require.Len(t, byOutcome, 2)
	assert.Equal(t, "marginal", byOutcome[0].Key)
	assert.InDelta(t, 0.5, byOutcome[0].MeanAggregate, 1e-12)
	assert.Equal(t, "no_candidate", byOutcome[1].Key)
	assert.Equal(t, 2, byOutcome[1].Count)
	assert.Equal(t, 0.0, byOutcome[1].MeanAggregate)

	_, err = repo.Stats(ctx, "weekday")
	assert.Error(t, err)
}

func testAssemblerQueries(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	_, err := repo.InsertArtifact(ctx, Artifact("thesis", "antithesis", "synthesis one", []float64{1, 0}, "dialectic", base))
	require.NoError(t, err)
	_, err = repo.InsertArtifact(ctx, Artifact("Antithesis", "thesis", "synthesis two", []float64{0, 1}, "dialectic", base.Add(time.Second)))
	require.NoError(t, err)
	_, err = repo.InsertArtifact(ctx, Artifact("before", "after", "transition", []float64{-1, 0}, "temporal", base.Add(2*time.Second)))
	require.NoError(t, err)

	ok, err := repo.HasTriple(ctx, "ANTITHESIS", "thesis", "Synthesis one")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.HasTriple(ctx, "thesis", "antithesis", "synthesis three")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := repo.BoundPairUsage(ctx, "antithesis", "Thesis")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.BoundPairUsage(ctx, "up", "down")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	freq, err := repo.TypeFrequencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"dialectic": 2, "temporal": 1}, freq)
}

func testStructuralTypes(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	err := repo.UpsertStructuralType(ctx, domain.StructuralType{Name: "child", Parent: "nobody"})
	assert.ErrorIs(t, err, domain.ErrInvariant)

	require.NoError(t, repo.UpsertStructuralType(ctx, domain.StructuralType{Name: "Bound", Description: "limits"}))
	require.NoError(t, repo.UpsertStructuralType(ctx, domain.StructuralType{Name: "tight-bound", Parent: "bound", Description: "close limits"}))
	require.NoError(t, repo.UpsertStructuralType(ctx, domain.StructuralType{Name: "bound", Description: "overwritten?"}))

	// unknown types are added on insert
	_, err = repo.InsertArtifact(ctx, Artifact("a", "b", "c", []float64{1, 0}, "novel-type", base))
	require.NoError(t, err)
	// a later description fills in an auto-added type
	require.NoError(t, repo.UpsertStructuralType(ctx, domain.StructuralType{Name: "novel-type", Description: "found in the wild"}))

	types, err := repo.ListStructuralTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 3)
	byName := map[string]domain.StructuralType{}
	for _, st := range types {
		byName[st.Name] = st
	}
	assert.Equal(t, "limits", byName["bound"].Description)
	assert.Equal(t, "bound", byName["tight-bound"].Parent)
	assert.Equal(t, "found in the wild", byName["novel-type"].Description)
}

func testListArtifacts(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		typ := "bound"
		if i%2 == 1 {
			typ = "temporal"
		}
		vec := []float64{float64(i + 1), float64(5 - i)}
		_, err := repo.InsertArtifact(ctx, Artifact(fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i), fmt.Sprintf("c%d", i), vec, typ, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	page, err := repo.ListArtifacts(ctx, domain.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a4", page[0].BoundA.Text)
	assert.Equal(t, "a3", page[1].BoundA.Text)

	page, err = repo.ListArtifacts(ctx, domain.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a2", page[0].BoundA.Text)

	bounds, err := repo.ListArtifacts(ctx, domain.ListOptions{StructuralType: "bound"})
	require.NoError(t, err)
	assert.Len(t, bounds, 3)
}

func testConcurrentDuplicate(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.InsertArtifact(ctx, Artifact("input x", "output y", "function f", []float64{1, 0}, "bound", base.Add(time.Duration(i)*time.Millisecond)))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrDuplicateArtifact):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	ings, err := repo.ListIngredients(ctx, 0)
	require.NoError(t, err)
	for _, ing := range ings {
		assert.Equal(t, 1, ing.UsageCount)
	}
}

func testConcurrentSharedIngredient(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vec := []float64{float64(i + 1), 1}
			_, errs[i] = repo.InsertArtifact(ctx, Artifact("shared bread", fmt.Sprintf("other %d", i), fmt.Sprintf("filling %d", i), vec, "bound", base.Add(time.Duration(i)*time.Millisecond)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	users, err := repo.FindByIngredientText(ctx, "Shared Bread")
	require.NoError(t, err)
	assert.Len(t, users, workers)
	ings, err := repo.ListIngredients(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ings, 1)
	assert.Equal(t, "shared bread", ings[0].Normalized)
	assert.Equal(t, workers, ings[0].UsageCount)
}
