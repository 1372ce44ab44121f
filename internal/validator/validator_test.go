package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/corpus"
	"sandwich/internal/corpus/corpustest"
	"sandwich/internal/corpus/memory"
	"sandwich/internal/domain"
	"sandwich/internal/vector"
)

type fixedJudge struct {
	j      domain.Judgment
	err    error
	rubric domain.Rubric
}

func (f *fixedJudge) Judge(_ context.Context, _ domain.Draft, r domain.Rubric) (domain.Judgment, error) {
	f.rubric = r
	return f.j, f.err
}

// squeeze is the f(x) triple: the bounded element leans towards bound A.
func squeeze() domain.Draft {
	a, b, c := []float64{1, 0, 0}, []float64{0, 1, 0}, []float64{0.6, 0, 0.8}
	return domain.Draft{
		Name:           "The Squeeze",
		BoundA:         domain.Element{Text: "g(x)", Vector: a},
		BoundB:         domain.Element{Text: "h(x)", Vector: b},
		Bounded:        domain.Element{Text: "f(x)", Vector: c},
		Concept:        vector.Pool(a, b, c),
		StructuralType: "bound",
		Provenance:     domain.Provenance{SourceName: "files", Reference: "squeeze.txt"},
	}
}

func newValidator(t *testing.T, cfg Config, j domain.Judge, repo NoveltySource) *Validator {
	t.Helper()
	v, err := New(cfg, j, repo)
	require.NoError(t, err)
	return v
}

func TestFirstArtifactIsFullyNovel(t *testing.T) {
	judge := &fixedJudge{j: domain.Judgment{BoundCompatibility: 0.9, Containment: 0.9, Specificity: 0.8, Rationale: "tight"}}
	v := newValidator(t, DefaultConfig(), judge, memory.NewStore(corpus.Options{}))

	ev, err := v.Validate(context.Background(), squeeze())
	require.NoError(t, err)
	assert.Equal(t, 1.0, ev.Scores.Novelty)
	assert.InDelta(t, 0.4, ev.Scores.NonTriviality, 1e-9)
	assert.InDelta(t, 0.18+0.225+0.16+0.06+0.2, ev.Aggregate, 1e-9)
	assert.Equal(t, ev.Scores.Aggregate(domain.DefaultWeights()), ev.Aggregate)
	assert.Equal(t, StateAccepted, ev.State)
	assert.Equal(t, domain.OutcomeAccepted, ev.Outcome())
	assert.Contains(t, ev.Rationale, "judge: tight")
	assert.Contains(t, ev.Rationale, "corpus empty")
	assert.Equal(t, DefaultRubric(), judge.rubric)
}

func TestDuplicateConceptIsMarginal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(corpus.Options{})
	d := squeeze()
	_, err := store.InsertArtifact(ctx, corpustest.Artifact("lower", "upper", "middle", d.Concept, "bound", time.Now()))
	require.NoError(t, err)

	judge := &fixedJudge{j: domain.Judgment{BoundCompatibility: 0.9, Containment: 0.9, Specificity: 0.8}}
	v := newValidator(t, DefaultConfig(), judge, store)
	ev, err := v.Validate(ctx, d)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, ev.Scores.Novelty, 1e-9)
	assert.InDelta(t, 0.625, ev.Aggregate, 1e-9)
	assert.Equal(t, StateMarginal, ev.State)
	assert.NotEmpty(t, ev.NearestID)

	_, err = ev.Artifact()
	assert.Error(t, err)
}

func TestDecisionBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = domain.Weights{Containment: 1}
	tests := []struct {
		containment float64
		want        State
	}{
		{1, StateAccepted},
		{0.70, StateAccepted},
		{0.69, StateMarginal},
		{0.50, StateMarginal},
		{0.49, StateRejected},
		{0, StateRejected},
	}
	for _, tt := range tests {
		judge := &fixedJudge{j: domain.Judgment{Containment: tt.containment}}
		v := newValidator(t, cfg, judge, memory.NewStore(corpus.Options{}))
		ev, err := v.Validate(context.Background(), squeeze())
		require.NoError(t, err)
		assert.Equal(t, tt.want, ev.State, "containment %v", tt.containment)
		assert.GreaterOrEqual(t, ev.Aggregate, 0.0)
		assert.LessOrEqual(t, ev.Aggregate, 1.0)
	}
}

func TestJudgeScoresAreClamped(t *testing.T) {
	judge := &fixedJudge{j: domain.Judgment{BoundCompatibility: 3, Containment: -1, Specificity: 0.5}}
	v := newValidator(t, DefaultConfig(), judge, memory.NewStore(corpus.Options{}))
	ev, err := v.Validate(context.Background(), squeeze())
	require.NoError(t, err)
	assert.True(t, ev.Scores.Valid())
	assert.Equal(t, 1.0, ev.Scores.BoundCompatibility)
	assert.Equal(t, 0.0, ev.Scores.Containment)
}

func TestJudgeFailureIsUpstream(t *testing.T) {
	boom := errors.New("timeout")
	v := newValidator(t, DefaultConfig(), &fixedJudge{err: boom}, memory.NewStore(corpus.Options{}))
	ev, err := v.Validate(context.Background(), squeeze())
	ue, ok := domain.AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, domain.CollaboratorJudge, ue.Collaborator)
	assert.Equal(t, StateDraft, ev.State)
}

func TestAcceptedArtifactIsInsertable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(corpus.Options{})
	judge := &fixedJudge{j: domain.Judgment{BoundCompatibility: 0.9, Containment: 0.9, Specificity: 0.8}}
	v := newValidator(t, DefaultConfig(), judge, store)

	ev, err := v.Validate(ctx, squeeze())
	require.NoError(t, err)
	a, err := ev.Artifact()
	require.NoError(t, err)
	assert.Equal(t, ev.Rationale, a.ValidationRationale)

	res, err := store.InsertArtifact(ctx, a)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Artifact.ID)
}

func TestNewValidatesConfig(t *testing.T) {
	store := memory.NewStore(corpus.Options{})
	judge := &fixedJudge{}

	bad := []Config{
		{AcceptThreshold: 0.4, MarginalFloor: 0.5},
		{AcceptThreshold: 1.2, MarginalFloor: 0.5},
		{AcceptThreshold: 0.7, MarginalFloor: -0.1},
	}
	for _, cfg := range bad {
		_, err := New(cfg, judge, store)
		assert.Error(t, err, "%+v", cfg)
	}

	v := newValidator(t, Config{AcceptThreshold: 0.7, MarginalFloor: 0.5, Weights: domain.Weights{Containment: 2, Novelty: 2}}, judge, store)
	assert.InDelta(t, 1.0, v.Config().Weights.Sum(), 1e-12)
	assert.Equal(t, 0.5, v.Config().Weights.Containment)
	assert.Equal(t, DefaultRubric(), v.Config().Rubric)

	v = newValidator(t, Config{AcceptThreshold: 0.7, MarginalFloor: 0.5}, judge, store)
	assert.Equal(t, domain.DefaultWeights(), v.Config().Weights)
}

func TestStateTransitions(t *testing.T) {
	s, err := StateDraft.To(StateScored)
	require.NoError(t, err)
	for _, terminal := range []State{StateAccepted, StateMarginal, StateRejected} {
		got, err := s.To(terminal)
		require.NoError(t, err)
		assert.True(t, got.Terminal())
		_, err = got.To(StateScored)
		assert.Error(t, err)
	}
	_, err = StateDraft.To(StateAccepted)
	assert.Error(t, err)
	assert.Equal(t, "marginal", StateMarginal.String())
}
