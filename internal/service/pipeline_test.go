package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/assembler"
	"sandwich/internal/corpus"
	"sandwich/internal/corpus/memory"
	"sandwich/internal/domain"
	"sandwich/internal/embedding/hashing"
	"sandwich/internal/extractor"
	"sandwich/internal/llm/llmtest"
	"sandwich/internal/logging"
	"sandwich/internal/preprocess"
	"sandwich/internal/source"
	"sandwich/internal/validator"
)

const squeezeText = `The squeeze theorem bounds a function between two others. If g(x) <= f(x) <= h(x) near c,
and both g and h approach L, then f approaches L as well.

It is used when a limit cannot be computed directly, for example sin(x)/x near zero.`

const squeezeCandidates = `{"candidates": [{"bound_a": "g(x)", "bound_b": "h(x)", "bounded": "f(x)", "structural_type": "bound", "confidence": 0.9, "rationale": "f is squeezed"}]}`

const squeezeWriting = `{"name": "The Squeeze", "description": "A function trapped between two bounds.", "containment_argument": "f cannot escape g below and h above."}`

type constJudge struct {
	j   domain.Judgment
	err error
}

func (c constJudge) Judge(context.Context, domain.Draft, domain.Rubric) (domain.Judgment, error) {
	return c.j, c.err
}

type fixture struct {
	store     *memory.Store
	extractor *llmtest.Scripted
	writer    *llmtest.Scripted
	judge     constJudge
	src       domain.ContentSource
}

func newFixture(texts ...string) *fixture {
	return &fixture{
		store:     memory.NewStore(corpus.DefaultOptions()),
		extractor: llmtest.Texts(),
		writer:    llmtest.Texts(),
		judge:     constJudge{j: domain.Judgment{BoundCompatibility: 0.9, Containment: 0.9, Specificity: 0.9, Rationale: "solid"}},
		src:       source.Texts("test", texts...),
	}
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	log := logging.Discard()
	pre, err := preprocess.New(preprocess.Config{MinLength: 20})
	require.NoError(t, err)
	v, err := validator.New(validator.DefaultConfig(), f.judge, f.store)
	require.NoError(t, err)
	p, err := NewPipeline(Deps{
		Source:       f.src,
		Preprocessor: pre,
		Extractor:    extractor.New(f.extractor, extractor.Options{}, log),
		Assembler:    assembler.New(f.store, assembler.NewWriter(f.writer), hashing.NewEmbedder(128), assembler.Options{}, log),
		Validator:    v,
		Repository:   f.store,
		Logger:       log,
	})
	require.NoError(t, err)
	return p
}

func TestCycleAcceptsAndThenReportsDuplicate(t *testing.T) {
	f := newFixture(squeezeText, squeezeText+" Again.")
	f.extractor = llmtest.Texts(squeezeCandidates, squeezeCandidates)
	f.writer = llmtest.Texts(squeezeWriting)
	p := f.pipeline(t)
	ctx := context.Background()

	first := p.Cycle(ctx)
	require.NoError(t, first.Err)
	require.Equal(t, domain.OutcomeAccepted, first.Outcome, first.Rationale)
	require.NotNil(t, first.Artifact)
	assert.Equal(t, "The Squeeze", first.Artifact.Name)
	assert.Equal(t, 1.0, first.Artifact.Scores.Novelty)
	assert.Equal(t, "test:0", first.Provenance.Reference)

	second := p.Cycle(ctx)
	require.NoError(t, second.Err)
	assert.Equal(t, domain.OutcomeDuplicate, second.Outcome)
	assert.Nil(t, second.Artifact)
	assert.Equal(t, 1, f.writer.Calls(), "duplicates are not written up")

	ings, err := f.store.ListIngredients(ctx, 0)
	require.NoError(t, err)
	for _, ing := range ings {
		assert.Equal(t, 1, ing.UsageCount, ing.Text)
	}
}

func TestCycleOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("source exhausted", func(t *testing.T) {
		res := newFixture().pipeline(t).Cycle(ctx)
		assert.Equal(t, domain.OutcomeNoCandidate, res.Outcome)
		assert.True(t, res.Exhausted)
	})

	t.Run("preprocess skip", func(t *testing.T) {
		f := newFixture("too short")
		res := f.pipeline(t).Cycle(ctx)
		assert.Equal(t, domain.OutcomeNoCandidate, res.Outcome)
		assert.Contains(t, res.Rationale, "too_short")
		assert.Zero(t, f.extractor.Calls())
	})

	t.Run("no candidates", func(t *testing.T) {
		f := newFixture(squeezeText)
		f.extractor = llmtest.Texts(`{"candidates": [], "no_candidate_reason": "plain prose"}`)
		res := f.pipeline(t).Cycle(ctx)
		assert.Equal(t, domain.OutcomeNoCandidate, res.Outcome)
		assert.Equal(t, "extractor: plain prose", res.Rationale)
	})

	t.Run("extractor down", func(t *testing.T) {
		f := newFixture(squeezeText)
		f.extractor = llmtest.New(llmtest.Reply{Err: errors.New("503")})
		res := f.pipeline(t).Cycle(ctx)
		require.NoError(t, res.Err)
		assert.Equal(t, domain.OutcomeUpstreamError, res.Outcome)
		assert.Equal(t, domain.CollaboratorExtractor, res.Collaborator)
	})

	t.Run("judge down", func(t *testing.T) {
		f := newFixture(squeezeText)
		f.extractor = llmtest.Texts(squeezeCandidates)
		f.writer = llmtest.Texts(squeezeWriting)
		f.judge = constJudge{err: errors.New("quota")}
		res := f.pipeline(t).Cycle(ctx)
		require.NoError(t, res.Err)
		assert.Equal(t, domain.OutcomeUpstreamError, res.Outcome)
		assert.Equal(t, domain.CollaboratorJudge, res.Collaborator)
	})

	t.Run("rejected", func(t *testing.T) {
		f := newFixture(squeezeText)
		f.extractor = llmtest.Texts(squeezeCandidates)
		f.writer = llmtest.Texts(squeezeWriting)
		f.judge = constJudge{j: domain.Judgment{}}
		res := f.pipeline(t).Cycle(ctx)
		require.NoError(t, res.Err)
		assert.Equal(t, domain.OutcomeRejected, res.Outcome)
		require.NotNil(t, res.Aggregate)
		assert.Less(t, *res.Aggregate, 0.5)
		require.NotNil(t, res.Scores)
		assert.Equal(t, 1.0, res.Scores.Novelty)
	})
}

func TestForagerEndToEnd(t *testing.T) {
	f := newFixture(squeezeText)
	f.extractor = llmtest.Texts(squeezeCandidates)
	f.writer = llmtest.Texts(squeezeWriting)
	p := f.pipeline(t)

	rep, err := NewForager(p, f.store, nil, nil, logging.Discard()).Run(context.Background(), Limits{Patience: 3})
	require.NoError(t, err)
	assert.Equal(t, SourceExhausted, rep.Reason)
	assert.Equal(t, 2, rep.Cycles)
	assert.Equal(t, 1, rep.Accepted)

	stats, err := f.store.Stats(context.Background(), domain.GroupByOutcome)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, row := range stats {
		counts[row.Key] = row.Count
	}
	assert.Equal(t, map[string]int{"accepted": 1, "no_candidate": 1}, counts)
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	_, err := NewPipeline(Deps{})
	assert.Error(t, err)
}
