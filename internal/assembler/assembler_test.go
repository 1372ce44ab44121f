package assembler

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
	"sandwich/internal/embedding/hashing"
	"sandwich/internal/llm/llmtest"
	"sandwich/internal/logging"
	"sandwich/internal/vector"
)

func cand(a, b, c, typ string, conf float64) domain.Candidate {
	return domain.Candidate{BoundA: a, BoundB: b, Bounded: c, StructuralType: typ, Confidence: conf}
}

func TestSelect(t *testing.T) {
	freq := map[string]int{"bound": 4, "temporal": 1}
	tests := []struct {
		name       string
		in         []Checked
		want       string
		wantReason NoCandidateReason
	}{
		{name: "empty", wantReason: ReasonEmpty},
		{
			name: "highest confidence",
			in: []Checked{
				{Candidate: cand("a", "b", "low", "bound", 0.4)},
				{Candidate: cand("a", "b", "high", "bound", 0.9)},
			},
			want: "high",
		},
		{
			name: "tie prefers rarer type",
			in: []Checked{
				{Candidate: cand("a", "b", "common", "bound", 0.8)},
				{Candidate: cand("a", "b", "rare", "temporal", 0.8)},
			},
			want: "rare",
		},
		{
			name: "unseen type is rarest",
			in: []Checked{
				{Candidate: cand("a", "b", "seen", "temporal", 0.8)},
				{Candidate: cand("a", "b", "unseen", "dialectic", 0.8)},
			},
			want: "unseen",
		},
		{
			name: "full tie keeps input order",
			in: []Checked{
				{Candidate: cand("a", "b", "first", "bound", 0.8)},
				{Candidate: cand("a", "b", "second", "bound", 0.8)},
			},
			want: "first",
		},
		{
			name: "duplicates and reused pairs skipped",
			in: []Checked{
				{Candidate: cand("a", "b", "dup", "bound", 0.99), Duplicate: true},
				{Candidate: cand("a", "b", "reused", "bound", 0.95), PairUsage: 3},
				{Candidate: cand("a", "b", "ok", "bound", 0.1), PairUsage: 2},
			},
			want: "ok",
		},
		{
			name: "all duplicates",
			in: []Checked{
				{Candidate: cand("a", "b", "x", "bound", 0.9), Duplicate: true},
				{Candidate: cand("a", "b", "y", "bound", 0.9), Duplicate: true},
			},
			wantReason: ReasonAllDuplicates,
		},
		{
			name: "mixed exhaustion",
			in: []Checked{
				{Candidate: cand("a", "b", "x", "bound", 0.9), Duplicate: true},
				{Candidate: cand("a", "b", "y", "bound", 0.9), PairUsage: 5},
			},
			wantReason: ReasonAllReused,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, none := Select(tt.in, freq, 3)
			if tt.wantReason != "" {
				require.NotNil(t, none)
				assert.Equal(t, tt.wantReason, none.Reason)
				return
			}
			require.Nil(t, none)
			assert.Equal(t, tt.want, got.Bounded)
		})
	}
}

func TestNoCandidateOutcome(t *testing.T) {
	assert.Equal(t, domain.OutcomeDuplicate, NoCandidate{Reason: ReasonAllDuplicates}.Outcome())
	assert.Equal(t, domain.OutcomeNoCandidate, NoCandidate{Reason: ReasonAllReused}.Outcome())
	assert.Equal(t, domain.OutcomeNoCandidate, NoCandidate{Reason: ReasonEmpty}.Outcome())
}

const writing = `{"name": "The Squeeze", "description": "A function held between two others.", "containment_argument": "f is bounded by g below and h above."}`

var content = domain.Content{
	Text:       "The squeeze theorem bounds f(x) between g(x) and h(x).",
	Provenance: domain.Provenance{SourceName: "files", Reference: "squeeze.txt", Title: "Squeeze"},
}

func TestAssembleBuildsDraft(t *testing.T) {
	store := memory.NewStore(corpus.DefaultOptions())
	client := llmtest.Texts(writing)
	a := New(store, NewWriter(client), hashing.NewEmbedder(64), Options{}, logging.Discard())

	got, err := a.Assemble(context.Background(), []domain.Candidate{
		cand("g(x)", "h(x)", "f(x)", "bound", 0.9),
	}, content)
	require.NoError(t, err)
	require.Nil(t, got.NoCandidate)
	d := got.Draft
	require.NotNil(t, d)

	assert.Equal(t, "The Squeeze", d.Name)
	assert.Equal(t, "f is bounded by g below and h above.", d.Justification)
	assert.Equal(t, "bound", d.StructuralType)
	assert.Equal(t, content.Provenance, d.Provenance)
	assert.Len(t, d.BoundA.Vector, 64)
	assert.Equal(t, vector.Pool(d.BoundA.Vector, d.BoundB.Vector, d.Bounded.Vector), d.Concept)
	assert.InDelta(t, 1.0, vector.Norm(d.Concept), 1e-9)

	p := client.Prompts[0].User
	assert.Contains(t, p, "bounded: f(x)")
	assert.Contains(t, p, "upper/lower limits")
	assert.Contains(t, p, content.Text)
}

func TestAssembleSkipsCorpusDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(corpus.DefaultOptions())
	_, err := store.InsertArtifact(ctx, corpustest.Artifact("g(x)", "h(x)", "f(x)", []float64{1, 0}, "bound", time.Now()))
	require.NoError(t, err)

	client := llmtest.Texts()
	a := New(store, NewWriter(client), hashing.NewEmbedder(16), Options{}, logging.Discard())
	got, err := a.Assemble(ctx, []domain.Candidate{cand("H(x)", "g(x)", "f(x).", "bound", 0.9)}, content)
	require.NoError(t, err)
	require.NotNil(t, got.NoCandidate)
	assert.Equal(t, ReasonAllDuplicates, got.NoCandidate.Reason)
	assert.Zero(t, client.Calls(), "writer is not called without a selection")
}

func TestAssembleEmptyCandidates(t *testing.T) {
	a := New(memory.NewStore(corpus.DefaultOptions()), NewWriter(llmtest.Texts()), hashing.NewEmbedder(16), Options{}, logging.Discard())
	got, err := a.Assemble(context.Background(), nil, content)
	require.NoError(t, err)
	require.NotNil(t, got.NoCandidate)
	assert.Equal(t, ReasonEmpty, got.NoCandidate.Reason)
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) Name() string   { return "failing" }
func (f failingEmbedder) Dimension() int { return 0 }
func (f failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, f.err
}

func TestAssembleUpstreamFailures(t *testing.T) {
	boom := errors.New("boom")
	cands := []domain.Candidate{cand("g(x)", "h(x)", "f(x)", "bound", 0.9)}

	t.Run("writer", func(t *testing.T) {
		a := New(memory.NewStore(corpus.Options{}), NewWriter(llmtest.New(llmtest.Reply{Err: boom})), hashing.NewEmbedder(8), Options{}, logging.Discard())
		_, err := a.Assemble(context.Background(), cands, content)
		ue, ok := domain.AsUpstream(err)
		require.True(t, ok)
		assert.Equal(t, domain.CollaboratorWriter, ue.Collaborator)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("blank name", func(t *testing.T) {
		client := llmtest.Texts(`{"name": " ", "description": "d", "containment_argument": "c"}`)
		a := New(memory.NewStore(corpus.Options{}), NewWriter(client), hashing.NewEmbedder(8), Options{}, logging.Discard())
		_, err := a.Assemble(context.Background(), cands, content)
		ue, ok := domain.AsUpstream(err)
		require.True(t, ok)
		assert.Equal(t, domain.CollaboratorWriter, ue.Collaborator)
	})

	t.Run("embedder", func(t *testing.T) {
		a := New(memory.NewStore(corpus.Options{}), NewWriter(llmtest.Texts(writing)), failingEmbedder{err: boom}, Options{}, logging.Discard())
		_, err := a.Assemble(context.Background(), cands, content)
		ue, ok := domain.AsUpstream(err)
		require.True(t, ok)
		assert.Equal(t, domain.CollaboratorEmbedder, ue.Collaborator)
		assert.ErrorIs(t, err, boom)
	})
}
