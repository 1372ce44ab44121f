// Package validator scores drafts on five dimensions and decides whether they
// enter the corpus.
package validator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"sandwich/internal/domain"
	"sandwich/internal/vector"
)

// Config is the immutable configuration of a Validator.
type Config struct {
	AcceptThreshold float64
	MarginalFloor   float64
	Weights         domain.Weights
	Rubric          domain.Rubric
	// CallTimeout bounds each judge call. Zero means none.
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		AcceptThreshold: 0.70,
		MarginalFloor:   0.50,
		Weights:         domain.DefaultWeights(),
		Rubric:          DefaultRubric(),
	}
}

// NoveltySource finds the nearest accepted artifact to a concept vector.
type NoveltySource interface {
	Nearest(ctx context.Context, vec []float64) (domain.Neighbor, bool, error)
}

type Validator struct {
	cfg    Config
	judge  domain.Judge
	corpus NoveltySource
}

// New checks thresholds and normalizes weights. An empty rubric is replaced
// by DefaultRubric.
func New(cfg Config, judge domain.Judge, corpus NoveltySource) (*Validator, error) {
	if judge == nil || corpus == nil {
		return nil, errors.New("validator: judge and corpus are required")
	}
	a, f := cfg.AcceptThreshold, cfg.MarginalFloor
	if math.IsNaN(a) || math.IsNaN(f) || f < 0 || a > 1 || f > a {
		return nil, fmt.Errorf("validator: need 0 <= marginal floor (%v) <= accept threshold (%v) <= 1", f, a)
	}
	cfg.Weights = cfg.Weights.Normalize()
	if cfg.Rubric == (domain.Rubric{}) {
		cfg.Rubric = DefaultRubric()
	}
	return &Validator{cfg: cfg, judge: judge, corpus: corpus}, nil
}

// Config returns the effective configuration.
func (v *Validator) Config() Config { return v.cfg }

// Evaluation is the scored result of one draft.
type Evaluation struct {
	Draft     domain.Draft
	State     State
	Scores    domain.Scores
	Weights   domain.Weights
	Aggregate float64
	Rationale string
	// NearestID is the closest accepted artifact, empty for an empty corpus.
	NearestID string
}

// Outcome maps the terminal state onto an attempt log outcome.
func (e Evaluation) Outcome() domain.Outcome {
	switch e.State {
	case StateAccepted:
		return domain.OutcomeAccepted
	case StateMarginal:
		return domain.OutcomeMarginal
	default:
		return domain.OutcomeRejected
	}
}

// Artifact builds the artifact of an accepted evaluation. ID and creation
// time are left for the repository.
func (e Evaluation) Artifact() (*domain.Artifact, error) {
	if e.State != StateAccepted {
		return nil, fmt.Errorf("evaluation is %s, not accepted", e.State)
	}
	d := e.Draft
	return &domain.Artifact{
		Name:                d.Name,
		Description:         d.Description,
		BoundA:              d.BoundA,
		BoundB:              d.BoundB,
		Bounded:             d.Bounded,
		Concept:             d.Concept,
		StructuralType:      d.StructuralType,
		Scores:              e.Scores,
		Weights:             e.Weights,
		Aggregate:           e.Aggregate,
		Provenance:          d.Provenance,
		AssemblyRationale:   d.AssemblyRationale,
		ValidationRationale: e.Rationale,
	}, nil
}

// Validate scores d and moves it to a terminal state. Judge failures are
// returned as *domain.UpstreamError; corpus failures are returned as is.
func (v *Validator) Validate(ctx context.Context, d domain.Draft) (Evaluation, error) {
	state := StateDraft
	ev := Evaluation{Draft: d, State: state, Weights: v.cfg.Weights}

	jctx, cancel := ctx, context.CancelFunc(func() {})
	if v.cfg.CallTimeout > 0 {
		jctx, cancel = context.WithTimeout(ctx, v.cfg.CallTimeout)
	}
	j, err := v.judge.Judge(jctx, d, v.cfg.Rubric)
	cancel()
	if err != nil {
		return ev, domain.Upstream(domain.CollaboratorJudge, err)
	}

	nonTrivial, boundSim := NonTriviality(d)
	novelty := 1.0
	nearest, found, err := v.corpus.Nearest(ctx, d.Concept)
	if err != nil {
		return ev, fmt.Errorf("nearest artifact: %w", err)
	}
	if found {
		novelty = domain.Clamp01(1 - nearest.Similarity)
		ev.NearestID = nearest.Artifact.ID
	}

	ev.Scores = domain.Scores{
		BoundCompatibility: domain.Clamp01(j.BoundCompatibility),
		Containment:        domain.Clamp01(j.Containment),
		Specificity:        domain.Clamp01(j.Specificity),
		NonTriviality:      nonTrivial,
		Novelty:            novelty,
	}
	ev.Aggregate = ev.Scores.Aggregate(ev.Weights)
	if ev.State, err = state.To(StateScored); err != nil {
		return ev, err
	}
	if ev.State, err = ev.State.To(v.decide(ev.Aggregate)); err != nil {
		return ev, err
	}

	parts := []string{}
	if j.Rationale != "" {
		parts = append(parts, "judge: "+j.Rationale)
	}
	parts = append(parts, fmt.Sprintf("non-triviality: max bound similarity %.3f", boundSim))
	if found {
		parts = append(parts, fmt.Sprintf("novelty: nearest %q at %.3f", nearest.Artifact.Name, nearest.Similarity))
	} else {
		parts = append(parts, "novelty: corpus empty")
	}
	parts = append(parts, fmt.Sprintf("aggregate %.3f -> %s", ev.Aggregate, ev.State))
	ev.Rationale = strings.Join(parts, " | ")
	return ev, nil
}

func (v *Validator) decide(aggregate float64) State {
	switch {
	case aggregate >= v.cfg.AcceptThreshold:
		return StateAccepted
	case aggregate >= v.cfg.MarginalFloor:
		return StateMarginal
	default:
		return StateRejected
	}
}

// NonTriviality is 1 minus the larger cosine between the bounded element
// and either bound, clipped to [0,1]. The larger cosine is returned too.
func NonTriviality(d domain.Draft) (float64, float64) {
	sim := math.Max(
		vector.Cosine(d.Bounded.Vector, d.BoundA.Vector),
		vector.Cosine(d.Bounded.Vector, d.BoundB.Vector),
	)
	return domain.Clamp01(1 - sim), sim
}
