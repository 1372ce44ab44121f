// Package service runs the foraging loop: one strictly ordered pipeline
// cycle at a time under a patience budget.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"sandwich/internal/assembler"
	"sandwich/internal/domain"
	"sandwich/internal/metrics"
	"sandwich/internal/preprocess"
	"sandwich/internal/validator"
)

// CycleResult is the typed outcome of one pipeline cycle. Err is set only
// for fatal failures; every other failure is folded into Outcome.
type CycleResult struct {
	Outcome      domain.Outcome
	Rationale    string
	Provenance   domain.Provenance
	Collaborator domain.Collaborator
	Scores       *domain.Scores
	Aggregate    *float64
	Artifact     *domain.Artifact
	Relations    int
	// Exhausted is set when the source had nothing left.
	Exhausted bool
	Err       error
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Source       domain.ContentSource
	Preprocessor *preprocess.Preprocessor
	Extractor    domain.Extractor
	Assembler    *assembler.Assembler
	Validator    *validator.Validator
	Repository   domain.Repository
	Metrics      *metrics.Metrics
	Logger       *logrus.Logger
	// CallTimeout bounds the source and extractor calls.
	CallTimeout time.Duration
}

type Pipeline struct {
	d Deps
}

func NewPipeline(d Deps) (*Pipeline, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case d.Preprocessor == nil:
		return nil, errors.New("pipeline: preprocessor is required")
	case d.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case d.Assembler == nil:
		return nil, errors.New("pipeline: assembler is required")
	case d.Validator == nil:
		return nil, errors.New("pipeline: validator is required")
	case d.Repository == nil:
		return nil, errors.New("pipeline: repository is required")
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	return &Pipeline{d: d}, nil
}

func (p *Pipeline) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.d.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.d.CallTimeout)
}

// Cycle runs source, preprocessing, extraction, assembly, validation and
// persistence once.
func (p *Pipeline) Cycle(ctx context.Context) CycleResult {
	sctx, cancel := p.call(ctx)
	content, err := p.d.Source.Next(sctx)
	cancel()
	switch {
	case errors.Is(err, domain.ErrExhausted):
		return CycleResult{Outcome: domain.OutcomeNoCandidate, Rationale: "source exhausted", Exhausted: true}
	case err != nil:
		return upstream(domain.Upstream(domain.CollaboratorSource, err), domain.Provenance{})
	}
	res := CycleResult{Provenance: content.Provenance}

	pre := p.d.Preprocessor.Process(content)
	if pre.Skip {
		p.d.Metrics.ObserveSkip(string(pre.Reason))
		res.Outcome = domain.OutcomeNoCandidate
		res.Rationale = fmt.Sprintf("preprocess: %s (quality %.2f, %d chars)", pre.Reason, pre.Quality, pre.ProcessedLength)
		return res
	}
	content.Text = pre.Text

	ectx, cancel := p.call(ctx)
	extraction, err := p.d.Extractor.Extract(ectx, content.Text)
	cancel()
	if err != nil {
		return upstream(domain.Upstream(domain.CollaboratorExtractor, err), content.Provenance)
	}
	if len(extraction.Candidates) == 0 {
		res.Outcome = domain.OutcomeNoCandidate
		res.Rationale = "extractor: " + extraction.Reason
		return res
	}

	assembly, err := p.d.Assembler.Assemble(ctx, extraction.Candidates, content)
	if err != nil {
		return p.failure(err, content.Provenance)
	}
	if nc := assembly.NoCandidate; nc != nil {
		res.Outcome = nc.Outcome()
		res.Rationale = fmt.Sprintf("assembler: %s: %s", nc.Reason, nc.Detail)
		return res
	}

	ev, err := p.d.Validator.Validate(ctx, *assembly.Draft)
	if err != nil {
		return p.failure(err, content.Provenance)
	}
	scores, agg := ev.Scores, ev.Aggregate
	res.Scores, res.Aggregate = &scores, &agg
	res.Rationale = ev.Rationale
	res.Outcome = ev.Outcome()
	if ev.State != validator.StateAccepted {
		return res
	}

	artifact, err := ev.Artifact()
	if err != nil {
		res.Err = err
		return res
	}
	inserted, err := p.d.Repository.InsertArtifact(ctx, artifact)
	if errors.Is(err, domain.ErrDuplicateArtifact) {
		res.Outcome = domain.OutcomeDuplicate
		res.Rationale = "repository: triple inserted concurrently | " + ev.Rationale
		return res
	}
	if err != nil {
		res.Err = fmt.Errorf("insert artifact: %w", err)
		return res
	}
	res.Artifact = &inserted.Artifact
	res.Relations = len(inserted.Relations)
	return res
}

// failure maps an assembler or validator error. Upstream errors are
// outcomes; anything else comes from the repository and is fatal.
func (p *Pipeline) failure(err error, prov domain.Provenance) CycleResult {
	if _, ok := domain.AsUpstream(err); ok {
		return upstream(err, prov)
	}
	return CycleResult{Outcome: domain.OutcomeUpstreamError, Collaborator: domain.CollaboratorRepository, Provenance: prov, Err: err}
}

func upstream(err error, prov domain.Provenance) CycleResult {
	ue, _ := domain.AsUpstream(err)
	return CycleResult{
		Outcome:      domain.OutcomeUpstreamError,
		Rationale:    err.Error(),
		Provenance:   prov,
		Collaborator: ue.Collaborator,
	}
}
