package metrics

import (
	"context"
	"errors"
	"time"

	"sandwich/internal/domain"
)

// The wrappers below time every collaborator call. Exhaustion of a content
// source is not counted as an error.

type source struct {
	domain.ContentSource
	m *Metrics
}

func Source(s domain.ContentSource, m *Metrics) domain.ContentSource {
	if m == nil {
		return s
	}
	return source{s, m}
}

func (s source) Next(ctx context.Context) (domain.Content, error) {
	start := time.Now()
	c, err := s.ContentSource.Next(ctx)
	if errors.Is(err, domain.ErrExhausted) {
		s.m.ObserveCall(domain.CollaboratorSource, time.Since(start), nil)
		return c, err
	}
	s.m.ObserveCall(domain.CollaboratorSource, time.Since(start), err)
	return c, err
}

type extractor struct {
	next domain.Extractor
	m    *Metrics
}

func Extractor(e domain.Extractor, m *Metrics) domain.Extractor {
	if m == nil {
		return e
	}
	return extractor{e, m}
}

func (e extractor) Extract(ctx context.Context, text string) (domain.Extraction, error) {
	start := time.Now()
	out, err := e.next.Extract(ctx, text)
	e.m.ObserveCall(domain.CollaboratorExtractor, time.Since(start), err)
	return out, err
}

type writer struct {
	next domain.Writer
	m    *Metrics
}

func Writer(w domain.Writer, m *Metrics) domain.Writer {
	if m == nil {
		return w
	}
	return writer{w, m}
}

func (w writer) Write(ctx context.Context, req domain.WriteRequest) (domain.Writing, error) {
	start := time.Now()
	out, err := w.next.Write(ctx, req)
	w.m.ObserveCall(domain.CollaboratorWriter, time.Since(start), err)
	return out, err
}

type embedder struct {
	domain.Embedder
	m *Metrics
}

func Embedder(e domain.Embedder, m *Metrics) domain.Embedder {
	if m == nil {
		return e
	}
	return embedder{e, m}
}

func (e embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	start := time.Now()
	v, err := e.Embedder.Embed(ctx, text)
	e.m.ObserveCall(domain.CollaboratorEmbedder, time.Since(start), err)
	return v, err
}

type judge struct {
	next domain.Judge
	m    *Metrics
}

func Judge(j domain.Judge, m *Metrics) domain.Judge {
	if m == nil {
		return j
	}
	return judge{j, m}
}

func (j judge) Judge(ctx context.Context, d domain.Draft, r domain.Rubric) (domain.Judgment, error) {
	start := time.Now()
	out, err := j.next.Judge(ctx, d, r)
	j.m.ObserveCall(domain.CollaboratorJudge, time.Since(start), err)
	return out, err
}
