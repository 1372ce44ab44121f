package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/domain"
)

func TestCounters(t *testing.T) {
	m := New()
	agg := 0.8
	m.ObserveCycle(domain.OutcomeAccepted, &agg)
	m.ObserveCycle(domain.OutcomeNoCandidate, nil)
	m.ObserveCycle(domain.OutcomeNoCandidate, nil)
	m.ObserveCall(domain.CollaboratorJudge, 20*time.Millisecond, nil)
	m.ObserveCall(domain.CollaboratorJudge, time.Second, errors.New("timeout"))
	m.SetPatience(3)
	m.ObserveRun("patience_exhausted")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("no_candidate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callErrors.WithLabelValues("judge")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.patience))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("patience_exhausted")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetCorpusSize(7)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sandwich_corpus_artifacts 7")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle(domain.OutcomeRejected, nil)
		m.ObserveCall(domain.CollaboratorSource, time.Second, nil)
		m.SetPatience(1)
		m.SetCorpusSize(1)
		m.ObserveRun("fatal")
		m.ObserveSkip("too_short")
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

type stubSource struct{ err error }

func (s stubSource) Name() string { return "stub" }
func (s stubSource) Next(context.Context) (domain.Content, error) {
	return domain.Content{}, s.err
}

type stubJudge struct{ err error }

func (j stubJudge) Judge(context.Context, domain.Draft, domain.Rubric) (domain.Judgment, error) {
	return domain.Judgment{}, j.err
}

func TestInstrumentedCollaborators(t *testing.T) {
	m := New()
	ctx := context.Background()

	_, err := Source(stubSource{err: domain.ErrExhausted}, m).Next(ctx)
	assert.ErrorIs(t, err, domain.ErrExhausted)
	_, _ = Source(stubSource{err: errors.New("down")}, m).Next(ctx)
	_, _ = Judge(stubJudge{}, m).Judge(ctx, domain.Draft{}, domain.Rubric{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.callErrors.WithLabelValues("source")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.calls))
	assert.Equal(t, "stub", Source(stubSource{}, m).Name())

	var nilMetrics *Metrics
	s := stubSource{}
	assert.Equal(t, domain.ContentSource(s), Source(s, nilMetrics))
}
