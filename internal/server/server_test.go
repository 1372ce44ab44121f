package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/corpus"
	"sandwich/internal/corpus/corpustest"
	"sandwich/internal/corpus/memory"
	"sandwich/internal/domain"
	"sandwich/internal/events"
	"sandwich/internal/logging"
	"sandwich/internal/metrics"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	handler http.Handler
	ids     []string
	bus     *events.Bus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(corpus.DefaultOptions())
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i, a := range []*domain.Artifact{
		corpustest.Artifact("g(x)", "h(x)", "f(x)", []float64{1, 0}, "bound", at),
		corpustest.Artifact("thesis", "antithesis", "synthesis", []float64{0.96, 0.28}, "dialectic", at.Add(time.Hour)),
		corpustest.Artifact("g(x)", "k(x)", "m(x)", []float64{0, 1}, "bound", at.Add(2*time.Hour)),
	} {
		res, err := store.InsertArtifact(ctx, a)
		require.NoError(t, err, "artifact %d", i)
		ids = append(ids, res.Artifact.ID)
	}
	require.NoError(t, store.AppendAttempt(ctx, domain.AttemptLog{RunID: "run-1", Cycle: 1, Outcome: domain.OutcomeAccepted, ArtifactID: ids[0]}))
	require.NoError(t, store.AppendAttempt(ctx, domain.AttemptLog{RunID: "run-1", Cycle: 2, Outcome: domain.OutcomeNoCandidate, Rationale: "nothing"}))

	bus := events.NewBus(10, logging.Discard())
	require.NoError(t, bus.Publish(ctx, events.Event{Type: events.RunStarted, RunID: "run-1"}))

	s := New(Config{}, store, bus, metrics.New(), logging.Discard())
	return &testServer{handler: s.Handler(), ids: ids, bus: bus}
}

func (ts *testServer) get(t *testing.T, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestListArtifacts(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.get(t, "/api/artifacts?limit=2")
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Total     int            `json:"total"`
		Artifacts []artifactView `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Artifacts, 2)
	assert.Equal(t, ts.ids[2], page.Artifacts[0].ID, "newest first")

	_, env = ts.get(t, "/api/artifacts?type=dialectic")
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Artifacts, 1)
	assert.Equal(t, "synthesis", page.Artifacts[0].Bounded)

	code, env = ts.get(t, "/api/artifacts?limit=-1")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, codeBadRequest, env.Code)
}

func TestGetArtifact(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.get(t, "/api/artifacts/"+ts.ids[0])
	require.Equal(t, http.StatusOK, code)
	var a artifactView
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, "f(x)", a.Bounded)
	assert.Equal(t, "files", a.Provenance.SourceName)
	assert.Equal(t, "2025-05-01T12:00:00Z", a.CreatedAt)

	code, env = ts.get(t, "/api/artifacts/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, codeNotFound, env.Code)
}

func TestRelations(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.get(t, "/api/artifacts/"+ts.ids[0]+"/relations")
	require.Equal(t, http.StatusOK, code)
	var rels []relationView
	require.NoError(t, json.Unmarshal(env.Data, &rels))

	types := map[domain.RelationType]int{}
	for _, r := range rels {
		types[r.Type]++
	}
	assert.Equal(t, 1, types[domain.RelationSimilar], "0.96 cosine to the dialectic artifact")
	assert.Equal(t, 1, types[domain.RelationSharesIngredient], "g(x) is shared")

	code, _ = ts.get(t, "/api/artifacts/missing/relations")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIngredients(t *testing.T) {
	ts := newTestServer(t)
	_, env := ts.get(t, "/api/ingredients?limit=1")
	var ings []ingredientView
	require.NoError(t, json.Unmarshal(env.Data, &ings))
	require.Len(t, ings, 1)
	assert.Equal(t, "g(x)", ings[0].Text)
	assert.Equal(t, 2, ings[0].UsageCount)

	_, env = ts.get(t, "/api/ingredients/artifacts?text=G(x)")
	var as []artifactView
	require.NoError(t, json.Unmarshal(env.Data, &as))
	assert.Len(t, as, 2)

	code, _ := ts.get(t, "/api/ingredients/artifacts")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAttempts(t *testing.T) {
	ts := newTestServer(t)
	_, env := ts.get(t, "/api/attempts?outcome=no_candidate")
	var logs []attemptView
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "nothing", logs[0].Rationale)

	code, _ := ts.get(t, "/api/attempts?outcome=bogus")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	_, env := ts.get(t, "/api/stats")
	var rows []statView
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Key] = r.Count
	}
	assert.Equal(t, map[string]int{"bound": 2, "dialectic": 1}, counts)

	code, _ := ts.get(t, "/api/stats?group=color")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestEventsAndHealth(t *testing.T) {
	ts := newTestServer(t)
	_, env := ts.get(t, "/api/events")
	var evs []events.Event
	require.NoError(t, json.Unmarshal(env.Data, &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, events.RunStarted, evs[0].Type)

	code, env := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status": "ok", "artifacts": 3}`, string(env.Data))

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
