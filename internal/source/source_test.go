package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/domain"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func drain(t *testing.T, src domain.ContentSource) []domain.Content {
	t.Helper()
	var out []domain.Content
	for {
		c, err := src.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, domain.ErrExhausted)
			return out
		}
		out = append(out, c)
	}
}

func TestFilesGlobsRecursively(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "nested", "deep", "b.md"), "beta")
	writeFile(t, filepath.Join(dir, "nested", "c.html"), "<p>gamma</p>")
	writeFile(t, filepath.Join(dir, "nested", "skip.go"), "package x")

	f, err := NewFiles("", []string{filepath.Join(dir, "**", "*"), filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	assert.Equal(t, "files", f.Name())
	assert.Equal(t, 3, f.Len())

	items := drain(t, f)
	require.Len(t, items, 3)
	assert.Equal(t, "alpha", items[0].Text)
	assert.Equal(t, "a", items[0].Provenance.Title)
	assert.Equal(t, "html", items[1].ContentType)
	assert.Equal(t, "text", items[2].ContentType)
	assert.Equal(t, "files", items[2].Provenance.SourceName)

	_, err = f.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrExhausted, "stays exhausted")
}

func TestFilesWithoutMatches(t *testing.T) {
	_, err := NewFiles("docs", []string{filepath.Join(t.TempDir(), "*.txt")})
	assert.Error(t, err)
}

func TestWikipediaRandomSummary(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/page/random/summary", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Squeeze theorem","extract":"In calculus, the squeeze theorem...","content_urls":{"desktop":{"page":"https://en.wikipedia.org/wiki/Squeeze_theorem"}}}`))
	}))
	defer srv.Close()

	w := NewWikipedia(WikipediaConfig{BaseURL: srv.URL, Limit: 2})
	items := drain(t, w)
	require.Len(t, items, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Squeeze theorem", items[0].Provenance.Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Squeeze_theorem", items[0].Provenance.Reference)
	assert.Equal(t, "wikipedia", items[0].Provenance.SourceName)
}

func TestWikipediaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewWikipedia(WikipediaConfig{BaseURL: srv.URL}).Next(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrExhausted)
	assert.Contains(t, err.Error(), "429")
}

func TestWebExtractsMainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Bread</title></head><body>
<article><p>Bread is a staple food prepared from a dough of flour and water, usually by baking.
Throughout recorded history it has been popular around the world.</p>
<p>It is one of the oldest human-made foods, having been of significant importance since the dawn of agriculture.</p></article>
<script>var x = 1;</script></body></html>`))
	}))
	defer srv.Close()

	web, err := NewWeb("", []string{srv.URL + "/bread"}, 0)
	require.NoError(t, err)
	items := drain(t, web)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Text, "staple food")
	assert.NotContains(t, items[0].Text, "var x")
	assert.Equal(t, srv.URL+"/bread", items[0].Provenance.Reference)
}

func TestWebRejectsBadURLs(t *testing.T) {
	_, err := NewWeb("web", nil, 0)
	assert.Error(t, err)
	_, err = NewWeb("web", []string{"ftp://example.com/x"}, 0)
	assert.Error(t, err)
}

func TestRoundRobinInterleaves(t *testing.T) {
	rr := NewRoundRobin(Texts("a", "a1", "a2", "a3"), Texts("b", "b1"), Texts("c"))
	assert.Equal(t, "a+b+c", rr.Name())
	var got []string
	for _, c := range drain(t, rr) {
		got = append(got, c.Text)
	}
	assert.Equal(t, []string{"a1", "b1", "a2", "a3"}, got)
}

func TestDedupSkipsRepeats(t *testing.T) {
	src := NewDedup(Texts("s", "same text", "same   text", "other", "same text"))
	var got []string
	for _, c := range drain(t, src) {
		got = append(got, c.Text)
	}
	assert.Equal(t, []string{"same text", "other"}, got)
}

type repeating struct{}

func (repeating) Name() string { return "loop" }
func (repeating) Next(context.Context) (domain.Content, error) {
	return domain.Content{Text: "again"}, nil
}

func TestDedupGivesUpOnEndlessRepeats(t *testing.T) {
	src := NewDedup(repeating{})
	_, err := src.Next(context.Background())
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrExhausted)
}

func TestStaticHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Texts("s", "x").Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
