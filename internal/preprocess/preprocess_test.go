package preprocess

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/domain"
)

const article = `The squeeze theorem, also known as the sandwich theorem, is a fundamental
result in mathematical analysis. It provides a method for evaluating the
limit of a function by bounding it between two other functions whose limits
are already known.

Formally, suppose that for all x in some interval containing c (except
possibly at c itself), we have g(x) <= f(x) <= h(x). If both g(x) and h(x)
approach the same limit L as x approaches c, then f(x) must also approach L.

This theorem is particularly useful in situations where direct computation of
a limit is difficult or impossible. For example, consider the well-known limit
of sin(x)/x as x approaches 0. By establishing appropriate upper and lower
bounds using geometric arguments on the unit circle, we can show that this
limit equals 1.`

func newPreprocessor(t *testing.T, cfg Config) *Preprocessor {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestProcessWellWrittenText(t *testing.T) {
	p := newPreprocessor(t, Config{QualityThreshold: 0.4})
	res := p.Process(domain.Content{Text: article, ContentType: "text"})
	require.False(t, res.Skip, "reason %s quality %.3f", res.Reason, res.Quality)
	assert.Greater(t, res.Quality, 0.4)
	assert.Equal(t, utf8.RuneCountInString(article), res.OriginalLength)
	assert.Contains(t, res.Text, "squeeze theorem")
}

func TestProcessSkips(t *testing.T) {
	p := newPreprocessor(t, Config{QualityThreshold: 0.4})
	tests := []struct {
		name string
		text string
		want SkipReason
	}{
		{"too short", "Short text.", SkipTooShort},
		{"only boilerplate", strings.Repeat("We use cookies to improve your experience. ", 6), SkipBoilerplate},
		{"low quality", strings.Repeat("spam ", 100), SkipLowQuality},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Process(domain.Content{Text: tt.text})
			assert.True(t, res.Skip)
			assert.Equal(t, tt.want, res.Reason)
			assert.Empty(t, res.Text)
		})
	}
}

func TestBoilerplateRemoved(t *testing.T) {
	p := newPreprocessor(t, Config{})
	res := p.Process(domain.Content{Text: article + "\n\nFollow us on Twitter for more. All rights reserved 2024."})
	require.False(t, res.Skip)
	assert.NotContains(t, res.Text, "Follow us")
	assert.NotContains(t, res.Text, "rights reserved")
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{MinLength: 500, MaxLength: 100})
	assert.Error(t, err)
	_, err = New(Config{Boilerplate: []string{"("}})
	assert.Error(t, err)
}

func TestLongTextIsCondensedInOrder(t *testing.T) {
	paragraphs := []string{
		"Alpha bread rises slowly in warm kitchens. Beta butter melts over fresh bread. Gamma cheese ages in cool caves.",
		"Delta bread crusts harden in hot ovens. Epsilon jam spreads across warm bread. Zeta honey drips from the comb.",
		"Eta bakers knead bread before dawn. Theta mills grind wheat into flour. Iota ovens glow through the night.",
	}
	text := strings.Join(paragraphs, "\n\n")
	require.Greater(t, utf8.RuneCountInString(text), 300)

	p := newPreprocessor(t, Config{MinLength: 50, MaxLength: 200})
	res := p.Process(domain.Content{Text: text})
	require.False(t, res.Skip, "reason %s", res.Reason)
	assert.LessOrEqual(t, res.ProcessedLength, 200)
	assert.Greater(t, res.ProcessedLength, 100)

	last := -1
	for _, s := range splitSentences(res.Text) {
		idx := strings.Index(text, s.text)
		require.GreaterOrEqual(t, idx, 0, "sentence %q not from the source", s.text)
		assert.Greater(t, idx, last, "sentences keep their original order")
		last = idx
	}
}

func TestTruncateWithoutSentences(t *testing.T) {
	text := strings.Repeat("word ", 200)
	p := newPreprocessor(t, Config{MinLength: 10, MaxLength: 300})
	res := p.Process(domain.Content{Text: text})
	require.False(t, res.Skip, "reason %s", res.Reason)
	assert.LessOrEqual(t, res.ProcessedLength, 300)
	assert.Greater(t, res.ProcessedLength, 290)
}

func TestTruncateAtSentenceBoundary(t *testing.T) {
	text := strings.Repeat("a", 150) + ". " + strings.Repeat("b", 200)
	got := truncate(text, 200)
	assert.Equal(t, strings.Repeat("a", 150)+".", got)

	// a boundary in the first half of the budget is ignored
	text = "a. " + strings.Repeat("b", 300)
	assert.Equal(t, 200, utf8.RuneCountInString(truncate(text, 200)))
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two!\n\nThree?  tail")
	assert.Equal(t, []sentence{
		{text: "One.", paragraph: 0},
		{text: "Two!", paragraph: 0},
		{text: "Three?", paragraph: 1},
		{text: "tail", paragraph: 1},
	}, got)
}

func TestQualitySignals(t *testing.T) {
	assert.Equal(t, 0.0, Quality(""))
	assert.Equal(t, 1.0, punctScore(strings.Repeat("a", 48)+".,"))
	assert.InDelta(t, 0.5, punctScore(strings.Repeat("a", 99)+"."), 1e-12)
	assert.Equal(t, 0.0, paragraphScore("single paragraph"))
	assert.Equal(t, 1.0, paragraphScore("one\n\ntwo"))
	assert.InDelta(t, 0.0, uniqueScore([]string{"a", "a", "a", "a"}), 1e-12)
	assert.InDelta(t, 1.0, uniqueScore([]string{"a", "b", "c"}), 1e-12)
}

func TestHTMLExtraction(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>Squeeze Theorem</title></head>
<body>
<nav><ul><li>Home</li><li>About</li></ul></nav>
<div id="content">
<p>In calculus, the <b>squeeze theorem</b> (also known as the sandwich theorem)
is a theorem regarding the limit of a function that is trapped between two
other functions.</p>
<p>The squeeze theorem is formally stated as follows. Let I be an interval
containing the point a. Let g, f, and h be functions defined on I, except
possibly at a itself. Suppose that for every x in I not equal to a, we have
g(x) &le; f(x) &le; h(x), and also suppose that the limits of g and h as x
approaches a are both equal to L. Then the limit of f as x approaches a is
also equal to L.</p>
<p>This theorem is particularly useful when direct computation of a limit is
difficult. By bounding a function between two simpler functions whose limits
are known, one can determine the limit of the more complex function.</p>
</div>
<script>var tracking = true;</script>
</body>
</html>`
	text, err := htmlText(page, "https://en.wikipedia.org/wiki/Squeeze_theorem")
	require.NoError(t, err)
	assert.Contains(t, text, "squeeze theorem")
	assert.NotContains(t, text, "var tracking")
	assert.NotContains(t, text, "<p>")
}
