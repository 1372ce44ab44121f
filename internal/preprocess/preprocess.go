// Package preprocess cleans raw content before extraction: HTML to text,
// boilerplate removal, length normalisation and a heuristic quality gate.
package preprocess

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"sandwich/internal/domain"
)

// SkipReason explains why content was not passed on.
type SkipReason string

const (
	SkipTooShort    SkipReason = "too_short"
	SkipBoilerplate SkipReason = "boilerplate"
	SkipLowQuality  SkipReason = "low_quality"
	SkipUnreadable  SkipReason = "unreadable"
)

// DefaultBoilerplate matches cookie banners, newsletter prompts, social
// calls to action and footer lines, one sentence at a time.
var DefaultBoilerplate = []string{
	`(?i)we use cookies[^.]*\.`,
	`(?i)cookie policy[^.]*\.`,
	`(?i)by (continuing|using) (this|our) (site|website)[^.]*\.`,
	`(?i)accept (all )?cookies[^.]*\.`,
	`(?i)privacy policy[^.]*\.`,
	`(?i)subscribe to our newsletter[^.]*\.`,
	`(?i)sign up for our[^.]*newsletter[^.]*\.`,
	`(?i)enter your email[^.]*\.`,
	`(?i)get (the latest|our) updates[^.]*\.`,
	`(?i)follow us on[^.]*\.`,
	`(?i)share (this|on)[^.]*\.`,
	`(?i)skip to (main )?content[^.]*\.`,
	`(?i)all rights reserved[^.]*\.`,
	`(?i)terms (of (use|service)|and conditions)[^.]*\.`,
	`(?i)copyright ©[^.]*\.`,
}

type Config struct {
	MinLength        int
	MaxLength        int
	QualityThreshold float64
	// Boilerplate overrides DefaultBoilerplate when non-nil.
	Boilerplate []string
}

// Result is the outcome of preprocessing one content item. Lengths count
// runes.
type Result struct {
	Text            string
	Skip            bool
	Reason          SkipReason
	Quality         float64
	OriginalLength  int
	ProcessedLength int
}

type Preprocessor struct {
	cfg      Config
	patterns []*regexp.Regexp
}

var (
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t]+`)
	boundaries = regexp.MustCompile(`[.!?][\s"]`)
)

func New(cfg Config) (*Preprocessor, error) {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 200
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 10000
	}
	if cfg.MaxLength < cfg.MinLength {
		return nil, fmt.Errorf("max length %d below min length %d", cfg.MaxLength, cfg.MinLength)
	}
	src := cfg.Boilerplate
	if src == nil {
		src = DefaultBoilerplate
	}
	p := &Preprocessor{cfg: cfg}
	for _, expr := range src {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("boilerplate pattern %q: %w", expr, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// Process runs every stage on c and reports the first reason to skip it.
func (p *Preprocessor) Process(c domain.Content) Result {
	res := Result{OriginalLength: utf8.RuneCountInString(c.Text)}

	text := c.Text
	if strings.EqualFold(c.ContentType, "html") {
		extracted, err := htmlText(c.Text, c.Provenance.Reference)
		if err != nil {
			res.Skip, res.Reason = true, SkipUnreadable
			return res
		}
		text = extracted
	}

	text = p.removeBoilerplate(text)
	res.ProcessedLength = utf8.RuneCountInString(text)
	if res.ProcessedLength < p.cfg.MinLength {
		res.Skip = true
		res.Reason = SkipTooShort
		if res.OriginalLength >= p.cfg.MinLength {
			res.Reason = SkipBoilerplate
		}
		return res
	}

	text = p.fit(text)
	res.ProcessedLength = utf8.RuneCountInString(text)
	if res.ProcessedLength < p.cfg.MinLength {
		res.Skip, res.Reason = true, SkipTooShort
		return res
	}

	res.Quality = Quality(text)
	if res.Quality < p.cfg.QualityThreshold {
		res.Skip, res.Reason = true, SkipLowQuality
		return res
	}
	res.Text = text
	return res
}

func (p *Preprocessor) removeBoilerplate(text string) string {
	for _, re := range p.patterns {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
}

// fit shortens text over the maximum length. Frequency ranked sentences are
// kept first; when that leaves less than half the budget the text is cut at
// the last sentence boundary instead.
func (p *Preprocessor) fit(text string) string {
	limit := p.cfg.MaxLength
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	if c := condense(text, limit); utf8.RuneCountInString(c) > limit/2 {
		return c
	}
	return truncate(text, limit)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	cut := string(runes)
	last := -1
	for _, loc := range boundaries.FindAllStringIndex(cut, -1) {
		last = loc[1]
	}
	if last >= 0 && utf8.RuneCountInString(cut[:last]) > limit/2 {
		return strings.TrimRight(cut[:last], " \t\n")
	}
	return strings.TrimRight(cut, " \t\n")
}

// htmlText extracts the main article text of an HTML page.
func htmlText(raw, ref string) (string, error) {
	pageURL, err := url.Parse(ref)
	if err != nil || pageURL.Host == "" {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}
	article, err := readability.FromReader(strings.NewReader(raw), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	lines := strings.Split(article.TextContent, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(l, " "))
	}
	text := strings.Join(lines, "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n")), nil
}
