package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"sandwich/internal/domain"
)

// maxPageBytes bounds the size of a fetched page.
const maxPageBytes = 4 << 20

// Web fetches a fixed list of pages once each and keeps their main text.
type Web struct {
	name   string
	urls   []string
	client *http.Client

	mu   sync.Mutex
	next int
}

func NewWeb(name string, urls []string, timeout time.Duration) (*Web, error) {
	if name == "" {
		name = "web"
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("web source %s has no urls", name)
	}
	for _, u := range urls {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("web source %s: invalid url %q", name, u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Web{name: name, urls: append([]string(nil), urls...), client: &http.Client{Timeout: timeout}}, nil
}

func (w *Web) Name() string { return w.name }

func (w *Web) Next(ctx context.Context) (domain.Content, error) {
	w.mu.Lock()
	if w.next >= len(w.urls) {
		w.mu.Unlock()
		return domain.Content{}, domain.ErrExhausted
	}
	raw := w.urls[w.next]
	w.next++
	w.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return domain.Content{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := w.client.Do(req)
	if err != nil {
		return domain.Content{}, fmt.Errorf("fetch %s: %w", raw, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Content{}, fmt.Errorf("fetch %s: status %d", raw, resp.StatusCode)
	}
	pageURL, _ := url.Parse(raw)
	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), pageURL)
	if err != nil {
		return domain.Content{}, fmt.Errorf("extract %s: %w", raw, err)
	}
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = raw
	}
	return domain.Content{
		Text:        tidy(article.TextContent),
		ContentType: "text",
		Provenance:  domain.Provenance{SourceName: w.name, Reference: raw, Title: title},
	}, nil
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// tidy collapses the whitespace readability leaves behind while keeping
// paragraph breaks.
func tidy(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
