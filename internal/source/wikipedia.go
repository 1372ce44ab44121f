package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"sandwich/internal/domain"
)

const userAgent = "sandwich-forager/1.0 (structural triple research)"

type WikipediaConfig struct {
	Name     string
	Language string // defaults to "en"
	// BaseURL overrides the REST endpoint, e.g. for tests.
	BaseURL string
	// Limit caps the number of articles served; 0 means unlimited.
	Limit   int
	Timeout time.Duration
}

// Wikipedia serves random article summaries from the Wikipedia REST API.
type Wikipedia struct {
	name    string
	baseURL string
	limit   int
	client  *http.Client

	mu     sync.Mutex
	served int
}

func NewWikipedia(cfg WikipediaConfig) *Wikipedia {
	if cfg.Name == "" {
		cfg.Name = "wikipedia"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://%s.wikipedia.org/api/rest_v1", cfg.Language)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Wikipedia{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limit:   cfg.Limit,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (w *Wikipedia) Name() string { return w.name }

type summaryResponse struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	Description string `json:"description"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (w *Wikipedia) Next(ctx context.Context) (domain.Content, error) {
	w.mu.Lock()
	if w.limit > 0 && w.served >= w.limit {
		w.mu.Unlock()
		return domain.Content{}, domain.ErrExhausted
	}
	w.served++
	w.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/page/random/summary", nil)
	if err != nil {
		return domain.Content{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Api-User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return domain.Content{}, fmt.Errorf("wikipedia: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Content{}, fmt.Errorf("wikipedia: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var sr summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return domain.Content{}, fmt.Errorf("wikipedia: decode summary: %w", err)
	}
	ref := sr.ContentURLs.Desktop.Page
	if ref == "" {
		ref = fmt.Sprintf("%s/page/summary/%s", w.baseURL, strings.ReplaceAll(sr.Title, " ", "_"))
	}
	return domain.Content{
		Text:        sr.Extract,
		ContentType: "text",
		Provenance:  domain.Provenance{SourceName: w.name, Reference: ref, Title: sr.Title},
	}, nil
}
