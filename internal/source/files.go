// Package source provides content sources for the forager.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"sandwich/internal/domain"
)

var fileTypes = map[string]string{
	".txt":      "text",
	".md":       "text",
	".markdown": "text",
	".html":     "html",
	".htm":      "html",
}

// Files serves local documents matched by doublestar patterns, each once,
// in lexical path order.
type Files struct {
	name  string
	paths []string

	mu   sync.Mutex
	next int
}

func NewFiles(name string, patterns []string) (*Files, error) {
	if name == "" {
		name = "files"
	}
	seen := map[string]struct{}{}
	var paths []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if _, ok := fileTypes[strings.ToLower(filepath.Ext(m))]; !ok {
				continue
			}
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .txt, .md or .html documents match %v", patterns)
	}
	sort.Strings(paths)
	return &Files{name: name, paths: paths}, nil
}

func (f *Files) Name() string { return f.name }

// Len reports how many documents the source holds.
func (f *Files) Len() int { return len(f.paths) }

func (f *Files) Next(ctx context.Context) (domain.Content, error) {
	if err := ctx.Err(); err != nil {
		return domain.Content{}, err
	}
	f.mu.Lock()
	if f.next >= len(f.paths) {
		f.mu.Unlock()
		return domain.Content{}, domain.ErrExhausted
	}
	path := f.paths[f.next]
	f.next++
	f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Content{}, fmt.Errorf("read %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return domain.Content{
		Text:        string(data),
		ContentType: fileTypes[ext],
		Provenance: domain.Provenance{
			SourceName: f.name,
			Reference:  path,
			Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		},
	}, nil
}
