package source

import (
	"context"
	"crypto/sha1"
	"errors"
	"strconv"
	"strings"
	"sync"

	"sandwich/internal/domain"
)

// RoundRobin interleaves several sources. Exhausted sources drop out; the
// rotation is exhausted once every member is.
type RoundRobin struct {
	mu      sync.Mutex
	sources []domain.ContentSource
	next    int
}

func NewRoundRobin(sources ...domain.ContentSource) *RoundRobin {
	return &RoundRobin{sources: append([]domain.ContentSource(nil), sources...)}
}

func (r *RoundRobin) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (r *RoundRobin) Next(ctx context.Context) (domain.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.sources) > 0 {
		if r.next >= len(r.sources) {
			r.next = 0
		}
		src := r.sources[r.next]
		c, err := src.Next(ctx)
		if errors.Is(err, domain.ErrExhausted) {
			r.sources = append(r.sources[:r.next], r.sources[r.next+1:]...)
			continue
		}
		r.next++
		return c, err
	}
	return domain.Content{}, domain.ErrExhausted
}

// maxRepeats is how many repeated items in a row Dedup tolerates before it
// reports its source as exhausted.
const maxRepeats = 50

// Dedup drops items whose text was already served in this run.
type Dedup struct {
	inner domain.ContentSource

	mu   sync.Mutex
	seen map[[sha1.Size]byte]struct{}
}

func NewDedup(inner domain.ContentSource) *Dedup {
	return &Dedup{inner: inner, seen: make(map[[sha1.Size]byte]struct{})}
}

func (d *Dedup) Name() string { return d.inner.Name() }

func (d *Dedup) Next(ctx context.Context) (domain.Content, error) {
	for i := 0; i < maxRepeats; i++ {
		c, err := d.inner.Next(ctx)
		if err != nil {
			return c, err
		}
		sum := sha1.Sum([]byte(strings.Join(strings.Fields(c.Text), " ")))
		d.mu.Lock()
		_, dup := d.seen[sum]
		if !dup {
			d.seen[sum] = struct{}{}
		}
		d.mu.Unlock()
		if !dup {
			return c, nil
		}
	}
	return domain.Content{}, domain.ErrExhausted
}

// Static serves a fixed list of items once each.
type Static struct {
	name  string
	items []domain.Content

	mu   sync.Mutex
	next int
}

func NewStatic(name string, items ...domain.Content) *Static {
	return &Static{name: name, items: items}
}

// Texts builds a Static source of plain text items.
func Texts(name string, texts ...string) *Static {
	items := make([]domain.Content, len(texts))
	for i, t := range texts {
		items[i] = domain.Content{
			Text:        t,
			ContentType: "text",
			Provenance:  domain.Provenance{SourceName: name, Reference: name + ":" + strconv.Itoa(i)},
		}
	}
	return NewStatic(name, items...)
}

func (s *Static) Name() string { return s.name }

func (s *Static) Next(ctx context.Context) (domain.Content, error) {
	if err := ctx.Err(); err != nil {
		return domain.Content{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.items) {
		return domain.Content{}, domain.ErrExhausted
	}
	c := s.items[s.next]
	s.next++
	return c, nil
}
