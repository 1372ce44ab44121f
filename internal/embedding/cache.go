// Package embedding holds embedder decorators shared by all providers.
package embedding

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"sandwich/internal/domain"
)

// Cached memoizes vectors by exact text and pins the vector dimension: once
// a length has been observed, a provider returning a different one fails.
type Cached struct {
	inner domain.Embedder
	cache *lru.Cache[string, []float64]

	mu        sync.Mutex
	dimension int
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner domain.Embedder, size int) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: c, dimension: inner.Dimension()}, nil
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		return c.inner.Dimension()
	}
	return c.dimension
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.cache.Get(text); ok {
		return clone(v), nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(v)
	}
	want := c.dimension
	c.mu.Unlock()
	if len(v) != want {
		return nil, fmt.Errorf("embedder %s returned dimension %d, expected %d", c.inner.Name(), len(v), want)
	}
	c.cache.Add(text, clone(v))
	return v, nil
}

// Len reports the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
