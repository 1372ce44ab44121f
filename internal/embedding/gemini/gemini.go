package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	genai "google.golang.org/genai"
)

// Embedder calls the Gemini embedding endpoint through the genai client.
type Embedder struct {
	cli   *genai.Client
	model string
	dim   *int32

	mu        sync.Mutex
	dimension int
}

type Config struct {
	APIKeyEnv string
	Model     string
	// Dimension truncates the output when positive.
	Dimension int
}

func New(ctx context.Context, cfg Config) (*Embedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	e := &Embedder{cli: cli, model: cfg.Model, dimension: cfg.Dimension}
	if cfg.Dimension > 0 {
		d := int32(cfg.Dimension)
		e.dim = &d
	}
	return e, nil
}

func (e *Embedder) Name() string { return "gemini:" + e.model }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.cli.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.EmbedContentConfig{OutputDimensionality: e.dim},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("no embedding returned")
	}
	values := resp.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out)
	}
	e.mu.Unlock()
	return out, nil
}
