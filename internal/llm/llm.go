// Package llm is a thin text-completion client layer over the model
// providers used by the extractor, writer and judge.
package llm

import "context"

// Prompt is a single completion request.
type Prompt struct {
	System string
	User   string
	// JSON asks the provider for a JSON-only response where supported.
	JSON        bool
	Temperature *float64
	MaxTokens   int
}

// Client completes prompts. Implementations classify failures with
// TransientError and FatalError.
type Client interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}
