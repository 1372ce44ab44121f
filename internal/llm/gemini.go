package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli         *genai.Client
	model       string
	temperature float64
}

func NewGeminiClient(ctx context.Context, apiKeyEnv, model string, temperature float64) (*GeminiClient, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", apiKeyEnv)
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model, temperature: temperature}, nil
}

func (g *GeminiClient) Name() string { return "gemini:" + g.model }

func (g *GeminiClient) Complete(ctx context.Context, p Prompt) (string, error) {
	temp := float32(g.temperature)
	if p.Temperature != nil {
		temp = float32(*p.Temperature)
	}
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if p.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}
	if p.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if p.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxTokens)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: p.User}}}},
		cfg,
	)
	if err != nil {
		return "", classifyGemini(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", NewTransientError(errors.New("gemini returned no candidates"))
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyStatus(apiErrPtr.Code, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewTransientError(err)
}
