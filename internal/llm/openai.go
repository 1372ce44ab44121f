package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

type OpenAIConfig struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
	AllowNoKey  bool
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && !cfg.AllowNoKey {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		baseURL:     cfg.BaseURL,
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *OpenAIClient) Name() string { return "openai:" + c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	body := chatRequest{Model: c.model, Temperature: c.temperature, MaxTokens: p.MaxTokens}
	if p.Temperature != nil {
		body.Temperature = *p.Temperature
	}
	if p.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: p.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: p.User})
	if p.JSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", NewFatalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", NewFatalError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NewTransientError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewTransientError(err)
	}
	if resp.StatusCode >= 300 {
		return "", classifyStatus(resp.StatusCode, fmt.Errorf("chat completions failed: %s: %s", resp.Status, truncate(string(payload), 200)))
	}

	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", NewTransientError(fmt.Errorf("decode chat response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", NewTransientError(errors.New("chat response has no choices"))
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
