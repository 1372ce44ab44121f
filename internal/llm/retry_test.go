package llm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/llm"
	"sandwich/internal/llm/llmtest"
	"sandwich/internal/logging"
)

func fastRetry(attempts int) llm.RetryConfig {
	return llm.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryingRetriesTransient(t *testing.T) {
	inner := llmtest.New(
		llmtest.Reply{Err: llm.NewTransientError(errors.New("503"))},
		llmtest.Reply{Text: "ok"},
	)
	out, err := llm.WithRetry(inner, fastRetry(3), logging.Discard()).Complete(context.Background(), llm.Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, inner.Calls())
}

func TestRetryingStopsOnFatal(t *testing.T) {
	inner := llmtest.New(
		llmtest.Reply{Err: llm.NewFatalError(errors.New("401"))},
		llmtest.Reply{Text: "never"},
	)
	_, err := llm.WithRetry(inner, fastRetry(3), nil).Complete(context.Background(), llm.Prompt{})
	assert.True(t, llm.IsFatal(err))
	assert.Equal(t, 1, inner.Calls())
}

func TestRetryingIsBounded(t *testing.T) {
	inner := llmtest.New(
		llmtest.Reply{Err: llm.NewTransientError(errors.New("1"))},
		llmtest.Reply{Err: llm.NewTransientError(errors.New("2"))},
		llmtest.Reply{Err: llm.NewTransientError(errors.New("3"))},
	)
	_, err := llm.WithRetry(inner, fastRetry(2), nil).Complete(context.Background(), llm.Prompt{})
	assert.EqualError(t, err, "2")
	assert.Equal(t, 2, inner.Calls())
}

func TestOpenAIClientClassifiesStatus(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c, err := llm.NewOpenAIClient(llm.OpenAIConfig{BaseURL: srv.URL, Model: "m", AllowNoKey: true})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Complete(ctx, llm.Prompt{User: "hi"})
	assert.True(t, llm.IsTransient(err))

	status = http.StatusUnauthorized
	_, err = c.Complete(ctx, llm.Prompt{User: "hi"})
	assert.True(t, llm.IsFatal(err))

	status = http.StatusOK
	out, err := c.Complete(ctx, llm.Prompt{System: "sys", User: "hi", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
