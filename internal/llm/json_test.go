package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/llm"
	"sandwich/internal/llm/llmtest"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"direct", `{"a":1}`, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"a\": 2}\n```\nthanks", `{"a": 2}`},
		{"bare fence", "```\n{\"a\": 3}\n```", `{"a": 3}`},
		{"prose", `Sure! {"a": {"b": "}"}} trailing`, `{"a": {"b": "}"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.ExtractJSON(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	_, err := llm.ExtractJSON("no json here")
	assert.ErrorIs(t, err, llm.ErrNoJSON)
	_, err = llm.ExtractJSON("{broken")
	assert.ErrorIs(t, err, llm.ErrNoJSON)
}

func TestDecodeRequiredFields(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	err := llm.Decode(`{"name":"x"}`, &v, "name", "description")
	var pe *llm.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"description"}, pe.Missing)

	require.NoError(t, llm.Decode(`{"name":"x","description":"y"}`, &v, "name", "description"))
	assert.Equal(t, "x", v.Name)
}

func TestCompleteJSONRecoversWithStricterPrompt(t *testing.T) {
	client := llmtest.Texts("I think the answer is yes", `{"ok": true}`)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, llm.CompleteJSON(context.Background(), client, llm.Prompt{User: "question"}, &out, "ok"))
	assert.True(t, out.OK)
	require.Equal(t, 2, client.Calls())
	assert.True(t, client.Prompts[0].JSON)
	assert.Contains(t, client.Prompts[1].User, "exactly one JSON object")
	require.NotNil(t, client.Prompts[1].Temperature)
	assert.Equal(t, 0.0, *client.Prompts[1].Temperature)
}

func TestCompleteJSONGivesUpAfterOneRecovery(t *testing.T) {
	client := llmtest.Texts("nope", "still nope", `{"ok":true}`)
	var out map[string]any
	err := llm.CompleteJSON(context.Background(), client, llm.Prompt{User: "q"}, &out)
	var pe *llm.ParseError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, client.Calls())
}

func TestCompleteJSONPropagatesClientError(t *testing.T) {
	boom := errors.New("boom")
	client := llmtest.New(llmtest.Reply{Err: boom})
	var out map[string]any
	assert.ErrorIs(t, llm.CompleteJSON(context.Background(), client, llm.Prompt{}, &out), boom)
}
