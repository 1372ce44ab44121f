package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/config"
	"sandwich/internal/domain"
	"sandwich/internal/events"
	"sandwich/internal/logging"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"forage", "serve", "browse", "seed", "stats"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestStatsRejectsUnknownGroup(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"stats", "--group", "colour"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestStatsTable(t *testing.T) {
	out := statsTable("structural_type", []domain.StatRow{
		{Key: "containment", Count: 2, MeanAggregate: 0.8124},
	})
	assert.Contains(t, out, "containment")
	assert.Contains(t, out, "0.812")
}

func TestHistoryNilBus(t *testing.T) {
	assert.Nil(t, history(nil))
	assert.NotNil(t, history(events.NewBus(1, nil)))
}

func TestKeylessOpenAIEndpoints(t *testing.T) {
	t.Setenv("SANDWICH_TEST_UNSET_KEY", "")
	a := &app{log: logging.Discard(), cfg: &config.AppConfig{
		Embedder: config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{
			BaseURL: "http://127.0.0.1:11434/v1", APIKeyEnv: "SANDWICH_TEST_UNSET_KEY", Model: "nomic-embed-text",
		}},
		LLM: config.LLMConfig{Provider: "openai", MaxRetries: 1, OpenAI: &config.OpenAILLMConfig{
			BaseURL: "http://127.0.0.1:11434/v1", APIKeyEnv: "SANDWICH_TEST_UNSET_KEY", Model: "llama3",
		}},
	}}
	ctx := context.Background()

	_, err := a.newEmbedder(ctx)
	assert.ErrorContains(t, err, "SANDWICH_TEST_UNSET_KEY")
	_, err = a.newLLM(ctx)
	assert.ErrorContains(t, err, "SANDWICH_TEST_UNSET_KEY")

	a.cfg.Embedder.OpenAI.AllowNoKey = true
	a.cfg.LLM.OpenAI.AllowNoKey = true
	emb, err := a.newEmbedder(ctx)
	require.NoError(t, err)
	assert.NotNil(t, emb)
	client, err := a.newLLM(ctx)
	require.NoError(t, err)
	assert.NotNil(t, client)
}
