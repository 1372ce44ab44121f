// Package judge scores the three model-judged dimensions of a draft.
package judge

import (
	"context"
	"fmt"
	"strings"

	"sandwich/internal/domain"
	"sandwich/internal/llm"
)

const systemPrompt = `You are a strict reviewer of structural triples. Each triple has two bound elements and one bounded element that is meant to exist only between them. You score it on three dimensions with the rubric you are given and answer with JSON only.`

const userTemplate = `TRIPLE
name: %s
structural type: %s
bound A: %s
bound B: %s
bounded: %s
description: %s
containment argument: %s

RUBRIC
bound_compatibility: %s

containment: %s

specificity: %s

Score each dimension between 0 and 1. Respond with exactly this JSON shape:
{"bound_compatibility": 0.0, "containment": 0.0, "specificity": 0.0, "rationale": ""}`

// LLM is a domain.Judge backed by an llm.Client.
type LLM struct {
	client      llm.Client
	temperature float64
}

// New returns a judge that samples at temperature. Judging at a low
// temperature keeps repeated scores of one draft close.
func New(client llm.Client, temperature float64) *LLM {
	return &LLM{client: client, temperature: temperature}
}

type response struct {
	BoundCompatibility float64 `json:"bound_compatibility"`
	Containment        float64 `json:"containment"`
	Specificity        float64 `json:"specificity"`
	Rationale          string  `json:"rationale"`
}

// Judge returns the three scores clamped to [0,1]. Output that cannot be
// parsed is an error.
func (j *LLM) Judge(ctx context.Context, d domain.Draft, rubric domain.Rubric) (domain.Judgment, error) {
	temp := j.temperature
	prompt := llm.Prompt{
		System: systemPrompt,
		User: fmt.Sprintf(userTemplate,
			d.Name, d.StructuralType, d.BoundA.Text, d.BoundB.Text, d.Bounded.Text,
			d.Description, d.Justification,
			rubric.BoundCompatibility, rubric.Containment, rubric.Specificity),
		Temperature: &temp,
	}
	var resp response
	if err := llm.CompleteJSON(ctx, j.client, prompt, &resp,
		"bound_compatibility", "containment", "specificity"); err != nil {
		return domain.Judgment{}, fmt.Errorf("judge %q: %w", d.Name, err)
	}
	return domain.Judgment{
		BoundCompatibility: domain.Clamp01(resp.BoundCompatibility),
		Containment:        domain.Clamp01(resp.Containment),
		Specificity:        domain.Clamp01(resp.Specificity),
		Rationale:          strings.TrimSpace(resp.Rationale),
	}, nil
}
