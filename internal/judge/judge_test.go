package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich/internal/domain"
	"sandwich/internal/llm"
	"sandwich/internal/llm/llmtest"
)

var draft = domain.Draft{
	Name:           "The Squeeze",
	StructuralType: "bound",
	BoundA:         domain.Element{Text: "g(x)"},
	BoundB:         domain.Element{Text: "h(x)"},
	Bounded:        domain.Element{Text: "f(x)"},
	Description:    "f is trapped between g and h.",
	Justification:  "g(x) <= f(x) <= h(x)",
}

var rubric = domain.Rubric{
	BoundCompatibility: "same category",
	Containment:        "held between",
	Specificity:        "not generic",
}

func TestJudgeClampsScores(t *testing.T) {
	client := llmtest.Texts("```json\n" + `{"bound_compatibility": 1.4, "containment": 0.8, "specificity": -0.2, "rationale": " tight "}` + "\n```")
	got, err := New(client, 0.1).Judge(context.Background(), draft, rubric)
	require.NoError(t, err)
	assert.Equal(t, domain.Judgment{
		BoundCompatibility: 1,
		Containment:        0.8,
		Specificity:        0,
		Rationale:          "tight",
	}, got)

	p := client.Prompts[0]
	assert.Contains(t, p.User, "bound A: g(x)")
	assert.Contains(t, p.User, "bounded: f(x)")
	assert.Contains(t, p.User, "held between")
	require.NotNil(t, p.Temperature)
	assert.Equal(t, 0.1, *p.Temperature)
}

func TestJudgeMissingFieldIsError(t *testing.T) {
	client := llmtest.Texts(`{"bound_compatibility": 0.5}`, `{"containment": 0.5}`)
	_, err := New(client, 0).Judge(context.Background(), draft, rubric)
	var perr *llm.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, client.Calls())
}

func TestJudgeClientError(t *testing.T) {
	boom := llm.NewFatalError(errors.New("bad key"))
	_, err := New(llmtest.New(llmtest.Reply{Err: boom}), 0).Judge(context.Background(), draft, rubric)
	assert.True(t, llm.IsFatal(err))
}
