package assembler

import (
	"context"
	"fmt"
	"strings"

	"sandwich/internal/domain"
	"sandwich/internal/llm"
)

const writerSystem = `You write short, precise entries for a corpus of structural triples. You answer with JSON only.`

const writerTemplate = `A triple was found in the source below.

bound A: %s
bound B: %s
bounded: %s
structural type: %s
%s
SOURCE %q
%s

Write:
- name: a memorable name of at most six words.
- description: two or three sentences on what the triple is.
- containment_argument: why the bounded element depends on both bounds and cannot stand without them.

Respond with exactly this JSON shape:
{"name": "", "description": "", "containment_argument": ""}`

// LLMWriter is a domain.Writer backed by an llm.Client.
type LLMWriter struct {
	client llm.Client
}

func NewWriter(client llm.Client) *LLMWriter {
	return &LLMWriter{client: client}
}

type writerResponse struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	ContainmentArgument string `json:"containment_argument"`
}

func (w *LLMWriter) Write(ctx context.Context, req domain.WriteRequest) (domain.Writing, error) {
	typeLine := ""
	if req.Type != nil {
		typeLine = fmt.Sprintf("The %s type relates %s around a %s.\n",
			req.Type.Name, strings.ToLower(req.Type.BoundRelation), strings.ToLower(req.Type.BoundedRole))
	}
	c := req.Candidate
	prompt := llm.Prompt{
		System: writerSystem,
		User: fmt.Sprintf(writerTemplate, c.BoundA, c.BoundB, c.Bounded, c.StructuralType,
			typeLine, req.Source.Title, req.Excerpt),
	}
	var resp writerResponse
	if err := llm.CompleteJSON(ctx, w.client, prompt, &resp, "name", "description", "containment_argument"); err != nil {
		return domain.Writing{}, err
	}
	return domain.Writing{
		Name:          strings.TrimSpace(resp.Name),
		Description:   strings.TrimSpace(resp.Description),
		Justification: strings.TrimSpace(resp.ContainmentArgument),
	}, nil
}
