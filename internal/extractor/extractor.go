// Package extractor proposes candidate triples from preprocessed text with a
// language model.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"sandwich/internal/domain"
	"sandwich/internal/llm"
	"sandwich/internal/taxonomy"
)

const (
	defaultMaxCandidates = 3
	defaultMaxInputRunes = 8000
)

const systemPrompt = `You read source text and identify structural triples: two bound elements that are the same kind of thing and related to each other independently, and one bounded element whose specific meaning exists only between them. You answer with JSON only.`

const userTemplate = `Identify up to %d structural triples in the text below.

For each triple give:
- bound_a, bound_b: the two bounding elements. They must be of the same category and related without reference to the bounded element.
- bounded: the element that lies between them and depends on both.
- structural_type: one of %s, or a new lower-case name if none fits.
- confidence: a number between 0 and 1.
- rationale: one sentence on why the bounded element depends on both bounds.

Do not construct bounds backwards from the bounded element. If the text holds no such structure, return an empty list and say why.

Respond with exactly this JSON shape:
{"candidates": [{"bound_a": "", "bound_b": "", "bounded": "", "structural_type": "", "confidence": 0.0, "rationale": ""}], "no_candidate_reason": null}

TEXT:
%s`

type Options struct {
	MaxCandidates int
	// MaxInputRunes truncates the text handed to the model.
	MaxInputRunes int
}

// LLM is a domain.Extractor backed by an llm.Client.
type LLM struct {
	client llm.Client
	opts   Options
	log    *logrus.Logger
}

func New(client llm.Client, opts Options, log *logrus.Logger) *LLM {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaultMaxCandidates
	}
	if opts.MaxInputRunes <= 0 {
		opts.MaxInputRunes = defaultMaxInputRunes
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LLM{client: client, opts: opts, log: log}
}

type response struct {
	Candidates        []json.RawMessage `json:"candidates"`
	NoCandidateReason *string           `json:"no_candidate_reason"`
}

// Extract returns at most MaxCandidates candidates ordered by confidence.
// Output that cannot be parsed even after the strict retry yields zero
// candidates and a reason, not an error.
func (e *LLM) Extract(ctx context.Context, text string) (domain.Extraction, error) {
	if r := []rune(text); len(r) > e.opts.MaxInputRunes {
		text = string(r[:e.opts.MaxInputRunes])
	}
	prompt := llm.Prompt{
		System: systemPrompt,
		User:   fmt.Sprintf(userTemplate, e.opts.MaxCandidates, strings.Join(taxonomy.Names(), ", "), text),
	}
	var resp response
	err := llm.CompleteJSON(ctx, e.client, prompt, &resp, "candidates")
	var perr *llm.ParseError
	if errors.As(err, &perr) {
		e.log.WithField("collaborator", domain.CollaboratorExtractor).WithError(err).Warn("unparseable extraction, no candidates")
		return domain.Extraction{Reason: "could not parse extraction output"}, nil
	}
	if err != nil {
		return domain.Extraction{}, err
	}

	var cands []domain.Candidate
	for _, raw := range resp.Candidates {
		if c, ok := parseCandidate(raw); ok {
			cands = append(cands, c)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Confidence > cands[j].Confidence })
	if len(cands) > e.opts.MaxCandidates {
		cands = cands[:e.opts.MaxCandidates]
	}

	out := domain.Extraction{Candidates: cands}
	if len(cands) == 0 {
		out.Reason = "no viable structure identified"
		if resp.NoCandidateReason != nil && strings.TrimSpace(*resp.NoCandidateReason) != "" {
			out.Reason = strings.TrimSpace(*resp.NoCandidateReason)
		}
	}
	e.log.WithFields(logrus.Fields{
		"collaborator": domain.CollaboratorExtractor,
		"candidates":   len(cands),
		"chars":        utf8.RuneCountInString(text),
	}).Debug("extracted candidates")
	return out, nil
}

// parseCandidate accepts loosely typed model output. Candidates with a blank
// element or with two bounds that normalize to the same text are dropped.
func parseCandidate(raw json.RawMessage) (domain.Candidate, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Candidate{}, false
	}
	c := domain.Candidate{
		BoundA:         str(m["bound_a"]),
		BoundB:         str(m["bound_b"]),
		Bounded:        str(m["bounded"]),
		StructuralType: strings.ToLower(str(m["structural_type"])),
		Confidence:     domain.Clamp01(num(m["confidence"])),
		Rationale:      str(m["rationale"]),
	}
	if c.BoundA == "" || c.BoundB == "" || c.Bounded == "" {
		return domain.Candidate{}, false
	}
	if domain.NormalizeText(c.BoundA) == domain.NormalizeText(c.BoundB) {
		return domain.Candidate{}, false
	}
	return c, true
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
