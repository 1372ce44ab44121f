// Package assembler turns extracted candidates into drafts ready for
// validation.
package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sandwich/internal/domain"
	"sandwich/internal/taxonomy"
	"sandwich/internal/vector"
)

// excerptRunes is how much source text the writer sees.
const excerptRunes = 500

// CorpusView is the part of the repository assembly depends on.
type CorpusView interface {
	HasTriple(ctx context.Context, boundA, boundB, bounded string) (bool, error)
	BoundPairUsage(ctx context.Context, boundA, boundB string) (int, error)
	TypeFrequencies(ctx context.Context) (map[string]int, error)
}

type Options struct {
	ReuseLimit int
	// CallTimeout bounds each writer and embedder call. Zero means none.
	CallTimeout time.Duration
}

// Assembly is either a draft or the reason no draft was built.
type Assembly struct {
	Draft       *domain.Draft
	NoCandidate *NoCandidate
}

type Assembler struct {
	corpus   CorpusView
	writer   domain.Writer
	embedder domain.Embedder
	opts     Options
	log      *logrus.Logger
}

func New(corpus CorpusView, w domain.Writer, e domain.Embedder, opts Options, log *logrus.Logger) *Assembler {
	if opts.ReuseLimit <= 0 {
		opts.ReuseLimit = 3
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Assembler{corpus: corpus, writer: w, embedder: e, opts: opts, log: log}
}

// Assemble selects one candidate, has it written up and embeds its parts.
// Writer and embedder failures are returned as *domain.UpstreamError; corpus
// read failures are returned unwrapped.
func (a *Assembler) Assemble(ctx context.Context, cands []domain.Candidate, content domain.Content) (Assembly, error) {
	checked := make([]Checked, 0, len(cands))
	for _, c := range cands {
		dup, err := a.corpus.HasTriple(ctx, c.BoundA, c.BoundB, c.Bounded)
		if err != nil {
			return Assembly{}, fmt.Errorf("check triple: %w", err)
		}
		usage, err := a.corpus.BoundPairUsage(ctx, c.BoundA, c.BoundB)
		if err != nil {
			return Assembly{}, fmt.Errorf("bound pair usage: %w", err)
		}
		checked = append(checked, Checked{Candidate: c, Duplicate: dup, PairUsage: usage})
	}
	freq := map[string]int{}
	if len(cands) > 1 {
		var err error
		if freq, err = a.corpus.TypeFrequencies(ctx); err != nil {
			return Assembly{}, fmt.Errorf("type frequencies: %w", err)
		}
	}

	chosen, none := Select(checked, freq, a.opts.ReuseLimit)
	if none != nil {
		a.log.WithFields(logrus.Fields{"reason": none.Reason, "candidates": len(cands)}).Debug("nothing to assemble")
		return Assembly{NoCandidate: none}, nil
	}

	req := domain.WriteRequest{
		Candidate: chosen,
		Source:    content.Provenance,
		Excerpt:   excerpt(content.Text, excerptRunes),
	}
	if st, ok := taxonomy.Lookup(chosen.StructuralType); ok {
		req.Type = &st
	}
	wctx, cancel := a.callContext(ctx)
	writing, err := a.writer.Write(wctx, req)
	cancel()
	if err != nil {
		return Assembly{}, domain.Upstream(domain.CollaboratorWriter, err)
	}
	if strings.TrimSpace(writing.Name) == "" {
		return Assembly{}, domain.Upstream(domain.CollaboratorWriter, fmt.Errorf("empty name for %q", chosen.Bounded))
	}

	parts := [3]string{chosen.BoundA, chosen.BoundB, chosen.Bounded}
	var vecs [3][]float64
	for i, text := range parts {
		ectx, cancel := a.callContext(ctx)
		v, err := a.embedder.Embed(ectx, text)
		cancel()
		if err != nil {
			return Assembly{}, domain.Upstream(domain.CollaboratorEmbedder, fmt.Errorf("embed %q: %w", text, err))
		}
		if len(v) == 0 || (i > 0 && len(v) != len(vecs[0])) {
			return Assembly{}, domain.Upstream(domain.CollaboratorEmbedder,
				fmt.Errorf("embedding of %q has dimension %d", text, len(v)))
		}
		vecs[i] = v
	}

	draft := &domain.Draft{
		Name:              strings.TrimSpace(writing.Name),
		Description:       strings.TrimSpace(writing.Description),
		Justification:     strings.TrimSpace(writing.Justification),
		BoundA:            domain.Element{Text: chosen.BoundA, Vector: vecs[0]},
		BoundB:            domain.Element{Text: chosen.BoundB, Vector: vecs[1]},
		Bounded:           domain.Element{Text: chosen.Bounded, Vector: vecs[2]},
		Concept:           vector.Pool(vecs[:]...),
		StructuralType:    chosen.StructuralType,
		Confidence:        chosen.Confidence,
		Provenance:        content.Provenance,
		AssemblyRationale: rationale(chosen, len(cands)),
	}
	if draft.StructuralType == "" {
		draft.StructuralType = "unclassified"
	}
	return Assembly{Draft: draft}, nil
}

func (a *Assembler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.opts.CallTimeout)
}

func rationale(c domain.Candidate, n int) string {
	s := fmt.Sprintf("selected from %d candidates at confidence %.2f", n, c.Confidence)
	if c.Rationale != "" {
		s += ": " + c.Rationale
	}
	return s
}

func excerpt(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
