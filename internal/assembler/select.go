package assembler

import (
	"fmt"
	"math"

	"sandwich/internal/domain"
)

// confidenceEpsilon is the distance under which two confidences tie.
const confidenceEpsilon = 1e-9

// NoCandidateReason tags why nothing could be assembled.
type NoCandidateReason string

const (
	ReasonEmpty         NoCandidateReason = "empty"
	ReasonAllDuplicates NoCandidateReason = "all_duplicates"
	ReasonAllReused     NoCandidateReason = "all_reused"
)

// NoCandidate is an expected outcome of assembly, not a failure.
type NoCandidate struct {
	Reason NoCandidateReason
	Detail string
}

// Outcome maps the reason onto the attempt log outcome.
func (n NoCandidate) Outcome() domain.Outcome {
	if n.Reason == ReasonAllDuplicates {
		return domain.OutcomeDuplicate
	}
	return domain.OutcomeNoCandidate
}

// Checked is a candidate annotated with what the corpus knows about it.
type Checked struct {
	Candidate domain.Candidate
	Duplicate bool
	PairUsage int
}

// Select picks the candidate to assemble. Exact duplicates and bound pairs
// used by reuseLimit or more artifacts are dropped. The highest confidence
// wins; ties go to the structural type with the fewest artifacts, then to
// input order.
func Select(in []Checked, freq map[string]int, reuseLimit int) (domain.Candidate, *NoCandidate) {
	if len(in) == 0 {
		return domain.Candidate{}, &NoCandidate{Reason: ReasonEmpty, Detail: "extractor returned no candidates"}
	}
	best := -1
	dups, reused := 0, 0
	for i, c := range in {
		switch {
		case c.Duplicate:
			dups++
			continue
		case reuseLimit > 0 && c.PairUsage >= reuseLimit:
			reused++
			continue
		}
		if best < 0 || better(c.Candidate, in[best].Candidate, freq) {
			best = i
		}
	}
	if best >= 0 {
		return in[best].Candidate, nil
	}
	if dups == len(in) {
		return domain.Candidate{}, &NoCandidate{
			Reason: ReasonAllDuplicates,
			Detail: fmt.Sprintf("all %d candidates already in the corpus", dups),
		}
	}
	return domain.Candidate{}, &NoCandidate{
		Reason: ReasonAllReused,
		Detail: fmt.Sprintf("%d duplicate and %d heavily reused candidates", dups, reused),
	}
}

// better reports whether a strictly beats b. Equal candidates keep the
// earlier one.
func better(a, b domain.Candidate, freq map[string]int) bool {
	if math.Abs(a.Confidence-b.Confidence) > confidenceEpsilon {
		return a.Confidence > b.Confidence
	}
	return freq[a.StructuralType] < freq[b.StructuralType]
}
