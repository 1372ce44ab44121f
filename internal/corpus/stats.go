package corpus

import (
	"fmt"
	"sort"

	"sandwich/internal/domain"
)

// StatsAccumulator groups observations into StatRows for backends that
// compute statistics in process.
type StatsAccumulator struct {
	rows map[string]*statSum
}

type statSum struct {
	count   int
	scored  int
	aggSum  float64
	aggSeen int
	scores  domain.Scores
}

func NewStatsAccumulator() *StatsAccumulator {
	return &StatsAccumulator{rows: make(map[string]*statSum)}
}

// Add records one observation. Nil aggregate or scores count towards the
// group size only.
func (s *StatsAccumulator) Add(key string, aggregate *float64, scores *domain.Scores) {
	r, ok := s.rows[key]
	if !ok {
		r = &statSum{}
		s.rows[key] = r
	}
	r.count++
	if aggregate != nil {
		r.aggSum += *aggregate
		r.aggSeen++
	}
	if scores != nil {
		r.scored++
		r.scores.BoundCompatibility += scores.BoundCompatibility
		r.scores.Containment += scores.Containment
		r.scores.Specificity += scores.Specificity
		r.scores.NonTriviality += scores.NonTriviality
		r.scores.Novelty += scores.Novelty
	}
}

// Rows returns the groups ordered by key.
func (s *StatsAccumulator) Rows() []domain.StatRow {
	keys := make([]string, 0, len(s.rows))
	for k := range s.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.StatRow, 0, len(keys))
	for _, k := range keys {
		r := s.rows[k]
		row := domain.StatRow{Key: k, Count: r.count}
		if r.aggSeen > 0 {
			row.MeanAggregate = r.aggSum / float64(r.aggSeen)
		}
		if r.scored > 0 {
			n := float64(r.scored)
			row.MeanScores = domain.Scores{
				BoundCompatibility: r.scores.BoundCompatibility / n,
				Containment:        r.scores.Containment / n,
				Specificity:        r.scores.Specificity / n,
				NonTriviality:      r.scores.NonTriviality / n,
				Novelty:            r.scores.Novelty / n,
			}
		}
		out = append(out, row)
	}
	return out
}

// ArtifactKey returns the grouping key of an artifact, or false for
// groupings that are not computed over artifacts.
func ArtifactKey(g domain.Grouping, a *domain.Artifact) (string, bool) {
	switch g {
	case domain.GroupByStructuralType:
		return a.StructuralType, true
	case domain.GroupByDay:
		return DayKey(a.CreatedAt), true
	case domain.GroupBySource:
		return a.Provenance.SourceName, true
	}
	return "", false
}

// CheckGrouping rejects unknown groupings.
func CheckGrouping(g domain.Grouping) error {
	switch g {
	case domain.GroupByStructuralType, domain.GroupByDay, domain.GroupBySource, domain.GroupByOutcome:
		return nil
	}
	return fmt.Errorf("unknown grouping %q", g)
}
