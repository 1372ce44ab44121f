// Package memory is an in-process corpus repository. All state sits behind
// one RWMutex and similarity queries are brute-force cosine scans.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sandwich/internal/corpus"
	"sandwich/internal/domain"
	"sandwich/internal/vector"
)

type relationKey struct {
	from, to string
	typ      domain.RelationType
}

// Store implements domain.Repository in memory.
type Store struct {
	opts corpus.Options
	now  func() time.Time

	mu          sync.RWMutex
	dimension   int
	artifacts   []domain.Artifact
	byID        map[string]int
	byTriple    map[string]string
	pairUsage   map[string]int
	ingredients map[string]*domain.Ingredient // by normalized text
	links       map[string][]string           // artifact ID -> ingredient normalized texts
	users       map[string][]string           // ingredient normalized text -> artifact IDs
	relations   []domain.Relation
	relIndex    map[relationKey]struct{}
	attempts    []domain.AttemptLog
	types       map[string]domain.StructuralType
}

func NewStore(opts corpus.Options) *Store {
	return &Store{
		opts:        opts.WithDefaults(),
		now:         time.Now,
		byID:        make(map[string]int),
		byTriple:    make(map[string]string),
		pairUsage:   make(map[string]int),
		ingredients: make(map[string]*domain.Ingredient),
		links:       make(map[string][]string),
		users:       make(map[string][]string),
		relIndex:    make(map[relationKey]struct{}),
		types:       make(map[string]domain.StructuralType),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) InsertArtifact(_ context.Context, a *domain.Artifact) (domain.InsertResult, error) {
	now := s.now().UTC()
	if err := corpus.Prepare(a, now); err != nil {
		return domain.InsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 && len(a.Concept) != s.dimension {
		return domain.InsertResult{}, domain.Invariantf("concept dimension %d, corpus uses %d", len(a.Concept), s.dimension)
	}
	if _, exists := s.byID[a.ID]; exists {
		return domain.InsertResult{}, domain.Invariantf("artifact id %s already used", a.ID)
	}
	key := domain.TripleKeyOf(a)
	if _, dup := s.byTriple[key]; dup {
		return domain.InsertResult{}, domain.ErrDuplicateArtifact
	}

	if _, ok := s.types[a.StructuralType]; !ok {
		s.types[a.StructuralType] = domain.StructuralType{Name: a.StructuralType}
	}

	stored := cloneArtifact(*a)
	res := domain.InsertResult{Artifact: cloneArtifact(stored)}

	// relations are computed against the corpus before this artifact joins it
	for i := range s.artifacts {
		other := &s.artifacts[i]
		sim := vector.Cosine(stored.Concept, other.Concept)
		if sim >= s.opts.EdgeThreshold {
			r := corpus.SimilarRelation(stored.ID, other.ID, sim, now)
			s.addRelationLocked(r)
			res.Relations = append(res.Relations, r)
		}
	}

	specs := corpus.Ingredients(&stored)
	shared := make(map[string][]string)
	var sharedOrder []string
	norms := make([]string, 0, len(specs))
	for _, spec := range specs {
		ing, ok := s.ingredients[spec.Normalized]
		if ok {
			ing.UsageCount++
			for _, user := range s.users[spec.Normalized] {
				if _, seen := shared[user]; !seen {
					sharedOrder = append(sharedOrder, user)
				}
				shared[user] = append(shared[user], ing.Text)
			}
		} else {
			ing = &domain.Ingredient{
				ID:           uuid.NewString(),
				Text:         spec.Text,
				Normalized:   spec.Normalized,
				Role:         spec.Role,
				Vector:       append([]float64(nil), spec.Vector...),
				IntroducedBy: stored.ID,
				UsageCount:   1,
				CreatedAt:    now,
			}
			s.ingredients[spec.Normalized] = ing
		}
		s.users[spec.Normalized] = append(s.users[spec.Normalized], stored.ID)
		norms = append(norms, spec.Normalized)
		res.Ingredients = append(res.Ingredients, cloneIngredient(*ing))
	}
	for _, other := range sharedOrder {
		r := corpus.SharedRelation(stored.ID, other, shared[other], now)
		s.addRelationLocked(r)
		res.Relations = append(res.Relations, r)
	}

	s.byID[stored.ID] = len(s.artifacts)
	s.artifacts = append(s.artifacts, stored)
	s.byTriple[key] = stored.ID
	s.pairUsage[domain.PairKey(stored.BoundA.Text, stored.BoundB.Text)]++
	s.links[stored.ID] = norms
	if s.dimension == 0 {
		s.dimension = len(stored.Concept)
	}
	return res, nil
}

func (s *Store) addRelationLocked(r domain.Relation) bool {
	k := relationKey{r.From, r.To, r.Type}
	if _, ok := s.relIndex[k]; ok {
		return false
	}
	s.relIndex[k] = struct{}{}
	s.relations = append(s.relations, r)
	return true
}

func (s *Store) AddRelation(_ context.Context, r domain.Relation) error {
	if err := corpus.PrepareRelation(&r, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{r.From, r.To} {
		if _, ok := s.byID[id]; !ok {
			return domain.Invariantf("relation endpoint %s does not exist", id)
		}
	}
	s.addRelationLocked(r)
	return nil
}

func (s *Store) RefreshRelations(_ context.Context, artifactID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[artifactID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	self := &s.artifacts[idx]
	now := s.now().UTC()
	added := 0
	for i := range s.artifacts {
		if i == idx {
			continue
		}
		sim := vector.Cosine(self.Concept, s.artifacts[i].Concept)
		if sim >= s.opts.EdgeThreshold && s.addRelationLocked(corpus.SimilarRelation(self.ID, s.artifacts[i].ID, sim, now)) {
			added++
		}
	}
	return added, nil
}

func (s *Store) AppendAttempt(_ context.Context, e domain.AttemptLog) error {
	if err := corpus.PrepareAttempt(&e, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ArtifactID != "" {
		if _, ok := s.byID[e.ArtifactID]; !ok {
			return domain.Invariantf("attempt references unknown artifact %s", e.ArtifactID)
		}
	}
	s.attempts = append(s.attempts, cloneAttempt(e))
	return nil
}

func (s *Store) UpsertStructuralType(_ context.Context, st domain.StructuralType) error {
	if err := corpus.PrepareType(&st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Parent != "" {
		if _, ok := s.types[st.Parent]; !ok {
			return domain.Invariantf("parent type %s does not exist", st.Parent)
		}
	}
	if existing, ok := s.types[st.Name]; ok && existing.Description != "" {
		return nil
	}
	s.types[st.Name] = st
	return nil
}

func (s *Store) HasTriple(_ context.Context, boundA, boundB, bounded string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byTriple[domain.TripleKey(boundA, boundB, bounded)]
	return ok, nil
}

func (s *Store) BoundPairUsage(_ context.Context, boundA, boundB string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairUsage[domain.PairKey(boundA, boundB)], nil
}

func (s *Store) TypeFrequencies(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for i := range s.artifacts {
		out[s.artifacts[i].StructuralType]++
	}
	return out, nil
}

func (s *Store) GetArtifact(_ context.Context, id string) (domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return domain.Artifact{}, domain.ErrNotFound
	}
	return cloneArtifact(s.artifacts[idx]), nil
}

func (s *Store) ListArtifacts(_ context.Context, opts domain.ListOptions) ([]domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Artifact
	skipped := 0
	for i := len(s.artifacts) - 1; i >= 0 && len(out) < limit; i-- {
		a := &s.artifacts[i]
		if opts.StructuralType != "" && a.StructuralType != opts.StructuralType {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, cloneArtifact(*a))
	}
	return out, nil
}

func (s *Store) CountArtifacts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts), nil
}

func (s *Store) ListRelations(_ context.Context, artifactID string) ([]domain.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Relation
	for _, r := range s.relations {
		if r.From == artifactID || r.To == artifactID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

func (s *Store) ListIngredients(_ context.Context, limit int) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		out = append(out, cloneIngredient(*ing))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Normalized < out[j].Normalized
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListAttempts(_ context.Context, f domain.AttemptFilter) ([]domain.AttemptLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AttemptLog
	for i := len(s.attempts) - 1; i >= 0; i-- {
		e := s.attempts[i]
		if f.RunID != "" && e.RunID != f.RunID {
			continue
		}
		if f.Outcome != "" && e.Outcome != f.Outcome {
			continue
		}
		out = append(out, cloneAttempt(e))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListStructuralTypes(_ context.Context) ([]domain.StructuralType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StructuralType, 0, len(s.types))
	for _, st := range s.types {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindByIngredientText(_ context.Context, text string) ([]domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Artifact
	for _, id := range s.users[domain.NormalizeText(text)] {
		out = append(out, cloneArtifact(s.artifacts[s.byID[id]]))
	}
	return out, nil
}

// Nearest scans every accepted artifact. Ties keep the oldest.
func (s *Store) Nearest(_ context.Context, vec []float64) (domain.Neighbor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.artifacts) == 0 {
		return domain.Neighbor{}, false, nil
	}
	scores := make([]float64, len(s.artifacts))
	for i := range s.artifacts {
		scores[i] = vector.Cosine(vec, s.artifacts[i].Concept)
	}
	best := 0
	for i, sc := range scores {
		if sc > scores[best] {
			best = i
		}
	}
	return domain.Neighbor{Artifact: cloneArtifact(s.artifacts[best]), Similarity: scores[best]}, true, nil
}

func (s *Store) Stats(_ context.Context, g domain.Grouping) ([]domain.StatRow, error) {
	if err := corpus.CheckGrouping(g); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc := corpus.NewStatsAccumulator()
	if g == domain.GroupByOutcome {
		for _, e := range s.attempts {
			acc.Add(string(e.Outcome), e.Aggregate, e.Scores)
		}
		return acc.Rows(), nil
	}
	for i := range s.artifacts {
		a := &s.artifacts[i]
		key, _ := corpus.ArtifactKey(g, a)
		agg, scores := a.Aggregate, a.Scores
		acc.Add(key, &agg, &scores)
	}
	return acc.Rows(), nil
}

func cloneArtifact(a domain.Artifact) domain.Artifact {
	a.BoundA.Vector = append([]float64(nil), a.BoundA.Vector...)
	a.BoundB.Vector = append([]float64(nil), a.BoundB.Vector...)
	a.Bounded.Vector = append([]float64(nil), a.Bounded.Vector...)
	a.Concept = append([]float64(nil), a.Concept...)
	return a
}

func cloneIngredient(i domain.Ingredient) domain.Ingredient {
	i.Vector = append([]float64(nil), i.Vector...)
	return i
}

func cloneAttempt(e domain.AttemptLog) domain.AttemptLog {
	if e.Aggregate != nil {
		v := *e.Aggregate
		e.Aggregate = &v
	}
	if e.Scores != nil {
		v := *e.Scores
		e.Scores = &v
	}
	return e
}
