package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sandwich/internal/corpus"
	"sandwich/internal/domain"
	"sandwich/internal/vector"
)

var artifactColumns = []string{
	"id", "name", "description", "bound_a", "bound_b", "bounded",
	"bound_a_vec", "bound_b_vec", "bounded_vec", "concept_vec", "structural_type",
	"score_bound_compatibility", "score_containment", "score_specificity", "score_non_triviality", "score_novelty",
	"weight_bound_compatibility", "weight_containment", "weight_specificity", "weight_non_triviality", "weight_novelty",
	"aggregate", "source_name", "source_ref", "source_title", "assembly_rationale", "validation_rationale", "created_at",
}

func selectArtifacts(alias string) string {
	cols := artifactColumns
	if alias != "" {
		cols = make([]string, len(artifactColumns))
		for i, c := range artifactColumns {
			cols[i] = alias + "." + c
		}
	}
	return "SELECT " + strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner) (domain.Artifact, error) {
	var (
		a               domain.Artifact
		va, vb, vbd, vc []byte
		created         string
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.BoundA.Text, &a.BoundB.Text, &a.Bounded.Text,
		&va, &vb, &vbd, &vc, &a.StructuralType,
		&a.Scores.BoundCompatibility, &a.Scores.Containment, &a.Scores.Specificity, &a.Scores.NonTriviality, &a.Scores.Novelty,
		&a.Weights.BoundCompatibility, &a.Weights.Containment, &a.Weights.Specificity, &a.Weights.NonTriviality, &a.Weights.Novelty,
		&a.Aggregate, &a.Provenance.SourceName, &a.Provenance.Reference, &a.Provenance.Title,
		&a.AssemblyRationale, &a.ValidationRationale, &created,
	)
	if err != nil {
		return domain.Artifact{}, err
	}
	for _, p := range []struct {
		dst *[]float64
		src []byte
	}{{&a.BoundA.Vector, va}, {&a.BoundB.Vector, vb}, {&a.Bounded.Vector, vbd}, {&a.Concept, vc}} {
		if *p.dst, err = decodeVector(p.src); err != nil {
			return domain.Artifact{}, err
		}
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

func (s *Store) queryArtifacts(ctx context.Context, query string, args ...any) ([]domain.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()
	var out []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetArtifact(ctx context.Context, id string) (domain.Artifact, error) {
	a, err := scanArtifact(s.db.QueryRowContext(ctx, s.q(selectArtifacts("")+` FROM artifacts WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Artifact{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("get artifact %s: %w", id, err)
	}
	return a, nil
}

func (s *Store) ListArtifacts(ctx context.Context, opts domain.ListOptions) ([]domain.Artifact, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	query := selectArtifacts("") + ` FROM artifacts`
	var args []any
	if opts.StructuralType != "" {
		query += ` WHERE structural_type = ?`
		args = append(args, opts.StructuralType)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return s.queryArtifacts(ctx, query, args...)
}

func (s *Store) CountArtifacts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n, nil
}

func (s *Store) ListRelations(ctx context.Context, artifactID string) ([]domain.Relation, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, from_id, to_id, type, similarity, rationale, created_at
FROM relations WHERE from_id = ? OR to_id = ? ORDER BY similarity DESC, created_at, id`), artifactID, artifactID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()
	var out []domain.Relation
	for rows.Next() {
		var (
			r       domain.Relation
			typ     string
			created string
		)
		if err := rows.Scan(&r.ID, &r.From, &r.To, &typ, &r.Similarity, &r.Rationale, &created); err != nil {
			return nil, err
		}
		r.Type = domain.RelationType(typ)
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListIngredients(ctx context.Context, limit int) ([]domain.Ingredient, error) {
	query := `SELECT id, normalized, text, role, vector, introduced_by, usage_count, created_at
FROM ingredients ORDER BY usage_count DESC, normalized ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	defer rows.Close()
	var out []domain.Ingredient
	for rows.Next() {
		var (
			ing     domain.Ingredient
			role    string
			vec     []byte
			created string
		)
		if err := rows.Scan(&ing.ID, &ing.Normalized, &ing.Text, &role, &vec, &ing.IntroducedBy, &ing.UsageCount, &created); err != nil {
			return nil, err
		}
		ing.Role = domain.IngredientRole(role)
		if ing.Vector, err = decodeVector(vec); err != nil {
			return nil, err
		}
		if ing.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

func (s *Store) ListAttempts(ctx context.Context, f domain.AttemptFilter) ([]domain.AttemptLog, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	query := `SELECT id, run_id, cycle, created_at, outcome, rationale, artifact_id,
	source_name, source_ref, source_title, collaborator, aggregate,
	score_bound_compatibility, score_containment, score_specificity, score_non_triviality, score_novelty
FROM attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	var out []domain.AttemptLog
	for rows.Next() {
		var (
			e            domain.AttemptLog
			created      string
			outcome      string
			collaborator string
			artifactID   sql.NullString
			agg          sql.NullFloat64
			sc           [5]sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Cycle, &created, &outcome, &e.Rationale, &artifactID,
			&e.Provenance.SourceName, &e.Provenance.Reference, &e.Provenance.Title, &collaborator, &agg,
			&sc[0], &sc[1], &sc[2], &sc[3], &sc[4]); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime(created); err != nil {
			return nil, err
		}
		e.Outcome = domain.Outcome(outcome)
		e.Collaborator = domain.Collaborator(collaborator)
		e.ArtifactID = artifactID.String
		if agg.Valid {
			v := agg.Float64
			e.Aggregate = &v
		}
		if sc[0].Valid {
			e.Scores = &domain.Scores{
				BoundCompatibility: sc[0].Float64,
				Containment:        sc[1].Float64,
				Specificity:        sc[2].Float64,
				NonTriviality:      sc[3].Float64,
				Novelty:            sc[4].Float64,
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListStructuralTypes(ctx context.Context) ([]domain.StructuralType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, description, bound_relation, bounded_role, parent FROM structural_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list structural types: %w", err)
	}
	defer rows.Close()
	var out []domain.StructuralType
	for rows.Next() {
		var (
			st     domain.StructuralType
			parent sql.NullString
		)
		if err := rows.Scan(&st.Name, &st.Description, &st.BoundRelation, &st.BoundedRole, &parent); err != nil {
			return nil, err
		}
		st.Parent = parent.String
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) FindByIngredientText(ctx context.Context, text string) ([]domain.Artifact, error) {
	return s.queryArtifacts(ctx, selectArtifacts("a")+` FROM artifacts a
JOIN artifact_ingredients ai ON ai.artifact_id = a.id
JOIN ingredients i ON i.id = ai.ingredient_id
WHERE i.normalized = ?
ORDER BY a.created_at, a.id`, domain.NormalizeText(text))
}

// Nearest scans every concept vector. Ties keep the oldest artifact.
func (s *Store) Nearest(ctx context.Context, vec []float64) (domain.Neighbor, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, concept_vec FROM artifacts ORDER BY created_at, id`)
	if err != nil {
		return domain.Neighbor{}, false, fmt.Errorf("scan concepts: %w", err)
	}
	var (
		bestID  string
		bestSim float64
		found   bool
	)
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			rows.Close()
			return domain.Neighbor{}, false, err
		}
		v, err := decodeVector(blob)
		if err != nil {
			rows.Close()
			return domain.Neighbor{}, false, err
		}
		if sim := vector.Cosine(vec, v); !found || sim > bestSim {
			bestID, bestSim, found = id, sim, true
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return domain.Neighbor{}, false, err
	}
	if !found {
		return domain.Neighbor{}, false, nil
	}
	a, err := s.GetArtifact(ctx, bestID)
	if err != nil {
		return domain.Neighbor{}, false, err
	}
	return domain.Neighbor{Artifact: a, Similarity: bestSim}, true, nil
}

func (s *Store) Stats(ctx context.Context, g domain.Grouping) ([]domain.StatRow, error) {
	if err := corpus.CheckGrouping(g); err != nil {
		return nil, err
	}
	table, key := "artifacts", ""
	switch g {
	case domain.GroupByStructuralType:
		key = "structural_type"
	case domain.GroupByDay:
		key = "substr(created_at, 1, 10)"
	case domain.GroupBySource:
		key = "source_name"
	case domain.GroupByOutcome:
		table, key = "attempts", "outcome"
	}
	query := fmt.Sprintf(`SELECT %[1]s AS grp, COUNT(*),
	COALESCE(AVG(aggregate), 0),
	COALESCE(AVG(score_bound_compatibility), 0),
	COALESCE(AVG(score_containment), 0),
	COALESCE(AVG(score_specificity), 0),
	COALESCE(AVG(score_non_triviality), 0),
	COALESCE(AVG(score_novelty), 0)
FROM %[2]s GROUP BY %[1]s ORDER BY grp`, key, table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stats by %s: %w", g, err)
	}
	defer rows.Close()
	var out []domain.StatRow
	for rows.Next() {
		var r domain.StatRow
		if err := rows.Scan(&r.Key, &r.Count, &r.MeanAggregate,
			&r.MeanScores.BoundCompatibility, &r.MeanScores.Containment, &r.MeanScores.Specificity,
			&r.MeanScores.NonTriviality, &r.MeanScores.Novelty); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) HasTriple(ctx context.Context, boundA, boundB, bounded string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM artifacts WHERE triple_key = ?`),
		domain.TripleKey(boundA, boundB, bounded)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has triple: %w", err)
	}
	return n > 0, nil
}

func (s *Store) BoundPairUsage(ctx context.Context, boundA, boundB string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM artifacts WHERE pair_key = ?`),
		domain.PairKey(boundA, boundB)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("bound pair usage: %w", err)
	}
	return n, nil
}

func (s *Store) TypeFrequencies(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT structural_type, COUNT(*) FROM artifacts GROUP BY structural_type`)
	if err != nil {
		return nil, fmt.Errorf("type frequencies: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}
