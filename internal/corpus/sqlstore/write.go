package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sandwich/internal/corpus"
	"sandwich/internal/domain"
	"sandwich/internal/vector"
)

// InsertArtifact writes the artifact, its ingredients and its relations in
// one transaction.
func (s *Store) InsertArtifact(ctx context.Context, a *domain.Artifact) (domain.InsertResult, error) {
	now := s.now().UTC()
	if err := corpus.Prepare(a, now); err != nil {
		return domain.InsertResult{}, err
	}
	res := domain.InsertResult{Artifact: *a}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var dim int
		err := tx.QueryRowContext(ctx, s.q(`SELECT dimension FROM artifacts LIMIT 1`)).Scan(&dim)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read dimension: %w", err)
		case dim != len(a.Concept):
			return domain.Invariantf("concept dimension %d, corpus uses %d", len(a.Concept), dim)
		}

		if _, err := tx.ExecContext(ctx, s.q(
			`INSERT INTO structural_types (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`),
			a.StructuralType, formatTime(now)); err != nil {
			return fmt.Errorf("insert structural type: %w", err)
		}

		// similar edges are computed before the new row is visible
		similar, err := s.similarTo(ctx, tx, a.ID, a.Concept)
		if err != nil {
			return err
		}

		inserted, err := tx.ExecContext(ctx, s.q(`INSERT INTO artifacts (
	id, triple_key, pair_key, name, description, bound_a, bound_b, bounded,
	bound_a_vec, bound_b_vec, bounded_vec, concept_vec, dimension, structural_type,
	score_bound_compatibility, score_containment, score_specificity, score_non_triviality, score_novelty,
	weight_bound_compatibility, weight_containment, weight_specificity, weight_non_triviality, weight_novelty,
	aggregate, source_name, source_ref, source_title, assembly_rationale, validation_rationale, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (triple_key) DO NOTHING`),
			a.ID, domain.TripleKeyOf(a), domain.PairKey(a.BoundA.Text, a.BoundB.Text),
			a.Name, a.Description, a.BoundA.Text, a.BoundB.Text, a.Bounded.Text,
			encodeVector(a.BoundA.Vector), encodeVector(a.BoundB.Vector), encodeVector(a.Bounded.Vector), encodeVector(a.Concept),
			len(a.Concept), a.StructuralType,
			a.Scores.BoundCompatibility, a.Scores.Containment, a.Scores.Specificity, a.Scores.NonTriviality, a.Scores.Novelty,
			a.Weights.BoundCompatibility, a.Weights.Containment, a.Weights.Specificity, a.Weights.NonTriviality, a.Weights.Novelty,
			a.Aggregate, a.Provenance.SourceName, a.Provenance.Reference, a.Provenance.Title,
			a.AssemblyRationale, a.ValidationRationale, formatTime(a.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		if n, err := inserted.RowsAffected(); err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		} else if n == 0 {
			return domain.ErrDuplicateArtifact
		}

		shared := make(map[string][]string)
		var sharedOrder []string
		for _, spec := range corpus.Ingredients(a) {
			ing, err := s.upsertIngredient(ctx, tx, a.ID, spec, now)
			if err != nil {
				return err
			}
			res.Ingredients = append(res.Ingredients, ing)

			users, err := s.ingredientUsers(ctx, tx, ing.ID, a.ID)
			if err != nil {
				return err
			}
			for _, user := range users {
				if _, seen := shared[user]; !seen {
					sharedOrder = append(sharedOrder, user)
				}
				shared[user] = append(shared[user], ing.Text)
			}
			if _, err := tx.ExecContext(ctx, s.q(
				`INSERT INTO artifact_ingredients (artifact_id, ingredient_id, role) VALUES (?, ?, ?)`),
				a.ID, ing.ID, string(spec.Role)); err != nil {
				return fmt.Errorf("link ingredient: %w", err)
			}
		}

		for _, n := range similar {
			r := corpus.SimilarRelation(a.ID, n.id, n.sim, now)
			if _, err := s.insertRelation(ctx, tx, r); err != nil {
				return err
			}
			res.Relations = append(res.Relations, r)
		}
		for _, other := range sharedOrder {
			r := corpus.SharedRelation(a.ID, other, shared[other], now)
			if _, err := s.insertRelation(ctx, tx, r); err != nil {
				return err
			}
			res.Relations = append(res.Relations, r)
		}
		return nil
	})
	if err != nil {
		return domain.InsertResult{}, err
	}
	return res, nil
}

func (s *Store) upsertIngredient(ctx context.Context, tx *sql.Tx, artifactID string, spec corpus.IngredientSpec, now time.Time) (domain.Ingredient, error) {
	var (
		ing     domain.Ingredient
		role    string
		vec     []byte
		created string
	)
	err := tx.QueryRowContext(ctx, s.q(`INSERT INTO ingredients (id, normalized, text, role, vector, introduced_by, usage_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT (normalized) DO UPDATE SET usage_count = `+s.d.target("ingredients", "usage_count")+` + 1
RETURNING id, normalized, text, role, vector, introduced_by, usage_count, created_at`),
		uuid.NewString(), spec.Normalized, spec.Text, string(spec.Role), encodeVector(spec.Vector), artifactID, formatTime(now),
	).Scan(&ing.ID, &ing.Normalized, &ing.Text, &role, &vec, &ing.IntroducedBy, &ing.UsageCount, &created)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("upsert ingredient %q: %w", spec.Normalized, err)
	}
	ing.Role = domain.IngredientRole(role)
	if ing.Vector, err = decodeVector(vec); err != nil {
		return domain.Ingredient{}, err
	}
	if ing.CreatedAt, err = parseTime(created); err != nil {
		return domain.Ingredient{}, err
	}
	return ing, nil
}

func (s *Store) ingredientUsers(ctx context.Context, q queryer, ingredientID, exclude string) ([]string, error) {
	rows, err := q.QueryContext(ctx, s.q(
		`SELECT artifact_id FROM artifact_ingredients WHERE ingredient_id = ? AND artifact_id <> ? ORDER BY artifact_id`),
		ingredientID, exclude)
	if err != nil {
		return nil, fmt.Errorf("ingredient users: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type scored struct {
	id  string
	sim float64
}

// similarTo scans every other artifact's concept vector.
func (s *Store) similarTo(ctx context.Context, q queryer, id string, concept []float64) ([]scored, error) {
	rows, err := q.QueryContext(ctx, s.q(`SELECT id, concept_vec FROM artifacts WHERE id <> ? ORDER BY created_at, id`), id)
	if err != nil {
		return nil, fmt.Errorf("scan concepts: %w", err)
	}
	defer rows.Close()
	var out []scored
	for rows.Next() {
		var (
			other string
			blob  []byte
		)
		if err := rows.Scan(&other, &blob); err != nil {
			return nil, err
		}
		v, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		if sim := vector.Cosine(concept, v); sim >= s.opts.EdgeThreshold {
			out = append(out, scored{id: other, sim: sim})
		}
	}
	return out, rows.Err()
}

func (s *Store) insertRelation(ctx context.Context, q queryer, r domain.Relation) (bool, error) {
	res, err := q.ExecContext(ctx, s.q(`INSERT INTO relations (id, from_id, to_id, type, similarity, rationale, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (from_id, to_id, type) DO NOTHING`),
		r.ID, r.From, r.To, string(r.Type), r.Similarity, r.Rationale, formatTime(r.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert relation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) AddRelation(ctx context.Context, r domain.Relation) error {
	if err := corpus.PrepareRelation(&r, s.now()); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM artifacts WHERE id IN (?, ?)`), r.From, r.To).Scan(&n); err != nil {
			return fmt.Errorf("check endpoints: %w", err)
		}
		if n != 2 {
			return domain.Invariantf("relation endpoints %s, %s must both exist", r.From, r.To)
		}
		_, err := s.insertRelation(ctx, tx, r)
		return err
	})
}

func (s *Store) RefreshRelations(ctx context.Context, artifactID string) (int, error) {
	added := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var blob []byte
		err := tx.QueryRowContext(ctx, s.q(`SELECT concept_vec FROM artifacts WHERE id = ?`), artifactID).Scan(&blob)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		concept, err := decodeVector(blob)
		if err != nil {
			return err
		}
		similar, err := s.similarTo(ctx, tx, artifactID, concept)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		for _, n := range similar {
			ok, err := s.insertRelation(ctx, tx, corpus.SimilarRelation(artifactID, n.id, n.sim, now))
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *Store) AppendAttempt(ctx context.Context, e domain.AttemptLog) error {
	if err := corpus.PrepareAttempt(&e, s.now()); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var artifactID sql.NullString
		if e.ArtifactID != "" {
			var n int
			if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM artifacts WHERE id = ?`), e.ArtifactID).Scan(&n); err != nil {
				return err
			}
			if n == 0 {
				return domain.Invariantf("attempt references unknown artifact %s", e.ArtifactID)
			}
			artifactID = sql.NullString{String: e.ArtifactID, Valid: true}
		}
		var agg sql.NullFloat64
		if e.Aggregate != nil {
			agg = sql.NullFloat64{Float64: *e.Aggregate, Valid: true}
		}
		sc := make([]sql.NullFloat64, 5)
		if e.Scores != nil {
			for i, v := range []float64{e.Scores.BoundCompatibility, e.Scores.Containment, e.Scores.Specificity, e.Scores.NonTriviality, e.Scores.Novelty} {
				sc[i] = sql.NullFloat64{Float64: v, Valid: true}
			}
		}
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO attempts (
	id, run_id, cycle, created_at, outcome, rationale, artifact_id,
	source_name, source_ref, source_title, collaborator, aggregate,
	score_bound_compatibility, score_containment, score_specificity, score_non_triviality, score_novelty
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			e.ID, e.RunID, e.Cycle, formatTime(e.Timestamp), string(e.Outcome), e.Rationale, artifactID,
			e.Provenance.SourceName, e.Provenance.Reference, e.Provenance.Title, string(e.Collaborator), agg,
			sc[0], sc[1], sc[2], sc[3], sc[4],
		)
		if err != nil {
			return fmt.Errorf("append attempt: %w", err)
		}
		return nil
	})
}

func (s *Store) UpsertStructuralType(ctx context.Context, st domain.StructuralType) error {
	if err := corpus.PrepareType(&st); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var parent sql.NullString
		if st.Parent != "" {
			var n int
			if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM structural_types WHERE name = ?`), st.Parent).Scan(&n); err != nil {
				return err
			}
			if n == 0 {
				return domain.Invariantf("parent type %s does not exist", st.Parent)
			}
			parent = sql.NullString{String: st.Parent, Valid: true}
		}
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO structural_types (name, description, bound_relation, bounded_role, parent, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
	description = excluded.description,
	bound_relation = excluded.bound_relation,
	bounded_role = excluded.bounded_role,
	parent = excluded.parent
WHERE `+s.d.target("structural_types", "description")+` = ''`),
			st.Name, st.Description, st.BoundRelation, st.BoundedRole, parent, formatTime(s.now()))
		if err != nil {
			return fmt.Errorf("upsert structural type: %w", err)
		}
		return nil
	})
}
