package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

type dialect struct {
	name   string
	blob   string
	serial string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", blob: "BLOB", serial: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{name: "postgres", blob: "BYTEA", serial: "BIGSERIAL PRIMARY KEY", numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them. Queries in
// this package never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// target names a column of the conflicting row inside ON CONFLICT DO UPDATE.
// PostgreSQL needs the table qualifier to disambiguate from EXCLUDED.
func (d dialect) target(table, column string) string {
	if d.numbered {
		return table + "." + column
	}
	return column
}

func (d dialect) schema() []string {
	scores := func(prefix string, null string) string {
		cols := []string{"bound_compatibility", "containment", "specificity", "non_triviality", "novelty"}
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = fmt.Sprintf("%s_%s DOUBLE PRECISION %s", prefix, c, null)
		}
		return strings.Join(parts, ",\n\t")
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS structural_types (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	bound_relation TEXT NOT NULL DEFAULT '',
	bounded_role TEXT NOT NULL DEFAULT '',
	parent TEXT REFERENCES structural_types(name),
	created_at TEXT NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	triple_key TEXT NOT NULL UNIQUE,
	pair_key TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	bound_a TEXT NOT NULL,
	bound_b TEXT NOT NULL,
	bounded TEXT NOT NULL,
	bound_a_vec %[1]s NOT NULL,
	bound_b_vec %[1]s NOT NULL,
	bounded_vec %[1]s NOT NULL,
	concept_vec %[1]s NOT NULL,
	dimension INTEGER NOT NULL,
	structural_type TEXT NOT NULL REFERENCES structural_types(name),
	%[2]s,
	%[3]s,
	aggregate DOUBLE PRECISION NOT NULL CHECK (aggregate >= 0 AND aggregate <= 1),
	source_name TEXT NOT NULL DEFAULT '',
	source_ref TEXT NOT NULL DEFAULT '',
	source_title TEXT NOT NULL DEFAULT '',
	assembly_rationale TEXT NOT NULL DEFAULT '',
	validation_rationale TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
)`, d.blob, scores("score", "NOT NULL"), scores("weight", "NOT NULL")),
		`CREATE INDEX IF NOT EXISTS artifacts_pair_key ON artifacts(pair_key)`,
		`CREATE INDEX IF NOT EXISTS artifacts_created_at ON artifacts(created_at)`,
		`CREATE INDEX IF NOT EXISTS artifacts_structural_type ON artifacts(structural_type)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ingredients (
	id TEXT PRIMARY KEY,
	normalized TEXT NOT NULL UNIQUE,
	text TEXT NOT NULL,
	role TEXT NOT NULL,
	vector %s,
	introduced_by TEXT NOT NULL REFERENCES artifacts(id),
	usage_count INTEGER NOT NULL DEFAULT 1 CHECK (usage_count >= 1),
	created_at TEXT NOT NULL
)`, d.blob),
		`CREATE TABLE IF NOT EXISTS artifact_ingredients (
	artifact_id TEXT NOT NULL REFERENCES artifacts(id),
	ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
	role TEXT NOT NULL,
	PRIMARY KEY (artifact_id, ingredient_id)
)`,
		`CREATE INDEX IF NOT EXISTS artifact_ingredients_ingredient ON artifact_ingredients(ingredient_id)`,
		`CREATE TABLE IF NOT EXISTS relations (
	id TEXT PRIMARY KEY,
	from_id TEXT NOT NULL REFERENCES artifacts(id),
	to_id TEXT NOT NULL REFERENCES artifacts(id),
	type TEXT NOT NULL,
	similarity DOUBLE PRECISION NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE (from_id, to_id, type),
	CHECK (from_id <> to_id)
)`,
		`CREATE INDEX IF NOT EXISTS relations_to ON relations(to_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS attempts (
	seq %s,
	id TEXT NOT NULL UNIQUE,
	run_id TEXT NOT NULL,
	cycle INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	outcome TEXT NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	artifact_id TEXT REFERENCES artifacts(id),
	source_name TEXT NOT NULL DEFAULT '',
	source_ref TEXT NOT NULL DEFAULT '',
	source_title TEXT NOT NULL DEFAULT '',
	collaborator TEXT NOT NULL DEFAULT '',
	aggregate DOUBLE PRECISION,
	%s
)`, d.serial, scores("score", "")),
		`CREATE INDEX IF NOT EXISTS attempts_run ON attempts(run_id, cycle)`,
	}
}
