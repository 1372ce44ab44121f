package domain

import "context"

// ContentSource yields content items one at a time. It returns ErrExhausted
// once nothing is left and must not repeat an item within a run.
type ContentSource interface {
	Name() string
	Next(ctx context.Context) (Content, error)
}

// Extraction is the result of proposing candidates from text.
type Extraction struct {
	Candidates []Candidate
	Reason     string
}

type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}

// WriteRequest is the input of the writer for a selected candidate.
type WriteRequest struct {
	Candidate Candidate
	Type      *StructuralType
	Source    Provenance
	// Excerpt is the leading part of the source text.
	Excerpt string
}

// Writing is the prose produced for an artifact.
type Writing struct {
	Name          string
	Description   string
	Justification string
}

type Writer interface {
	Write(ctx context.Context, req WriteRequest) (Writing, error)
}

type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Rubric is the scoring guidance handed to a judge.
type Rubric struct {
	BoundCompatibility string
	Containment        string
	Specificity        string
}

// Judgment holds the three judged dimensions.
type Judgment struct {
	BoundCompatibility float64
	Containment        float64
	Specificity        float64
	Rationale          string
}

type Judge interface {
	Judge(ctx context.Context, draft Draft, rubric Rubric) (Judgment, error)
}

// CorpusReader is the read-only view of the corpus used by presentation code.
type CorpusReader interface {
	GetArtifact(ctx context.Context, id string) (Artifact, error)
	ListArtifacts(ctx context.Context, opts ListOptions) ([]Artifact, error)
	CountArtifacts(ctx context.Context) (int, error)
	ListRelations(ctx context.Context, artifactID string) ([]Relation, error)
	ListIngredients(ctx context.Context, limit int) ([]Ingredient, error)
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]AttemptLog, error)
	ListStructuralTypes(ctx context.Context) ([]StructuralType, error)
	FindByIngredientText(ctx context.Context, text string) ([]Artifact, error)
	Nearest(ctx context.Context, vec []float64) (Neighbor, bool, error)
	Stats(ctx context.Context, group Grouping) ([]StatRow, error)
}

// Repository is the single source of truth for accepted artifacts.
type Repository interface {
	CorpusReader

	InsertArtifact(ctx context.Context, a *Artifact) (InsertResult, error)
	AddRelation(ctx context.Context, r Relation) error
	RefreshRelations(ctx context.Context, artifactID string) (int, error)
	AppendAttempt(ctx context.Context, entry AttemptLog) error
	UpsertStructuralType(ctx context.Context, st StructuralType) error

	HasTriple(ctx context.Context, boundA, boundB, bounded string) (bool, error)
	BoundPairUsage(ctx context.Context, boundA, boundB string) (int, error)
	TypeFrequencies(ctx context.Context) (map[string]int, error)

	Close() error
}
