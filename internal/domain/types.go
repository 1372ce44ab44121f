package domain

import "time"

// Element is one of the three textual parts of an artifact.
type Element struct {
	Text   string
	Vector []float64
}

// Provenance identifies the content item an artifact was built from.
type Provenance struct {
	SourceName string
	Reference  string
	Title      string
}

// Content is a single item pulled from a content source.
type Content struct {
	Text        string
	ContentType string // "text" or "html"
	Provenance  Provenance
}

// Candidate is one triple proposed by the extractor.
type Candidate struct {
	BoundA         string
	BoundB         string
	Bounded        string
	StructuralType string
	Confidence     float64
	Rationale      string
}

// Draft is an assembled triple that has not been validated yet.
type Draft struct {
	Name              string
	Description       string
	Justification     string
	BoundA            Element
	BoundB            Element
	Bounded           Element
	Concept           []float64
	StructuralType    string
	Confidence        float64
	Provenance        Provenance
	AssemblyRationale string
}

// Artifact is an accepted triple. It is never mutated after insertion.
type Artifact struct {
	ID                  string
	Name                string
	Description         string
	BoundA              Element
	BoundB              Element
	Bounded             Element
	Concept             []float64
	StructuralType      string
	Scores              Scores
	Weights             Weights
	Aggregate           float64
	Provenance          Provenance
	AssemblyRationale   string
	ValidationRationale string
	CreatedAt           time.Time
}

// IngredientRole tags the role an ingredient was introduced in.
type IngredientRole string

const (
	RoleBound   IngredientRole = "bound"
	RoleBounded IngredientRole = "bounded"
)

// Ingredient is a deduplicated text fragment shared across artifacts.
type Ingredient struct {
	ID           string
	Text         string
	Normalized   string
	Role         IngredientRole
	Vector       []float64
	IntroducedBy string
	UsageCount   int
	CreatedAt    time.Time
}

// RelationType tags an edge between two artifacts.
type RelationType string

const (
	RelationSimilar          RelationType = "similar"
	RelationSharesIngredient RelationType = "shares_ingredient"
	RelationInverse          RelationType = "inverse"
	RelationGeneralization   RelationType = "generalization"
)

// Directed reports whether endpoint order is meaningful for the type.
func (t RelationType) Directed() bool {
	return t == RelationInverse || t == RelationGeneralization
}

// Valid reports whether t is a known relation type.
func (t RelationType) Valid() bool {
	switch t {
	case RelationSimilar, RelationSharesIngredient, RelationInverse, RelationGeneralization:
		return true
	}
	return false
}

// Relation is an edge between two artifacts.
type Relation struct {
	ID         string
	From       string
	To         string
	Type       RelationType
	Similarity float64
	Rationale  string
	CreatedAt  time.Time
}

// Canonical returns r with endpoints ordered for undirected types.
func (r Relation) Canonical() Relation {
	if !r.Type.Directed() && r.To < r.From {
		r.From, r.To = r.To, r.From
	}
	return r
}

// Outcome is the result tag of one foraging cycle.
type Outcome string

const (
	OutcomeAccepted      Outcome = "accepted"
	OutcomeMarginal      Outcome = "marginal"
	OutcomeRejected      Outcome = "rejected"
	OutcomeNoCandidate   Outcome = "no_candidate"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeUpstreamError Outcome = "upstream_error"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAccepted, OutcomeMarginal, OutcomeRejected,
		OutcomeNoCandidate, OutcomeDuplicate, OutcomeUpstreamError:
		return true
	}
	return false
}

// Outcomes lists every outcome in a stable order.
func Outcomes() []Outcome {
	return []Outcome{OutcomeAccepted, OutcomeMarginal, OutcomeRejected,
		OutcomeNoCandidate, OutcomeDuplicate, OutcomeUpstreamError}
}

// AttemptLog is one append-only audit row per foraging cycle.
type AttemptLog struct {
	ID           string
	RunID        string
	Cycle        int
	Timestamp    time.Time
	Outcome      Outcome
	Rationale    string
	ArtifactID   string
	Provenance   Provenance
	Collaborator Collaborator
	Aggregate    *float64
	Scores       *Scores
}

// StructuralType is an entry of the structural taxonomy.
type StructuralType struct {
	Name          string
	Description   string
	BoundRelation string
	BoundedRole   string
	Parent        string
}

// Collaborator names an external dependency of the pipeline.
type Collaborator string

const (
	CollaboratorSource     Collaborator = "source"
	CollaboratorExtractor  Collaborator = "extractor"
	CollaboratorWriter     Collaborator = "writer"
	CollaboratorEmbedder   Collaborator = "embedder"
	CollaboratorJudge      Collaborator = "judge"
	CollaboratorRepository Collaborator = "repository"
)

// Neighbor is the result of a nearest-neighbour lookup.
type Neighbor struct {
	Artifact   Artifact
	Similarity float64
}

// InsertResult describes everything written by one artifact insertion.
type InsertResult struct {
	Artifact    Artifact
	Ingredients []Ingredient
	Relations   []Relation
}

// Grouping selects the key of aggregate statistics.
type Grouping string

const (
	GroupByStructuralType Grouping = "structural_type"
	GroupByOutcome        Grouping = "outcome"
	GroupByDay            Grouping = "day"
	GroupBySource         Grouping = "source"
)

// StatRow is one group of aggregate statistics. Score means are zero for
// outcome groupings whose rows carry no scores.
type StatRow struct {
	Key           string
	Count         int
	MeanAggregate float64
	MeanScores    Scores
}

// ListOptions pages through artifacts, newest first.
type ListOptions struct {
	Limit          int
	Offset         int
	StructuralType string
}

// AttemptFilter narrows attempt log listings.
type AttemptFilter struct {
	RunID   string
	Outcome Outcome
	Limit   int
}
