package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sandwich/internal/domain"
)

const maxPageSize = 200

type provenanceView struct {
	SourceName string `json:"source"`
	Reference  string `json:"reference,omitempty"`
	Title      string `json:"title,omitempty"`
}

type artifactView struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	BoundA              string         `json:"bound_a"`
	BoundB              string         `json:"bound_b"`
	Bounded             string         `json:"bounded"`
	StructuralType      string         `json:"structural_type"`
	Scores              domain.Scores  `json:"scores"`
	Weights             domain.Weights `json:"weights"`
	Aggregate           float64        `json:"aggregate"`
	Provenance          provenanceView `json:"provenance"`
	AssemblyRationale   string         `json:"assembly_rationale,omitempty"`
	ValidationRationale string         `json:"validation_rationale,omitempty"`
	CreatedAt           string         `json:"created_at"`
}

func toArtifactView(a domain.Artifact) artifactView {
	return artifactView{
		ID:                  a.ID,
		Name:                a.Name,
		Description:         a.Description,
		BoundA:              a.BoundA.Text,
		BoundB:              a.BoundB.Text,
		Bounded:             a.Bounded.Text,
		StructuralType:      a.StructuralType,
		Scores:              a.Scores,
		Weights:             a.Weights,
		Aggregate:           a.Aggregate,
		Provenance:          provenanceView(a.Provenance),
		AssemblyRationale:   a.AssemblyRationale,
		ValidationRationale: a.ValidationRationale,
		CreatedAt:           a.CreatedAt.Format(time.RFC3339),
	}
}

func toArtifactViews(as []domain.Artifact) []artifactView {
	out := make([]artifactView, 0, len(as))
	for _, a := range as {
		out = append(out, toArtifactView(a))
	}
	return out
}

type relationView struct {
	ID         string              `json:"id"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	Type       domain.RelationType `json:"type"`
	Similarity float64             `json:"similarity"`
	Rationale  string              `json:"rationale,omitempty"`
}

type ingredientView struct {
	ID           string                `json:"id"`
	Text         string                `json:"text"`
	Role         domain.IngredientRole `json:"role"`
	UsageCount   int                   `json:"usage_count"`
	IntroducedBy string                `json:"introduced_by"`
}

type attemptView struct {
	ID           string              `json:"id"`
	RunID        string              `json:"run_id"`
	Cycle        int                 `json:"cycle"`
	Time         string              `json:"time"`
	Outcome      domain.Outcome      `json:"outcome"`
	Rationale    string              `json:"rationale,omitempty"`
	ArtifactID   string              `json:"artifact_id,omitempty"`
	Collaborator domain.Collaborator `json:"collaborator,omitempty"`
	Source       string              `json:"source,omitempty"`
	Aggregate    *float64            `json:"aggregate,omitempty"`
	Scores       *domain.Scores      `json:"scores,omitempty"`
}

type statView struct {
	Key           string        `json:"key"`
	Count         int           `json:"count"`
	MeanAggregate float64       `json:"mean_aggregate"`
	MeanScores    domain.Scores `json:"mean_scores"`
}

type typeView struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	BoundRelation string `json:"bound_relation,omitempty"`
	BoundedRole   string `json:"bounded_role,omitempty"`
	Parent        string `json:"parent,omitempty"`
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(ctx *gin.Context, key string, def int) (int, error) {
	raw := ctx.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("query '" + key + "' must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) listArtifacts(ctx *gin.Context) {
	limit, err := intQuery(ctx, "limit", 50)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	offset, err := intQuery(ctx, "offset", 0)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	opts := domain.ListOptions{Limit: limit, Offset: offset, StructuralType: ctx.Query("type")}
	as, err := s.corpus.ListArtifacts(ctx.Request.Context(), opts)
	if err != nil {
		s.internalError(ctx, "list artifacts", err)
		return
	}
	total, err := s.corpus.CountArtifacts(ctx.Request.Context())
	if err != nil {
		s.internalError(ctx, "count artifacts", err)
		return
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(gin.H{
		"total":     total,
		"limit":     limit,
		"offset":    offset,
		"artifacts": toArtifactViews(as),
	}))
}

func (s *Server) getArtifact(ctx *gin.Context) {
	a, err := s.corpus.GetArtifact(ctx.Request.Context(), ctx.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, makeErrorResp(codeNotFound, "artifact not found"))
		return
	}
	if err != nil {
		s.internalError(ctx, "get artifact", err)
		return
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(toArtifactView(a)))
}

func (s *Server) listRelations(ctx *gin.Context) {
	id := ctx.Param("id")
	if _, err := s.corpus.GetArtifact(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, makeErrorResp(codeNotFound, "artifact not found"))
			return
		}
		s.internalError(ctx, "get artifact", err)
		return
	}
	rels, err := s.corpus.ListRelations(ctx.Request.Context(), id)
	if err != nil {
		s.internalError(ctx, "list relations", err)
		return
	}
	out := make([]relationView, 0, len(rels))
	for _, r := range rels {
		out = append(out, relationView{ID: r.ID, From: r.From, To: r.To, Type: r.Type, Similarity: r.Similarity, Rationale: r.Rationale})
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(out))
}

func (s *Server) listIngredients(ctx *gin.Context) {
	limit, err := intQuery(ctx, "limit", 100)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	ings, err := s.corpus.ListIngredients(ctx.Request.Context(), limit)
	if err != nil {
		s.internalError(ctx, "list ingredients", err)
		return
	}
	out := make([]ingredientView, 0, len(ings))
	for _, i := range ings {
		out = append(out, ingredientView{ID: i.ID, Text: i.Text, Role: i.Role, UsageCount: i.UsageCount, IntroducedBy: i.IntroducedBy})
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(out))
}

func (s *Server) findByIngredient(ctx *gin.Context) {
	text := ctx.Query("text")
	if text == "" {
		badRequest(ctx, "query 'text' is empty")
		return
	}
	as, err := s.corpus.FindByIngredientText(ctx.Request.Context(), text)
	if err != nil {
		s.internalError(ctx, "find by ingredient", err)
		return
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(toArtifactViews(as)))
}

func (s *Server) listAttempts(ctx *gin.Context) {
	limit, err := intQuery(ctx, "limit", 100)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	outcome := domain.Outcome(ctx.Query("outcome"))
	if outcome != "" && !outcome.Valid() {
		badRequest(ctx, "unknown outcome "+string(outcome))
		return
	}
	logs, err := s.corpus.ListAttempts(ctx.Request.Context(), domain.AttemptFilter{
		RunID:   ctx.Query("run"),
		Outcome: outcome,
		Limit:   limit,
	})
	if err != nil {
		s.internalError(ctx, "list attempts", err)
		return
	}
	out := make([]attemptView, 0, len(logs))
	for _, l := range logs {
		out = append(out, attemptView{
			ID:           l.ID,
			RunID:        l.RunID,
			Cycle:        l.Cycle,
			Time:         l.Timestamp.Format(time.RFC3339),
			Outcome:      l.Outcome,
			Rationale:    l.Rationale,
			ArtifactID:   l.ArtifactID,
			Collaborator: l.Collaborator,
			Source:       l.Provenance.SourceName,
			Aggregate:    l.Aggregate,
			Scores:       l.Scores,
		})
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(out))
}

func (s *Server) stats(ctx *gin.Context) {
	group := domain.Grouping(ctx.DefaultQuery("group", string(domain.GroupByStructuralType)))
	rows, err := s.corpus.Stats(ctx.Request.Context(), group)
	if err != nil {
		switch group {
		case domain.GroupByStructuralType, domain.GroupByOutcome, domain.GroupByDay, domain.GroupBySource:
			s.internalError(ctx, "stats", err)
		default:
			badRequest(ctx, "unknown group "+string(group))
		}
		return
	}
	out := make([]statView, 0, len(rows))
	for _, r := range rows {
		out = append(out, statView(r))
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(out))
}

func (s *Server) listTypes(ctx *gin.Context) {
	types, err := s.corpus.ListStructuralTypes(ctx.Request.Context())
	if err != nil {
		s.internalError(ctx, "list types", err)
		return
	}
	out := make([]typeView, 0, len(types))
	for _, t := range types {
		out = append(out, typeView(t))
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(out))
}

func (s *Server) recentEvents(ctx *gin.Context) {
	if s.events == nil {
		ctx.JSON(http.StatusOK, makeSuccessResp([]any{}))
		return
	}
	n, err := intQuery(ctx, "limit", 50)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(s.events.Recent(n)))
}
