// Package tui is a terminal browser over the corpus.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sandwich/internal/domain"
)

const (
	pageSize     = 50
	queryTimeout = 10 * time.Second
	typePrefix   = "type:"
)

// Model is the Bubble Tea model of the corpus browser.
type Model struct {
	corpus    domain.CorpusReader
	input     textinput.Model
	viewport  viewport.Model
	artifacts []domain.Artifact
	relations []domain.Relation
	summary   string
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

type artifactsMsg struct {
	query     string
	artifacts []domain.Artifact
	total     int
	err       error
}

type relationsMsg struct {
	id        string
	relations []domain.Relation
	err       error
}

// New creates a browser over corpus.
func New(corpus domain.CorpusReader) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "ingredient text, type:<name>, or Enter for newest"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{corpus: corpus, input: ti, viewport: vp, status: "Loading corpus..."}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.search(""))
}

// search loads artifacts for q: newest first when empty, by structural type
// with the type: prefix, otherwise by ingredient text.
func (m Model) search(q string) tea.Cmd {
	corpus := m.corpus
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		msg := artifactsMsg{query: q}
		switch {
		case q == "":
			msg.artifacts, msg.err = corpus.ListArtifacts(ctx, domain.ListOptions{Limit: pageSize})
		case strings.HasPrefix(q, typePrefix):
			typ := strings.TrimSpace(strings.TrimPrefix(q, typePrefix))
			msg.artifacts, msg.err = corpus.ListArtifacts(ctx, domain.ListOptions{Limit: pageSize, StructuralType: typ})
		default:
			msg.artifacts, msg.err = corpus.FindByIngredientText(ctx, q)
		}
		if msg.err == nil {
			msg.total, msg.err = corpus.CountArtifacts(ctx)
		}
		return msg
	}
}

func (m Model) loadRelations(id string) tea.Cmd {
	corpus := m.corpus
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		rels, err := corpus.ListRelations(ctx, id)
		return relationsMsg{id: id, relations: rels, err: err}
	}
}

func (m Model) selectedID() string {
	if len(m.artifacts) == 0 {
		return ""
	}
	return m.artifacts[m.cursor].ID
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case artifactsMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.artifacts, m.relations = nil, nil
			m.viewport.SetContent(m.renderCurrent())
			return m, nil
		}
		m.artifacts, m.relations, m.cursor = msg.artifacts, nil, 0
		m.lastQuery = msg.query
		m.summary = fmt.Sprintf("%d artifacts in corpus", msg.total)
		if msg.query == "" {
			m.status = fmt.Sprintf("Newest %d", len(msg.artifacts))
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.artifacts), msg.query)
		}
		m.viewport.SetContent(m.renderCurrent())
		if id := m.selectedID(); id != "" {
			return m, m.loadRelations(id)
		}
		return m, nil
	case relationsMsg:
		if msg.id != m.selectedID() {
			return m, nil
		}
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		}
		m.relations = msg.relations
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			m.status = "Searching..."
			return m, m.search(q)
		case "down", "up":
			if len(m.artifacts) == 0 {
				break
			}
			step := 1
			if msg.String() == "up" {
				step = len(m.artifacts) - 1
			}
			m.cursor = (m.cursor + step) % len(m.artifacts)
			m.relations = nil
			m.viewport.SetContent(m.renderCurrent())
			return m, m.loadRelations(m.selectedID())
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Sandwich Corpus")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.artifacts) == 0 {
		return "No artifacts."
	}
	a := m.artifacts[m.cursor]
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d  %s  [%s]  aggregate=%.3f\n\n",
		m.cursor+1, len(m.artifacts), titleStyle.Render(a.Name), a.StructuralType, a.Aggregate)
	fmt.Fprintf(&b, "%s  |  %s  |  %s\n\n",
		boundStyle.Render(a.BoundA.Text), highlightStyle.Render(a.Bounded.Text), boundStyle.Render(a.BoundB.Text))
	b.WriteString(highlightBestSentence(a.Description, m.lastQuery))
	b.WriteString("\n\n")
	s := a.Scores
	fmt.Fprintf(&b, "bound compatibility %.2f  containment %.2f  specificity %.2f  non-triviality %.2f  novelty %.2f\n",
		s.BoundCompatibility, s.Containment, s.Specificity, s.NonTriviality, s.Novelty)
	if a.Provenance.Title != "" || a.Provenance.Reference != "" {
		fmt.Fprintf(&b, "from %s %s\n", a.Provenance.Title, dimStyle.Render(a.Provenance.Reference))
	}
	if len(m.relations) > 0 {
		b.WriteString("\nrelations:\n")
		for _, r := range m.relations {
			other := r.To
			if other == a.ID {
				other = r.From
			}
			fmt.Fprintf(&b, "  %-18s %.2f  %s\n", r.Type, r.Similarity, m.nameOf(other))
		}
	}
	return b.String()
}

// nameOf resolves an artifact ID against the loaded page.
func (m Model) nameOf(id string) string {
	for _, a := range m.artifacts {
		if a.ID == id {
			return a.Name
		}
	}
	return dimStyle.Render(id)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	boundStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing most words with
// query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(strings.TrimPrefix(query, typePrefix))
	if len(qTokens) == 0 {
		return strings.Join(trimAll(sentences), " ")
	}
	bestIdx, bestScore := 0, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	out := trimAll(sentences)
	if bestScore > 0 {
		out[bestIdx] = highlightStyle.Render(out[bestIdx])
	}
	return strings.Join(out, " ")
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
