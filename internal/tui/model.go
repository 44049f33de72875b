// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tui is a terminal browser over the exemplar corpus: type a topic,
// walk the retrieved aims excerpts, and kick off a draft from the current
// query without leaving the terminal.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// SearchPort is the TUI-facing subset of the retriever.
type SearchPort interface {
	Retrieve(ctx context.Context, query string, maxResults int) ([]types.Exemplar, error)
}

// DraftPort drafts a Specific Aims section from a topic. Nil disables the
// draft key.
type DraftPort interface {
	DraftFromTopic(ctx context.Context, topic string) (types.DraftResult, error)
}

// Model is the Bubble Tea model for the exemplar browser.
type Model struct {
	search    SearchPort
	drafter   DraftPort
	input     textinput.Model
	viewport  viewport.Model
	results   []types.Exemplar
	banner    string
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// draftDoneMsg carries the outcome of a background draft.
type draftDoneMsg struct {
	result types.DraftResult
	err    error
}

// New creates the model. banner is the one-line corpus summary shown under
// the title.
func New(search SearchPort, drafter DraftPort, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe your research topic and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		search:   search,
		drafter:  drafter,
		input:    ti,
		viewport: vp,
		banner:   banner,
		status:   "Corpus loaded. Type to search; g drafts from the current query.",
	}
}

// Init starts the text input cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 3 + qh + 1 // title, banner, status, query frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = maxInt(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil

	case draftDoneMsg:
		if msg.err != nil {
			m.status = "Draft failed: " + msg.err.Error()
		} else {
			m.status = "Draft saved to " + msg.result.Path
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				results, err := m.search.Retrieve(context.Background(), q, 10)
				if err != nil {
					m.status = "Error: " + err.Error()
					m.results = nil
				} else {
					m.status = fmt.Sprintf("%d exemplars for %q", len(results), q)
					m.results = results
					m.cursor = 0
					m.lastQuery = q
				}
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "g":
			// Only treat g as the draft key when the input is empty-ish,
			// so typing "genomics" still works.
			if m.drafter != nil && m.lastQuery != "" && strings.TrimSpace(m.input.Value()) == "" {
				topic := m.lastQuery
				m.status = "Drafting from " + topic + " ..."
				return m, func() tea.Msg {
					result, err := m.drafter.DraftFromTopic(context.Background(), topic)
					return draftDoneMsg{result: result, err: err}
				}
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := lipgloss.NewStyle().Bold(true).Render("Specific Aims Exemplar Browser")
	banner := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.banner)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return title + "\n" + banner + "\n" + results + "\n" + input + "\n" + status
}

// renderCurrent renders the exemplar under the cursor.
func (m Model) renderCurrent() string {
	if len(m.results) == 0 {
		return "No exemplars yet. Type a topic and press Enter."
	}
	ex := m.results[m.cursor]
	head := fmt.Sprintf("Exemplar %d/%d  %s  sim=%.3f", m.cursor+1, len(m.results), ex.GrantID, ex.Similarity)
	if ex.ImpactScore != nil {
		head += fmt.Sprintf("  impact=%.0f", *ex.ImpactScore)
	}
	title := lipgloss.NewStyle().Bold(true).Render(ex.Title)
	body := highlightBestSentence(ex.Excerpt, m.lastQuery)
	return head + "\n" + title + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	wordRe         = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasizes the sentence sharing the most tokens
// with the query, so the eye lands on why the chunk matched.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlap(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// tokenOverlap counts distinct query tokens present in the sentence.
func tokenOverlap(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range wordRe.FindAllString(strings.ToLower(sentence), -1) {
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

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
