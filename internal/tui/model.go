// Package tui provides an interactive terminal browser for knowledge
// search. A query box accepts natural language queries and the result pane
// pages through the matching chunks with rendered Markdown.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reqflow/reqflow/internal/knowledge"
)

// Searcher is the engine subset the TUI needs. Satisfied by
// knowledge.Engine.
type Searcher interface {
	Search(ctx context.Context, projectID, query string, limit int) ([]knowledge.Result, error)
}

// resultLimit is how many chunks a single query fetches.
const resultLimit = 10

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// searchResultMsg carries the outcome of an asynchronous search.
type searchResultMsg struct {
	query   string
	results []knowledge.Result
	err     error
}

// Model is the Bubble Tea model for the search browser.
type Model struct {
	ctx       context.Context
	engine    Searcher
	projectID string

	input    textinput.Model
	viewport viewport.Model
	markdown *markdownRenderer

	results   []knowledge.Result
	cursor    int
	lastQuery string
	status    string
	searching bool
	ready     bool
}

// New creates a search browser for projectID.
func New(ctx context.Context, engine Searcher, projectID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		ctx:       ctx,
		engine:    engine,
		projectID: projectID,
		input:     ti,
		viewport:  viewport.New(0, 0),
		status:    "Ready. Type to search.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, query frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		if m.markdown == nil {
			m.markdown = newMarkdownRenderer(m.viewport.Width - 4)
		} else {
			m.markdown.UpdateWidth(m.viewport.Width - 4)
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil

	case searchResultMsg:
		m.searching = false
		if msg.err != nil {
			m.status = errorStyle.Render("Error: " + msg.err.Error())
			m.results = nil
		} else {
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
			if len(msg.results) == 0 {
				m.status = fmt.Sprintf("No results for %q", msg.query)
			} else {
				m.status = fmt.Sprintf("%d results for %q", len(msg.results), msg.query)
			}
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if query != "" && !m.searching {
				m.searching = true
				m.status = "Searching..."
				return m, m.searchCmd(query)
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "pgdown":
			m.viewport.HalfViewDown()
			return m, nil
		case "pgup":
			m.viewport.HalfViewUp()
			return m, nil
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
	header := headerStyle.Render("reqflow knowledge search")
	summary := summaryStyle.Render("project: " + m.projectID)
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

// searchCmd runs the query off the update loop so typing stays responsive
// while the engine embeds and searches.
func (m Model) searchCmd(query string) tea.Cmd {
	ctx, engine, projectID := m.ctx, m.engine, m.projectID
	return func() tea.Msg {
		results, err := engine.Search(ctx, projectID, query, resultLimit)
		return searchResultMsg{query: query, results: results, err: err}
	}
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s  score=%.3f",
		m.cursor+1, len(m.results), r.Filename, r.Score)
	return title + "\n\n" + m.markdown.Render(r.Content)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
