// Package tui is the interactive terminal front end: search, pick files,
// aggregate them into reports.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cwoolley/playbook/internal/domain"
)

// SearchFunc runs a search for query.
type SearchFunc func(ctx context.Context, query string) ([]domain.FileRecord, error)

// AggregateFunc aggregates files for query and returns the saved report paths.
type AggregateFunc func(ctx context.Context, query string, files []domain.FileRecord) ([]string, error)

type state int

const (
	stateInput state = iota
	stateLoading
	stateResults
	stateAggregating
	stateDone
)

type searchResultMsg struct {
	files []domain.FileRecord
	err   error
}

type aggregateResultMsg struct {
	paths []string
	err   error
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	searchInput textinput.Model
	searchFn    SearchFunc
	aggregateFn AggregateFunc
	query       string
	files       []domain.FileRecord
	selected    map[int]bool
	cursor      int
	state       state
	paths       []string
	err         error
	cancel      context.CancelFunc
}

// NewModel creates a model. aggregateFn may be nil, which disables
// aggregation.
func NewModel(searchFn SearchFunc, aggregateFn AggregateFunc) Model {
	ti := textinput.New()
	ti.Placeholder = "Search terms, comma separated..."
	ti.Focus()
	ti.Width = 60

	return Model{
		searchInput: ti,
		searchFn:    searchFn,
		aggregateFn: aggregateFn,
		selected:    map[int]bool{},
		state:       stateInput,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case searchResultMsg:
		return m.handleSearchResult(msg)
	case aggregateResultMsg:
		return m.handleAggregateResult(msg)
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit

	case tea.KeyEscape:
		if m.state == stateInput {
			return m, tea.Quit
		}
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		if m.state == stateAggregating || m.state == stateDone {
			m.state = stateResults
			return m, nil
		}
		m.state = stateInput
		m.searchInput.Focus()
		return m, nil

	case tea.KeyEnter:
		if m.state == stateInput {
			q := strings.TrimSpace(m.searchInput.Value())
			if q == "" {
				return m, nil
			}
			m.query = q
			m.state = stateLoading
			return m.startSearch(q)
		}
		return m, nil

	case tea.KeyUp:
		if m.state == stateResults && m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case tea.KeyDown:
		if m.state == stateResults && m.cursor < len(m.files)-1 {
			m.cursor++
		}
		return m, nil

	case tea.KeySpace:
		if m.state == stateResults && len(m.files) > 0 {
			m.selected[m.cursor] = !m.selected[m.cursor]
			return m, nil
		}

	case tea.KeyRunes:
		if m.state == stateResults && string(msg.Runes) == "a" {
			return m.startAggregate()
		}
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) startSearch(q string) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	fn := m.searchFn
	return m, func() tea.Msg {
		files, err := fn(ctx, q)
		return searchResultMsg{files: files, err: err}
	}
}

func (m Model) selectedFiles() []domain.FileRecord {
	var out []domain.FileRecord
	for i, f := range m.files {
		if m.selected[i] {
			out = append(out, f)
		}
	}
	return out
}

func (m Model) startAggregate() (tea.Model, tea.Cmd) {
	files := m.selectedFiles()
	if m.aggregateFn == nil || len(files) == 0 {
		return m, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = stateAggregating
	m.err = nil
	fn, q := m.aggregateFn, m.query
	return m, func() tea.Msg {
		paths, err := fn(ctx, q, files)
		return aggregateResultMsg{paths: paths, err: err}
	}
}

func (m Model) handleSearchResult(msg searchResultMsg) (tea.Model, tea.Cmd) {
	m.cancel = nil
	if msg.err != nil {
		m.err = msg.err
		m.state = stateInput
		m.searchInput.Focus()
		return m, nil
	}

	m.err = nil
	m.files = msg.files
	m.selected = map[int]bool{}
	m.cursor = 0
	m.state = stateResults
	return m, nil
}

func (m Model) handleAggregateResult(msg aggregateResultMsg) (tea.Model, tea.Cmd) {
	m.cancel = nil
	if msg.err != nil {
		m.err = msg.err
		m.state = stateResults
		return m, nil
	}
	m.paths = msg.paths
	m.state = stateDone
	return m, nil
}

var (
	nameStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("  Search the playbook"))
	b.WriteString("\n\n")
	b.WriteString("  " + m.searchInput.View())
	b.WriteString("\n\n")

	switch m.state {
	case stateLoading:
		b.WriteString("  Searching...\n")

	case stateResults:
		m.viewResults(&b)

	case stateAggregating:
		b.WriteString(fmt.Sprintf("  Aggregating %d files...\n", len(m.selectedFiles())))

	case stateDone:
		b.WriteString("  Reports saved:\n")
		for _, p := range m.paths {
			b.WriteString("    " + p + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n  " + errorStyle.Render("Error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n  esc: back • ctrl+c: quit")
	if m.state == stateResults {
		b.WriteString(" • ↑/↓: navigate • space: select")
		if m.aggregateFn != nil {
			b.WriteString(" • a: aggregate")
		}
	}
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewResults(b *strings.Builder) {
	if len(m.files) == 0 {
		b.WriteString("  No results found.\n")
		return
	}
	fmt.Fprintf(b, "  %d results, %d selected:\n\n", len(m.files), len(m.selectedFiles()))
	for i, f := range m.files {
		cursor, box := "  ", "[ ]"
		name := nameStyle.Render(f.Name)
		if m.selected[i] {
			box = "[x]"
		}
		if i == m.cursor {
			cursor = "> "
			name = selectedStyle.Render(f.Name)
		}
		fmt.Fprintf(b, "  %s%s %s\n", cursor, box, name)
		fmt.Fprintf(b, "       %s\n", metaStyle.Render(describe(f)))
	}
}

func describe(f domain.FileRecord) string {
	parts := []string{f.Kind().String()}
	if f.Size != nil {
		parts = append(parts, fmt.Sprintf("%d KB", (*f.Size+1023)/1024))
	}
	if !f.ModifiedTime.IsZero() {
		parts = append(parts, "modified "+f.ModifiedTime.Format("2006-01-02"))
	}
	return strings.Join(parts, " · ")
}
