package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/starford/dms/internal/workflow"
)

type field int

const (
	fieldNone field = iota
	fieldSummary
	fieldCategory
	fieldTitle
)

func (f field) String() string {
	return []string{"", "summary", "category", "title"}[f]
}

// Model is the interactive review screen. It walks the drafts one at a
// time; decisions go straight into the session.
type Model struct {
	session *Session
	queue   []workflow.PendingSummary
	cursor  int
	edit    Edit
	editing field
	input   textinput.Model
	last    string
	done    bool
	width   int
}

// NewModel creates the review screen for s.
func NewModel(s *Session) Model {
	ti := textinput.New()
	ti.CharLimit = 2000
	ti.Width = 72
	return Model{session: s, queue: s.Drafts(), input: ti}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

func (m Model) current() (workflow.PendingSummary, bool) {
	if m.cursor >= len(m.queue) {
		return workflow.PendingSummary{}, false
	}
	return m.edit.apply(m.queue[m.cursor]), true
}

func (m Model) advance(note string) Model {
	m.cursor++
	m.edit = Edit{}
	m.last = note
	if m.cursor >= len(m.queue) {
		m.done = true
	}
	return m
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if m.editing != fieldNone {
			return m.updateEditing(msg)
		}
		item, ok := m.current()
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit
		case "a", "y":
			if ok {
				_ = m.session.Approve(item.File.Path, m.edit)
				m = m.advance(approvedStyle.Render("approved ") + item.File.Path)
			}
		case "r", "n":
			if ok {
				_ = m.session.Reject(item.File.Path)
				m = m.advance(rejectedStyle.Render("rejected ") + item.File.Path)
			}
		case "s":
			if ok {
				m = m.advance("skipped " + item.File.Path)
			}
		case "e":
			return m.startEditing(fieldSummary, item.Summary)
		case "c":
			return m.startEditing(fieldCategory, item.Category)
		case "t":
			return m.startEditing(fieldTitle, item.Title)
		}
		if m.done {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) startEditing(f field, value string) (tea.Model, tea.Cmd) {
	if _, ok := m.current(); !ok {
		return m, nil
	}
	m.editing = f
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		v := m.input.Value()
		switch m.editing {
		case fieldSummary:
			m.edit.Summary = v
		case fieldCategory:
			m.edit.Category = v
		case fieldTitle:
			m.edit.Title = v
		}
		m.editing = fieldNone
		m.input.Blur()
		return m, nil
	case tea.KeyEsc:
		m.editing = fieldNone
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Review %d of %d", min(m.cursor+1, len(m.queue)), len(m.queue))))
	b.WriteString("\n")

	item, ok := m.current()
	if !ok {
		b.WriteString("No drafts left.\n")
		return b.String()
	}
	rows := []string{
		labelStyle.Render("file") + item.File.Path,
		labelStyle.Render("title") + item.Title,
		labelStyle.Render("category") + item.Category,
		labelStyle.Render("summary") + item.Summary,
	}
	b.WriteString(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n")

	if m.editing != fieldNone {
		b.WriteString("\n" + m.editing.String() + ": " + m.input.View() + "\n")
		b.WriteString(helpStyle.Render("enter save • esc cancel"))
		return b.String()
	}
	if m.last != "" {
		b.WriteString(m.last + "\n")
	}
	b.WriteString(helpStyle.Render("a approve • r reject • s skip • e summary • c category • t title • q quit"))
	return b.String()
}

// Run shows the review screen and saves the session when it closes.
func Run(s *Session) error {
	p := tea.NewProgram(NewModel(s))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("review: %w", err)
	}
	return s.Save()
}
