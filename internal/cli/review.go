package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/paperq/internal/question"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	idStyle = lipgloss.NewStyle().
		Width(6).
		Foreground(lipgloss.Color("#555555"))

	textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			PaddingLeft(8)

	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			Italic(true).
			PaddingLeft(8)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)
)

// groupFilters cycles with tab; "" shows every group.
var groupFilters = []question.Group{"", question.GroupA, question.GroupB, question.GroupC}

// reviewModel is the Bubble Tea model for browsing extracted questions.
type reviewModel struct {
	title    string
	records  []question.Record
	answers  map[string]string // keyed by Record.ID()
	filter   int
	visible  []int // indices into records
	cursor   int
	expanded map[string]bool
	width    int
	height   int
}

func newReviewModel(title string, records []question.Record, answers map[string]string) reviewModel {
	m := reviewModel{
		title:    title,
		records:  records,
		answers:  answers,
		expanded: make(map[string]bool),
	}
	m.applyFilter()
	return m
}

func (m *reviewModel) applyFilter() {
	g := groupFilters[m.filter]
	m.visible = make([]int, 0, len(m.records))
	for i, r := range m.records {
		if g == "" || r.Group == g {
			m.visible = append(m.visible, i)
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func (m reviewModel) current() (question.Record, bool) {
	if len(m.visible) == 0 {
		return question.Record{}, false
	}
	return m.records[m.visible[m.cursor]], true
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.visible)-1 {
				m.cursor++
			}
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = max(len(m.visible)-1, 0)
		case "tab":
			m.filter = (m.filter + 1) % len(groupFilters)
			m.cursor = 0
			m.applyFilter()
		case "enter", " ":
			if r, ok := m.current(); ok {
				m.expanded[r.ID()] = !m.expanded[r.ID()]
			}
		}
	}
	return m, nil
}

func (m reviewModel) View() string {
	var b strings.Builder

	b.WriteString(headerBorder.Render(titleStyle.Render(m.title)))
	b.WriteString("\n")

	counts := question.CountByGroup(m.records)
	for i, g := range groupFilters {
		label := fmt.Sprintf("All %d", len(m.records))
		if g != "" {
			label = fmt.Sprintf("%s %d", g.Label(), counts[g])
		}
		if i == m.filter {
			b.WriteString(activeTabStyle.Render(label))
		} else {
			b.WriteString(tabStyle.Render(label))
		}
	}
	b.WriteString("\n\n")

	if len(m.visible) == 0 {
		b.WriteString("  no questions\n")
	}

	wrap := textStyle
	if m.width > 12 {
		wrap = wrap.Width(m.width - 10)
	}
	for i, idx := range m.visible {
		r := m.records[idx]
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		b.WriteString(cursor + idStyle.Render(r.ID()) + wrap.Render(r.Text) + "\n")
		if !m.expanded[r.ID()] {
			continue
		}
		for _, opt := range r.Options {
			b.WriteString(optionStyle.Render(opt) + "\n")
		}
		if a := m.answers[r.ID()]; a != "" {
			b.WriteString(answerStyle.Render(a) + "\n")
		}
	}

	b.WriteString(helpStyle.Render("  j/k or arrows to navigate | enter to expand | tab to filter group | q to quit"))
	b.WriteString("\n")
	return b.String()
}

func runReview(title string, records []question.Record, answers map[string]string) error {
	p := tea.NewProgram(newReviewModel(title, records, answers), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
