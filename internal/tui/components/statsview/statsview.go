package statsview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/stats"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(16)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true)

	groupStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			MarginTop(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

type Model struct {
	viewport viewport.Model
	summary  stats.Summary
}

func New(width, height int) Model {
	return Model{viewport: viewport.New(width, height)}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return m.viewport.View()
}

func (m *Model) SetSize(width, height int) {
	m.viewport.Width = width
	m.viewport.Height = height
	m.Render()
}

func (m *Model) SetHabits(habits []models.Habit) {
	m.summary = stats.Compute(habits)
	m.Render()
}

func (m Model) Summary() stats.Summary {
	return m.summary
}

func (m *Model) Render() {
	s := m.summary
	if s.Total == 0 {
		m.viewport.SetContent(mutedStyle.Render("No habits yet."))
		return
	}

	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Habits", fmt.Sprint(s.Total))
	row("Completed", fmt.Sprintf("%d (%d%%)", s.Completed, s.CompletionRate))
	if s.LongestStreak > 0 {
		row("Longest streak", fmt.Sprintf("%d (%s)", s.LongestStreak, s.LongestStreakTitle))
	} else {
		row("Longest streak", "0")
	}
	row("Total streaks", fmt.Sprint(s.TotalStreaks))

	for _, g := range s.Groups {
		b.WriteString(groupStyle.Render(fmt.Sprintf("%s (%d)", stats.Label(g.Frequency), len(g.Habits))) + "\n")
		for _, h := range g.Habits {
			mark := "○"
			if h.Completed {
				mark = "✓"
			}
			fmt.Fprintf(&b, "  %s %s %s\n", mark, h.Title, mutedStyle.Render(fmt.Sprintf("streak %d", h.Streak)))
		}
	}
	m.viewport.SetContent(b.String())
}
