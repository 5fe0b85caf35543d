package habitlist

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitual/internal/models"
)

type AddHabitMsg struct{}

type EditHabitMsg struct {
	Habit models.Habit
}

type DeleteHabitMsg struct {
	Habit models.Habit
}

type ToggleHabitMsg struct {
	ID string
}

type Item struct {
	Habit models.Habit
}

// Swatch renders a colored dot for the habit's accent color.
func Swatch(color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
}

func (i Item) Title() string {
	mark := "○"
	if i.Habit.Completed {
		mark = "✓"
	}
	return fmt.Sprintf("%s %s %s", Swatch(i.Habit.Color), mark, i.Habit.Title)
}

func (i Item) Description() string {
	desc := fmt.Sprintf("%s | streak %d", i.Habit.Frequency, i.Habit.Streak)
	if i.Habit.Description != "" {
		desc += " | " + i.Habit.Description
	}
	return desc
}

func (i Item) FilterValue() string { return i.Habit.Title }

type KeyMap struct {
	Toggle key.Binding
	Add    key.Binding
	Edit   key.Binding
	Delete key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "space", "enter", "x"),
			key.WithHelp("space", "toggle done"),
		),
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
	}
}

type Model struct {
	list list.Model
	keys KeyMap
}

func New(habits []models.Habit, width, height int) Model {
	l := list.New(items(habits), list.NewDefaultDelegate(), width, height)
	l.Title = "Habits"
	l.SetShowTitle(false)
	l.SetShowHelp(false)

	keys := DefaultKeyMap()
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.Toggle, keys.Add, keys.Edit, keys.Delete}
	}
	l.AdditionalFullHelpKeys = func() []key.Binding {
		return []key.Binding{keys.Toggle, keys.Add, keys.Edit, keys.Delete}
	}

	return Model{list: l, keys: keys}
}

func items(habits []models.Habit) []list.Item {
	out := make([]list.Item, len(habits))
	for i, h := range habits {
		out[i] = Item{Habit: h}
	}
	return out
}

// SetHabits replaces the rows, keeping the cursor on the same habit when it
// still exists.
func (m *Model) SetHabits(habits []models.Habit) {
	selected, hadSelection := m.Selected()
	m.list.SetItems(items(habits))
	if !hadSelection {
		return
	}
	for i, h := range habits {
		if h.ID == selected.ID {
			m.list.Select(i)
			return
		}
	}
}

// Selected returns the habit under the cursor.
func (m Model) Selected() (models.Habit, bool) {
	if i, ok := m.list.SelectedItem().(Item); ok {
		return i.Habit, true
	}
	return models.Habit{}, false
}

// Filtering reports whether the user is typing a filter, in which case
// letter keys belong to the list.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) Len() int {
	return len(m.list.Items())
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Filtering() {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Add):
			return m, func() tea.Msg { return AddHabitMsg{} }
		case key.Matches(msg, m.keys.Toggle):
			if h, ok := m.Selected(); ok {
				return m, func() tea.Msg { return ToggleHabitMsg{ID: h.ID} }
			}
			return m, nil
		case key.Matches(msg, m.keys.Edit):
			if h, ok := m.Selected(); ok {
				return m, func() tea.Msg { return EditHabitMsg{Habit: h} }
			}
			return m, nil
		case key.Matches(msg, m.keys.Delete):
			if h, ok := m.Selected(); ok {
				return m, func() tea.Msg { return DeleteHabitMsg{Habit: h} }
			}
			return m, nil
		}
	}

	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if len(m.list.Items()) == 0 && !m.Filtering() {
		return "\n  No habits yet.\n  Press 'a' to add one."
	}
	return m.list.View()
}

func (m *Model) SetSize(width, height int) {
	m.list.SetSize(width, height)
}
