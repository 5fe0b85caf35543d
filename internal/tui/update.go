package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/tui/components/habitlist"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		h, v := docStyle.GetFrameSize()
		m.habitList.SetSize(msg.Width-h, msg.Height-v-4)
		m.statsView.SetSize(msg.Width-h, msg.Height-v-4)
		return m, nil

	case tea.FocusMsg:
		// Resets that came due while the terminal was in the background
		// arrive through the subscription.
		m.repo.Resume()
		return m, nil

	case habitsUpdatedMsg:
		m.setHabits(msg)
		return m, waitForUpdate(m.updates)
	}

	switch m.state {
	case StateForm:
		return m.updateForm(msg)
	case StateConfirmDelete:
		return m.updateConfirmDelete(msg)
	}

	switch msg := msg.(type) {
	case habitlist.AddHabitMsg:
		m.editingID = ""
		m.habitForm = &HabitForm{
			Frequency: m.opts.DefaultFrequency,
			Color:     m.opts.DefaultColor,
		}
		return m.openForm()

	case habitlist.EditHabitMsg:
		m.editingID = msg.Habit.ID
		m.habitForm = &HabitForm{
			Title:       msg.Habit.Title,
			Description: msg.Habit.Description,
			Frequency:   msg.Habit.Frequency,
			Color:       msg.Habit.Color,
		}
		return m.openForm()

	case habitlist.DeleteHabitMsg:
		h := msg.Habit
		m.deleting = &h
		m.previousState = m.state
		m.state = StateConfirmDelete
		return m, nil

	case habitlist.ToggleHabitMsg:
		if _, err := m.repo.Toggle(msg.ID); err != nil {
			m.fail("toggle", err)
		} else {
			m.status = ""
		}
		m.setHabits(m.repo.List())
		return m, nil

	case tea.KeyMsg:
		if m.state == StateHabits && m.habitList.Filtering() {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Tab):
			m.state = (m.state + 1) % tabCount
			return m, nil
		case key.Matches(msg, m.keys.ShiftTab):
			m.state = (m.state - 1 + tabCount) % tabCount
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.state {
	case StateHabits:
		m.habitList, cmd = m.habitList.Update(msg)
	case StateStats:
		m.statsView, cmd = m.statsView.Update(msg)
	}
	return m, cmd
}

func (m Model) openForm() (tea.Model, tea.Cmd) {
	m.form = NewHabitForm(m.habitForm)
	m.previousState = m.state
	m.state = StateForm
	return m, m.form.Init()
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.state = m.previousState
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		if err := m.saveForm(); err != nil {
			// Stay in the form so the user can fix the input or cancel.
			m.fail("save", err)
			m.form.State = huh.StateNormal
			return m, cmd
		}
		m.state = m.previousState
	case huh.StateAborted:
		m.state = m.previousState
	}
	return m, cmd
}

// saveForm creates or updates a habit from the form values.
func (m *Model) saveForm() error {
	fm := m.habitForm
	if m.editingID == "" {
		if _, err := m.repo.Create(fm.Title, fm.Description, fm.Frequency, fm.Color); err != nil {
			return err
		}
	} else {
		h, ok := m.repo.Get(m.editingID)
		if !ok {
			return fmt.Errorf("habit %s no longer exists", m.editingID)
		}
		if p := fm.patch(h); !p.IsEmpty() {
			if _, err := m.repo.Update(m.editingID, p); err != nil {
				return err
			}
		}
	}
	m.status = ""
	m.setHabits(m.repo.List())
	return nil
}

func (m Model) updateConfirmDelete(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Confirm):
		if _, err := m.repo.Delete(m.deleting.ID); err != nil {
			m.fail("delete", err)
		} else {
			m.status = ""
		}
		m.setHabits(m.repo.List())
	case key.Matches(keyMsg, m.keys.Cancel):
	default:
		return m, nil
	}

	m.deleting = nil
	m.state = m.previousState
	return m, nil
}

func (m *Model) fail(action string, err error) {
	logger.Error("TUI action failed", "action", action, "error", err)
	m.status = fmt.Sprintf("Could not %s: %v", action, err)
}
