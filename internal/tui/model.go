// Package tui is the interactive terminal front end. It renders the
// repository's collection and reflects every change the repository
// publishes, including resets applied by the poller.
package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/repository"
	"github.com/julianstephens/habitual/internal/tui/components/habitlist"
	"github.com/julianstephens/habitual/internal/tui/components/statsview"
)

type SessionState int

const (
	StateHabits SessionState = iota
	StateStats
	StateForm
	StateConfirmDelete
)

// tabCount is the number of states reachable with tab.
const tabCount = 2

// Options carries the defaults offered when adding a habit.
type Options struct {
	DefaultFrequency models.Frequency
	DefaultColor     string
}

// habitsUpdatedMsg delivers a snapshot published by the repository.
type habitsUpdatedMsg []models.Habit

type Model struct {
	repo        *repository.Repository
	opts        Options
	updates     chan []models.Habit
	unsubscribe func()

	state         SessionState
	previousState SessionState
	keys          KeyMap
	help          help.Model
	habitList     habitlist.Model
	statsView     statsview.Model

	form      *huh.Form
	habitForm *HabitForm
	editingID string
	deleting  *models.Habit

	status   string
	quitting bool
	width    int
	height   int
}

// NewModel subscribes to repo. The subscription lives until Close.
func NewModel(repo *repository.Repository, opts Options) Model {
	if !opts.DefaultFrequency.Valid() {
		opts.DefaultFrequency = models.Frequency(constants.DefaultFrequency)
	}
	if opts.DefaultColor == "" {
		opts.DefaultColor = constants.DefaultColor
	}

	habits := repo.List()
	sv := statsview.New(0, 0)
	sv.SetHabits(habits)

	m := Model{
		repo:      repo,
		opts:      opts,
		updates:   make(chan []models.Habit, 1),
		state:     StateHabits,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		habitList: habitlist.New(habits, 0, 0),
		statsView: sv,
	}
	updates := m.updates
	m.unsubscribe = repo.Subscribe(func(habits []models.Habit) {
		offer(updates, habits)
	})
	return m
}

// offer replaces any snapshot the UI has not picked up yet, so the listener
// never blocks the repository.
func offer(ch chan []models.Habit, habits []models.Habit) {
	for {
		select {
		case ch <- habits:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func waitForUpdate(ch <-chan []models.Habit) tea.Cmd {
	return func() tea.Msg {
		return habitsUpdatedMsg(<-ch)
	}
}

// Close drops the repository subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) State() SessionState {
	return m.state
}

func (m Model) ShortHelp() []key.Binding {
	keys := []key.Binding{m.keys.Tab, m.keys.Quit, m.keys.Help}
	if m.state == StateHabits {
		keys = append(keys, m.keys.Toggle, m.keys.Add, m.keys.Edit, m.keys.Delete)
	}
	return keys
}

func (m Model) FullHelp() [][]key.Binding {
	global := []key.Binding{m.keys.Tab, m.keys.ShiftTab, m.keys.Quit, m.keys.Help}
	navigation := []key.Binding{m.keys.Up, m.keys.Down}

	var actions []key.Binding
	if m.state == StateHabits {
		actions = []key.Binding{m.keys.Toggle, m.keys.Add, m.keys.Edit, m.keys.Delete}
	}
	return [][]key.Binding{global, navigation, actions}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

// setHabits refreshes every view from a snapshot.
func (m *Model) setHabits(habits []models.Habit) {
	m.habitList.SetHabits(habits)
	m.statsView.SetHabits(habits)
}
