// Package tui renders a live dashboard over the scheduler: aggregate
// counters, the worker pool, and a scrolling event tail.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/taskwell/taskwell/internal/events"
	"github.com/taskwell/taskwell/internal/scheduler"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneWorkers PaneID = iota
	PaneEvents
)

// refreshMsg triggers a periodic pull of scheduler state.
type refreshMsg struct{}

const refreshInterval = time.Second

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	workerPane  WorkerPaneModel
	eventPane   EventPaneModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	sched       *scheduler.Scheduler
	status      scheduler.SystemStatus
	width       int
	height      int
	quitting    bool
}

// New creates the dashboard model. It subscribes to the bus firehose and
// pulls worker and counter snapshots from the scheduler on a timer.
func New(sched *scheduler.Scheduler, bus *events.Bus) Model {
	return Model{
		workerPane:  NewWorkerPaneModel(),
		eventPane:   NewEventPaneModel(),
		focusedPane: PaneWorkers,
		eventSub:    bus.SubscribeAll(256),
		sched:       sched,
	}
}

// Init starts the event wait and the refresh timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), scheduleRefresh())
}

// waitForEvent returns a command that waits for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneWorkers
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneEvents
			m.updateFocusStates()

		default:
			switch m.focusedPane {
			case PaneWorkers:
				var cmd tea.Cmd
				m.workerPane, cmd = m.workerPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneEvents:
				var cmd tea.Cmd
				m.eventPane, cmd = m.eventPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case refreshMsg:
		m.status = m.sched.SystemStatus()
		m.workerPane.SetWorkers(m.sched.Workers())
		cmds = append(cmds, scheduleRefresh())

	case events.Event:
		m.eventPane.Append(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	header := m.headerView()
	left := m.workerPane.View()
	right := m.eventPane.View()
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	return lipgloss.JoinVertical(lipgloss.Left, header, mainContent, HelpView())
}

func (m Model) headerView() string {
	s := m.status
	return StyleTitle.Render("taskwell") + "  " + StyleCounter.Render(fmt.Sprintf(
		"pending %d | in progress %d | completed %d | failed %d | cancelled %d | workers %d",
		s.Pending, s.InProgress, s.Completed, s.Failed, s.Cancelled, s.TotalWorkers))
}

// computeLayout splits the screen: workers left, events right.
func (m *Model) computeLayout() {
	availableHeight := m.height - 2 // header and help bar
	leftWidth := (m.width * 40) / 100
	rightWidth := m.width - leftWidth

	m.workerPane.SetSize(leftWidth, availableHeight)
	m.eventPane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.workerPane.SetFocused(m.focusedPane == PaneWorkers)
	m.eventPane.SetFocused(m.focusedPane == PaneEvents)
}
