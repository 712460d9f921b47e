package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/taskwell/taskwell/internal/worker"
)

// WorkerPaneModel renders the worker pool with load and liveness.
type WorkerPaneModel struct {
	workers     []*worker.Worker
	selectedIdx int
	width       int
	height      int
	focused     bool
}

// NewWorkerPaneModel creates an empty worker pane.
func NewWorkerPaneModel() WorkerPaneModel {
	return WorkerPaneModel{}
}

// SetWorkers replaces the displayed pool snapshot.
func (m *WorkerPaneModel) SetWorkers(workers []*worker.Worker) {
	m.workers = workers
	if m.selectedIdx >= len(workers) {
		m.selectedIdx = 0
	}
}

// SetSize sets the pane dimensions.
func (m *WorkerPaneModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetFocused sets the focus state.
func (m *WorkerPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// Update handles key messages for list navigation.
func (m WorkerPaneModel) Update(msg tea.Msg) (WorkerPaneModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && m.focused {
		switch key.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.workers)-1 {
				m.selectedIdx++
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		}
	}
	return m, nil
}

// View renders the worker table.
func (m WorkerPaneModel) View() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("Workers"))
	b.WriteString("\n")

	if len(m.workers) == 0 {
		b.WriteString(StyleHelp.Render("  no workers registered"))
	}

	now := time.Now()
	for i, w := range m.workers {
		cursor := "  "
		if m.focused && i == m.selectedIdx {
			cursor = "> "
		}

		status := styleForWorkerStatus(w.Status).Render(w.Status.String())
		age := now.Sub(w.LastHeartbeat).Truncate(time.Second)
		line := fmt.Sprintf("%s%-12s %-10s %d/%d slots  hb %s ago",
			cursor, w.ID, status, w.Load(), w.MaxConcurrent, age)
		b.WriteString(line)
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.Width(m.width - 2).Height(m.height - 2).Render(b.String())
}

func styleForWorkerStatus(s worker.Status) lipgloss.Style {
	switch s {
	case worker.StatusBusy:
		return StyleStatusBusy
	case worker.StatusOffline:
		return StyleStatusOffline
	default:
		return StyleStatusIdle
	}
}
