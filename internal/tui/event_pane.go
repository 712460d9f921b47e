package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskwell/taskwell/internal/events"
)

const maxEventLines = 200

// EventPaneModel renders a scrollable tail of scheduler events.
type EventPaneModel struct {
	lines    []string
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewEventPaneModel creates an empty event log pane.
func NewEventPaneModel() EventPaneModel {
	return EventPaneModel{viewport: viewport.New(0, 0)}
}

// SetSize sets the pane dimensions and resizes the viewport.
func (m *EventPaneModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 2
	m.viewport.Height = height - 3 // border plus title line
	m.refresh()
}

// SetFocused sets the focus state.
func (m *EventPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// Append adds one event to the tail, evicting the oldest past the cap.
func (m *EventPaneModel) Append(ev events.Event) {
	m.lines = append(m.lines, formatEvent(ev))
	if len(m.lines) > maxEventLines {
		m.lines = m.lines[len(m.lines)-maxEventLines:]
	}
	m.refresh()
}

func (m *EventPaneModel) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// Update delegates scrolling keys to the viewport.
func (m EventPaneModel) Update(msg tea.Msg) (EventPaneModel, tea.Cmd) {
	if _, ok := msg.(tea.KeyMsg); ok && !m.focused {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the event log.
func (m EventPaneModel) View() string {
	content := StyleTitle.Render("Events") + "\n" + m.viewport.View()
	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.Width(m.width - 2).Height(m.height - 2).Render(content)
}

func formatEvent(ev events.Event) string {
	switch e := ev.(type) {
	case events.TaskSubmittedEvent:
		return fmt.Sprintf("%s submitted  %s (%s, %s)", stamp(e.Timestamp), short(e.ID), e.Name, e.Priority)
	case events.TaskClaimedEvent:
		return fmt.Sprintf("%s claimed    %s by %s", stamp(e.Timestamp), short(e.ID), e.WorkerID)
	case events.TaskProgressEvent:
		return fmt.Sprintf("%s progress   %s %d%% %s", stamp(e.Timestamp), short(e.ID), e.Percent, e.Note)
	case events.TaskCompletedEvent:
		return fmt.Sprintf("%s completed  %s by %s", stamp(e.Timestamp), short(e.ID), e.WorkerID)
	case events.TaskFailedEvent:
		return fmt.Sprintf("%s failed     %s after %d retries: %s", stamp(e.Timestamp), short(e.ID), e.Retries, e.Reason)
	case events.TaskRequeuedEvent:
		return fmt.Sprintf("%s requeued   %s (%s)", stamp(e.Timestamp), short(e.ID), e.Cause)
	case events.TaskCancelledEvent:
		verb := "cancel req"
		if e.Acknowledged {
			verb = "cancelled "
		}
		return fmt.Sprintf("%s %s %s", stamp(e.Timestamp), verb, short(e.ID))
	case events.WorkerRegisteredEvent:
		return fmt.Sprintf("%s worker+    %s (%s)", stamp(e.Timestamp), e.ID, strings.Join(e.Capabilities, ","))
	case events.WorkerDeregisteredEvent:
		return fmt.Sprintf("%s worker-    %s, requeued %d", stamp(e.Timestamp), e.ID, len(e.Requeued))
	case events.WorkerOfflineEvent:
		return fmt.Sprintf("%s offline    %s, requeued %d", stamp(e.Timestamp), e.ID, len(e.Requeued))
	case events.ScaleDecisionEvent:
		return fmt.Sprintf("%s scale      %s (pending=%d workers=%d)", stamp(e.Timestamp), e.Decision, e.Pending, e.Workers)
	default:
		return fmt.Sprintf("event %s %s", ev.EventType(), ev.EntityID())
	}
}

func stamp(t time.Time) string {
	return t.Format("15:04:05")
}

// short truncates uuid-length ids for display.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
