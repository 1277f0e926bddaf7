package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/coordinator/internal/events"
	"github.com/aristath/coordinator/internal/types"
)

// TaskPaneModel shows task progress and the task list.
type TaskPaneModel struct {
	tasks       map[string]*types.Task
	order       []string
	selectedIdx int
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{tasks: make(map[string]*types.Task)}
}

// Seed loads a snapshot of the task table.
func (m *TaskPaneModel) Seed(list []*types.Task) {
	for _, t := range list {
		m.upsert(t)
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		}

	case events.TaskAssignedEvent:
		m.upsert(msg.Task)

	case events.TaskCompletedEvent:
		m.upsert(msg.Task)

	case taskSubmittedMsg:
		if msg.err == nil {
			m.upsert(msg.task)
		}
	}

	return m, nil
}

func (m *TaskPaneModel) upsert(t *types.Task) {
	if t == nil {
		return
	}
	if _, ok := m.tasks[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	m.tasks[t.ID] = t.Clone()
}

// Counts returns the number of tracked tasks per status.
func (m TaskPaneModel) Counts() map[types.TaskStatus]int {
	counts := make(map[types.TaskStatus]int)
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	return counts
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	c := m.Counts()
	total := len(m.tasks)
	done := c[types.TaskCompleted]
	failed := c[types.TaskFailed] + c[types.TaskCancelled]
	running := c[types.TaskInProgress]

	b.WriteString(fmt.Sprintf("Total:       %d\n", total))
	b.WriteString(fmt.Sprintf("Completed:   %s\n", StyleStatusComplete.Render(fmt.Sprint(done))))
	b.WriteString(fmt.Sprintf("In progress: %s\n", StyleStatusRunning.Render(fmt.Sprint(running))))
	b.WriteString(fmt.Sprintf("Failed:      %s\n", StyleStatusFailed.Render(fmt.Sprint(c[types.TaskFailed]))))
	b.WriteString(fmt.Sprintf("Cancelled:   %s\n", StyleStatusPending.Render(fmt.Sprint(c[types.TaskCancelled]))))
	b.WriteString(fmt.Sprintf("Pending:     %s\n", StyleStatusPending.Render(fmt.Sprint(c[types.TaskPending]))))
	b.WriteString("\n")

	if total > 0 {
		barWidth := min(m.width-14, 40)
		doneWidth := done * barWidth / total
		failedWidth := failed * barWidth / total
		runningWidth := running * barWidth / total
		pendingWidth := barWidth - doneWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, doneWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n\n", bar, done+failed, total))
	}

	// Newest first, limited to what fits under the summary.
	rows := max(m.height-16, 1)
	listWidth := max(m.width-6, 10)
	shown := 0
	for i := len(m.order) - 1; i >= 0 && shown < rows; i-- {
		t := m.tasks[m.order[i]]
		line := truncate(fmt.Sprintf("%-8s %-8s %s", shortID(t.ID), t.Priority, t.Description), listWidth-2)
		if i == len(m.order)-1-m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(TaskStatusIcon(t.Status) + " " + line)
		b.WriteString("\n")
		shown++
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
