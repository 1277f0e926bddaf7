// Package tui is the terminal dashboard: it follows the coordinator's event
// stream and submits new tasks.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/coordinator/internal/events"
	"github.com/aristath/coordinator/internal/scheduler"
	"github.com/aristath/coordinator/internal/types"
)

// submitTimeout bounds a task submission made from the form.
const submitTimeout = 10 * time.Second

// Coordinator is the part of the coordinator the dashboard drives.
type Coordinator interface {
	Instances() []*types.Instance
	Tasks() []*types.Task
	SubmitTask(ctx context.Context, p scheduler.TaskParams) (*types.Task, error)
}

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneInstances PaneID = iota
	PaneTasks
	paneCount
)

// taskSubmittedMsg carries the outcome of a form submission.
type taskSubmittedMsg struct {
	task *types.Task
	err  error
}

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	coord        Coordinator
	instancePane InstancePaneModel
	taskPane     TaskPaneModel
	taskForm     TaskFormModel
	focusedPane  PaneID
	sub          *events.Subscription
	status       string
	width        int
	height       int
	quitting     bool
}

// New creates the dashboard model. It subscribes to every topic before
// taking the initial snapshot so no event falls between the two.
func New(coord Coordinator, bus *events.EventBus) Model {
	m := Model{
		coord:        coord,
		instancePane: NewInstancePaneModel(),
		taskPane:     NewTaskPaneModel(),
		taskForm:     NewTaskFormModel(),
		focusedPane:  PaneInstances,
		sub:          bus.Subscribe(),
	}
	m.instancePane.Seed(coord.Instances())
	m.taskPane.Seed(coord.Tasks())
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.sub.C())
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

func submitTask(coord Coordinator, p scheduler.TaskParams) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		task, err := coord.SubmitTask(ctx, p)
		return taskSubmittedMsg{task: task, err: err}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The form is modal while open.
		if m.taskForm.IsVisible() {
			if msg.String() == KeyEsc {
				m.taskForm.Close()
				m.status = "New task cancelled"
				return m, nil
			}
			var (
				params *scheduler.TaskParams
				cmd    tea.Cmd
			)
			m.taskForm, params, cmd = m.taskForm.Update(msg)
			cmds = append(cmds, cmd)
			if params != nil {
				m.status = "Submitting task..."
				cmds = append(cmds, submitTask(m.coord, *params))
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			m.sub.Close()
			return m, tea.Quit

		case KeyNewTask:
			cmds = append(cmds, m.taskForm.Open(m.instancePane.Options()))

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneInstances
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		default:
			var cmd tea.Cmd
			switch m.focusedPane {
			case PaneInstances:
				m.instancePane, cmd = m.instancePane.Update(msg)
			case PaneTasks:
				m.taskPane, cmd = m.taskPane.Update(msg)
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.taskForm.SetSize(msg.Width, msg.Height)

	case taskSubmittedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Submit failed: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("Task %s %s", shortID(msg.task.ID), msg.task.Status)
		}
		m.taskPane, _ = m.taskPane.Update(msg)

	case tickMsg:
		var cmd tea.Cmd
		m.instancePane, cmd = m.instancePane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		var cmd tea.Cmd
		m.instancePane, cmd = m.instancePane.Update(msg)
		cmds = append(cmds, cmd)
		m.taskPane, _ = m.taskPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.sub.C()))

	default:
		// Form internals (cursor blink and the like).
		if m.taskForm.IsVisible() {
			var cmd tea.Cmd
			m.taskForm, _, cmd = m.taskForm.Update(msg)
			cmds = append(cmds, cmd)
		}
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

	if m.taskForm.IsVisible() {
		return m.taskForm.View()
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top, m.instancePane.View(), m.taskPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, panes, StyleHelp.Render(m.status), HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	availableHeight := m.height - 2 // status line and help bar

	m.instancePane.SetSize(leftWidth, availableHeight)
	m.taskPane.SetSize(m.width-leftWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.instancePane.SetFocused(m.focusedPane == PaneInstances)
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
}
