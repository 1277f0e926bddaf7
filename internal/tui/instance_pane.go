package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/coordinator/internal/events"
	"github.com/aristath/coordinator/internal/types"
)

const instanceListWidth = 28

// maxActivityLines bounds the per-instance activity log.
const maxActivityLines = 500

// instanceState is the dashboard's view of one instance.
type instanceState struct {
	inst     *types.Instance
	activity []string
}

// InstancePaneModel shows the instance list and the selected instance's activity.
type InstancePaneModel struct {
	instances   map[string]*instanceState // instanceID -> state
	order       []string                  // creation order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewInstancePaneModel creates a new instance pane model.
func NewInstancePaneModel() InstancePaneModel {
	return InstancePaneModel{
		instances: make(map[string]*instanceState),
		viewport:  viewport.New(0, 0),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Seed loads a snapshot of the pool taken before any event arrived.
func (m *InstancePaneModel) Seed(list []*types.Instance) {
	for _, inst := range list {
		m.upsert(inst)
	}
	m.updateViewportContent()
}

// Update handles messages for the instance pane.
func (m InstancePaneModel) Update(msg tea.Msg) (InstancePaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.InstanceCreatedEvent:
		st := m.upsert(msg.Instance)
		st.log(msg.Timestamp, "created as %s", msg.Instance.Role.DisplayName())
		cmd = m.refresh(msg.Instance.ID)

	case events.InstanceTerminatedEvent:
		st := m.upsert(msg.Instance)
		st.inst.Status = types.InstanceOffline
		st.inst.CurrentTask = nil
		st.log(msg.Timestamp, "terminated")
		cmd = m.refresh(msg.Instance.ID)

	case events.InstanceErrorEvent:
		st := m.upsert(msg.Instance)
		st.log(msg.Timestamp, "error: %s", msg.Err)
		cmd = m.refresh(msg.Instance.ID)

	case events.TaskAssignedEvent:
		st, ok := m.instances[msg.Instance]
		if !ok {
			break
		}
		st.inst.Status = types.InstanceWorking
		st.inst.CurrentTask = msg.Task
		st.log(msg.Timestamp, "assigned %s task %s: %s", msg.Task.TaskType, shortID(msg.Task.ID), msg.Task.Description)
		cmd = m.refresh(msg.Instance)

	case events.TaskCompletedEvent:
		st := m.upsert(msg.Instance)
		res := msg.Result
		if res != nil && res.Output != nil && *res.Output != "" {
			st.activity = append(st.activity, strings.Split(strings.TrimRight(*res.Output, "\n"), "\n")...)
		}
		switch {
		case res != nil && res.Success:
			st.log(msg.Timestamp, "[Completed %s in %v]", shortID(msg.Task.ID), msg.Duration.Round(time.Millisecond))
		case msg.Task.Status == types.TaskCompleted:
			st.log(msg.Timestamp, "[Completed %s with non-zero exit in %v]", shortID(msg.Task.ID), msg.Duration.Round(time.Millisecond))
		default:
			reason := "unknown error"
			if res != nil && res.Error != nil {
				reason = *res.Error
			}
			st.log(msg.Timestamp, "[Failed %s: %s]", shortID(msg.Task.ID), reason)
		}
		cmd = m.refresh(msg.Instance.ID)

	case tickMsg:
		// Only the latest tick repaints.
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// upsert stores a fresh copy of inst, keeping its activity log.
func (m *InstancePaneModel) upsert(inst *types.Instance) *instanceState {
	st, ok := m.instances[inst.ID]
	if !ok {
		st = &instanceState{}
		m.instances[inst.ID] = st
		m.order = append(m.order, inst.ID)
	}
	st.inst = inst.Clone()
	return st
}

// refresh schedules a debounced repaint when id is the selected instance.
func (m *InstancePaneModel) refresh(id string) tea.Cmd {
	if m.selectedID() != id {
		return nil
	}
	m.updateTag++
	tag := m.updateTag
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

func (st *instanceState) log(at time.Time, format string, args ...any) {
	line := at.Format("15:04:05") + " " + fmt.Sprintf(format, args...)
	st.activity = append(st.activity, line)
	if n := len(st.activity); n > maxActivityLines {
		st.activity = st.activity[n-maxActivityLines:]
	}
}

// View renders the instance pane.
func (m InstancePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - instanceListWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(instanceListWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m InstancePaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Instances")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("No instances"))
	}
	for i, id := range m.order {
		inst := m.instances[id].inst
		line := fmt.Sprintf("%s %s", InstanceStatusIcon(inst.Status), truncate(instanceLabel(inst), width-3))
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

func (m InstancePaneModel) selectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *InstancePaneModel) updateViewportContent() {
	st, ok := m.instances[m.selectedID()]
	if !ok {
		m.viewport.SetContent("Waiting for instances...")
		return
	}

	inst := st.inst
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", instanceLabel(inst), inst.Role.DisplayName())
	fmt.Fprintf(&b, "id:     %s\n", inst.ID)
	fmt.Fprintf(&b, "status: %s\n", inst.Status)
	if inst.CurrentTask != nil {
		fmt.Fprintf(&b, "task:   %s %s\n", shortID(inst.CurrentTask.ID), inst.CurrentTask.TaskType)
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(st.activity, "\n"))

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *InstancePaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-instanceListWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *InstancePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *InstancePaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// Options lists instances for the task form's target picker.
func (m InstancePaneModel) Options() []*types.Instance {
	list := make([]*types.Instance, 0, len(m.order))
	for _, id := range m.order {
		if inst := m.instances[id].inst; inst.Status != types.InstanceOffline {
			list = append(list, inst)
		}
	}
	return list
}

func instanceLabel(inst *types.Instance) string {
	if inst.Config.Name != "" {
		return inst.Config.Name
	}
	return inst.Role.DisplayName()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
