package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/coordinator/internal/scheduler"
	"github.com/aristath/coordinator/internal/types"
)

// TaskFormModel manages the new-task form overlay.
type TaskFormModel struct {
	form    *huh.Form
	targets []*types.Instance
	width   int
	height  int
	visible bool

	// Huh binds to these through pointers, so they live behind one
	// that survives copies of the model.
	fields *taskFields
}

// taskFields holds the form field bindings (strings for Huh).
type taskFields struct {
	taskType     string
	priority     string
	description  string
	dependencies string
	target       string
}

// NewTaskFormModel creates a hidden task form.
func NewTaskFormModel() TaskFormModel {
	m := TaskFormModel{}
	m.reset()
	return m
}

func (m *TaskFormModel) reset() {
	m.fields = &taskFields{
		taskType: string(types.TaskFeatureImplementation),
		priority: types.PriorityMedium.String(),
	}
	m.buildForm()
}

// buildForm constructs the Huh form for a new task.
func (m *TaskFormModel) buildForm() {
	f := m.fields

	typeOptions := make([]huh.Option[string], 0, len(types.AllTaskTypes))
	for _, t := range types.AllTaskTypes {
		typeOptions = append(typeOptions, huh.NewOption(string(t), string(t)))
	}

	priorityOptions := make([]huh.Option[string], 0, len(types.DrainOrder))
	for _, p := range types.DrainOrder {
		priorityOptions = append(priorityOptions, huh.NewOption(p.String(), p.String()))
	}

	targetOptions := []huh.Option[string]{huh.NewOption("Any available instance", "")}
	for _, inst := range m.targets {
		label := fmt.Sprintf("%s (%s, %s)", instanceLabel(inst), inst.Role, inst.Status)
		targetOptions = append(targetOptions, huh.NewOption(label, inst.ID))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("taskType").
				Title("Task Type").
				Options(typeOptions...).
				Value(&f.taskType),

			huh.NewSelect[string]().
				Key("priority").
				Title("Priority").
				Options(priorityOptions...).
				Value(&f.priority),
		).Title("Task"),

		huh.NewGroup(
			huh.NewText().
				Key("description").
				Title("Description").
				Value(&f.description).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("description is required")
					}
					return nil
				}),

			huh.NewInput().
				Key("dependencies").
				Title("Dependencies").
				Description("Comma-separated task ids (advisory)").
				Value(&f.dependencies),
		).Title("Details"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("target").
				Title("Assign To").
				Options(targetOptions...).
				Value(&f.target),
		).Title("Routing"),
	)
}

// Open shows a fresh form offering targets as explicit assignees.
func (m *TaskFormModel) Open(targets []*types.Instance) tea.Cmd {
	m.targets = targets
	m.reset()
	m.visible = true
	if m.width > 0 {
		m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
	}
	return m.form.Init()
}

// Close hides the form, discarding its input.
func (m *TaskFormModel) Close() {
	m.visible = false
}

// Update handles messages for the form. It returns non-nil params once
// the form has been completed.
func (m TaskFormModel) Update(msg tea.Msg) (TaskFormModel, *scheduler.TaskParams, tea.Cmd) {
	if !m.visible {
		return m, nil, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.visible = false
		p, err := m.params()
		if err != nil {
			return m, nil, cmd
		}
		return m, &p, cmd
	case huh.StateAborted:
		m.visible = false
	}

	return m, nil, cmd
}

// params converts the form fields into task parameters.
func (m TaskFormModel) params() (scheduler.TaskParams, error) {
	f := m.fields
	tt, err := types.ParseTaskType(f.taskType)
	if err != nil {
		return scheduler.TaskParams{}, err
	}
	prio, err := types.ParsePriority(f.priority)
	if err != nil {
		return scheduler.TaskParams{}, err
	}

	var deps []string
	for _, d := range strings.Split(f.dependencies, ",") {
		if d = strings.TrimSpace(d); d != "" {
			deps = append(deps, d)
		}
	}

	return scheduler.TaskParams{
		TaskType:     tt,
		Description:  strings.TrimSpace(f.description),
		Priority:     prio,
		Dependencies: deps,
		Target:       f.target,
	}, nil
}

// View renders the form.
func (m TaskFormModel) View() string {
	if !m.visible {
		return ""
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("+ New Task")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(m.form.View()))
}

// SetSize updates the dimensions of the form.
func (m *TaskFormModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// IsVisible reports whether the form is open.
func (m TaskFormModel) IsVisible() bool {
	return m.visible
}
