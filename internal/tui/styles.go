package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/coordinator/internal/types"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// StyleSelected highlights the selected list row.
var StyleSelected = lipgloss.NewStyle().
	Background(lipgloss.Color("62")).
	Foreground(lipgloss.Color("0"))

// InstanceStatusIcon returns a styled indicator for an instance status.
func InstanceStatusIcon(s types.InstanceStatus) string {
	switch s {
	case types.InstanceWorking:
		return StyleStatusRunning.Render("●")
	case types.InstanceIdle:
		return StyleStatusComplete.Render("○")
	case types.InstanceError:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("-")
	}
}

// TaskStatusIcon returns a styled indicator for a task status.
func TaskStatusIcon(s types.TaskStatus) string {
	switch s {
	case types.TaskInProgress:
		return StyleStatusRunning.Render("●")
	case types.TaskCompleted:
		return StyleStatusComplete.Render("✓")
	case types.TaskFailed:
		return StyleStatusFailed.Render("✗")
	case types.TaskCancelled:
		return StyleStatusPending.Render("-")
	default:
		return StyleStatusPending.Render("○")
	}
}
