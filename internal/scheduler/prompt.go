package scheduler

import (
	"fmt"
	"strings"

	"github.com/aristath/coordinator/internal/types"
)

// RoleContextKey in an instance's custom prompts replaces the role's
// built-in prompt preamble.
const RoleContextKey = "role_context"

const closingInstruction = "Please complete this task and provide a detailed summary of what you accomplished."

// BuildPrompt renders the text sent to the agent for task on inst.
func BuildPrompt(inst *types.Instance, task *types.Task) string {
	roleContext := inst.Role.Context(inst.Config)
	if override := strings.TrimSpace(inst.Config.CustomPrompts[RoleContextKey]); override != "" {
		roleContext = override
	}
	return fmt.Sprintf("%s\n\nTask: %s\n\n%s", roleContext, task.Description, closingInstruction)
}
