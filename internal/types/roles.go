package types

import (
	"fmt"
	"strings"
)

// Role is a fixed worker category.
type Role string

const (
	RoleProjectManager Role = "project_manager"
	RoleSupervisor     Role = "supervisor"
	RoleDeveloper      Role = "developer"
	RoleTester         Role = "tester"
	RoleReviewer       Role = "reviewer"
	RoleResearcher     Role = "researcher"
)

// AllRoles lists every role in declaration order.
var AllRoles = []Role{
	RoleProjectManager,
	RoleSupervisor,
	RoleDeveloper,
	RoleTester,
	RoleReviewer,
	RoleResearcher,
}

// ParseRole converts a wire name into a Role.
func ParseRole(s string) (Role, error) {
	if _, ok := roleTable[Role(s)]; ok {
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// roleSpec is the static description of a role.
type roleSpec struct {
	capabilities []string
	name         string
	languages    []string
	maxTasks     int
	timeout      int // seconds, 0 keeps the default
	rolePrompt   string
	context      string // prompt preamble; %s verbs get name and languages
}

const workspaceEnv = "CLAUDE_WORKSPACE"

var roleTable = map[Role]roleSpec{
	RoleProjectManager: {
		capabilities: []string{"task-planning", "project-management", "requirement-analysis", "task-breakdown", "team-coordination", "strategic-planning"},
		name:         "Project Manager",
		languages:    []string{"markdown", "yaml", "json"},
		maxTasks:     5,
		timeout:      600,
		rolePrompt:   "You are a project manager working on the current project directory. Take high-level requirements and break them down into specific, actionable tasks for team members. Assign tasks to the most appropriate team members based on their roles and expertise. Focus on project planning, task coordination, and ensuring deliverables are met. Auto-accept and implement all changes and suggestions.",
		context:      "You are a Project Manager responsible for planning, coordinating, and breaking down high-level requirements into specific tasks. Analyze the user request and create a detailed project plan.",
	},
	RoleSupervisor: {
		capabilities: []string{"architecture", "project-management", "code-review", "typescript"},
		name:         "Team Supervisor",
		languages:    []string{"rust", "typescript", "python"},
		maxTasks:     3,
		rolePrompt:   "You are a team supervisor working on the current project directory. Focus on architecture, code review, and coordination. Auto-accept and implement all changes and suggestions.",
		context:      "You are a Team Supervisor responsible for architecture decisions, code review coordination, and ensuring best practices across the development team.",
	},
	RoleDeveloper: {
		capabilities: []string{"typescript", "rust", "node.js", "programming"},
		name:         "Developer",
		languages:    []string{"rust", "typescript"},
		maxTasks:     2,
		rolePrompt:   "You are a developer working on the current project directory. Focus on implementing features and fixing bugs. Auto-accept and implement all changes and suggestions.",
		context:      "You are a %s specializing in %s. Focus on implementing features, fixing bugs, and writing clean, maintainable code.",
	},
	RoleTester: {
		capabilities: []string{"testing", "jest", "integration-testing", "quality-assurance"},
		name:         "QA Tester",
		languages:    []string{"javascript", "typescript"},
		maxTasks:     2,
		rolePrompt:   "You are a QA tester working on the current project directory. Focus on writing tests and ensuring quality. Auto-accept and implement all changes and suggestions.",
		context:      "You are a QA Tester responsible for creating comprehensive tests, finding bugs, and ensuring code quality and reliability.",
	},
	RoleReviewer: {
		capabilities: []string{"code-review", "quality-assurance", "security", "best-practices"},
		name:         "Code Reviewer",
		languages:    []string{"rust", "typescript", "python"},
		maxTasks:     1,
		rolePrompt:   "You are a code reviewer working on the current project directory. Focus on security, best practices, and code quality. Auto-accept and implement suggested changes.",
		context:      "You are a Code Reviewer focused on security, performance, best practices, and maintaining code quality standards.",
	},
	RoleResearcher: {
		capabilities: []string{"analysis", "documentation", "research", "optimization"},
		name:         "Researcher",
		languages:    []string{"markdown", "python"},
		maxTasks:     1,
		timeout:      600,
		rolePrompt:   "You are a researcher working on the current project directory. Focus on analysis, documentation, and investigation. Auto-accept and implement all changes and suggestions.",
		context:      "You are a Researcher responsible for investigating technologies, analyzing requirements, and providing technical recommendations.",
	},
}

var preferredRoles = map[TaskType][]Role{
	TaskProjectPlanning:       {RoleProjectManager, RoleSupervisor},
	TaskCodeReview:            {RoleReviewer, RoleSupervisor},
	TaskTestCreation:          {RoleTester, RoleDeveloper},
	TaskResearch:              {RoleResearcher, RoleSupervisor},
	TaskFeatureImplementation: {RoleDeveloper, RoleSupervisor},
	TaskBugFix:                {RoleDeveloper, RoleSupervisor},
	TaskDocumentation:         {RoleResearcher, RoleDeveloper},
}

// Capabilities returns the fixed capability tags for the role.
// The returned slice is a fresh copy.
func (r Role) Capabilities() []string {
	spec, ok := roleTable[r]
	if !ok {
		return nil
	}
	return append([]string(nil), spec.capabilities...)
}

// ConfigTemplate returns the role's default instance configuration.
func (r Role) ConfigTemplate() InstanceConfig {
	cfg := DefaultInstanceConfig()
	spec, ok := roleTable[r]
	if !ok {
		return cfg
	}
	cfg.Name = spec.name
	cfg.PreferredLanguages = append([]string(nil), spec.languages...)
	cfg.MaxConcurrentTasks = spec.maxTasks
	if spec.timeout > 0 {
		cfg.TimeoutSeconds = spec.timeout
	}
	cfg.CustomPrompts["role_prompt"] = spec.rolePrompt
	cfg.EnvironmentVars[workspaceEnv] = "."
	return cfg
}

// Context renders the prompt preamble for an instance with this role.
// Only the developer preamble is parameterised by the instance config.
func (r Role) Context(cfg InstanceConfig) string {
	spec, ok := roleTable[r]
	if !ok {
		return ""
	}
	if strings.Contains(spec.context, "%s") {
		return fmt.Sprintf(spec.context, cfg.Name, strings.Join(cfg.PreferredLanguages, ", "))
	}
	return spec.context
}

// DisplayName is the human-readable role label.
func (r Role) DisplayName() string {
	if spec, ok := roleTable[r]; ok {
		return spec.name
	}
	return string(r)
}
