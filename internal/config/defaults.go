package config

import (
	"time"

	"github.com/aristath/coordinator/internal/types"
)

const (
	DefaultStoreURL  = "redis://localhost:6379"
	DefaultNamespace = "coordinator"
	DefaultAgentPath = "claude"
)

// DefaultConfig returns the default configuration, including the standard
// eight-member development team.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			URL:             DefaultStoreURL,
			Namespace:       DefaultNamespace,
			BreakerFailures: 5,
			BreakerTimeout:  Duration(30 * time.Second),
		},
		Agent: AgentConfig{
			Path: DefaultAgentPath,
		},
		Scheduler: SchedulerConfig{
			PollInterval:      Duration(5 * time.Second),
			ErrorBackoff:      Duration(10 * time.Second),
			MaxErrorBackoff:   Duration(2 * time.Minute),
			HeartbeatInterval: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Roles: map[string]RoleOverride{},
		Team: TeamConfig{
			Enabled: true,
			Members: DefaultTeam(),
		},
	}
}

// DefaultTeam is a project manager, a supervisor, three developers with
// different focus areas, a tester, a reviewer and a researcher.
func DefaultTeam() []TeamMember {
	return []TeamMember{
		{Role: string(types.RoleProjectManager)},
		{Role: string(types.RoleSupervisor)},
		{
			Role:               string(types.RoleDeveloper),
			Name:               "Frontend Developer",
			PreferredLanguages: []string{"typescript", "javascript", "react"},
			RolePrompt:         "You are a frontend developer working on the current project directory. Focus on UI/UX, React components, and TypeScript. Auto-accept and implement all changes and suggestions.",
		},
		{
			Role:               string(types.RoleDeveloper),
			Name:               "Backend Developer",
			PreferredLanguages: []string{"rust", "python", "sql"},
			RolePrompt:         "You are a backend developer working on the current project directory. Focus on APIs, databases, and Rust/Python services. Auto-accept and implement all changes and suggestions.",
		},
		{
			Role:               string(types.RoleDeveloper),
			Name:               "Full-Stack Developer",
			PreferredLanguages: []string{"typescript", "rust", "node.js"},
			RolePrompt:         "You are a full-stack developer working on the current project directory. Handle both frontend and backend tasks with equal expertise. Auto-accept and implement all changes and suggestions.",
		},
		{Role: string(types.RoleTester)},
		{Role: string(types.RoleReviewer)},
		{Role: string(types.RoleResearcher)},
	}
}
