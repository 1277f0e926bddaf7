package config

import (
	"fmt"
	"maps"

	"github.com/aristath/coordinator/internal/types"
)

// InstanceConfig returns the configuration for a new instance of role: the
// role template, the configured agent path, then any override for the role.
func (c *Config) InstanceConfig(role types.Role) types.InstanceConfig {
	cfg := role.ConfigTemplate()
	if c.Agent.Path != "" {
		cfg.ClaudeCodePath = c.Agent.Path
	}

	o, ok := c.Roles[string(role)]
	if !ok {
		return cfg
	}
	if o.ClaudeCodePath != "" {
		cfg.ClaudeCodePath = o.ClaudeCodePath
	}
	if o.WorkspaceDir != "" {
		cfg.WorkspaceDir = o.WorkspaceDir
	}
	if o.MaxConcurrentTasks != nil {
		cfg.MaxConcurrentTasks = *o.MaxConcurrentTasks
	}
	if o.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *o.TimeoutSeconds
	}
	maps.Copy(cfg.CustomPrompts, o.CustomPrompts)
	maps.Copy(cfg.EnvironmentVars, o.EnvironmentVars)
	return cfg
}

// MemberConfig returns the configuration for a team member: the role's
// instance config with the member's name, languages and role prompt.
func (c *Config) MemberConfig(m TeamMember) (types.Role, types.InstanceConfig, error) {
	role, err := types.ParseRole(m.Role)
	if err != nil {
		return "", types.InstanceConfig{}, err
	}

	cfg := c.InstanceConfig(role)
	if m.Name != "" {
		cfg.Name = m.Name
	}
	if len(m.PreferredLanguages) > 0 {
		cfg.PreferredLanguages = append([]string(nil), m.PreferredLanguages...)
	}
	if m.RolePrompt != "" {
		cfg.CustomPrompts["role_prompt"] = m.RolePrompt
	}
	if err := cfg.Validate(); err != nil {
		return "", types.InstanceConfig{}, fmt.Errorf("team member %q: %w", cfg.Name, err)
	}
	return role, cfg, nil
}
