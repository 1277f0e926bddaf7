package types

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// InstanceStatus is an instance's availability.
type InstanceStatus string

const (
	InstanceIdle    InstanceStatus = "idle"
	InstanceWorking InstanceStatus = "working"
	InstanceError   InstanceStatus = "error"
	InstanceOffline InstanceStatus = "offline"
)

// ParseInstanceStatus converts a wire name into an InstanceStatus.
func ParseInstanceStatus(s string) (InstanceStatus, error) {
	switch st := InstanceStatus(s); st {
	case InstanceIdle, InstanceWorking, InstanceError, InstanceOffline:
		return st, nil
	}
	return "", fmt.Errorf("unknown instance status %q", s)
}

// InstanceConfig holds per-instance execution settings.
type InstanceConfig struct {
	Name               string            `json:"name"`
	ClaudeCodePath     string            `json:"claude_code_path"`
	WorkspaceDir       string            `json:"workspace_dir"`
	MaxConcurrentTasks int               `json:"max_concurrent_tasks"`
	TimeoutSeconds     int               `json:"timeout_seconds"`
	AutoAcceptTasks    bool              `json:"auto_accept_tasks"`
	PreferredLanguages []string          `json:"preferred_languages"`
	CustomPrompts      map[string]string `json:"custom_prompts"`
	EnvironmentVars    map[string]string `json:"environment_vars"`
}

// DefaultInstanceConfig returns the baseline every role template starts from.
func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		Name:               "Claude Instance",
		ClaudeCodePath:     "claude",
		WorkspaceDir:       ".",
		MaxConcurrentTasks: 1,
		TimeoutSeconds:     300,
		AutoAcceptTasks:    true,
		PreferredLanguages: []string{"rust", "typescript"},
		CustomPrompts:      map[string]string{},
		EnvironmentVars:    map[string]string{},
	}
}

// ErrInvalidInstanceConfig reports settings an instance cannot run with.
var ErrInvalidInstanceConfig = errors.New("invalid instance config")

// Validate checks the settings every execution depends on. A zero
// concurrency limit is allowed and pauses the instance.
func (c InstanceConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ClaudeCodePath) == "" {
		problems = append(problems, "claude_code_path must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		problems = append(problems, fmt.Sprintf("timeout_seconds must be positive, got %d", c.TimeoutSeconds))
	}
	if c.MaxConcurrentTasks < 0 {
		problems = append(problems, fmt.Sprintf("max_concurrent_tasks must not be negative, got %d", c.MaxConcurrentTasks))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidInstanceConfig, strings.Join(problems, "; "))
}

// Timeout is the execution deadline for one agent invocation.
func (c InstanceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Clone returns a deep copy of the config.
func (c InstanceConfig) Clone() InstanceConfig {
	cp := c
	if c.PreferredLanguages != nil {
		cp.PreferredLanguages = append([]string(nil), c.PreferredLanguages...)
	}
	if c.CustomPrompts != nil {
		cp.CustomPrompts = maps.Clone(c.CustomPrompts)
	}
	if c.EnvironmentVars != nil {
		cp.EnvironmentVars = maps.Clone(c.EnvironmentVars)
	}
	return cp
}

// Instance is a role-tagged worker that executes one task at a time.
type Instance struct {
	ID           string         `json:"id"`
	Role         Role           `json:"role"`
	Status       InstanceStatus `json:"status"`
	CurrentTask  *Task          `json:"current_task"`
	Capabilities []string       `json:"capabilities"`
	Config       InstanceConfig `json:"config"`
	ActiveTasks  int            `json:"active_tasks"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	cp := *i
	cp.CurrentTask = i.CurrentTask.Clone()
	if i.Capabilities != nil {
		cp.Capabilities = append([]string(nil), i.Capabilities...)
	}
	cp.Config = i.Config.Clone()
	return &cp
}

// CanAccept reports whether the instance may be handed another task.
// A limit of zero or less pauses the instance.
func (i *Instance) CanAccept() bool {
	return i.Status == InstanceIdle && i.ActiveTasks < i.Config.MaxConcurrentTasks
}
