package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes as "5s", "1m30s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// StoreConfig selects the durable queue backend.
type StoreConfig struct {
	URL       string `json:"url"`       // redis://, rediss://, sqlite://path or sqlite::memory:
	Namespace string `json:"namespace"` // Key / row prefix, so several coordinators can share a store

	// Circuit breaker around store calls.
	BreakerFailures int      `json:"breaker_failures"` // Consecutive failures before the breaker opens
	BreakerTimeout  Duration `json:"breaker_timeout"`  // How long the breaker stays open
}

// AgentConfig describes the external agent executable.
type AgentConfig struct {
	Path string   `json:"path"`           // Executable every instance runs unless overridden per role
	Args []string `json:"args,omitempty"` // Extra args appended to every invocation
}

// SchedulerConfig tunes the background loops.
type SchedulerConfig struct {
	PollInterval      Duration `json:"poll_interval"`
	ErrorBackoff      Duration `json:"error_backoff"`
	MaxErrorBackoff   Duration `json:"max_error_backoff"`
	HeartbeatInterval Duration `json:"heartbeat_interval"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Dir    string `json:"dir,omitempty"` // Empty logs to stderr
}

// RoleOverride adjusts a role's instance template. Zero values keep the template.
type RoleOverride struct {
	ClaudeCodePath     string            `json:"claude_code_path,omitempty"`
	WorkspaceDir       string            `json:"workspace_dir,omitempty"`
	MaxConcurrentTasks *int              `json:"max_concurrent_tasks,omitempty"`
	TimeoutSeconds     *int              `json:"timeout_seconds,omitempty"`
	CustomPrompts      map[string]string `json:"custom_prompts,omitempty"`
	EnvironmentVars    map[string]string `json:"environment_vars,omitempty"`
}

// TeamMember is one instance created at start-up.
type TeamMember struct {
	Role               string   `json:"role"`
	Name               string   `json:"name,omitempty"`
	PreferredLanguages []string `json:"preferred_languages,omitempty"`
	RolePrompt         string   `json:"role_prompt,omitempty"`
}

// TeamConfig is the team created when the coordinator initializes.
type TeamConfig struct {
	Enabled bool         `json:"enabled"`
	Members []TeamMember `json:"members"`
}

// Config is the top-level configuration.
type Config struct {
	Store     StoreConfig             `json:"store"`
	Agent     AgentConfig             `json:"agent"`
	Scheduler SchedulerConfig         `json:"scheduler"`
	Logging   LoggingConfig           `json:"logging"`
	Roles     map[string]RoleOverride `json:"roles,omitempty"` // Keyed by role name
	Team      TeamConfig              `json:"team"`
}
