package config

import (
	"fmt"
	"strings"

	"github.com/aristath/coordinator/internal/logging"
	"github.com/aristath/coordinator/internal/types"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string // Path of the setting, e.g. "scheduler.poll_interval"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Validate checks the whole configuration and returns ValidationErrors, or
// nil when every setting is usable.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateScheduler()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateRoles()...)
	errs = append(errs, c.validateTeam()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateStore() []ValidationError {
	var errs []ValidationError

	url := c.Store.URL
	switch {
	case url == "":
		errs = append(errs, ValidationError{Field: "store.url", Value: url, Message: "must not be empty"})
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"),
		url == "sqlite::memory:", strings.HasPrefix(url, "sqlite://") && len(url) > len("sqlite://"):
	default:
		errs = append(errs, ValidationError{
			Field:   "store.url",
			Value:   url,
			Message: "must start with redis://, rediss:// or sqlite://, or be sqlite::memory:",
		})
	}

	if strings.ContainsAny(c.Store.Namespace, ": ") {
		errs = append(errs, ValidationError{Field: "store.namespace", Value: c.Store.Namespace, Message: "must not contain ':' or spaces"})
	}
	if c.Store.BreakerFailures < 1 {
		errs = append(errs, ValidationError{Field: "store.breaker_failures", Value: c.Store.BreakerFailures, Message: "must be at least 1"})
	}
	if c.Store.BreakerTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "store.breaker_timeout", Value: c.Store.BreakerTimeout.Std(), Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateScheduler() []ValidationError {
	var errs []ValidationError

	positive := []struct {
		field string
		value Duration
	}{
		{"scheduler.poll_interval", c.Scheduler.PollInterval},
		{"scheduler.error_backoff", c.Scheduler.ErrorBackoff},
		{"scheduler.max_error_backoff", c.Scheduler.MaxErrorBackoff},
		{"scheduler.heartbeat_interval", c.Scheduler.HeartbeatInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{Field: p.field, Value: p.value.Std(), Message: "must be positive"})
		}
	}

	if c.Scheduler.ErrorBackoff > 0 && c.Scheduler.MaxErrorBackoff > 0 && c.Scheduler.MaxErrorBackoff < c.Scheduler.ErrorBackoff {
		errs = append(errs, ValidationError{
			Field:   "scheduler.max_error_backoff",
			Value:   c.Scheduler.MaxErrorBackoff.Std(),
			Message: "must not be less than scheduler.error_backoff",
		})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}
	if !strings.EqualFold(c.Logging.Format, logging.FormatJSON) && !strings.EqualFold(c.Logging.Format, logging.FormatText) {
		errs = append(errs, ValidationError{Field: "logging.format", Value: c.Logging.Format, Message: "must be json or text"})
	}
	return errs
}

func (c *Config) validateRoles() []ValidationError {
	var errs []ValidationError

	for name, o := range c.Roles {
		if _, err := types.ParseRole(name); err != nil {
			errs = append(errs, ValidationError{Field: "roles", Value: name, Message: "unknown role"})
			continue
		}
		if o.TimeoutSeconds != nil && *o.TimeoutSeconds <= 0 {
			errs = append(errs, ValidationError{Field: "roles." + name + ".timeout_seconds", Value: *o.TimeoutSeconds, Message: "must be positive"})
		}
		if o.MaxConcurrentTasks != nil && *o.MaxConcurrentTasks < 0 {
			errs = append(errs, ValidationError{Field: "roles." + name + ".max_concurrent_tasks", Value: *o.MaxConcurrentTasks, Message: "must not be negative"})
		}
	}
	return errs
}

func (c *Config) validateTeam() []ValidationError {
	var errs []ValidationError

	for i, m := range c.Team.Members {
		if _, err := types.ParseRole(m.Role); err != nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("team.members[%d].role", i), Value: m.Role, Message: "unknown role"})
		}
	}
	return errs
}
