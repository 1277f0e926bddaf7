package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidate(t *testing.T) {
	negative := -1
	zero := 0

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty store url", func(c *Config) { c.Store.URL = "" }, "store.url"},
		{"unknown store scheme", func(c *Config) { c.Store.URL = "postgres://db" }, "store.url"},
		{"sqlite without path", func(c *Config) { c.Store.URL = "sqlite://" }, "store.url"},
		{"namespace with colon", func(c *Config) { c.Store.Namespace = "a:b" }, "store.namespace"},
		{"breaker failures", func(c *Config) { c.Store.BreakerFailures = 0 }, "store.breaker_failures"},
		{"breaker timeout", func(c *Config) { c.Store.BreakerTimeout = 0 }, "store.breaker_timeout"},
		{"poll interval", func(c *Config) { c.Scheduler.PollInterval = 0 }, "scheduler.poll_interval"},
		{"heartbeat", func(c *Config) { c.Scheduler.HeartbeatInterval = -1 }, "scheduler.heartbeat_interval"},
		{"max backoff below initial", func(c *Config) { c.Scheduler.MaxErrorBackoff = c.Scheduler.ErrorBackoff / 2 }, "scheduler.max_error_backoff"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"unknown role override", func(c *Config) { c.Roles["designer"] = RoleOverride{} }, "roles"},
		{"negative concurrency", func(c *Config) { c.Roles["tester"] = RoleOverride{MaxConcurrentTasks: &negative} }, "roles.tester.max_concurrent_tasks"},
		{"zero timeout", func(c *Config) { c.Roles["tester"] = RoleOverride{TimeoutSeconds: &zero} }, "roles.tester.timeout_seconds"},
		{"unknown team role", func(c *Config) { c.Team.Members[2].Role = "intern" }, "team.members[2].role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateAllowsPausedRole(t *testing.T) {
	zero := 0
	cfg := DefaultConfig()
	cfg.Roles["reviewer"] = RoleOverride{MaxConcurrentTasks: &zero}
	assert.NoError(t, cfg.Validate())
}

func TestValidationErrorsMessage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "yaml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 validation errors")
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "logging.format")
}
