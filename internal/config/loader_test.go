package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		global  string
		project string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "no config files returns defaults",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultStoreURL, cfg.Store.URL)
				assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval.Std())
				assert.Len(t, cfg.Team.Members, 8)
				assert.True(t, cfg.Team.Enabled)
			},
		},
		{
			name:   "global overrides defaults",
			global: `{"store": {"url": "sqlite://global.db"}, "scheduler": {"poll_interval": "2s"}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "sqlite://global.db", cfg.Store.URL)
				assert.Equal(t, DefaultNamespace, cfg.Store.Namespace, "unset fields keep defaults")
				assert.Equal(t, 2*time.Second, cfg.Scheduler.PollInterval.Std())
				assert.Equal(t, 10*time.Second, cfg.Scheduler.ErrorBackoff.Std())
			},
		},
		{
			name:    "project overrides global",
			global:  `{"store": {"url": "sqlite://global.db", "namespace": "g"}}`,
			project: `{"store": {"url": "redis://project:6379"}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "redis://project:6379", cfg.Store.URL)
				assert.Equal(t, "g", cfg.Store.Namespace)
			},
		},
		{
			name:    "role overrides merge by role",
			global:  `{"roles": {"developer": {"timeout_seconds": 900}}}`,
			project: `{"roles": {"tester": {"max_concurrent_tasks": 0}}}`,
			check: func(t *testing.T, cfg *Config) {
				require.Contains(t, cfg.Roles, "developer")
				require.Contains(t, cfg.Roles, "tester")
				assert.Equal(t, 900, *cfg.Roles["developer"].TimeoutSeconds)
				assert.Equal(t, 0, *cfg.Roles["tester"].MaxConcurrentTasks)
			},
		},
		{
			name:    "team members are replaced not appended",
			project: `{"team": {"enabled": true, "members": [{"role": "researcher", "name": "Scout"}]}}`,
			check: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.Team.Members, 1)
				assert.Equal(t, "Scout", cfg.Team.Members[0].Name)
			},
		},
		{
			name:    "replaced members do not inherit default fields",
			project: `{"team": {"members": [{"role": "tester"}, {"role": "tester"}, {"role": "developer"}]}}`,
			check: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.Team.Members, 3)
				assert.Equal(t, TeamMember{Role: "developer"}, cfg.Team.Members[2])
			},
		},
		{
			name:    "team can be disabled",
			project: `{"team": {"enabled": false}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Team.Enabled)
				assert.Len(t, cfg.Team.Members, 8)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			globalPath := filepath.Join(dir, "global", "config.json")
			projectPath := filepath.Join(dir, "project", "config.json")
			if tt.global != "" {
				writeFile(t, globalPath, tt.global)
			}
			if tt.project != "" {
				writeFile(t, projectPath, tt.project)
			}

			cfg, err := Load(globalPath, projectPath)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	writeFile(t, path, `{"store": `)
	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading global config")

	writeFile(t, path, `{"scheduler": {"poll_interval": "soon"}}`)
	_, err = Load("", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading project config")
}

func TestLoadEmptyPaths(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestProjectPath(t *testing.T) {
	assert.Equal(t, filepath.Join(".coordinator", "config.json"), ProjectPath())
}
