package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName  = ".coordinator"
	fileName = "config.json"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// GlobalPath is ~/.coordinator/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, dirName, fileName), nil
}

// ProjectPath is .coordinator/config.json relative to the working directory.
func ProjectPath() string {
	return filepath.Join(dirName, fileName)
}

// LoadDefault loads configuration from the conventional global and project paths.
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath())
}

// mergeConfigFile decodes a JSON file over base. Fields present in the file
// replace the current values; role overrides merge by role name and a team
// member list replaces the previous one.
// Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Decoding into existing slice elements would keep fields the file omits.
	members := base.Team.Members
	base.Team.Members = nil

	if err := json.Unmarshal(data, base); err != nil {
		base.Team.Members = members
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if base.Team.Members == nil {
		base.Team.Members = members
	}
	if base.Roles == nil {
		base.Roles = map[string]RoleOverride{}
	}
	return nil
}
