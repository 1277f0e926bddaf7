package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aristath/coordinator/internal/config"
)

// cli holds state shared by every command.
type cli struct {
	v   *viper.Viper
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Role-based task coordinator for Claude Code instances",
		Long: `Coordinator keeps a pool of role-tagged Claude Code instances (project
manager, supervisor, developers, tester, reviewer, researcher) and assigns
prioritised tasks to them. Unassigned work waits in a durable queue backed by
Redis or SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}

	// Global flags
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is ~/.coordinator/config.json merged with .coordinator/config.json)")
	flags.String("redis-url", config.DefaultStoreURL, "store URL: redis://, rediss://, sqlite://path or sqlite::memory:")
	flags.String("claude-code-path", config.DefaultAgentPath, "path to the Claude Code executable")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("namespace", config.DefaultNamespace, "key namespace inside the store")
	_ = c.v.BindPFlags(flags)

	// COORDINATOR_REDIS_URL for --redis-url and so on.
	c.v.SetEnvPrefix("COORDINATOR")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		c.newRunCmd(),
		c.newDashboardCmd(),
		c.newSubmitCmd(),
		c.newQueueCmd(),
		c.newInstancesCmd(),
		c.newTasksCmd(),
		c.newConfigCmd(),
	)
	return root
}

// loadConfig merges the config files, then applies flags and environment
// variables on top and validates the result.
func (c *cli) loadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if path := c.v.GetString("config"); path != "" {
		if _, statErr := os.Stat(path); statErr != nil {
			return fmt.Errorf("config file: %w", statErr)
		}
		cfg, err = config.Load("", path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}

	if c.v.IsSet("redis-url") {
		cfg.Store.URL = c.v.GetString("redis-url")
	}
	if c.v.IsSet("namespace") {
		cfg.Store.Namespace = c.v.GetString("namespace")
	}
	if c.v.IsSet("claude-code-path") {
		cfg.Agent.Path = c.v.GetString("claude-code-path")
	}
	if c.v.IsSet("log-level") {
		cfg.Logging.Level = c.v.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}
