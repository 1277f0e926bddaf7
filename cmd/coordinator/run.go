package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/coordinator/internal/backend"
	"github.com/aristath/coordinator/internal/config"
	"github.com/aristath/coordinator/internal/coordinator"
	"github.com/aristath/coordinator/internal/logging"
	"github.com/aristath/coordinator/internal/persistence"
	"github.com/aristath/coordinator/internal/tui"
)

// shutdownTimeout bounds how long the dashboard waits for the coordinator
// to wind down after the UI exits.
const shutdownTimeout = 10 * time.Second

// runtime is a coordinator wired to its store, agent and logger.
type runtime struct {
	log   *logging.Logger
	store persistence.Store
	procs *backend.ProcessManager
	coord *coordinator.Coordinator
}

// start opens the store and builds an initialized coordinator.
// Logs go to logDir, or stderr when it is empty.
func (c *cli) start(ctx context.Context, logDir string) (*runtime, error) {
	log, err := logging.NewLogger(logDir, c.cfg.Logging.Level, c.cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	store, err := persistence.Open(ctx, c.cfg.Store.URL, c.cfg.Store.Namespace)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	procs := backend.NewProcessManager()
	coord := coordinator.New(coordinator.Options{
		Config: c.cfg,
		Store:  store,
		Agent:  backend.NewCLIAgent(procs, c.cfg.Agent.Args...),
		Logger: log,
	})

	rt := &runtime{log: log, store: store, procs: procs, coord: coord}
	if err := coord.Initialize(ctx); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// serve runs the coordinator loops until ctx is cancelled. Agent processes
// still running at that point are killed so their executions commit.
func (rt *runtime) serve(ctx context.Context) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			if n := rt.procs.Count(); n > 0 {
				rt.log.Info("killing agent processes", "count", n)
			}
			if err := rt.procs.KillAll(); err != nil {
				rt.log.Error("error killing agent processes", "error", err)
			}
		case <-stopped:
		}
	}()

	return rt.coord.Run(ctx)
}

func (rt *runtime) close() {
	if err := rt.store.Close(); err != nil {
		rt.log.Warn("error closing store", "error", err)
	}
	rt.log.Close()
}

func (c *cli) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the coordinator until interrupted",
		Long: `Run restores the instance pool from the store (creating the default team
on first start), then keeps draining the task queue until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := c.start(ctx, c.cfg.Logging.Dir)
			if err != nil {
				return err
			}
			defer rt.close()

			rt.log.Info("coordinator started", "store", redactURL(c.cfg.Store.URL), "instances", len(rt.coord.Instances()))
			return rt.serve(ctx)
		},
	}
}

func (c *cli) newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Run the coordinator with a terminal dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Log lines on stderr would tear the UI.
			logDir := c.cfg.Logging.Dir
			if logDir == "" {
				logDir = filepath.Join(filepath.Dir(config.ProjectPath()), "logs")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			rt, err := c.start(ctx, logDir)
			if err != nil {
				return err
			}
			defer rt.close()

			// Subscribe before the loops start so the first events are seen.
			model := tui.New(rt.coord, rt.coord.Bus())

			serveErr := make(chan error, 1)
			go func() {
				serveErr <- rt.serve(ctx)
			}()

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			_, uiErr := p.Run()
			if errors.Is(uiErr, tea.ErrProgramKilled) {
				// Interrupted through ctx, not a UI failure.
				uiErr = nil
			}

			cancel()
			select {
			case err := <-serveErr:
				return errors.Join(uiErr, err)
			case <-time.After(shutdownTimeout):
				return errors.Join(uiErr, errors.New("shutdown timeout exceeded"))
			}
		},
	}
}
