package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/coordinator/internal/coordinator"
	"github.com/aristath/coordinator/internal/scheduler"
	"github.com/aristath/coordinator/internal/types"
)

func (c *cli) newSubmitCmd() *cobra.Command {
	var (
		taskType string
		priority string
		deps     []string
		target   string
	)

	cmd := &cobra.Command{
		Use:   "submit [flags] DESCRIPTION...",
		Short: "Queue a task for the running coordinator",
		Long: `Submit records a pending task in the store and queues it. A coordinator
started with "run" or "dashboard" against the same store picks it up on its
next poll.

Task types: ` + joinTaskTypes() + `
Priorities: low, medium, high, critical`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tt, err := types.ParseTaskType(taskType)
			if err != nil {
				return err
			}
			prio, err := types.ParsePriority(priority)
			if err != nil {
				return err
			}

			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			task, err := coordinator.Enqueue(cmd.Context(), store, scheduler.TaskParams{
				TaskType:     tt,
				Description:  strings.Join(args, " "),
				Priority:     prio,
				Dependencies: deps,
				Target:       target,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Queued task %s (%s, %s)\n", task.ID, task.TaskType, task.Priority)
			return nil
		},
	}

	cmd.Flags().StringVarP(&taskType, "type", "t", string(types.TaskFeatureImplementation), "task type")
	cmd.Flags().StringVarP(&priority, "priority", "p", types.PriorityMedium.String(), "task priority")
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "ids of tasks this one depends on (advisory)")
	cmd.Flags().StringVar(&target, "instance", "", "assign to this instance id instead of any available one")
	return cmd
}

func joinTaskTypes() string {
	names := make([]string, len(types.AllTaskTypes))
	for i, t := range types.AllTaskTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
