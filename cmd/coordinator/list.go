package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/coordinator/internal/scheduler"
	"github.com/aristath/coordinator/internal/types"
)

// descriptionWidth truncates task descriptions in table output.
const descriptionWidth = 60

func (c *cli) newInstancesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List instances recorded in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.ListInstanceSnapshots(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list instances: %w", err)
			}
			sort.SliceStable(list, func(i, j int) bool {
				return list[i].CreatedAt.Before(list[j].CreatedAt)
			})
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tSTATUS\tTASK")
			for _, inst := range list {
				task := "-"
				if inst.CurrentTask != nil {
					task = inst.CurrentTask.ID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", inst.ID, inst.Config.Name, inst.Role, inst.Status, task)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (c *cli) newTasksCmd() *cobra.Command {
	var (
		asJSON bool
		status string
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks recorded in the store, dependencies first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter types.TaskStatus
			if status != "" {
				st, err := types.ParseTaskStatus(status)
				if err != nil {
					return err
				}
				filter = st
			}

			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.ListTaskSnapshots(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}

			list, err = orderTasks(list)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v; listing in creation order\n", err)
			}

			var shown []*types.Task
			for _, t := range list {
				if filter == "" || t.Status == filter {
					shown = append(shown, t)
				}
			}
			if asJSON {
				if shown == nil {
					shown = []*types.Task{}
				}
				return writeJSON(cmd.OutOrStdout(), shown)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tPRIORITY\tSTATUS\tASSIGNED\tDESCRIPTION")
			for _, t := range shown {
				assigned := t.AssignedID()
				if assigned == "" {
					assigned = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.TaskType, t.Priority, t.Status, assigned, truncate(t.Description, descriptionWidth))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().StringVar(&status, "status", "", "only list tasks with this status")
	return cmd
}

// orderTasks sorts tasks by creation time, then puts every task after the
// tasks it depends on. On a dependency cycle only the first sort applies
// and the error is returned.
func orderTasks(list []*types.Task) ([]*types.Task, error) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	ids, err := scheduler.DependencyOrder(list)
	if err != nil {
		return list, err
	}
	byID := make(map[string]*types.Task, len(list))
	for _, t := range list {
		byID[t.ID] = t
	}
	ordered := make([]*types.Task, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
