package main

import (
	"context"
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/coordinator/internal/persistence"
	"github.com/aristath/coordinator/internal/types"
)

func (c *cli) openStore(ctx context.Context) (persistence.Store, error) {
	store, err := persistence.Open(ctx, c.cfg.Store.URL, c.cfg.Store.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", redactURL(c.cfg.Store.URL), err)
	}
	return store, nil
}

// redactURL hides the password of a store URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func (c *cli) newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or clear the task queue",
	}
	cmd.AddCommand(c.newQueueStatsCmd(), c.newQueueClearCmd())
	return cmd
}

func (c *cli) newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queued tasks per priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			depth, err := store.QueueDepthByPriority(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read queue: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tQUEUED")
			var total int64
			for _, p := range types.DrainOrder {
				fmt.Fprintf(w, "%s\t%d\n", p, depth[p])
				total += depth[p]
			}
			fmt.Fprintf(w, "total\t%d\n", total)
			return w.Flush()
		},
	}
}

func (c *cli) newQueueClearCmd() *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop queued entries",
		Long: `Clear drops queue entries for one priority, or for every priority when
--priority is not given. Task records are kept; a running coordinator does
not route the dropped entries again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p *types.Priority
			if priority != "" {
				v, err := types.ParsePriority(priority)
				if err != nil {
					return err
				}
				p = &v
			}

			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(cmd.Context(), p); err != nil {
				return fmt.Errorf("failed to clear queue: %w", err)
			}
			if p == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared all queues")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s queue\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "only clear this priority (low, medium, high, critical)")
	return cmd
}
