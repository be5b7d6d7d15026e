package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newQueueCommand(r *runner) *cobra.Command {
	var failed bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show changes waiting to be sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app) error {
				list := a.queue.List
				if failed {
					list = a.queue.Failed
				}
				entries, err := list(ctx)
				if err != nil {
					return err
				}
				return a.printQueue(entries, failed)
			})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "show changes that failed permanently")
	return cmd
}

type purgeOutput struct {
	Purged int `json:"purged"`
}

func newPurgeCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop changes that failed permanently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.queue.PurgeFailed(ctx)
				if err != nil {
					return err
				}
				if n > 0 {
					a.nudger.Refresh()
				}
				if !a.text() {
					return a.printJSON(purgeOutput{Purged: n})
				}
				a.io.Printf("✓ Purged %d failed change(s)\n", n)
				return nil
			})
		},
	}
}

func newConfigCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := r.loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
