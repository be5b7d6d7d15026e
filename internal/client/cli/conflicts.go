package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	syncengine "github.com/iudanet/runsync/internal/client/sync"
	"github.com/iudanet/runsync/internal/models"
)

func newConflictsCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts [collection]",
		Short: "List unresolved conflicts",
		Args:  collectionArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app) error {
				var (
					conflicts []*models.Conflict
					err       error
				)
				if len(args) == 1 {
					conflicts, err = a.engine.ListConflicts(ctx, args[0])
				} else {
					conflicts, err = a.engine.ListAllConflicts(ctx)
				}
				if err != nil {
					return err
				}
				return a.printConflicts(conflicts)
			})
		},
	}
}

func newResolveCommand(r *runner) *cobra.Command {
	var use, raw string
	cmd := &cobra.Command{
		Use:   "resolve <collection> <id>",
		Short: "Resolve a conflict",
		Long: `Resolve a conflict by keeping the local version, the server version
or a merged record given with --json. Without --use or --json the
conflict is shown and the choice is read from standard input.

Keeping the local or merged version overwrites the server on the next
sync; it is sent right away when the server is reachable.`,
		Example: `  runsync resolve profiles p1 --use server
  runsync resolve profiles p1 --json '{"phone":"333","email":"b@x"}'`,
		Args: collectionArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, id := args[0], args[1]
			return r.withApp(cmd, func(ctx context.Context, a *app) error {
				c, err := a.store.GetConflict(ctx, collection, id)
				if err != nil {
					return fmt.Errorf("no conflict for %s/%s: %w", collection, id, err)
				}

				if use == "" && raw == "" {
					if err := a.render(conflictTmpl, c); err != nil {
						return err
					}
					use, err = a.io.ReadInput("Keep which version? [local/server]: ")
					if err != nil {
						return fmt.Errorf("failed to read choice: %w", err)
					}
				}

				choice, err := parseChoice(use, raw)
				if err != nil {
					return err
				}

				winner, err := a.engine.Resolve(ctx, collection, id, choice)
				if err != nil {
					return err
				}

				sent := false
				if choice.Kind != syncengine.ChooseServer && r.connect(ctx, a).Online() {
					res, err := a.engine.Reconcile(ctx)
					if err != nil {
						return fmt.Errorf("sync failed: %w", err)
					}
					sent = res.Applied > 0
				}

				if !a.text() {
					return a.printJSON(winner)
				}
				a.io.Printf("✓ Resolved %s/%s with the %s version\n", collection, id, choice.Kind)
				switch {
				case choice.Kind == syncengine.ChooseServer:
				case sent:
					a.io.Println("✓ Sent to the server")
				default:
					a.io.Println("The resolution is queued until the next sync.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&use, "use", "", "version to keep: local, server or merged")
	cmd.Flags().StringVar(&raw, "json", "", "merged record as a JSON object")
	return cmd
}

// parseChoice turns --use and --json into a resolution choice; --json
// alone means merged
func parseChoice(use, raw string) (syncengine.Choice, error) {
	use = strings.ToLower(strings.TrimSpace(use))
	if use == "" && raw != "" {
		use = "merged"
	}

	switch use {
	case "local":
		return syncengine.UseLocal(), nil
	case "server":
		return syncengine.UseServer(), nil
	case "merged":
		if raw == "" {
			return syncengine.Choice{}, fmt.Errorf("merged resolution needs --json")
		}
		merged, err := parseRecord(nil, raw)
		if err != nil {
			return syncengine.Choice{}, err
		}
		return syncengine.UseMerged(merged), nil
	default:
		return syncengine.Choice{}, fmt.Errorf("unknown choice %q: use local, server or merged", use)
	}
}
