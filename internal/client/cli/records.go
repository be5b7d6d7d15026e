package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/runsync/internal/client/data"
	"github.com/iudanet/runsync/internal/models"
	"github.com/iudanet/runsync/internal/validation"
)

// collectionArgs checks the argument count and the collection name in args[0]
func collectionArgs(count cobra.PositionalArgs) cobra.PositionalArgs {
	return cobra.MatchAll(count, func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return nil
		}
		return validation.ValidateCollection(args[0])
	})
}

func newListCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection>",
		Short: "List records of a collection",
		Args:  collectionArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withData(cmd, func(ctx context.Context, a *app, svc data.Service) error {
				records, err := svc.List(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printRecords(args[0], records)
			})
		},
	}
}

func newGetCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Show one record",
		Args:  collectionArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withData(cmd, func(ctx context.Context, a *app, svc data.Service) error {
				rec, err := svc.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return a.printRecord(args[0], rec)
			})
		},
	}
}

func newCreateCommand(r *runner) *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "create <collection> [field=value ...]",
		Short: "Create a record",
		Long: `Create a record from field=value pairs and/or a JSON object.
Values are parsed as JSON when possible (30, true, "text"), otherwise
taken as plain strings. Without an "id" field the server assigns one;
offline a temporary id is used until the next sync.`,
		Example: `  runsync create registrations runner=Ann event_id=e1 paid=false
  runsync create events --json '{"name":"10K","distance":10}'`,
		Args: collectionArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(args[1:], raw)
			if err != nil {
				return err
			}
			return r.withData(cmd, func(ctx context.Context, a *app, svc data.Service) error {
				created, err := svc.Create(ctx, args[0], rec)
				if err != nil {
					return err
				}
				return a.printRecord(args[0], created)
			})
		},
	}
	cmd.Flags().StringVar(&raw, "json", "", "record fields as a JSON object")
	return cmd
}

func newUpdateCommand(r *runner) *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "update <collection> <id> [field=value ...]",
		Short: "Change fields of a record",
		Long: `Change fields of a record. Only the given fields are changed; the
rest of the record is kept.`,
		Example: `  runsync update tickets t1 price=35`,
		Args:    collectionArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseRecord(args[2:], raw)
			if err != nil {
				return err
			}
			if patch.Len() == 0 {
				return errors.New("nothing to update: give field=value pairs or --json")
			}
			return r.withData(cmd, func(ctx context.Context, a *app, svc data.Service) error {
				updated, err := svc.Update(ctx, args[0], args[1], patch)
				if err != nil {
					return err
				}
				return a.printRecord(args[0], updated)
			})
		},
	}
	cmd.Flags().StringVar(&raw, "json", "", "changed fields as a JSON object")
	return cmd
}

type deleteOutput struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Deleted    bool   `json:"deleted"`
}

func newDeleteCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a record",
		Args:  collectionArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withData(cmd, func(ctx context.Context, a *app, svc data.Service) error {
				deleted, err := svc.Remove(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !a.text() {
					return a.printJSON(deleteOutput{Collection: args[0], ID: args[1], Deleted: deleted})
				}
				if deleted {
					a.io.Printf("✓ Deleted %s/%s\n", args[0], args[1])
				} else {
					a.io.Printf("Nothing to delete: %s/%s\n", args[0], args[1])
				}
				return nil
			})
		},
	}
}

// parseRecord builds a record from a JSON object followed by field=value
// pairs; pairs override JSON fields of the same name
func parseRecord(pairs []string, raw string) (*models.Record, error) {
	rec := models.NewRecord()
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), rec); err != nil {
			return nil, fmt.Errorf("invalid --json: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected field=value", pair)
		}
		rec.Set(key, parseValue(value))
	}
	return rec, nil
}

// parseValue reads value as a single JSON value, falling back to the raw
// string
func parseValue(value string) any {
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return value
	}
	// "10K" декодируется как 10 с мусором в хвосте
	if _, err := dec.Token(); err != io.EOF {
		return value
	}
	return v
}
