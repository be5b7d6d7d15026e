// Package cli implements the runsync command line client.
package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/runsync/internal/client/api"
)

// RootOptions holds global flags shared by all commands
type RootOptions struct {
	ConfigPath string
	ServerURL  string
	DBPath     string
	Format     string // auto, text или json
	Offline    bool
	Verbose    bool
}

// Output formats accepted by --format
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// ValidFormats lists the supported output formats
var ValidFormats = []string{FormatAuto, FormatText, FormatJSON}

// deps are the constructors that tests replace
type deps struct {
	newRemote func(serverURL string) api.ClientAPI
	newID     func() string
	now       func() time.Time
}

func defaultDeps() deps {
	return deps{
		newRemote: func(serverURL string) api.ClientAPI { return api.NewClient(serverURL) },
		now:       time.Now,
	}
}

// runner carries global options into subcommands
type runner struct {
	opts *RootOptions
	deps deps
}

// NewRootCommand creates the root command with all subcommands attached
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, defaultDeps())
}

func newRootCommand(version string, d deps) *cobra.Command {
	opts := &RootOptions{}
	r := &runner{opts: opts, deps: d}

	cmd := &cobra.Command{
		Use:   "runsync",
		Short: "Offline-first client for the marathon registration service",
		Long: `runsync keeps a local copy of the registration collections and
queues changes while the server is unreachable. Queued changes are
reconciled with the server by "runsync sync" or by "runsync daemon".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	flags.StringVar(&opts.ServerURL, "server", "", "server URL (overrides config)")
	flags.StringVar(&opts.DBPath, "db", "", "path to local database (overrides config)")
	flags.StringVarP(&opts.Format, "format", "f", FormatAuto, "output format: auto, text or json")
	flags.BoolVar(&opts.Offline, "offline", false, "do not contact the server")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newListCommand(r),
		newGetCommand(r),
		newCreateCommand(r),
		newUpdateCommand(r),
		newDeleteCommand(r),
		newSyncCommand(r),
		newStatusCommand(r),
		newConflictsCommand(r),
		newResolveCommand(r),
		newQueueCommand(r),
		newPurgeCommand(r),
		newConfigCommand(r),
		newDaemonCommand(r),
	)

	return cmd
}
