// Package cli implements the entityctl commands.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

const (
	LogBackendSlog = "slog"
	LogBackendZap  = "zap"
)

var validLogBackends = []string{LogBackendSlog, LogBackendZap}

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath string
	LogBackend string
}

// NewRootCommand creates the entityctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "entityctl",
		Short: "Tooling around the entity store",
		Long:  "Runs the library demo, checks filter catalogs and prints the DDL of the example tables.",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(validLogBackends, opts.LogBackend) {
				return fmt.Errorf("invalid log backend %q: must be one of %v", opts.LogBackend, validLogBackends)
			}

			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "settings file, defaults and ENTITYSTORE_* variables apply without one")
	cmd.PersistentFlags().StringVar(&opts.LogBackend, "log-backend", LogBackendSlog, "log backend (slog|zap)")

	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewFiltersCommand(opts))
	cmd.AddCommand(NewDDLCommand())

	return cmd
}
