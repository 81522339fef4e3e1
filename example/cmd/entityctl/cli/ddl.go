package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/example/library"
)

var dialects = map[string]sqlengine.Dialect{
	"postgres": sqlengine.DialectPostgres,
	"sqlite":   sqlengine.DialectSQLite,
}

type ddlOptions struct {
	dialect     string
	outboxTable string
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand() *cobra.Command {
	opts := &ddlOptions{}

	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the CREATE TABLE statements of the library tables and the outbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dialect, ok := dialects[opts.dialect]
			if !ok {
				return fmt.Errorf("invalid dialect %q: must be postgres or sqlite", opts.dialect)
			}

			statements := []string{
				library.BooksTable().CreateStatement(dialect),
				library.ReadersTable().CreateStatement(dialect),
				sqlengine.OutboxCreateStatement(dialect, opts.outboxTable),
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(statements, ";\n\n")+";")

			return err
		},
	}

	cmd.Flags().StringVar(&opts.dialect, "dialect", "postgres", "sql dialect (postgres|sqlite)")
	cmd.Flags().StringVar(&opts.outboxTable, "outbox-table", "entity_outbox", "name of the outbox table")

	return cmd
}
