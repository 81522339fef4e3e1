package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/catalog"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/config"
	"github.com/AntonStoeckl/dynamic-entitystore-go/example/library"
)

const (
	entityBook   = "book"
	entityReader = "reader"
)

var errNoCatalog = errors.New("no filter catalog given, use --catalog or catalog.path")

type filtersOptions struct {
	catalogPath string
	entity      string
}

// NewFiltersCommand creates the filters command group.
func NewFiltersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &filtersOptions{}

	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Inspect a catalog of named filters",
	}

	cmd.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "filter catalog, defaults to catalog.path of the settings")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the filters of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalog(rootOpts, opts)
			if err != nil {
				return err
			}

			for _, name := range c.Names() {
				f, _ := c.Filter(name)
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, f.Expression); err != nil {
					return err
				}
			}

			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Parse every filter against the members of an entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalog(rootOpts, opts)
			if err != nil {
				return err
			}

			switch opts.entity {
			case entityBook:
				err = catalog.Validate(c, library.BookSchema())
			case entityReader:
				err = catalog.Validate(c, library.ReaderSchema())
			default:
				return fmt.Errorf("invalid entity %q: must be %s or %s", opts.entity, entityBook, entityReader)
			}

			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d filters valid for %s\n", len(c.Names()), opts.entity)

			return err
		},
	}

	validate.Flags().StringVar(&opts.entity, "entity", entityBook, "entity the filters apply to (book|reader)")

	cmd.AddCommand(list, validate)

	return cmd
}

func loadCatalog(rootOpts *RootOptions, opts *filtersOptions) (*catalog.Catalog, error) {
	path := opts.catalogPath
	if path == "" {
		settings, err := config.Load(rootOpts.ConfigPath)
		if err != nil {
			return nil, err
		}

		path = settings.Catalog.Path
	}

	if path == "" {
		return nil, errNoCatalog
	}

	return catalog.Load(path)
}
