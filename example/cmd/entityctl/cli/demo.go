package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/config"
	"github.com/AntonStoeckl/dynamic-entitystore-go/example/library"
)

const demoActor = "entityctl"

type demoOptions struct {
	metrics string
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a lending scenario against the configured engine",
		Long: `Adds book copies, registers readers, lends and returns copies and prints the published
domain events followed by the resulting read models.

The ids are fixed, run it against an empty database.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(validMetrics, opts.metrics) {
				return fmt.Errorf("invalid metrics backend %q: must be one of %v", opts.metrics, validMetrics)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), rootOpts, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.metrics, "metrics", MetricsNone, "metrics backend reported after the run (none|prometheus|otel)")

	return cmd
}

func runDemo(ctx context.Context, rootOpts *RootOptions, opts *demoOptions, out, errOut io.Writer) (err error) {
	settings, err := config.Load(rootOpts.ConfigPath)
	if err != nil {
		return err
	}

	logger, flush, err := newLogger(rootOpts.LogBackend, settings.Logging, errOut)
	if err != nil {
		return err
	}
	defer func() { _ = flush() }()

	obs, err := newObservability(opts.metrics)
	if err != nil {
		return err
	}
	defer func() { _ = obs.shutdown(context.Background()) }()

	app, err := library.Open(ctx, settings,
		library.WithLogger(logger),
		library.WithObservability(obs.metrics, obs.tracing),
	)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); err == nil {
			err = closeErr
		}
	}()

	app.Bus.SubscribeAll(func(_ context.Context, event entitystore.DomainEvent) error {
		_, err := fmt.Fprintf(out, "event %s %s\n", event.EventType(), aggregateID(event))
		return err
	})

	ctx = entitystore.WithActor(ctx, demoActor)

	if err := runScenario(ctx, app.Library); err != nil {
		return err
	}

	if err := printReadModels(ctx, app.Library, out); err != nil {
		return err
	}

	return obs.report(ctx, out)
}

func aggregateID(event entitystore.DomainEvent) string {
	if identified, ok := event.(entitystore.AggregateIdentifier); ok {
		return identified.AggregateID()
	}

	return "-"
}

func runScenario(ctx context.Context, lib *library.Library) error {
	books := []struct{ id, title, author, isbn string }{
		{"b01", "Dune", "Frank Herbert", "9780306406157"},
		{"b02", "Emma", "Jane Austen", "9783161484100"},
		{"b03", "Beloved", "Toni Morrison", "9780000000019"},
	}

	for _, b := range books {
		if _, err := lib.AddBookCopy(ctx, b.id, b.title, b.author, b.isbn); err != nil {
			return err
		}
	}

	if _, err := lib.RegisterReader(ctx, "r01", "Ann", "ann@example.com"); err != nil {
		return err
	}

	if _, err := lib.RegisterReader(ctx, "r02", "Bob", "bob@example.com"); err != nil {
		return err
	}

	steps := []func() error{
		func() error { return lib.LendBookCopyToReader(ctx, "b01", "r01") },
		func() error { return lib.LendBookCopyToReader(ctx, "b02", "r01") },
		func() error { return lib.ReturnBookCopyFromReader(ctx, "b01", "r01") },
		func() error { return lib.RemoveBookCopy(ctx, "b03") },
		func() error { return lib.CancelReaderContract(ctx, "r02") },
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

func printReadModels(ctx context.Context, lib *library.Library, out io.Writer) error {
	page, err := lib.BooksInCirculation(ctx, 0, 0)
	if err != nil {
		return err
	}

	for _, b := range page.Items {
		if _, err := fmt.Fprintf(out, "book %s %q by %s lent=%t\n", b.BookID, b.Title, b.Author, b.IsLent); err != nil {
			return err
		}
	}

	readers, err := lib.RegisteredReaders(ctx)
	if err != nil {
		return err
	}

	for _, r := range readers {
		lent, err := lib.BooksLentByReader(ctx, r.ID)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintf(out, "reader %s %s books=%d\n", r.ID, r.Name, len(lent)); err != nil {
			return err
		}
	}

	return nil
}
