package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tradefair-crawler/internal/app"
	"github.com/JakeFAU/tradefair-crawler/internal/runner"
)

// newRunCmd creates the 'run' subcommand: one batch crawl, then exit.
func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl every selected event once",
		Long: `Lists the events on the site, skips those whose stored exhibitor count
already matches the live listing, and inserts the missing companies of the rest.
With --dry-run rows are kept in memory and nothing touches the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := app.Postgres
			if dryRun {
				mode = app.DryRun
			}
			a, err := buildApp(cmd, mode)
			if err != nil {
				return err
			}
			stats, err := a.RunOnce(cmd.Context())
			printStats(cmd.OutOrStdout(), stats)
			if err != nil {
				return fmt.Errorf("run crawler: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "keep rows in memory instead of the database")
	return cmd
}

func printStats(w io.Writer, s runner.Stats) {
	fmt.Fprintf(w,
		"run %s: %d events found, %d filtered, %d processed, %d skipped, %d failed, %d companies added (%s)\n",
		s.RunID, s.EventsFound, s.EventsFiltered, s.Processed, s.Skipped, s.Failed, s.CompaniesAdded,
		s.Duration.Round(time.Millisecond),
	)
}
