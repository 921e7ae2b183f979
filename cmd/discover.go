package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tradefair-crawler/internal/app"
	"github.com/JakeFAU/tradefair-crawler/internal/fetch"
)

// newDiscoverCmd creates the 'discover' subcommand: list events with their
// live exhibitor counts without touching the database.
func newDiscoverCmd() *cobra.Command {
	var noCount bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List events and their exhibitor counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, app.NoStore)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			events := a.Site.ListEvents(ctx)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT\tDATES\tEXHIBITORS\tLISTING")
			for i, ev := range events {
				count := "-"
				if !noCount {
					if i > 0 {
						if err := fetch.Pause(ctx, a.Config.Scraping.DelayBetweenRequests); err != nil {
							return err
						}
					}
					n, _ := a.Site.ProbeCount(ctx, ev.ExhibitorsURL)
					count = fmt.Sprint(n)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.Name, ev.DateRange, count, ev.ExhibitorsURL)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCount, "no-count", false, "skip probing exhibitor counts")
	return cmd
}
