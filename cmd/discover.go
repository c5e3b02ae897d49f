package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/prospector/internal/app"
)

// newDiscoverCmd creates the 'discover' subcommand, which imports the newest
// contacts batch, runs the enabled sources and enriches what they found.
func newDiscoverCmd() *cobra.Command {
	var opts app.DiscoverOptions
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover companies and collect their contacts",
		Long: `Imports the newest contacts batch from the export directory, runs every
enabled discovery source, then looks up contacts for each unique domain and
stores them in the send queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Discover(cmd.Context(), opts)
			printDiscoverReport(cmd, report)
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.LocalOnly, "local-only", false, "only run local_* sources")
	cmd.Flags().BoolVar(&opts.SkipImport, "skip-import", false, "do not import the newest contacts batch first")
	cmd.Flags().BoolVar(&opts.SkipEnrich, "skip-enrich", false, "stop after discovery")
	cmd.Flags().IntVar(&opts.MaxCompanies, "max-companies", 0, "cap companies looked up (0 uses enrich.max_companies)")
	return cmd
}

func printDiscoverReport(cmd *cobra.Command, r app.DiscoverReport) {
	out := cmd.OutOrStdout()
	if r.ImportedFrom != "" {
		fmt.Fprintf(out, "imported %s: %d companies, %d contacts inserted, %d duplicates\n",
			r.ImportedFrom, r.Import.Companies, r.Import.Inserted, r.Import.Duplicates)
	}
	for _, s := range r.Discovery.Sources {
		status := "ok"
		if s.Err != nil {
			status = s.Err.Error()
		}
		fmt.Fprintf(out, "  %-40s %5d  %s\n", s.Source, s.Found, status)
	}
	fmt.Fprintf(out, "discovered %d companies (%d unique, %d invalid)\n",
		r.Discovery.Total, r.Discovery.Unique, r.Discovery.Invalid)
	if r.EnrichSkipped {
		fmt.Fprintln(out, "enrichment skipped: lookup api key not configured")
		return
	}
	e := r.Enrich
	if e.Considered == 0 {
		return
	}
	fmt.Fprintf(out, "enriched %d companies: %d with contacts, %d skipped, %d failed, %d contacts inserted\n",
		e.Considered, e.WithContacts, e.Skipped, e.Failed, e.ContactsInserted)
	if e.ExportPath != "" {
		fmt.Fprintf(out, "exported %s\n", e.ExportPath)
	}
}
