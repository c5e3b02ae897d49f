package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/prospector/internal/batch"
)

const statusBatches = 3

// newStatusCmd creates the 'status' subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and the newest contacts batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := appInstance.Store().Counts(cmd.Context())
			if err != nil {
				return fmt.Errorf("count contacts: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "companies: %d\n", counts.Companies)
			fmt.Fprintf(out, "contacts:  %d\n", counts.Contacts)
			fmt.Fprintf(out, "pending:   %d\n", counts.Pending)
			fmt.Fprintf(out, "sent:      %d\n", counts.Sent)
			fmt.Fprintf(out, "failed:    %d\n", counts.Failed)

			files, err := batch.List(appInstance.Config().Enrich.ExportDir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(out, "no contacts batches")
				return nil
			}
			fmt.Fprintln(out, "recent batches:")
			for i, f := range files {
				if i == statusBatches {
					break
				}
				fmt.Fprintf(out, "  %s  %s  %d bytes\n", f.ModTime.Format("2006-01-02 15:04"), f.Path, f.Size)
			}
			return nil
		},
	}
}
