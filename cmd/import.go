package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/prospector/internal/batch"
)

// newImportCmd creates the 'import' subcommand for contacts batch files.
func newImportCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import [batch.json]",
		Short: "Import a contacts batch file",
		Long: `Imports a contacts batch file into the store. Without an argument the
newest contacts*.json in the export directory is used. Existing contacts are
never duplicated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				path, err = batch.Latest(appInstance.Config().Enrich.ExportDir)
				if batch.IsNoBatch(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "no contacts batch found")
					return nil
				}
				if err != nil {
					return err
				}
			}

			importer := appInstance.Importer()
			importer.Overwrite = overwrite
			result, err := importer.ImportFile(cmd.Context(), path)
			fmt.Fprintf(cmd.OutOrStdout(),
				"imported %s: %d companies (%d invalid), %d contacts, %d inserted, %d duplicates, %d demoted, %d blank\n",
				path, result.Companies, result.InvalidDomain, result.Contacts,
				result.Inserted, result.Duplicates, result.Demoted, result.Blank)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace organization and category of existing companies")
	return cmd
}
