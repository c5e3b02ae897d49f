package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newResetCmd creates the 'reset' subcommand, the only way a processed
// contact returns to pending.
func newResetCmd() *cobra.Command {
	var failedOnly, all bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return processed contacts to pending",
		Long: `Returns contacts to pending and clears their contacted time and last error.
Pass --failed-only to retry failures or --all to resend everything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if failedOnly == all {
				return errors.New("exactly one of --failed-only or --all is required")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appInstance.Store().ResetStatus(cmd.Context(), failedOnly)
			if err != nil {
				return fmt.Errorf("reset status: %w", err)
			}
			appInstance.Logger().Info("contacts reset", zap.Int64("count", n), zap.Bool("failed_only", failedOnly))
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d contacts to pending\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed-only", false, "reset failed contacts only")
	cmd.Flags().BoolVar(&all, "all", false, "reset sent and failed contacts")
	return cmd
}
