package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/prospector/internal/sendqueue"
)

// newSendCmd creates the 'send' subcommand that drains the queue.
func newSendCmd() *cobra.Command {
	var (
		limit  int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send the next batch of pending messages",
		Long: `Sends up to --limit pending contacts in priority order, one at a time with
the configured delay between messages. Each outcome is committed before the
next contact, so an interrupted run resumes where it stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.SendQueue(dryRun).Run(cmd.Context(), limit)
			printSendSummary(cmd, summary)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum messages this run (0 uses send.limit)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compose and mark messages without opening an SMTP session")
	return cmd
}

func printSendSummary(cmd *cobra.Command, s sendqueue.Summary) {
	out := cmd.OutOrStdout()
	if s.NothingToDo() {
		fmt.Fprintln(out, s.Diagnostic)
		return
	}
	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(out, "send run %s%s: %s, %d sent, %d failed, %d of %d attempted\n",
		s.RunID, mode, s.State, s.Sent, s.Failed, s.Attempted, s.Fetched)
}
