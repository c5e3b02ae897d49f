package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newTestEmailCmd creates the 'test-email' subcommand, which sends one
// sample message through the configured relay.
func newTestEmailCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "test-email",
		Short: "Send one sample message to verify the SMTP setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if to == "" {
				to = appInstance.Config().Send.TestRecipient
			}
			if to == "" {
				return errors.New("--to is required when send.test_recipient is not set")
			}

			composer, err := appInstance.Composer()
			if err != nil {
				return err
			}
			msg, err := composer.Sample(to)
			if err != nil {
				return err
			}
			session, err := appInstance.OpenTransport(cmd.Context())
			if err != nil {
				return fmt.Errorf("open transport: %w", err)
			}
			defer func() {
				if cerr := session.Close(); cerr != nil {
					appInstance.Logger().Warn("transport close failed", zap.Error(cerr))
				}
			}()
			if err := session.Send(cmd.Context(), msg); err != nil {
				return fmt.Errorf("send test email: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test email sent to %s\n", to)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient (defaults to send.test_recipient)")
	return cmd
}
