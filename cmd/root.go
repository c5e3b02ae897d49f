// Package cmd defines and implements the CLI commands for the prospector executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/api"
	"github.com/JakeFAU/prospector/internal/app"
	"github.com/JakeFAU/prospector/internal/batch"
	"github.com/JakeFAU/prospector/internal/config"
	"github.com/JakeFAU/prospector/internal/logging"
	"github.com/JakeFAU/prospector/internal/message"
	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/sendqueue"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can
// inject their own.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Store() prospect.Store
	Discover(ctx context.Context, opts app.DiscoverOptions) (app.DiscoverReport, error)
	ImportLatest(ctx context.Context) (string, batch.Result, error)
	Importer() *batch.Importer
	SendQueue(dryRun bool) *sendqueue.Engine
	Composer() (*message.Composer, error)
	OpenTransport(ctx context.Context) (sendqueue.Transport, error)
	Server() *api.Server
}

// appFactory builds the App from the --config path.
type appFactory func(ctx context.Context, cfgPath string) (App, error)

func defaultApp(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd(newApp appFactory) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "prospector",
		Short: "Discover companies, collect their contacts and work through a paced outreach queue.",
		Long: `prospector finds company domains in public feeds, looks up the contacts
published for each domain, stores them with insert-or-ignore semantics and
drains a rate-limited, resumable SMTP send queue.`,
		SilenceUsage: true,

		// Build the application before any subcommand runs and store it in
		// the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment uses the PROSPECTOR_ prefix")

	cmd.AddCommand(
		newDiscoverCmd(),
		newImportCmd(),
		newSendCmd(),
		newStatusCmd(),
		newResetCmd(),
		newTestEmailCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. Interrupts cancel the running command,
// which leaves the queue resumable.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultApp).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "prospector: %v\n", err)
		stop()
		os.Exit(1)
	}
}
