// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/api"
	"github.com/JakeFAU/prospector/internal/batch"
	"github.com/JakeFAU/prospector/internal/clock/system"
	"github.com/JakeFAU/prospector/internal/config"
	"github.com/JakeFAU/prospector/internal/discovery"
	"github.com/JakeFAU/prospector/internal/enrich"
	collyfetcher "github.com/JakeFAU/prospector/internal/fetcher/colly"
	"github.com/JakeFAU/prospector/internal/hash/sha256"
	"github.com/JakeFAU/prospector/internal/id/uuid"
	"github.com/JakeFAU/prospector/internal/lookup"
	"github.com/JakeFAU/prospector/internal/message"
	"github.com/JakeFAU/prospector/internal/pacing"
	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/ranking"
	"github.com/JakeFAU/prospector/internal/sendqueue"
	"github.com/JakeFAU/prospector/internal/store/postgres"
	"github.com/JakeFAU/prospector/internal/store/sqlite"
	"github.com/JakeFAU/prospector/internal/transport"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and hands out the pipelines the
// commands run.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	store  prospect.Store
	clock  prospect.Clock
	ids    prospect.IDGenerator
	hasher prospect.Hasher
	ranker *ranking.Ranker

	// fetcher and opener are replaceable so tests can avoid the network.
	fetcher discovery.Fetcher
	opener  sendqueue.Opener
}

// New opens the configured store, ensures its schema and wires the
// remaining services. It fails fast if the store cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return NewWithStore(cfg, store, logger), nil
}

// NewWithStore wires an App around an existing store.
func NewWithStore(cfg config.Config, store prospect.Store, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		clock:  system.New(),
		ids:    uuid.New(),
		hasher: sha256.New(),
		ranker: ranking.New(nil),
	}
	a.fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Discovery.UserAgent,
		Timeout:     time.Duration(cfg.Discovery.TimeoutSeconds) * time.Second,
		MaxBodySize: cfg.Discovery.MaxBodyBytes,
	}, pacing.NewLimiter(pacing.LimiterConfig{RPS: cfg.Discovery.RequestsPerSecond, Burst: 1}))
	a.opener = a.openTransport
	return a
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (prospect.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to postgres")
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: time.Duration(cfg.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		return s, nil
	case config.DriverSQLite, "":
		logger.Info("opening sqlite store", zap.String("path", cfg.Path))
		s, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Path, BusyTimeout: cfg.BusyTimeoutMs})
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the persistence layer.
func (a *App) Store() prospect.Store {
	return a.store
}

// SetFetcher replaces the discovery fetcher.
func (a *App) SetFetcher(f discovery.Fetcher) {
	a.fetcher = f
}

// SetOpener replaces the transport opener.
func (a *App) SetOpener(open sendqueue.Opener) {
	a.opener = open
}

// Sources loads the source catalogue and filters it to the enabled sources.
func (a *App) Sources(localOnly bool) ([]discovery.Source, error) {
	all, err := discovery.LoadCatalog(a.cfg.Discovery.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	return discovery.Enabled(all, localOnly || a.cfg.Discovery.LocalOnly), nil
}

// Aggregator builds the discovery aggregator.
func (a *App) Aggregator() *discovery.Aggregator {
	d := a.cfg.Discovery
	return discovery.NewAggregator(
		discovery.Config{
			BaseDir:       d.BaseDir,
			SourceTimeout: time.Duration(d.SourceTimeoutSeconds) * time.Second,
			UserAgent:     d.UserAgent,
		},
		discovery.DefaultRegistry(),
		a.fetcher,
		pacing.NewPacer("discovery", config.Seconds(d.DelaySeconds), config.Seconds(d.JitterSeconds)),
		a.logger,
	)
}

// Importer builds the contacts batch importer.
func (a *App) Importer() *batch.Importer {
	return batch.NewImporter(a.store, a.ranker, a.logger)
}

// Enricher builds the enrichment pipeline. A positive maxCompanies overrides
// the configured cap.
func (a *App) Enricher(maxCompanies int) *enrich.Pipeline {
	e := a.cfg.Enrich
	if maxCompanies <= 0 {
		maxCompanies = e.MaxCompanies
	}
	client := lookup.New(
		lookup.Config{
			BaseURL:   a.cfg.Lookup.BaseURL,
			APIKey:    a.cfg.Lookup.APIKey,
			Timeout:   time.Duration(a.cfg.Lookup.TimeoutSeconds) * time.Second,
			UserAgent: a.cfg.Discovery.UserAgent,
		},
		nil,
		pacing.NewLimiter(pacing.LimiterConfig{RPS: a.cfg.Lookup.RequestsPerSecond, Burst: 1}),
		a.logger,
	)
	return enrich.New(
		enrich.Config{
			MaxCompanies: maxCompanies,
			Category:     e.Category,
			RecheckAfter: e.RecheckAfter(),
			ExportDir:    e.ExportDir,
		},
		a.store,
		client,
		a.ranker,
		pacing.NewPacer("enrich", config.Seconds(e.DelaySeconds), config.Seconds(e.JitterSeconds)),
		a.clock,
		a.logger,
	)
}

// SendQueue builds the send-queue engine. dryRun is OR-ed with the
// configured flag.
func (a *App) SendQueue(dryRun bool) *sendqueue.Engine {
	s := a.cfg.Send
	return sendqueue.New(
		a.store,
		a.opener,
		pacing.NewPacer("send", config.Seconds(s.DelaySeconds), config.Seconds(s.JitterSeconds)),
		a.hasher,
		a.ids,
		sendqueue.Config{
			Limit:                 s.Limit,
			DryRun:                dryRun || s.DryRun,
			AttachmentPath:        s.AttachmentPath,
			AttachmentName:        s.AttachmentName,
			AttachmentContentType: s.AttachmentContentType,
			Message:               a.messageConfig(),
		},
		a.logger,
	)
}

// Composer loads the attachment and builds a message composer.
func (a *App) Composer() (*message.Composer, error) {
	s := a.cfg.Send
	attachment, err := message.LoadAttachment(s.AttachmentPath, s.AttachmentName, s.AttachmentContentType)
	if err != nil {
		return nil, err
	}
	return message.NewComposer(a.messageConfig(), &attachment)
}

// OpenTransport opens an SMTP session with the configured relay.
func (a *App) OpenTransport(ctx context.Context) (sendqueue.Transport, error) {
	return a.opener(ctx)
}

// Server builds the operator HTTP server.
func (a *App) Server() *api.Server {
	return api.NewServer(a.store, api.Config{ExportDir: a.cfg.Enrich.ExportDir}, a.logger)
}

// TransportConfig maps the smtp section onto the session config.
func (a *App) TransportConfig() transport.Config {
	c := a.cfg.SMTP
	return transport.Config{
		Host:               c.Host,
		Port:               c.Port,
		Username:           c.Username,
		Password:           c.Password,
		AuthMode:           transport.AuthMode(c.AuthMode),
		AddressFamily:      transport.AddressFamily(c.AddressFamily),
		HeloIdentity:       c.HeloIdentity,
		TLSMode:            transport.TLSMode(c.TLSMode),
		InsecureSkipVerify: c.InsecureSkipVerify,
		DialTimeout:        time.Duration(c.DialTimeoutSeconds) * time.Second,
		CommandTimeout:     time.Duration(c.CommandTimeoutSeconds) * time.Second,
		IdleProbe:          time.Duration(c.IdleProbeSeconds) * time.Second,
	}
}

func (a *App) openTransport(ctx context.Context) (sendqueue.Transport, error) {
	session, err := transport.Open(ctx, a.TransportConfig(), transport.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (a *App) messageConfig() message.Config {
	return message.Config{From: a.cfg.Sender(), Signature: a.cfg.Send.Signature}
}

// Close gracefully shuts down all services in the App container.
// It is called by a Cobra hook after the command finishes execution.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if err := a.store.Close(); err != nil {
		a.logger.Warn("error closing store", zap.Error(err))
	}
	// Best effort; stderr syncs commonly fail with EINVAL.
	_ = a.logger.Sync()
}
