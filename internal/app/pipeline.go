package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/batch"
	"github.com/JakeFAU/prospector/internal/discovery"
	"github.com/JakeFAU/prospector/internal/enrich"
)

// DiscoverOptions tune a discovery run.
type DiscoverOptions struct {
	LocalOnly bool
	// SkipImport disables loading the newest contacts batch first.
	SkipImport bool
	// SkipEnrich stops after discovery.
	SkipEnrich   bool
	MaxCompanies int
}

// DiscoverReport summarizes a discovery run.
type DiscoverReport struct {
	RunID        string
	ImportedFrom string
	Import       batch.Result
	Discovery    discovery.Report
	Enrich       enrich.Summary
	// EnrichSkipped is set when no lookup API key is configured.
	EnrichSkipped bool
}

// Discover imports the newest contacts batch, runs every enabled source and
// enriches the unique companies found.
func (a *App) Discover(ctx context.Context, opts DiscoverOptions) (DiscoverReport, error) {
	var report DiscoverReport
	if id, err := a.ids.NewID(); err == nil {
		report.RunID = id
	}
	logger := a.logger.With(zap.String("run_id", report.RunID))

	if a.cfg.Enrich.ImportLatest && !opts.SkipImport {
		path, result, err := a.ImportLatest(ctx)
		if err != nil {
			return report, err
		}
		report.ImportedFrom = path
		report.Import = result
	}

	sources, err := a.Sources(opts.LocalOnly)
	if err != nil {
		return report, err
	}
	logger.Info("discovery starting", zap.Int("sources", len(sources)), zap.Bool("local_only", opts.LocalOnly))
	companies, dr, err := a.Aggregator().Discover(ctx, sources)
	report.Discovery = dr
	if err != nil {
		return report, fmt.Errorf("discover companies: %w", err)
	}

	if opts.SkipEnrich {
		return report, nil
	}
	if a.cfg.Lookup.APIKey == "" {
		report.EnrichSkipped = true
		logger.Warn("lookup api key not configured, skipping enrichment", zap.Int("companies", len(companies)))
		return report, nil
	}
	summary, err := a.Enricher(opts.MaxCompanies).Run(ctx, companies)
	report.Enrich = summary
	if err != nil {
		return report, fmt.Errorf("enrich companies: %w", err)
	}
	return report, nil
}

// ImportLatest imports the newest contacts batch in the export directory.
// It returns an empty path when there is none.
func (a *App) ImportLatest(ctx context.Context) (string, batch.Result, error) {
	path, err := batch.Latest(a.cfg.Enrich.ExportDir)
	if batch.IsNoBatch(err) {
		a.logger.Info("no contacts batch to import", zap.String("dir", a.cfg.Enrich.ExportDir))
		return "", batch.Result{}, nil
	}
	if err != nil {
		return "", batch.Result{}, fmt.Errorf("find latest batch: %w", err)
	}
	result, err := a.Importer().ImportFile(ctx, path)
	if err != nil {
		return path, result, fmt.Errorf("import %s: %w", path, err)
	}
	return path, result, nil
}
