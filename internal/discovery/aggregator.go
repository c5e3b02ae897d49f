package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/metrics"
	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/regdomain"
)

// AdapterError records why a source produced no results.
type AdapterError struct {
	Source string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Config controls aggregation.
type Config struct {
	// BaseDir resolves relative local source paths.
	BaseDir string
	// SourceTimeout bounds a single source invocation.
	SourceTimeout time.Duration
	UserAgent     string
}

// SourceReport summarizes one source invocation.
type SourceReport struct {
	Source string
	Found  int
	Err    error
}

// Report summarizes a discovery run.
type Report struct {
	Sources []SourceReport
	Total   int
	Unique  int
	Invalid int
}

// Aggregator runs sources and deduplicates their output.
type Aggregator struct {
	cfg      Config
	registry *Registry
	fetcher  Fetcher
	pacer    Pacer
	logger   *zap.Logger
}

// NewAggregator wires an Aggregator. pacer may be nil to disable pacing.
func NewAggregator(cfg Config, registry *Registry, fetcher Fetcher, pacer Pacer, logger *zap.Logger) *Aggregator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 60 * time.Second
	}
	return &Aggregator{cfg: cfg, registry: registry, fetcher: fetcher, pacer: pacer, logger: logger.Named("discovery")}
}

// Discover invokes every source in order and returns unique companies keyed
// by registrable domain, first occurrence wins. A failing source is logged
// and contributes nothing; only context cancellation stops the run.
func (a *Aggregator) Discover(ctx context.Context, sources []Source) ([]prospect.DiscoveredCompany, Report, error) {
	var (
		all    []prospect.DiscoveredCompany
		report Report
	)
	for i, src := range sources {
		if i > 0 && a.pacer != nil {
			if _, err := a.pacer.Wait(ctx); err != nil {
				return nil, report, fmt.Errorf("discovery interrupted: %w", err)
			}
		}
		found, err := a.RunSource(ctx, src)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, report, fmt.Errorf("discovery interrupted: %w", ctxErr)
		}
		report.Sources = append(report.Sources, SourceReport{Source: src.ID, Found: len(found), Err: err})
		if err != nil {
			metrics.ObserveSourceFailure(src.ID)
			a.logger.Warn("source failed", zap.String("source", src.ID), zap.Error(err))
			continue
		}
		metrics.ObserveDiscovered(src.ID, len(found))
		a.logger.Info("source complete", zap.String("source", src.ID), zap.Int("found", len(found)))
		all = append(all, found...)
	}

	unique, invalid := Dedupe(all)
	report.Total = len(all)
	report.Unique = len(unique)
	report.Invalid = invalid
	a.logger.Info("discovery complete",
		zap.Int("sources", len(sources)),
		zap.Int("total", report.Total),
		zap.Int("unique", report.Unique),
		zap.Int("invalid", report.Invalid),
	)
	return unique, report, nil
}

// Dedupe normalizes each record's domain and keeps the first record per
// domain. Records whose URL has no registrable domain are dropped.
func Dedupe(in []prospect.DiscoveredCompany) ([]prospect.DiscoveredCompany, int) {
	seen := make(map[string]bool, len(in))
	out := make([]prospect.DiscoveredCompany, 0, len(in))
	invalid := 0
	for _, c := range in {
		raw := c.URL
		if raw == "" {
			raw = c.Domain
		}
		domain, err := regdomain.Normalize(raw)
		if err != nil {
			invalid++
			continue
		}
		if seen[domain] {
			continue
		}
		seen[domain] = true
		c.Domain = domain
		out = append(out, c)
	}
	return out, invalid
}

// RunSource invokes a single source under the configured timeout.
func (a *Aggregator) RunSource(ctx context.Context, src Source) ([]prospect.DiscoveredCompany, error) {
	parse, err := a.registry.Lookup(src.Parser)
	if err != nil {
		return nil, &AdapterError{Source: src.ID, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
	defer cancel()

	payload, err := a.load(ctx, src)
	if err != nil {
		return nil, &AdapterError{Source: src.ID, Err: err}
	}
	found, err := parse(payload, src)
	if err != nil {
		return nil, &AdapterError{Source: src.ID, Err: err}
	}
	return found, nil
}

func (a *Aggregator) load(ctx context.Context, src Source) ([]byte, error) {
	if src.IsLocal() {
		return a.readLocal(src)
	}
	if a.fetcher == nil {
		return nil, errors.New("no fetcher configured for remote sources")
	}
	target, err := withParams(src.URL, src.Params)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	if src.Type == KindJSON {
		headers.Set("Accept", "application/json")
	}
	resp, err := a.fetcher.Fetch(ctx, FetchRequest{URL: target, Headers: headers})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (a *Aggregator) readLocal(src Source) ([]byte, error) {
	if strings.TrimSpace(src.Path) == "" {
		return nil, errors.New("local source has no path")
	}
	path := src.Path
	if _, err := os.Stat(path); err != nil && !filepath.IsAbs(path) && a.cfg.BaseDir != "" {
		path = filepath.Join(a.cfg.BaseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read local source: %w", err)
	}
	return data, nil
}

func withParams(rawURL string, params map[string]string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("remote source has no url")
	}
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
