// Package enrich turns discovered companies into ranked, persisted contacts
// by querying the domain-search API one company at a time.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/batch"
	"github.com/JakeFAU/prospector/internal/clock/system"
	"github.com/JakeFAU/prospector/internal/lookup"
	"github.com/JakeFAU/prospector/internal/metrics"
	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/ranking"
	"github.com/JakeFAU/prospector/internal/regdomain"
)

// Searcher queries contacts for a domain.
type Searcher interface {
	DomainSearch(ctx context.Context, domain string) (lookup.Result, error)
}

// Pacer delays between lookups and backs off after failures.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
	Penalize()
}

// Config controls an enrichment run.
type Config struct {
	MaxCompanies int
	Category     string
	// RecheckAfter skips companies enriched more recently than this. Zero
	// always re-queries.
	RecheckAfter time.Duration
	// ExportDir receives the contacts batch file. Empty disables export.
	ExportDir string
}

// Summary reports an enrichment run.
type Summary struct {
	Considered       int
	Skipped          int
	Failed           int
	WithContacts     int
	ContactsFound    int
	ContactsInserted int
	ExportPath       string
	Results          []batch.Company
}

// Pipeline runs lookups and persists ranked contacts.
type Pipeline struct {
	cfg      Config
	store    prospect.Store
	searcher Searcher
	ranker   *ranking.Ranker
	pacer    Pacer
	clock    prospect.Clock
	logger   *zap.Logger
}

// New wires a Pipeline. pacer may be nil; ranker and clock default.
func New(
	cfg Config,
	store prospect.Store,
	searcher Searcher,
	ranker *ranking.Ranker,
	pacer Pacer,
	clock prospect.Clock,
	logger *zap.Logger,
) *Pipeline {
	if ranker == nil {
		ranker = ranking.New(nil)
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		searcher: searcher,
		ranker:   ranker,
		pacer:    pacer,
		clock:    clock,
		logger:   logger.Named("enrich"),
	}
}

// Run enriches up to MaxCompanies of the given companies in order. A failed
// lookup is logged and skipped; store errors, cancellation and lookup
// precondition failures (missing or rejected API key) abort the run.
func (p *Pipeline) Run(ctx context.Context, companies []prospect.DiscoveredCompany) (Summary, error) {
	var summary Summary
	if p.cfg.MaxCompanies > 0 && len(companies) > p.cfg.MaxCompanies {
		companies = companies[:p.cfg.MaxCompanies]
	}
	looked := 0
	for i, company := range companies {
		summary.Considered++
		domain, err := regdomain.Normalize(firstNonBlank(company.Domain, company.URL))
		if err != nil {
			summary.Skipped++
			p.logger.Debug("skipping invalid domain", zap.String("url", company.URL), zap.Error(err))
			continue
		}
		fresh, err := p.recentlyChecked(ctx, domain)
		if err != nil {
			return p.finish(summary), err
		}
		if fresh {
			summary.Skipped++
			p.logger.Debug("recently checked", zap.String("domain", domain))
			continue
		}

		if looked > 0 && p.pacer != nil {
			if _, err := p.pacer.Wait(ctx); err != nil {
				return p.finish(summary), fmt.Errorf("enrich interrupted: %w", err)
			}
		}
		looked++

		p.logger.Info("looking up company",
			zap.Int("index", i+1),
			zap.Int("total", len(companies)),
			zap.String("domain", domain),
		)
		result, err := p.searcher.DomainSearch(ctx, domain)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.finish(summary), fmt.Errorf("enrich interrupted: %w", ctxErr)
			}
			if lookup.IsPrecondition(err) {
				return p.finish(summary), fmt.Errorf("lookup %s: %w", domain, err)
			}
			summary.Failed++
			if p.pacer != nil {
				p.pacer.Penalize()
			}
			p.logger.Warn("lookup failed", zap.String("domain", domain), zap.Error(err))
			continue
		}

		entry, inserted, err := p.persist(ctx, company, domain, result)
		if err != nil {
			return p.finish(summary), err
		}
		summary.ContactsFound += len(entry.Contacts)
		summary.ContactsInserted += inserted
		if len(entry.Contacts) > 0 {
			summary.WithContacts++
			summary.Results = append(summary.Results, entry)
			p.logger.Info("contacts found", zap.String("domain", domain), zap.Int("contacts", len(entry.Contacts)))
		} else {
			p.logger.Info("no contacts found", zap.String("domain", domain))
		}
	}

	summary = p.finish(summary)
	if err := p.export(&summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (p *Pipeline) recentlyChecked(ctx context.Context, domain string) (bool, error) {
	if p.cfg.RecheckAfter <= 0 {
		return false, nil
	}
	company, err := p.store.GetCompany(ctx, domain)
	if errors.Is(err, prospect.ErrCompanyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check company %s: %w", domain, err)
	}
	if company.LastChecked == nil {
		return false, nil
	}
	return p.clock.Now().Sub(*company.LastChecked) < p.cfg.RecheckAfter, nil
}

func (p *Pipeline) persist(
	ctx context.Context,
	company prospect.DiscoveredCompany,
	domain string,
	result lookup.Result,
) (batch.Company, int, error) {
	organization, contacts := p.ranker.Rank(domain, result.Organization, result.Records)
	if company.Name != "" && result.Organization == "" {
		organization = company.Name
	}

	var metadata json.RawMessage
	if len(company.Metadata) > 0 {
		raw, err := json.Marshal(company.Metadata)
		if err != nil {
			return batch.Company{}, 0, fmt.Errorf("encode metadata %s: %w", domain, err)
		}
		metadata = raw
	}
	companyID, err := p.store.UpsertCompany(ctx, prospect.CompanyInput{
		Domain:         domain,
		Organization:   organization,
		Category:       p.cfg.Category,
		DiscoveredFrom: company.DiscoveredFrom,
		SourceName:     company.SourceName,
		Metadata:       metadata,
	})
	if err != nil {
		return batch.Company{}, 0, fmt.Errorf("persist company %s: %w", domain, err)
	}

	inserted := 0
	for _, contact := range contacts {
		ok, err := p.store.UpsertContact(ctx, companyID, contact)
		if err != nil {
			return batch.Company{}, inserted, fmt.Errorf("persist contact %s: %w", contact.Email, err)
		}
		if ok {
			inserted++
			metrics.ObserveContactPersisted(contact.Priority.String())
		}
	}
	if err := p.store.TouchCompany(ctx, companyID); err != nil {
		return batch.Company{}, inserted, err
	}

	return batch.Company{
		Company:      company.Name,
		Domain:       domain,
		Organization: organization,
		Category:     p.cfg.Category,
		Contacts:     batch.FromContacts(contacts),
	}, inserted, nil
}

func (p *Pipeline) finish(summary Summary) Summary {
	p.logger.Info("enrichment complete",
		zap.Int("considered", summary.Considered),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("with_contacts", summary.WithContacts),
		zap.Int("contacts_inserted", summary.ContactsInserted),
	)
	return summary
}

func (p *Pipeline) export(summary *Summary) error {
	if p.cfg.ExportDir == "" || len(summary.Results) == 0 {
		return nil
	}
	path := filepath.Join(p.cfg.ExportDir, batch.FileName(p.clock.Now().Local()))
	if err := batch.Write(path, summary.Results); err != nil {
		return fmt.Errorf("export contacts: %w", err)
	}
	summary.ExportPath = path
	p.logger.Info("contacts exported", zap.String("path", path), zap.Int("companies", len(summary.Results)))
	return nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
