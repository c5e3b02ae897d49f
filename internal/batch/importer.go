package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/metrics"
	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/ranking"
	"github.com/JakeFAU/prospector/internal/regdomain"
)

// SourceName tags companies created by an import.
const SourceName = "batch_import"

// Classifier assigns a priority to a raw contact.
type Classifier interface {
	Classify(rec ranking.Record) prospect.Priority
}

// Result counts what an import did.
type Result struct {
	Companies     int
	InvalidDomain int
	Contacts      int
	Inserted      int
	Duplicates    int
	// Demoted counts contacts that ranked as excluded and were stored as
	// generic instead.
	Demoted int
	Blank   int
}

// Importer loads batch entries into the store with insert-or-ignore semantics.
type Importer struct {
	store      prospect.Store
	classifier Classifier
	logger     *zap.Logger
	// Overwrite replaces organization and category of existing companies.
	Overwrite bool
}

// NewImporter wires an Importer. A nil classifier uses the default rules.
func NewImporter(store prospect.Store, classifier Classifier, logger *zap.Logger) *Importer {
	if classifier == nil {
		classifier = ranking.New(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, classifier: classifier, logger: logger.Named("batch")}
}

// ImportFile reads and imports a batch file.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	companies, err := Read(path)
	if err != nil {
		return Result{}, err
	}
	res, err := im.Import(ctx, companies, filepath.Base(path))
	if err != nil {
		return res, err
	}
	im.logger.Info("batch imported",
		zap.String("path", path),
		zap.Int("companies", res.Companies),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("demoted", res.Demoted),
	)
	return res, nil
}

// Import persists companies and their contacts. Contacts without a stored
// priority are classified. Every contact with an email is stored; excluded
// ones are queued as generic. Store errors abort.
func (im *Importer) Import(ctx context.Context, companies []Company, origin string) (Result, error) {
	var res Result
	for _, item := range companies {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import interrupted: %w", err)
		}
		domain, err := regdomain.Normalize(item.Domain)
		if err != nil {
			res.InvalidDomain++
			im.logger.Debug("skipping invalid domain", zap.String("domain", item.Domain), zap.Error(err))
			continue
		}
		org := firstNonBlank(item.Organization, item.Company, domain)
		in := prospect.CompanyInput{
			Domain:         domain,
			Organization:   org,
			Category:       item.Category,
			DiscoveredFrom: origin,
			SourceName:     SourceName,
		}
		write := im.store.UpsertCompany
		if im.Overwrite {
			write = im.store.UpdateCompany
		}
		companyID, err := write(ctx, in)
		if err != nil {
			return res, fmt.Errorf("import company %s: %w", domain, err)
		}
		res.Companies++

		for _, c := range item.Contacts {
			contact, demoted, ok := im.contact(c)
			if !ok {
				res.Blank++
				continue
			}
			if demoted {
				res.Demoted++
			}
			res.Contacts++
			inserted, err := im.store.UpsertContact(ctx, companyID, contact)
			if err != nil {
				return res, fmt.Errorf("import contact %s: %w", contact.Email, err)
			}
			if inserted {
				res.Inserted++
				metrics.ObserveContactPersisted(contact.Priority.String())
			} else {
				res.Duplicates++
			}
		}
	}
	return res, nil
}

func (im *Importer) contact(c Contact) (prospect.Contact, bool, bool) {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" {
		return prospect.Contact{}, false, false
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = prospect.UnknownName
	}
	ctype := strings.ToLower(strings.TrimSpace(c.Type))
	if ctype == "" {
		ctype = prospect.DefaultContactType
	}
	var priority prospect.Priority
	if c.Priority != nil && *c.Priority >= 0 && *c.Priority <= int(prospect.PriorityExcluded) {
		priority = prospect.Priority(*c.Priority)
	} else {
		first := name
		if first == prospect.UnknownName {
			first = ""
		}
		priority = im.classifier.Classify(ranking.Record{
			Email:      email,
			FirstName:  first,
			Position:   c.Position,
			Department: c.Department,
			Type:       ctype,
			Confidence: c.Confidence,
		})
	}
	demoted := !priority.Persisted()
	if demoted {
		priority = prospect.PriorityGeneric
	}
	return prospect.Contact{
		Email:           email,
		Name:            name,
		Position:        strings.TrimSpace(c.Position),
		Department:      strings.TrimSpace(c.Department),
		Type:            ctype,
		Confidence:      c.Confidence,
		Priority:        priority,
		IsDecisionMaker: priority == prospect.PriorityDecisionMaker,
	}, demoted, true
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// IsNoBatch reports whether err means no batch file exists.
func IsNoBatch(err error) bool {
	return errors.Is(err, ErrNoBatch)
}
