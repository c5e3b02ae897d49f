package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/regdomain"
)

const (
	companiesTable = "companies"
	contactsTable  = "contacts"
)

var companyColumns = []string{
	"id", "domain", "organization", "category", "discovered_from", "source_name", "metadata", "last_checked",
}

// PendingColumns are the columns selected by FetchPending, in scan order.
var PendingColumns = []string{
	"c.id",
	"c.company_id",
	"c.email",
	"COALESCE(c.name, '')",
	"COALESCE(c.type, '')",
	"c.confidence",
	"COALESCE(c.priority, 3)",
	"COALESCE(co.domain, '')",
	"COALESCE(co.organization, '')",
	"COALESCE(co.category, '')",
}

// Statement is a rendered SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

// Builder renders dialect-specific statements.
type Builder struct {
	dialect Dialect
	sb      sq.StatementBuilderType
}

// NewBuilder returns a Builder for d.
func NewBuilder(d Dialect) Builder {
	var format sq.PlaceholderFormat = sq.Question
	if d == DialectPostgres {
		format = sq.Dollar
	}
	return Builder{dialect: d, sb: sq.StatementBuilder.PlaceholderFormat(format)}
}

// Dialect returns the builder's dialect.
func (b Builder) Dialect() Dialect {
	return b.dialect
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func render(s sqlizer) (Statement, error) {
	query, args, err := s.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("build sql: %w", err)
	}
	return Statement{SQL: query, Args: args}, nil
}

// PrepareCompany validates and fills defaults on a company before it is written.
func PrepareCompany(in prospect.CompanyInput) (prospect.CompanyInput, error) {
	domain, err := regdomain.Normalize(in.Domain)
	if err != nil {
		return prospect.CompanyInput{}, fmt.Errorf("prepare company: %w", err)
	}
	in.Domain = domain
	in.Organization = strings.TrimSpace(in.Organization)
	if in.Organization == "" {
		in.Organization = domain
	}
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		in.Category = prospect.DefaultCategory
	}
	return in, nil
}

func metadataArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (b Builder) companyInsert(in prospect.CompanyInput) sq.InsertBuilder {
	return b.sb.Insert(companiesTable).
		Columns("domain", "organization", "category", "discovered_from", "source_name", "metadata").
		Values(in.Domain, in.Organization, in.Category, in.DiscoveredFrom, in.SourceName, metadataArg(in.Metadata))
}

// InsertCompany inserts a company and ignores a duplicate domain.
func (b Builder) InsertCompany(in prospect.CompanyInput) (Statement, error) {
	return render(b.companyInsert(in).Suffix("ON CONFLICT (domain) DO NOTHING"))
}

// OverwriteCompany inserts a company or replaces the descriptive fields of an
// existing row with the same domain.
func (b Builder) OverwriteCompany(in prospect.CompanyInput) (Statement, error) {
	return render(b.companyInsert(in).Suffix(
		"ON CONFLICT (domain) DO UPDATE SET organization = excluded.organization, " +
			"category = excluded.category, discovered_from = excluded.discovered_from, " +
			"source_name = excluded.source_name, metadata = excluded.metadata"))
}

// CompanyIDByDomain selects the id of the company with domain.
func (b Builder) CompanyIDByDomain(domain string) (Statement, error) {
	return render(b.sb.Select("id").From(companiesTable).Where(sq.Eq{"domain": domain}))
}

// CompanyByDomain selects a full company row. Nullable columns are coalesced.
func (b Builder) CompanyByDomain(domain string) (Statement, error) {
	return render(b.sb.Select(
		companyColumns[0],
		companyColumns[1],
		"COALESCE(organization, '')",
		"COALESCE(category, '')",
		"COALESCE(discovered_from, '')",
		"COALESCE(source_name, '')",
		"metadata",
		"last_checked",
	).From(companiesTable).Where(sq.Eq{"domain": domain}))
}

// TouchCompany stamps last_checked.
func (b Builder) TouchCompany(id int64, now time.Time) (Statement, error) {
	return render(b.sb.Update(companiesTable).Set("last_checked", now).Where(sq.Eq{"id": id}))
}

// InsertContact inserts a contact and ignores a duplicate (company_id, email).
func (b Builder) InsertContact(companyID int64, c prospect.Contact) (Statement, error) {
	var confidence any
	if c.Confidence != nil {
		confidence = *c.Confidence
	}
	return render(b.sb.Insert(contactsTable).
		Columns("company_id", "email", "name", "position", "department", "confidence", "type", "priority").
		Values(companyID, c.Email, c.Name, c.Position, c.Department, confidence, c.Type, int(c.Priority)).
		Suffix("ON CONFLICT (company_id, email) DO NOTHING"))
}

// FetchPending selects pending contacts in queue order.
func (b Builder) FetchPending(limit int) (Statement, error) {
	if limit <= 0 {
		return Statement{}, fmt.Errorf("fetch pending: limit must be positive, got %d", limit)
	}
	return render(b.sb.Select(PendingColumns...).
		From(contactsTable+" c").
		LeftJoin(companiesTable+" co ON co.id = c.company_id").
		Where(sq.Eq{"c.contacted": int(prospect.StatusPending)}).
		OrderBy(
			"COALESCE(c.priority, 3) ASC",
			"CASE WHEN c.confidence IS NULL THEN 1 ELSE 0 END ASC",
			"c.confidence DESC",
			"LOWER(c.email) ASC",
			"c.id ASC",
		).
		Limit(uint64(limit)))
}

// MarkSent moves a pending contact to sent and clears its last error.
func (b Builder) MarkSent(id int64, now time.Time) (Statement, error) {
	return render(b.sb.Update(contactsTable).
		Set("contacted", int(prospect.StatusSent)).
		Set("contacted_at", now).
		Set("last_error", nil).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"contacted": int(prospect.StatusPending)}))
}

// MarkFailed moves a pending contact to failed and records reason.
func (b Builder) MarkFailed(id int64, reason string, now time.Time) (Statement, error) {
	reason = prospect.TruncateReason(reason)
	return render(b.sb.Update(contactsTable).
		Set("contacted", int(prospect.StatusFailed)).
		Set("contacted_at", now).
		Set("last_error", reason).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"contacted": int(prospect.StatusPending)}))
}

// ResetStatus returns terminal contacts to pending. With failedOnly, sent
// contacts are left alone.
func (b Builder) ResetStatus(failedOnly bool) (Statement, error) {
	q := b.sb.Update(contactsTable).
		Set("contacted", int(prospect.StatusPending)).
		Set("contacted_at", nil).
		Set("last_error", nil)
	if failedOnly {
		q = q.Where(sq.Eq{"contacted": int(prospect.StatusFailed)})
	} else {
		q = q.Where(sq.NotEq{"contacted": int(prospect.StatusPending)})
	}
	return render(q)
}

// CountCompanies counts company rows.
func (b Builder) CountCompanies() (Statement, error) {
	return render(b.sb.Select("COUNT(*)").From(companiesTable))
}

// CountContacts returns total, pending, sent, and failed counts in one row.
func (b Builder) CountContacts() (Statement, error) {
	return render(b.sb.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN contacted = 0 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN contacted = 1 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN contacted = -1 THEN 1 ELSE 0 END), 0)",
	).From(contactsTable))
}

// FillPlaceholders derives display fields for a contact whose company row is
// missing or incomplete.
func FillPlaceholders(p *prospect.PendingContact) {
	if p.Domain == "" {
		if domain, err := regdomain.FromEmail(p.Email); err == nil {
			p.Domain = domain
		} else if at := strings.LastIndex(p.Email, "@"); at >= 0 {
			p.Domain = p.Email[at+1:]
		}
	}
	if p.Organization == "" {
		p.Organization = p.Domain
	}
	if p.Category == "" {
		p.Category = prospect.DefaultCategory
	}
	if p.Type == "" {
		p.Type = prospect.DefaultContactType
	}
}
