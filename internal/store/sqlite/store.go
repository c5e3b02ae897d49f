// Package sqlite provides the default file-backed store using go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/prospector/internal/clock/system"
	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/regdomain"
	"github.com/JakeFAU/prospector/internal/store"
)

// Config controls how the database file is opened.
type Config struct {
	Path        string
	BusyTimeout int
}

// Store implements prospect.Store on SQLite.
type Store struct {
	db    *sql.DB
	q     store.Builder
	clock prospect.Clock
}

var _ prospect.Store = (*Store)(nil)

// Open opens (creating if needed) the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("store.path is required")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, busy)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewWithDB(db, nil)
}

// NewWithDB wraps an existing handle (primarily for testing).
func NewWithDB(db *sql.DB, clock prospect.Clock) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clock == nil {
		clock = system.New()
	}
	return &Store{db: db, q: store.NewBuilder(store.DialectSQLite), clock: clock}, nil
}

// EnsureSchema creates missing tables and adds missing columns.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema, err := store.Schema(store.DialectSQLite)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	existing := map[string]map[string]bool{}
	for _, col := range store.Migrations(store.DialectSQLite) {
		cols, ok := existing[col.Table]
		if !ok {
			cols, err = s.columns(ctx, col.Table)
			if err != nil {
				return err
			}
			existing[col.Table] = cols
		}
		if cols[col.Name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, store.AddColumnSQL(store.DialectSQLite, col)); err != nil {
			return fmt.Errorf("add column %s.%s: %w", col.Table, col.Name, err)
		}
		cols[col.Name] = true
	}
	return nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return cols, nil
}

// UpsertCompany inserts the company unless its domain exists and returns the row id.
func (s *Store) UpsertCompany(ctx context.Context, in prospect.CompanyInput) (int64, error) {
	return s.writeCompany(ctx, in, s.q.InsertCompany)
}

// UpdateCompany inserts the company or overwrites its descriptive fields.
func (s *Store) UpdateCompany(ctx context.Context, in prospect.CompanyInput) (int64, error) {
	return s.writeCompany(ctx, in, s.q.OverwriteCompany)
}

func (s *Store) writeCompany(
	ctx context.Context,
	in prospect.CompanyInput,
	build func(prospect.CompanyInput) (store.Statement, error),
) (int64, error) {
	in, err := store.PrepareCompany(in)
	if err != nil {
		return 0, err
	}
	stmt, err := build(in)
	if err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
		return 0, fmt.Errorf("upsert company %s: %w", in.Domain, err)
	}
	lookup, err := s.q.CompanyIDByDomain(in.Domain)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, lookup.SQL, lookup.Args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("select company id %s: %w", in.Domain, err)
	}
	return id, nil
}

// GetCompany loads a company by domain.
func (s *Store) GetCompany(ctx context.Context, domain string) (prospect.Company, error) {
	normalized, err := regdomain.Normalize(domain)
	if err != nil {
		return prospect.Company{}, fmt.Errorf("get company: %w", err)
	}
	stmt, err := s.q.CompanyByDomain(normalized)
	if err != nil {
		return prospect.Company{}, err
	}
	var (
		c        prospect.Company
		metadata sql.NullString
		checked  sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(
		&c.ID, &c.Domain, &c.Organization, &c.Category, &c.DiscoveredFrom, &c.SourceName, &metadata, &checked,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return prospect.Company{}, fmt.Errorf("%w: %s", prospect.ErrCompanyNotFound, normalized)
	}
	if err != nil {
		return prospect.Company{}, fmt.Errorf("get company %s: %w", normalized, err)
	}
	if metadata.Valid && metadata.String != "" {
		c.Metadata = json.RawMessage(metadata.String)
	}
	if checked.Valid {
		t := checked.Time.UTC()
		c.LastChecked = &t
	}
	return c, nil
}

// TouchCompany records that the company was just enriched.
func (s *Store) TouchCompany(ctx context.Context, id int64) error {
	stmt, err := s.q.TouchCompany(id, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
		return fmt.Errorf("touch company %d: %w", id, err)
	}
	return nil
}

// UpsertContact inserts the contact unless (companyID, email) exists.
func (s *Store) UpsertContact(ctx context.Context, companyID int64, contact prospect.Contact) (bool, error) {
	contact.Email = strings.ToLower(strings.TrimSpace(contact.Email))
	if contact.Email == "" {
		return false, fmt.Errorf("upsert contact: email is required")
	}
	stmt, err := s.q.InsertContact(companyID, contact)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return false, fmt.Errorf("upsert contact %s: %w", contact.Email, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert contact rows affected: %w", err)
	}
	return n > 0, nil
}

// FetchPending returns up to limit pending contacts in queue order.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]prospect.PendingContact, error) {
	stmt, err := s.q.FetchPending(limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []prospect.PendingContact
	for rows.Next() {
		var (
			p          prospect.PendingContact
			confidence sql.NullInt64
			priority   int
		)
		if err := rows.Scan(
			&p.ID, &p.CompanyID, &p.Email, &p.Name, &p.Type, &confidence, &priority,
			&p.Domain, &p.Organization, &p.Category,
		); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		if confidence.Valid {
			v := int(confidence.Int64)
			p.Confidence = &v
		}
		p.Priority = prospect.Priority(priority)
		store.FillPlaceholders(&p)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return out, nil
}

// MarkSent records a successful delivery.
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	stmt, err := s.q.MarkSent(id, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	return s.transition(ctx, id, stmt)
}

// MarkFailed records a failed delivery with its reason.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	stmt, err := s.q.MarkFailed(id, reason, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	return s.transition(ctx, id, stmt)
}

func (s *Store) transition(ctx context.Context, id int64, stmt store.Statement) error {
	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fmt.Errorf("update contact %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact %d rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update contact %d: %w", id, prospect.ErrNotPending)
	}
	return nil
}

// Counts summarizes companies and contact statuses.
func (s *Store) Counts(ctx context.Context) (prospect.StatusCounts, error) {
	var counts prospect.StatusCounts
	companies, err := s.q.CountCompanies()
	if err != nil {
		return counts, err
	}
	if err := s.db.QueryRowContext(ctx, companies.SQL, companies.Args...).Scan(&counts.Companies); err != nil {
		return counts, fmt.Errorf("count companies: %w", err)
	}
	contacts, err := s.q.CountContacts()
	if err != nil {
		return counts, err
	}
	if err := s.db.QueryRowContext(ctx, contacts.SQL, contacts.Args...).Scan(
		&counts.Contacts, &counts.Pending, &counts.Sent, &counts.Failed,
	); err != nil {
		return counts, fmt.Errorf("count contacts: %w", err)
	}
	return counts, nil
}

// ResetStatus returns terminal contacts to pending and reports how many changed.
func (s *Store) ResetStatus(ctx context.Context, failedOnly bool) (int64, error) {
	stmt, err := s.q.ResetStatus(failedOnly)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, fmt.Errorf("reset status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset status rows affected: %w", err)
	}
	return n, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
