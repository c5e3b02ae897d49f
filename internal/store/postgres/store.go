// Package postgres provides a pgx-backed store for shared deployments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/prospector/internal/clock/system"
	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/regdomain"
	"github.com/JakeFAU/prospector/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements prospect.Store on Postgres.
type Store struct {
	pool  pool
	q     store.Builder
	clock prospect.Clock
}

var _ prospect.Store = (*Store)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p, nil)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, clock prospect.Clock) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		clock = system.New()
	}
	return &Store{pool: p, q: store.NewBuilder(store.DialectPostgres), clock: clock}, nil
}

// EnsureSchema creates tables and adds any missing columns.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema, err := store.Schema(store.DialectPostgres)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	for _, col := range store.Migrations(store.DialectPostgres) {
		if _, err := s.pool.Exec(ctx, store.AddColumnSQL(store.DialectPostgres, col)); err != nil {
			return fmt.Errorf("add column %s.%s: %w", col.Table, col.Name, err)
		}
	}
	return nil
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
	if _, err := s.pool.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
		return 0, fmt.Errorf("upsert company %s: %w", in.Domain, err)
	}
	lookup, err := s.q.CompanyIDByDomain(in.Domain)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.pool.QueryRow(ctx, lookup.SQL, lookup.Args...).Scan(&id); err != nil {
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
		metadata *string
		checked  *time.Time
	)
	err = s.pool.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(
		&c.ID, &c.Domain, &c.Organization, &c.Category, &c.DiscoveredFrom, &c.SourceName, &metadata, &checked,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return prospect.Company{}, fmt.Errorf("%w: %s", prospect.ErrCompanyNotFound, normalized)
	}
	if err != nil {
		return prospect.Company{}, fmt.Errorf("get company %s: %w", normalized, err)
	}
	if metadata != nil && *metadata != "" {
		c.Metadata = json.RawMessage(*metadata)
	}
	if checked != nil {
		t := checked.UTC()
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
	if _, err := s.pool.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
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
	tag, err := s.pool.Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return false, fmt.Errorf("upsert contact %s: %w", contact.Email, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FetchPending returns up to limit pending contacts in queue order.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]prospect.PendingContact, error) {
	stmt, err := s.q.FetchPending(limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer rows.Close()

	var out []prospect.PendingContact
	for rows.Next() {
		var (
			p          prospect.PendingContact
			confidence *int
			priority   int
		)
		if err := rows.Scan(
			&p.ID, &p.CompanyID, &p.Email, &p.Name, &p.Type, &confidence, &priority,
			&p.Domain, &p.Organization, &p.Category,
		); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		p.Confidence = confidence
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
	tag, err := s.pool.Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fmt.Errorf("update contact %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
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
	if err := s.pool.QueryRow(ctx, companies.SQL, companies.Args...).Scan(&counts.Companies); err != nil {
		return counts, fmt.Errorf("count companies: %w", err)
	}
	contacts, err := s.q.CountContacts()
	if err != nil {
		return counts, err
	}
	if err := s.pool.QueryRow(ctx, contacts.SQL, contacts.Args...).Scan(
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
	tag, err := s.pool.Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, fmt.Errorf("reset status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks pool connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
