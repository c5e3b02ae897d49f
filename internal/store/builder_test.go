package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/regdomain"
)

func TestBuilderPlaceholders(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()

	lite, err := NewBuilder(DialectSQLite).MarkSent(7, now)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE contacts SET contacted = ?, contacted_at = ?, last_error = ? WHERE id = ? AND contacted = ?", lite.SQL)
	assert.Equal(t, []any{1, now, nil, int64(7), 0}, lite.Args)

	pg, err := NewBuilder(DialectPostgres).MarkSent(7, now)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE contacts SET contacted = $1, contacted_at = $2, last_error = $3 WHERE id = $4 AND contacted = $5", pg.SQL)
}

func TestMarkFailedTruncates(t *testing.T) {
	t.Parallel()

	stmt, err := NewBuilder(DialectSQLite).MarkFailed(1, strings.Repeat("e", 900), time.Now())
	require.NoError(t, err)
	reason, ok := stmt.Args[2].(string)
	require.True(t, ok)
	assert.Len(t, reason, prospect.MaxErrorLength)
	assert.Equal(t, -1, stmt.Args[0])
}

func TestMarkFailedTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	msg := strings.Repeat("a", prospect.MaxErrorLength-1) + "é" + strings.Repeat("b", 10)
	stmt, err := NewBuilder(DialectPostgres).MarkFailed(1, msg, time.Now())
	require.NoError(t, err)
	reason, ok := stmt.Args[2].(string)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(reason))
	assert.Equal(t, prospect.MaxErrorLength, utf8.RuneCountInString(reason))
}

func TestFetchPendingOrdering(t *testing.T) {
	t.Parallel()

	stmt, err := NewBuilder(DialectPostgres).FetchPending(5)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "LEFT JOIN companies co ON co.id = c.company_id")
	assert.Contains(t, stmt.SQL, "WHERE c.contacted = $1")
	assert.Contains(t, stmt.SQL, "ORDER BY COALESCE(c.priority, 3) ASC, CASE WHEN c.confidence IS NULL THEN 1 ELSE 0 END ASC, c.confidence DESC, LOWER(c.email) ASC, c.id ASC")
	assert.True(t, strings.HasSuffix(stmt.SQL, "LIMIT 5"))

	_, err = NewBuilder(DialectPostgres).FetchPending(0)
	require.Error(t, err)
}

func TestInsertStatementsIgnoreConflicts(t *testing.T) {
	t.Parallel()

	b := NewBuilder(DialectSQLite)
	company, err := b.InsertCompany(prospect.CompanyInput{Domain: "acme.com", Organization: "Acme", Category: "engineering"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(company.SQL, "ON CONFLICT (domain) DO NOTHING"))
	assert.Nil(t, company.Args[5])

	conf := 80
	contact, err := b.InsertContact(3, prospect.Contact{Email: "a@acme.com", Confidence: &conf, Priority: prospect.PriorityHR})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(contact.SQL, "ON CONFLICT (company_id, email) DO NOTHING"))
	assert.Equal(t, 80, contact.Args[5])
	assert.Equal(t, 1, contact.Args[7])

	overwrite, err := b.OverwriteCompany(prospect.CompanyInput{Domain: "acme.com", Metadata: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	assert.Contains(t, overwrite.SQL, "DO UPDATE SET organization = excluded.organization")
	assert.Equal(t, `{"a":1}`, overwrite.Args[5])
}

func TestResetStatus(t *testing.T) {
	t.Parallel()

	failed, err := NewBuilder(DialectSQLite).ResetStatus(true)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(failed.SQL, "WHERE contacted = ?"))
	assert.Equal(t, -1, failed.Args[len(failed.Args)-1])

	all, err := NewBuilder(DialectSQLite).ResetStatus(false)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(all.SQL, "WHERE contacted <> ?"))
}

func TestPrepareCompany(t *testing.T) {
	t.Parallel()

	got, err := PrepareCompany(prospect.CompanyInput{Domain: "https://jobs.Acme.com/x"})
	require.NoError(t, err)
	assert.Equal(t, "acme.com", got.Domain)
	assert.Equal(t, "acme.com", got.Organization)
	assert.Equal(t, prospect.DefaultCategory, got.Category)

	_, err = PrepareCompany(prospect.CompanyInput{Domain: "localhost"})
	require.ErrorIs(t, err, regdomain.ErrInvalidDomain)
}

func TestFillPlaceholders(t *testing.T) {
	t.Parallel()

	p := prospect.PendingContact{Email: "hi@mail.orphan.io"}
	FillPlaceholders(&p)
	assert.Equal(t, "orphan.io", p.Domain)
	assert.Equal(t, "orphan.io", p.Organization)
	assert.Equal(t, prospect.DefaultCategory, p.Category)
	assert.Equal(t, prospect.DefaultContactType, p.Type)

	kept := prospect.PendingContact{Email: "x@y.com", Domain: "y.com", Organization: "Y", Category: "design", Type: "generic"}
	FillPlaceholders(&kept)
	assert.Equal(t, "Y", kept.Organization)
	assert.Equal(t, "design", kept.Category)
}

func TestSchemaAndMigrations(t *testing.T) {
	t.Parallel()

	_, err := Schema("mysql")
	require.Error(t, err)

	for _, d := range []Dialect{DialectSQLite, DialectPostgres} {
		schema, err := Schema(d)
		require.NoError(t, err)
		assert.Contains(t, schema, "UNIQUE(company_id, email)")
		for _, col := range Migrations(d) {
			assert.Contains(t, schema, col.Name, "schema should already carry migrated column %s", col.Name)
		}
	}
	assert.Equal(t,
		"ALTER TABLE contacts ADD COLUMN IF NOT EXISTS priority INTEGER DEFAULT 3",
		AddColumnSQL(DialectPostgres, Column{Table: "contacts", Name: "priority", Definition: "INTEGER DEFAULT 3"}))
}
