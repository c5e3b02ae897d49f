package store

import "fmt"

// Dialect selects placeholder style and DDL flavour.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS companies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    domain TEXT NOT NULL UNIQUE,
    organization TEXT,
    category TEXT DEFAULT 'engineering',
    last_checked TIMESTAMP,
    discovered_from TEXT,
    source_name TEXT,
    metadata TEXT
);
CREATE TABLE IF NOT EXISTS contacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company_id INTEGER NOT NULL,
    email TEXT NOT NULL,
    name TEXT,
    position TEXT,
    department TEXT,
    confidence INTEGER,
    type TEXT,
    priority INTEGER DEFAULT 3,
    contacted INTEGER DEFAULT 0,
    contacted_at TIMESTAMP,
    last_error TEXT,
    retry_count INTEGER DEFAULT 0,
    UNIQUE(company_id, email),
    FOREIGN KEY (company_id) REFERENCES companies(id)
);
CREATE INDEX IF NOT EXISTS idx_contacts_contacted ON contacts(contacted);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS companies (
    id BIGSERIAL PRIMARY KEY,
    domain TEXT NOT NULL UNIQUE,
    organization TEXT,
    category TEXT DEFAULT 'engineering',
    last_checked TIMESTAMPTZ,
    discovered_from TEXT,
    source_name TEXT,
    metadata JSONB
);
CREATE TABLE IF NOT EXISTS contacts (
    id BIGSERIAL PRIMARY KEY,
    company_id BIGINT NOT NULL REFERENCES companies(id),
    email TEXT NOT NULL,
    name TEXT,
    position TEXT,
    department TEXT,
    confidence INTEGER,
    type TEXT,
    priority INTEGER DEFAULT 3,
    contacted INTEGER DEFAULT 0,
    contacted_at TIMESTAMPTZ,
    last_error TEXT,
    retry_count INTEGER DEFAULT 0,
    UNIQUE(company_id, email)
);
CREATE INDEX IF NOT EXISTS idx_contacts_contacted ON contacts(contacted);
`

// Schema returns the idempotent CREATE statements for the dialect.
func Schema(d Dialect) (string, error) {
	switch d {
	case DialectSQLite:
		return sqliteSchema, nil
	case DialectPostgres:
		return postgresSchema, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", d)
	}
}

// Column is a column added after the first release. Migrations only ever add
// columns; nothing is dropped or renamed.
type Column struct {
	Table      string
	Name       string
	Definition string
}

// Migrations lists columns older databases may be missing.
func Migrations(d Dialect) []Column {
	ts := "TIMESTAMP"
	meta := "TEXT"
	if d == DialectPostgres {
		ts = "TIMESTAMPTZ"
		meta = "JSONB"
	}
	return []Column{
		{Table: "companies", Name: "category", Definition: "TEXT DEFAULT 'engineering'"},
		{Table: "companies", Name: "last_checked", Definition: ts},
		{Table: "companies", Name: "discovered_from", Definition: "TEXT"},
		{Table: "companies", Name: "source_name", Definition: "TEXT"},
		{Table: "companies", Name: "metadata", Definition: meta},
		{Table: "contacts", Name: "position", Definition: "TEXT"},
		{Table: "contacts", Name: "department", Definition: "TEXT"},
		{Table: "contacts", Name: "priority", Definition: "INTEGER DEFAULT 3"},
		{Table: "contacts", Name: "contacted_at", Definition: ts},
		{Table: "contacts", Name: "last_error", Definition: "TEXT"},
		{Table: "contacts", Name: "retry_count", Definition: "INTEGER DEFAULT 0"},
	}
}

// AddColumnSQL renders the ALTER statement for c. Postgres skips existing
// columns itself; SQLite callers must check table_info first.
func AddColumnSQL(d Dialect, c Column) string {
	if d == DialectPostgres {
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", c.Table, c.Name, c.Definition)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Name, c.Definition)
}
