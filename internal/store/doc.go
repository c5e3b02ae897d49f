// Package store holds the SQL shared by the SQLite and Postgres backends:
// schema, additive migrations, and squirrel-built statements for the
// companies and contacts tables.
package store
