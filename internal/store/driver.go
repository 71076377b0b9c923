// Package store provides the durable task queue, stage ledger, gate table,
// event log, memory buckets and circuit breaker records, over either SQLite
// or PostgreSQL.
//
// Adapted from internal/db/driver's Driver abstraction (kept near-verbatim:
// the dialect differences it isolates — placeholder syntax, NOW()
// equivalents, migration bookkeeping — are identical to ours) and from
// internal/storage's transactional query style.
package store

import (
	"context"
	"database/sql"
)

// Dialect identifies which SQL dialect a Driver speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect parses a dialect string, defaulting to an error for anything
// unrecognized rather than silently picking one.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case DialectSQLite, DialectPostgres:
		return Dialect(s), nil
	default:
		return "", errUnknownDialect(s)
	}
}

type errUnknownDialect string

func (e errUnknownDialect) Error() string { return "store: unknown dialect " + string(e) }

// SchemaFS abstracts the embedded migrations filesystem so Driver
// implementations don't import embed directly.
type SchemaFS interface {
	ReadDir(name string) ([]DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

// DirEntry is the subset of fs.DirEntry migrations need.
type DirEntry interface {
	Name() string
}

// Tx is a dialect-agnostic transaction handle.
type Tx interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Commit() error
	Rollback() error
}

type sqlTx struct{ tx *sql.Tx }

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// Driver isolates the SQL dialect differences between SQLite and
// PostgreSQL: placeholder syntax, timestamp functions, upsert syntax and
// migration application.
type Driver interface {
	Open(dsn string) error
	Close() error

	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)

	Migrate(ctx context.Context, schemaFS SchemaFS, schemaType string) error

	Dialect() Dialect
	// Placeholder returns the positional placeholder for the given 1-based
	// argument index ("?" for SQLite, "$N" for Postgres).
	Placeholder(index int) string
	// Now returns the dialect's current-timestamp SQL expression.
	Now() string
	DB() *sql.DB
}

// New constructs an unopened Driver for the given dialect.
func New(dialect Dialect) (Driver, error) {
	switch dialect {
	case DialectSQLite:
		return &sqliteDriver{}, nil
	case DialectPostgres:
		return &postgresDriver{}, nil
	default:
		return nil, errUnknownDialect(dialect)
	}
}
