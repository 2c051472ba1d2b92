/*
Package sqlstore persists the planning engine in SQLite or PostgreSQL.

PURPOSE:
  Implements planning.Store (and with it counter.Store) on database/sql.
  One portable schema and one set of queries serve both engines. The only
  dialect difference handled at runtime is the bind-parameter syntax
  (? for SQLite, $n for PostgreSQL).

DRIVERS:
  sqlite    github.com/mattn/go-sqlite3 (cgo)
  postgres  github.com/jackc/pgx/v5/stdlib

ENCODING:
  Instants:  fixed-width UTC text, 2006-01-02T15:04:05.000000000Z, so that
             string comparison is time comparison
  Dates:     YYYY-MM-DD
  Decimals:  shopspring/decimal text, never float
  Lists:     JSON text (roles, template slots, publication findings);
             appointment participants get their own table so range queries
             can filter on them

TRANSACTIONS:
  WithTx opens a database transaction and hands fn a Store bound to it.
  WithTx on that Store opens a SAVEPOINT: a failing nested fn rolls back to
  it and the outer transaction carries on. This is what lets a batch keep
  its good items when one item fails, on PostgreSQL too, where a failed
  statement otherwise poisons the whole transaction.

UNIQUENESS:
  Unique violations are read from the driver error code (pgerrcode /
  sqlite3 extended codes), never from the message text:
    month_schedules(villa_id, year, month)  -> planning.ErrDuplicate
    counters(user_id, kind, period_key)     -> planning.ErrDuplicate
    counter_mutations(idempotency_key)      -> counter.ErrDuplicateIdempotencyKey

MIGRATION:
  Embedded migrations/*.sql run in file-name order; applied files are
  recorded in schema_migrations.

SQLITE NOTES:
  The pool is limited to one connection. ":memory:" then names a single
  database, and writers queue instead of failing with SQLITE_BUSY.

SEE ALSO:
  - planning/store.go: the contract
  - planning/store/memory.go: the in-memory twin used by unit tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect selects the database engine.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case SQLite:
		return "sqlite3", nil
	case Postgres:
		return "pgx", nil
	}
	return "", fmt.Errorf("unknown database driver %q", d)
}

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements planning.Store. The zero value is not usable; call Open.
type Store struct {
	db      *sql.DB
	q       querier
	dialect Dialect
	logger  *zap.Logger

	// set on transactional views only
	tx    *sql.Tx
	depth int
}

var (
	_ planning.Store = (*Store)(nil)
	_ counter.Store  = (*Store)(nil)
)

// Open connects, pings and migrates. dsn is a file path (or ":memory:") for
// SQLite and a connection string for PostgreSQL.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *zap.Logger) (*Store, error) {
	driver, err := dialect.driverName()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dialect == SQLite && dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, q: db, dialect: dialect, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewSQLite opens a SQLite database file, or ":memory:".
func NewSQLite(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	return Open(ctx, SQLite, path, logger)
}

// NewPostgres opens a PostgreSQL database from a connection string.
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	return Open(ctx, Postgres, dsn, logger)
}

// Close closes the database. Calling it on a transactional view is a no-op.
func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

// Dialect reports the engine in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// =============================================================================
// MIGRATIONS
// =============================================================================

// Migrate applies the embedded migrations not yet recorded.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration filename: %w", err)
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		if applied[name] {
			continue
		}
		body, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		err = s.WithTx(ctx, func(st planning.Store) error {
			view := st.(*Store)
			if _, err := view.q.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			return view.exec(ctx, `INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)`,
				name, formatTime(time.Now()))
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", zap.String("file", name))
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a transaction, or in a savepoint when s is already a
// transactional view.
func (s *Store) WithTx(ctx context.Context, fn func(planning.Store) error) error {
	if s.tx != nil {
		return s.savepoint(ctx, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	view := &Store{db: s.db, q: tx, dialect: s.dialect, logger: s.logger, tx: tx, depth: 1}
	if err := fn(view); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) savepoint(ctx context.Context, fn func(planning.Store) error) error {
	name := "sp_" + strconv.Itoa(s.depth)
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}

	view := &Store{db: s.db, q: s.tx, dialect: s.dialect, logger: s.logger, tx: s.tx, depth: s.depth + 1}
	if err := fn(view); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// WithCounterTx is WithTx for the counter ledger.
func (s *Store) WithCounterTx(ctx context.Context, fn func(counter.Store) error) error {
	return s.WithTx(ctx, func(st planning.Store) error { return fn(st) })
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries in this
// package never contain a literal question mark.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.q.ExecContext(ctx, s.rebind(query), args...)
	return err
}

func (s *Store) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// queryAll runs query and scans every row with scan. Rows are fully read
// and closed before returning, so callers may issue follow-up queries.
func queryAll[T any](ctx context.Context, s *Store, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := s.q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(err error, entity, id string, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &planning.NotFoundError{Entity: entity, ID: id, Err: sentinel}
	}
	return err
}
