// Package sqldb implements rbac.Store on database/sql for PostgreSQL (lib/pq)
// and SQLite (mattn/go-sqlite3).
//
// Every multi-statement write runs in one transaction. SaveRole rewrites the
// role's permission set in the same transaction as the role row, and removals
// delete dependent grants before the entity itself.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is a SQL-backed rbac.Store
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *observability.Logger
}

var (
	_ rbac.Store    = (*Store)(nil)
	_ rbac.Migrator = (*Store)(nil)
)

// New wraps an open database handle
func New(db *sql.DB, dialect Dialect, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger.WithField("backend", dialect.Name),
	}
}

// Open connects using config and wraps the handle
func Open(config Config, logger *observability.Logger) (*Store, error) {
	db, dialect, err := Connect(config)
	if err != nil {
		return nil, err
	}
	return New(db, dialect, logger), nil
}

// DB returns the underlying handle for health checks and pool metrics
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's SQL dialect
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Migrate applies pending schema migrations
func (s *Store) Migrate(ctx context.Context) error {
	applied, err := RunMigrations(ctx, s.db, s.dialect)
	if err != nil {
		return rbac.NewStoreError("migrate", err)
	}
	if applied > 0 {
		s.logger.WithField("applied", applied).Info("schema migrations applied")
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return rbac.NewStoreError("ping", s.db.PingContext(ctx))
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// withTx runs fn in a transaction, committing only if fn succeeds
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rbac.NewStoreError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return rbac.NewStoreError(op, err)
	}
	return nil
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func int64Args(values []int64) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func rowsAffected(op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, rbac.NewStoreError(op, fmt.Errorf("rows affected: %w", err))
	}
	return n, nil
}
