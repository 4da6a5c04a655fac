// Package postgres is the production Repository implementation: a
// sqlx.DB-backed Store satisfying every contract engine/repository,
// engine/scope, engine/subscription, engine/compensation, and engine/outbox
// declare, plus the embedded schema migrations that bootstrap it. Grounded
// on the teacher's system/events/store_postgres.go (CREATE TABLE IF NOT
// EXISTS, JSONB payload columns, database/sql scan helpers) and
// engine/repository/memory.go's Store-adapter pattern, generalized from
// database/sql to sqlx for struct-scanning and from one table to the full
// entity set §3/§6 name.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/r3e-network/flowlayer/pkg/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a sqlx.DB connection and implements the persistence side of
// every Repository contract the engine depends on. Its own methods are
// named uniquely per entity for the same reason Memory's are (no two
// contracts the engine declares share a method name with a different
// signature) — see the adapter types in adapters.go.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres per cfg and applies pool limits. Callers should
// call Migrate before serving traffic.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies every pending embedded migration. Safe to call on every
// startup: golang-migrate no-ops once the schema is current.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// queryer is the subset of *sqlx.DB every entity file calls through
// Querier. *sqlx.Tx satisfies it too, which is what lets a context carrying
// an open transaction redirect every entity method onto that transaction
// with no change to the call site itself.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type txKey struct{}

// ContextWithTx returns a context carrying tx; entity methods called with
// it run against tx instead of the connection pool.
func ContextWithTx(ctx context.Context, tx queryer) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext extracts the transaction ctx carries, if any.
func TxFromContext(ctx context.Context) queryer {
	tx, _ := ctx.Value(txKey{}).(queryer)
	return tx
}

// Querier returns the queryer ctx's transaction binds to, or the pool
// itself outside a transaction — the same fallback shape every entity
// method in this package relies on.
func (s *Store) Querier(ctx context.Context) queryer {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// WithTx runs fn with ctx bound to one new database transaction: every
// entity method any of fn's repositories/managers call during fn resolves
// to that transaction via Querier, and the transaction commits only if fn
// returns nil. This is the boundary a work unit needs around its state
// mutations and its outbox append so the two can never diverge on a
// mid-unit crash (§4.F: exactly one outbox row per work unit, in the same
// transaction that mutated core state) — grounded on the teacher's
// pkg/storage/postgres.BaseStore.WithTx, generalized from *sql.Tx to
// sqlx's Tx so struct-scanning call sites keep working unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txCtx := ContextWithTx(ctx, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ctxExec is a convenience wrapper most Store methods use, grouping the two
// sqlx call styles (NamedExecContext for struct args, ExecContext for plain
// positional ones) into one place so each entity file stays terse.
func ctxExec(ctx context.Context, db queryer, query string, args ...interface{}) error {
	_, err := db.ExecContext(ctx, query, args...)
	return err
}
