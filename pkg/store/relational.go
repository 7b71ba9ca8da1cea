// Package store provides the shared persistence adapters spec.md §4.F
// names as contracts, not implementations: a pooled relational client, an
// async cache client, a vector client, and a graph-fallback client.
//
// Grounded in the teacher's pkg/database/client.go (pgx-backed pool,
// connection-pool tuning, migration bootstrap) with entgo.io/ent dropped
// in favor of hand-written repositories over the same pgx driver (DESIGN.md
// "Dropped deps"), plus the kubernaut pack's direct use of
// github.com/jmoiron/sqlx for struct-scanning ergonomics atop that driver.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// RelationalConfig mirrors the teacher's database.Config shape, adapted
// from a single-tenant Ent client to a bare pgx/sqlx pool any repository
// in this module can compose over.
type RelationalConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	StatementTimeout time.Duration
}

// Relational wraps a pooled *sqlx.DB with the statement-timeout and
// transactional-context helpers every repository in this module needs
// (§4.F "a pooled relational client (parameterized queries only,
// configurable statement timeout, transactional context with guaranteed
// commit-or-rollback)").
type Relational struct {
	db               *sqlx.DB
	statementTimeout time.Duration
}

// NewRelational opens a pooled connection and runs embedded migrations,
// mirroring the teacher's NewClient flow (open -> configure pool -> ping
// -> migrate) minus the Ent driver wrapping.
func NewRelational(ctx context.Context, cfg RelationalConfig) (*Relational, error) {
	sqlDB, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Relational{db: sqlx.NewDb(sqlDB, "pgx"), statementTimeout: cfg.StatementTimeout}, nil
}

// NewRelationalFromDB wraps an already-open *sqlx.DB, used by tests with
// go-sqlmock (mined from the kubernaut pack) in place of a live Postgres.
func NewRelationalFromDB(db *sqlx.DB, statementTimeout time.Duration) *Relational {
	return &Relational{db: db, statementTimeout: statementTimeout}
}

func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return src.Close()
}

// WithTimeout applies the configured statement timeout to ctx, returning
// a cancel func the caller must invoke.
func (r *Relational) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.statementTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.statementTimeout)
}

// DB exposes the underlying *sqlx.DB for repository construction.
func (r *Relational) DB() *sqlx.DB { return r.db }

// WithTx runs fn inside a transaction, guaranteeing commit-or-rollback:
// fn's error (or a panic) triggers Rollback; otherwise Commit runs. This
// is the only way repositories in this module open a transaction (§4.F
// "transactional context with guaranteed commit-or-rollback").
func (r *Relational) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// Close releases pooled connections.
func (r *Relational) Close() error {
	return r.db.Close()
}
