// Package ledger is the durable session ledger behind C13 (pkg/gateway/live/session):
// every committed turn and BANT snapshot is written here so a session
// resumed after a reconnect, or inspected from the operator console, has a
// record that outlives the in-memory LiveSession. Pool-wrapper shape
// (New/Health/Transaction, string-matched constraint-violation checks) is
// grounded on testforge-hq-testforge's postgres.DB
// (_examples/testforge-hq-testforge/internal/repository/postgres/db.go),
// adapted from sqlx+lib/pq to pgx/v5+pgxpool since this gateway already
// depends on pgx for the ledger in its go.mod. Migrations run through goose
// against a stdlib *sql.DB borrowed from the same pool via pgx/v5/stdlib,
// the documented way to run goose on top of a pgxpool-backed service.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config carries the ledger's connection string, loaded from
// SALESAGENT_LEDGER_DATABASE_URL.
type Config struct {
	DatabaseURL string
}

// Store wraps a pgx connection pool with the ledger's migration and
// transaction helpers.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the ledger database and applies any pending goose
// migrations. A nil *Store (returned alongside a nil error when
// cfg.DatabaseURL is empty) means the ledger is disabled; every method on a
// nil *Store is a safe no-op so the gateway runs fine without Postgres
// configured.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}

	if err := migrate(cfg.DatabaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// migrate runs the embedded goose migrations using a plain database/sql
// connection (pgx/v5/stdlib registers the "pgx" driver), since goose drives
// schema changes through database/sql rather than pgx's native interface.
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Enabled reports whether this store holds a live pool; callers treat a nil
// *Store the same way.
func (s *Store) Enabled() bool {
	return s != nil && s.pool != nil
}

func (s *Store) Close() {
	if s.Enabled() {
		s.pool.Close()
	}
}

func (s *Store) Health(ctx context.Context) error {
	if !s.Enabled() {
		return fmt.Errorf("ledger: not configured")
	}
	return s.pool.Ping(ctx)
}

// isUniqueViolation mirrors testforge's postgres.isUniqueViolation: pgx
// wraps the same server-side error text, so a substring check is sufficient
// without decoding the full *pgconn.PgError.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
