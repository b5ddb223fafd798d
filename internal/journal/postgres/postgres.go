// Package postgres implements journal.Journal backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/wagate/internal/journal"
	"github.com/alfredjeanlab/wagate/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a journal.Journal backed by a PostgreSQL database.
type Store struct {
	db *sql.DB
}

var _ journal.Journal = (*Store)(nil)

// New opens the database at databaseURL, configures the pool and applies
// pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already-migrated database handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "wagate_schema_migrations"})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, e *model.Event) error {
	return queryRecord(ctx, s.db, e)
}

func (s *Store) List(ctx context.Context, tenantID string, limit int) ([]*model.Event, error) {
	return queryList(ctx, s.db, tenantID, normalizeLimit(limit))
}

func (s *Store) Recent(ctx context.Context, limit int) ([]*model.Event, error) {
	return queryRecent(ctx, s.db, normalizeLimit(limit))
}

// Prune deletes events older than cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return queryPrune(ctx, s.db, cutoff)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return journal.DefaultLimit
	}
	return limit
}
