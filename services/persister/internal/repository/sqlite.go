// services/persister/internal/repository/sqlite.go
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteRepository writes entities into a local SQLite file.
// A single connection serialises writers and avoids "database is locked".
type SQLiteRepository struct {
	db  *sql.DB
	w   writer
	log *logger.Logger
}

// NewSQLite opens dsn (a path or a file: URI), applies migrations and
// returns the repository.
func NewSQLite(ctx context.Context, dsn string, mappings model.MappingTable, log *logger.Logger) (*SQLiteRepository, error) {
	log = log.Named("sqlite")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("sqlite: migrations applied")

	r := &SQLiteRepository{db: db, log: log}
	r.w = writer{
		exec: func(ctx context.Context, query string, args ...any) error {
			_, err := db.ExecContext(ctx, query, args...)
			return err
		},
		ph:       question,
		mappings: mappings,
		log:      log,
	}
	return r, nil
}

// migrateSQLite applies the embedded migrations; already applied ones are skipped.
func migrateSQLite(db *sql.DB) error {
	src, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("sqlite migrate: source: %w", err)
	}
	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate: driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("sqlite migrate: init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite migrate: up: %w", err)
	}
	return nil
}

// Add inserts e into the table of its kind.
func (r *SQLiteRepository) Add(ctx context.Context, e *model.Entity) error {
	return r.w.add(ctx, e)
}

// Ping проверяет соединение (readiness).
func (r *SQLiteRepository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Close закрывает БД.
func (r *SQLiteRepository) Close() error { return r.db.Close() }
