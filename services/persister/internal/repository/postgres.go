// services/persister/internal/repository/postgres.go
package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/backoff"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

const postgresMigrationsDir = "migrations/postgres"

// pgPool is the subset of *pgxpool.Pool the repository uses.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresRepository writes entities through a pgx pool.
type PostgresRepository struct {
	pool pgPool
	w    writer
	log  *logger.Logger
}

// PostgresConfig: подключение к PostgreSQL.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	Backoff  backoff.Config
}

// NewPostgres применяет миграции (goose), создаёт пул и проверяет связь.
func NewPostgres(ctx context.Context, cfg PostgresConfig, mappings model.MappingTable, log *logger.Logger) (*PostgresRepository, error) {
	log = log.Named("postgres")

	// 1) Миграции через database/sql + goose; БД может ещё подниматься
	migrateOnce := func(ctx context.Context) error { return migratePostgres(ctx, cfg.DSN) }
	if err := backoff.Execute(ctx, cfg.Backoff, log, migrateOnce); err != nil {
		return nil, err
	}
	log.Info("postgres: migrations applied")

	// 2) Пул pgxpool
	pgxCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		pgxCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	// 3) Проверка соединения с ретраями
	if err := backoff.Execute(ctx, cfg.Backoff, log, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	log.Info("postgres: connected", zap.Int32("max_conns", pgxCfg.MaxConns))

	return newPostgresRepository(pool, mappings, log), nil
}

func newPostgresRepository(pool pgPool, mappings model.MappingTable, log *logger.Logger) *PostgresRepository {
	exec := func(ctx context.Context, query string, args ...any) error {
		_, err := pool.Exec(ctx, query, args...)
		return err
	}
	return &PostgresRepository{
		pool: pool,
		w:    writer{exec: exec, ph: dollar, mappings: mappings, log: log},
		log:  log,
	}
}

func migratePostgres(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("postgres migrate: open DB: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(postgresMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres migrate: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, postgresMigrationsDir); err != nil {
		return fmt.Errorf("postgres migrate: up: %w", err)
	}
	return nil
}

// Add inserts e into the table of its kind.
func (r *PostgresRepository) Add(ctx context.Context, e *model.Entity) error {
	return r.w.add(ctx, e)
}

// Ping проверяет соединение (readiness).
func (r *PostgresRepository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// Close закрывает пул.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
