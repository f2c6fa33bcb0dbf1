// Package storage persists runs, trends and the enrichment queue in Postgres.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"TrendsScanner/internal/config"
	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

//go:embed schema.sql
var schema string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the idempotent schema and seeds the categories.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RunRepository stores run batches.
type RunRepository struct {
	db *sql.DB
}

var _ ports.RunRepository = (*RunRepository)(nil)

// NewRunRepository wires a sql.DB implementation.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a new run row and returns it with its id.
func (r *RunRepository) CreateRun(ctx context.Context, run domain.RunBatch) (domain.RunBatch, error) {
	query, args, err := psql.Insert("trend_days").
		Columns("date", "run_time", "source_filename", "processed_at").
		Values(run.DateString(), run.RunAt, run.SourceFilename, run.ProcessedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return run, fmt.Errorf("build insert run: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&run.ID); err != nil {
		return run, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}
