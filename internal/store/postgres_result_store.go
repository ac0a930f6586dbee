package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dunamismax/downsize/internal/domain"
	_ "github.com/lib/pq"
)

const resultSchemaSQL = `
CREATE TABLE IF NOT EXISTS file_results (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	input_path TEXT NOT NULL,
	output_path TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL DEFAULT '',
	source_width INTEGER NOT NULL DEFAULT 0,
	source_height INTEGER NOT NULL DEFAULT 0,
	target_width INTEGER NOT NULL DEFAULT 0,
	target_height INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	bytes INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS file_results_run_id_idx ON file_results (run_id);
`

type PostgresResultStore struct {
	db *sql.DB
}

func NewPostgresResultStore(ctx context.Context, dsn string) (*PostgresResultStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresResultStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresResultStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, resultSchemaSQL); err != nil {
		return fmt.Errorf("ensure file_results schema: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) Close() error {
	return s.db.Close()
}

func (s *PostgresResultStore) Record(ctx context.Context, r domain.FileResult) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO file_results
		 (run_id, input_path, output_path, format, source_width, source_height,
		  target_width, target_height, status, error, bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.RunID,
		r.InputPath,
		r.OutputPath,
		string(r.Format),
		r.Source.Width,
		r.Source.Height,
		r.Target.Width,
		r.Target.Height,
		r.Status,
		r.Error,
		r.Bytes,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file result: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) ListRun(ctx context.Context, runID string) ([]domain.FileResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, input_path, output_path, format, source_width, source_height,
		        target_width, target_height, status, error, bytes, created_at
		 FROM file_results
		 WHERE run_id = $1
		 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query file results: %w", err)
	}
	defer rows.Close()

	var out []domain.FileResult
	for rows.Next() {
		var (
			r      domain.FileResult
			format string
		)
		if err := rows.Scan(
			&r.RunID,
			&r.InputPath,
			&r.OutputPath,
			&format,
			&r.Source.Width,
			&r.Source.Height,
			&r.Target.Width,
			&r.Target.Height,
			&r.Status,
			&r.Error,
			&r.Bytes,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan file result: %w", err)
		}
		r.Format = domain.Format(format)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file results: %w", err)
	}
	return out, nil
}
