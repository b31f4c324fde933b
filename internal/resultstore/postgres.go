package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docextract/internal/common"
	"docextract/internal/job"
)

// PostgresStore persists job records in a single documents table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("database connection established")
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the documents table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			status        TEXT NOT NULL,
			text          TEXT,
			error_message TEXT,
			filename      TEXT,
			source_ref    TEXT,
			source_hash   TEXT,
			word_count    INT NOT NULL DEFAULT 0,
			char_count    INT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status);
		CREATE INDEX IF NOT EXISTS documents_source_hash_idx ON documents (source_hash);
	`)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Put upserts the record. The conflict guard makes terminal outcomes
// write-once: an existing completed/error row is only touched when the
// incoming status is the same outcome (idempotent re-write).
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO documents (id, status, text, error_message, filename, source_ref, source_hash, word_count, char_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status        = EXCLUDED.status,
			text          = EXCLUDED.text,
			error_message = EXCLUDED.error_message,
			word_count    = EXCLUDED.word_count,
			char_count    = EXCLUDED.char_count,
			updated_at    = NOW()
		WHERE documents.status NOT IN ('completed', 'error')
		   OR documents.status = EXCLUDED.status
	`

	var text, errMsg sql.NullString
	if rec.Text != "" {
		text = sql.NullString{String: rec.Text, Valid: true}
	}
	if rec.ErrorMessage != "" {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}

	// created_at carries the submission time recorded at the idempotency
	// gate, keeping the durable row in step with the cache record
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.Status,
		text,
		errMsg,
		rec.Filename,
		rec.SourceRef,
		rec.SourceHash,
		rec.WordCount,
		rec.CharCount,
		createdAt,
	)
	if err != nil {
		return common.WrapUnavailable("result store", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT id, status, text, error_message, filename, source_ref, source_hash, word_count, char_count, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	var rec Record
	var status string
	var text, errMsg sql.NullString

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&status,
		&text,
		&errMsg,
		&rec.Filename,
		&rec.SourceRef,
		&rec.SourceHash,
		&rec.WordCount,
		&rec.CharCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrJobNotFound
	}
	if err != nil {
		return nil, common.WrapUnavailable("result store", err)
	}

	rec.Status = job.Status(status)
	if text.Valid {
		rec.Text = text.String
	}
	if errMsg.Valid {
		rec.ErrorMessage = errMsg.String
	}
	return &rec, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
