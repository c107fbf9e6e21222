// Package postgres implements the persistence ports on PostgreSQL via
// pgx: the metadata catalog, the item store with typed key columns and
// GSI projection rows, and the stream record store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DB owns the connection pool shared by the store implementations.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool against the database URL and applies the schema.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	db := &DB{pool: pool, logger: logger}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool exposes the underlying pool to the sibling store types.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tables (
		name        TEXT PRIMARY KEY,
		schema_json JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		table_name TEXT NOT NULL REFERENCES tables(name) ON DELETE CASCADE,
		hash_s     TEXT,
		hash_n     NUMERIC,
		hash_b     BYTEA,
		range_s    TEXT,
		range_n    NUMERIC,
		range_b    BYTEA,
		payload    JSONB NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS items_pk
		ON items (table_name, hash_s, hash_n, hash_b, range_s, range_n, range_b)
		NULLS NOT DISTINCT`,
	`CREATE TABLE IF NOT EXISTS gsi_projections (
		table_name   TEXT NOT NULL,
		index_name   TEXT NOT NULL,
		gsi_hash_s   TEXT,
		gsi_hash_n   NUMERIC,
		gsi_hash_b   BYTEA,
		gsi_range_s  TEXT,
		gsi_range_n  NUMERIC,
		gsi_range_b  BYTEA,
		base_hash_s  TEXT,
		base_hash_n  NUMERIC,
		base_hash_b  BYTEA,
		base_range_s TEXT,
		base_range_n NUMERIC,
		base_range_b BYTEA,
		payload      JSONB NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS gsi_projections_base
		ON gsi_projections (table_name, index_name, base_hash_s, base_hash_n, base_hash_b, base_range_s, base_range_n, base_range_b)
		NULLS NOT DISTINCT`,
	`CREATE INDEX IF NOT EXISTS gsi_projections_read
		ON gsi_projections (table_name, index_name, gsi_hash_s, gsi_hash_n, gsi_hash_b, gsi_range_s, gsi_range_n, gsi_range_b)`,
	`CREATE SEQUENCE IF NOT EXISTS stream_sequence`,
	`CREATE TABLE IF NOT EXISTS stream_records (
		stream_id          TEXT NOT NULL,
		sequence_no        BIGINT NOT NULL,
		event_name         TEXT NOT NULL,
		keys_json          JSONB NOT NULL,
		old_image_json     JSONB,
		new_image_json     JSONB,
		user_identity_json JSONB,
		created_at         TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (stream_id, sequence_no)
	)`,
	`CREATE INDEX IF NOT EXISTS stream_records_created ON stream_records (created_at)`,
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	db.logger.Debug("schema applied", zap.Int("statements", len(schemaStatements)))
	return nil
}

// transient reports whether a SQL failure is worth retrying: deadlocks,
// serialization failures and dropped connections.
func transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return pgconn.SafeToRetry(err)
}

// withRetry runs fn, retrying transient failures with bounded exponential
// backoff. Logical failures pass through untouched.
func (db *DB) withRetry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if transient(err) {
			db.logger.Warn("retrying transient database failure",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// inTx runs fn inside one transaction at repeatable read, committing on
// success. Transient failures retry the whole transaction.
func (db *DB) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return db.withRetry(ctx, op, func() error {
		tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}
