// Package postgres implements the repository interfaces on PostgreSQL.
//
// WHY A SECOND BACKEND?
// The hosted deployment already runs a managed Postgres and hands the app a
// DATABASE_URL. SQLite stays the default for local runs and tests; the server
// picks this package when the URL has a postgres:// or postgresql:// scheme.
//
// WHY pgx AND NOT database/sql + lib/pq?
// pgxpool is a connection pool built for Postgres: it speaks the binary
// protocol, understands DATE/TIMESTAMPTZ/BYTEA natively and needs no driver
// registration. Nothing here needs database/sql portability, so the native
// API is the simpler one.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/mealtrack/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a pgx connection pool and provides repository methods.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, verifies the connection and creates the schema.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

// Close releases every pooled connection. It always returns nil; the error
// return exists to satisfy repository.Store.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// migrate mirrors the SQLite schema with native Postgres types.
// Exec with no arguments goes over the simple protocol, which is what allows
// several statements in one call.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL PRIMARY KEY,
			last_name  TEXT NOT NULL,
			birthdate  DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_users_login ON users (lower(last_name), birthdate);

		CREATE TABLE IF NOT EXISTS meals (
			id              BIGSERIAL PRIMARY KEY,
			user_id         BIGINT NOT NULL REFERENCES users(id),
			date            TIMESTAMPTZ NOT NULL,
			image           BYTEA,
			calories        INTEGER NOT NULL DEFAULT 0,
			protein         INTEGER NOT NULL DEFAULT 0,
			high_confidence BOOLEAN NOT NULL DEFAULT false,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_meals_user_date ON meals (user_id, date);

		CREATE TABLE IF NOT EXISTS glucose_readings (
			id         BIGSERIAL PRIMARY KEY,
			meal_id    BIGINT NOT NULL REFERENCES meals(id),
			timestamp  TIMESTAMPTZ NOT NULL,
			value      DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_glucose_readings_meal_id ON glucose_readings (meal_id);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
