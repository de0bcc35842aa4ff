package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/areahq/area-engine/internal/store"
	"github.com/areahq/area-engine/internal/store/sqlstore"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return sqlstore.New(db, sqlstore.Postgres) }

// OpenStore opens the database, applies the schema and returns the store.
func OpenStore(ctx context.Context, dsn string) (store.Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return NewWithDB(db), nil
}

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS services (
            name TEXT PRIMARY KEY,
            auth_type TEXT NOT NULL DEFAULT 'none',
            description TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE TABLE IF NOT EXISTS capabilities (
            id TEXT PRIMARY KEY,
            service TEXT NOT NULL REFERENCES services(name),
            kind TEXT NOT NULL CHECK (kind IN ('action','reaction')),
            identifier TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            fields JSONB NOT NULL DEFAULT '[]'::jsonb,
            UNIQUE(service, kind, identifier)
        )`,
		`CREATE TABLE IF NOT EXISTS areas (
            area_id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            name TEXT NOT NULL,
            action_id TEXT NOT NULL REFERENCES capabilities(id),
            reaction_id TEXT NOT NULL REFERENCES capabilities(id),
            action_params JSONB NOT NULL DEFAULT '{}'::jsonb,
            reaction_params JSONB NOT NULL DEFAULT '{}'::jsonb,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            last_executed_at TIMESTAMPTZ,
            creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS areas_active_idx ON areas(is_active)`,
		`CREATE INDEX IF NOT EXISTS areas_user_idx ON areas(user_id)`,
		`CREATE TABLE IF NOT EXISTS credentials (
            user_id TEXT NOT NULL,
            service TEXT NOT NULL,
            access_token TEXT NOT NULL,
            refresh_token TEXT,
            expires_at TIMESTAMPTZ,
            update_time TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY(user_id, service)
        )`,
		`CREATE TABLE IF NOT EXISTS executions (
            execution_id TEXT PRIMARY KEY,
            area_id TEXT NOT NULL REFERENCES areas(area_id) ON DELETE CASCADE,
            outcome TEXT NOT NULL,
            success BOOLEAN NOT NULL DEFAULT FALSE,
            message TEXT NOT NULL DEFAULT '',
            snapshot JSONB NOT NULL DEFAULT '{}'::jsonb,
            executed_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS executions_area_idx ON executions(area_id, executed_at)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
