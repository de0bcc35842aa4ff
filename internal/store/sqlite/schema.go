package sqlite

import (
	"context"
	"database/sql"
)

// EnsureSchema creates the tables if they do not exist.
// Timestamps are INTEGER unix microseconds.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS services (
            name TEXT PRIMARY KEY,
            auth_type TEXT NOT NULL DEFAULT 'none',
            description TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS capabilities (
            id TEXT PRIMARY KEY,
            service TEXT NOT NULL REFERENCES services(name),
            kind TEXT NOT NULL CHECK (kind IN ('action','reaction')),
            identifier TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            fields TEXT NOT NULL DEFAULT '[]',
            UNIQUE(service, kind, identifier)
        );`,
		`CREATE TABLE IF NOT EXISTS areas (
            area_id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            name TEXT NOT NULL,
            action_id TEXT NOT NULL REFERENCES capabilities(id),
            reaction_id TEXT NOT NULL REFERENCES capabilities(id),
            action_params TEXT NOT NULL DEFAULT '{}',
            reaction_params TEXT NOT NULL DEFAULT '{}',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            last_executed_at INTEGER,
            creation_time INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS areas_active_idx ON areas(is_active);`,
		`CREATE INDEX IF NOT EXISTS areas_user_idx ON areas(user_id);`,
		`CREATE TABLE IF NOT EXISTS credentials (
            user_id TEXT NOT NULL,
            service TEXT NOT NULL,
            access_token TEXT NOT NULL,
            refresh_token TEXT,
            expires_at INTEGER,
            update_time INTEGER NOT NULL,
            PRIMARY KEY(user_id, service)
        );`,
		`CREATE TABLE IF NOT EXISTS executions (
            execution_id TEXT PRIMARY KEY,
            area_id TEXT NOT NULL REFERENCES areas(area_id) ON DELETE CASCADE,
            outcome TEXT NOT NULL,
            success BOOLEAN NOT NULL DEFAULT 0,
            message TEXT NOT NULL DEFAULT '',
            snapshot TEXT NOT NULL DEFAULT '{}',
            executed_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS executions_area_idx ON executions(area_id, executed_at);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
