// Package sqlite provides the embedded store used for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/areahq/area-engine/internal/store"
	"github.com/areahq/area-engine/internal/store/sqlstore"
)

// NewWithDB constructs a store over an already-migrated database.
func NewWithDB(db *sql.DB) store.Store { return sqlstore.New(db, sqlstore.SQLite) }

// OpenStore opens the database, applies the schema and returns the store.
func OpenStore(ctx context.Context, path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}
