package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/store"
	"github.com/areahq/area-engine/internal/store/storetest"
)

func TestSQLiteStore_Compliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "area.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := OpenStore(context.Background(), MemoryPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Catalog().ListServices(context.Background())
	require.NoError(t, err)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, EnsureSchema(context.Background(), db))
}
