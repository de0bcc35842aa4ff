package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/catalog"
	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/connector"
)

func TestNewStore_SQLite(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "area.db")

	st, err := NewStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	_, err = st.Catalog().ListServices(context.Background())
	require.NoError(t, err)
}

func TestNewStore_UnknownDriver(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.DBDriver = "oracle"
	_, err := NewStore(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestNewWatermarkCache_Memory(t *testing.T) {
	wm, closer, err := NewWatermarkCache(context.Background(), config.NewForTesting(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, wm.Set(context.Background(), "k", "v", 0))
	v, ok, err := wm.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.NoError(t, closer.Close())
}

func TestNewConnectors_MatchesEmbeddedCatalog(t *testing.T) {
	cfg := config.NewForTesting()
	st, err := NewStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	wm, _, err := NewWatermarkCache(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	deps, err := NewDeps(cfg, zerolog.Nop(), NewCredentials(cfg, zerolog.Nop(), st), wm)
	require.NoError(t, err)

	conns, err := NewConnectors(cfg, deps)
	require.NoError(t, err)
	defer func() { _ = conns.Close() }()

	descs := conns.Registry.Descriptors()
	assert.Len(t, descs, 16)

	cat, err := catalog.Load("")
	require.NoError(t, err)
	require.NoError(t, cat.Validate(conns.Registry))

	_, err = conns.Registry.Resolve("Foo")
	require.Error(t, err)
	assert.True(t, connector.IsConfigError(err))
}
