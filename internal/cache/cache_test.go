package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", "v1", time.Hour))
	require.NoError(t, m.Set(ctx, "forever", "x", 0))

	v, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	now = now.Add(2 * time.Hour)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("AREA_TEST_REDIS_URL")
	if addr == "" {
		t.Skip("AREA_TEST_REDIS_URL not set; skipping redis watermark test")
	}
	ctx := context.Background()
	client, err := Connect(ctx, addr)
	require.NoError(t, err)
	r := NewRedis(client, "area-test:")
	defer func() { _ = r.Close() }()

	require.NoError(t, r.Set(ctx, "quake", "us7000abcd", time.Minute))
	v, ok, err := r.Get(ctx, "quake")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "us7000abcd", v)

	_, ok, err = r.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, r.HealthPing(ctx))
}
