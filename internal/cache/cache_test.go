package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_StableForEqualValues(t *testing.T) {
	a, err := Key(map[string]any{"model": "m", "max_tokens": 10, "messages": []string{"hi"}})
	require.NoError(t, err)
	b, err := Key(map[string]any{"messages": []string{"hi"}, "max_tokens": 10, "model": "m"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestKey_DiffersOnContent(t *testing.T) {
	a, err := Key(map[string]any{"model": "m1"})
	require.NoError(t, err)
	b, err := Key(map[string]any{"model": "m2"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKey_Unmarshalable(t *testing.T) {
	_, err := Key(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestMemory_SetAndGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))

	e, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "v", string(e.Value))
}

func TestMemory_Miss(t *testing.T) {
	e, err := NewMemory().Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemory_ExpiresOnRead(t *testing.T) {
	c := NewMemory()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	now = now.Add(2 * time.Minute)
	e, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_CopiesValue(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, time.Hour))
	buf[0] = 'z'

	e, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(e.Value))
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	c, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func TestSQLite_SetAndGet(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte(`[{"full_name":"A"}]`), time.Hour))

	e, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, `[{"full_name":"A"}]`, string(e.Value))
	assert.Equal(t, "k1", e.Key)
}

func TestSQLite_Miss(t *testing.T) {
	c := newTestSQLite(t)

	e, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_OverwriteSameKey(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("old"), time.Hour))
	require.NoError(t, c.Set(ctx, "k", []byte("new"), time.Hour))

	e, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "new", string(e.Value))
}

func TestSQLite_ExpiredAndPurge(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stale", []byte("old"), -time.Hour))
	require.NoError(t, c.Set(ctx, "fresh", []byte("new"), time.Hour))

	e, err := c.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, e)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err = c.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, c.Migrate(ctx))
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, c.Close())

	c, err = NewSQLite(path)
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck
	require.NoError(t, c.Migrate(ctx))

	e, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "v", string(e.Value))
}
