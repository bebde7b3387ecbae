package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCacheIsAlwaysAMiss(t *testing.T) {
	var c *Cache
	_, found := c.Get("task_1", time.Now())
	assert.False(t, found)

	assert.NotPanics(t, func() {
		c.Put("task_1", time.Now(), Summary{ID: "task_1"})
		c.Invalidate("task_1")
		assert.NoError(t, c.Close())
	})
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NotNil(t, c)
	defer c.Close()

	mt := time.Now()
	s := Summary{ID: "task_1", Status: "backlog", Priority: "high", CreatedAt: "t1"}
	c.Put("task_1", mt, s)

	got, found := c.Get("task_1", mt)
	require.True(t, found)
	assert.Equal(t, s, got)
}

func TestStaleModTimeIsAMiss(t *testing.T) {
	c := Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NotNil(t, c)
	defer c.Close()

	original := time.Now()
	c.Put("task_1", original, Summary{ID: "task_1", Status: "backlog"})

	_, found := c.Get("task_1", original.Add(time.Second))
	assert.False(t, found, "a changed source mtime must invalidate the cached entry")
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NotNil(t, c)
	defer c.Close()

	mt := time.Now()
	c.Put("task_1", mt, Summary{ID: "task_1"})
	c.Invalidate("task_1")

	_, found := c.Get("task_1", mt)
	assert.False(t, found)
}

func TestOpenFailureDegradesToNil(t *testing.T) {
	// A path through a file (not a directory) can never be created as a
	// parent directory, so Open must degrade to nil rather than panic
	// or return an error.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	c := Open(filepath.Join(blocker, "nested", "cache.db"), zerolog.Nop())
	assert.Nil(t, c)
}
