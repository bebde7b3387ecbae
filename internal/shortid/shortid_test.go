package shortid

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dev/lattice/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Init(filepath.Join(t.TempDir(), ".lattice"))
	require.NoError(t, err)
	return st
}

func TestAllocateAssignsSequentialAliases(t *testing.T) {
	st := newTestStore(t)
	idx, err := Open(st, "PROJ")
	require.NoError(t, err)

	first, err := idx.Allocate("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-1", first)

	second, err := idx.Allocate("task_01ARZ3NDEKTSV4RRFFQ69G5FAW")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-2", second)
}

func TestAllocateIsIdempotentPerULID(t *testing.T) {
	st := newTestStore(t)
	idx, err := Open(st, "PROJ")
	require.NoError(t, err)

	first, err := idx.Allocate("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)
	second, err := idx.Allocate("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveFallsBackToRawIDWhenUnknown(t *testing.T) {
	st := newTestStore(t)
	idx, err := Open(st, "PROJ")
	require.NoError(t, err)

	resolved, err := idx.Resolve("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)
	assert.Equal(t, "task_01ARZ3NDEKTSV4RRFFQ69G5FAV", resolved)
}

func TestResolveAndReverseLookupRoundTrip(t *testing.T) {
	st := newTestStore(t)
	idx, err := Open(st, "PROJ")
	require.NoError(t, err)

	alias, err := idx.Allocate("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)

	resolved, err := idx.Resolve(alias)
	require.NoError(t, err)
	assert.Equal(t, "task_01ARZ3NDEKTSV4RRFFQ69G5FAV", resolved)

	reverse, ok := idx.ReverseLookup("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.True(t, ok)
	assert.Equal(t, alias, reverse)
}

func TestOpenPersistsAcrossReload(t *testing.T) {
	st := newTestStore(t)
	idx, err := Open(st, "PROJ")
	require.NoError(t, err)
	_, err = idx.Allocate("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)

	reloaded, err := Open(st, "PROJ")
	require.NoError(t, err)
	alias, ok := reloaded.ReverseLookup("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.True(t, ok)
	assert.Equal(t, "PROJ-1", alias)
}

func TestRebuildFromReassignsSequentialAliasesInOrder(t *testing.T) {
	st := newTestStore(t)
	idx, err := RebuildFrom(st, "PROJ", []string{
		"task_01ARZ3NDEKTSV4RRFFQ69G5FAV",
		"task_01ARZ3NDEKTSV4RRFFQ69G5FAW",
	})
	require.NoError(t, err)

	alias, ok := idx.ReverseLookup("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.True(t, ok)
	assert.Equal(t, "PROJ-1", alias)

	alias, ok = idx.ReverseLookup("task_01ARZ3NDEKTSV4RRFFQ69G5FAW")
	require.True(t, ok)
	assert.Equal(t, "PROJ-2", alias)
}
