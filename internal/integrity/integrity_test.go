package integrity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/clock"
	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/eventlog"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/lock"
	"github.com/lattice-dev/lattice/internal/store"
	"github.com/lattice-dev/lattice/internal/task"
)

func newHarness(t *testing.T) (*store.Store, *task.Service, *Checker) {
	t.Helper()
	root := filepath.Join(t.TempDir(), ".lattice")
	st, err := store.Init(root)
	require.NoError(t, err)
	cfgSvc, err := config.Load(st, zerolog.Nop())
	require.NoError(t, err)
	ids := idgen.New()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	locks := lock.New(st.LocksDir(), time.Second, nil)
	log := eventlog.New(st, ids, clk, nil)
	artifacts := artifact.New(st, ids, clk, 0)
	svc := task.New(st, locks, cfgSvc, ids, clk, log, artifacts, nil, nil, zerolog.Nop())
	checker := New(st, log, cfgSvc, artifacts)
	return st, svc, checker
}

func TestRebuildTaskReplaysLogUnconditionally(t *testing.T) {
	st, svc, checker := newHarness(t)
	created, err := svc.Create(context.Background(), task.CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), created.ID, task.UpdateRequest{Field: "title", Value: "renamed", Actor: "alice"})
	require.NoError(t, err)

	require.NoError(t, store.RemoveFile(st.TaskPath(created.ID)))
	snap, err := checker.RebuildTask(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", snap.Title)
}

func TestRebuildTaskOnUnknownIDReturnsNilWithoutError(t *testing.T) {
	_, _, checker := newHarness(t)
	snap, err := checker.RebuildTask("task_does_not_exist")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRebuildAllRebuildsEveryLiveTask(t *testing.T) {
	st, svc, checker := newHarness(t)
	a, err := svc.Create(context.Background(), task.CreateRequest{Title: "a", Actor: "alice"})
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), task.CreateRequest{Title: "b", Actor: "alice"})
	require.NoError(t, err)

	require.NoError(t, store.RemoveFile(st.TaskPath(a.ID)))
	require.NoError(t, store.RemoveFile(st.TaskPath(b.ID)))

	n, err := checker.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, store.Exists(st.TaskPath(a.ID)))
	assert.True(t, store.Exists(st.TaskPath(b.ID)))
}

func TestDoctorDetectsSnapshotDrift(t *testing.T) {
	st, svc, checker := newHarness(t)
	created, err := svc.Create(context.Background(), task.CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	require.NoError(t, store.WriteJSONAtomic(st.TaskPath(created.ID), map[string]interface{}{
		"id": created.ID, "title": "tampered", "status": "backlog",
	}))

	findings, err := checker.Doctor(context.Background(), false)
	require.NoError(t, err)
	var driftFound bool
	for _, f := range findings {
		if f.TaskID == created.ID && f.Code == CodeSnapshotDrift {
			driftFound = true
			assert.False(t, f.Fixed, "Doctor without fix=true must only report, not repair")
		}
	}
	assert.True(t, driftFound)
}

func TestDoctorFixRepairsSnapshotDrift(t *testing.T) {
	st, svc, checker := newHarness(t)
	created, err := svc.Create(context.Background(), task.CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)
	require.NoError(t, store.RemoveFile(st.TaskPath(created.ID)))

	findings, err := checker.Doctor(context.Background(), true)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.True(t, findings[0].Fixed)
	assert.True(t, store.Exists(st.TaskPath(created.ID)))
}

func TestDoctorOnCleanStoreReportsNothing(t *testing.T) {
	_, svc, checker := newHarness(t)
	_, err := svc.Create(context.Background(), task.CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	findings, err := checker.Doctor(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
