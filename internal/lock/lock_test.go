package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndReleaseRoundTrips(t *testing.T) {
	m := New(t.TempDir(), time.Second, nil)
	h, err := m.Acquire(context.Background(), "task:task_1")
	require.NoError(t, err)
	h.Release()

	h2, err := m.Acquire(context.Background(), "task:task_1")
	require.NoError(t, err)
	h2.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := New(t.TempDir(), time.Second, nil)
	h, err := m.Acquire(context.Background(), "task:task_1")
	require.NoError(t, err)
	h.Release()
	assert.NotPanics(t, func() { h.Release() })
}

func TestAcquireTimesOutWhenAlreadyHeld(t *testing.T) {
	dir := t.TempDir()
	holder := New(dir, time.Minute, nil)
	h, err := holder.Acquire(context.Background(), "task:task_1")
	require.NoError(t, err)
	defer h.Release()

	contender := New(dir, 60*time.Millisecond, nil)
	_, err = contender.Acquire(context.Background(), "task:task_1")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAcquireBreaksStaleLockFromDeadProcess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "task_task_1.lock")
	payload := lockFile{PID: deadPID(), Token: "stale-token", AcquiredAt: time.Now().UTC().Format(time.RFC3339Nano)}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	old := time.Now().Add(-StaleAfter - time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	m := New(dir, time.Second, nil)
	h, err := m.Acquire(context.Background(), "task:task_1")
	require.NoError(t, err, "a lock whose owning PID is dead and past StaleAfter must be broken")
	h.Release()
}

func TestAcquireDoesNotBreakFreshLockEvenIfPIDIsDead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "task_task_1.lock")
	payload := lockFile{PID: deadPID(), Token: "fresh-token", AcquiredAt: time.Now().UTC().Format(time.RFC3339Nano)}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	m := New(dir, 60*time.Millisecond, nil)
	_, err = m.Acquire(context.Background(), "task:task_1")
	assert.ErrorIs(t, err, ErrTimeout, "a lock younger than StaleAfter must not be broken regardless of PID liveness")
}

func TestAcquireSortsMultiResourceAcquisitionOrder(t *testing.T) {
	m := New(t.TempDir(), time.Second, nil)
	h, err := m.Acquire(context.Background(), "task:b", "task:a")
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, []string{"task:a", "task:b"}, h.paths)
}

func TestAcquireNoResourcesReturnsEmptyHandle(t *testing.T) {
	m := New(t.TempDir(), time.Second, nil)
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.paths)
	h.Release()
}

// deadPID returns a PID extremely unlikely to be alive on the test host.
func deadPID() int { return 1 << 30 }
