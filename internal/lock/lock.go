// Package lock implements the file-backed advisory LockManager. Locks
// are plain files under locks/<resource>.lock containing the holder's
// PID and an opaque token; staleness is detected by age plus a
// liveness check on the recorded PID, never by relying on OS-level
// advisory locking (which does not survive well across the mix of
// short-lived CLI processes and long-lived server processes this system
// targets).
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-dev/lattice/internal/metrics"
)

// ErrTimeout is returned when a lock cannot be acquired within the
// configured timeout (maps to the LOCK_TIMEOUT error code at the API
// boundary).
var ErrTimeout = errors.New("lock: timed out waiting for resource")

// StaleAfter is the age past which an orphaned lock file becomes eligible
// to be broken, provided its owning PID is no longer alive.
const StaleAfter = 30 * time.Second

const retryInterval = 20 * time.Millisecond

type lockFile struct {
	PID        int    `json:"pid"`
	Token      string `json:"token"`
	AcquiredAt string `json:"acquired_at"`
}

// Handle represents a set of held locks. Release is idempotent and safe to
// call multiple times or via defer on every exit path, including after a
// partial acquire failure.
type Handle struct {
	dir   string
	paths []string
	token string
}

// Manager acquires and releases locks rooted at a locks/ directory.
type Manager struct {
	dir     string
	timeout time.Duration
	metrics *metrics.Registry
}

// New creates a Manager rooted at dir (typically "<state>/locks"). m
// may be nil, in which case lock-wait time goes unrecorded.
func New(dir string, timeout time.Duration, m *metrics.Registry) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{dir: dir, timeout: timeout, metrics: m}
}

// Acquire locks every named resource, sorting paths lexicographically
// first so that any two callers requesting an overlapping set of
// multi-task resources acquire them in the same order and cannot
// deadlock.
func (m *Manager) Acquire(ctx context.Context, resources ...string) (*Handle, error) {
	if len(resources) == 0 {
		return &Handle{dir: m.dir, token: uuid.NewString()}, nil
	}
	sorted := append([]string(nil), resources...)
	sort.Strings(sorted)

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock: creating lock dir: %w", err)
	}

	h := &Handle{dir: m.dir, token: uuid.NewString()}
	deadline := time.Now().Add(m.timeout)

	for _, res := range sorted {
		waited := metrics.NewTimer()
		if err := m.acquireOne(ctx, res, h.token, deadline); err != nil {
			h.Release()
			return nil, err
		}
		m.metrics.ObserveLockWait(res, waited.Elapsed())
		h.paths = append(h.paths, res)
	}
	return h, nil
}

func (m *Manager) acquireOne(ctx context.Context, resource, token string, deadline time.Time) error {
	path := m.lockPath(resource)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			payload := lockFile{PID: os.Getpid(), Token: token, AcquiredAt: time.Now().UTC().Format(time.RFC3339Nano)}
			enc := json.NewEncoder(f)
			writeErr := enc.Encode(payload)
			closeErr := f.Close()
			if writeErr != nil {
				os.Remove(path)
				return fmt.Errorf("lock: writing lock file: %w", writeErr)
			}
			if closeErr != nil {
				os.Remove(path)
				return fmt.Errorf("lock: closing lock file: %w", closeErr)
			}
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("lock: creating lock file: %w", err)
		}

		if m.breakIfStale(path) {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrTimeout, resource)
		}
		time.Sleep(retryInterval)
	}
}

// breakIfStale removes path if it is older than StaleAfter and its owning
// PID is no longer alive. Returns true if it removed the file (caller
// should retry the create immediately).
func (m *Manager) breakIfStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Is(err, os.ErrNotExist) // already gone; let caller retry
	}
	if time.Since(info.ModTime()) < StaleAfter {
		return false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var lf lockFile
	if err := json.Unmarshal(b, &lf); err != nil {
		// Unreadable lock content past the staleness window: treat as
		// orphaned and break it.
		return os.Remove(path) == nil
	}
	if processAlive(lf.PID) {
		return false
	}
	return os.Remove(path) == nil
}

// Release drops every lock in the handle. It never returns an error: a
// verb must be able to unconditionally release on every exit path,
// including after a panic recovery, without itself needing error
// handling.
func (h *Handle) Release() {
	for _, res := range h.paths {
		path := filepath.Join(h.dir, sanitize(res)+".lock")
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var lf lockFile
		if json.Unmarshal(b, &lf) == nil && lf.Token != h.token {
			// Someone else's lock now occupies this path (we must have
			// lost it to staleness-breaking); do not remove their lock.
			continue
		}
		os.Remove(path)
	}
	h.paths = nil
}

func (m *Manager) lockPath(resource string) string {
	return filepath.Join(m.dir, sanitize(resource)+".lock")
}

func sanitize(resource string) string {
	out := make([]rune, 0, len(resource))
	for _, r := range resource {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
