// Package idgen generates lexicographically sortable, time-ordered
// identifiers. It wraps oklog/ulid/v2's monotonic source so
// that IDs minted within the same millisecond are still strictly
// increasing.
package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind prefixes the generated ID so callers can tell task/event/artifact
// IDs apart at a glance without a lookup.
type Kind string

const (
	KindTask     Kind = "task"
	KindEvent    Kind = "ev"
	KindArtifact Kind = "art"
)

// Generator mints monotonic ULIDs under a single mutex. A process should
// share one Generator across all callers so the monotonic entropy source
// is never reused concurrently.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a Generator seeded from crypto/rand.
func New() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns a new prefixed, monotonic ID of the given kind for time t.
// Callers needing a caller-supplied ID for idempotency should not call
// Next at all — it is only consulted when none is given.
func (g *Generator) Next(kind Kind, t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(t), g.entropy)
	return fmt.Sprintf("%s_%s", kind, id.String())
}

// Valid reports whether s looks like a Lattice-minted ID of the given
// kind: "<kind>_" followed by a 26-character Crockford-base32 ULID.
func Valid(kind Kind, s string) bool {
	prefix := string(kind) + "_"
	if len(s) != len(prefix)+26 {
		return false
	}
	if s[:len(prefix)] != prefix {
		return false
	}
	_, err := ulid.ParseStrict(s[len(prefix):])
	return err == nil
}
