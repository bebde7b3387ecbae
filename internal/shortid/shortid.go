// Package shortid is the bidirectional ShortIDIndex: human-readable
// aliases ("PROJ-42") mapped to internal ULIDs, persisted atomically and
// fully rebuildable from task_created events.
package shortid

import (
	"errors"
	"fmt"

	"github.com/lattice-dev/lattice/internal/store"
)

// ErrNotFound names a failed alias lookup. Resolve does not return it:
// input that is not a known alias is passed through unchanged.
var ErrNotFound = errors.New("shortid: alias not found")

// doc is the on-disk ids.json shape.
type doc struct {
	ProjectCode string            `json:"project_code"`
	NextSeq     int               `json:"next_seq"`
	Map         map[string]string `json:"map"`
}

// Index wraps ids.json. Every mutating method is expected to run under a
// caller-held lock on the ids.json resource; Index itself does no
// locking.
type Index struct {
	st   *store.Store
	data doc
}

// Open loads ids.json, or initializes an empty index under projectCode if
// the file does not exist yet.
func Open(st *store.Store, projectCode string) (*Index, error) {
	idx := &Index{st: st}
	if store.Exists(st.IDsPath()) {
		if err := store.ReadJSON(st.IDsPath(), &idx.data); err != nil {
			return nil, fmt.Errorf("shortid: reading ids.json: %w", err)
		}
		if idx.data.Map == nil {
			idx.data.Map = map[string]string{}
		}
		return idx, nil
	}
	idx.data = doc{ProjectCode: projectCode, NextSeq: 1, Map: map[string]string{}}
	return idx, nil
}

// Allocate assigns the next sequential alias to ulid and persists the
// index atomically. Caller must hold the lock on the ids.json resource.
func (idx *Index) Allocate(ulid string) (string, error) {
	for alias, id := range idx.data.Map {
		if id == ulid {
			return alias, nil // already allocated; Allocate is idempotent per ulid
		}
	}
	alias := fmt.Sprintf("%s-%d", idx.data.ProjectCode, idx.data.NextSeq)
	idx.data.NextSeq++
	idx.data.Map[alias] = ulid
	if err := idx.persist(); err != nil {
		return "", err
	}
	return alias, nil
}

// Resolve looks up alias in the index. If alias is not a known short-ID,
// it is returned unchanged on the assumption that the caller passed a
// raw ULID.
func (idx *Index) Resolve(alias string) (string, error) {
	if ulid, ok := idx.data.Map[alias]; ok {
		return ulid, nil
	}
	return alias, nil
}

// ReverseLookup returns the short alias for ulid, if one has been
// allocated.
func (idx *Index) ReverseLookup(ulid string) (string, bool) {
	for alias, id := range idx.data.Map {
		if id == ulid {
			return alias, true
		}
	}
	return "", false
}

func (idx *Index) persist() error {
	return store.WriteJSONAtomic(idx.st.IDsPath(), idx.data)
}

// RebuildFrom replaces the entire index with a fresh allocation derived
// from taskIDsInOrder (task_created events sorted by timestamp, as
// produced by Integrity.rebuildAll). Sequence numbers are reassigned from
// 1, so this must only be called with the complete, ordered task history.
func RebuildFrom(st *store.Store, projectCode string, taskIDsInOrder []string) (*Index, error) {
	idx := &Index{st: st, data: doc{ProjectCode: projectCode, NextSeq: 1, Map: map[string]string{}}}
	for _, id := range taskIDsInOrder {
		if _, err := idx.Allocate(id); err != nil {
			return nil, err
		}
	}
	return idx, nil
}
