// Package cache wraps a single bbolt database holding a denormalized
// projection of live task snapshots, used by Selector to avoid a full
// directory scan on every next/claim call. The cache is never the
// source of truth: a miss, a corrupt entry, or a stale mtime all fall
// through to the live snapshot file and repopulate the entry.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/rs/zerolog"
)

var summaryBucket = []byte("summaries")

// Summary is the denormalized projection Selector sorts and filters
// against. It carries only fields the ready/resume set computation
// needs; everything else still comes from the live snapshot once a
// task is actually selected.
type Summary struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	Urgency    string `json:"urgency"`
	CreatedAt  string `json:"created_at"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Archived   bool   `json:"archived"`
}

type entry struct {
	Summary Summary `json:"summary"`
	ModTime int64   `json:"mod_time"`
}

// Cache is safe for concurrent use; bbolt serializes its own writers.
// A nil *Cache is valid and every method degrades to a cache miss, so
// callers that fail to open one can keep calling Selector unmodified.
type Cache struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// Open opens or creates the cache database at path. Open logs and
// returns a nil *Cache, not an error, when the file can't be opened:
// the cache is an optimization, never a prerequisite for correctness.
func Open(path string, logger zerolog.Logger) *Cache {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("cache: creating cache dir failed, falling back to full scan")
		return nil
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("cache: opening cache failed, falling back to full scan")
		return nil
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(summaryBucket)
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Msg("cache: creating bucket failed, falling back to full scan")
		_ = db.Close()
		return nil
	}
	return &Cache{db: db, logger: logger}
}

// Close releases the database's file lock.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached summary for id if present and its recorded
// mtime still matches sourceModTime. A nil receiver, a cache miss, a
// stale mtime, or a corrupt entry all report found=false so the
// caller falls through to reading the live snapshot.
func (c *Cache) Get(id string, sourceModTime time.Time) (Summary, bool) {
	if c == nil {
		return Summary{}, false
	}
	var e entry
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(summaryBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		if jsonErr := json.Unmarshal(data, &e); jsonErr != nil {
			return nil
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return Summary{}, false
	}
	if e.ModTime != sourceModTime.UnixNano() {
		return Summary{}, false
	}
	return e.Summary, true
}

// Put repopulates id's cache entry. Failures are logged and swallowed;
// a write that never lands just means the next Get is another miss.
func (c *Cache) Put(id string, sourceModTime time.Time, s Summary) {
	if c == nil {
		return
	}
	e := entry{Summary: s, ModTime: sourceModTime.UnixNano()}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(summaryBucket)
		return b.Put([]byte(id), data)
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("task_id", id).Msg("cache: write failed")
	}
}

// Invalidate drops id's entry outright, used when a task is archived
// or deleted so a stale cached summary can never outlive its source.
func (c *Cache) Invalidate(id string) {
	if c == nil {
		return
	}
	_ = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(summaryBucket)
		return b.Delete([]byte(id))
	})
}

// SummaryFromTask projects a full snapshot down to its cached summary.
func SummaryFromTask(id, status, priority, urgency, createdAt, assignedTo string, archived bool) Summary {
	return Summary{
		ID:         id,
		Status:     status,
		Priority:   priority,
		Urgency:    urgency,
		CreatedAt:  createdAt,
		AssignedTo: assignedTo,
		Archived:   archived,
	}
}
