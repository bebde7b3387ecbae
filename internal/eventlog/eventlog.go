// Package eventlog owns per-task append-only event logs, the shared
// lifecycle index, idempotency detection, and replay iteration. It is
// the single place that decides whether an event is new, a duplicate,
// or a conflict.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lattice-dev/lattice/internal/clock"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/metrics"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/store"
)

// ErrConflict is returned by Append when a caller-supplied event ID
// already exists in the log with a materially different payload.
var ErrConflict = errors.New("eventlog: conflicting event for supplied id")

// Duplicate wraps ErrConflict's opposite case: Append returning the
// existing event because the supplied id's payload matches byte-for-byte
// modulo ignored fields.
type Duplicate struct {
	Existing model.Event
}

func (d *Duplicate) Error() string { return "eventlog: duplicate append, already applied" }

// Log operates the per-task log at a given path plus the shared lifecycle
// index, through Store's atomic primitives.
type Log struct {
	st      *store.Store
	ids     *idgen.Generator
	clock   clock.Clock
	metrics *metrics.Registry
}

// New creates a Log backed by st, minting IDs from ids and timestamps
// from clk. m may be nil, in which case appended-event counts go
// unrecorded.
func New(st *store.Store, ids *idgen.Generator, clk clock.Clock, m *metrics.Registry) *Log {
	return &Log{st: st, ids: ids, clock: clk, metrics: m}
}

// ignoredFields are excluded from the byte-equivalence check used to
// detect idempotent resubmission versus a genuine conflict.
var ignoredFields = map[string]bool{
	"id": true,
	"ts": true,
}

// Append validates and appends ev to taskID's log. If ev.ID is empty, one
// is minted. If ev.ID already exists in the log, Append compares the
// submitted event against the stored one (ignoring id/ts): an
// equivalent payload returns *Duplicate wrapping the existing event and
// appends nothing; a differing payload returns ErrConflict.
//
// The caller must already hold the lock covering taskID's event log.
func (l *Log) Append(taskID string, ev model.Event, last model.Event, haveLast bool) (model.Event, error) {
	ev.TaskID = taskID
	if ev.ID != "" {
		existing, found, err := l.findByID(taskID, ev.ID)
		if err != nil {
			return model.Event{}, err
		}
		if found {
			if equivalentPayload(existing, ev) {
				return model.Event{}, &Duplicate{Existing: existing}
			}
			return model.Event{}, ErrConflict
		}
	} else {
		mintTime := time.Now().UTC()
		if parsed, err := clock.Parse(l.clock.Now()); err == nil {
			mintTime = parsed
		}
		ev.ID = l.ids.Next(idgen.KindEvent, mintTime)
	}

	candidateTS := l.clock.Now()
	if haveLast {
		candidateTS = clock.BumpIfNotAfter(candidateTS, last.TS)
	}
	ev.TS = candidateTS

	path := l.st.EventLogPath(taskID)
	if err := store.AppendJSONLine(path, ev); err != nil {
		return model.Event{}, fmt.Errorf("eventlog: append: %w", err)
	}
	if model.LifecycleEventTypes[ev.Type] {
		if err := l.AppendLifecycle(ev); err != nil {
			return ev, fmt.Errorf("eventlog: lifecycle append: %w", err)
		}
	}
	l.metrics.IncEventsAppended(ev.Type)
	return ev, nil
}

// AppendLifecycle appends ev to the shared lifecycle index verbatim. Only
// called for events whose type is lifecycle-relevant.
func (l *Log) AppendLifecycle(ev model.Event) error {
	return store.AppendJSONLine(l.st.LifecyclePath(), ev)
}

// Last returns the most recently appended event for taskID, and whether
// the log is non-empty. Used to enforce Clock monotonicity and to compute
// review-cycle counts efficiently is not required here; Iterate is used
// for full scans.
func (l *Log) Last(taskID string) (model.Event, bool, error) {
	var last model.Event
	found := false
	var parseErr error
	err := store.ReadLines(l.st.EventLogPath(taskID), func(line []byte) error {
		var ev model.Event
		if jsonErr := json.Unmarshal(line, &ev); jsonErr != nil {
			parseErr = jsonErr
			return nil // tolerate corrupt trailing lines; doctor reports them
		}
		last = ev
		found = true
		return nil
	})
	if err != nil {
		return model.Event{}, false, err
	}
	_ = parseErr
	return last, found, nil
}

// Iterate yields every well-formed event for taskID in file order via fn.
// Corrupt lines are skipped silently; BadLines can be used by callers that
// need to know whether any were skipped (doctor does).
func (l *Log) Iterate(taskID string, fn func(model.Event) error) error {
	return l.IteratePath(l.st.EventLogPath(taskID), fn)
}

// IteratePath is Iterate against an explicit log path, used to replay an
// archived task's log (which no longer lives at EventLogPath) or an
// already-resolved path during rebuildAll.
func (l *Log) IteratePath(path string, fn func(model.Event) error) error {
	return store.ReadLines(path, func(line []byte) error {
		var ev model.Event
		if jsonErr := json.Unmarshal(line, &ev); jsonErr != nil {
			return nil
		}
		return fn(ev)
	})
}

// IterateRaw yields every raw line for taskID, reporting whether each
// parses, so doctor can report corruption without duplicating the parse
// logic in Iterate.
func (l *Log) IterateRaw(taskID string, fn func(line []byte, ev model.Event, ok bool)) error {
	return store.ReadLines(l.st.EventLogPath(taskID), func(line []byte) error {
		var ev model.Event
		ok := json.Unmarshal(line, &ev) == nil
		fn(line, ev, ok)
		return nil
	})
}

// IterateLifecycle yields every well-formed event in the shared lifecycle
// index.
func (l *Log) IterateLifecycle(fn func(model.Event) error) error {
	return store.ReadLines(l.st.LifecyclePath(), func(line []byte) error {
		var ev model.Event
		if jsonErr := json.Unmarshal(line, &ev); jsonErr != nil {
			return nil
		}
		return fn(ev)
	})
}

// TruncateLifecycle overwrites the lifecycle index from scratch, used by
// Integrity.rebuildAll once it has recomputed the full lifecycle-relevant
// event set from every per-task log.
func (l *Log) TruncateLifecycle(events []model.Event) error {
	vs := make([]interface{}, len(events))
	for i, ev := range events {
		vs[i] = ev
	}
	return store.WriteJSONLinesAtomic(l.st.LifecyclePath(), vs)
}

// Lookup reports whether id already exists in taskID's log, and returns
// it if so. Callers use this to distinguish a retried call (same id
// already recorded) from a genuinely new one before Append runs, when
// they need to decide something else based on that distinction first
// (internal/task's Link/Unlink precondition checks, for instance).
func (l *Log) Lookup(taskID, id string) (model.Event, bool, error) {
	if id == "" {
		return model.Event{}, false, nil
	}
	return l.findByID(taskID, id)
}

func (l *Log) findByID(taskID, id string) (model.Event, bool, error) {
	var found model.Event
	ok := false
	err := l.Iterate(taskID, func(ev model.Event) error {
		if ev.ID == id {
			found = ev
			ok = true
		}
		return nil
	})
	return found, ok, err
}

func equivalentPayload(a, b model.Event) bool {
	if a.Type != b.Type || a.TaskID != b.TaskID || a.Actor != b.Actor {
		return false
	}
	ab, err1 := json.Marshal(a.Data)
	bb, err2 := json.Marshal(b.Data)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}
