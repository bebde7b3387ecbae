// Package integrity rebuilds derived state from the event logs of
// record and reports (or repairs) the ways derived state can drift
// from them: a crash between append and snapshot write, a corrupt
// line, a dangling relationship, a missing artifact payload, a stale
// short-id mapping.
package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/eventlog"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/reducer"
	"github.com/lattice-dev/lattice/internal/shortid"
	"github.com/lattice-dev/lattice/internal/store"
)

// maxConcurrentRebuilds bounds the errgroup fan-out across per-task logs
// so rebuildAll does not open thousands of file descriptors at once on
// a large store.
const maxConcurrentRebuilds = 16

// Checker runs rebuild and doctor scans against a store.
type Checker struct {
	st        *store.Store
	log       *eventlog.Log
	cfgSvc    *config.Service
	artifacts *artifact.Store
}

// New creates a Checker.
func New(st *store.Store, log *eventlog.Log, cfgSvc *config.Service, artifacts *artifact.Store) *Checker {
	return &Checker{st: st, log: log, cfgSvc: cfgSvc, artifacts: artifacts}
}

// Finding is one issue doctor surfaces, optionally fixed in place.
type Finding struct {
	TaskID string `json:"task_id,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
	Fixed  bool   `json:"fixed"`
}

// Finding codes.
const (
	CodeCorruptLine       = "corrupt_line"
	CodeSnapshotDrift     = "snapshot_drift"
	CodeDanglingRelation  = "dangling_relationship"
	CodeMissingPayload    = "missing_payload"
	CodeSelfLink          = "self_link"
	CodeDuplicateEdge     = "duplicate_edge"
	CodeMalformedID       = "malformed_id"
	CodeUnknownEventType  = "unknown_event_type"
	CodeLifecycleMismatch = "lifecycle_mismatch"
)

// RebuildTask replays id's live event log from scratch through the
// Reducer and writes the result to the live snapshot path,
// unconditionally, regardless of whether a snapshot already exists.
func (c *Checker) RebuildTask(id string) (*model.Task, error) {
	return c.rebuildFrom(id, c.st.EventLogPath(id), c.st.TaskPath(id))
}

func (c *Checker) rebuildFrom(id, logPath, snapPath string) (*model.Task, error) {
	cfg := c.cfgSvc.Current()
	var snap *model.Task
	found := false
	if err := c.log.IteratePath(logPath, func(ev model.Event) error {
		snap = reducer.Apply(cfg, snap, ev)
		found = true
		return nil
	}); err != nil {
		return nil, fmt.Errorf("integrity: replaying %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	if err := store.WriteJSONAtomic(snapPath, snap); err != nil {
		return nil, fmt.Errorf("integrity: writing rebuilt snapshot for %s: %w", id, err)
	}
	return snap, nil
}

// RebuildAll rebuilds every live task's snapshot from its event log,
// concurrently, then regenerates the shared lifecycle index and the
// short-id map from the rebuilt set. It is the full-store analogue of
// the rebuild-on-read healing TaskService already does one task at a
// time.
func (c *Checker) RebuildAll(ctx context.Context) (int, error) {
	ids, err := listTaskIDs(c.st.EventsDir())
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRebuilds)
	rebuilt := make([]*model.Task, len(ids))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			snap, err := c.RebuildTask(id)
			if err != nil {
				return err
			}
			rebuilt[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var lifecycle []model.Event
	var createdInOrder []string
	for _, id := range ids {
		if err := c.log.IteratePath(c.st.EventLogPath(id), func(ev model.Event) error {
			if model.LifecycleEventTypes[ev.Type] {
				lifecycle = append(lifecycle, ev)
			}
			if ev.Type == model.EventTaskCreated {
				createdInOrder = append(createdInOrder, id)
			}
			return nil
		}); err != nil {
			return 0, fmt.Errorf("integrity: scanning %s for lifecycle rebuild: %w", id, err)
		}
	}
	sort.SliceStable(lifecycle, func(i, j int) bool { return lifecycle[i].TS < lifecycle[j].TS })
	if err := c.log.TruncateLifecycle(lifecycle); err != nil {
		return 0, fmt.Errorf("integrity: rewriting lifecycle index: %w", err)
	}

	createdAt := make(map[string]string, len(ids))
	for i, id := range ids {
		if rebuilt[i] != nil {
			createdAt[id] = rebuilt[i].CreatedAt
		}
	}
	sort.SliceStable(createdInOrder, func(i, j int) bool {
		return createdAt[createdInOrder[i]] < createdAt[createdInOrder[j]]
	})
	if _, err := shortid.RebuildFrom(c.st, c.cfgSvc.Current().ProjectCode, createdInOrder); err != nil {
		return 0, fmt.Errorf("integrity: rebuilding short-id index: %w", err)
	}

	return len(ids), nil
}

// Doctor scans the whole store for drift between derived state and the
// logs of record, plus structural defects that can never self-heal via
// rebuild (dangling edges, missing payloads, malformed ids). If fix is
// true, snapshot drift is repaired in place before Doctor returns by
// writing the replayed snapshot. Lifecycle-index mismatches are only
// reported (RebuildAll regenerates the index), and so are structural
// findings, since fixing them means discarding data (removing a
// dangling edge, say) that a human should decide on.
func (c *Checker) Doctor(ctx context.Context, fix bool) ([]Finding, error) {
	var findings []Finding

	ids, err := listTaskIDs(c.st.EventsDir())
	if err != nil {
		return nil, err
	}

	snapshots := make(map[string]*model.Task, len(ids))
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return findings, ctx.Err()
		default:
		}

		var bad int
		if err := c.log.IterateRaw(id, func(line []byte, ev model.Event, ok bool) {
			if !ok {
				bad++
				return
			}
			if !idgen.Valid(idgen.KindEvent, ev.ID) {
				findings = append(findings, Finding{TaskID: id, Code: CodeMalformedID, Detail: ev.ID})
			}
			if !model.BuiltinEventTypes[ev.Type] && !strings.HasPrefix(ev.Type, "x_") {
				findings = append(findings, Finding{TaskID: id, Code: CodeUnknownEventType, Detail: ev.Type})
			}
		}); err != nil {
			return nil, fmt.Errorf("integrity: scanning %s: %w", id, err)
		}
		if bad > 0 {
			findings = append(findings, Finding{TaskID: id, Code: CodeCorruptLine, Detail: fmt.Sprintf("%d unparseable line(s)", bad)})
		}

		if !idgen.Valid(idgen.KindTask, id) {
			findings = append(findings, Finding{TaskID: id, Code: CodeMalformedID, Detail: id})
		}

		live, err := c.readLiveSnapshot(id)
		if err != nil {
			return nil, err
		}
		scratchPath := c.st.TaskPath(id) + ".doctor-scratch"
		rebuiltSnap, err := c.rebuildFrom(id, c.st.EventLogPath(id), scratchPath)
		if err != nil {
			return nil, err
		}
		store.RemoveFile(scratchPath)

		if live == nil && rebuiltSnap != nil {
			findings = append(findings, Finding{TaskID: id, Code: CodeSnapshotDrift, Detail: "snapshot missing, log present"})
			if fix {
				if err := store.WriteJSONAtomic(c.st.TaskPath(id), rebuiltSnap); err != nil {
					return nil, err
				}
				findings[len(findings)-1].Fixed = true
			}
		} else if live != nil && rebuiltSnap != nil && !snapshotsEqual(live, rebuiltSnap) {
			findings = append(findings, Finding{TaskID: id, Code: CodeSnapshotDrift, Detail: "snapshot disagrees with replayed log"})
			if fix {
				if err := store.WriteJSONAtomic(c.st.TaskPath(id), rebuiltSnap); err != nil {
					return nil, err
				}
				findings[len(findings)-1].Fixed = true
			}
		}

		effective := live
		if effective == nil {
			effective = rebuiltSnap
		}
		if effective != nil {
			snapshots[id] = effective
		}
	}

	if err := c.checkLifecycleIndex(ids, &findings); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for id, snap := range snapshots {
		for _, rel := range snap.RelationshipsOut {
			if rel.TargetID == id {
				findings = append(findings, Finding{TaskID: id, Code: CodeSelfLink, Detail: rel.Type})
				continue
			}
			if _, ok := snapshots[rel.TargetID]; !ok {
				findings = append(findings, Finding{TaskID: id, Code: CodeDanglingRelation, Detail: rel.TargetID + ":" + rel.Type})
			}
			key := id + "\x00" + rel.Key()
			if seen[key] {
				findings = append(findings, Finding{TaskID: id, Code: CodeDuplicateEdge, Detail: rel.TargetID + ":" + rel.Type})
			}
			seen[key] = true
		}
		for _, ref := range snap.EvidenceRefs {
			if ref.SourceType != model.SourceArtifact {
				continue
			}
			art, err := c.artifacts.Get(ref.SourceID)
			if err != nil {
				continue // missing metadata is its own (unreported here) class; Get's caller sees it directly
			}
			if c.artifacts.MissingPayload(art) {
				findings = append(findings, Finding{TaskID: id, Code: CodeMissingPayload, Detail: art.PayloadRef})
			}
		}
	}

	return findings, nil
}

// checkLifecycleIndex reports one CodeLifecycleMismatch finding per
// lifecycle-relevant event id present in a per-task log but absent
// from the shared lifecycle index (or vice versa); RebuildAll is the
// repair path, Doctor only reports.
func (c *Checker) checkLifecycleIndex(ids []string, findings *[]Finding) error {
	expected := map[string]bool{}
	for _, id := range ids {
		if err := c.log.IteratePath(c.st.EventLogPath(id), func(ev model.Event) error {
			if model.LifecycleEventTypes[ev.Type] {
				expected[ev.ID] = true
			}
			return nil
		}); err != nil {
			return fmt.Errorf("integrity: scanning %s for lifecycle check: %w", id, err)
		}
	}

	indexed := map[string]bool{}
	if err := c.log.IterateLifecycle(func(ev model.Event) error {
		indexed[ev.ID] = true
		if !expected[ev.ID] {
			*findings = append(*findings, Finding{TaskID: ev.TaskID, Code: CodeLifecycleMismatch, Detail: "indexed event " + ev.ID + " not found in its task log"})
		}
		return nil
	}); err != nil {
		return fmt.Errorf("integrity: scanning lifecycle index: %w", err)
	}
	for id := range expected {
		if !indexed[id] {
			*findings = append(*findings, Finding{Code: CodeLifecycleMismatch, Detail: "task-log event " + id + " missing from lifecycle index"})
		}
	}
	return nil
}

func (c *Checker) readLiveSnapshot(id string) (*model.Task, error) {
	if !store.Exists(c.st.TaskPath(id)) {
		return nil, nil
	}
	var t model.Task
	if err := store.ReadJSON(c.st.TaskPath(id), &t); err != nil {
		return nil, nil // unparseable snapshot is itself drift; treated as missing so it gets rewritten
	}
	return &t, nil
}

// snapshotsEqual compares two snapshots by their JSON encoding, leaving
// out ShortID: Create stamps it onto the live snapshot after the Reducer
// runs, so a snapshot replayed from the log never carries it.
func snapshotsEqual(a, b *model.Task) bool {
	ca, cb := *a, *b
	ca.ShortID, cb.ShortID = "", ""
	return fingerprint(&ca) == fingerprint(&cb)
}

func fingerprint(t *model.Task) string {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Sprintf("%+v", t)
	}
	return string(b)
}

// listTaskIDs lists the task ids with an event log under dir, the
// authoritative set for any full-store scan (a task with no log
// cannot exist, regardless of what stray snapshot files say).
func listTaskIDs(dir string) ([]string, error) {
	return store.ListIDs(dir, ".jsonl")
}
