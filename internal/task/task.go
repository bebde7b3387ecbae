// Package task is the TaskService: it orchestrates Workflow, Reducer,
// EventLog, Store, LockManager and Hooks for every mutating verb a
// caller can run against a task. Every verb opens a lock scope, loads
// or rebuilds the current snapshot, validates, appends one event,
// reduces it onto the snapshot, and persists the result. A crash
// between the append and the snapshot write is recoverable: the next
// Load rebuilds the snapshot from the log of record.
package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/clock"
	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/eventlog"
	"github.com/lattice-dev/lattice/internal/hooks"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/lock"
	"github.com/lattice-dev/lattice/internal/metrics"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/reducer"
	"github.com/lattice-dev/lattice/internal/shortid"
	"github.com/lattice-dev/lattice/internal/store"
	"github.com/lattice-dev/lattice/internal/workflow"
)

// Sentinel errors map directly onto the error codes of the external
// envelope; the adapter layer (internal/apierr) translates them.
var (
	ErrNotFound        = errors.New("task: not found")
	ErrInvalidInput    = errors.New("task: invalid input")
	ErrProtectedField  = errors.New("task: field is protected")
	ErrReservedType    = errors.New("task: event type is reserved")
	ErrSelfLink        = errors.New("task: self-referential relationship rejected")
	ErrDuplicateLink   = errors.New("task: relationship already exists")
	ErrLinkNotFound    = errors.New("task: relationship does not exist")
	ErrAlreadyArchived = errors.New("task: already archived")
	ErrNotArchived     = errors.New("task: not archived")
	ErrCommentNotFound = errors.New("task: comment not found")
	ErrInvalidField    = errors.New("task: unknown field")
	ErrNotEligible     = errors.New("task: no longer eligible for claim")
)

// updatableFields are the top-level fields Update accepts directly;
// anything under the custom_fields. prefix is always accepted.
var updatableFields = map[string]bool{
	"title": true, "description": true, "type": true,
	"priority": true, "urgency": true, "complexity": true, "tags": true,
}

// ValidField reports whether field is a recognized Update target: a
// known top-level field, or any custom_fields.* dotted path.
func ValidField(field string) bool {
	const prefix = "custom_fields."
	if len(field) > len(prefix) && field[:len(prefix)] == prefix {
		return true
	}
	return updatableFields[field]
}

// ActorEnvVar overrides the actor when no explicit actor is supplied.
const ActorEnvVar = "LATTICE_ACTOR"

// ResolveActor applies the documented precedence: explicit argument,
// then LATTICE_ACTOR, then the configured default actor.
func ResolveActor(explicit string, cfg *model.Config) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(ActorEnvVar); env != "" {
		return env
	}
	return cfg.DefaultActor
}

// Service is the TaskService. One Service is shared by every verb call
// against a given store.
type Service struct {
	st        *store.Store
	locks     *lock.Manager
	cfgSvc    *config.Service
	ids       *idgen.Generator
	clk       clock.Clock
	log       *eventlog.Log
	artifacts *artifact.Store
	hooks     *hooks.Dispatcher
	metrics   *metrics.Registry
	logger    zerolog.Logger
}

// New assembles a Service from its already-constructed collaborators.
// m may be nil, in which case verb counts and latency go unrecorded.
func New(st *store.Store, locks *lock.Manager, cfgSvc *config.Service, ids *idgen.Generator, clk clock.Clock, log *eventlog.Log, artifacts *artifact.Store, h *hooks.Dispatcher, m *metrics.Registry, logger zerolog.Logger) *Service {
	return &Service{st: st, locks: locks, cfgSvc: cfgSvc, ids: ids, clk: clk, log: log, artifacts: artifacts, hooks: h, metrics: m, logger: logger}
}

// observeVerb records one verb invocation's outcome and latency.
// result is "ok" or "error"; call via defer with the verb's own named
// error return so the final err value (including one set after the
// defer was registered) is observed.
func (s *Service) observeVerb(verb string, start time.Time, err *error) {
	result := "ok"
	if err != nil && *err != nil {
		result = "error"
	}
	s.metrics.ObserveVerb(verb, result, time.Since(start))
}

func taskResource(id string) string { return "task:" + id }

// asDuplicate unwraps an *eventlog.Duplicate error into its existing
// event, for verbs (Archive) that drive EventLog.Append directly
// instead of going through appendAndApply.
func asDuplicate(err error) (model.Event, bool) {
	var dup *eventlog.Duplicate
	if errors.As(err, &dup) {
		return dup.Existing, true
	}
	return model.Event{}, false
}

const shortIDResource = "shortid"
const lifecycleResource = "lifecycle"

func (s *Service) mintTaskID() string {
	return s.ids.Next(idgen.KindTask, s.nowTime())
}

func (s *Service) nowTime() time.Time {
	if t, err := clock.Parse(s.clk.Now()); err == nil {
		return t
	}
	return time.Now().UTC()
}

// Get loads a task's current snapshot, checking the live location first
// and falling back to the archive. Get takes no lock; a missing
// snapshot with a present log is rebuilt from the log and written back,
// the normal rebuild-on-read.
func (s *Service) Get(id string) (*model.Task, error) {
	if store.Exists(s.st.TaskPath(id)) {
		return s.readSnapshot(s.st.TaskPath(id))
	}
	if store.Exists(s.st.ArchivedTaskPath(id)) {
		return s.readSnapshot(s.st.ArchivedTaskPath(id))
	}
	if store.Exists(s.st.EventLogPath(id)) {
		return s.rebuild(id, s.st.EventLogPath(id), s.st.TaskPath(id))
	}
	if store.Exists(s.st.ArchivedEventLogPath(id)) {
		return s.rebuild(id, s.st.ArchivedEventLogPath(id), s.st.ArchivedTaskPath(id))
	}
	return nil, ErrNotFound
}

func (s *Service) readSnapshot(path string) (*model.Task, error) {
	var t model.Task
	if err := store.ReadJSON(path, &t); err != nil {
		return nil, fmt.Errorf("task: reading snapshot: %w", err)
	}
	return &t, nil
}

// loadLive loads the live snapshot for mutation, rebuilding from the
// live event log if the snapshot file is missing. Returns ErrNotFound
// if neither exists (including when the task has been archived, since
// archival moves both files out of the live directories).
func (s *Service) loadLive(id string) (*model.Task, error) {
	if store.Exists(s.st.TaskPath(id)) {
		return s.readSnapshot(s.st.TaskPath(id))
	}
	if store.Exists(s.st.EventLogPath(id)) {
		return s.rebuild(id, s.st.EventLogPath(id), s.st.TaskPath(id))
	}
	return nil, ErrNotFound
}

// rebuild replays logPath from scratch through the Reducer and writes
// the resulting snapshot to snapPath, healing a missing-snapshot
// inconsistency left by a crash between append and snapshot write.
func (s *Service) rebuild(id, logPath, snapPath string) (*model.Task, error) {
	cfg := s.cfgSvc.Current()
	var snap *model.Task
	found := false
	if ierr := s.log.IteratePath(logPath, func(ev model.Event) error {
		snap = reducer.Apply(cfg, snap, ev)
		found = true
		return nil
	}); ierr != nil {
		return nil, fmt.Errorf("task: replaying log: %w", ierr)
	}
	if !found {
		return nil, ErrNotFound
	}
	if err := store.WriteJSONAtomic(snapPath, snap); err != nil {
		return nil, fmt.Errorf("task: writing rebuilt snapshot: %w", err)
	}
	s.logger.Info().Str("task_id", id).Msg("rebuilt snapshot from event log")
	return snap, nil
}

// appendAndApply appends ev to id's log against prior's derived state,
// reduces the result onto prior, and persists the snapshot at
// snapPath. It returns the new snapshot, the event actually recorded
// (the caller's ev on a fresh append, or the pre-existing one on a
// duplicate resubmission), and whether this call actually added a new
// event (false on a duplicate — callers should skip firing hooks).
func (s *Service) appendAndApply(id string, ev model.Event, cfg *model.Config, prior *model.Task, snapPath string) (*model.Task, model.Event, bool, error) {
	last, haveLast, err := s.log.Last(id)
	if err != nil {
		return nil, model.Event{}, false, fmt.Errorf("task: reading last event: %w", err)
	}
	appended, err := s.log.Append(id, ev, last, haveLast)
	if err != nil {
		var dup *eventlog.Duplicate
		if errors.As(err, &dup) {
			snap, rerr := s.readSnapshot(snapPath)
			if rerr != nil {
				return nil, model.Event{}, false, rerr
			}
			return snap, dup.Existing, false, nil
		}
		return nil, model.Event{}, false, err
	}
	snap := reducer.Apply(cfg, prior, appended)
	if err := store.WriteJSONAtomic(snapPath, snap); err != nil {
		return nil, model.Event{}, false, fmt.Errorf("task: writing snapshot: %w", err)
	}
	return snap, appended, true, nil
}

func (s *Service) fireHooks(cfg *model.Config, ev model.Event, isNew bool) {
	if !isNew || s.hooks == nil {
		return
	}
	s.hooks.Fire(cfg, ev)
}

// CreateRequest describes a new task.
type CreateRequest struct {
	TaskID       string // optional, for idempotent retries with a pre-minted id
	EventID      string // optional idempotency key
	Title        string
	Description  string
	Status       string // optional; defaults to the configured default_status
	Type         string
	Priority     model.Priority
	Urgency      model.Urgency
	Complexity   model.Complexity
	AssignedTo   *string
	Tags         []string
	CustomFields map[string]interface{}
	Actor        string
	Provenance   *model.Provenance
}

// Create appends a task_created event and returns the new snapshot.
// Container ("epic") tasks may not be given an explicit status at
// creation: their status is always computed by Workflow.
func (s *Service) Create(ctx context.Context, req CreateRequest) (snap *model.Task, err error) {
	defer s.observeVerb("create", time.Now(), &err)
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if req.Status != "" && workflow.IsContainerType(req.Type) {
		return nil, workflow.ErrContainerStatus
	}
	cfg := s.cfgSvc.Current()

	id := req.TaskID
	if id == "" && req.EventID != "" {
		// A retried create carries the same event id but no task id;
		// reuse the task its first attempt created.
		if err := s.log.IterateLifecycle(func(ev model.Event) error {
			if ev.Type == model.EventTaskCreated && ev.ID == req.EventID {
				id = ev.TaskID
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	if id == "" {
		id = s.mintTaskID()
	}

	h, err := s.locks.Acquire(ctx, taskResource(id), shortIDResource, lifecycleResource)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	data := map[string]interface{}{
		"title":       req.Title,
		"description": req.Description,
		"status":      req.Status,
		"type":        req.Type,
		"priority":    string(req.Priority),
		"urgency":     string(req.Urgency),
		"complexity":  string(req.Complexity),
		"tags":        req.Tags,
	}
	if req.AssignedTo != nil {
		data["assigned_to"] = *req.AssignedTo
	}
	if req.CustomFields != nil {
		data["custom_fields"] = req.CustomFields
	}

	ev := model.Event{ID: req.EventID, Type: model.EventTaskCreated, TaskID: id, Actor: req.Actor, Data: data, Provenance: req.Provenance}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, nil, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}

	if isNew {
		idx, ierr := shortid.Open(s.st, cfg.ProjectCode)
		if ierr != nil {
			return nil, fmt.Errorf("task: opening short-id index: %w", ierr)
		}
		alias, aerr := idx.Allocate(id)
		if aerr != nil {
			return nil, fmt.Errorf("task: allocating short id: %w", aerr)
		}
		snap.ShortID = alias
		if err := store.WriteJSONAtomic(s.st.TaskPath(id), snap); err != nil {
			return nil, fmt.Errorf("task: writing snapshot with short id: %w", err)
		}
	}

	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}
