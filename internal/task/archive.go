package task

import (
	"context"
	"fmt"
	"time"

	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/reducer"
	"github.com/lattice-dev/lattice/internal/store"
)

// Archive appends a task_archived event while the log is still live,
// then moves the task's event log, snapshot and note into the
// archive/ subtree. The event append happens before the move so
// EventLog.Append (which always targets the live path) needs no
// archive-aware variant.
func (s *Service) Archive(ctx context.Context, id, actor, eventID string, prov *model.Provenance) (snap *model.Task, err error) {
	defer s.observeVerb("archive", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	if store.Exists(s.st.ArchivedTaskPath(id)) {
		return nil, ErrAlreadyArchived
	}
	prior, err := s.loadLive(id)
	if err != nil {
		return nil, err
	}
	if prior.Archived {
		return nil, ErrAlreadyArchived
	}
	cfg := s.cfgSvc.Current()

	ev := model.Event{ID: eventID, Type: model.EventTaskArchived, TaskID: id, Actor: actor, Provenance: prov}
	last, haveLast, err := s.log.Last(id)
	if err != nil {
		return nil, fmt.Errorf("task: reading last event: %w", err)
	}
	appended, err := s.log.Append(id, ev, last, haveLast)
	isNew := true
	if err != nil {
		dup, ok := asDuplicate(err)
		if !ok {
			return nil, err
		}
		appended = dup
		isNew = false
	}
	snap = reducer.Apply(cfg, prior, appended)

	if isNew {
		if err := store.MoveFile(s.st.EventLogPath(id), s.st.ArchivedEventLogPath(id)); err != nil {
			return nil, fmt.Errorf("task: archiving event log: %w", err)
		}
		if store.Exists(s.st.NotePath(id)) {
			if err := store.MoveFile(s.st.NotePath(id), s.st.ArchivedNotePath(id)); err != nil {
				return nil, fmt.Errorf("task: archiving note: %w", err)
			}
		}
	}
	if err := store.WriteJSONAtomic(s.st.ArchivedTaskPath(id), snap); err != nil {
		return nil, fmt.Errorf("task: writing archived snapshot: %w", err)
	}
	if err := store.RemoveFile(s.st.TaskPath(id)); err != nil {
		return nil, fmt.Errorf("task: removing live snapshot: %w", err)
	}

	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}

// Unarchive moves an archived task's event log and note back to the
// live directories, then appends a task_unarchived event through the
// normal (live-path) EventLog.Append.
func (s *Service) Unarchive(ctx context.Context, id, actor, eventID string, prov *model.Provenance) (snap *model.Task, err error) {
	defer s.observeVerb("unarchive", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	if !store.Exists(s.st.ArchivedTaskPath(id)) {
		if store.Exists(s.st.TaskPath(id)) || store.Exists(s.st.EventLogPath(id)) {
			return nil, ErrNotArchived
		}
		return nil, ErrNotFound
	}
	prior, err := s.readSnapshot(s.st.ArchivedTaskPath(id))
	if err != nil {
		return nil, err
	}
	if !prior.Archived {
		return nil, ErrNotArchived
	}
	cfg := s.cfgSvc.Current()

	if err := store.MoveFile(s.st.ArchivedEventLogPath(id), s.st.EventLogPath(id)); err != nil {
		return nil, fmt.Errorf("task: restoring event log: %w", err)
	}
	if store.Exists(s.st.ArchivedNotePath(id)) {
		if err := store.MoveFile(s.st.ArchivedNotePath(id), s.st.NotePath(id)); err != nil {
			return nil, fmt.Errorf("task: restoring note: %w", err)
		}
	}

	ev := model.Event{ID: eventID, Type: model.EventTaskUnarchived, TaskID: id, Actor: actor, Provenance: prov}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}
	if err := store.RemoveFile(s.st.ArchivedTaskPath(id)); err != nil {
		return nil, fmt.Errorf("task: removing archived snapshot: %w", err)
	}

	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}
