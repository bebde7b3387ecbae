package task

import (
	"context"
	"fmt"
	"time"

	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/reducer"
)

// UpdateRequest patches a single top-level or custom_fields.* field.
type UpdateRequest struct {
	EventID    string
	Field      string
	Value      interface{}
	Actor      string
	Provenance *model.Provenance
}

// Update appends a field_updated event. previous_value is always
// recorded in the event data so the event is self-sufficient for
// undo/audit tooling without replaying prior events.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (snap *model.Task, err error) {
	defer s.observeVerb("update", time.Now(), &err)
	if reducer.ProtectedFields[req.Field] {
		return nil, fmt.Errorf("%w: %q", ErrProtectedField, req.Field)
	}
	if !ValidField(req.Field) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, req.Field)
	}
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, err
	}
	cfg := s.cfgSvc.Current()

	prev := fieldValue(prior, req.Field)
	existing, found, err := s.log.Lookup(id, req.EventID)
	if err != nil {
		return nil, err
	}
	if found {
		// A retry records the previous_value its first attempt saw.
		prev = existing.Data["previous_value"]
	}
	data := map[string]interface{}{
		"field":          req.Field,
		"value":          req.Value,
		"previous_value": prev,
	}
	ev := model.Event{ID: req.EventID, Type: model.EventFieldUpdated, TaskID: id, Actor: req.Actor, Data: data, Provenance: req.Provenance}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}
	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}

func fieldValue(t *model.Task, field string) interface{} {
	const prefix = "custom_fields."
	if len(field) > len(prefix) && field[:len(prefix)] == prefix {
		if t.CustomFields == nil {
			return nil
		}
		return t.CustomFields[field[len(prefix):]]
	}
	switch field {
	case "title":
		return t.Title
	case "description":
		return t.Description
	case "type":
		return t.Type
	case "priority":
		return string(t.Priority)
	case "urgency":
		return string(t.Urgency)
	case "complexity":
		return string(t.Complexity)
	case "tags":
		return t.Tags
	default:
		return nil
	}
}

// Assign appends an assignment_changed event. actor, or nil to
// unassign.
func (s *Service) Assign(ctx context.Context, id string, assignee *string, requestedBy string, eventID string, prov *model.Provenance) (snap *model.Task, err error) {
	defer s.observeVerb("assign", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, err
	}
	cfg := s.cfgSvc.Current()

	data := map[string]interface{}{}
	if assignee != nil {
		data["to"] = *assignee
	}
	ev := model.Event{ID: eventID, Type: model.EventAssignmentChanged, TaskID: id, Actor: requestedBy, Data: data, Provenance: prov}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}
	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}

// CommentAdd appends a comment_added event and returns the new
// snapshot plus the minted comment id (needed later by CommentEdit and
// CommentDelete).
func (s *Service) CommentAdd(ctx context.Context, id string, body, role, actor, eventID string, prov *model.Provenance) (snap *model.Task, commentID string, err error) {
	defer s.observeVerb("comment_add", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, "", err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, "", err
	}
	cfg := s.cfgSvc.Current()

	commentID = s.ids.Next(idgen.KindEvent, s.nowTime())
	data := map[string]interface{}{"comment_id": commentID, "body": body, "role": role}
	ev := model.Event{ID: eventID, Type: model.EventCommentAdded, TaskID: id, Actor: actor, Data: data, Provenance: prov}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, "", err
	}
	s.fireHooks(cfg, appended, isNew)
	if !isNew {
		if existingID, ok := appended.Data["comment_id"].(string); ok {
			commentID = existingID
		}
	}
	return snap, commentID, nil
}

// CommentEdit appends a comment_edited event. The comment body lives
// only in the event log; the snapshot is unaffected beyond updated_at.
func (s *Service) CommentEdit(ctx context.Context, id, commentID, body, actor, eventID string, prov *model.Provenance) (snap *model.Task, err error) {
	defer s.observeVerb("comment_edit", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, err
	}
	exists, _, err := s.findActiveComment(id, commentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCommentNotFound
	}
	cfg := s.cfgSvc.Current()

	data := map[string]interface{}{"comment_id": commentID, "body": body}
	ev := model.Event{ID: eventID, Type: model.EventCommentEdited, TaskID: id, Actor: actor, Data: data, Provenance: prov}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}
	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}

// CommentDelete appends a comment_deleted event, decrementing
// comment_count and removing any evidence ref the comment carried.
func (s *Service) CommentDelete(ctx context.Context, id, commentID, actor, eventID string, prov *model.Provenance) (snap *model.Task, err error) {
	defer s.observeVerb("comment_delete", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, err
	}
	exists, role, err := s.findActiveComment(id, commentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCommentNotFound
	}
	cfg := s.cfgSvc.Current()

	data := map[string]interface{}{"comment_id": commentID, "role": role}
	ev := model.Event{ID: eventID, Type: model.EventCommentDeleted, TaskID: id, Actor: actor, Data: data, Provenance: prov}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}
	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}

// findActiveComment scans id's log for a comment_added with commentID
// not since removed by a matching comment_deleted, returning its role.
func (s *Service) findActiveComment(id, commentID string) (bool, string, error) {
	active := false
	role := ""
	err := s.log.Iterate(id, func(ev model.Event) error {
		cid, _ := ev.Data["comment_id"].(string)
		if cid != commentID {
			return nil
		}
		switch ev.Type {
		case model.EventCommentAdded:
			active = true
			role, _ = ev.Data["role"].(string)
		case model.EventCommentDeleted:
			active = false
		}
		return nil
	})
	return active, role, err
}

// AttachRequest describes a new artifact to attach to a task.
type AttachRequest struct {
	EventID    string
	Source     model.ArtifactSource
	SourcePath string
	URL        string
	Title      string
	Summary    string
	Sensitive  bool
	Role       string
	Actor      string
	Provenance *model.Provenance
}

// Attach puts a new artifact via ArtifactStore, then appends an
// artifact_attached event recording it as evidence.
func (s *Service) Attach(ctx context.Context, id string, req AttachRequest) (snap *model.Task, art *model.Artifact, err error) {
	defer s.observeVerb("attach", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, nil, err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, nil, err
	}
	cfg := s.cfgSvc.Current()

	art, err = s.artifacts.Put(artifact.PutRequest{
		TaskID:     id,
		Source:     req.Source,
		SourcePath: req.SourcePath,
		URL:        req.URL,
		Title:      req.Title,
		Summary:    req.Summary,
		Sensitive:  req.Sensitive,
		Role:       req.Role,
		Actor:      req.Actor,
	})
	if err != nil {
		return nil, nil, err
	}

	data := map[string]interface{}{"artifact_id": art.ID, "role": req.Role}
	ev := model.Event{ID: req.EventID, Type: model.EventArtifactAttached, TaskID: id, Actor: req.Actor, Data: data, Provenance: req.Provenance}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, nil, err
	}
	s.fireHooks(cfg, appended, isNew)
	return snap, art, nil
}
