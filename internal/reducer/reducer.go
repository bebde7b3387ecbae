// Package reducer implements the pure fold at the heart of Lattice:
// applyEvent(snapshot, event) -> snapshot. It is shared,
// unmodified, between the incremental write path (TaskService) and the
// replay path (Integrity.rebuildTask); neither may special-case the other.
package reducer

import (
	"github.com/lattice-dev/lattice/internal/model"
)

// Handler mutates a cloned snapshot in place to reflect ev. Handlers never
// read the Clock; every derived timestamp comes from ev.TS.
type Handler func(cfg *model.Config, snap *model.Task, ev model.Event)

var registry = map[string]Handler{
	model.EventTaskCreated:        handleTaskCreated,
	model.EventStatusChanged:      handleStatusChanged,
	model.EventAssignmentChanged:  handleAssignmentChanged,
	model.EventFieldUpdated:       handleFieldUpdated,
	model.EventCommentAdded:       handleCommentAdded,
	model.EventCommentEdited:      handleCommentEdited,
	model.EventCommentDeleted:     handleCommentDeleted,
	model.EventRelationshipAdded:  handleRelationshipAdded,
	model.EventRelationshipRemoved: handleRelationshipRemoved,
	model.EventArtifactAttached:   handleArtifactAttached,
	model.EventTaskArchived:       handleTaskArchived,
	model.EventTaskUnarchived:     handleTaskUnarchived,
}

// ProtectedFields may never be targeted by a field_updated event; they are
// written only by their own dedicated event types.
var ProtectedFields = map[string]bool{
	"id":                true,
	"short_id":          true,
	"status":            true,
	"created_at":        true,
	"updated_at":        true,
	"evidence_refs":     true,
	"relationships_out": true,
	"comment_count":     true,
	"reopened_count":    true,
	"done_at":           true,
	"archived":          true,
}

// Apply folds ev onto snap (snap may be nil, meaning the zero-value
// starting snapshot for a brand-new task) and returns the resulting
// snapshot. The input is never mutated; Apply always works on a clone.
func Apply(cfg *model.Config, snap *model.Task, ev model.Event) *model.Task {
	next := snap.Clone()
	if h, ok := registry[ev.Type]; ok {
		h(cfg, next, ev)
	} else {
		// Unknown event types (including x_*) bump updated_at but
		// otherwise leave the snapshot unchanged.
	}
	next.UpdatedAt = ev.TS
	applyProvenance(next, ev)
	return next
}

func applyProvenance(snap *model.Task, ev model.Event) {
	if ev.Provenance == nil {
		return
	}
	snap.TriggeredBy = ev.Provenance.TriggeredBy
	snap.OnBehalfOf = ev.Provenance.OnBehalfOf
	snap.Reason = ev.Provenance.Reason
}

func str(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	v, _ := data[key].(string)
	return v
}

func strPtr(data map[string]interface{}, key string) *string {
	if data == nil {
		return nil
	}
	v, ok := data[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func strSlice(data map[string]interface{}, key string) []string {
	raw, ok := data[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func handleTaskCreated(cfg *model.Config, snap *model.Task, ev model.Event) {
	d := ev.Data
	snap.ID = ev.TaskID
	snap.Title = str(d, "title")
	snap.Description = str(d, "description")
	snap.Status = str(d, "status")
	if snap.Status == "" && cfg != nil {
		snap.Status = cfg.DefaultStatus
	}
	snap.Type = str(d, "type")
	snap.Priority = model.Priority(str(d, "priority"))
	snap.Urgency = model.Urgency(str(d, "urgency"))
	snap.Complexity = model.Complexity(str(d, "complexity"))
	snap.AssignedTo = strPtr(d, "assigned_to")
	snap.Tags = strSlice(d, "tags")
	if cf, ok := d["custom_fields"].(map[string]interface{}); ok {
		snap.CustomFields = cf
	}
	snap.CreatedAt = ev.TS
	snap.UpdatedAt = ev.TS
}

func handleStatusChanged(cfg *model.Config, snap *model.Task, ev model.Event) {
	to := str(ev.Data, "to")
	from := snap.Status
	if cfg != nil {
		oldIdx := cfg.StatusIndex(from)
		newIdx := cfg.StatusIndex(to)
		if oldIdx >= 0 && newIdx >= 0 && newIdx < oldIdx {
			snap.ReopenedCount++
		}
		if cfg.IsDoneClass(to) {
			ts := ev.TS
			snap.DoneAt = &ts
		} else if cfg.IsDoneClass(from) {
			snap.DoneAt = nil
		}
	}
	snap.Status = to
}

func handleAssignmentChanged(cfg *model.Config, snap *model.Task, ev model.Event) {
	snap.AssignedTo = strPtr(ev.Data, "to")
}

func handleFieldUpdated(cfg *model.Config, snap *model.Task, ev model.Event) {
	field := str(ev.Data, "field")
	if field == "" || ProtectedFields[field] {
		return
	}
	value := ev.Data["value"]
	applyFieldUpdate(snap, field, value)
}

// applyFieldUpdate writes value to the named top-level or custom_fields.*
// field. Everything after "custom_fields." is used as one map key, dots
// included; nested maps are neither created nor traversed.
func applyFieldUpdate(snap *model.Task, field string, value interface{}) {
	const prefix = "custom_fields."
	if len(field) > len(prefix) && field[:len(prefix)] == prefix {
		if snap.CustomFields == nil {
			snap.CustomFields = map[string]interface{}{}
		}
		snap.CustomFields[field[len(prefix):]] = value
		return
	}
	switch field {
	case "title":
		if s, ok := value.(string); ok {
			snap.Title = s
		}
	case "description":
		if s, ok := value.(string); ok {
			snap.Description = s
		}
	case "type":
		if s, ok := value.(string); ok {
			snap.Type = s
		}
	case "priority":
		if s, ok := value.(string); ok {
			snap.Priority = model.Priority(s)
		}
	case "urgency":
		if s, ok := value.(string); ok {
			snap.Urgency = model.Urgency(s)
		}
	case "complexity":
		if s, ok := value.(string); ok {
			snap.Complexity = model.Complexity(s)
		}
	case "tags":
		if raw, ok := value.([]interface{}); ok {
			tags := make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					tags = append(tags, s)
				}
			}
			snap.Tags = tags
		}
	}
}

func handleCommentAdded(cfg *model.Config, snap *model.Task, ev model.Event) {
	snap.CommentCount++
	role := str(ev.Data, "role")
	if role == "" {
		return
	}
	commentID := str(ev.Data, "comment_id")
	addEvidence(snap, model.EvidenceRef{SourceType: model.SourceComment, SourceID: commentID, Role: role})
}

func handleCommentEdited(cfg *model.Config, snap *model.Task, ev model.Event) {
	// Edits never change comment_count or evidence membership; only the
	// comment body (stored only in the event log) changes.
}

func handleCommentDeleted(cfg *model.Config, snap *model.Task, ev model.Event) {
	if snap.CommentCount > 0 {
		snap.CommentCount--
	}
	commentID := str(ev.Data, "comment_id")
	role := str(ev.Data, "role")
	if role == "" {
		return
	}
	removeEvidence(snap, model.EvidenceRef{SourceType: model.SourceComment, SourceID: commentID, Role: role})
}

func handleRelationshipAdded(cfg *model.Config, snap *model.Task, ev model.Event) {
	target := str(ev.Data, "target_id")
	relType := str(ev.Data, "type")
	if target == "" || target == snap.ID {
		return // self-links are rejected upstream in task.Service.Link; defensive no-op here
	}
	rel := model.Relationship{TargetID: target, Type: relType, Note: str(ev.Data, "note")}
	key := rel.Key()
	for _, r := range snap.RelationshipsOut {
		if r.Key() == key {
			return
		}
	}
	snap.RelationshipsOut = append(snap.RelationshipsOut, rel)
}

func handleRelationshipRemoved(cfg *model.Config, snap *model.Task, ev model.Event) {
	target := str(ev.Data, "target_id")
	relType := str(ev.Data, "type")
	key := (model.Relationship{TargetID: target, Type: relType}).Key()
	out := snap.RelationshipsOut[:0]
	for _, r := range snap.RelationshipsOut {
		if r.Key() != key {
			out = append(out, r)
		}
	}
	snap.RelationshipsOut = out
}

func handleArtifactAttached(cfg *model.Config, snap *model.Task, ev model.Event) {
	artID := str(ev.Data, "artifact_id")
	role := str(ev.Data, "role")
	addEvidence(snap, model.EvidenceRef{SourceType: model.SourceArtifact, SourceID: artID, Role: role})
}

func handleTaskArchived(cfg *model.Config, snap *model.Task, ev model.Event) {
	snap.Archived = true
}

func handleTaskUnarchived(cfg *model.Config, snap *model.Task, ev model.Event) {
	snap.Archived = false
}

func addEvidence(snap *model.Task, ref model.EvidenceRef) {
	key := ref.Key()
	for _, e := range snap.EvidenceRefs {
		if e.Key() == key {
			return
		}
	}
	snap.EvidenceRefs = append(snap.EvidenceRefs, ref)
}

func removeEvidence(snap *model.Task, ref model.EvidenceRef) {
	key := ref.Key()
	out := snap.EvidenceRefs[:0]
	for _, e := range snap.EvidenceRefs {
		if e.Key() != key {
			out = append(out, e)
		}
	}
	snap.EvidenceRefs = out
}

