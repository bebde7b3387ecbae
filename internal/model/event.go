package model

import "encoding/json"

// Event types built into the core. Extension types must start with "x_"
// (enforced by TaskService.RecordCustomEvent; Doctor reports stored
// events whose type is neither built in nor x_-prefixed).
const (
	EventTaskCreated        = "task_created"
	EventStatusChanged      = "status_changed"
	EventAssignmentChanged  = "assignment_changed"
	EventFieldUpdated       = "field_updated"
	EventCommentAdded       = "comment_added"
	EventCommentEdited      = "comment_edited"
	EventCommentDeleted     = "comment_deleted"
	EventRelationshipAdded  = "relationship_added"
	EventRelationshipRemoved = "relationship_removed"
	EventArtifactAttached   = "artifact_attached"
	EventTaskArchived       = "task_archived"
	EventTaskUnarchived     = "task_unarchived"
)

// BuiltinEventTypes is the reserved set; custom event types beginning with
// "x_" may never collide with it.
var BuiltinEventTypes = map[string]bool{
	EventTaskCreated:         true,
	EventStatusChanged:       true,
	EventAssignmentChanged:   true,
	EventFieldUpdated:        true,
	EventCommentAdded:        true,
	EventCommentEdited:       true,
	EventCommentDeleted:      true,
	EventRelationshipAdded:   true,
	EventRelationshipRemoved: true,
	EventArtifactAttached:    true,
	EventTaskArchived:        true,
	EventTaskUnarchived:      true,
}

// LifecycleEventTypes is the subset reflected in the global lifecycle index.
var LifecycleEventTypes = map[string]bool{
	EventTaskCreated:    true,
	EventTaskArchived:   true,
	EventTaskUnarchived: true,
}

// Provenance carries optional attribution fields passed through from the
// verb boundary.
type Provenance struct {
	TriggeredBy string `json:"triggered_by,omitempty"`
	OnBehalfOf  string `json:"on_behalf_of,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (p *Provenance) isZero() bool {
	return p == nil || (p.TriggeredBy == "" && p.OnBehalfOf == "" && p.Reason == "")
}

// Event is an immutable record of one state change to one task.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	TaskID     string                 `json:"task_id"`
	Actor      string                 `json:"actor"`
	TS         string                 `json:"ts"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Provenance *Provenance            `json:"provenance,omitempty"`
	Telemetry  map[string]interface{} `json:"telemetry,omitempty"`
}

// Equivalent reports whether two events are equal for idempotency
// purposes: type, task id, actor and the JSON-marshaled data payload
// must match; id, ts, provenance and telemetry are ignored.
func (e Event) Equivalent(other Event) bool {
	if e.Type != other.Type || e.TaskID != other.TaskID || e.Actor != other.Actor {
		return false
	}
	a, err1 := json.Marshal(e.Data)
	b, err2 := json.Marshal(other.Data)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(a) == string(b)
}
