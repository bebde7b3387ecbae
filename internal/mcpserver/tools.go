package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/lattice-dev/lattice/internal/apierr"
	"github.com/lattice-dev/lattice/internal/integrity"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/selector"
	"github.com/lattice-dev/lattice/internal/task"
)

// respond wraps an (result, error) pair from a task/selector/integrity
// call into the tool's JSON content block via the uniform envelope.
func respond(data interface{}, err error) (*ToolsCallResult, error) {
	if err != nil {
		return jsonResult(apierr.Fail(err), true)
	}
	return jsonResult(apierr.Ok(data), false)
}

func unmarshalParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, v)
}

// Each tool's InputSchema is hand-written against its own Execute
// request fields, not generated by reflection: keep the two in sync by
// hand when a field is added or renamed.

var provenanceProperty = `"provenance":{"type":"object","description":"Optional caller/source attribution attached to the resulting event."}`

var createSchema = json.RawMessage(`{
  "type": "object",
  "required": ["title", "actor"],
  "properties": {
    "task_id": {"type": "string", "description": "Caller-supplied task ID; generated if omitted."},
    "event_id": {"type": "string", "description": "Idempotency key; a retried call with the same id is a no-op."},
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "status": {"type": "string", "description": "Initial status; defaults to the configured default status and is rejected on container types; the value is not otherwise validated."},
    "type": {"type": "string", "description": "Task type, e.g. \"task\" or \"epic\"."},
    "priority": {"type": "string", "enum": ["critical", "high", "medium", "low", ""]},
    "urgency": {"type": "string", "enum": ["immediate", "high", "normal", "low", ""]},
    "complexity": {"type": "string", "enum": ["low", "medium", "high", ""]},
    "assigned_to": {"type": ["string", "null"]},
    "tags": {"type": "array", "items": {"type": "string"}},
    "custom_fields": {"type": "object"},
    "actor": {"type": "string", "minLength": 1},
    ` + provenanceProperty + `
  }
}`)

var updateSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "field", "value", "actor"],
  "properties": {
    "id": {"type": "string"},
    "event_id": {"type": "string"},
    "field": {"type": "string", "description": "Dotted field path, e.g. \"title\" or \"custom_fields.priority_score\". Protected fields (status, assigned_to, ...) are rejected."},
    "value": {},
    "actor": {"type": "string", "minLength": 1},
    ` + provenanceProperty + `
  }
}`)

var changeStatusSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "to", "actor"],
  "properties": {
    "id": {"type": "string"},
    "event_id": {"type": "string"},
    "to": {"type": "string", "description": "Target status; must be reachable from the current status unless force is true."},
    "force": {"type": "boolean", "description": "Bypass the configured transition graph. Requires reason."},
    "reason": {"type": "string", "description": "Required when force is true."},
    "actor": {"type": "string", "minLength": 1},
    ` + provenanceProperty + `
  }
}`)

var assignSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "requested_by"],
  "properties": {
    "id": {"type": "string"},
    "assignee": {"type": ["string", "null"], "description": "Actor to assign; null unassigns."},
    "requested_by": {"type": "string", "minLength": 1},
    "event_id": {"type": "string"}
  }
}`)

var commentAddSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "body", "role", "actor"],
  "properties": {
    "id": {"type": "string"},
    "body": {"type": "string", "minLength": 1},
    "role": {"type": "string", "description": "Commenting role, recorded as given and not checked against the configured role vocabulary; a non-empty role makes the comment an evidence ref."},
    "actor": {"type": "string", "minLength": 1},
    "event_id": {"type": "string"},
    ` + provenanceProperty + `
  }
}`)

var commentEditSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "comment_id", "body", "actor"],
  "properties": {
    "id": {"type": "string"},
    "comment_id": {"type": "string"},
    "body": {"type": "string", "minLength": 1},
    "actor": {"type": "string", "minLength": 1},
    "event_id": {"type": "string"},
    ` + provenanceProperty + `
  }
}`)

var commentDeleteSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "comment_id", "actor"],
  "properties": {
    "id": {"type": "string"},
    "comment_id": {"type": "string"},
    "actor": {"type": "string", "minLength": 1},
    "event_id": {"type": "string"},
    ` + provenanceProperty + `
  }
}`)

var linkSchema = json.RawMessage(`{
  "type": "object",
  "required": ["source_id", "target_id", "type", "actor"],
  "properties": {
    "source_id": {"type": "string"},
    "target_id": {"type": "string", "description": "Must differ from source_id; self-links are rejected."},
    "type": {"type": "string", "description": "Relationship type, e.g. \"blocks\" or \"relates_to\"."},
    "note": {"type": "string"},
    "actor": {"type": "string", "minLength": 1},
    "event_id": {"type": "string"},
    ` + provenanceProperty + `
  }
}`)

var unlinkSchema = json.RawMessage(`{
  "type": "object",
  "required": ["source_id", "target_id", "type", "actor"],
  "properties": {
    "source_id": {"type": "string"},
    "target_id": {"type": "string"},
    "type": {"type": "string", "description": "Must match an existing relationship's type exactly."},
    "note": {"type": "string"},
    "actor": {"type": "string", "minLength": 1},
    "event_id": {"type": "string"},
    ` + provenanceProperty + `
  }
}`)

var attachSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "source", "actor"],
  "properties": {
    "id": {"type": "string"},
    "event_id": {"type": "string"},
    "source": {"type": "string", "enum": ["file", "url", "conversation", "prompt", "log", "reference"]},
    "source_path": {"type": "string", "description": "Required when source is \"file\" or \"log\"."},
    "url": {"type": "string", "description": "Required when source is \"url\"."},
    "title": {"type": "string"},
    "summary": {"type": "string"},
    "sensitive": {"type": "boolean"},
    "role": {"type": "string"},
    "actor": {"type": "string", "minLength": 1},
    ` + provenanceProperty + `
  }
}`)

var archiveSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "actor"],
  "properties": {
    "id": {"type": "string"},
    "actor": {"type": "string", "minLength": 1},
    "event_id": {"type": "string"},
    ` + provenanceProperty + `
  }
}`)

var recordEventSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id", "type", "actor"],
  "properties": {
    "id": {"type": "string"},
    "type": {"type": "string", "description": "Custom domain event type; must not collide with a built-in event type."},
    "data": {"type": "object"},
    "actor": {"type": "string", "minLength": 1},
    "event_id": {"type": "string"},
    ` + provenanceProperty + `
  }
}`)

var getSchema = json.RawMessage(`{
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {"type": "string"}
  }
}`)

var statusPoolProperty = `"status_pool": {"type": "array", "items": {"type": "string"}, "description": "Overrides the default ready-set pool (backlog, planned)."}`

var nextSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "actor": {"type": "string"},
    ` + statusPoolProperty + `
  }
}`)

var claimSchema = json.RawMessage(`{
  "type": "object",
  "required": ["actor"],
  "properties": {
    "actor": {"type": "string", "minLength": 1},
    ` + statusPoolProperty + `
  }
}`)

var doctorSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "fix": {"type": "boolean", "description": "Repair findings in place instead of only reporting them."}
  }
}`)

var rebuildSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "id": {"type": "string", "description": "Rebuild a single task; omit to rebuild every task."}
  }
}`)

// RegisterTaskTools wires every task.Service verb, plus next/claim and
// doctor/rebuild, into registry.
func RegisterTaskTools(registry *Registry, svc *task.Service, sel *selector.Selector, checker *integrity.Checker) {
	registry.Register(&createTool{svc: svc})
	registry.Register(&updateTool{svc: svc})
	registry.Register(&changeStatusTool{svc: svc})
	registry.Register(&assignTool{svc: svc})
	registry.Register(&commentAddTool{svc: svc})
	registry.Register(&commentEditTool{svc: svc})
	registry.Register(&commentDeleteTool{svc: svc})
	registry.Register(&linkTool{svc: svc})
	registry.Register(&unlinkTool{svc: svc})
	registry.Register(&attachTool{svc: svc})
	registry.Register(&archiveTool{svc: svc})
	registry.Register(&unarchiveTool{svc: svc})
	registry.Register(&recordEventTool{svc: svc})
	registry.Register(&getTool{svc: svc})
	registry.Register(&nextTool{sel: sel})
	registry.Register(&claimTool{sel: sel})
	registry.Register(&doctorTool{checker: checker})
	registry.Register(&rebuildTool{checker: checker})
}

// --- task_create ---

type createTool struct{ svc *task.Service }

func (t *createTool) Name() string                    { return "task_create" }
func (t *createTool) Description() string              { return "Create a new task." }
func (t *createTool) InputSchema() json.RawMessage     { return createSchema }
func (t *createTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		TaskID       string                 `json:"task_id"`
		EventID      string                 `json:"event_id"`
		Title        string                 `json:"title"`
		Description  string                 `json:"description"`
		Status       string                 `json:"status"`
		Type         string                 `json:"type"`
		Priority     model.Priority         `json:"priority"`
		Urgency      model.Urgency          `json:"urgency"`
		Complexity   model.Complexity       `json:"complexity"`
		AssignedTo   *string                `json:"assigned_to"`
		Tags         []string               `json:"tags"`
		CustomFields map[string]interface{} `json:"custom_fields"`
		Actor        string                 `json:"actor"`
		Provenance   *model.Provenance      `json:"provenance"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, err := t.svc.Create(ctx, task.CreateRequest{
		TaskID: req.TaskID, EventID: req.EventID, Title: req.Title, Description: req.Description,
		Status: req.Status, Type: req.Type, Priority: req.Priority, Urgency: req.Urgency,
		Complexity: req.Complexity, AssignedTo: req.AssignedTo, Tags: req.Tags,
		CustomFields: req.CustomFields, Actor: req.Actor, Provenance: req.Provenance,
	})
	return respond(snap, err)
}

// --- task_update ---

type updateTool struct{ svc *task.Service }

func (t *updateTool) Name() string                { return "task_update" }
func (t *updateTool) Description() string         { return "Update a single field on a task." }
func (t *updateTool) InputSchema() json.RawMessage { return updateSchema }
func (t *updateTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID         string            `json:"id"`
		EventID    string            `json:"event_id"`
		Field      string            `json:"field"`
		Value      interface{}       `json:"value"`
		Actor      string            `json:"actor"`
		Provenance *model.Provenance `json:"provenance"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, err := t.svc.Update(ctx, req.ID, task.UpdateRequest{
		EventID: req.EventID, Field: req.Field, Value: req.Value, Actor: req.Actor, Provenance: req.Provenance,
	})
	return respond(snap, err)
}

// --- task_change_status ---

type changeStatusTool struct{ svc *task.Service }

func (t *changeStatusTool) Name() string                { return "task_change_status" }
func (t *changeStatusTool) Description() string         { return "Transition a task to a new status." }
func (t *changeStatusTool) InputSchema() json.RawMessage { return changeStatusSchema }
func (t *changeStatusTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID         string            `json:"id"`
		EventID    string            `json:"event_id"`
		To         string            `json:"to"`
		Force      bool              `json:"force"`
		Reason     string            `json:"reason"`
		Actor      string            `json:"actor"`
		Provenance *model.Provenance `json:"provenance"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, err := t.svc.ChangeStatus(ctx, req.ID, task.ChangeStatusRequest{
		EventID: req.EventID, To: req.To, Force: req.Force, Reason: req.Reason, Actor: req.Actor, Provenance: req.Provenance,
	})
	return respond(snap, err)
}

// --- task_assign ---

type assignTool struct{ svc *task.Service }

func (t *assignTool) Name() string                { return "task_assign" }
func (t *assignTool) Description() string         { return "Assign or unassign a task." }
func (t *assignTool) InputSchema() json.RawMessage { return assignSchema }
func (t *assignTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID          string  `json:"id"`
		Assignee    *string `json:"assignee"`
		RequestedBy string  `json:"requested_by"`
		EventID     string  `json:"event_id"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, err := t.svc.Assign(ctx, req.ID, req.Assignee, req.RequestedBy, req.EventID, nil)
	return respond(snap, err)
}

// --- task_comment_add ---

type commentAddTool struct{ svc *task.Service }

func (t *commentAddTool) Name() string                { return "task_comment_add" }
func (t *commentAddTool) Description() string         { return "Add a comment to a task." }
func (t *commentAddTool) InputSchema() json.RawMessage { return commentAddSchema }
func (t *commentAddTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID         string            `json:"id"`
		Body       string            `json:"body"`
		Role       string            `json:"role"`
		Actor      string            `json:"actor"`
		EventID    string            `json:"event_id"`
		Provenance *model.Provenance `json:"provenance"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, commentID, err := t.svc.CommentAdd(ctx, req.ID, req.Body, req.Role, req.Actor, req.EventID, req.Provenance)
	if err != nil {
		return respond(nil, err)
	}
	return respond(struct {
		Task      *model.Task `json:"task"`
		CommentID string      `json:"comment_id"`
	}{snap, commentID}, nil)
}

// --- task_comment_edit ---

type commentEditTool struct{ svc *task.Service }

func (t *commentEditTool) Name() string                { return "task_comment_edit" }
func (t *commentEditTool) Description() string         { return "Edit an existing comment." }
func (t *commentEditTool) InputSchema() json.RawMessage { return commentEditSchema }
func (t *commentEditTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID         string            `json:"id"`
		CommentID  string            `json:"comment_id"`
		Body       string            `json:"body"`
		Actor      string            `json:"actor"`
		EventID    string            `json:"event_id"`
		Provenance *model.Provenance `json:"provenance"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, err := t.svc.CommentEdit(ctx, req.ID, req.CommentID, req.Body, req.Actor, req.EventID, req.Provenance)
	return respond(snap, err)
}

// --- task_comment_delete ---

type commentDeleteTool struct{ svc *task.Service }

func (t *commentDeleteTool) Name() string                { return "task_comment_delete" }
func (t *commentDeleteTool) Description() string         { return "Delete (tombstone) a comment." }
func (t *commentDeleteTool) InputSchema() json.RawMessage { return commentDeleteSchema }
func (t *commentDeleteTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID         string            `json:"id"`
		CommentID  string            `json:"comment_id"`
		Actor      string            `json:"actor"`
		EventID    string            `json:"event_id"`
		Provenance *model.Provenance `json:"provenance"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, err := t.svc.CommentDelete(ctx, req.ID, req.CommentID, req.Actor, req.EventID, req.Provenance)
	return respond(snap, err)
}

// --- task_link / task_unlink ---

type linkTool struct{ svc *task.Service }

func (t *linkTool) Name() string                { return "task_link" }
func (t *linkTool) Description() string         { return "Create a relationship edge between two tasks." }
func (t *linkTool) InputSchema() json.RawMessage { return linkSchema }
func (t *linkTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	src, target, req, err := parseLinkParams(params)
	if err != nil {
		return nil, err
	}
	srcSnap, targetSnap, svcErr := t.svc.Link(ctx, src, target, req)
	if svcErr != nil {
		return respond(nil, svcErr)
	}
	return respond(struct {
		Source *model.Task `json:"source"`
		Target *model.Task `json:"target"`
	}{srcSnap, targetSnap}, nil)
}

type unlinkTool struct{ svc *task.Service }

func (t *unlinkTool) Name() string                { return "task_unlink" }
func (t *unlinkTool) Description() string         { return "Remove a relationship edge between two tasks." }
func (t *unlinkTool) InputSchema() json.RawMessage { return unlinkSchema }
func (t *unlinkTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	src, target, req, err := parseLinkParams(params)
	if err != nil {
		return nil, err
	}
	srcSnap, targetSnap, svcErr := t.svc.Unlink(ctx, src, target, req)
	if svcErr != nil {
		return respond(nil, svcErr)
	}
	return respond(struct {
		Source *model.Task `json:"source"`
		Target *model.Task `json:"target"`
	}{srcSnap, targetSnap}, nil)
}

func parseLinkParams(params json.RawMessage) (src, target string, req task.LinkRequest, err error) {
	var raw struct {
		SourceID   string            `json:"source_id"`
		TargetID   string            `json:"target_id"`
		Type       string            `json:"type"`
		Note       string            `json:"note"`
		Actor      string            `json:"actor"`
		EventID    string            `json:"event_id"`
		Provenance *model.Provenance `json:"provenance"`
	}
	if err = unmarshalParams(params, &raw); err != nil {
		return "", "", task.LinkRequest{}, err
	}
	return raw.SourceID, raw.TargetID, task.LinkRequest{
		EventID: raw.EventID, Type: raw.Type, Note: raw.Note, Actor: raw.Actor, Provenance: raw.Provenance,
	}, nil
}

// --- task_attach ---

type attachTool struct{ svc *task.Service }

func (t *attachTool) Name() string                { return "task_attach" }
func (t *attachTool) Description() string         { return "Attach an artifact as evidence on a task." }
func (t *attachTool) InputSchema() json.RawMessage { return attachSchema }
func (t *attachTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID         string                `json:"id"`
		EventID    string                `json:"event_id"`
		Source     model.ArtifactSource  `json:"source"`
		SourcePath string                `json:"source_path"`
		URL        string                `json:"url"`
		Title      string                `json:"title"`
		Summary    string                `json:"summary"`
		Sensitive  bool                  `json:"sensitive"`
		Role       string                `json:"role"`
		Actor      string                `json:"actor"`
		Provenance *model.Provenance     `json:"provenance"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, art, err := t.svc.Attach(ctx, req.ID, task.AttachRequest{
		EventID: req.EventID, Source: req.Source, SourcePath: req.SourcePath, URL: req.URL,
		Title: req.Title, Summary: req.Summary, Sensitive: req.Sensitive, Role: req.Role,
		Actor: req.Actor, Provenance: req.Provenance,
	})
	if err != nil {
		return respond(nil, err)
	}
	return respond(struct {
		Task     *model.Task     `json:"task"`
		Artifact *model.Artifact `json:"artifact"`
	}{snap, art}, nil)
}

// --- task_archive / task_unarchive ---

type archiveTool struct{ svc *task.Service }

func (t *archiveTool) Name() string                { return "task_archive" }
func (t *archiveTool) Description() string         { return "Archive a task." }
func (t *archiveTool) InputSchema() json.RawMessage { return archiveSchema }
func (t *archiveTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	id, actor, eventID, prov, err := parseArchiveParams(params)
	if err != nil {
		return nil, err
	}
	snap, svcErr := t.svc.Archive(ctx, id, actor, eventID, prov)
	return respond(snap, svcErr)
}

type unarchiveTool struct{ svc *task.Service }

func (t *unarchiveTool) Name() string                { return "task_unarchive" }
func (t *unarchiveTool) Description() string         { return "Unarchive a task." }
func (t *unarchiveTool) InputSchema() json.RawMessage { return archiveSchema }
func (t *unarchiveTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	id, actor, eventID, prov, err := parseArchiveParams(params)
	if err != nil {
		return nil, err
	}
	snap, svcErr := t.svc.Unarchive(ctx, id, actor, eventID, prov)
	return respond(snap, svcErr)
}

func parseArchiveParams(params json.RawMessage) (id, actor, eventID string, prov *model.Provenance, err error) {
	var raw struct {
		ID         string            `json:"id"`
		Actor      string            `json:"actor"`
		EventID    string            `json:"event_id"`
		Provenance *model.Provenance `json:"provenance"`
	}
	if err = unmarshalParams(params, &raw); err != nil {
		return "", "", "", nil, err
	}
	return raw.ID, raw.Actor, raw.EventID, raw.Provenance, nil
}

// --- task_event ---

type recordEventTool struct{ svc *task.Service }

func (t *recordEventTool) Name() string                { return "task_event" }
func (t *recordEventTool) Description() string         { return "Record a custom domain event against a task." }
func (t *recordEventTool) InputSchema() json.RawMessage { return recordEventSchema }
func (t *recordEventTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID         string                 `json:"id"`
		Type       string                 `json:"type"`
		Data       map[string]interface{} `json:"data"`
		Actor      string                 `json:"actor"`
		EventID    string                 `json:"event_id"`
		Provenance *model.Provenance      `json:"provenance"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, err := t.svc.RecordCustomEvent(ctx, req.ID, req.Type, req.Data, req.Actor, req.EventID, req.Provenance)
	return respond(snap, err)
}

// --- task_get ---

type getTool struct{ svc *task.Service }

func (t *getTool) Name() string                { return "task_get" }
func (t *getTool) Description() string         { return "Fetch a task's current snapshot." }
func (t *getTool) InputSchema() json.RawMessage { return getSchema }
func (t *getTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	snap, err := t.svc.Get(req.ID)
	return respond(snap, err)
}

// --- next / claim ---

type nextTool struct{ sel *selector.Selector }

func (t *nextTool) Name() string                { return "next" }
func (t *nextTool) Description() string         { return "Return the actor's own in-progress or in-planning task if there is one, otherwise the highest-priority unclaimed task, without claiming it." }
func (t *nextTool) InputSchema() json.RawMessage { return nextSchema }
func (t *nextTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		Actor      string   `json:"actor"`
		StatusPool []string `json:"status_pool"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	pool := req.StatusPool
	if pool == nil {
		pool = selector.DefaultStatusPool
	}
	snap, err := t.sel.Next(req.Actor, pool)
	return respond(snap, err)
}

type claimTool struct{ sel *selector.Selector }

func (t *claimTool) Name() string                { return "claim" }
func (t *claimTool) Description() string         { return "Claim the highest-priority unclaimed task and move it in progress." }
func (t *claimTool) InputSchema() json.RawMessage { return claimSchema }
func (t *claimTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		Actor      string   `json:"actor"`
		StatusPool []string `json:"status_pool"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	pool := req.StatusPool
	if pool == nil {
		pool = selector.DefaultStatusPool
	}
	snap, err := t.sel.Claim(ctx, req.Actor, pool)
	return respond(snap, err)
}

// --- doctor / rebuild ---

type doctorTool struct{ checker *integrity.Checker }

func (t *doctorTool) Name() string                { return "doctor" }
func (t *doctorTool) Description() string         { return "Scan every task for corruption or drift, optionally repairing it." }
func (t *doctorTool) InputSchema() json.RawMessage { return doctorSchema }
func (t *doctorTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		Fix bool `json:"fix"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	findings, err := t.checker.Doctor(ctx, req.Fix)
	return respond(findings, err)
}

type rebuildTool struct{ checker *integrity.Checker }

func (t *rebuildTool) Name() string                { return "rebuild" }
func (t *rebuildTool) Description() string         { return "Rebuild a task's snapshot (or every task's) from its event log." }
func (t *rebuildTool) InputSchema() json.RawMessage { return rebuildSchema }
func (t *rebuildTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		n, err := t.checker.RebuildAll(ctx)
		if err != nil {
			return respond(nil, err)
		}
		return respond(struct {
			RebuiltCount int `json:"rebuilt_count"`
		}{n}, nil)
	}
	snap, err := t.checker.RebuildTask(req.ID)
	return respond(snap, err)
}
