package reducer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dev/lattice/internal/model"
)

func defaultCfg() *model.Config {
	return model.Default()
}

func TestApplyTaskCreated(t *testing.T) {
	cfg := defaultCfg()
	ev := model.Event{
		Type: model.EventTaskCreated, TaskID: "task_1", Actor: "alice", TS: "2026-01-01T00:00:00.000Z",
		Data: map[string]interface{}{"title": "write tests", "status": ""},
	}
	snap := Apply(cfg, nil, ev)
	require.NotNil(t, snap)
	assert.Equal(t, "task_1", snap.ID)
	assert.Equal(t, "write tests", snap.Title)
	assert.Equal(t, cfg.DefaultStatus, snap.Status)
	assert.Equal(t, ev.TS, snap.CreatedAt)
	assert.Equal(t, ev.TS, snap.UpdatedAt)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	cfg := defaultCfg()
	prior := &model.Task{ID: "task_1", Title: "original", Status: "backlog"}
	ev := model.Event{Type: model.EventFieldUpdated, TaskID: "task_1", TS: "t2", Data: map[string]interface{}{"field": "title", "value": "changed"}}

	next := Apply(cfg, prior, ev)

	assert.Equal(t, "original", prior.Title, "Apply must not mutate its input snapshot")
	assert.Equal(t, "changed", next.Title)
}

func TestApplyProtectedFieldIgnored(t *testing.T) {
	cfg := defaultCfg()
	prior := &model.Task{ID: "task_1", Status: "backlog"}
	ev := model.Event{Type: model.EventFieldUpdated, TaskID: "task_1", TS: "t2", Data: map[string]interface{}{"field": "status", "value": "done"}}

	next := Apply(cfg, prior, ev)

	assert.Equal(t, "backlog", next.Status, "field_updated must never touch a protected field")
}

func TestApplyUnknownEventTypeBumpsUpdatedAtOnly(t *testing.T) {
	cfg := defaultCfg()
	prior := &model.Task{ID: "task_1", Title: "original", Status: "backlog", UpdatedAt: "t1"}
	ev := model.Event{Type: "x_deploy_triggered", TaskID: "task_1", TS: "t2", Data: map[string]interface{}{"env": "staging"}}

	next := Apply(cfg, prior, ev)

	assert.Equal(t, "original", next.Title)
	assert.Equal(t, "t2", next.UpdatedAt)
}

// TestReplayDeterminism folds the same event sequence through Apply twice,
// from the zero snapshot, and requires an identical result: the rebuild
// path and the incremental write path must never diverge.
func TestReplayDeterminism(t *testing.T) {
	cfg := defaultCfg()
	events := []model.Event{
		{Type: model.EventTaskCreated, TaskID: "task_1", TS: "t1", Data: map[string]interface{}{"title": "a"}},
		{Type: model.EventStatusChanged, TaskID: "task_1", TS: "t2", Data: map[string]interface{}{"to": "in_progress"}},
		{Type: model.EventCommentAdded, TaskID: "task_1", TS: "t3", Data: map[string]interface{}{"id": "c1", "body": "hi", "role": "assistant"}},
		{Type: model.EventStatusChanged, TaskID: "task_1", TS: "t4", Data: map[string]interface{}{"to": "done"}},
	}

	replay := func() *model.Task {
		var snap *model.Task
		for _, ev := range events {
			snap = Apply(cfg, snap, ev)
		}
		return snap
	}

	a := replay()
	b := replay()

	assert.Equal(t, a, b)
	assert.NotNil(t, a.DoneAt, "done-class status change must stamp done_at")
}

func TestReopenedCountIncrementsOnBackwardTransition(t *testing.T) {
	cfg := defaultCfg()
	var snap *model.Task
	snap = Apply(cfg, snap, model.Event{Type: model.EventTaskCreated, TaskID: "task_1", TS: "t1", Data: map[string]interface{}{"title": "a"}})
	snap = Apply(cfg, snap, model.Event{Type: model.EventStatusChanged, TaskID: "task_1", TS: "t2", Data: map[string]interface{}{"to": "in_progress"}})
	snap = Apply(cfg, snap, model.Event{Type: model.EventStatusChanged, TaskID: "task_1", TS: "t3", Data: map[string]interface{}{"to": "done"}})
	snap = Apply(cfg, snap, model.Event{Type: model.EventStatusChanged, TaskID: "task_1", TS: "t4", Data: map[string]interface{}{"to": "backlog"}})

	assert.Equal(t, 1, snap.ReopenedCount)
	assert.Nil(t, snap.DoneAt, "leaving a done-class status must clear done_at")
}
