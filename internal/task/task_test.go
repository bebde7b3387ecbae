package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/clock"
	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/eventlog"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/lock"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/store"
	"github.com/lattice-dev/lattice/internal/workflow"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	root := filepath.Join(t.TempDir(), ".lattice")
	st, err := store.Init(root)
	require.NoError(t, err)
	cfgSvc, err := config.Load(st, zerolog.Nop())
	require.NoError(t, err)
	ids := idgen.New()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	locks := lock.New(st.LocksDir(), time.Second, nil)
	log := eventlog.New(st, ids, clk, nil)
	artifacts := artifact.New(st, ids, clk, 0)
	return New(st, locks, cfgSvc, ids, clk, log, artifacts, nil, nil, zerolog.Nop())
}

func TestCreateRejectsMissingTitle(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), CreateRequest{Actor: "alice"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateRejectsExplicitStatusOnContainerType(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), CreateRequest{Title: "epic", Type: "epic", Status: "in_progress", Actor: "alice"})
	assert.ErrorIs(t, err, workflow.ErrContainerStatus)
}

func TestCreateAllocatesShortIDOnlyOnce(t *testing.T) {
	svc := newTestService(t)
	req := CreateRequest{EventID: "ev_fixed", Title: "write tests", Actor: "alice"}
	first, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, first.ShortID)

	second, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ShortID, second.ShortID, "a retried create must not mint a second short id")
}

func TestChangeStatusFollowsConfiguredTransitions(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), created.ID, ChangeStatusRequest{To: "done", Actor: "alice"})
	assert.Error(t, err, "backlog -> done is not a configured transition without force")

	snap, err := svc.ChangeStatus(context.Background(), created.ID, ChangeStatusRequest{To: "planned", Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "planned", snap.Status)
}

func TestChangeStatusRejectsContainerType(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), CreateRequest{Title: "epic", Type: "epic", Actor: "alice"})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), created.ID, ChangeStatusRequest{To: "planned", Actor: "alice"})
	assert.ErrorIs(t, err, workflow.ErrContainerStatus)
}

func TestUpdateRejectsProtectedAndUnknownFields(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), created.ID, UpdateRequest{Field: "status", Value: "done", Actor: "alice"})
	assert.ErrorIs(t, err, ErrProtectedField)

	_, err = svc.Update(context.Background(), created.ID, UpdateRequest{Field: "nonsense", Value: 1, Actor: "alice"})
	assert.ErrorIs(t, err, ErrInvalidField)

	snap, err := svc.Update(context.Background(), created.ID, UpdateRequest{Field: "title", Value: "renamed", Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", snap.Title)

	snap, err = svc.Update(context.Background(), created.ID, UpdateRequest{Field: "custom_fields.priority_score", Value: 5, Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 5, snap.CustomFields["priority_score"])
}

func TestAssignAndUnassign(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	bob := "bob"
	snap, err := svc.Assign(context.Background(), created.ID, &bob, "alice", "", nil)
	require.NoError(t, err)
	require.NotNil(t, snap.AssignedTo)
	assert.Equal(t, "bob", *snap.AssignedTo)

	snap, err = svc.Assign(context.Background(), created.ID, nil, "alice", "", nil)
	require.NoError(t, err)
	assert.Nil(t, snap.AssignedTo)
}

func TestCommentLifecycle(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	snap, commentID, err := svc.CommentAdd(context.Background(), created.ID, "hello", "assistant", "alice", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CommentCount)

	_, err = svc.CommentEdit(context.Background(), created.ID, commentID, "hello, edited", "alice", "", nil)
	require.NoError(t, err)

	snap, err = svc.CommentDelete(context.Background(), created.ID, commentID, "alice", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CommentCount)

	_, err = svc.CommentEdit(context.Background(), created.ID, commentID, "too late", "alice", "", nil)
	assert.ErrorIs(t, err, ErrCommentNotFound)
}

func TestLinkAndUnlink(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), CreateRequest{Title: "a", Actor: "alice"})
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), CreateRequest{Title: "b", Actor: "alice"})
	require.NoError(t, err)

	_, _, err = svc.Link(context.Background(), a.ID, a.ID, LinkRequest{Type: "blocks", Actor: "alice"})
	assert.ErrorIs(t, err, ErrSelfLink)

	srcSnap, targetSnap, err := svc.Link(context.Background(), a.ID, b.ID, LinkRequest{Type: "blocks", Actor: "alice"})
	require.NoError(t, err)
	assert.True(t, srcSnap.HasRelationship(b.ID, "blocks"))
	assert.NotNil(t, targetSnap)

	_, _, err = svc.Link(context.Background(), a.ID, b.ID, LinkRequest{Type: "blocks", Actor: "alice"})
	assert.ErrorIs(t, err, ErrDuplicateLink)

	srcSnap, _, err = svc.Unlink(context.Background(), a.ID, b.ID, LinkRequest{Type: "blocks", Actor: "alice"})
	require.NoError(t, err)
	assert.False(t, srcSnap.HasRelationship(b.ID, "blocks"))

	_, _, err = svc.Unlink(context.Background(), a.ID, b.ID, LinkRequest{Type: "blocks", Actor: "alice"})
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

// TestLinkRetryAfterPartialCrashCompletesTargetSide simulates a crash
// between the two appends Link makes: the src side already recorded
// the relationship_added event, the target side never did. A retry
// with the same event id must not be rejected as a duplicate link —
// it must still land the missing target-side event.
func TestLinkRetryAfterPartialCrashCompletesTargetSide(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Create(context.Background(), CreateRequest{Title: "a", Actor: "alice"})
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), CreateRequest{Title: "b", Actor: "alice"})
	require.NoError(t, err)

	req := LinkRequest{EventID: "ev_link_1", Type: "blocks", Actor: "alice"}
	srcEv := model.Event{
		ID: req.EventID, Type: model.EventRelationshipAdded, TaskID: a.ID, Actor: req.Actor,
		Data: map[string]interface{}{"target_id": b.ID, "type": req.Type, "note": req.Note},
	}
	last, haveLast, err := svc.log.Last(a.ID)
	require.NoError(t, err)
	_, err = svc.log.Append(a.ID, srcEv, last, haveLast)
	require.NoError(t, err)
	// Drop the live snapshot so the next read rebuilds it from the log,
	// simulating a crash that landed the append but never the write.
	require.NoError(t, os.Remove(svc.st.TaskPath(a.ID)))

	srcSnap, err := svc.Get(a.ID)
	require.NoError(t, err)
	require.True(t, srcSnap.HasRelationship(b.ID, "blocks"), "src side must already carry the relationship before the retry")

	targetSnap, err := svc.Get(b.ID)
	require.NoError(t, err)
	require.False(t, targetSnap.HasRelationship(a.ID, "blocks"), "target side must not have the relationship yet")

	_, newTarget, err := svc.Link(context.Background(), a.ID, b.ID, req)
	require.NoError(t, err, "a retry with the same event id must not be rejected as a duplicate link")
	assert.True(t, newTarget.HasRelationship(a.ID, "blocks"), "retry must complete the missing target-side event")
}

func TestArchiveAndUnarchiveRoundTrip(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	archived, err := svc.Archive(context.Background(), created.ID, "alice", "", nil)
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	_, err = svc.Archive(context.Background(), created.ID, "alice", "", nil)
	assert.ErrorIs(t, err, ErrAlreadyArchived)

	_, err = svc.Get(created.ID)
	require.NoError(t, err, "Get must still resolve an archived task")

	restored, err := svc.Unarchive(context.Background(), created.ID, "alice", "", nil)
	require.NoError(t, err)
	assert.False(t, restored.Archived)

	_, err = svc.Unarchive(context.Background(), created.ID, "alice", "", nil)
	assert.ErrorIs(t, err, ErrNotArchived)
}

func TestRebuildOnReadHealsMissingSnapshot(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	require.NoError(t, store.RemoveFile(svc.st.TaskPath(created.ID)))

	healed, err := svc.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, healed.Title)
	assert.True(t, store.Exists(svc.st.TaskPath(created.ID)), "Get must rewrite the healed snapshot to disk")
}

func TestUpdateRetryWithSameEventIDIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	req := UpdateRequest{EventID: "ev_fixed", Field: "title", Value: "renamed", Actor: "alice"}
	first, err := svc.Update(context.Background(), created.ID, req)
	require.NoError(t, err)

	second, err := svc.Update(context.Background(), created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt, "a duplicate resubmission must not append a new event")
}
