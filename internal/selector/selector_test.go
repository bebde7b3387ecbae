package selector

import (
	"context"
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
	"github.com/lattice-dev/lattice/internal/task"
)

func newTestSvc(t *testing.T) (*store.Store, *task.Service) {
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
	svc := task.New(st, locks, cfgSvc, ids, clk, log, artifacts, nil, nil, zerolog.Nop())
	return st, svc
}

func TestNextReturnsNilWhenPoolEmpty(t *testing.T) {
	st, svc := newTestSvc(t)
	sel := New(st, svc, nil)

	got, err := sel.Next("alice", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNextPrefersResumeSetOverReadySet(t *testing.T) {
	st, svc := newTestSvc(t)
	sel := New(st, svc, nil)

	backlog, err := svc.Create(context.Background(), task.CreateRequest{Title: "backlog item", Actor: "alice", Priority: model.PriorityCritical})
	require.NoError(t, err)
	_ = backlog

	resumeCandidate, err := svc.Create(context.Background(), task.CreateRequest{Title: "resume item", Actor: "alice"})
	require.NoError(t, err)
	alice := "alice"
	_, err = svc.Assign(context.Background(), resumeCandidate.ID, &alice, "alice", "", nil)
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), resumeCandidate.ID, task.ChangeStatusRequest{To: "in_progress", Actor: "alice"})
	require.NoError(t, err)

	got, err := sel.Next("alice", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, resumeCandidate.ID, got.ID, "a task already in progress for the actor must win over the ready pool")
}

func TestNextOrdersReadySetByPriority(t *testing.T) {
	st, svc := newTestSvc(t)
	sel := New(st, svc, nil)

	low, err := svc.Create(context.Background(), task.CreateRequest{Title: "low", Actor: "alice", Priority: model.PriorityLow})
	require.NoError(t, err)
	_ = low
	high, err := svc.Create(context.Background(), task.CreateRequest{Title: "high", Actor: "alice", Priority: model.PriorityHigh})
	require.NoError(t, err)

	got, err := sel.Next("", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, high.ID, got.ID)
}

func TestNextExcludesTasksAssignedToAnotherActor(t *testing.T) {
	st, svc := newTestSvc(t)
	sel := New(st, svc, nil)

	created, err := svc.Create(context.Background(), task.CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)
	bob := "bob"
	_, err = svc.Assign(context.Background(), created.ID, &bob, "alice", "", nil)
	require.NoError(t, err)

	got, err := sel.Next("alice", nil)
	require.NoError(t, err)
	assert.Nil(t, got, "a task assigned to someone else must not be eligible for a different actor")
}

func TestClaimAssignsAndAdvancesStatus(t *testing.T) {
	st, svc := newTestSvc(t)
	sel := New(st, svc, nil)

	created, err := svc.Create(context.Background(), task.CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	claimed, err := sel.Claim(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claimed.ID)
	assert.Equal(t, "in_progress", claimed.Status)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, "alice", *claimed.AssignedTo)
}

func TestClaimReturnsErrNothingToClaimWhenPoolEmpty(t *testing.T) {
	st, svc := newTestSvc(t)
	sel := New(st, svc, nil)

	_, err := sel.Claim(context.Background(), "alice", nil)
	assert.ErrorIs(t, err, ErrNothingToClaim)
}

// TestConcurrentClaimByTwoActorsResolvesExactlyOnce exercises the race
// between two actors claiming the same single-task pool at once:
// exactly one must come back with the snapshot assigned to itself, the
// other must get ErrNothingToClaim, and the final stored assignment
// must agree with whichever one actually won.
func TestConcurrentClaimByTwoActorsResolvesExactlyOnce(t *testing.T) {
	st, svc := newTestSvc(t)
	sel := New(st, svc, nil)

	created, err := svc.Create(context.Background(), task.CreateRequest{Title: "t", Actor: "alice"})
	require.NoError(t, err)

	actors := []string{"alice", "bob"}
	results := make(chan struct {
		actor string
		snap  *model.Task
		err   error
	}, len(actors))

	for _, actor := range actors {
		actor := actor
		go func() {
			snap, err := sel.Claim(context.Background(), actor, nil)
			results <- struct {
				actor string
				snap  *model.Task
				err   error
			}{actor, snap, err}
		}()
	}

	var winner string
	successes := 0
	failures := 0
	for range actors {
		r := <-results
		if r.err == nil {
			successes++
			require.NotNil(t, r.snap.AssignedTo)
			assert.Equal(t, r.actor, *r.snap.AssignedTo, "the claimant that succeeds must be assigned to itself, never the other actor")
			assert.Equal(t, "in_progress", r.snap.Status)
			winner = r.actor
		} else {
			failures++
			assert.ErrorIs(t, r.err, ErrNothingToClaim)
		}
	}

	assert.Equal(t, 1, successes, "exactly one actor must win the claim")
	assert.Equal(t, 1, failures, "exactly one actor must lose the claim")

	final, err := svc.Get(created.ID)
	require.NoError(t, err)
	require.NotNil(t, final.AssignedTo)
	assert.Equal(t, winner, *final.AssignedTo, "the final stored assignment must match whichever actor actually won")
}
