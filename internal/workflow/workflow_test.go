package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dev/lattice/internal/model"
)

func TestValidateTransitionAllowsConfiguredEdge(t *testing.T) {
	e := New(model.Default())
	assert.NoError(t, e.ValidateTransition("backlog", "planned", false, ""))
}

func TestValidateTransitionRejectsUnconfiguredEdge(t *testing.T) {
	e := New(model.Default())
	err := e.ValidateTransition("backlog", "done", false, "")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "backlog", invalid.From)
	assert.Equal(t, "done", invalid.To)
}

func TestValidateTransitionForceRequiresReason(t *testing.T) {
	e := New(model.Default())
	err := e.ValidateTransition("backlog", "done", true, "")
	assert.ErrorIs(t, err, ErrForceRequiresReason)

	assert.NoError(t, e.ValidateTransition("backlog", "done", true, "escalated by PM"))
}

func TestCheckCompletionPolicyBlocksMissingRolesAndAssignment(t *testing.T) {
	e := New(model.Default())
	task := &model.Task{Status: "review"}

	err := e.CheckCompletionPolicy(task, "done")
	var blocked *CompletionBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, []string{"review"}, blocked.MissingRoles)
	assert.True(t, blocked.NeedsAssign)
}

func TestCheckCompletionPolicySatisfiedPasses(t *testing.T) {
	e := New(model.Default())
	assignee := "alice"
	task := &model.Task{
		Status:       "review",
		AssignedTo:   &assignee,
		EvidenceRefs: []model.EvidenceRef{{Role: "review"}},
	}
	assert.NoError(t, e.CheckCompletionPolicy(task, "done"))
}

func TestCheckCompletionPolicyBypassedByUniversalTarget(t *testing.T) {
	e := New(model.Default())
	task := &model.Task{Status: "backlog"}
	assert.NoError(t, e.CheckCompletionPolicy(task, "cancelled"))
}

func TestCheckReviewCycleBlocksAtConfiguredLimit(t *testing.T) {
	cfg := model.Default()
	cfg.ReviewCycleLimit = 2
	e := New(cfg)

	history := []model.Event{
		{Type: model.EventStatusChanged, Data: map[string]interface{}{"from": "review", "to": "in_progress"}},
		{Type: model.EventStatusChanged, Data: map[string]interface{}{"from": "review", "to": "in_planning"}},
	}
	err := e.CheckReviewCycle(history, "in_progress", false)
	var exceeded *ReviewCycleExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2, exceeded.Limit)
	assert.Equal(t, 2, exceeded.Count)
}

func TestCheckReviewCycleIgnoresForcedTransitionsInHistory(t *testing.T) {
	cfg := model.Default()
	cfg.ReviewCycleLimit = 1
	e := New(cfg)

	history := []model.Event{
		{Type: model.EventStatusChanged, Data: map[string]interface{}{"from": "review", "to": "in_progress", "forced": true}},
	}
	assert.NoError(t, e.CheckReviewCycle(history, "in_progress", false), "a forced transition must not count against the limit")
}

func TestCheckReviewCycleForceBypassesTheGateItself(t *testing.T) {
	cfg := model.Default()
	cfg.ReviewCycleLimit = 1
	e := New(cfg)

	history := []model.Event{
		{Type: model.EventStatusChanged, Data: map[string]interface{}{"from": "review", "to": "in_progress"}},
	}
	assert.NoError(t, e.CheckReviewCycle(history, "in_progress", true))
}

func TestComputeEpicDerivedStatusPrecedence(t *testing.T) {
	e := New(model.Default())

	assert.Equal(t, "backlog", e.ComputeEpicDerivedStatus(nil))
	assert.Equal(t, "in_progress", e.ComputeEpicDerivedStatus([]string{"done", "in_progress", "blocked"}))
	assert.Equal(t, "done", e.ComputeEpicDerivedStatus([]string{"done", "done", "cancelled"}))
	assert.Equal(t, "cancelled", e.ComputeEpicDerivedStatus([]string{"cancelled", "cancelled"}))
	assert.Equal(t, "blocked", e.ComputeEpicDerivedStatus([]string{"blocked", "planned"}))
	assert.Equal(t, "planned", e.ComputeEpicDerivedStatus([]string{"planned", "backlog"}))
}

func TestIsContainerType(t *testing.T) {
	assert.True(t, IsContainerType("epic"))
	assert.False(t, IsContainerType("feature"))
}

func TestRoleVocabularyUnionsConfiguredAndPolicyRoles(t *testing.T) {
	cfg := model.Default()
	cfg.CompletionPolicies["in_progress"] = model.CompletionPolicy{RequireRoles: []string{"design"}}
	e := New(cfg)

	roles := e.RoleVocabulary()
	assert.Contains(t, roles, "review")
	assert.Contains(t, roles, "design")
	assert.True(t, e.IsKnownRole("design"))
	assert.False(t, e.IsKnownRole("nonexistent"))
}
