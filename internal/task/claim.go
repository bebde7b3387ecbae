package task

import (
	"context"
	"time"

	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/workflow"
)

// ClaimRequest describes a selector-driven claim: assign the task to
// actor and advance it to the in-progress status in one atomic step.
type ClaimRequest struct {
	Actor      string
	To         string
	StatusPool []string
	EventID    string
	Provenance *model.Provenance
}

// Claim acquires a single lock scope over id and, under that one lock,
// re-verifies eligibility, assigns the task to req.Actor, and advances
// it to req.To. Unlike driving Assign then ChangeStatus as two
// independently lock-scoped verb calls, nothing can observe or mutate
// the task between the two writes: another claimant loses the race
// entirely (ErrNotEligible) or entirely after this call returns, never
// in between.
func (s *Service) Claim(ctx context.Context, id string, req ClaimRequest) (snap *model.Task, err error) {
	defer s.observeVerb("claim", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, err
	}
	if !claimEligible(prior, req.Actor, req.StatusPool) {
		return nil, ErrNotEligible
	}
	cfg := s.cfgSvc.Current()
	engine := workflow.New(cfg)
	if err := engine.ValidateTransition(prior.Status, req.To, false, ""); err != nil {
		return nil, err
	}
	if err := engine.CheckCompletionPolicy(prior, req.To); err != nil {
		return nil, err
	}
	history, err := s.history(id)
	if err != nil {
		return nil, err
	}
	if err := engine.CheckReviewCycle(history, req.To, false); err != nil {
		return nil, err
	}

	assignEv := model.Event{
		Type: model.EventAssignmentChanged, TaskID: id, Actor: req.Actor, Provenance: req.Provenance,
		Data: map[string]interface{}{"to": req.Actor},
	}
	assigned, appendedAssign, assignIsNew, err := s.appendAndApply(id, assignEv, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}

	statusEv := model.Event{
		ID: req.EventID, Type: model.EventStatusChanged, TaskID: id, Actor: req.Actor, Provenance: req.Provenance,
		Data: map[string]interface{}{"from": prior.Status, "to": req.To, "forced": false},
	}
	claimed, appendedStatus, statusIsNew, err := s.appendAndApply(id, statusEv, cfg, assigned, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}

	s.fireHooks(cfg, appendedAssign, assignIsNew)
	s.fireHooks(cfg, appendedStatus, statusIsNew)
	return claimed, nil
}

// claimEligible mirrors the ready-set membership test the
// selector already applies when picking a candidate, re-checked here
// under the task's lock against the current snapshot rather than the
// (possibly stale) summary Next selected from.
func claimEligible(t *model.Task, actor string, statusPool []string) bool {
	if t.Archived {
		return false
	}
	if t.AssignedTo != nil && *t.AssignedTo != actor {
		return false
	}
	if len(statusPool) == 0 {
		statusPool = []string{"backlog", "planned"}
	}
	for _, s := range statusPool {
		if t.Status == s {
			return true
		}
	}
	return false
}
