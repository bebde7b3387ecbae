package task

import (
	"context"
	"fmt"
	"time"

	"github.com/lattice-dev/lattice/internal/guards"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/workflow"
)

// ChangeStatusRequest describes a requested status transition.
type ChangeStatusRequest struct {
	EventID    string
	To         string
	Force      bool
	Reason     string
	Actor      string
	Provenance *model.Provenance
}

// ChangeStatus validates the transition (shape, completion policy,
// review-cycle limit) under the task's lock, then appends a
// status_changed event. Direct status writes are rejected for
// container ("epic") task types; their status is always computed by
// Workflow from their children.
func (s *Service) ChangeStatus(ctx context.Context, id string, req ChangeStatusRequest) (snap *model.Task, err error) {
	defer s.observeVerb("change_status", time.Now(), &err)
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, err
	}
	if workflow.IsContainerType(prior.Type) {
		return nil, workflow.ErrContainerStatus
	}
	cfg := s.cfgSvc.Current()
	engine := workflow.New(cfg)

	if err := engine.ValidateTransition(prior.Status, req.To, req.Force, req.Reason); err != nil {
		return nil, err
	}
	if err := engine.CheckCompletionPolicy(prior, req.To); err != nil {
		return nil, err
	}
	history, herr := s.history(id)
	if herr != nil {
		return nil, herr
	}
	if err := engine.CheckReviewCycle(history, req.To, req.Force); err != nil {
		return nil, err
	}
	s.runAdvisoryGuards(prior, req, cfg, history)

	data := map[string]interface{}{
		"from":   prior.Status,
		"to":     req.To,
		"forced": req.Force,
	}
	if req.Force {
		data["reason"] = req.Reason
	}
	ev := model.Event{ID: req.EventID, Type: model.EventStatusChanged, TaskID: id, Actor: req.Actor, Data: data, Provenance: req.Provenance}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}
	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}

// runAdvisoryGuards evaluates non-blocking checks after the hard
// transition checks have already passed, and logs any findings.
// Unlike ValidateTransition/CheckCompletionPolicy/CheckReviewCycle,
// nothing here can reject the transition: Warning and Suggestion
// findings are advisory only, surfaced for operators watching logs
// rather than returned to the caller.
func (s *Service) runAdvisoryGuards(prior *model.Task, req ChangeStatusRequest, cfg *model.Config, history []model.Event) {
	outcome := &guards.Outcome{}

	if req.To == "in_progress" || req.To == "in_planning" {
		limit := cfg.ReviewCycleLimit
		if limit > 0 {
			count := 0
			for _, ev := range history {
				if ev.Type != model.EventStatusChanged {
					continue
				}
				from, _ := ev.Data["from"].(string)
				to, _ := ev.Data["to"].(string)
				forced, _ := ev.Data["forced"].(bool)
				if !forced && from == "review" && (to == "in_progress" || to == "in_planning") {
					count++
				}
			}
			if count == limit-1 {
				outcome.Results = append(outcome.Results, guards.Fail("review_cycle_approaching", guards.Warning,
					fmt.Sprintf("task %s has returned from review %d of %d allowed times", prior.ID, count, limit),
					"address review feedback fully before resubmitting"))
			}
		}
	}

	if policy, ok := cfg.CompletionPolicies[req.To]; ok && policy.RequireAssigned && prior.AssignedTo == nil {
		outcome.Results = append(outcome.Results, guards.Fail("completion_needs_assignee", guards.Suggestion,
			fmt.Sprintf("task %s has no assignee and %s requires one", prior.ID, req.To), "assign the task before it reaches "+req.To))
	}

	for _, r := range outcome.Warnings() {
		s.logger.Warn().Str("task_id", prior.ID).Str("guard", r.GuardName).Msg(r.Message)
	}
	for _, r := range outcome.Suggestions() {
		s.logger.Info().Str("task_id", prior.ID).Str("guard", r.GuardName).Msg(r.Message)
	}
}

// history returns every well-formed event in id's log, oldest first,
// for Workflow's review-cycle count.
func (s *Service) history(id string) ([]model.Event, error) {
	var events []model.Event
	err := s.log.Iterate(id, func(ev model.Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("task: reading history: %w", err)
	}
	return events, nil
}

// EpicDerivedStatus computes and returns a container task's derived
// status from its children's current statuses, without writing
// anything: container status is never stored as an independent
// status_changed event, only recomputed on read.
func (s *Service) EpicDerivedStatus(childStatuses []string) string {
	cfg := s.cfgSvc.Current()
	return workflow.New(cfg).ComputeEpicDerivedStatus(childStatuses)
}
