package task

import (
	"context"
	"fmt"
	"time"

	"github.com/lattice-dev/lattice/internal/model"
)

// LinkRequest describes a requested relationship edge.
type LinkRequest struct {
	EventID    string
	Type       string
	Note       string
	Actor      string
	Provenance *model.Provenance
}

// Link records a (srcID, type, targetID) edge, writing a
// relationship_added event and snapshot on each end of the pair. Both
// task locks are acquired in sorted order so two concurrent multi-task
// verbs touching an overlapping pair can never deadlock.
func (s *Service) Link(ctx context.Context, srcID, targetID string, req LinkRequest) (src, target *model.Task, err error) {
	defer s.observeVerb("link", time.Now(), &err)
	if srcID == targetID {
		return nil, nil, ErrSelfLink
	}
	h, err := s.locks.Acquire(ctx, sortedPair(srcID, targetID)...)
	if err != nil {
		return nil, nil, err
	}
	defer h.Release()

	priorSrc, err := s.loadLive(srcID)
	if err != nil {
		return nil, nil, err
	}
	priorTarget, err := s.loadLive(targetID)
	if err != nil {
		return nil, nil, err
	}
	if priorSrc.HasRelationship(targetID, req.Type) {
		retry, rerr := s.isRetry(srcID, req.EventID)
		if rerr != nil {
			return nil, nil, rerr
		}
		if !retry {
			return nil, nil, ErrDuplicateLink
		}
	}
	cfg := s.cfgSvc.Current()

	srcEv := model.Event{
		ID: req.EventID, Type: model.EventRelationshipAdded, TaskID: srcID, Actor: req.Actor, Provenance: req.Provenance,
		Data: map[string]interface{}{"target_id": targetID, "type": req.Type, "note": req.Note},
	}
	newSrc, appendedSrc, srcIsNew, err := s.appendAndApply(srcID, srcEv, cfg, priorSrc, s.st.TaskPath(srcID))
	if err != nil {
		return nil, nil, err
	}

	// Reuse the same idempotency id on both sides (scoped independently
	// per task log) so a retried link after a crash between the two
	// appends resumes cleanly: the src append above is a no-op duplicate
	// on retry (isRetry already let it through the existence guard), and
	// this target append is the one that actually lands.
	targetEv := model.Event{
		ID: req.EventID, Type: model.EventRelationshipAdded, TaskID: targetID, Actor: req.Actor, Provenance: req.Provenance,
		Data: map[string]interface{}{"target_id": srcID, "type": req.Type, "note": req.Note},
	}
	newTarget, appendedTarget, targetIsNew, err := s.appendAndApply(targetID, targetEv, cfg, priorTarget, s.st.TaskPath(targetID))
	if err != nil {
		return nil, nil, err
	}

	s.fireHooks(cfg, appendedSrc, srcIsNew)
	s.fireHooks(cfg, appendedTarget, targetIsNew)
	return newSrc, newTarget, nil
}

// Unlink removes a (srcID, type, targetID) edge from srcID's
// relationships_out and, symmetrically, the (targetID, type, srcID)
// edge recorded on targetID by the matching Link call.
func (s *Service) Unlink(ctx context.Context, srcID, targetID string, req LinkRequest) (src, target *model.Task, err error) {
	defer s.observeVerb("unlink", time.Now(), &err)
	if srcID == targetID {
		return nil, nil, ErrSelfLink
	}
	h, err := s.locks.Acquire(ctx, sortedPair(srcID, targetID)...)
	if err != nil {
		return nil, nil, err
	}
	defer h.Release()

	priorSrc, err := s.loadLive(srcID)
	if err != nil {
		return nil, nil, err
	}
	priorTarget, err := s.loadLive(targetID)
	if err != nil {
		return nil, nil, err
	}
	if !priorSrc.HasRelationship(targetID, req.Type) {
		retry, rerr := s.isRetry(srcID, req.EventID)
		if rerr != nil {
			return nil, nil, rerr
		}
		if !retry {
			return nil, nil, ErrLinkNotFound
		}
	}
	cfg := s.cfgSvc.Current()

	srcEv := model.Event{
		ID: req.EventID, Type: model.EventRelationshipRemoved, TaskID: srcID, Actor: req.Actor, Provenance: req.Provenance,
		Data: map[string]interface{}{"target_id": targetID, "type": req.Type},
	}
	newSrc, appendedSrc, srcIsNew, err := s.appendAndApply(srcID, srcEv, cfg, priorSrc, s.st.TaskPath(srcID))
	if err != nil {
		return nil, nil, err
	}

	targetEv := model.Event{
		ID: req.EventID, Type: model.EventRelationshipRemoved, TaskID: targetID, Actor: req.Actor, Provenance: req.Provenance,
		Data: map[string]interface{}{"target_id": srcID, "type": req.Type},
	}
	newTarget, appendedTarget, targetIsNew, err := s.appendAndApply(targetID, targetEv, cfg, priorTarget, s.st.TaskPath(targetID))
	if err != nil {
		return nil, nil, err
	}

	s.fireHooks(cfg, appendedSrc, srcIsNew)
	s.fireHooks(cfg, appendedTarget, targetIsNew)
	return newSrc, newTarget, nil
}

// isRetry reports whether eventID is already recorded in taskID's log,
// meaning the caller is resubmitting a previously-handled request
// rather than issuing a genuinely new one. Link/Unlink use this to tell
// an idempotent retry (let it through to appendAndApply, which handles
// the actual dedup/conflict decision) apart from a real duplicate-edge
// or missing-edge error on a fresh request.
func (s *Service) isRetry(taskID, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	_, found, err := s.log.Lookup(taskID, eventID)
	if err != nil {
		return false, fmt.Errorf("task: checking retry: %w", err)
	}
	return found, nil
}

// sortedPair returns both task resources; Manager.Acquire sorts them
// lexicographically itself, so any two callers locking an overlapping
// pair always acquire in the same order.
func sortedPair(a, b string) []string {
	return []string{taskResource(a), taskResource(b)}
}
