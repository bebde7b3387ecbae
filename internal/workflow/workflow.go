// Package workflow is the config-driven status graph: transition
// validation, the completion-policy gate, the review-cycle limiter, and
// the epic derived-status computer. It never touches disk; callers (the
// task package) feed it a Config, a snapshot, and the task's event
// history and act on the decision it returns.
package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lattice-dev/lattice/internal/model"
)

// Sentinel errors identify the failure class at the verb boundary; the
// typed errors below carry structured detail (via errors.As) for the API
// layer to render the finite set of valid alternatives.
var (
	ErrForceRequiresReason = errors.New("workflow: force requires a non-empty reason")
	ErrContainerStatus     = errors.New("workflow: container task status is computed, not writable")
)

// InvalidTransitionError lists the statuses that were actually reachable
// from the current one.
type InvalidTransitionError struct {
	From      string
	To        string
	Allowed   []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("workflow: cannot transition from %q to %q (allowed: %s)", e.From, e.To, strings.Join(e.Allowed, ", "))
}

// CompletionBlockedError lists the unmet completion-policy requirements.
type CompletionBlockedError struct {
	Status       string
	MissingRoles []string
	NeedsAssign  bool
}

func (e *CompletionBlockedError) Error() string {
	var parts []string
	if len(e.MissingRoles) > 0 {
		parts = append(parts, fmt.Sprintf("missing roles: %s", strings.Join(e.MissingRoles, ", ")))
	}
	if e.NeedsAssign {
		parts = append(parts, "task must be assigned")
	}
	return fmt.Sprintf("workflow: completion policy for %q blocked: %s", e.Status, strings.Join(parts, "; "))
}

// ReviewCycleExceededError reports the configured limit that was hit.
type ReviewCycleExceededError struct {
	Limit int
	Count int
}

func (e *ReviewCycleExceededError) Error() string {
	return fmt.Sprintf("workflow: review cycle limit exceeded (%d of %d allowed review -> rework transitions used)", e.Count, e.Limit)
}

// Engine evaluates transitions against a single Config snapshot. Callers
// obtain one per verb invocation from ConfigService so every check in a
// verb sees a consistent config even if a concurrent reload happens.
type Engine struct {
	cfg *model.Config
}

// New wraps cfg. cfg is never mutated.
func New(cfg *model.Config) *Engine {
	return &Engine{cfg: cfg}
}

// ValidateTransition checks whether from -> to is permitted. force with a
// non-empty reason bypasses the check entirely (the bypass itself is
// recorded by the caller in the resulting event's data, not here).
func (e *Engine) ValidateTransition(from, to string, force bool, reason string) error {
	if force {
		if strings.TrimSpace(reason) == "" {
			return ErrForceRequiresReason
		}
		return nil
	}
	for _, allowed := range e.cfg.AllowedTransitions(from) {
		if allowed == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to, Allowed: e.cfg.AllowedTransitions(from)}
}

// CheckCompletionPolicy verifies the target status's require_roles and
// require_assigned against the task's current evidence_refs and
// assigned_to, unless to is a universal target (which bypasses policy
// entirely). force does not bypass completion policy — only the
// transition-shape check.
func (e *Engine) CheckCompletionPolicy(task *model.Task, to string) error {
	if e.cfg.IsUniversalTarget(to) {
		return nil
	}
	policy, ok := e.cfg.CompletionPolicies[to]
	if !ok {
		return nil
	}
	var missing []string
	for _, role := range policy.RequireRoles {
		if !task.HasEvidence(role) {
			missing = append(missing, role)
		}
	}
	needsAssign := policy.RequireAssigned && task.AssignedTo == nil
	if len(missing) == 0 && !needsAssign {
		return nil
	}
	return &CompletionBlockedError{Status: to, MissingRoles: missing, NeedsAssign: needsAssign}
}

// CheckReviewCycle counts prior non-forced review -> {in_progress,
// in_planning} transitions in history and blocks the next one at the
// configured limit. force bypasses this check.
func (e *Engine) CheckReviewCycle(history []model.Event, to string, force bool) error {
	if force {
		return nil
	}
	if to != "in_progress" && to != "in_planning" {
		return nil
	}
	limit := e.cfg.ReviewCycleLimit
	if limit <= 0 {
		return nil
	}
	count := 0
	for _, ev := range history {
		if ev.Type != model.EventStatusChanged {
			continue
		}
		from, _ := ev.Data["from"].(string)
		toStatus, _ := ev.Data["to"].(string)
		forced, _ := ev.Data["forced"].(bool)
		if forced {
			continue
		}
		if from == "review" && (toStatus == "in_progress" || toStatus == "in_planning") {
			count++
		}
	}
	if count >= limit {
		return &ReviewCycleExceededError{Limit: limit, Count: count}
	}
	return nil
}

// ComputeEpicDerivedStatus folds a container task's children's statuses
// into a single derived status. Precedence (highest first): any child
// in_progress; else all children done-or-cancelled with at least one
// done; else all cancelled; else any blocked; else any planned; else
// backlog.
func (e *Engine) ComputeEpicDerivedStatus(children []string) string {
	if len(children) == 0 {
		return e.cfg.DefaultStatus
	}
	var any = struct {
		inProgress, blocked, planned, done, cancelled bool
		all                                            int
	}{}
	any.all = len(children)
	doneOrCancelled := 0
	for _, s := range children {
		switch s {
		case "in_progress":
			any.inProgress = true
		case "blocked":
			any.blocked = true
		case "planned":
			any.planned = true
		case "done":
			any.done = true
			doneOrCancelled++
		case "cancelled":
			any.cancelled = true
			doneOrCancelled++
		}
	}
	switch {
	case any.inProgress:
		return "in_progress"
	case doneOrCancelled == any.all && any.done:
		return "done"
	case doneOrCancelled == any.all && any.cancelled:
		return "cancelled"
	case any.blocked:
		return "blocked"
	case any.planned:
		return "planned"
	default:
		return "backlog"
	}
}

// IsContainerType reports whether a task type's status is always computed
// rather than directly writable.
func IsContainerType(taskType string) bool {
	return taskType == "epic"
}

// RoleVocabulary returns the union of cfg.Roles and every role mentioned
// in any completion policy's require_roles, sorted for stable display.
func (e *Engine) RoleVocabulary() []string {
	set := map[string]bool{}
	for _, r := range e.cfg.Roles {
		set[r] = true
	}
	for _, p := range e.cfg.CompletionPolicies {
		for _, r := range p.RequireRoles {
			set[r] = true
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// IsKnownRole reports whether role is in the resolved vocabulary.
// TaskService accepts comment and artifact roles without checking them,
// and Doctor does not report unknown roles.
func (e *Engine) IsKnownRole(role string) bool {
	for _, r := range e.RoleVocabulary() {
		if r == role {
			return true
		}
	}
	return false
}
