// Package selector implements next/claim: picking the single most
// eligible task for an actor to work on and atomically claiming it.
package selector

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/lattice-dev/lattice/internal/cache"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/store"
	"github.com/lattice-dev/lattice/internal/task"
)

// ErrNothingToClaim is returned by Claim when no eligible task remains
// after retrying: the pool is empty, every candidate lost the race to
// another claimant, or the candidate Next picks is the actor's own
// in-progress or in-planning task, which is outside the claimable pool.
var ErrNothingToClaim = errors.New("selector: nothing to claim")

// DefaultStatusPool is the ready-set status pool used when the caller
// does not override it.
var DefaultStatusPool = []string{"backlog", "planned"}

// MaxClaimRetries bounds how many times Claim re-selects after losing
// a race before giving up with ErrNothingToClaim.
const MaxClaimRetries = 5

// Selector reads snapshots directly from the live tasks directory; it
// never touches the event log. A cache, if present, is consulted for
// the sort/filter pass so repeated next/claim calls don't read every
// task file on disk; it is always optional and never authoritative.
type Selector struct {
	st    *store.Store
	svc   *task.Service
	cache *cache.Cache
}

// New creates a Selector backed by st for reads and svc for the claim
// verb's status/assignment writes. c may be nil, in which case every
// call falls back to a full directory scan.
func New(st *store.Store, svc *task.Service, c *cache.Cache) *Selector {
	return &Selector{st: st, svc: svc, cache: c}
}

// Next picks the top of the resume set (in_progress/in_planning tasks
// already assigned to actor) if non-empty, else the top of the ready
// set (unassigned or actor-assigned tasks in statusPool). Returns nil
// if nothing is eligible.
func (sel *Selector) Next(actor string, statusPool []string) (*model.Task, error) {
	summaries, err := sel.liveSummaries()
	if err != nil {
		return nil, err
	}
	if actor != "" {
		resume := filterSummaries(summaries, func(s cache.Summary) bool {
			return !s.Archived && (s.Status == "in_progress" || s.Status == "in_planning") && s.AssignedTo == actor
		})
		if len(resume) > 0 {
			sortByPriority(resume)
			return sel.loadFull(resume[0].ID)
		}
	}
	if len(statusPool) == 0 {
		statusPool = DefaultStatusPool
	}
	pool := make(map[string]bool, len(statusPool))
	for _, s := range statusPool {
		pool[s] = true
	}
	ready := filterSummaries(summaries, func(s cache.Summary) bool {
		return !s.Archived && pool[s.Status] && (s.AssignedTo == "" || s.AssignedTo == actor)
	})
	if len(ready) == 0 {
		return nil, nil
	}
	sortByPriority(ready)
	return sel.loadFull(ready[0].ID)
}

// Claim selects a candidate via Next, then inside a single lock scope
// re-verifies it is still eligible before assigning it to actor and
// moving it to in_progress. If the candidate raced with another
// claimant, Claim retries up to MaxClaimRetries times before returning
// ErrNothingToClaim.
func (sel *Selector) Claim(ctx context.Context, actor string, statusPool []string) (*model.Task, error) {
	for attempt := 0; attempt < MaxClaimRetries; attempt++ {
		candidate, err := sel.Next(actor, statusPool)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, ErrNothingToClaim
		}

		snap, err := sel.svc.Get(candidate.ID)
		if errors.Is(err, task.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !eligible(snap, actor, statusPool) {
			continue // raced; someone else claimed it since Next ran
		}

		claimed, err := sel.svc.Claim(ctx, snap.ID, task.ClaimRequest{Actor: actor, To: "in_progress", StatusPool: statusPool})
		if err != nil {
			continue // raced (ErrNotEligible) or the transition became invalid under lock; try the next candidate
		}
		sel.cache.Put(claimed.ID, sourceModTime(sel.st.TaskPath(claimed.ID)), summaryFromTask(claimed))
		return claimed, nil
	}
	return nil, ErrNothingToClaim
}

func eligible(t *model.Task, actor string, statusPool []string) bool {
	if t.Archived {
		return false
	}
	if t.AssignedTo != nil && *t.AssignedTo != actor {
		return false
	}
	if len(statusPool) == 0 {
		statusPool = DefaultStatusPool
	}
	for _, s := range statusPool {
		if t.Status == s {
			return true
		}
	}
	return false
}

// liveSummaries returns one Summary per live task, consulting the
// cache first and falling through to the snapshot file on a miss or a
// stale mtime. A corrupt or unreadable snapshot is skipped; doctor is
// the place that reports corruption, not the selector.
func (sel *Selector) liveSummaries() ([]cache.Summary, error) {
	ids, err := store.ListIDs(sel.st.TasksDir(), ".json")
	if err != nil {
		return nil, err
	}
	out := make([]cache.Summary, 0, len(ids))
	for _, id := range ids {
		path := sel.st.TaskPath(id)
		mt := sourceModTime(path)
		if s, ok := sel.cache.Get(id, mt); ok {
			out = append(out, s)
			continue
		}
		var t model.Task
		if err := store.ReadJSON(path, &t); err != nil {
			continue
		}
		s := summaryFromTask(&t)
		sel.cache.Put(id, mt, s)
		out = append(out, s)
	}
	return out, nil
}

func (sel *Selector) loadFull(id string) (*model.Task, error) {
	var t model.Task
	if err := store.ReadJSON(sel.st.TaskPath(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// sourceModTime returns path's mtime, or the zero time on a failed
// stat; a zero time never matches a real cached entry's UnixNano, so a
// stat failure always reads as a cache miss rather than a false hit.
func sourceModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func summaryFromTask(t *model.Task) cache.Summary {
	assignedTo := ""
	if t.AssignedTo != nil {
		assignedTo = *t.AssignedTo
	}
	return cache.SummaryFromTask(t.ID, t.Status, string(t.Priority), string(t.Urgency), t.CreatedAt, assignedTo, t.Archived)
}

func filterSummaries(in []cache.Summary, pred func(cache.Summary) bool) []cache.Summary {
	out := make([]cache.Summary, 0, len(in))
	for _, s := range in {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// sortByPriority orders by priority rank, then urgency rank, then
// created_at ascending (oldest first; ULID lexicographic order is
// timestamp order).
func sortByPriority(summaries []cache.Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		ar, br := model.Priority(a.Priority).Rank(), model.Priority(b.Priority).Rank()
		if ar != br {
			return ar < br
		}
		au, bu := model.Urgency(a.Urgency).Rank(), model.Urgency(b.Urgency).Rank()
		if au != bu {
			return au < bu
		}
		return a.CreatedAt < b.CreatedAt
	})
}
