// Package hooks fires configured shell commands in response to
// just-written events. Dispatch is fire-and-forget: a hook that fails to
// spawn is logged and never blocks or fails the verb that triggered it.
package hooks

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-dev/lattice/internal/model"
)

// Dispatcher matches configured trigger patterns against events and
// spawns detached subprocesses for matches.
type Dispatcher struct {
	root    string
	enabled bool
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Dispatcher rooted at root (exposed to hooks as
// LATTICE_ROOT). enabled gates all dispatch; timeout bounds how long a
// spawned process may run before it is killed (the core never waits on
// its output, but an unbounded hook would leak processes forever).
func New(root string, enabled bool, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{root: root, enabled: enabled, timeout: timeout, log: log}
}

// Fire matches cfg.Hooks against ev and spawns a detached subprocess per
// match. Patterns come in two shapes:
//   - "<from> -> <to>" (or "* -> <to>" / "<from> -> *" / "* -> *"),
//     matched against status_changed events' data.from/data.to.
//   - "on_<event_type>" (e.g. "on_status_change", "on_comment_added"),
//     matched against the event's type directly.
func (d *Dispatcher) Fire(cfg *model.Config, ev model.Event) {
	if !d.enabled || cfg == nil {
		return
	}
	for pattern, command := range cfg.Hooks {
		if matchesPattern(pattern, ev) {
			d.spawn(command, ev)
		}
	}
}

func matchesPattern(pattern string, ev model.Event) bool {
	if strings.Contains(pattern, "->") {
		if ev.Type != model.EventStatusChanged {
			return false
		}
		parts := strings.SplitN(pattern, "->", 2)
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		evFrom, _ := ev.Data["from"].(string)
		evTo, _ := ev.Data["to"].(string)
		return (from == "*" || from == evFrom) && (to == "*" || to == evTo)
	}
	trigger, ok := strings.CutPrefix(pattern, "on_")
	if !ok {
		return false
	}
	return trigger == canonicalTrigger(ev.Type)
}

func canonicalTrigger(eventType string) string {
	switch eventType {
	case model.EventStatusChanged:
		return "status_change"
	default:
		return eventType
	}
}

func (d *Dispatcher) spawn(commandTemplate string, ev model.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	command := expandTemplate(commandTemplate, map[string]string{
		"task_id": ev.TaskID,
		"from":    from,
		"to":      to,
		"actor":   ev.Actor,
	})
	if strings.TrimSpace(command) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = d.root
	cmd.Env = append(cmd.Environ(),
		"LATTICE_TASK_ID="+ev.TaskID,
		"LATTICE_ROOT="+d.root,
		"LATTICE_EVENT_TYPE="+ev.Type,
		"LATTICE_FROM="+from,
		"LATTICE_TO="+to,
		"LATTICE_ACTOR_TRIGGER="+ev.Actor,
	)
	if err := cmd.Start(); err != nil {
		d.log.Warn().Err(err).Str("command", command).Msg("hook failed to spawn")
		cancel()
		return
	}
	go func() {
		defer cancel()
		if err := cmd.Wait(); err != nil {
			d.log.Debug().Err(err).Str("command", command).Msg("hook exited non-zero")
		}
	}()
}

func expandTemplate(tmpl string, values map[string]string) string {
	out := tmpl
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
