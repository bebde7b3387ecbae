package model

// CompletionPolicy gates entry into a status by required evidence roles
// and/or an assignment requirement.
type CompletionPolicy struct {
	RequireRoles    []string `json:"require_roles,omitempty"`
	RequireAssigned bool     `json:"require_assigned,omitempty"`
}

// Config is the versioned workflow configuration read from config.json.
// It is mutated by direct JSON edits, never by the event log.
type Config struct {
	Statuses    []string            `json:"statuses"`
	Transitions map[string][]string `json:"transitions"`

	DefaultStatus   string `json:"default_status"`
	DefaultPriority string `json:"default_priority,omitempty"`

	TaskTypes []string `json:"task_types,omitempty"`

	CompletionPolicies map[string]CompletionPolicy `json:"completion_policies,omitempty"`
	UniversalTargets   []string                    `json:"universal_targets,omitempty"`

	ReviewCycleLimit int      `json:"review_cycle_limit"`
	Roles            []string `json:"roles,omitempty"`

	ProjectCode   string `json:"project_code,omitempty"`
	DefaultActor  string `json:"default_actor,omitempty"`

	WIPLimits map[string]int    `json:"wip_limits,omitempty"`
	Hooks     map[string]string `json:"hooks,omitempty"`
}

// StatusIndex returns the position of status in the configured status
// order, or -1 if unknown. Used to compare workflow "direction" for the
// reopened_count invariant.
func (c *Config) StatusIndex(status string) int {
	for i, s := range c.Statuses {
		if s == status {
			return i
		}
	}
	return -1
}

// IsUniversalTarget reports whether a status bypasses completion policies.
func (c *Config) IsUniversalTarget(status string) bool {
	for _, s := range c.UniversalTargets {
		if s == status {
			return true
		}
	}
	return false
}

// IsDoneClass reports whether status is a terminal "done" style status:
// it has no configured outgoing transitions and is not a universal target
// used for abandonment (cancelled, needs_human). Concretely: any status
// with an empty transition list that is reachable, excluding the
// universal escape hatches, counts as done-class for done_at purposes.
// Callers needing "exactly done" compare the status string directly.
func (c *Config) IsDoneClass(status string) bool {
	if status == "" {
		return false
	}
	if status == "cancelled" || status == "needs_human" {
		return false
	}
	targets, ok := c.Transitions[status]
	return ok && len(targets) == 0
}

// AllowedTransitions returns the configured targets for a source status,
// always including the universal targets.
func (c *Config) AllowedTransitions(from string) []string {
	base := append([]string(nil), c.Transitions[from]...)
	for _, u := range c.UniversalTargets {
		found := false
		for _, b := range base {
			if b == u {
				found = true
				break
			}
		}
		if !found && from != u {
			base = append(base, u)
		}
	}
	return base
}

// Clone returns a deep copy, used when ConfigService swaps in a reloaded
// config so in-flight readers keep a stable view.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Statuses = append([]string(nil), c.Statuses...)
	cp.TaskTypes = append([]string(nil), c.TaskTypes...)
	cp.Roles = append([]string(nil), c.Roles...)
	cp.UniversalTargets = append([]string(nil), c.UniversalTargets...)

	cp.Transitions = make(map[string][]string, len(c.Transitions))
	for k, v := range c.Transitions {
		cp.Transitions[k] = append([]string(nil), v...)
	}
	cp.CompletionPolicies = make(map[string]CompletionPolicy, len(c.CompletionPolicies))
	for k, v := range c.CompletionPolicies {
		cp.CompletionPolicies[k] = CompletionPolicy{
			RequireRoles:    append([]string(nil), v.RequireRoles...),
			RequireAssigned: v.RequireAssigned,
		}
	}
	cp.WIPLimits = make(map[string]int, len(c.WIPLimits))
	for k, v := range c.WIPLimits {
		cp.WIPLimits[k] = v
	}
	cp.Hooks = make(map[string]string, len(c.Hooks))
	for k, v := range c.Hooks {
		cp.Hooks[k] = v
	}
	return &cp
}

// Default returns the built-in default configuration used when config.json
// is missing.
func Default() *Config {
	return &Config{
		Statuses: []string{
			"backlog", "planned", "in_planning", "in_progress", "review",
			"blocked", "done", "cancelled", "needs_human",
		},
		Transitions: map[string][]string{
			"backlog":     {"planned", "in_progress", "blocked"},
			"planned":     {"in_planning", "in_progress", "blocked"},
			"in_planning": {"in_progress", "blocked"},
			"in_progress": {"review", "blocked"},
			"review":      {"in_progress", "in_planning", "done"},
			"blocked":     {"backlog", "planned", "in_progress"},
			"done":        {},
			"cancelled":   {},
			"needs_human": {"backlog", "planned", "in_progress"},
		},
		DefaultStatus:   "backlog",
		DefaultPriority: "medium",
		TaskTypes:       []string{"feature", "bug", "chore", "epic"},
		CompletionPolicies: map[string]CompletionPolicy{
			"done": {RequireRoles: []string{"review"}, RequireAssigned: true},
		},
		UniversalTargets: []string{"needs_human", "cancelled"},
		ReviewCycleLimit: 3,
		Roles:            []string{"review", "qa", "security"},
		WIPLimits:        map[string]int{},
		Hooks:            map[string]string{},
	}
}
