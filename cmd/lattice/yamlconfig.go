package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lattice-dev/lattice/internal/model"
)

// yamlCompletionPolicy mirrors model.CompletionPolicy for the
// human-authored lattice.yaml template.
type yamlCompletionPolicy struct {
	RequireRoles    []string `yaml:"require_roles,omitempty"`
	RequireAssigned bool     `yaml:"require_assigned,omitempty"`
}

// yamlConfig is the lattice.yaml shape init converts into config.json.
// Field names match model.Config's JSON contract so the conversion is a
// straight rename, not a remapping: a project can diff lattice.yaml
// against the JSON Schema of model.Config without translation.
type yamlConfig struct {
	Statuses    []string            `yaml:"statuses"`
	Transitions map[string][]string `yaml:"transitions"`

	DefaultStatus   string `yaml:"default_status"`
	DefaultPriority string `yaml:"default_priority,omitempty"`

	TaskTypes []string `yaml:"task_types,omitempty"`

	CompletionPolicies map[string]yamlCompletionPolicy `yaml:"completion_policies,omitempty"`
	UniversalTargets   []string                         `yaml:"universal_targets,omitempty"`

	ReviewCycleLimit int      `yaml:"review_cycle_limit"`
	Roles            []string `yaml:"roles,omitempty"`

	ProjectCode  string `yaml:"project_code,omitempty"`
	DefaultActor string `yaml:"default_actor,omitempty"`

	WIPLimits map[string]int    `yaml:"wip_limits,omitempty"`
	Hooks     map[string]string `yaml:"hooks,omitempty"`
}

// loadYAMLConfig reads path as a lattice.yaml template and converts it
// into a model.Config. Validation is left to config.Validate, called by
// the caller on the converted config before it is written to config.json.
func loadYAMLConfig(path string) (*model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg := &model.Config{
		Statuses:         y.Statuses,
		Transitions:      y.Transitions,
		DefaultStatus:    y.DefaultStatus,
		DefaultPriority:  y.DefaultPriority,
		TaskTypes:        y.TaskTypes,
		UniversalTargets: y.UniversalTargets,
		ReviewCycleLimit: y.ReviewCycleLimit,
		Roles:            y.Roles,
		ProjectCode:      y.ProjectCode,
		DefaultActor:     y.DefaultActor,
		WIPLimits:        y.WIPLimits,
		Hooks:            y.Hooks,
	}
	if len(y.CompletionPolicies) > 0 {
		cfg.CompletionPolicies = make(map[string]model.CompletionPolicy, len(y.CompletionPolicies))
		for status, p := range y.CompletionPolicies {
			cfg.CompletionPolicies[status] = model.CompletionPolicy{
				RequireRoles:    p.RequireRoles,
				RequireAssigned: p.RequireAssigned,
			}
		}
	}
	return cfg, nil
}
