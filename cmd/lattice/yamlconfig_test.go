package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLConfigConvertsFieldsAndCompletionPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	doc := `
statuses: [backlog, in_progress, review, done]
transitions:
  backlog: [in_progress]
  in_progress: [review]
  review: [done, in_progress]
  done: []
default_status: backlog
default_priority: medium
task_types: [feature, bug]
completion_policies:
  done:
    require_roles: [review]
    require_assigned: true
universal_targets: [cancelled]
review_cycle_limit: 2
roles: [review, qa]
project_code: LAT
wip_limits:
  in_progress: 3
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := loadYAMLConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"backlog", "in_progress", "review", "done"}, cfg.Statuses)
	assert.Equal(t, "backlog", cfg.DefaultStatus)
	assert.Equal(t, 2, cfg.ReviewCycleLimit)
	require.Contains(t, cfg.CompletionPolicies, "done")
	assert.Equal(t, []string{"review"}, cfg.CompletionPolicies["done"].RequireRoles)
	assert.True(t, cfg.CompletionPolicies["done"].RequireAssigned)
	assert.Equal(t, 3, cfg.WIPLimits["in_progress"])
}

func TestLoadYAMLConfigRejectsMissingFile(t *testing.T) {
	_, err := loadYAMLConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
