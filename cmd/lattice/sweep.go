package main

import (
	"context"
	"time"

	"github.com/lattice-dev/lattice/internal/integrity"
	"github.com/lattice-dev/lattice/internal/scheduler"
)

// doctorJob runs a read-only integrity sweep on a timer and logs what
// it finds. It never passes fix=true: repairing drift outside an
// explicit `lattice doctor --fix` invocation would silently rewrite
// snapshots an operator hasn't asked to touch.
type doctorJob struct {
	checker *integrity.Checker
	a       *app
}

func (j *doctorJob) Name() string { return "integrity-sweep" }

func (j *doctorJob) Run(ctx context.Context) error {
	findings, err := j.checker.Doctor(ctx, false)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		j.a.logger.Debug().Msg("integrity sweep: clean")
		return nil
	}
	j.a.logger.Warn().Int("count", len(findings)).Msg("integrity sweep found issues")
	for _, f := range findings {
		j.a.logger.Warn().Str("task_id", f.TaskID).Str("code", f.Code).Str("detail", f.Detail).Msg("integrity finding")
	}
	return nil
}

// startIntegritySweep wires a background doctor sweep into a
// long-running server process when ambient config enables it.
func (a *app) startIntegritySweep(ctx context.Context) {
	if !a.ambient.Integrity.Enabled {
		return
	}
	interval := time.Duration(a.ambient.Integrity.IntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}
	sched := scheduler.New(a.logger)
	sched.AddJob(&doctorJob{checker: a.checker, a: a}, interval)
	sched.Start(ctx)
}
