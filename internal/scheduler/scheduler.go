// Package scheduler runs periodic background jobs for a long-running
// lattice server process (serve-mcp, serve-http).
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job represents a scheduled task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on a periodic basis.
type Scheduler struct {
	logger zerolog.Logger
	jobs   []scheduledJob
}

type scheduledJob struct {
	job      Job
	interval time.Duration
	ticker   *time.Ticker
	stop     chan struct{}
}

// New creates a scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{jobs: make([]scheduledJob, 0), logger: logger}
}

// AddJob adds a job to run at the specified interval.
func (s *Scheduler) AddJob(job Job, interval time.Duration) {
	s.jobs = append(s.jobs, scheduledJob{
		job:      job,
		interval: interval,
		stop:     make(chan struct{}),
	})
}

// Start begins running all scheduled jobs in the background. It
// returns immediately; jobs stop when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	for i := range s.jobs {
		sj := &s.jobs[i]
		sj.ticker = time.NewTicker(sj.interval)

		go func(sj *scheduledJob) {
			s.logger.Info().Str("job", sj.job.Name()).Dur("interval", sj.interval).Msg("starting scheduled job")

			for {
				select {
				case <-sj.ticker.C:
					s.logger.Debug().Str("job", sj.job.Name()).Msg("running scheduled job")
					if err := sj.job.Run(ctx); err != nil {
						s.logger.Error().Err(err).Str("job", sj.job.Name()).Msg("scheduled job failed")
					}
				case <-sj.stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}(sj)
	}
}

// Stop halts all scheduled jobs.
func (s *Scheduler) Stop() {
	for i := range s.jobs {
		if s.jobs[i].ticker != nil {
			s.jobs[i].ticker.Stop()
		}
		close(s.jobs[i].stop)
	}
	s.logger.Info().Msg("scheduler stopped")
}
