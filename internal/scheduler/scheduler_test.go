package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingJob struct {
	name string
	runs int32
}

func (j *countingJob) Name() string { return j.name }
func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return nil
}

func TestStartRunsJobOnEveryTick(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "sweep"}
	s.AddJob(job, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer cancel()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.runs) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestStopHaltsFurtherRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "sweep"}
	s.AddJob(job, 5*time.Millisecond)

	ctx := context.Background()
	s.Start(ctx)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.runs) >= 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := atomic.LoadInt32(&job.runs)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&job.runs))
}

func TestJobErrorDoesNotStopTheScheduler(t *testing.T) {
	s := New(zerolog.Nop())
	failing := &erroringJob{}
	s.AddJob(failing, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&failing.runs) >= 2
	}, time.Second, 5*time.Millisecond)
}

type erroringJob struct{ runs int32 }

func (j *erroringJob) Name() string { return "failing" }
func (j *erroringJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return assert.AnError
}
