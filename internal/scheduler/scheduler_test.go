package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJob counts invocations and optionally blocks or fails.
type fakeJob struct {
	name  string
	calls atomic.Int64
	err   error
	block chan struct{}
}

func (j *fakeJob) Name() string { return j.name }

func (j *fakeJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.Register("@every 1h", &fakeJob{name: "analysis"}))
	err := s.Register("@every 1h", &fakeJob{name: "analysis"})
	assert.Error(t, err, "duplicate job names must be rejected")
}

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.Register("not a cron spec", &fakeJob{name: "broken"}))
}

func TestTriggerRunsJobImmediately(t *testing.T) {
	s := New(zerolog.Nop())
	job := &fakeJob{name: "cleanup"}
	require.NoError(t, s.Register("30 0 * * *", job))

	require.NoError(t, s.Trigger(context.Background(), "cleanup"))
	assert.Equal(t, int64(1), job.calls.Load())
}

func TestTriggerUnknownJob(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.Trigger(context.Background(), "no-such-job"))
}

func TestTriggerReportsJobFailure(t *testing.T) {
	s := New(zerolog.Nop())
	job := &fakeJob{name: "backup", err: errors.New("bucket unreachable")}
	require.NoError(t, s.Register("0 3 * * *", job))

	err := s.Trigger(context.Background(), "backup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")

	statuses := s.Jobs()
	require.Len(t, statuses, 1)
	assert.Equal(t, "backup", statuses[0].Name)
	assert.Contains(t, statuses[0].LastError, "bucket unreachable")
	assert.NotNil(t, statuses[0].LastRun)
}

func TestJobsReportsSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.Register("@every 15m", &fakeJob{name: "analysis"}))

	statuses := s.Jobs()
	require.Len(t, statuses, 1)
	assert.Equal(t, "@every 15m", statuses[0].Schedule)
	assert.Nil(t, statuses[0].LastRun, "job has not run yet")
}

func TestStopWaitsForRunningJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &fakeJob{name: "analysis", block: make(chan struct{})}
	require.NoError(t, s.Register("@every 1h", job))
	s.Start()

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
}
