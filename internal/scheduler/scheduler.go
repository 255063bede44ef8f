// Package scheduler runs the background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a runnable background task. Implementations must be safe to invoke
// from both the cron goroutine and a manual API trigger.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobStatus reports one registered job for the API.
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	NextRun   time.Time  `json:"next_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type registeredJob struct {
	job      Job
	schedule string
	entryID  cron.EntryID
	lastRun  *time.Time
	lastErr  string
}

// Scheduler wraps a cron runner with named jobs and manual triggering.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*registeredJob
}

// New creates a stopped scheduler; call Start after registering jobs.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]*registeredJob),
	}
}

// Register adds a job on the given cron spec. Job names must be unique.
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %q already registered", job.Name())
	}

	reg := &registeredJob{job: job, schedule: spec}
	entryID, err := s.cron.AddFunc(spec, func() { s.execute(reg) })
	if err != nil {
		return fmt.Errorf("invalid cron spec %q for job %q: %w", spec, job.Name(), err)
	}
	reg.entryID = entryID
	s.jobs[job.Name()] = reg

	s.log.Info().Str("job", job.Name()).Str("schedule", spec).Msg("Job registered")
	return nil
}

// Start begins scheduling. Idempotent.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop halts scheduling and waits for running jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info().Msg("Scheduler stopped")
	case <-ctx.Done():
		s.log.Warn().Msg("Scheduler stop timed out with jobs still running")
	}
}

// Trigger runs the named job immediately, outside its schedule.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	reg, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, reg)
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, reg := range s.jobs {
		status := JobStatus{
			Name:      reg.job.Name(),
			Schedule:  reg.schedule,
			NextRun:   s.cron.Entry(reg.entryID).Next,
			LastError: reg.lastErr,
		}
		if reg.lastRun != nil {
			t := *reg.lastRun
			status.LastRun = &t
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// execute is the cron entry point; scheduled runs are not cancellable beyond
// process shutdown.
func (s *Scheduler) execute(reg *registeredJob) {
	if err := s.run(context.Background(), reg); err != nil {
		s.log.Error().Err(err).Str("job", reg.job.Name()).Msg("Scheduled job failed")
	}
}

func (s *Scheduler) run(ctx context.Context, reg *registeredJob) error {
	started := time.Now()
	s.log.Info().Str("job", reg.job.Name()).Msg("Running job")

	err := reg.job.Run(ctx)

	s.mu.Lock()
	now := time.Now()
	reg.lastRun = &now
	if err != nil {
		reg.lastErr = err.Error()
	} else {
		reg.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("job %q failed: %w", reg.job.Name(), err)
	}
	s.log.Info().Str("job", reg.job.Name()).Dur("duration", time.Since(started)).Msg("Job completed")
	return nil
}
