// Package ingest owns the periodic ingestion jobs: fetch, normalize,
// persist and fan out to the broadcast hub and alert evaluator.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mintstack/internal/logging"
)

// Job is one independently scheduled ingestion task. Jobs for different
// data categories run concurrently; no global lock serializes them.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// InitialLoad jobs also run once at startup, isolated from the
	// periodic schedule; a startup failure only logs a warning.
	InitialLoad bool
}

// Scheduler runs a set of periodic jobs, each on its own ticker and
// goroutine. Every job traps all errors at its own boundary; the next
// tick is the retry mechanism, with no additional backoff.
type Scheduler struct {
	jobs   []Job
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds a job to the schedule. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches one goroutine per job and the one-shot initial loads.
// It returns immediately; jobs stop when the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.InitialLoad {
			s.wg.Add(1)
			go func(j Job) {
				defer s.wg.Done()
				s.runInitial(ctx, j)
			}(job)
		}

		s.wg.Add(1)
		go func(j Job) {
			defer s.wg.Done()
			s.runPeriodic(ctx, j)
		}(job)
	}

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Wait blocks until all job goroutines have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// RunOnce executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.safeRun(ctx, job)
		}
	}
	return fmt.Errorf("unknown job: %s", name)
}

// JobNames lists the registered job names.
func (s *Scheduler) JobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
	}
	return names
}

// runInitial performs the startup-time load. A failure must not prevent
// application start, so it only logs a warning.
func (s *Scheduler) runInitial(ctx context.Context, job Job) {
	log := logging.WithJob(s.logger, job.Name)
	if err := s.safeRun(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Initial load failed")
		return
	}
	log.Info().Msg("Initial load completed")
}

// runPeriodic ticks the job until the context is cancelled. Errors are
// logged and the run abandoned; the next tick tries again.
func (s *Scheduler) runPeriodic(ctx context.Context, job Job) {
	log := logging.WithJob(s.logger, job.Name)
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Job stopped")
			return
		case <-ticker.C:
			if err := s.safeRun(ctx, job); err != nil {
				log.Error().Err(err).Msg("Job run failed")
			}
		}
	}
}

// safeRun executes a job with panic recovery so a misbehaving provider
// payload can never take down the schedule.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()

	start := time.Now()
	err = job.Run(ctx)
	jobLogger := logging.WithJob(s.logger, job.Name)
	jobLogger.Debug().
		Dur("duration", time.Since(start)).Msg("Job run finished")
	return err
}
