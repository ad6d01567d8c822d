// Package scheduler runs the periodic learning and evolution batches.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MatchPredictor/internal/metrics"
	"github.com/Alias1177/MatchPredictor/models"
)

// Runner is the batch surface of the analyze service
type Runner interface {
	RunLearning(ctx context.Context) (models.CorrectionsAppliedReport, error)
	RunEvolution(ctx context.Context, force bool) (models.RetrainResult, error)
}

// Scheduler triggers learning and evolution on cron schedules. Jobs never
// overlap within one process.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	timeout time.Duration
	mu      sync.Mutex
	logger  zerolog.Logger
}

// New creates a scheduler. Each job run is bounded by timeout.
func New(runner Runner, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		timeout: timeout,
		logger:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Schedule registers both jobs. An empty spec disables that job.
func (s *Scheduler) Schedule(learnSpec, evolveSpec string) error {
	if learnSpec != "" {
		if _, err := s.cron.AddFunc(learnSpec, func() { s.run("learn", s.learn) }); err != nil {
			return fmt.Errorf("invalid learn schedule %q: %w", learnSpec, err)
		}
	}
	if evolveSpec != "" {
		if _, err := s.cron.AddFunc(evolveSpec, func() { s.run("evolve", s.evolve) }); err != nil {
			return fmt.Errorf("invalid evolve schedule %q: %w", evolveSpec, err)
		}
	}
	return nil
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) run(job string, fn func(ctx context.Context) error) {
	if !s.mu.TryLock() {
		s.logger.Warn().Str("job", job).Msg("Previous job still running, skipping")
		metrics.RecordJob(job, "skipped")
		return
	}
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", job).Interface("panic", r).Msg("Job panicked")
			metrics.RecordJob(job, "error")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", job).Msg("Job failed")
		metrics.RecordJob(job, "error")
		return
	}
	s.logger.Info().Str("job", job).Dur("took", time.Since(started)).Msg("Job finished")
	metrics.RecordJob(job, "success")
}

func (s *Scheduler) learn(ctx context.Context) error {
	report, err := s.runner.RunLearning(ctx)
	if err != nil {
		return err
	}
	s.logger.Info().
		Int("corrections", len(report.Corrections)).
		Float64("accuracy", report.Summary.Accuracy).
		Str("message", report.Message).
		Msg("Learning run complete")
	return nil
}

func (s *Scheduler) evolve(ctx context.Context) error {
	result, err := s.runner.RunEvolution(ctx, false)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("status", string(result.Status)).
		Str("reason", result.Reason).
		Str("version", result.Version).
		Msg("Evolution run complete")
	return nil
}

// RunNow executes a job synchronously, honouring the overlap guard
func (s *Scheduler) RunNow(job string) error {
	switch job {
	case "learn":
		s.run(job, s.learn)
	case "evolve":
		s.run(job, s.evolve)
	default:
		return fmt.Errorf("unknown job %q", job)
	}
	return nil
}
