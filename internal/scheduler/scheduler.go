// Package scheduler runs a pipeline job on a recurring schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is one scheduled pipeline execution.
type Job func(ctx context.Context) error

// Config describes when the job runs. Exactly one of Every and Cron is set.
type Config struct {
	Every time.Duration
	Cron  string
	// RunImmediately runs the job once at start instead of waiting for the
	// first tick.
	RunImmediately bool
	// Location for cron expressions (default UTC).
	Location *time.Location
	Logger   *slog.Logger
}

// Stats counts scheduled executions.
type Stats struct {
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError string
}

// Scheduler wraps a gocron scheduler running a single job.
type Scheduler struct {
	cron   *gocron.Scheduler
	job    *gocron.Job
	run    Job
	logger *slog.Logger

	ctxMu sync.RWMutex
	ctx   context.Context

	mu    sync.Mutex
	stats Stats
}

// ErrNoSchedule is returned when neither an interval nor a cron expression is given.
var ErrNoSchedule = errors.New("a schedule is required: set an interval or a cron expression")

// New builds a scheduler. Executions never overlap; a tick that fires
// while the job is still running waits for it to finish.
func New(cfg Config, job Job) (*Scheduler, error) {
	switch {
	case cfg.Every <= 0 && cfg.Cron == "":
		return nil, ErrNoSchedule
	case cfg.Every > 0 && cfg.Cron != "":
		return nil, errors.New("set either an interval or a cron expression, not both")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		cron:   gocron.NewScheduler(loc),
		run:    job,
		logger: logger,
		ctx:    context.Background(),
	}
	s.cron.SingletonModeAll()

	if cfg.Every > 0 {
		s.cron.Every(cfg.Every)
	} else {
		s.cron.Cron(cfg.Cron)
	}
	if !cfg.RunImmediately {
		s.cron.WaitForSchedule()
	}

	j, err := s.cron.Do(s.execute)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	s.job = j
	return s, nil
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctxMu.Lock()
	s.ctx = ctx
	s.ctxMu.Unlock()

	s.cron.StartAsync()
	s.logger.Info("scheduler started", "next_run", s.NextRun())

	<-ctx.Done()

	s.cron.Stop()
	s.logger.Info("scheduler stopped", "runs", s.Stats().Runs)
	return nil
}

// NextRun returns the time of the next scheduled execution.
func (s *Scheduler) NextRun() time.Time {
	return s.job.NextRun()
}

// Stats returns a snapshot of execution counts.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) execute() {
	s.ctxMu.RLock()
	ctx := s.ctx
	s.ctxMu.RUnlock()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	s.logger.Info("scheduled run starting")
	err := s.run(ctx)

	s.mu.Lock()
	s.stats.Runs++
	s.stats.LastRun = start
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
	} else {
		s.stats.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled run completed", "duration", time.Since(start), "next_run", s.NextRun())
}
