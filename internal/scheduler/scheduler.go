// Package scheduler runs the periodic background jobs: cache warming for tracked
// locations and eviction of idle dashboard sessions.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/observability"
)

const (
	jobWarm  = "cache_warm"
	jobSweep = "session_sweep"
)

// Warmer prefetches payloads for a set of locations.
type Warmer interface {
	Warm(ctx context.Context, locations []models.Location) error
}

// Sweeper evicts idle sessions and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// Config controls job intervals. A zero interval disables that job.
type Config struct {
	WarmInterval  time.Duration
	WarmTimeout   time.Duration
	SweepInterval time.Duration
	Locations     []models.Location
}

// Scheduler wraps a gocron scheduler running in UTC.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	sweeper   Sweeper
	cfg       Config
	logger    *zap.Logger
}

// New creates a Scheduler. warmer or sweeper may be nil to skip that job.
func New(cfg Config, warmer Warmer, sweeper Sweeper, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WarmTimeout <= 0 {
		cfg.WarmTimeout = 30 * time.Second
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		warmer:    warmer,
		sweeper:   sweeper,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start schedules the enabled jobs and starts the scheduler. Each job first runs
// immediately and never overlaps a previous run of itself.
func (s *Scheduler) Start() error {
	if s.warmer != nil && s.cfg.WarmInterval > 0 && len(s.cfg.Locations) > 0 {
		if _, err := s.scheduler.Every(s.cfg.WarmInterval).Tag(jobWarm).SingletonMode().Do(s.runWarm); err != nil {
			return err
		}
	}
	if s.sweeper != nil && s.cfg.SweepInterval > 0 {
		if _, err := s.scheduler.Every(s.cfg.SweepInterval).Tag(jobSweep).SingletonMode().Do(s.runSweep); err != nil {
			return err
		}
	}
	if s.scheduler.Len() == 0 {
		s.logger.Info("scheduler: no jobs enabled")
		return nil
	}
	s.logger.Info("scheduler started", zap.Int("jobs", s.scheduler.Len()))
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil && s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runWarm() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WarmTimeout)
	defer cancel()
	if err := s.warmer.Warm(ctx, s.cfg.Locations); err != nil {
		observability.ScheduledJobRunsTotal.WithLabelValues(jobWarm, "error").Inc()
		s.logger.Warn("cache warm job failed", zap.Error(err))
		return
	}
	observability.ScheduledJobRunsTotal.WithLabelValues(jobWarm, "success").Inc()
}

func (s *Scheduler) runSweep() {
	removed := s.sweeper.Sweep()
	observability.ScheduledJobRunsTotal.WithLabelValues(jobSweep, "success").Inc()
	s.logger.Debug("session sweep complete", zap.Int("removed", removed))
}
