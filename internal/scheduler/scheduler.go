package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Jobs is the work the scheduler runs periodically.
type Jobs interface {
	Retrain(ctx context.Context) error
	RefreshStandards(ctx context.Context) error
}

// Config sets the job intervals. A zero interval disables that job.
type Config struct {
	RetrainInterval          time.Duration
	StandardsRefreshInterval time.Duration
	JobTimeout               time.Duration
}

// Scheduler periodically retrains the prediction model and refreshes the
// standards table.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      Jobs
	cfg       Config
	log       *zap.Logger
}

// New creates a new Scheduler.
func New(cfg Config, jobs Jobs, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		jobs:      jobs,
		cfg:       cfg,
		log:       log,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	scheduled := 0

	if s.cfg.RetrainInterval > 0 {
		if err := s.every(s.cfg.RetrainInterval, "retrain", s.jobs.Retrain); err != nil {
			return err
		}
		scheduled++
	}
	if s.cfg.StandardsRefreshInterval > 0 {
		if err := s.every(s.cfg.StandardsRefreshInterval, "standards-refresh", s.jobs.RefreshStandards); err != nil {
			return err
		}
		scheduled++
	}

	if scheduled == 0 {
		s.log.Info("scheduler: no jobs configured; nothing to schedule")
		return nil
	}

	s.scheduler.StartAsync()
	s.log.Info("scheduler started", zap.Int("jobs", scheduled))
	return nil
}

func (s *Scheduler) every(interval time.Duration, name string, job func(ctx context.Context) error) error {
	_, err := s.scheduler.Every(interval).WaitForSchedule().Tag(name).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Warn("scheduler: job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Debug("scheduler: job completed", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	return err
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
