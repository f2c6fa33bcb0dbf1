package usecase

import (
	"context"
	"log/slog"
	"time"

	"TrendsScanner/internal/ports"
)

// Job is a recurring entry point. An empty Spec leaves the job unscheduled.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler wires the cron driver with the pipeline entry points.
type Scheduler struct {
	driver ports.Scheduler
	jobs   []Job
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, jobs: jobs, logger: logger}
}

// Start registers every job with the driver and starts it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	for _, job := range s.jobs {
		if job.Spec == "" || job.Run == nil {
			continue
		}
		err := s.driver.Add(job.Spec, func(trigger time.Time) {
			logger := s.logger.With("job", job.Name, "trigger", trigger.Format(time.RFC3339))
			if err := job.Run(ctx); err != nil {
				logger.Error("scheduled job failed", "error", err)
				return
			}
			logger.Debug("scheduled job finished")
		})
		if err != nil {
			return err
		}
		s.logger.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	}

	return s.driver.Start(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
