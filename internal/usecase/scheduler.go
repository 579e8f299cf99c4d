package usecase

import (
	"context"
	"log/slog"
	"time"

	"NewsDigest/internal/ports"
)

// Scheduler wires the cron driver with the state machine and the archival job.
type Scheduler struct {
	driver       ports.Scheduler
	machine      *StateMachine
	maintenance  *Maintenance
	archiveSpec  string
	archiveAfter time.Duration
	logger       *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs. Archival is skipped when
// maintenance is nil or archiveSpec is empty.
func NewScheduler(driver ports.Scheduler, machine *StateMachine, maintenance *Maintenance, archiveSpec string, archiveAfter time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		driver:       driver,
		machine:      machine,
		maintenance:  maintenance,
		archiveSpec:  archiveSpec,
		archiveAfter: archiveAfter,
		logger:       logger,
	}
}

// Start registers the jobs with the driver. Step errors are logged and the next tick retries.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.machine == nil {
		return nil
	}

	if s.maintenance != nil && s.archiveSpec != "" && s.archiveAfter > 0 {
		err := s.driver.Schedule(s.archiveSpec, func(trigger time.Time) {
			if _, err := s.maintenance.Archive(ctx, trigger, s.archiveAfter); err != nil {
				s.logger.Error("archive failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		result, err := s.machine.RunOnce(ctx, trigger)
		if err != nil {
			s.logger.Error("step failed", "date", result.Date, "run_id", result.RunID, "error", err)
		}
	})
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
