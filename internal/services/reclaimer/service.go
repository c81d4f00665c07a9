// Package reclaimer deletes transient source artifacts after a grace
// period. Deletions are persisted as CleanupTask records and executed by
// a cron-driven sweep, so a restart between scheduling and execution
// never loses a deletion.
package reclaimer

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
)

// Service schedules and executes deferred artifact deletions.
type Service struct {
	tasks   interfaces.TaskStorage
	files   interfaces.FileStorage
	clock   common.Clock
	logger  arbor.ILogger
	delay   time.Duration
	cron    *cron.Cron
	running bool
}

// NewService creates a new reclaimer service. delay is the grace period
// between scheduling and deletion.
func NewService(tasks interfaces.TaskStorage, files interfaces.FileStorage, clock common.Clock, delay time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		tasks:  tasks,
		files:  files,
		clock:  clock,
		logger: logger,
		delay:  delay,
		cron:   cron.New(),
	}
}

// Schedule records a deferred deletion for the given artifact.
func (s *Service) Schedule(ctx context.Context, jobID, artifactRef string) error {
	if artifactRef == "" {
		return nil
	}

	now := s.clock.Now()
	task := &models.CleanupTask{
		ID:          common.NewID(),
		JobID:       jobID,
		ArtifactRef: artifactRef,
		DueAt:       now.Add(s.delay),
		CreatedAt:   now,
	}
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("artifact", artifactRef).
		Str("due_at", task.DueAt.Format(time.RFC3339)).
		Msg("Artifact cleanup scheduled")
	return nil
}

// Start begins the periodic sweep on the given cron schedule.
func (s *Service) Start(schedule string) error {
	if s.running {
		return fmt.Errorf("reclaimer already running")
	}
	if schedule == "" {
		schedule = "*/5 * * * *"
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("Cleanup sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register cleanup sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", schedule).Msg("Reclaimer started")
	return nil
}

// Stop halts the sweep. Pending tasks remain persisted.
func (s *Service) Stop() {
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Reclaimer stopped")
}

// Sweep deletes all artifacts whose grace period has elapsed. A failed
// deletion keeps its task for the next sweep; a missing artifact is
// treated as already reclaimed.
func (s *Service) Sweep(ctx context.Context) error {
	due, err := s.tasks.ListDueTasks(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to list due cleanup tasks: %w", err)
	}

	for _, task := range due {
		if err := s.files.Delete(ctx, task.ArtifactRef); err != nil {
			s.logger.Warn().
				Err(err).
				Str("task_id", task.ID).
				Str("artifact", task.ArtifactRef).
				Msg("Failed to delete artifact, will retry next sweep")
			continue
		}
		if err := s.tasks.DeleteTask(ctx, task.ID); err != nil {
			s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to remove cleanup task")
			continue
		}
		s.logger.Debug().
			Str("job_id", task.JobID).
			Str("artifact", task.ArtifactRef).
			Msg("Artifact reclaimed")
	}
	return nil
}
