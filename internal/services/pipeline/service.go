// Package pipeline drives submitted jobs through the
// fetch -> transcribe -> generate -> complete state machine.
//
// Submission returns a job id immediately; the stages run on a detached
// goroutine with no join point. Each stage persists its status and
// progress before starting work, so a crash mid-stage leaves the job at
// the last recorded step. There is no job-level retry and no resume
// policy for jobs stranded by a crash.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
	"github.com/ternarybob/threadforge/internal/services/ledger"
)

// AdmissionController gates submissions and records completed work.
type AdmissionController interface {
	Admit(ctx context.Context, ownerID string) (*ledger.Reservation, error)
	Credit(ctx context.Context, ownerID string) error
}

// CleanupScheduler records deferred deletion of transient artifacts.
type CleanupScheduler interface {
	Schedule(ctx context.Context, jobID, artifactRef string) error
}

// SubmitRequest describes one job submission.
type SubmitRequest struct {
	OwnerID      string         `json:"owner_id" validate:"required"`
	Kind         models.JobKind `json:"kind" validate:"required,oneof=upload url topic"`
	Source       string         `json:"source" validate:"required"`
	Instructions string         `json:"instructions" validate:"max=2000"`
}

// Service is the pipeline orchestrator.
type Service struct {
	jobs        interfaces.JobStorage
	admission   AdmissionController
	fetcher     interfaces.Fetcher
	transcriber interfaces.Transcriber
	generator   interfaces.Generator
	cleanup     CleanupScheduler
	logger      arbor.ILogger
	validate    *validator.Validate

	durationLimitSeconds int
	transcribeRetryDelay time.Duration
}

// NewService creates a new pipeline orchestrator
func NewService(
	jobs interfaces.JobStorage,
	admission AdmissionController,
	fetcher interfaces.Fetcher,
	transcriber interfaces.Transcriber,
	generator interfaces.Generator,
	cleanup CleanupScheduler,
	config *common.PipelineConfig,
	logger arbor.ILogger,
) (*Service, error) {
	retryDelay, err := time.ParseDuration(config.TranscribeRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid transcribe retry delay: %w", err)
	}

	return &Service{
		jobs:                 jobs,
		admission:            admission,
		fetcher:              fetcher,
		transcriber:          transcriber,
		generator:            generator,
		cleanup:              cleanup,
		logger:               logger,
		validate:             validator.New(),
		durationLimitSeconds: config.DurationLimitSeconds,
		transcribeRetryDelay: retryDelay,
	}, nil
}

// Submit validates the request, checks admission, persists a queued job
// and starts the detached pipeline execution. The job id is returned
// immediately; no result is delivered synchronously.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("invalid submission: %w", err)
	}

	if _, err := s.admission.Admit(ctx, req.OwnerID); err != nil {
		return "", err
	}

	now := time.Now()
	job := &models.Job{
		ID:           common.NewID(),
		OwnerID:      req.OwnerID,
		Kind:         req.Kind,
		Status:       models.JobStatusQueued,
		Progress:     models.ProgressQueued,
		CurrentStep:  "queued",
		SourceRef:    req.Source,
		Instructions: req.Instructions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("owner_id", job.OwnerID).
		Str("kind", string(job.Kind)).
		Msg("Job submitted")

	// Detached execution; the request context must not cancel the pipeline.
	go s.run(context.Background(), job)

	return job.ID, nil
}

// run executes the pipeline stages for one job. Exactly one run drives a
// given job; the job record is never mutated elsewhere while non-terminal.
func (s *Service) run(ctx context.Context, job *models.Job) {
	var artifactRef string

	err := func() error {
		input := job.SourceRef
		// Transcript metadata is held locally so a later stage failure
		// never persists a result on a failed job.
		var result *models.JobResult

		if job.Kind != models.JobKindTopic {
			artifact, err := s.fetchStage(ctx, job)
			if err != nil {
				return err
			}
			artifactRef = artifact.Ref

			transcript, err := s.transcribeStage(ctx, job, artifact.Ref)
			if err != nil {
				return err
			}
			input = transcript.Text
			result = &models.JobResult{
				WordCount:       transcript.WordCount,
				DurationSeconds: transcript.DurationSeconds,
				Summary:         transcript.Summary,
				Topics:          transcript.Topics,
			}
		}

		threads, err := s.generateStage(ctx, job, input)
		if err != nil {
			return err
		}

		return s.completeStage(ctx, job, result, threads)
	}()

	if err != nil {
		s.failJob(ctx, job, err)
	} else {
		if err := s.admission.Credit(ctx, job.OwnerID); err != nil {
			// The job is already complete; crediting is not retried.
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to credit completed job")
		}
	}

	if artifactRef != "" {
		if err := s.cleanup.Schedule(ctx, job.ID, artifactRef); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to schedule artifact cleanup")
		}
	}
}

// fetchStage resolves the source to a transient local artifact.
func (s *Service) fetchStage(ctx context.Context, job *models.Job) (*interfaces.Artifact, error) {
	if err := s.advance(ctx, job, models.JobStatusFetching, models.ProgressFetching, "fetching source"); err != nil {
		return nil, err
	}

	artifact, err := s.fetcher.Fetch(ctx, job.SourceRef, s.durationLimitSeconds)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return artifact, nil
}

// transcribeStage transcribes the artifact, retrying the call once after
// a fixed delay before escalating to job failure. The retry is stage
// local; there is no job-level retry.
func (s *Service) transcribeStage(ctx context.Context, job *models.Job, artifactRef string) (*interfaces.Transcript, error) {
	if err := s.advance(ctx, job, models.JobStatusTranscribing, models.ProgressTranscribing, "transcribing audio"); err != nil {
		return nil, err
	}

	transcript, err := s.transcriber.Transcribe(ctx, artifactRef)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Dur("retry_delay", s.transcribeRetryDelay).
			Msg("Transcription failed, retrying once")
		time.Sleep(s.transcribeRetryDelay)

		transcript, err = s.transcriber.Transcribe(ctx, artifactRef)
		if err != nil {
			return nil, fmt.Errorf("transcribe: %w", err)
		}
	}
	return transcript, nil
}

// generateStage produces thread candidates from the transcript or topic.
func (s *Service) generateStage(ctx context.Context, job *models.Job, input string) ([]models.Thread, error) {
	if err := s.advance(ctx, job, models.JobStatusGenerating, models.ProgressGenerating, "generating threads"); err != nil {
		return nil, err
	}

	threads, err := s.generator.Generate(ctx, input, job.Instructions)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if len(threads) == 0 {
		return nil, fmt.Errorf("generate: no threads produced")
	}
	return threads, nil
}

// completeStage attaches the result and marks the job completed. On a
// persistence failure the in-memory job is rolled back to its pre-advance
// state so failJob can still record a terminal failure.
func (s *Service) completeStage(ctx context.Context, job *models.Job, result *models.JobResult, threads []models.Thread) error {
	if result == nil {
		result = &models.JobResult{}
	}
	result.Threads = threads

	prevStatus := job.Status
	prevProgress := job.Progress
	prevStep := job.CurrentStep

	if err := job.Advance(models.JobStatusCompleted, models.ProgressCompleted, "completed"); err != nil {
		return err
	}
	job.Result = result

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		job.Status = prevStatus
		job.Progress = prevProgress
		job.CurrentStep = prevStep
		job.FinishedAt = time.Time{}
		job.Result = nil
		return fmt.Errorf("failed to persist completed job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("threads", len(threads)).
		Msg("Job completed")
	return nil
}

// advance persists the stage transition before the stage begins work.
func (s *Service) advance(ctx context.Context, job *models.Job, to models.JobStatus, progress int, step string) error {
	if err := job.Advance(to, progress, step); err != nil {
		return err
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job stage %s: %w", to, err)
	}
	s.logger.Debug().
		Str("job_id", job.ID).
		Str("status", string(to)).
		Int("progress", progress).
		Msg("Job stage started")
	return nil
}

// failJob transitions the job to failed with a structured error.
func (s *Service) failJob(ctx context.Context, job *models.Job, cause error) {
	if err := job.Fail(cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
		return
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist failed job")
		return
	}

	s.logger.Warn().
		Str("job_id", job.ID).
		Str("error", cause.Error()).
		Msg("Job failed")
}

// GetStatus returns one job after an ownership check.
func (s *Service) GetStatus(ctx context.Context, ownerID, jobID string) (*models.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, interfaces.ErrForbidden
	}
	return job, nil
}

// ListJobs returns the owner's jobs with optional filtering and pagination.
func (s *Service) ListJobs(ctx context.Context, ownerID string, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return s.jobs.ListJobs(ctx, ownerID, opts)
}

// DeleteJob removes a terminal job. Jobs still being processed cannot be
// deleted.
func (s *Service) DeleteJob(ctx context.Context, ownerID, jobID string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OwnerID != ownerID {
		return interfaces.ErrForbidden
	}
	if !job.Status.IsTerminal() {
		return fmt.Errorf("job %s is still processing (%s)", jobID, job.Status)
	}
	return s.jobs.DeleteJob(ctx, jobID)
}
