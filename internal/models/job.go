package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a thread-generation job
type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusFetching     JobStatus = "fetching"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusGenerating   JobStatus = "generating"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind identifies the submitted content source
type JobKind string

const (
	JobKindUpload JobKind = "upload"
	JobKindURL    JobKind = "url"
	JobKindTopic  JobKind = "topic"
)

// Progress checkpoints recorded at the start of each pipeline stage.
const (
	ProgressQueued       = 0
	ProgressFetching     = 25
	ProgressTranscribing = 50
	ProgressGenerating   = 75
	ProgressCompleted    = 100
)

// Job represents one unit of content-to-thread work.
//
// Lifecycle:
//   - Created with status queued at submission time
//   - Driven forward by exactly one pipeline execution
//   - Status only moves along allowed edges (see CanTransition); any
//     non-terminal state may jump to failed
//   - Progress never decreases until a terminal state is reached
//
// A job is never deleted while in a non-terminal processing state.
type Job struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Kind         JobKind    `json:"kind"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"` // 0-100
	CurrentStep  string     `json:"current_step"`
	SourceRef    string     `json:"source_ref"` // file path, URL, or topic text depending on Kind
	Instructions string     `json:"instructions,omitempty"`
	Result       *JobResult `json:"result,omitempty"` // populated only when status is completed
	Error        *JobError  `json:"error,omitempty"`  // populated only when status is failed
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   time.Time  `json:"finished_at,omitempty"` // completion or failure time
}

// JobResult holds the generated threads and transcript metadata for a completed job.
type JobResult struct {
	Threads         []Thread `json:"threads"`
	WordCount       int      `json:"word_count,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Topics          []string `json:"topics,omitempty"`
}

// Thread is an ordered list of messages generated from one job,
// publishable as a unit.
type Thread struct {
	Hook     string   `json:"hook"`
	Messages []string `json:"messages"`
}

// JobError captures why a job failed.
// Message is a concise, user-facing description ("Stage: brief cause").
type JobError struct {
	Message  string    `json:"message"`
	FailedAt time.Time `json:"failed_at"`
}

// allowed forward edges of the job state machine
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:       {JobStatusFetching, JobStatusGenerating, JobStatusFailed},
	JobStatusFetching:     {JobStatusTranscribing, JobStatusFailed},
	JobStatusTranscribing: {JobStatusGenerating, JobStatusFailed},
	JobStatusGenerating:   {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether moving from to next is an allowed edge.
// Terminal states have no outgoing edges.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance moves the job to the given status, updating progress and the
// step label. Returns an error on a disallowed edge or a progress regression.
func (j *Job) Advance(to JobStatus, progress int, step string) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("invalid job transition: %s -> %s", j.Status, to)
	}
	if progress < j.Progress {
		return fmt.Errorf("progress regression: %d -> %d", j.Progress, progress)
	}
	now := time.Now()
	j.Status = to
	j.Progress = progress
	j.CurrentStep = step
	j.UpdatedAt = now
	if to.IsTerminal() {
		j.FinishedAt = now
	}
	return nil
}

// Fail transitions the job to failed from any non-terminal state and
// records the error. Progress is left at its last recorded value.
func (j *Job) Fail(message string) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %s already terminal (%s)", j.ID, j.Status)
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.CurrentStep = "failed"
	j.Error = &JobError{Message: message, FailedAt: now}
	j.UpdatedAt = now
	j.FinishedAt = now
	return nil
}
