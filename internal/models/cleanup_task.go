package models

import "time"

// CleanupTask is a persisted request to delete a transient source artifact
// after a fixed grace period. Tasks survive process restarts; the reclaimer
// sweep deletes the artifact once DueAt has passed and then removes the task.
type CleanupTask struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	ArtifactRef string    `json:"artifact_ref"`
	DueAt       time.Time `json:"due_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Due reports whether the task is ready to execute at the given time.
func (t *CleanupTask) Due(now time.Time) bool {
	return !now.Before(t.DueAt)
}
