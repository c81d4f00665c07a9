// Package interfaces provides service and storage interfaces for
// dependency injection.
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/threadforge/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrForbidden is returned when a record exists but belongs to another owner.
var ErrForbidden = errors.New("access denied")

// JobListOptions controls filtering and pagination for job listings.
type JobListOptions struct {
	Status models.JobStatus
	Kind   models.JobKind
	Limit  int
	Offset int
}

// JobStorage persists job records.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, ownerID string, opts *JobListOptions) ([]*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// LedgerStorage persists per-owner credit ledgers.
type LedgerStorage interface {
	GetLedger(ctx context.Context, ownerID string) (*models.TenantLedger, error)
	SaveLedger(ctx context.Context, ledger *models.TenantLedger) error
}

// PostStorage persists published post records.
type PostStorage interface {
	SavePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	ListPostsByOwner(ctx context.Context, ownerID string) ([]*models.Post, error)
}

// AnalyticsStorage persists cached analytics aggregates.
type AnalyticsStorage interface {
	GetEntry(ctx context.Context, ownerID string) (*models.AnalyticsEntry, error)
	SaveEntry(ctx context.Context, entry *models.AnalyticsEntry) error
	DeleteEntry(ctx context.Context, ownerID string) error
}

// TaskStorage persists deferred cleanup tasks.
type TaskStorage interface {
	SaveTask(ctx context.Context, task *models.CleanupTask) error
	ListDueTasks(ctx context.Context, dueBefore time.Time) ([]*models.CleanupTask, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// StorageManager provides access to all storage implementations.
type StorageManager interface {
	JobStorage() JobStorage
	LedgerStorage() LedgerStorage
	PostStorage() PostStorage
	AnalyticsStorage() AnalyticsStorage
	TaskStorage() TaskStorage
	Close() error
}
