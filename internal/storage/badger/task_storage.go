package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) SaveTask(ctx context.Context, task *models.CleanupTask) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save cleanup task: %w", err)
	}
	return nil
}

func (s *TaskStorage) ListDueTasks(ctx context.Context, dueBefore time.Time) ([]*models.CleanupTask, error) {
	var tasks []models.CleanupTask
	query := badgerhold.Where("DueAt").Le(dueBefore).SortBy("DueAt")
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list due tasks: %w", err)
	}

	result := make([]*models.CleanupTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

func (s *TaskStorage) DeleteTask(ctx context.Context, taskID string) error {
	err := s.db.Store().Delete(taskID, &models.CleanupTask{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete cleanup task: %w", err)
	}
	return nil
}
