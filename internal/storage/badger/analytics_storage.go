package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AnalyticsStorage implements the AnalyticsStorage interface for Badger.
// One cache entry per owner, keyed by owner id.
type AnalyticsStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAnalyticsStorage creates a new AnalyticsStorage instance
func NewAnalyticsStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AnalyticsStorage {
	return &AnalyticsStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AnalyticsStorage) GetEntry(ctx context.Context, ownerID string) (*models.AnalyticsEntry, error) {
	var entry models.AnalyticsEntry
	if err := s.db.Store().Get(ownerID, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analytics entry: %w", err)
	}
	return &entry, nil
}

func (s *AnalyticsStorage) SaveEntry(ctx context.Context, entry *models.AnalyticsEntry) error {
	if entry.OwnerID == "" {
		return fmt.Errorf("owner ID is required")
	}
	if err := s.db.Store().Upsert(entry.OwnerID, entry); err != nil {
		return fmt.Errorf("failed to save analytics entry: %w", err)
	}
	return nil
}

func (s *AnalyticsStorage) DeleteEntry(ctx context.Context, ownerID string) error {
	err := s.db.Store().Delete(ownerID, &models.AnalyticsEntry{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete analytics entry: %w", err)
	}
	return nil
}
