package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// LedgerStorage implements the LedgerStorage interface for Badger.
// Keyed by owner id; one ledger record per owner.
type LedgerStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLedgerStorage creates a new LedgerStorage instance
func NewLedgerStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LedgerStorage {
	return &LedgerStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LedgerStorage) GetLedger(ctx context.Context, ownerID string) (*models.TenantLedger, error) {
	var ledger models.TenantLedger
	if err := s.db.Store().Get(ownerID, &ledger); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return &ledger, nil
}

func (s *LedgerStorage) SaveLedger(ctx context.Context, ledger *models.TenantLedger) error {
	if ledger.OwnerID == "" {
		return fmt.Errorf("owner ID is required")
	}
	if err := s.db.Store().Upsert(ledger.OwnerID, ledger); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}
