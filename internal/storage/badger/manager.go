package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	job       interfaces.JobStorage
	ledger    interfaces.LedgerStorage
	post      interfaces.PostStorage
	analytics interfaces.AnalyticsStorage
	task      interfaces.TaskStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		job:       NewJobStorage(db, logger),
		ledger:    NewLedgerStorage(db, logger),
		post:      NewPostStorage(db, logger),
		analytics: NewAnalyticsStorage(db, logger),
		task:      NewTaskStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// LedgerStorage returns the Ledger storage interface
func (m *Manager) LedgerStorage() interfaces.LedgerStorage {
	return m.ledger
}

// PostStorage returns the Post storage interface
func (m *Manager) PostStorage() interfaces.PostStorage {
	return m.post
}

// AnalyticsStorage returns the Analytics storage interface
func (m *Manager) AnalyticsStorage() interfaces.AnalyticsStorage {
	return m.analytics
}

// TaskStorage returns the CleanupTask storage interface
func (m *Manager) TaskStorage() interfaces.TaskStorage {
	return m.task
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
