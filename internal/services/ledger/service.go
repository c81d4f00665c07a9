// Package ledger implements per-tenant credit admission control.
//
// Admission and crediting are deliberately decoupled: Admit never reserves
// a credit slot, and the increment happens only when a job completes. A
// burst of submissions can therefore be admitted before any of them
// increments usage; that window is an accepted trade-off, not a defect.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
	"github.com/ternarybob/threadforge/internal/services/features"
)

// Reservation is the successful result of an admission check.
type Reservation struct {
	OwnerID     string    `json:"owner_id"`
	Tier        string    `json:"tier"`
	CreditsUsed int       `json:"credits_used"`
	CreditsMax  int       `json:"credits_max"`
	ResetDate   time.Time `json:"reset_date"`
}

// QuotaExceededError rejects an admission at or above the credit cap.
type QuotaExceededError struct {
	ResetDate   time.Time
	UpgradeHint string
	CreditsMax  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly credit limit of %d reached, resets %s", e.CreditsMax, e.ResetDate.Format("2006-01-02"))
}

// Service manages tenant credit ledgers.
//
// All read-modify-write sequences on a ledger run under that owner's
// mutex, which makes the lazy monthly reset idempotent and protects the
// completion-time increment from lost updates under concurrent
// completions. The guard is process-local; the core assumes a single
// instance owns ledger mutation (see the storage relocation note in
// DESIGN.md for horizontal scaling).
type Service struct {
	storage interfaces.LedgerStorage
	catalog *features.Catalog
	clock   common.Clock
	logger  arbor.ILogger

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// NewService creates a new ledger service
func NewService(storage interfaces.LedgerStorage, catalog *features.Catalog, clock common.Clock, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		catalog: catalog,
		clock:   clock,
		logger:  logger,
		owners:  make(map[string]*sync.Mutex),
	}
}

// ownerLock returns the mutex guarding one owner's ledger.
func (s *Service) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.owners[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		s.owners[ownerID] = lock
	}
	return lock
}

// Admit checks whether the owner may submit a new job.
//
// The ledger is created on first use from the default tier. If the reset
// date has passed, usage is zeroed and the reset date advanced to the
// first day of the next month before the cap comparison; a concurrent
// admission observing the already-advanced date will not reset again.
// Rejection carries the effective reset date and an upgrade hint and
// performs no mutation beyond the possible reset.
func (s *Service) Admit(ctx context.Context, ownerID string) (*Reservation, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner ID is required")
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	ledger, err := s.loadOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !now.Before(ledger.ResetDate) {
		ledger.CreditsUsed = 0
		ledger.ResetDate = models.NextResetDate(now)
		ledger.UpdatedAt = now
		if err := s.storage.SaveLedger(ctx, ledger); err != nil {
			return nil, fmt.Errorf("failed to apply monthly reset: %w", err)
		}
		s.logger.Info().
			Str("owner_id", ownerID).
			Str("reset_date", ledger.ResetDate.Format("2006-01-02")).
			Msg("Monthly credit reset applied")
	}

	if ledger.CreditsUsed >= ledger.CreditsMax {
		tier := s.catalog.Tier(ledger.Tier)
		hint := ""
		if tier.UpgradeTo != "" {
			hint = fmt.Sprintf("upgrade to the %s tier for more monthly credits", tier.UpgradeTo)
		}
		return nil, &QuotaExceededError{
			ResetDate:   ledger.ResetDate,
			UpgradeHint: hint,
			CreditsMax:  ledger.CreditsMax,
		}
	}

	return &Reservation{
		OwnerID:     ledger.OwnerID,
		Tier:        ledger.Tier,
		CreditsUsed: ledger.CreditsUsed,
		CreditsMax:  ledger.CreditsMax,
		ResetDate:   ledger.ResetDate,
	}, nil
}

// Credit increments the owner's usage by one. Called exactly once per
// completed job by the pipeline orchestrator.
func (s *Service) Credit(ctx context.Context, ownerID string) error {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	ledger, err := s.loadOrCreate(ctx, ownerID)
	if err != nil {
		return err
	}

	ledger.CreditsUsed++
	ledger.UpdatedAt = s.clock.Now()
	if err := s.storage.SaveLedger(ctx, ledger); err != nil {
		return fmt.Errorf("failed to credit ledger: %w", err)
	}

	s.logger.Debug().
		Str("owner_id", ownerID).
		Int("credits_used", ledger.CreditsUsed).
		Int("credits_max", ledger.CreditsMax).
		Msg("Credit recorded")
	return nil
}

// GetLedger returns the owner's ledger, creating it on first use.
func (s *Service) GetLedger(ctx context.Context, ownerID string) (*models.TenantLedger, error) {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()
	return s.loadOrCreate(ctx, ownerID)
}

// loadOrCreate must be called with the owner lock held.
func (s *Service) loadOrCreate(ctx context.Context, ownerID string) (*models.TenantLedger, error) {
	ledger, err := s.storage.GetLedger(ctx, ownerID)
	if err == nil {
		return ledger, nil
	}
	if err != interfaces.ErrNotFound {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	now := s.clock.Now()
	tier := s.catalog.Tier(features.DefaultTier)
	ledger = &models.TenantLedger{
		OwnerID:     ownerID,
		Tier:        tier.Name,
		CreditsUsed: 0,
		CreditsMax:  tier.CreditsMax,
		ResetDate:   models.NextResetDate(now),
		UpdatedAt:   now,
	}
	if err := s.storage.SaveLedger(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	s.logger.Debug().
		Str("owner_id", ownerID).
		Str("tier", ledger.Tier).
		Msg("Ledger created for new owner")
	return ledger, nil
}
