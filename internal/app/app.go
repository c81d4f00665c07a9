package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/services/analytics"
	"github.com/ternarybob/threadforge/internal/services/features"
	"github.com/ternarybob/threadforge/internal/services/fetcher"
	"github.com/ternarybob/threadforge/internal/services/generator"
	"github.com/ternarybob/threadforge/internal/services/ledger"
	"github.com/ternarybob/threadforge/internal/services/pipeline"
	"github.com/ternarybob/threadforge/internal/services/publisher"
	"github.com/ternarybob/threadforge/internal/services/reclaimer"
	"github.com/ternarybob/threadforge/internal/services/social"
	"github.com/ternarybob/threadforge/internal/services/transcriber"
	"github.com/ternarybob/threadforge/internal/storage/badger"
	"github.com/ternarybob/threadforge/internal/storage/files"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	Catalog     *features.Catalog
	FeatureGate *features.Gate

	LedgerService    *ledger.Service
	PipelineService  *pipeline.Service
	PublisherService *publisher.Service
	AnalyticsService *analytics.Service
	Reclaimer        *reclaimer.Service
}

// New wires storage, collaborators and core services from configuration.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	catalog, err := features.LoadCatalog(config.Tiers.Path, logger)
	if err != nil {
		storageManager.Close()
		return nil, err
	}
	gate := features.NewGate(catalog, storageManager.LedgerStorage(), logger)

	clock := common.SystemClock()
	ledgerService := ledger.NewService(storageManager.LedgerStorage(), catalog, clock, logger)

	artifactStorage, err := files.NewStorage(config.Storage.ArtifactDir, logger)
	if err != nil {
		storageManager.Close()
		return nil, err
	}

	reclaimDelay, err := time.ParseDuration(config.Reclaimer.Delay)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("invalid reclaimer delay: %w", err)
	}
	reclaimService := reclaimer.NewService(storageManager.TaskStorage(), artifactStorage, clock, reclaimDelay, logger)

	fetchService := fetcher.NewService(artifactStorage.Dir(), logger)

	transcribeService, err := transcriber.NewService(&config.Transcriber, logger)
	if err != nil {
		storageManager.Close()
		return nil, err
	}

	generateService, err := generator.NewGenerator(ctx, &config.LLM, logger)
	if err != nil {
		storageManager.Close()
		return nil, err
	}

	pipelineService, err := pipeline.NewService(
		storageManager.JobStorage(),
		ledgerService,
		fetchService,
		transcribeService,
		generateService,
		reclaimService,
		&config.Pipeline,
		logger,
	)
	if err != nil {
		storageManager.Close()
		return nil, err
	}

	socialClient, err := social.NewClient(&config.Social, logger)
	if err != nil {
		storageManager.Close()
		return nil, err
	}

	publisherService, err := publisher.NewService(
		storageManager.JobStorage(),
		storageManager.PostStorage(),
		socialClient,
		gate,
		&config.Publisher,
		clock,
		logger,
	)
	if err != nil {
		storageManager.Close()
		return nil, err
	}

	analyticsService, err := analytics.NewService(
		storageManager.PostStorage(),
		storageManager.AnalyticsStorage(),
		socialClient,
		&config.Analytics,
		clock,
		logger,
	)
	if err != nil {
		storageManager.Close()
		return nil, err
	}

	return &App{
		Config:           config,
		Logger:           logger,
		StorageManager:   storageManager,
		Catalog:          catalog,
		FeatureGate:      gate,
		LedgerService:    ledgerService,
		PipelineService:  pipelineService,
		PublisherService: publisherService,
		AnalyticsService: analyticsService,
		Reclaimer:        reclaimService,
	}, nil
}

// Start begins background work (the cleanup sweep).
func (a *App) Start() error {
	return a.Reclaimer.Start(a.Config.Reclaimer.SweepSchedule)
}

// Shutdown stops background work and closes storage.
func (a *App) Shutdown() {
	a.Reclaimer.Stop()
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage cleanly")
	}
	a.Logger.Info().Msg("Shutdown complete")
}
