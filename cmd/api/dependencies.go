package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hargalist/hargalist-api/internal/domain/adapter"
	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/ingest"
	"github.com/hargalist/hargalist-api/internal/domain/matching"
	"github.com/hargalist/hargalist-api/internal/domain/preprocessor"
	"github.com/hargalist/hargalist-api/internal/domain/pricing"
	"github.com/hargalist/hargalist-api/internal/domain/unified"
	"github.com/hargalist/hargalist-api/pkg/config"
	"github.com/hargalist/hargalist-api/pkg/cron"
	"github.com/hargalist/hargalist-api/pkg/db"
	"github.com/hargalist/hargalist-api/pkg/metrics"
	"github.com/hargalist/hargalist-api/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Logger *slog.Logger

	Registry *prometheus.Registry

	// Repository
	CatalogRepo *catalog.Repository

	// Pipeline stages
	Preprocessor *preprocessor.Preprocessor
	Adapter      *adapter.Adapter
	Ingest       *ingest.Service
	FileArchive  storage.Archive

	// Engines
	Matching *matching.Engine
	Pricing  *pricing.Engine
	Unified  *unified.Manager

	Scheduler *cron.Scheduler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initPipeline(); err != nil {
		return nil, fmt.Errorf("failed to init pipeline: %w", err)
	}

	if err := deps.initEngines(); err != nil {
		return nil, fmt.Errorf("failed to init engines: %w", err)
	}

	deps.Scheduler = cron.NewScheduler(deps.Unified, deps.Matching, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	if err := db.Migrate(d.Config.Database, d.Logger); err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, d.Config.Database, d.Logger)
	if err != nil {
		return err
	}
	d.Pool = pool
	d.CatalogRepo = catalog.NewRepository(pool, d.Logger)

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initPipeline initializes the extraction, adaptation and ingest stages
func (d *Dependencies) initPipeline() error {
	d.Preprocessor = preprocessor.New(preprocessor.Config{
		MaxScanRows:  d.Config.Extraction.MaxScanRows,
		MaxScanCols:  d.Config.Extraction.MaxScanCols,
		SheetTimeout: time.Duration(d.Config.Extraction.SheetTimeoutSeconds) * time.Second,
	}, d.Logger)
	d.Adapter = adapter.New(d.Logger)

	ingestMetrics := metrics.NewIngest(d.Registry)
	d.Ingest = ingest.NewService(d.Preprocessor, d.Adapter, d.CatalogRepo, ingestMetrics, ingest.Config{
		Workers:      d.Config.Ingest.Workers,
		MaxFileBytes: int64(d.Config.Ingest.MaxFileMB) << 20,
	}, d.Logger)

	archive, err := storage.New(&storage.Config{LocalPath: d.Config.Ingest.ArchiveDir})
	if err != nil {
		return fmt.Errorf("init file archive: %w", err)
	}
	d.FileArchive = archive

	d.Logger.Info("ingest pipeline initialized")
	return nil
}

// initEngines initializes the matching, pricing and unified catalog engines
func (d *Dependencies) initEngines() error {
	d.Matching = matching.NewEngine(d.CatalogRepo, matching.Config{
		FuzzyThreshold: d.Config.Matching.FuzzyThreshold,
		ExactThreshold: d.Config.Matching.ExactThreshold,
		CandidateLimit: d.Config.Matching.CandidateLimit,
	}, d.Logger)

	d.Pricing = pricing.NewEngine(d.CatalogRepo, pricing.Config{
		PriceWindow:       time.Duration(d.Config.Pricing.PriceWindowDays) * 24 * time.Hour,
		TrendWindow:       time.Duration(d.Config.Pricing.TrendWindowDays) * 24 * time.Hour,
		VolatilityWindow:  time.Duration(d.Config.Pricing.VolatilityWindowDays) * 24 * time.Hour,
		MinDealSavings:    d.Config.Pricing.MinDealSavings,
		RecommendationTTL: time.Duration(d.Config.Pricing.RecommendationTTLHours) * time.Hour,
		CatalogScanLimit:  d.Config.Pricing.CatalogScanLimit,
	}, d.Logger)

	search, err := unified.NewSearchIndex()
	if err != nil {
		return err
	}
	d.Unified = unified.NewManager(d.CatalogRepo, d.Pricing, d.Matching, search, unified.Config{
		ScanLimit:      d.Config.Pricing.CatalogScanLimit,
		AutoMergeFloor: d.Config.Matching.ExactThreshold,
	}, d.Logger)

	d.Logger.Info("engines initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	d.Logger.Info("cleanup completed")
}
