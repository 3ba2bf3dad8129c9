// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hargalist/hargalist-api/internal/domain/matching"
	"github.com/hargalist/hargalist-api/internal/domain/unified"
)

// CatalogRefresher regenerates catalog aggregates and consumes merge
// suggestions.
type CatalogRefresher interface {
	UpdateCatalogPrices(ctx context.Context) (int, error)
	MergeDuplicates(ctx context.Context, autoThreshold float64) (unified.MergeStats, error)
}

// MatchSweeper scans the product corpus for duplicate candidates.
type MatchSweeper interface {
	ProcessAll(ctx context.Context, batchSize int) (matching.ProcessStats, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	catalog CatalogRefresher
	matcher MatchSweeper
	logger  *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(catalog CatalogRefresher, matcher MatchSweeper, logger *slog.Logger) *Scheduler {
	// Standard 5-field format, seconds disabled.
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:    c,
		catalog: catalog,
		matcher: matcher,
		logger:  logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Duplicate match sweep: runs daily at 1:00 AM, before the catalog
	// refresh consumes its suggestions.
	if _, err := s.cron.AddFunc("0 1 * * *", s.sweepMatches); err != nil {
		return err
	}

	// Catalog refresh: runs daily at 2:00 AM
	if _, err := s.cron.AddFunc("0 2 * * *", s.refreshCatalog); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers both jobs (for testing/admin).
func (s *Scheduler) RunNow() {
	go func() {
		s.sweepMatches()
		s.refreshCatalog()
	}()
}

// sweepMatches compares every active product pair and records candidates.
func (s *Scheduler) sweepMatches() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	s.logger.Info("starting daily match sweep")

	stats, err := s.matcher.ProcessAll(ctx, 200)
	if err != nil {
		s.logger.Error("match sweep failed", slog.Any("error", err))
		return
	}

	s.logger.Info("daily match sweep completed",
		slog.Int("processed", stats.Processed),
		slog.Int("recorded", stats.Recorded),
		slog.Int("skipped", stats.Skipped),
		slog.Int("errors", stats.Errors),
	)
}

// refreshCatalog merges confirmed duplicates and rebuilds catalog aggregates.
func (s *Scheduler) refreshCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	s.logger.Info("starting daily catalog refresh")

	merges, err := s.catalog.MergeDuplicates(ctx, 0)
	if err != nil {
		s.logger.Warn("duplicate merge pass failed", slog.Any("error", err))
	} else {
		s.logger.Info("duplicate merge pass completed",
			slog.Int("merged", merges.Merged),
			slog.Int("conflicts", merges.Conflicts),
			slog.Int("sent_to_review", merges.SentToReview),
		)
	}

	items, err := s.catalog.UpdateCatalogPrices(ctx)
	if err != nil {
		s.logger.Error("catalog refresh failed", slog.Any("error", err))
		return
	}

	s.logger.Info("daily catalog refresh completed",
		slog.Int("items", items),
	)
}
