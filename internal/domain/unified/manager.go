// Package unified joins store aggregates, price analysis and match
// suggestions into a queryable, ranked catalog surface.
package unified

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/matching"
	"github.com/hargalist/hargalist-api/internal/domain/pricing"
)

// Store is the catalog surface the manager needs.
type Store interface {
	GetUnifiedCatalog(ctx context.Context, category string, limit int) ([]catalog.CatalogEntry, error)
	MergeProducts(ctx context.Context, sourceID, targetID uuid.UUID) error
	ListSuppliers(ctx context.Context) ([]catalog.Supplier, error)
}

// Analyzer is the pricing surface the manager needs.
type Analyzer interface {
	Analyze(ctx context.Context, productID uuid.UUID) (*pricing.PriceAnalysis, error)
	Recommend(ctx context.Context, required []pricing.RequiredProduct, budget *decimal.Decimal) (*pricing.RecommendationSet, error)
}

// Matcher proposes high-confidence merges.
type Matcher interface {
	SuggestAutoMerges(ctx context.Context, limit int) ([]matching.MergeSuggestion, error)
}

// CatalogItem is one row of the generated catalog.
type CatalogItem struct {
	ProductID         uuid.UUID
	Name              string
	Brand             *string
	Category          string
	Size              *decimal.Decimal
	Unit              *string
	BestPrice         decimal.Decimal
	BestSupplier      string
	WorstPrice        decimal.Decimal
	SuppliersCount    int
	SavingsPercentage float64
	PriceTrend        string
	ConfidenceScore   float64
}

// Config tunes catalog generation.
type Config struct {
	MinSuppliers    int
	ScanLimit       int
	AutoMergeFloor  float64
	SuggestionLimit int
}

// DefaultConfig returns the standard catalog settings.
func DefaultConfig() Config {
	return Config{
		MinSuppliers:    2,
		ScanLimit:       500,
		AutoMergeFloor:  0.95,
		SuggestionLimit: 100,
	}
}

// Manager produces and maintains the unified catalog.
type Manager struct {
	store    Store
	analyzer Analyzer
	matcher  Matcher
	search   *SearchIndex
	cfg      Config
	logger   *slog.Logger
}

// NewManager creates a unified catalog manager.
func NewManager(store Store, analyzer Analyzer, matcher Matcher, search *SearchIndex, cfg Config, logger *slog.Logger) *Manager {
	if cfg.MinSuppliers <= 0 {
		cfg.MinSuppliers = 2
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 500
	}
	return &Manager{store: store, analyzer: analyzer, matcher: matcher, search: search, cfg: cfg, logger: logger}
}

// GenerateCatalog builds one item per product carrying in-window prices,
// sorted by savings descending. Products with fewer than minSuppliers
// suppliers are dropped unless includeSingle is set.
func (m *Manager) GenerateCatalog(ctx context.Context, category string, minSuppliers int, includeSingle bool) ([]CatalogItem, error) {
	if minSuppliers <= 0 {
		minSuppliers = m.cfg.MinSuppliers
	}

	entries, err := m.store.GetUnifiedCatalog(ctx, category, m.cfg.ScanLimit)
	if err != nil {
		return nil, err
	}

	items := make([]CatalogItem, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.SuppliersCount < minSuppliers && !includeSingle {
			continue
		}

		item := CatalogItem{
			ProductID:      entry.Product.ID,
			Name:           entry.Product.StandardName,
			Brand:          entry.Product.Brand,
			Category:       entry.Product.Category,
			Size:           entry.Product.Size,
			Unit:           entry.Product.Unit,
			BestPrice:      entry.BestPrice,
			BestSupplier:   entry.BestSupplier,
			WorstPrice:     entry.WorstPrice,
			SuppliersCount: entry.SuppliersCount,
			PriceTrend:     pricing.TrendStable,
		}
		if entry.WorstPrice.GreaterThan(entry.BestPrice) && entry.WorstPrice.IsPositive() {
			s, _ := entry.WorstPrice.Sub(entry.BestPrice).Div(entry.WorstPrice).Mul(decimal.NewFromInt(100)).Float64()
			item.SavingsPercentage = s
		}

		analysis, err := m.analyzer.Analyze(ctx, entry.Product.ID)
		if err != nil {
			m.logger.Warn("catalog item analysis failed",
				slog.String("product", entry.Product.ID.String()),
				slog.Any("error", err))
		} else if analysis != nil {
			item.PriceTrend = analysis.Trend
			item.ConfidenceScore = analysis.DealConfidence
			item.SavingsPercentage = analysis.SavingsPotential
		}

		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].SavingsPercentage > items[j].SavingsPercentage
	})

	if m.search != nil {
		if err := m.search.Rebuild(items); err != nil {
			m.logger.Warn("search index rebuild failed", slog.Any("error", err))
		}
	}
	return items, nil
}

// TopDeals returns the best-saving catalog items at or above minSavings.
func (m *Manager) TopDeals(ctx context.Context, limit int, minSavings float64) ([]CatalogItem, error) {
	if limit <= 0 {
		limit = 10
	}
	items, err := m.GenerateCatalog(ctx, "", m.cfg.MinSuppliers, false)
	if err != nil {
		return nil, err
	}

	var deals []CatalogItem
	for _, item := range items {
		if item.SavingsPercentage >= minSavings {
			deals = append(deals, item)
		}
	}
	if len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}

// SearchCatalog finds catalog items matching the term, ranked by savings and
// then deal confidence.
func (m *Manager) SearchCatalog(ctx context.Context, term, category string, limit int) ([]CatalogItem, error) {
	if m.search == nil {
		return nil, errors.New("search catalog: no index configured")
	}
	if m.search.Size() == 0 {
		if _, err := m.GenerateCatalog(ctx, "", 1, true); err != nil {
			return nil, err
		}
	}

	hits, err := m.search.Search(term, category, limit)
	if err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].SavingsPercentage != hits[j].SavingsPercentage {
			return hits[i].SavingsPercentage > hits[j].SavingsPercentage
		}
		return hits[i].ConfidenceScore > hits[j].ConfidenceScore
	})
	if len(hits) > limit && limit > 0 {
		hits = hits[:limit]
	}
	return hits, nil
}

// CategoryReport aggregates one category.
type CategoryReport struct {
	Category       string
	ProductCount   int
	AverageSavings float64
	TopDeals       []CatalogItem
}

// CategoryAnalysis summarizes every category with its top five deals.
func (m *Manager) CategoryAnalysis(ctx context.Context) ([]CategoryReport, error) {
	items, err := m.GenerateCatalog(ctx, "", 1, true)
	if err != nil {
		return nil, err
	}

	byCategory := map[string]*CategoryReport{}
	for _, item := range items {
		report := byCategory[item.Category]
		if report == nil {
			report = &CategoryReport{Category: item.Category}
			byCategory[item.Category] = report
		}
		report.ProductCount++
		report.AverageSavings += item.SavingsPercentage
		if len(report.TopDeals) < 5 {
			report.TopDeals = append(report.TopDeals, item)
		}
	}

	out := make([]CategoryReport, 0, len(byCategory))
	for _, report := range byCategory {
		if report.ProductCount > 0 {
			report.AverageSavings /= float64(report.ProductCount)
		}
		out = append(out, *report)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// MarketShare is one supplier's slice of best-price wins.
type MarketShare struct {
	Supplier      string
	BestPriceWins int
	SharePercent  float64
	Categories    []string
}

// SupplierMarketShare reports how often each supplier wins the best price and
// across how many categories.
func (m *Manager) SupplierMarketShare(ctx context.Context) ([]MarketShare, error) {
	items, err := m.GenerateCatalog(ctx, "", 1, true)
	if err != nil {
		return nil, err
	}

	wins := map[string]int{}
	categories := map[string]map[string]struct{}{}
	for _, item := range items {
		wins[item.BestSupplier]++
		if categories[item.BestSupplier] == nil {
			categories[item.BestSupplier] = map[string]struct{}{}
		}
		categories[item.BestSupplier][item.Category] = struct{}{}
	}

	out := make([]MarketShare, 0, len(wins))
	for supplier, count := range wins {
		share := MarketShare{Supplier: supplier, BestPriceWins: count}
		if len(items) > 0 {
			share.SharePercent = 100 * float64(count) / float64(len(items))
		}
		for cat := range categories[supplier] {
			share.Categories = append(share.Categories, cat)
		}
		sort.Strings(share.Categories)
		out = append(out, share)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BestPriceWins > out[j].BestPriceWins })
	return out, nil
}

// UpdateCatalogPrices re-evaluates every product's aggregates and rebuilds
// the search index. Returns the number of refreshed items.
func (m *Manager) UpdateCatalogPrices(ctx context.Context) (int, error) {
	items, err := m.GenerateCatalog(ctx, "", 1, true)
	if err != nil {
		return 0, err
	}
	m.logger.Info("catalog prices refreshed", slog.Int("items", len(items)))
	return len(items), nil
}

// MergeStats summarizes one duplicate sweep.
type MergeStats struct {
	Merged       int
	Conflicts    int
	SentToReview int
}

// MergeDuplicates consumes the matcher's suggestions: pairs at or above
// autoThreshold are merged, conflicts are logged and counted, and everything
// below the threshold stays in the review queue.
func (m *Manager) MergeDuplicates(ctx context.Context, autoThreshold float64) (MergeStats, error) {
	if autoThreshold <= 0 {
		autoThreshold = m.cfg.AutoMergeFloor
	}

	suggestions, err := m.matcher.SuggestAutoMerges(ctx, m.cfg.SuggestionLimit)
	if err != nil {
		return MergeStats{}, err
	}

	var stats MergeStats
	for _, s := range suggestions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if s.Score < autoThreshold {
			stats.SentToReview++
			continue
		}
		err := m.store.MergeProducts(ctx, s.SourceID, s.TargetID)
		switch {
		case err == nil:
			stats.Merged++
		case errors.Is(err, catalog.ErrMergeConflict):
			stats.Conflicts++
			m.logger.Warn("merge conflict skipped",
				slog.String("source", s.SourceID.String()),
				slog.String("target", s.TargetID.String()))
		default:
			return stats, err
		}
	}
	return stats, nil
}
