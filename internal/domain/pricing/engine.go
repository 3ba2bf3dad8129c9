// Package pricing normalizes supplier prices to base units and derives
// best-price comparisons, supplier scorecards, market trends and procurement
// recommendations.
package pricing

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/matching"
	"github.com/hargalist/hargalist-api/pkg/unit"
)

// Store is the catalog surface the engine reads from.
type Store interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*catalog.MasterProduct, error)
	GetCurrentPrices(ctx context.Context, productID uuid.UUID, window time.Duration) ([]catalog.SupplierPrice, error)
	GetPriceHistory(ctx context.Context, productID uuid.UUID, since time.Time) ([]catalog.PriceHistoryEntry, error)
	GetHistorySince(ctx context.Context, since time.Time) ([]catalog.PriceHistoryEntry, error)
	GetSupplierHistory(ctx context.Context, supplier string, since time.Time) ([]catalog.PriceHistoryEntry, error)
	GetSupplier(ctx context.Context, name string) (*catalog.Supplier, error)
	GetUnifiedCatalog(ctx context.Context, category string, limit int) ([]catalog.CatalogEntry, error)
	SearchProducts(ctx context.Context, term, category string, limit int) ([]catalog.MasterProduct, error)
}

// Config tunes windows and thresholds.
type Config struct {
	PriceWindow        time.Duration
	TrendWindow        time.Duration
	VolatilityWindow   time.Duration
	MinDealSavings     float64
	RecommendationTTL  time.Duration
	CatalogScanLimit   int
	TrendCutoffPercent float64
}

// DefaultConfig returns the standard windows.
func DefaultConfig() Config {
	return Config{
		PriceWindow:        30 * 24 * time.Hour,
		TrendWindow:        30 * 24 * time.Hour,
		VolatilityWindow:   90 * 24 * time.Hour,
		MinDealSavings:     5,
		RecommendationTTL:  168 * time.Hour,
		CatalogScanLimit:   500,
		TrendCutoffPercent: 2,
	}
}

// Trend labels.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// SupplierQuote is one supplier's normalized offer for a product.
type SupplierQuote struct {
	Supplier  string
	Price     decimal.Decimal
	UnitPrice decimal.Decimal
}

// PriceAnalysis is the per-product comparison result. Best, Worst, Mean,
// Median and Range all describe the unit-normalized series, so quotes for
// differently sized packs stay comparable.
type PriceAnalysis struct {
	ProductID            uuid.UUID
	ProductName          string
	Category             string
	Best                 SupplierQuote
	Worst                SupplierQuote
	Mean                 decimal.Decimal
	Median               decimal.Decimal
	Range                decimal.Decimal
	SavingsPotential     float64
	Trend                string
	CompetitiveSuppliers []SupplierQuote
	DealConfidence       float64
	SupplierCount        int
}

// Engine computes price analyses over the catalog store.
type Engine struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates a pricing engine.
func NewEngine(store Store, cfg Config, logger *slog.Logger) *Engine {
	if cfg.CatalogScanLimit <= 0 {
		cfg.CatalogScanLimit = 500
	}
	if cfg.TrendCutoffPercent <= 0 {
		cfg.TrendCutoffPercent = 2
	}
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// unitPrice converts a raw price to price per base unit. The observation's
// own pack size wins over the master product's, so differently sized packs of
// the same product compare fairly. Observations without a recognized size are
// priced as-is. The bool result is false when the size cannot be normalized.
func unitPrice(product *catalog.MasterProduct, obs catalog.SupplierPrice) (decimal.Decimal, bool) {
	size, u := obs.Size, obs.Unit
	if size == nil || u == nil {
		size, u = product.Size, product.Unit
	}
	if size == nil || u == nil {
		return obs.Price, true
	}
	base, _, err := unit.ToBase(*size, *u)
	if err != nil || !base.IsPositive() {
		return decimal.Zero, false
	}
	return obs.Price.Div(base), true
}

// Analyze produces a PriceAnalysis for the product, or nil when no usable
// in-window prices exist.
func (e *Engine) Analyze(ctx context.Context, productID uuid.UUID) (*PriceAnalysis, error) {
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	prices, err := e.store.GetCurrentPrices(ctx, productID, e.cfg.PriceWindow)
	if err != nil {
		return nil, err
	}

	quotes := make([]SupplierQuote, 0, len(prices))
	for _, p := range prices {
		up, ok := unitPrice(product, p)
		if !ok {
			continue
		}
		quotes = append(quotes, SupplierQuote{Supplier: p.SupplierName, Price: p.Price, UnitPrice: up})
	}
	if len(quotes) == 0 {
		return nil, nil
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].UnitPrice.LessThan(quotes[j].UnitPrice) })

	best, worst := quotes[0], quotes[len(quotes)-1]

	sum := decimal.Zero
	for _, q := range quotes {
		sum = sum.Add(q.UnitPrice)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(quotes))))

	var median decimal.Decimal
	mid := len(quotes) / 2
	if len(quotes)%2 == 1 {
		median = quotes[mid].UnitPrice
	} else {
		median = quotes[mid-1].UnitPrice.Add(quotes[mid].UnitPrice).Div(decimal.NewFromInt(2))
	}

	savings := 0.0
	if worst.UnitPrice.GreaterThan(best.UnitPrice) && worst.UnitPrice.IsPositive() {
		s, _ := worst.UnitPrice.Sub(best.UnitPrice).Div(worst.UnitPrice).Mul(decimal.NewFromInt(100)).Float64()
		savings = s
	}

	trend, err := e.productTrend(ctx, productID)
	if err != nil {
		return nil, err
	}

	top := quotes
	if len(top) > 3 {
		top = top[:3]
	}

	analysis := &PriceAnalysis{
		ProductID:            product.ID,
		ProductName:          product.StandardName,
		Category:             product.Category,
		Best:                 best,
		Worst:                worst,
		Mean:                 mean,
		Median:               median,
		Range:                worst.UnitPrice.Sub(best.UnitPrice),
		SavingsPotential:     savings,
		Trend:                trend,
		CompetitiveSuppliers: top,
		SupplierCount:        len(quotes),
	}
	analysis.DealConfidence = e.dealConfidence(len(quotes), savings, trend)
	return analysis, nil
}

func (e *Engine) productTrend(ctx context.Context, productID uuid.UUID) (string, error) {
	history, err := e.store.GetPriceHistory(ctx, productID, time.Now().UTC().Add(-e.cfg.TrendWindow))
	if err != nil {
		return "", err
	}
	return e.classifyTrend(history), nil
}

// classifyTrend maps the mean change percentage onto a label. Fewer than two
// samples is stable by definition.
func (e *Engine) classifyTrend(history []catalog.PriceHistoryEntry) string {
	var changes []float64
	for _, h := range history {
		if h.ChangePercentage == nil {
			continue
		}
		c, _ := h.ChangePercentage.Float64()
		changes = append(changes, c)
	}
	if len(changes) < 2 {
		return TrendStable
	}

	sum := 0.0
	for _, c := range changes {
		sum += c
	}
	avg := sum / float64(len(changes))
	switch {
	case avg > e.cfg.TrendCutoffPercent:
		return TrendIncreasing
	case avg < -e.cfg.TrendCutoffPercent:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// dealConfidence weighs supplier coverage, savings plausibility and trend.
// Savings beyond 50% start reading like data errors and are discounted.
func (e *Engine) dealConfidence(suppliers int, savings float64, trend string) float64 {
	supplierFactor := math.Min(float64(suppliers)/5, 1)

	var savingsFactor float64
	if savings <= 50 {
		savingsFactor = savings / 50
	} else {
		savingsFactor = math.Max(0.5, 1-(savings-50)/100)
	}

	trendFactor := 0.7
	if trend == TrendStable || trend == TrendDecreasing {
		trendFactor = 1.0
	}

	c := 0.3*supplierFactor + 0.4*savingsFactor + 0.3*trendFactor
	return math.Min(math.Max(c, 0), 1)
}

// Deal is one best-deals report row.
type Deal struct {
	Analysis PriceAnalysis
}

// BestDeals enumerates catalog items with savings at or above minSavings,
// best savings first. Per-product analysis failures are logged and skipped.
func (e *Engine) BestDeals(ctx context.Context, limit int, minSavings float64) ([]Deal, error) {
	if limit <= 0 {
		limit = 20
	}
	if minSavings <= 0 {
		minSavings = e.cfg.MinDealSavings
	}

	entries, err := e.store.GetUnifiedCatalog(ctx, "", e.cfg.CatalogScanLimit)
	if err != nil {
		return nil, err
	}

	var deals []Deal
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		analysis, err := e.Analyze(ctx, entry.Product.ID)
		if err != nil {
			e.logger.Warn("deal analysis failed",
				slog.String("product", entry.Product.ID.String()),
				slog.Any("error", err))
			continue
		}
		if analysis == nil || analysis.SavingsPotential < minSavings {
			continue
		}
		deals = append(deals, Deal{Analysis: *analysis})
	}

	sort.Slice(deals, func(i, j int) bool {
		return deals[i].Analysis.SavingsPotential > deals[j].Analysis.SavingsPotential
	})
	if len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}

// CategoryShare is the per-category slice of a supplier scorecard.
type CategoryShare struct {
	Category        string
	ProductCount    int
	BestPriceCount  int
	Competitiveness float64
}

// SupplierAnalysis is the full supplier scorecard.
type SupplierAnalysis struct {
	Supplier        catalog.Supplier
	ProductCount    int
	BestPriceCount  int
	Competitiveness float64
	Categories      []CategoryShare
	Volatility      float64
	Strengths       []string
	Weaknesses      []string
}

// AnalyzeSupplier scores one supplier: how often it wins the best normalized
// price, per-category breakdown, 90-day volatility, and derived strengths
// and weaknesses.
func (e *Engine) AnalyzeSupplier(ctx context.Context, name string) (*SupplierAnalysis, error) {
	supplier, err := e.store.GetSupplier(ctx, name)
	if err != nil {
		return nil, err
	}

	entries, err := e.store.GetUnifiedCatalog(ctx, "", e.cfg.CatalogScanLimit)
	if err != nil {
		return nil, err
	}

	analysis := &SupplierAnalysis{Supplier: *supplier}
	byCategory := map[string]*CategoryShare{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prices, err := e.store.GetCurrentPrices(ctx, entry.Product.ID, e.cfg.PriceWindow)
		if err != nil {
			e.logger.Warn("supplier analysis: prices unavailable",
				slog.String("product", entry.Product.ID.String()),
				slog.Any("error", err))
			continue
		}

		// Wins are decided on unit prices so a big pack with a better
		// per-unit rate beats a cheaper small pack. Quotes whose size cannot
		// be normalized are left out of the contest.
		carries := false
		wins := true
		var own decimal.Decimal
		for _, p := range prices {
			if p.SupplierName != name {
				continue
			}
			if up, ok := unitPrice(&entry.Product, p); ok {
				carries = true
				own = up
			}
			break
		}
		if !carries {
			continue
		}
		for _, p := range prices {
			if p.SupplierName == name {
				continue
			}
			if up, ok := unitPrice(&entry.Product, p); ok && up.LessThan(own) {
				wins = false
				break
			}
		}

		analysis.ProductCount++
		share := byCategory[entry.Product.Category]
		if share == nil {
			share = &CategoryShare{Category: entry.Product.Category}
			byCategory[entry.Product.Category] = share
		}
		share.ProductCount++
		if wins {
			analysis.BestPriceCount++
			share.BestPriceCount++
		}
	}

	if analysis.ProductCount > 0 {
		analysis.Competitiveness = 100 * float64(analysis.BestPriceCount) / float64(analysis.ProductCount)
	}
	for _, share := range byCategory {
		if share.ProductCount > 0 {
			share.Competitiveness = 100 * float64(share.BestPriceCount) / float64(share.ProductCount)
		}
		analysis.Categories = append(analysis.Categories, *share)
	}
	sort.Slice(analysis.Categories, func(i, j int) bool {
		return analysis.Categories[i].Category < analysis.Categories[j].Category
	})

	history, err := e.store.GetSupplierHistory(ctx, name, time.Now().UTC().Add(-e.cfg.VolatilityWindow))
	if err != nil {
		return nil, err
	}
	analysis.Volatility = changeStddev(history)

	analysis.Strengths, analysis.Weaknesses = scorecardNotes(analysis)
	return analysis, nil
}

// changeStddev is the population standard deviation of change percentages,
// zero below two samples.
func changeStddev(history []catalog.PriceHistoryEntry) float64 {
	var changes []float64
	for _, h := range history {
		if h.ChangePercentage == nil {
			continue
		}
		c, _ := h.ChangePercentage.Float64()
		changes = append(changes, c)
	}
	if len(changes) < 2 {
		return 0
	}
	mean := 0.0
	for _, c := range changes {
		mean += c
	}
	mean /= float64(len(changes))

	variance := 0.0
	for _, c := range changes {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(changes))
	return math.Sqrt(variance)
}

func scorecardNotes(a *SupplierAnalysis) (strengths, weaknesses []string) {
	switch {
	case a.Competitiveness >= 70:
		strengths = append(strengths, "high competitiveness")
	case a.Competitiveness <= 30:
		weaknesses = append(weaknesses, "low competitiveness")
	}
	switch {
	case a.Supplier.ReliabilityScore >= 0.8:
		strengths = append(strengths, "reliable data")
	case a.Supplier.ReliabilityScore <= 0.5:
		weaknesses = append(weaknesses, "unreliable data")
	}
	switch {
	case a.Volatility <= 5:
		strengths = append(strengths, "stable pricing")
	case a.Volatility >= 15:
		weaknesses = append(weaknesses, "volatile pricing")
	}
	switch {
	case a.ProductCount >= 100:
		strengths = append(strengths, "wide assortment")
	case a.ProductCount <= 20:
		weaknesses = append(weaknesses, "narrow assortment")
	}
	return strengths, weaknesses
}

// RequiredProduct is one procurement request line.
type RequiredProduct struct {
	Name     string
	Quantity int
}

// Recommendation is one purchase proposal.
type Recommendation struct {
	ProductID    uuid.UUID
	ProductName  string
	Supplier     string
	Price        decimal.Decimal
	Quantity     int
	Total        decimal.Decimal
	Alternatives []SupplierQuote
	Savings      float64
	Confidence   float64
	Reasoning    string
	ExpiresAt    time.Time
}

// RecommendationSet is the full procurement answer.
type RecommendationSet struct {
	Recommendations []Recommendation
	TotalCost       decimal.Decimal
	Unmatched       []string
	GeneratedAt     time.Time
}

// Recommend builds purchase proposals for the requested items, honoring an
// optional budget. Items that cannot be matched or afforded are reported in
// Unmatched rather than failing the whole request.
func (e *Engine) Recommend(ctx context.Context, required []RequiredProduct, budget *decimal.Decimal) (*RecommendationSet, error) {
	now := time.Now().UTC()
	set := &RecommendationSet{TotalCost: decimal.Zero, GeneratedAt: now}

	for _, req := range required {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if req.Quantity < 1 {
			req.Quantity = 1
		}

		product, err := e.bestNameMatch(ctx, req.Name)
		if err != nil {
			return nil, err
		}
		if product == nil {
			set.Unmatched = append(set.Unmatched, req.Name)
			continue
		}

		analysis, err := e.Analyze(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if analysis == nil {
			set.Unmatched = append(set.Unmatched, req.Name)
			continue
		}

		qty := decimal.NewFromInt(int64(req.Quantity))
		quote, ok := e.affordableQuote(analysis, qty, budget, set.TotalCost)
		if !ok {
			set.Unmatched = append(set.Unmatched, req.Name)
			continue
		}

		total := quote.Price.Mul(qty)
		alternatives := make([]SupplierQuote, 0, 3)
		for _, alt := range analysis.CompetitiveSuppliers {
			if alt.Supplier == quote.Supplier {
				continue
			}
			alternatives = append(alternatives, alt)
			if len(alternatives) == 3 {
				break
			}
		}

		set.Recommendations = append(set.Recommendations, Recommendation{
			ProductID:    analysis.ProductID,
			ProductName:  analysis.ProductName,
			Supplier:     quote.Supplier,
			Price:        quote.Price,
			Quantity:     req.Quantity,
			Total:        total,
			Alternatives: alternatives,
			Savings:      analysis.SavingsPotential,
			Confidence:   analysis.DealConfidence,
			Reasoning:    reasoning(analysis, len(alternatives)),
			ExpiresAt:    now.Add(e.cfg.RecommendationTTL),
		})
		set.TotalCost = set.TotalCost.Add(total)
	}

	return set, nil
}

// bestNameMatch searches the catalog and ranks hits by name similarity.
func (e *Engine) bestNameMatch(ctx context.Context, name string) (*catalog.MasterProduct, error) {
	hits, err := e.store.SearchProducts(ctx, name, "", 5)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	best := 0
	bestScore := -1.0
	for i := range hits {
		if score := matching.NameSimilarity(name, hits[i].StandardName); score > bestScore {
			best, bestScore = i, score
		}
	}
	return &hits[best], nil
}

// affordableQuote picks the cheapest competitive supplier that fits the
// remaining budget, or reports that none does.
func (e *Engine) affordableQuote(analysis *PriceAnalysis, qty decimal.Decimal, budget *decimal.Decimal, spent decimal.Decimal) (SupplierQuote, bool) {
	if budget == nil {
		return analysis.Best, true
	}
	remaining := budget.Sub(spent)
	for _, q := range analysis.CompetitiveSuppliers {
		if q.Price.Mul(qty).LessThanOrEqual(remaining) {
			return q, true
		}
	}
	return SupplierQuote{}, false
}

// reasoning assembles the explanation from the factors that actually fired.
func reasoning(analysis *PriceAnalysis, alternatives int) string {
	var parts []string
	if analysis.SavingsPotential >= 20 {
		parts = append(parts, "significant savings over the worst offer")
	} else if analysis.SavingsPotential >= 5 {
		parts = append(parts, "cheaper than most suppliers")
	}
	if alternatives >= 2 {
		parts = append(parts, "multiple fallback suppliers available")
	}
	switch analysis.Trend {
	case TrendStable:
		parts = append(parts, "prices have been stable")
	case TrendDecreasing:
		parts = append(parts, "prices are trending down")
	}
	if len(parts) == 0 {
		return "best available price"
	}
	return strings.Join(parts, "; ")
}

// MarketTrendReport is the catalog-wide trend summary.
type MarketTrendReport struct {
	AverageChange float64
	TotalChanges  int
	Increases     int
	Decreases     int
	Volatility    string
	OverallTrend  string
}

// MarketTrends summarizes the last 30 days of price history across the whole
// catalog.
func (e *Engine) MarketTrends(ctx context.Context) (*MarketTrendReport, error) {
	history, err := e.store.GetHistorySince(ctx, time.Now().UTC().Add(-e.cfg.TrendWindow))
	if err != nil {
		return nil, err
	}

	report := &MarketTrendReport{}
	sum := 0.0
	for _, h := range history {
		if h.ChangePercentage == nil {
			continue
		}
		c, _ := h.ChangePercentage.Float64()
		report.TotalChanges++
		sum += c
		if c > 0 {
			report.Increases++
		} else if c < 0 {
			report.Decreases++
		}
	}
	if report.TotalChanges > 0 {
		report.AverageChange = sum / float64(report.TotalChanges)
	}

	switch {
	case report.TotalChanges > 100:
		report.Volatility = "high"
	case report.TotalChanges > 50:
		report.Volatility = "medium"
	default:
		report.Volatility = "low"
	}

	switch {
	case report.AverageChange > e.cfg.TrendCutoffPercent:
		report.OverallTrend = TrendIncreasing
	case report.AverageChange < -e.cfg.TrendCutoffPercent:
		report.OverallTrend = TrendDecreasing
	default:
		report.OverallTrend = TrendStable
	}
	return report, nil
}
