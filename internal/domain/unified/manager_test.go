package unified

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/matching"
	"github.com/hargalist/hargalist-api/internal/domain/pricing"
)

type fakeStore struct {
	entries     []catalog.CatalogEntry
	merged      [][2]uuid.UUID
	mergeErrors map[uuid.UUID]error
}

func (f *fakeStore) GetUnifiedCatalog(_ context.Context, category string, _ int) ([]catalog.CatalogEntry, error) {
	if category == "" {
		return f.entries, nil
	}
	var out []catalog.CatalogEntry
	for _, e := range f.entries {
		if e.Product.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) MergeProducts(_ context.Context, sourceID, targetID uuid.UUID) error {
	if err := f.mergeErrors[sourceID]; err != nil {
		return err
	}
	f.merged = append(f.merged, [2]uuid.UUID{sourceID, targetID})
	return nil
}

func (f *fakeStore) ListSuppliers(_ context.Context) ([]catalog.Supplier, error) {
	return nil, nil
}

type fakeAnalyzer struct {
	analyses map[uuid.UUID]*pricing.PriceAnalysis
	set      *pricing.RecommendationSet
}

func (f *fakeAnalyzer) Analyze(_ context.Context, id uuid.UUID) (*pricing.PriceAnalysis, error) {
	return f.analyses[id], nil
}

func (f *fakeAnalyzer) Recommend(_ context.Context, _ []pricing.RequiredProduct, _ *decimal.Decimal) (*pricing.RecommendationSet, error) {
	return f.set, nil
}

type fakeMatcher struct {
	suggestions []matching.MergeSuggestion
}

func (f *fakeMatcher) SuggestAutoMerges(_ context.Context, _ int) ([]matching.MergeSuggestion, error) {
	return f.suggestions, nil
}

func entry(name, category string, best, worst int64, suppliers int) catalog.CatalogEntry {
	return catalog.CatalogEntry{
		Product: catalog.MasterProduct{
			ID: uuid.New(), StandardName: name, Category: category,
			Status: catalog.StatusActive,
		},
		BestPrice:      decimal.NewFromInt(best),
		WorstPrice:     decimal.NewFromInt(worst),
		BestSupplier:   "cv maju jaya",
		SuppliersCount: suppliers,
	}
}

func testManager(t *testing.T, store Store, analyzer Analyzer, matcher Matcher) *Manager {
	t.Helper()
	search, err := NewSearchIndex()
	require.NoError(t, err)
	return NewManager(store, analyzer, matcher, search, DefaultConfig(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateCatalog_FiltersAndSorts(t *testing.T) {
	multi := entry("beras", "rice_grains", 75000, 80000, 3)
	bigSave := entry("minyak goreng", "cooking_oil", 30000, 40000, 2)
	single := entry("garam", "seasonings", 5000, 5000, 1)
	store := &fakeStore{entries: []catalog.CatalogEntry{multi, bigSave, single}}

	m := testManager(t, store, &fakeAnalyzer{}, &fakeMatcher{})
	items, err := m.GenerateCatalog(context.Background(), "", 2, false)
	require.NoError(t, err)

	require.Len(t, items, 2)
	// 25% savings sorts ahead of 6.25%.
	assert.Equal(t, "minyak goreng", items[0].Name)
	assert.InDelta(t, 25, items[0].SavingsPercentage, 1e-9)
	assert.Equal(t, "beras", items[1].Name)

	withSingles, err := m.GenerateCatalog(context.Background(), "", 2, true)
	require.NoError(t, err)
	assert.Len(t, withSingles, 3)
}

func TestGenerateCatalog_UsesAnalysisWhenAvailable(t *testing.T) {
	e := entry("beras", "rice_grains", 75000, 80000, 3)
	store := &fakeStore{entries: []catalog.CatalogEntry{e}}
	analyzer := &fakeAnalyzer{analyses: map[uuid.UUID]*pricing.PriceAnalysis{
		e.Product.ID: {
			ProductID:        e.Product.ID,
			SavingsPotential: 12.5,
			Trend:            pricing.TrendDecreasing,
			DealConfidence:   0.85,
		},
	}}

	m := testManager(t, store, analyzer, &fakeMatcher{})
	items, err := m.GenerateCatalog(context.Background(), "", 1, true)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, pricing.TrendDecreasing, items[0].PriceTrend)
	assert.InDelta(t, 12.5, items[0].SavingsPercentage, 1e-9)
	assert.InDelta(t, 0.85, items[0].ConfidenceScore, 1e-9)
}

func TestTopDeals(t *testing.T) {
	store := &fakeStore{entries: []catalog.CatalogEntry{
		entry("beras", "rice_grains", 75000, 80000, 3),
		entry("minyak goreng", "cooking_oil", 30000, 40000, 2),
	}}

	m := testManager(t, store, &fakeAnalyzer{}, &fakeMatcher{})
	deals, err := m.TopDeals(context.Background(), 10, 10)
	require.NoError(t, err)

	require.Len(t, deals, 1)
	assert.Equal(t, "minyak goreng", deals[0].Name)
}

func TestSearchCatalog(t *testing.T) {
	store := &fakeStore{entries: []catalog.CatalogEntry{
		entry("beras premium", "rice_grains", 75000, 80000, 3),
		entry("minyak goreng", "cooking_oil", 30000, 40000, 2),
	}}

	m := testManager(t, store, &fakeAnalyzer{}, &fakeMatcher{})
	hits, err := m.SearchCatalog(context.Background(), "beras", "", 10)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "beras premium", hits[0].Name)
}

func TestMergeDuplicates(t *testing.T) {
	conflicted := uuid.New()
	store := &fakeStore{
		entries:     nil,
		mergeErrors: map[uuid.UUID]error{conflicted: catalog.ErrMergeConflict},
	}
	matcher := &fakeMatcher{suggestions: []matching.MergeSuggestion{
		{SourceID: uuid.New(), TargetID: uuid.New(), Score: 0.97},
		{SourceID: conflicted, TargetID: uuid.New(), Score: 0.98},
		{SourceID: uuid.New(), TargetID: uuid.New(), Score: 0.90},
	}}

	m := testManager(t, store, &fakeAnalyzer{}, matcher)
	stats, err := m.MergeDuplicates(context.Background(), 0.95)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 1, stats.Conflicts)
	assert.Equal(t, 1, stats.SentToReview)
	assert.Len(t, store.merged, 1)
}

func TestSupplierMarketShare(t *testing.T) {
	store := &fakeStore{entries: []catalog.CatalogEntry{
		entry("beras", "rice_grains", 75000, 80000, 2),
		entry("minyak goreng", "cooking_oil", 30000, 40000, 2),
	}}

	m := testManager(t, store, &fakeAnalyzer{}, &fakeMatcher{})
	shares, err := m.SupplierMarketShare(context.Background())
	require.NoError(t, err)

	require.Len(t, shares, 1)
	assert.Equal(t, "cv maju jaya", shares[0].Supplier)
	assert.Equal(t, 2, shares[0].BestPriceWins)
	assert.InDelta(t, 100, shares[0].SharePercent, 1e-9)
	assert.Equal(t, []string{"cooking_oil", "rice_grains"}, shares[0].Categories)
}

func TestCategoryAnalysis(t *testing.T) {
	store := &fakeStore{entries: []catalog.CatalogEntry{
		entry("beras", "rice_grains", 75000, 80000, 2),
		entry("ketan", "rice_grains", 20000, 20000, 1),
		entry("minyak goreng", "cooking_oil", 30000, 40000, 2),
	}}

	m := testManager(t, store, &fakeAnalyzer{}, &fakeMatcher{})
	reports, err := m.CategoryAnalysis(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, "cooking_oil", reports[0].Category)
	assert.Equal(t, "rice_grains", reports[1].Category)
	assert.Equal(t, 2, reports[1].ProductCount)
	assert.LessOrEqual(t, len(reports[1].TopDeals), 5)
}

func TestExportCatalog_DecimalStringsAndUTC(t *testing.T) {
	store := &fakeStore{entries: []catalog.CatalogEntry{
		entry("beras", "rice_grains", 75000, 80000, 2),
	}}

	m := testManager(t, store, &fakeAnalyzer{}, &fakeMatcher{})
	data, err := m.ExportCatalog(context.Background())
	require.NoError(t, err)

	var doc struct {
		GeneratedAt string `json:"generated_at"`
		Currency    string `json:"currency"`
		ItemCount   int    `json:"item_count"`
		Items       []struct {
			BestPrice  string `json:"best_price"`
			WorstPrice string `json:"worst_price"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "IDR", doc.Currency)
	assert.Equal(t, 1, doc.ItemCount)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "75000", doc.Items[0].BestPrice)
	assert.Equal(t, "80000", doc.Items[0].WorstPrice)

	ts, err := time.Parse(time.RFC3339, doc.GeneratedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}

func TestProcurementReport(t *testing.T) {
	expires := time.Now().UTC().Add(168 * time.Hour)
	analyzer := &fakeAnalyzer{set: &pricing.RecommendationSet{
		Recommendations: []pricing.Recommendation{{
			ProductID:   uuid.New(),
			ProductName: "beras",
			Supplier:    "cv maju jaya",
			Price:       decimal.NewFromInt(75000),
			Quantity:    2,
			Total:       decimal.NewFromInt(150000),
			Savings:     6.25,
			Confidence:  0.7,
			Reasoning:   "cheaper than most suppliers",
			ExpiresAt:   expires,
		}},
		TotalCost:   decimal.NewFromInt(150000),
		Unmatched:   []string{"pupuk urea"},
		GeneratedAt: time.Now().UTC(),
	}}

	m := testManager(t, &fakeStore{}, analyzer, &fakeMatcher{})
	budget := decimal.NewFromInt(200000)
	data, err := m.ProcurementReport(context.Background(), []pricing.RequiredProduct{
		{Name: "beras", Quantity: 2},
	}, &budget)
	require.NoError(t, err)

	var doc struct {
		TotalCost string `json:"total_cost"`
		Budget    string `json:"budget"`
		Unmatched []string
		Lines     []struct {
			Total     string `json:"total"`
			ExpiresAt string `json:"expires_at"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "150000", doc.TotalCost)
	assert.Equal(t, "200000", doc.Budget)
	assert.Equal(t, []string{"pupuk urea"}, doc.Unmatched)
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "150000", doc.Lines[0].Total)
	_, err = time.Parse(time.RFC3339, doc.Lines[0].ExpiresAt)
	assert.NoError(t, err)
}
