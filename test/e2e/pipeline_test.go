package e2e

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hargalist/hargalist-api/internal/domain/adapter"
	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/ingest"
	"github.com/hargalist/hargalist-api/internal/domain/matching"
	"github.com/hargalist/hargalist-api/internal/domain/preprocessor"
	"github.com/hargalist/hargalist-api/internal/domain/pricing"
	"github.com/hargalist/hargalist-api/pkg/metrics"
)

// memStore is an in-memory catalog backing the pipeline end to end. It
// mirrors the repository's semantics: products are keyed by normalized name
// plus brand, price observations by (product, supplier, day), and history is
// append-only.
type memStore struct {
	mu       sync.Mutex
	products []catalog.MasterProduct
	prices   []catalog.SupplierPrice
	history  []catalog.PriceHistoryEntry
	matches  []catalog.ProductMatch
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *memStore) findProduct(name string, brand *string) *catalog.MasterProduct {
	for i := range m.products {
		p := &m.products[i]
		if p.Status != catalog.StatusMerged && p.StandardName == name && ptrEq(p.Brand, brand) {
			return p
		}
	}
	return nil
}

func (m *memStore) BulkImport(ctx context.Context, supplier string, records []catalog.IngestRecord) (catalog.ImportStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats catalog.ImportStats
	now := time.Now().UTC()
	day := now.Truncate(24 * time.Hour)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		product := m.findProduct(rec.StandardName, rec.Brand)
		if product == nil {
			m.products = append(m.products, catalog.MasterProduct{
				ID:           uuid.New(),
				StandardName: rec.StandardName,
				Brand:        rec.Brand,
				Category:     rec.Category,
				Size:         rec.Size,
				Unit:         rec.Unit,
				Status:       catalog.StatusActive,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			product = &m.products[len(m.products)-1]
			stats.Created++
		} else {
			stats.Updated++
		}

		var prior *catalog.SupplierPrice
		for i := range m.prices {
			p := &m.prices[i]
			if p.ProductID == product.ID && p.SupplierName == supplier {
				if prior == nil || p.PriceDate.After(prior.PriceDate) {
					prior = p
				}
			}
		}

		switch {
		case prior == nil:
			m.history = append(m.history, catalog.PriceHistoryEntry{
				ID: uuid.New(), ProductID: product.ID, SupplierName: supplier,
				NewPrice: rec.Price, ChangeDate: now, Reason: catalog.ReasonNewSupplier,
			})
		case !prior.Price.Equal(rec.Price):
			old := prior.Price
			pct := rec.Price.Sub(old).Div(old).Mul(decimal.NewFromInt(100))
			m.history = append(m.history, catalog.PriceHistoryEntry{
				ID: uuid.New(), ProductID: product.ID, SupplierName: supplier,
				OldPrice: &old, NewPrice: rec.Price, ChangePercentage: &pct,
				ChangeDate: now, Reason: catalog.ReasonPriceUpdate,
			})
		}

		if prior != nil && prior.PriceDate.Equal(day) {
			prior.Price = rec.Price
			prior.OriginalName = rec.OriginalName
			prior.Size = rec.Size
			prior.Unit = rec.Unit
			prior.LastSeen = now
			continue
		}
		m.prices = append(m.prices, catalog.SupplierPrice{
			ID: uuid.New(), ProductID: product.ID, SupplierName: supplier,
			OriginalName: rec.OriginalName, Price: rec.Price, Currency: rec.Currency,
			PriceDate: day, Size: rec.Size, Unit: rec.Unit,
			MinOrderQty: rec.MinOrderQty, ConfidenceScore: rec.ConfidenceScore,
			Source: rec.Source, LastSeen: now,
		})
		stats.AddedPrices++
	}
	return stats, nil
}

func (m *memStore) GetProduct(_ context.Context, id uuid.UUID) (*catalog.MasterProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == id {
			p := m.products[i]
			return &p, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (m *memStore) GetCurrentPrices(_ context.Context, productID uuid.UUID, window time.Duration) ([]catalog.SupplierPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-window)
	latest := make(map[string]catalog.SupplierPrice)
	for _, p := range m.prices {
		if p.ProductID != productID || p.PriceDate.Before(cutoff) {
			continue
		}
		if cur, ok := latest[p.SupplierName]; !ok || p.PriceDate.After(cur.PriceDate) {
			latest[p.SupplierName] = p
		}
	}
	out := make([]catalog.SupplierPrice, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SupplierName < out[j].SupplierName })
	return out, nil
}

func (m *memStore) historyWhere(since time.Time, keep func(catalog.PriceHistoryEntry) bool) []catalog.PriceHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.PriceHistoryEntry
	for _, h := range m.history {
		if h.ChangeDate.Before(since) || !keep(h) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChangeDate.Before(out[j].ChangeDate) })
	return out
}

func (m *memStore) GetPriceHistory(_ context.Context, productID uuid.UUID, since time.Time) ([]catalog.PriceHistoryEntry, error) {
	return m.historyWhere(since, func(h catalog.PriceHistoryEntry) bool { return h.ProductID == productID }), nil
}

func (m *memStore) GetHistorySince(_ context.Context, since time.Time) ([]catalog.PriceHistoryEntry, error) {
	return m.historyWhere(since, func(catalog.PriceHistoryEntry) bool { return true }), nil
}

func (m *memStore) GetSupplierHistory(_ context.Context, supplier string, since time.Time) ([]catalog.PriceHistoryEntry, error) {
	return m.historyWhere(since, func(h catalog.PriceHistoryEntry) bool { return h.SupplierName == supplier }), nil
}

func (m *memStore) GetSupplier(_ context.Context, name string) (*catalog.Supplier, error) {
	return &catalog.Supplier{Name: name, Status: "ACTIVE", ReliabilityScore: 0.5}, nil
}

func (m *memStore) GetUnifiedCatalog(_ context.Context, category string, limit int) ([]catalog.CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []catalog.CatalogEntry
	for _, p := range m.products {
		if p.Status != catalog.StatusActive {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		entry := catalog.CatalogEntry{Product: p}
		suppliers := make(map[string]struct{})
		for _, price := range m.prices {
			if price.ProductID != p.ID {
				continue
			}
			suppliers[price.SupplierName] = struct{}{}
			if entry.SuppliersCount == 0 || price.Price.LessThan(entry.BestPrice) {
				entry.BestPrice = price.Price
				entry.BestSupplier = price.SupplierName
			}
			if entry.SuppliersCount == 0 || price.Price.GreaterThan(entry.WorstPrice) {
				entry.WorstPrice = price.Price
			}
			entry.SuppliersCount = len(suppliers)
		}
		if entry.SuppliersCount == 0 {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Product.StandardName < out[j].Product.StandardName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SearchProducts(_ context.Context, term, category string, limit int) ([]catalog.MasterProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(term)
	var out []catalog.MasterProduct
	for _, p := range m.products {
		if p.Status != catalog.StatusActive {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		brand := ""
		if p.Brand != nil {
			brand = strings.ToLower(*p.Brand)
		}
		if !strings.Contains(strings.ToLower(p.StandardName), needle) && !strings.Contains(brand, needle) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StandardName < out[j].StandardName })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ProductsInCategory(_ context.Context, category string, limit int) ([]catalog.MasterProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.MasterProduct
	for _, p := range m.products {
		if p.Status == catalog.StatusActive && p.Category == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StandardName < out[j].StandardName })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListProducts(_ context.Context, offset, limit int) ([]catalog.MasterProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []catalog.MasterProduct
	for _, p := range m.products {
		if p.Status == catalog.StatusActive {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StandardName < all[j].StandardName })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

func (m *memStore) HasMatch(_ context.Context, a, b uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := orderPair(a, b)
	for _, mt := range m.matches {
		if mt.ProductAID == lo && mt.ProductBID == hi {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RecordMatch(_ context.Context, a, b uuid.UUID, score float64, matchType catalog.MatchType, details catalog.MatchDetails) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := orderPair(a, b)
	match := catalog.ProductMatch{
		ID: uuid.New(), ProductAID: lo, ProductBID: hi,
		SimilarityScore: score,
		NameSimilarity:  details.Name,
		BrandSimilarity: details.Brand,
		SizeSimilarity:  details.Size,
		MatchType:       matchType,
		CreatedAt:       time.Now().UTC(),
	}
	m.matches = append(m.matches, match)
	return match.ID, nil
}

func (m *memStore) GetUnreviewedMatches(_ context.Context, limit int) ([]catalog.ProductMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.ProductMatch
	for _, mt := range m.matches {
		if !mt.Reviewed {
			out = append(out, mt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SimilarityScore > out[j].SimilarityScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Fixture helpers.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newIngestService(store *memStore) *ingest.Service {
	logger := discardLogger()
	pre := preprocessor.New(preprocessor.DefaultConfig(), logger)
	ad := adapter.New(logger)
	m := metrics.NewIngest(prometheus.NewRegistry())
	return ingest.NewService(pre, ad, store, m, ingest.Config{MinFileBytes: 1}, logger)
}

func newPricingEngine(store *memStore) *pricing.Engine {
	return pricing.NewEngine(store, pricing.DefaultConfig(), discardLogger())
}

func newMatchingEngine(store *memStore) *matching.Engine {
	return matching.NewEngine(store, matching.DefaultConfig(), discardLogger())
}

func str(s string) *string { return &s }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (m *memStore) addProduct(name string, brand *string, category string, size *decimal.Decimal, unit *string) uuid.UUID {
	id := uuid.New()
	m.products = append(m.products, catalog.MasterProduct{
		ID: id, StandardName: name, Brand: brand, Category: category,
		Size: size, Unit: unit, Status: catalog.StatusActive,
	})
	return id
}

func (m *memStore) addPrice(productID uuid.UUID, supplier, price string, daysAgo int) {
	m.prices = append(m.prices, catalog.SupplierPrice{
		ID: uuid.New(), ProductID: productID, SupplierName: supplier,
		Price: dec(price), Currency: "IDR",
		PriceDate: time.Now().UTC().AddDate(0, 0, -daysAgo),
		Source:    catalog.SourceManual,
	})
}

func (m *memStore) addChange(productID uuid.UUID, supplier, pct string, daysAgo int) {
	change := dec(pct)
	m.history = append(m.history, catalog.PriceHistoryEntry{
		ID: uuid.New(), ProductID: productID, SupplierName: supplier,
		NewPrice: dec("1000"), ChangePercentage: &change,
		ChangeDate: time.Now().UTC().AddDate(0, 0, -daysAgo),
		Reason:     catalog.ReasonPriceUpdate,
	})
}

func workbookFromCells(t *testing.T, cells map[string]any) io.Reader {
	t.Helper()
	f := excelize.NewFile()
	for ref, value := range cells {
		require.NoError(t, f.SetCellValue("Sheet1", ref, value))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

// Two suppliers quote the same rice in different pack sizes. Both rows must
// land on one master product, and the analysis must compare per-gram prices,
// not pack prices.
func TestPipeline_PackSizeNormalization(t *testing.T) {
	store := &memStore{}
	svc := newIngestService(store)

	results := svc.ProcessBatch(context.Background(), []ingest.Task{
		{
			Supplier: "cv maju jaya",
			Filename: "maju-jaya.csv",
			Reader:   strings.NewReader("nama produk,harga\nRice 5kg,100.000\n"),
		},
		{
			Supplier: "toko makmur",
			Filename: "makmur.csv",
			Reader:   strings.NewReader("nama produk,harga\nRice 1kg,25.000\n"),
		},
	})
	require.Len(t, results, 2)
	for _, res := range results {
		require.NoError(t, res.Err, res.Filename)
		assert.Equal(t, 1, res.Extracted)
		assert.Equal(t, 1, res.Import.AddedPrices)
	}

	require.Len(t, store.products, 1)
	product := store.products[0]
	assert.Equal(t, "rice", product.StandardName)
	assert.Equal(t, "rice_grains", product.Category)

	require.Len(t, store.prices, 2)
	for _, p := range store.prices {
		require.NotNil(t, p.Size, p.SupplierName)
		require.NotNil(t, p.Unit, p.SupplierName)
		assert.Equal(t, "g", *p.Unit)
	}

	analysis, err := newPricingEngine(store).Analyze(context.Background(), product.ID)
	require.NoError(t, err)
	require.NotNil(t, analysis)

	assert.Equal(t, 2, analysis.SupplierCount)
	assert.Equal(t, "cv maju jaya", analysis.Best.Supplier)
	assert.Equal(t, "20", analysis.Best.UnitPrice.String())
	assert.Equal(t, "toko makmur", analysis.Worst.Supplier)
	assert.Equal(t, "25", analysis.Worst.UnitPrice.String())
	assert.InDelta(t, 20, analysis.SavingsPotential, 0.0001)

	// Mean, median and range describe the same per-gram series.
	assert.Equal(t, "22.5", analysis.Mean.String())
	assert.Equal(t, "22.5", analysis.Median.String())
	assert.Equal(t, "5", analysis.Range.String())
}

// Brand spelling variants resolve to one canonical brand, so quotes from two
// suppliers merge onto a single catalog row.
func TestPipeline_BrandAliasMerging(t *testing.T) {
	store := &memStore{}
	ad := adapter.New(discardLogger())
	ctx := context.Background()

	batchA := ad.AdaptRecords([]catalog.IngestRecord{{
		StandardName: "Coca Cola 330ml",
		OriginalName: "Coca Cola 330ml",
		Brand:        str("Coca Cola"),
		Price:        dec("5200"),
	}}, "cv maju jaya", catalog.SourceManual)
	batchB := ad.AdaptRecords([]catalog.IngestRecord{{
		StandardName: "coca-cola 330ml",
		OriginalName: "coca-cola 330ml",
		Brand:        str("coke"),
		Price:        dec("5000"),
	}}, "toko makmur", catalog.SourceManual)

	require.Len(t, batchA.Records, 1)
	require.Len(t, batchB.Records, 1)
	require.NotNil(t, batchA.Records[0].Brand)
	require.NotNil(t, batchB.Records[0].Brand)
	assert.Equal(t, "coca-cola", *batchA.Records[0].Brand)
	assert.Equal(t, "coca-cola", *batchB.Records[0].Brand)

	_, err := store.BulkImport(ctx, batchA.Supplier, batchA.Records)
	require.NoError(t, err)
	_, err = store.BulkImport(ctx, batchB.Supplier, batchB.Records)
	require.NoError(t, err)

	require.Len(t, store.products, 1)

	entries, err := store.GetUnifiedCatalog(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].SuppliersCount)
	assert.Equal(t, "toko makmur", entries[0].BestSupplier)
	assert.Equal(t, "5000", entries[0].BestPrice.String())
}

// Near-duplicate names from different suppliers surface as a fuzzy match and
// a sweep records the pair exactly once.
func TestPipeline_FuzzyDuplicateDetection(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()

	size := dec("85")
	unit := "g"
	idA := store.addProduct("indomie goreng", str("indomie"), "instant_noodles", &size, &unit)
	store.addProduct("indomee goreng", nil, "instant_noodles", &size, &unit)

	engine := newMatchingEngine(store)

	productA, err := store.GetProduct(ctx, idA)
	require.NoError(t, err)

	candidates, err := engine.FindMatches(ctx, productA, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	cand := candidates[0]
	assert.Equal(t, "indomee goreng", cand.Product.StandardName)
	assert.Equal(t, catalog.MatchFuzzy, cand.Type)
	assert.GreaterOrEqual(t, cand.Score.Name, 0.9)
	assert.Equal(t, 1.0, cand.Score.Size)
	assert.GreaterOrEqual(t, cand.Score.Overall, 0.8)

	stats, err := engine.ProcessAll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Recorded)
	assert.Equal(t, 1, stats.Skipped)

	matches, err := store.GetUnreviewedMatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, catalog.MatchFuzzy, matches[0].MatchType)
	assert.Equal(t, 1.0, matches[0].SizeSimilarity)
}

// A letterhead sheet with contact rows on top and the product block further
// down is classified as sparse and only the product block is extracted.
func TestPipeline_SparseContactSheet(t *testing.T) {
	r := workbookFromCells(t, map[string]any{
		"A1": "CV Sinar Terang",
		"A2": "Jl. Melati 45 Bandung",
		"A3": "Telp: 022-555-0123",
		"A4": "Kontak: Budi",
		"A5": "Hormat kami",
		"B7": "Beras Pandan Wangi 5kg", "E7": "68.000",
		"B8": "Minyak Sawit 2L", "E8": "36.000",
		"B9": "Gula Aren 1kg", "E9": "24.000",
		"B10": "Kopi Tubruk 250g", "E10": "21.500",
	})

	p := preprocessor.New(preprocessor.DefaultConfig(), discardLogger())
	result := p.Process(context.Background(), r)
	require.Empty(t, result.ParseError)
	require.Len(t, result.Sheets, 1)

	sheet := result.Sheets[0]
	assert.Equal(t, preprocessor.StrategySparseContact, sheet.Strategy)
	require.Len(t, sheet.Pairs, 4)

	prices := make(map[string]string, len(sheet.Pairs))
	for _, pair := range sheet.Pairs {
		assert.GreaterOrEqual(t, pair.Product.Row, 6, "contact rows must not be extracted")
		prices[pair.Product.Name] = pair.Price.Value.String()
	}
	assert.Equal(t, "68000", prices["Beras Pandan Wangi 5kg"])
	assert.Equal(t, "21500", prices["Kopi Tubruk 250g"])
}

// Procurement stays inside the budget: the second item does not fit after the
// first is bought and is reported unmatched instead of blowing the cap.
func TestPipeline_BudgetedProcurement(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()

	rice := store.addProduct("rice", nil, "rice_grains", nil, nil)
	store.addPrice(rice, "cv maju jaya", "25000", 0)
	store.addPrice(rice, "toko makmur", "30000", 0)

	oil := store.addProduct("minyak goreng", nil, "cooking_oil", nil, nil)
	store.addPrice(oil, "cv maju jaya", "38000", 0)
	store.addPrice(oil, "toko makmur", "40000", 0)

	budget := dec("300000")
	set, err := newPricingEngine(store).Recommend(ctx, []pricing.RequiredProduct{
		{Name: "Rice", Quantity: 10},
		{Name: "Minyak Goreng", Quantity: 5},
	}, &budget)
	require.NoError(t, err)

	require.Len(t, set.Recommendations, 1)
	rec := set.Recommendations[0]
	assert.Equal(t, "rice", rec.ProductName)
	assert.Equal(t, "cv maju jaya", rec.Supplier)
	assert.Equal(t, "250000", rec.Total.String())
	assert.Equal(t, 168*time.Hour, rec.ExpiresAt.Sub(set.GeneratedAt))

	assert.Equal(t, "250000", set.TotalCost.String())
	assert.Equal(t, []string{"Minyak Goreng"}, set.Unmatched)
}

// Trend labels follow the mean of recent change percentages.
func TestPipeline_TrendClassification(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()
	engine := newPricingEngine(store)

	rising := store.addProduct("gula pasir", nil, "sweeteners", nil, nil)
	store.addPrice(rising, "cv maju jaya", "14500", 0)
	store.addChange(rising, "cv maju jaya", "5", 20)
	store.addChange(rising, "cv maju jaya", "3", 10)
	store.addChange(rising, "cv maju jaya", "4", 5)

	flat := store.addProduct("tepung terigu", nil, "flour", nil, nil)
	store.addPrice(flat, "cv maju jaya", "11000", 0)
	store.addChange(flat, "cv maju jaya", "0.5", 20)
	store.addChange(flat, "cv maju jaya", "-0.3", 10)
	store.addChange(flat, "cv maju jaya", "0.4", 5)

	analysis, err := engine.Analyze(ctx, rising)
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, pricing.TrendIncreasing, analysis.Trend)

	analysis, err = engine.Analyze(ctx, flat)
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, pricing.TrendStable, analysis.Trend)
}
