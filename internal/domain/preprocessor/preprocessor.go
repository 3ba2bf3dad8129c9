// Package preprocessor recovers structured product/price tuples from noisy
// supplier spreadsheets. Each sheet is profiled, assigned an extraction
// strategy, and mined for product and price cells which are then deduplicated
// and paired row-wise. Parsing never panics: file-level failures yield an
// empty result with the error recorded, and individual bad cells are skipped.
package preprocessor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Confidence defaults per record source.
const (
	productConfidence      = 0.8
	numericPriceConfidence = 0.9
	regexPriceConfidence   = 0.7
	neighborhoodBoost      = 0.1
)

// Product is a candidate product cell.
type Product struct {
	Name       string
	Row        int
	Col        int
	Confidence float64
}

// Price is a candidate price cell with its extracted numeric value.
type Price struct {
	Value      decimal.Decimal
	Original   string
	Row        int
	Col        int
	Confidence float64
}

// Pair joins a product with its row-mate price. Confidence is the weaker of
// the two cell confidences.
type Pair struct {
	Product    Product
	Price      Price
	Confidence float64
}

// RecoveryStats counts gap-recovery activity during extraction.
type RecoveryStats struct {
	RecoveredPrices int
	FilledGaps      int
}

// SheetResult is the extraction outcome for a single sheet.
type SheetResult struct {
	Name         string
	Strategy     Strategy
	Products     []Product
	Prices       []Price
	Pairs        []Pair
	Recovery     RecoveryStats
	Completeness float64
}

// Result is the workbook-level outcome. A file that cannot be opened yields
// ParseError set and empty collections.
type Result struct {
	Sheets     []SheetResult
	ParseError string
}

// Products returns all products across sheets.
func (r *Result) Products() []Product {
	var out []Product
	for _, s := range r.Sheets {
		out = append(out, s.Products...)
	}
	return out
}

// Prices returns all prices across sheets.
func (r *Result) Prices() []Price {
	var out []Price
	for _, s := range r.Sheets {
		out = append(out, s.Prices...)
	}
	return out
}

// Pairs returns all product/price pairs across sheets.
func (r *Result) Pairs() []Pair {
	var out []Pair
	for _, s := range r.Sheets {
		out = append(out, s.Pairs...)
	}
	return out
}

// Completeness is the pair coverage over the whole workbook, bounded to
// [0, 100]. Empty workbooks score zero.
func (r *Result) Completeness() float64 {
	if len(r.Sheets) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range r.Sheets {
		sum += s.Completeness
	}
	return sum / float64(len(r.Sheets))
}

// Config tunes sampling and timeouts.
type Config struct {
	MaxScanRows  int
	MaxScanCols  int
	SheetTimeout time.Duration
}

// DefaultConfig returns the standard scan window and a generous per-sheet
// timeout.
func DefaultConfig() Config {
	return Config{
		MaxScanRows:  50,
		MaxScanCols:  20,
		SheetTimeout: 30 * time.Second,
	}
}

// Preprocessor turns workbook bytes into extraction results.
type Preprocessor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a preprocessor.
func New(cfg Config, logger *slog.Logger) *Preprocessor {
	if cfg.MaxScanRows <= 0 {
		cfg.MaxScanRows = 50
	}
	if cfg.MaxScanCols <= 0 {
		cfg.MaxScanCols = 20
	}
	return &Preprocessor{cfg: cfg, logger: logger}
}

// Process reads an xlsx/xls workbook and extracts products, prices and pairs
// from every sheet. Open/decode failures are reported in the result, not
// raised.
func (p *Preprocessor) Process(ctx context.Context, r io.Reader) *Result {
	result := &Result{}

	f, err := excelize.OpenReader(r)
	if err != nil {
		p.logger.Warn("workbook open failed", slog.Any("error", err))
		result.ParseError = fmt.Sprintf("open workbook: %v", err)
		return result
	}
	defer f.Close()

	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			p.logger.Warn("sheet read failed",
				slog.String("sheet", sheetName), slog.Any("error", err))
			continue
		}
		result.Sheets = append(result.Sheets, p.processRows(ctx, sheetName, rows))
	}

	return result
}

// ProcessRows extracts from an already-materialized grid. Used by the CSV and
// PDF front-ends which produce the same row shape.
func (p *Preprocessor) ProcessRows(ctx context.Context, name string, rows [][]string) *Result {
	return &Result{Sheets: []SheetResult{p.processRows(ctx, name, rows)}}
}

func (p *Preprocessor) processRows(ctx context.Context, name string, rows [][]string) SheetResult {
	sheetCtx := ctx
	if p.cfg.SheetTimeout > 0 {
		var cancel context.CancelFunc
		sheetCtx, cancel = context.WithTimeout(ctx, p.cfg.SheetTimeout)
		defer cancel()
	}

	profile := profileSheet(rows, p.cfg.MaxScanRows, p.cfg.MaxScanCols)
	strategy := selectStrategy(profile)

	sheet := SheetResult{Name: name, Strategy: strategy}

	var timedOut bool
	switch strategy {
	case StrategyMultiColumn, StrategySingleColumn:
		timedOut = p.extractStructured(sheetCtx, rows, profile, &sheet)
	case StrategySparseContact:
		timedOut = p.extractSparse(sheetCtx, rows, &sheet)
	case StrategyIrregular:
		timedOut = p.extractIrregular(sheetCtx, rows, &sheet)
	default:
		timedOut = p.extractAdaptive(sheetCtx, rows, &sheet)
	}
	if timedOut {
		sheet.Strategy = StrategyTimedOut
	}

	sheet.Products = dedupProducts(sheet.Products)
	sheet.Prices = dedupPrices(sheet.Prices)
	sheet.Pairs = pairRows(sheet.Products, sheet.Prices)
	sheet.Completeness = completeness(len(sheet.Pairs), len(sheet.Products), sheet.Recovery.FilledGaps)

	p.logger.Debug("sheet processed",
		slog.String("sheet", name),
		slog.String("strategy", string(sheet.Strategy)),
		slog.Int("products", len(sheet.Products)),
		slog.Int("prices", len(sheet.Prices)),
		slog.Int("pairs", len(sheet.Pairs)),
	)
	return sheet
}

// extractStructured walks data rows below the header, emitting products from
// product columns and prices from price columns, then recovers prices for
// product rows whose price columns were empty.
func (p *Preprocessor) extractStructured(ctx context.Context, rows [][]string, profile sheetProfile, sheet *SheetResult) bool {
	start := profile.headerRow + 1

	for r := start; r < len(rows); r++ {
		if expired(ctx) {
			return true
		}

		rowHasProduct := false
		rowHasPrice := false

		for _, c := range profile.productCols {
			cell := cellAt(rows, r, c)
			if cell == "" || !isLikelyProduct(cell) {
				continue
			}
			sheet.Products = append(sheet.Products, Product{
				Name: cell, Row: r, Col: c, Confidence: productConfidence,
			})
			rowHasProduct = true
		}
		for _, c := range profile.priceCols {
			cell := cellAt(rows, r, c)
			if cell == "" || !isLikelyPrice(cell) {
				continue
			}
			if price, ok := p.toPrice(cell, r, c); ok {
				sheet.Prices = append(sheet.Prices, price)
				rowHasPrice = true
			}
		}

		// Gap recovery: the product is there but its price column is blank.
		// The nearest price-shaped cell elsewhere in the row stands in.
		if rowHasProduct && !rowHasPrice {
			if price, ok := p.recoverRowPrice(rows, r, profile); ok {
				sheet.Prices = append(sheet.Prices, price)
				sheet.Recovery.RecoveredPrices++
				sheet.Recovery.FilledGaps++
			}
		}
	}
	return false
}

// recoverRowPrice scans a row's non-price columns for the price-like cell
// nearest to the first product column.
func (p *Preprocessor) recoverRowPrice(rows [][]string, r int, profile sheetProfile) (Price, bool) {
	anchor := 0
	if len(profile.productCols) > 0 {
		anchor = profile.productCols[0]
	}
	skip := make(map[int]struct{}, len(profile.productCols))
	for _, c := range profile.productCols {
		skip[c] = struct{}{}
	}

	best := -1
	bestDist := 1 << 30
	for c := 0; c < len(rows[r]); c++ {
		if _, isProductCol := skip[c]; isProductCol {
			continue
		}
		cell := cellAt(rows, r, c)
		if cell == "" || !isLikelyPrice(cell) {
			continue
		}
		dist := c - anchor
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = c, dist
		}
	}
	if best == -1 {
		return Price{}, false
	}
	return p.toPriceWithConfidence(cellAt(rows, r, best), r, best, regexPriceConfidence)
}

// extractSparse skips the contact block and scans the product section with
// per-cell classification.
func (p *Preprocessor) extractSparse(ctx context.Context, rows [][]string, sheet *SheetResult) bool {
	start := findSectionStart(rows)
	return p.scanCells(ctx, rows, start, sheet, nil)
}

// extractIrregular classifies every non-empty cell using its 3x3
// neighborhood: header keywords nearby raise confidence in the matching
// classification.
func (p *Preprocessor) extractIrregular(ctx context.Context, rows [][]string, sheet *SheetResult) bool {
	boost := func(r, c int, product bool) float64 {
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				if dr == 0 && dc == 0 {
					continue
				}
				neighbor := cellAt(rows, r+dr, c+dc)
				if neighbor == "" {
					continue
				}
				if product && isProductHeader(neighbor) {
					return neighborhoodBoost
				}
				if !product && isPriceHeader(neighbor) {
					return neighborhoodBoost
				}
			}
		}
		return 0
	}
	return p.scanCells(ctx, rows, 0, sheet, boost)
}

// extractAdaptive classifies every non-empty cell independently.
func (p *Preprocessor) extractAdaptive(ctx context.Context, rows [][]string, sheet *SheetResult) bool {
	return p.scanCells(ctx, rows, 0, sheet, nil)
}

// scanCells is the shared full-scan walk. boost, when set, returns a
// confidence bonus for a cell given its classification.
func (p *Preprocessor) scanCells(ctx context.Context, rows [][]string, startRow int, sheet *SheetResult, boost func(r, c int, product bool) float64) bool {
	for r := startRow; r < len(rows); r++ {
		if expired(ctx) {
			return true
		}
		for c := range rows[r] {
			cell := cellAt(rows, r, c)
			if cell == "" {
				continue
			}
			switch {
			case isLikelyPrice(cell):
				price, ok := p.toPrice(cell, r, c)
				if !ok {
					continue
				}
				if boost != nil {
					price.Confidence = clampConfidence(price.Confidence + boost(r, c, false))
				}
				sheet.Prices = append(sheet.Prices, price)
			case isLikelyProduct(cell) && !isProductHeader(cell) && !isPriceHeader(cell):
				conf := productConfidence
				if boost != nil {
					conf = clampConfidence(conf + boost(r, c, true))
				}
				sheet.Products = append(sheet.Products, Product{
					Name: cell, Row: r, Col: c, Confidence: conf,
				})
			}
		}
	}
	return false
}

// toPrice extracts the numeric value of a price cell. Clean numeric cells
// carry higher confidence than regex-recovered ones. Unparseable cells are
// logged and dropped.
func (p *Preprocessor) toPrice(cell string, r, c int) (Price, bool) {
	value, numeric, err := extractPriceValue(cell)
	if err != nil || !value.IsPositive() {
		if err != nil {
			p.logger.Debug("price cell skipped",
				slog.String("cell", cell), slog.Any("error", err))
		}
		return Price{}, false
	}
	conf := regexPriceConfidence
	if numeric {
		conf = numericPriceConfidence
	}
	return Price{Value: value, Original: cell, Row: r, Col: c, Confidence: conf}, true
}

func (p *Preprocessor) toPriceWithConfidence(cell string, r, c int, conf float64) (Price, bool) {
	price, ok := p.toPrice(cell, r, c)
	if !ok {
		return Price{}, false
	}
	price.Confidence = conf
	return price, true
}

// dedupProducts keeps one product per lowercased trimmed name, preferring
// higher confidence.
func dedupProducts(products []Product) []Product {
	byName := make(map[string]Product, len(products))
	order := make([]string, 0, len(products))
	for _, prod := range products {
		key := strings.ToLower(strings.TrimSpace(prod.Name))
		existing, seen := byName[key]
		if !seen {
			order = append(order, key)
			byName[key] = prod
			continue
		}
		if prod.Confidence > existing.Confidence {
			byName[key] = prod
		}
	}
	out := make([]Product, 0, len(byName))
	for _, key := range order {
		out = append(out, byName[key])
	}
	return out
}

// dedupPrices keeps one price per cell coordinate, preferring higher
// confidence.
func dedupPrices(prices []Price) []Price {
	type cellKey struct{ r, c int }
	byCell := make(map[cellKey]Price, len(prices))
	order := make([]cellKey, 0, len(prices))
	for _, price := range prices {
		key := cellKey{price.Row, price.Col}
		existing, seen := byCell[key]
		if !seen {
			order = append(order, key)
			byCell[key] = price
			continue
		}
		if price.Confidence > existing.Confidence {
			byCell[key] = price
		}
	}
	out := make([]Price, 0, len(byCell))
	for _, key := range order {
		out = append(out, byCell[key])
	}
	return out
}

// pairRows matches each product with the same-row price nearest by column.
func pairRows(products []Product, prices []Price) []Pair {
	byRow := make(map[int][]Price, len(prices))
	for _, price := range prices {
		byRow[price.Row] = append(byRow[price.Row], price)
	}

	var pairs []Pair
	for _, prod := range products {
		candidates := byRow[prod.Row]
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			di := abs(candidates[i].Col - prod.Col)
			dj := abs(candidates[j].Col - prod.Col)
			return di < dj
		})
		best := candidates[0]
		pairs = append(pairs, Pair{
			Product:    prod,
			Price:      best,
			Confidence: minFloat(prod.Confidence, best.Confidence),
		})
	}
	return pairs
}

// completeness is min(100, 100*pairs/products + 2*filledGaps). Each recovered
// price is counted exactly once.
func completeness(pairs, products, filledGaps int) float64 {
	if products == 0 {
		return 0
	}
	score := 100*float64(pairs)/float64(products) + 2*float64(filledGaps)
	if score > 100 {
		return 100
	}
	return score
}

func clampConfidence(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func expired(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
