package preprocessor

import "strings"

// Strategy identifies how a sheet's cells were extracted.
type Strategy string

const (
	StrategyMultiColumn   Strategy = "multi_column_structured"
	StrategySingleColumn  Strategy = "single_column_structured"
	StrategySparseContact Strategy = "sparse_contact_mixed"
	StrategyIrregular     Strategy = "irregular_recovery"
	StrategyAdaptive      Strategy = "adaptive_scan"
	StrategyTimedOut      Strategy = "timed_out"
)

// sectionMarkers announce the start of the product block in mixed sheets
// that open with contact or letterhead rows.
var sectionMarkers = []string{"price list", "daftar harga", "description", "nama produk", "item"}

// sheetProfile summarizes a sampled sheet for strategy selection.
type sheetProfile struct {
	dataDensity float64
	headerRow   int // -1 when no header row was found
	productCols []int
	priceCols   []int
	sampleRows  int
	sampleCols  int
}

// profileSheet samples the first maxRows x maxCols cells and computes data
// density, the header row, and product/price column candidates.
func profileSheet(rows [][]string, maxRows, maxCols int) sheetProfile {
	p := sheetProfile{headerRow: -1}

	sampleRows := len(rows)
	if sampleRows > maxRows {
		sampleRows = maxRows
	}
	if sampleRows == 0 {
		return p
	}

	sampleCols := 0
	for _, row := range rows[:sampleRows] {
		if len(row) > sampleCols {
			sampleCols = len(row)
		}
	}
	if sampleCols > maxCols {
		sampleCols = maxCols
	}
	p.sampleRows = sampleRows
	p.sampleCols = sampleCols
	if sampleCols == 0 {
		return p
	}

	nonEmpty := 0
	for r := 0; r < sampleRows; r++ {
		for c := 0; c < sampleCols; c++ {
			if cellAt(rows, r, c) != "" {
				nonEmpty++
			}
		}
	}
	p.dataDensity = float64(nonEmpty) / float64(sampleRows*sampleCols)

	// Header detection: look for the first row that names both a product and
	// a price column.
	for r := 0; r < sampleRows; r++ {
		var prodCols, priceCols []int
		for c := 0; c < sampleCols; c++ {
			cell := cellAt(rows, r, c)
			if cell == "" {
				continue
			}
			switch {
			case isProductHeader(cell):
				prodCols = append(prodCols, c)
			case isPriceHeader(cell):
				priceCols = append(priceCols, c)
			}
		}
		if len(prodCols) > 0 && len(priceCols) > 0 {
			p.headerRow = r
			p.productCols = prodCols
			p.priceCols = priceCols
			break
		}
	}

	// No headers: classify columns from the first 10 data rows.
	if p.headerRow == -1 {
		p.productCols, p.priceCols = classifyColumnsByData(rows, sampleCols)
	}

	return p
}

// classifyColumnsByData marks a column as a product column when at least 3 of
// the first 10 data rows look like products, and as a price column when at
// least 3 look like prices.
func classifyColumnsByData(rows [][]string, maxCols int) (productCols, priceCols []int) {
	const window = 10
	const needed = 3

	for c := 0; c < maxCols; c++ {
		products, prices, seen := 0, 0, 0
		for r := 0; r < len(rows) && seen < window; r++ {
			cell := cellAt(rows, r, c)
			if cell == "" {
				continue
			}
			seen++
			if isLikelyProduct(cell) {
				products++
			}
			if isLikelyPrice(cell) {
				prices++
			}
		}
		if products >= needed {
			productCols = append(productCols, c)
		}
		if prices >= needed {
			priceCols = append(priceCols, c)
		}
	}
	return productCols, priceCols
}

// selectStrategy maps a sheet profile to an extraction strategy.
func selectStrategy(p sheetProfile) Strategy {
	hasHeaders := p.headerRow >= 0

	switch {
	case hasHeaders && len(p.priceCols) >= 2:
		return StrategyMultiColumn
	case hasHeaders && len(p.priceCols) == 1:
		return StrategySingleColumn
	case p.dataDensity < 0.3:
		return StrategySparseContact
	case p.dataDensity < 0.5 && !hasHeaders:
		return StrategyIrregular
	default:
		return StrategyAdaptive
	}
}

// findSectionStart locates the first row of the product block in a sparse
// sheet. Section markers win; otherwise the first row shaped like
// [number | product | price] is taken. Returns 0 when nothing matches so the
// whole sheet is scanned.
func findSectionStart(rows [][]string) int {
	for r, row := range rows {
		for _, cell := range row {
			lower := strings.ToLower(strings.TrimSpace(cell))
			if lower == "" {
				continue
			}
			for _, marker := range sectionMarkers {
				if strings.Contains(lower, marker) {
					return r
				}
			}
		}
	}

	for r, row := range rows {
		var hasOrdinal, hasProduct, hasPrice bool
		for _, cell := range row {
			s := strings.TrimSpace(cell)
			if s == "" {
				continue
			}
			switch {
			case plainNumber.MatchString(s) && len(s) <= 3:
				hasOrdinal = true
			case isLikelyProduct(s):
				hasProduct = true
			case isLikelyPrice(s):
				hasPrice = true
			}
		}
		if hasProduct && (hasOrdinal || hasPrice) {
			return r
		}
	}
	return 0
}

func cellAt(rows [][]string, r, c int) string {
	if r < 0 || r >= len(rows) {
		return ""
	}
	row := rows[r]
	if c < 0 || c >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[c])
}
