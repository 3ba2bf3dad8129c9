package preprocessor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hargalist/hargalist-api/pkg/money"
)

// Header keyword tables. A cell containing any of these marks its column as
// a product or price column.
var (
	productHeaderKeywords = []string{"product", "item", "name", "barang", "produk", "description", "nama"}
	priceHeaderKeywords   = []string{"price", "harga", "cost", "biaya", "tarif"}

	// serviceTokens are labels that look like short text but never name a
	// product.
	serviceTokens = map[string]struct{}{
		"unit": {}, "price": {}, "harga": {}, "no": {}, "qty": {},
		"description": {}, "total": {},
	}

	groupedNumber  = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?$`)
	currencyNumber = regexp.MustCompile(`(?i)^(rp|usd|idr|\$)\s*\d`)
	plainNumber    = regexp.MustCompile(`^\d+[.,]?\d*$`)
	hasAlpha       = regexp.MustCompile(`[a-zA-Z]`)

	// "75.000" in an IDR sheet is seventy-five thousand, not seventy-five.
	thousandsShape = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
)

func isProductHeader(cell string) bool {
	return containsAnyKeyword(cell, productHeaderKeywords)
}

func isPriceHeader(cell string) bool {
	return containsAnyKeyword(cell, priceHeaderKeywords)
}

func containsAnyKeyword(cell string, keywords []string) bool {
	lower := strings.ToLower(strings.TrimSpace(cell))
	if lower == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isLikelyPrice reports whether a cell plausibly holds a price. Numeric
// values must exceed 10 to rule out row numbers and quantities; strings must
// match one of the price shapes.
func isLikelyPrice(cell string) bool {
	s := strings.TrimSpace(cell)
	if s == "" {
		return false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v > 10
	}
	return groupedNumber.MatchString(s) || currencyNumber.MatchString(s) || plainNumber.MatchString(s)
}

// isLikelyProduct reports whether a cell plausibly names a product: at least
// three characters, at least one letter, not price-shaped, not a service
// label.
func isLikelyProduct(cell string) bool {
	s := strings.TrimSpace(cell)
	if len(s) < 3 {
		return false
	}
	if !hasAlpha.MatchString(s) {
		return false
	}
	if isLikelyPrice(s) {
		return false
	}
	if _, ok := serviceTokens[strings.ToLower(s)]; ok {
		return false
	}
	return true
}

// extractPriceValue strips currency markers and separators and returns the
// numeric value. The bool result distinguishes clean numeric cells (higher
// confidence) from regex-recovered ones.
func extractPriceValue(cell string) (decimal.Decimal, bool, error) {
	s := strings.TrimSpace(cell)
	if !strings.Contains(s, ",") && !thousandsShape.MatchString(s) {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return decimal.NewFromFloat(v), true, nil
		}
	}
	p, err := money.ParsePrice(s)
	if err != nil {
		return decimal.Zero, false, err
	}
	return p.Amount, false, nil
}
