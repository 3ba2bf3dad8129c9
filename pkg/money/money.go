// Package money provides decimal-safe price handling for supplier price
// lists. Prices are carried as shopspring decimals; currency codes are
// validated against the ISO-4217 registry from go-money. The default
// currency for supplier sheets is IDR.
package money

import (
	"fmt"
	"regexp"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when a price list carries no currency marker.
const DefaultCurrency = "IDR"

var currencyMarkers = map[string]string{
	"rp":  "IDR",
	"idr": "IDR",
	"$":   "USD",
	"usd": "USD",
	"€":   "EUR",
	"eur": "EUR",
	"s$":  "SGD",
	"sgd": "SGD",
	"rm":  "MYR",
	"myr": "MYR",
}

// currencyScanOrder fixes the marker scan order, longest first, so "S$ 5"
// resolves to SGD before the bare "$" gets a chance to match.
var currencyScanOrder = []string{
	"idr", "usd", "eur", "sgd", "myr",
	"rp", "rm", "s$",
	"€", "$",
}

var nonNumeric = regexp.MustCompile(`[^0-9.,\-]`)

// Price is a decimal amount with an ISO-4217 currency tag.
type Price struct {
	Amount   decimal.Decimal
	Currency string
}

// NewPrice builds a Price, falling back to the default currency when the
// code is empty or unrecognized.
func NewPrice(amount decimal.Decimal, currency string) Price {
	return Price{Amount: amount, Currency: NormalizeCurrency(currency)}
}

// NormalizeCurrency maps a currency marker or code to a canonical ISO code.
// Unknown codes fall back to the default.
func NormalizeCurrency(code string) string {
	key := strings.ToLower(strings.TrimSpace(code))
	if key == "" {
		return DefaultCurrency
	}
	if iso, ok := currencyMarkers[key]; ok {
		return iso
	}
	upper := strings.ToUpper(key)
	if gomoney.GetCurrency(upper) != nil {
		return upper
	}
	return DefaultCurrency
}

// ParsePrice extracts a decimal amount and currency from a raw price cell.
// Handles currency prefixes ("Rp 15.000", "$4.99", "USD 12"), thousands
// separators in either convention, and a trailing decimal part of one or two
// digits. Returns an error for cells with no usable number.
func ParsePrice(raw string) (Price, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Price{}, fmt.Errorf("empty price")
	}

	currency := detectCurrency(s)
	s = nonNumeric.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "-") // negative prices are never valid observations
	if s == "" {
		return Price{}, fmt.Errorf("no digits in %q", raw)
	}

	normalized := normalizeSeparators(s)
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return Price{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	return Price{Amount: amount, Currency: currency}, nil
}

// detectCurrency scans a raw cell for a known currency marker.
func detectCurrency(s string) string {
	lower := strings.ToLower(s)
	for _, marker := range currencyScanOrder {
		iso := currencyMarkers[marker]
		// Symbol markers match anywhere; alphabetic markers only as a prefix
		// so product names with stray letters don't flip the currency.
		if len(marker) == 1 || marker == "s$" {
			if strings.Contains(lower, marker) {
				return iso
			}
			continue
		}
		if strings.HasPrefix(lower, marker) {
			return iso
		}
	}
	return DefaultCurrency
}

// normalizeSeparators turns "15.000,50", "15,000.50" and "15000" into a
// canonical dotted decimal string.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot == -1 && lastComma == -1:
		return s
	case lastDot != -1 && lastComma != -1:
		// The rightmost separator is the decimal point.
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
		return s
	default:
		sep := "."
		idx := lastDot
		if lastComma != -1 {
			sep = ","
			idx = lastComma
		}
		tail := len(s) - idx - 1
		// One or two trailing digits reads as a decimal part; three reads as
		// a thousands group (the dominant convention in IDR sheets).
		if tail == 3 || strings.Count(s, sep) > 1 {
			return strings.ReplaceAll(s, sep, "")
		}
		if sep == "," {
			return strings.ReplaceAll(s, ",", ".")
		}
		return s
	}
}

// Display renders the price with its currency grapheme, e.g. "Rp15.000".
func (p Price) Display() string {
	cur := gomoney.GetCurrency(p.Currency)
	if cur == nil {
		cur = gomoney.GetCurrency(DefaultCurrency)
	}
	minor := p.Amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return gomoney.New(minor, cur.Code).Display()
}

// String serializes the amount as a plain decimal string, the canonical wire
// form for monetary values.
func (p Price) String() string {
	return p.Amount.String()
}

// IsPositive reports whether the amount is greater than zero. Records with
// non-positive prices are rejected at ingest.
func (p Price) IsPositive() bool {
	return p.Amount.IsPositive()
}
