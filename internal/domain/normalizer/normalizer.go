// Package normalizer provides deterministic canonicalization of product
// names and brands, plus size extraction from free-form product names.
// All functions are pure: the same input always yields the same output, and
// normalization is idempotent.
package normalizer

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// stopWords are filler tokens dropped from product names. Packaging words
// double as count units, so removing them keeps "Oil Bottle 1L" and
// "Oil 1L" on the same canonical name.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "with": {}, "for": {},
	"premium": {}, "original": {}, "classic": {}, "special": {}, "extra": {},
	"super": {}, "new": {}, "fresh": {}, "natural": {}, "organic": {},
	"pure": {}, "best": {}, "quality": {},
	"pack": {}, "bottle": {}, "can": {}, "jar": {}, "box": {}, "bag": {},
	"sachet": {}, "pcs": {}, "isi": {},
}

// brandAliases maps known brand spellings to one canonical form. Keys are
// already punctuation-stripped and lowercased.
var brandAliases = map[string]string{
	"coca cola":  "coca-cola",
	"cocacola":   "coca-cola",
	"coke":       "coca-cola",
	"coca-cola":  "coca-cola",
	"indo mie":   "indomie",
	"indomie":    "indomie",
	"indomilk":   "indomilk",
	"abc":        "abc",
	"nestle":     "nestle",
	"nestlé":     "nestle",
	"unilever":   "unilever",
	"aqua":       "aqua",
	"bear brand": "bear brand",
	"bearbrand":  "bear brand",
	"teh botol":  "teh botol sosro",
	"sosro":      "teh botol sosro",
}

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRun   = regexp.MustCompile(`\s+`)
	// number immediately followed (optionally after spaces) by a unit token.
	sizePattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|kilo|mg|gr|gram|g|lbs|lb|oz|ml|ltr|litre|liter|lt|l|cc|fl[ _]?oz|gallon|gal|pcs|pc|pieces|piece|pack|pak|box|dus|karton|can|bottle|btl|jar|sachet|unit)\b`)
)

// NormalizeName lowercases a product name, replaces non-alphanumeric runs
// with spaces, drops stop words and collapses whitespace.
func NormalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = nonAlnum.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, drop := stopWords[f]; drop {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// NormalizeBrand lowercases and punctuation-strips a brand, then resolves it
// through the alias table. Unknown brands pass through cleaned.
func NormalizeBrand(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	cleaned := spaceRun.ReplaceAllString(strings.TrimSpace(nonAlnum.ReplaceAllString(s, " ")), " ")
	if canonical, ok := brandAliases[cleaned]; ok {
		return canonical
	}
	// Alias keys with hyphens won't survive the punctuation strip, so try the
	// raw lowered form too.
	if canonical, ok := brandAliases[s]; ok {
		return canonical
	}
	return cleaned
}

// ExtractedSize is the result of scanning a name for a size declaration.
type ExtractedSize struct {
	Size decimal.Decimal
	Unit string
	// Remainder is the name with the matched size span removed.
	Remainder string
}

// ExtractSize scans a product name for the first "(number)(unit)" pattern.
// The number accepts ',' or '.' as decimal separator. Returns ok=false when
// no size is present.
func ExtractSize(name string) (ExtractedSize, bool) {
	loc := sizePattern.FindStringSubmatchIndex(name)
	if loc == nil {
		return ExtractedSize{Remainder: name}, false
	}

	numStr := strings.ReplaceAll(name[loc[2]:loc[3]], ",", ".")
	size, err := decimal.NewFromString(numStr)
	if err != nil {
		return ExtractedSize{Remainder: name}, false
	}

	unitToken := strings.ToLower(name[loc[4]:loc[5]])
	remainder := strings.TrimSpace(name[:loc[0]] + " " + name[loc[1]:])
	remainder = spaceRun.ReplaceAllString(remainder, " ")

	return ExtractedSize{Size: size, Unit: unitToken, Remainder: remainder}, true
}

// StopWords exposes a copy of the stop-word list for configuration reporting.
func StopWords() []string {
	out := make([]string, 0, len(stopWords))
	for w := range stopWords {
		out = append(out, w)
	}
	return out
}
