// Package matching clusters equivalent products across suppliers by scoring
// normalized name, brand and size similarity.
package matching

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/hargalist/hargalist-api/internal/domain/normalizer"
	"github.com/hargalist/hargalist-api/pkg/unit"
)

// Similarity weights. Name dominates because supplier brand and size fields
// are frequently missing.
const (
	nameWeight  = 0.5
	brandWeight = 0.3
	sizeWeight  = 0.2
)

// fullRatio is the Levenshtein similarity of two strings scaled to [0,1].
func fullRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

// partialRatio slides the shorter string over the longer one and returns the
// best window similarity. Catches "indomie goreng" inside
// "indomie goreng jumbo 127".
func partialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return fullRatio(a, b)
	}
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		if score := fullRatio(string(ra), string(rb[i:i+len(ra)])); score > best {
			best = score
			if best == 1 {
				break
			}
		}
	}
	return best
}

func sortedTokens(s string) []string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return tokens
}

// tokenSortRatio compares the strings with their tokens sorted, so word order
// does not matter.
func tokenSortRatio(a, b string) float64 {
	return fullRatio(strings.Join(sortedTokens(a), " "), strings.Join(sortedTokens(b), " "))
}

// tokenSetRatio compares around the token intersection so that extra tokens
// on one side cost little.
func tokenSetRatio(a, b string) float64 {
	setA := make(map[string]struct{})
	for _, t := range strings.Fields(a) {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, t := range strings.Fields(b) {
		setB[t] = struct{}{}
	}

	var common, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := fullRatio(withA, withB)
	if base != "" {
		if s := fullRatio(base, withA); s > best {
			best = s
		}
		if s := fullRatio(base, withB); s > best {
			best = s
		}
	}
	return best
}

// NameSimilarity is the best of the four ratio variants over normalized
// names.
func NameSimilarity(a, b string) float64 {
	a = normalizer.NormalizeName(a)
	b = normalizer.NormalizeName(b)
	best := fullRatio(a, b)
	for _, score := range []float64{partialRatio(a, b), tokenSortRatio(a, b), tokenSetRatio(a, b)} {
		if score > best {
			best = score
		}
	}
	return best
}

// BrandSimilarity scores two optional brands: both absent is a non-signal
// (1.0), one absent is weak disagreement (0.5), alias-equal brands are 1.0,
// anything else falls back to the fuzzy ratio.
func BrandSimilarity(a, b *string) float64 {
	aEmpty := a == nil || strings.TrimSpace(*a) == ""
	bEmpty := b == nil || strings.TrimSpace(*b) == ""
	switch {
	case aEmpty && bEmpty:
		return 1
	case aEmpty || bEmpty:
		return 0.5
	}
	na, nb := normalizer.NormalizeBrand(*a), normalizer.NormalizeBrand(*b)
	if na == nb {
		return 1
	}
	return fullRatio(na, nb)
}

// SizeSimilarity compares unit-normalized sizes. Both absent scores 1.0, one
// absent 0.5, incomparable families 0. Within a family the score decays
// linearly with the relative difference.
func SizeSimilarity(sizeA *decimal.Decimal, unitA *string, sizeB *decimal.Decimal, unitB *string) float64 {
	aMissing := sizeA == nil || unitA == nil
	bMissing := sizeB == nil || unitB == nil
	switch {
	case aMissing && bMissing:
		return 1
	case aMissing || bMissing:
		return 0.5
	}

	baseA, famA, errA := unit.ToBase(*sizeA, *unitA)
	baseB, famB, errB := unit.ToBase(*sizeB, *unitB)
	if errA != nil || errB != nil {
		return 0.5
	}
	if famA != famB {
		return 0
	}

	maxVal := decimal.Max(baseA, baseB)
	if maxVal.IsZero() {
		return 1
	}
	delta, _ := baseA.Sub(baseB).Abs().Div(maxVal).Float64()
	if delta >= 1 {
		return 0
	}
	return 1 - delta
}

// Score is the weighted per-dimension breakdown of a comparison.
type Score struct {
	Name    float64
	Brand   float64
	Size    float64
	Overall float64
}

// Compare scores two products on all three dimensions.
func Compare(nameA string, brandA *string, sizeA *decimal.Decimal, unitA *string,
	nameB string, brandB *string, sizeB *decimal.Decimal, unitB *string) Score {
	s := Score{
		Name:  NameSimilarity(nameA, nameB),
		Brand: BrandSimilarity(brandA, brandB),
		Size:  SizeSimilarity(sizeA, unitA, sizeB, unitB),
	}
	s.Overall = nameWeight*s.Name + brandWeight*s.Brand + sizeWeight*s.Size
	return s
}
