package adapter

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// DefaultCategory is assigned when no keyword rule matches.
const DefaultCategory = "general"

// categoryRules maps keyword tokens to their category tag. The table is
// closed; unknown products fall through to DefaultCategory.
var categoryRules = map[string][]string{
	"beverages":    {"cola", "juice", "jus", "water", "air mineral", "beer", "bir", "tea", "teh", "coffee", "kopi", "susu", "milk", "soda", "sirup"},
	"rice_grains":  {"rice", "beras", "wheat", "gandum", "oats", "jagung", "corn", "tepung", "flour"},
	"cooking_oil":  {"oil", "minyak", "margarine", "margarin", "mentega", "butter"},
	"seasonings":   {"salt", "garam", "sugar", "gula", "pepper", "merica", "kecap", "sauce", "saus", "sambal", "bumbu", "vinegar", "cuka"},
	"instant_food": {"noodle", "mie", "indomie", "pasta", "sarden", "sardine", "kornet", "abon", "biskuit", "biscuit", "snack", "keripik"},
	"dairy_eggs":   {"cheese", "keju", "yogurt", "cream", "krim", "egg", "telur"},
	"produce":      {"apel", "apple", "pisang", "banana", "jeruk", "orange", "tomat", "tomato", "bawang", "onion", "cabai", "chili", "sayur", "vegetable", "buah", "fruit"},
	"meat_fish":    {"ayam", "chicken", "sapi", "beef", "ikan", "fish", "udang", "shrimp", "daging", "meat"},
	"household":    {"sabun", "soap", "detergent", "deterjen", "shampoo", "sampo", "tissue", "tisu", "pembersih", "cleaner", "pasta gigi", "toothpaste"},
}

// CategoryEngine assigns category tags by multi-pattern keyword matching.
// All keywords are matched in a single pass through the name using the
// Aho-Corasick automaton; the longest matched keyword wins so that
// "air mineral" beats "air".
type CategoryEngine struct {
	mu       sync.RWMutex
	matcher  *ahocorasick.Matcher
	keywords []string
	category []string
}

// NewCategoryEngine builds the automaton from the closed rule table.
func NewCategoryEngine() *CategoryEngine {
	e := &CategoryEngine{}
	e.build(categoryRules)
	return e
}

func (e *CategoryEngine) build(rules map[string][]string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.keywords = e.keywords[:0]
	e.category = e.category[:0]
	for cat, words := range rules {
		for _, w := range words {
			e.keywords = append(e.keywords, strings.ToLower(w))
			e.category = append(e.category, cat)
		}
	}
	if len(e.keywords) == 0 {
		e.matcher = nil
		return
	}

	patterns := make([][]byte, len(e.keywords))
	for i, kw := range e.keywords {
		patterns[i] = []byte(kw)
	}
	e.matcher = ahocorasick.NewMatcher(patterns)
}

// Categorize returns the category for a normalized product name. Ties are
// broken by keyword length, longest first.
func (e *CategoryEngine) Categorize(name string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.matcher == nil {
		return DefaultCategory
	}

	hits := e.matcher.Match([]byte(strings.ToLower(name)))
	if len(hits) == 0 {
		return DefaultCategory
	}

	best := -1
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.keywords) {
			continue
		}
		if best == -1 || len(e.keywords[idx]) > len(e.keywords[best]) {
			best = idx
		}
	}
	if best == -1 {
		return DefaultCategory
	}
	return e.category[best]
}
