package unified

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// searchDocument is the indexed projection of a catalog item.
type searchDocument struct {
	Name         string `json:"name"`
	Brand        string `json:"brand"`
	Category     string `json:"category"`
	BestSupplier string `json:"best_supplier"`
}

// SearchIndex is an in-memory full-text index over catalog items. It is
// rebuilt whenever the catalog is regenerated.
type SearchIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	items map[string]CatalogItem
}

// NewSearchIndex creates an empty in-memory index.
func NewSearchIndex() (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &SearchIndex{index: index, items: map[string]CatalogItem{}}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("brand", textFieldMapping)
	docMapping.AddFieldMappingsAt("category", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("best_supplier", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// Rebuild replaces the index contents with the given items.
func (si *SearchIndex) Rebuild(items []CatalogItem) error {
	si.mu.Lock()
	defer si.mu.Unlock()

	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}

	batch := fresh.NewBatch()
	next := make(map[string]CatalogItem, len(items))
	for _, item := range items {
		id := item.ProductID.String()
		brand := ""
		if item.Brand != nil {
			brand = *item.Brand
		}
		doc := searchDocument{
			Name:         item.Name,
			Brand:        brand,
			Category:     item.Category,
			BestSupplier: item.BestSupplier,
		}
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("index item %s: %w", id, err)
		}
		next[id] = item
	}
	if err := fresh.Batch(batch); err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}

	old := si.index
	si.index = fresh
	si.items = next
	if old != nil {
		old.Close()
	}
	return nil
}

// Search runs a fuzzy match query and returns the hit items. Relevance only
// shortlists; the caller reranks by savings and confidence.
func (si *SearchIndex) Search(term, category string, limit int) ([]CatalogItem, error) {
	si.mu.RLock()
	defer si.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	matchQuery := bleve.NewMatchQuery(term)
	matchQuery.SetFuzziness(1)

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit * 2

	result, err := si.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search catalog: %w", err)
	}

	out := make([]CatalogItem, 0, len(result.Hits))
	for _, hit := range result.Hits {
		item, ok := si.items[hit.ID]
		if !ok {
			continue
		}
		if category != "" && item.Category != category {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// Size reports the number of indexed items.
func (si *SearchIndex) Size() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.items)
}
