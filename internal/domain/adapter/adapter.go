// Package adapter converts preprocessor extraction results into canonical
// ingest records: names are normalized, sizes mapped onto base units,
// categories assigned by keyword matching, and records with empty names or
// non-positive prices rejected.
package adapter

import (
	"log/slog"

	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/normalizer"
	"github.com/hargalist/hargalist-api/internal/domain/preprocessor"
	"github.com/hargalist/hargalist-api/pkg/money"
	"github.com/hargalist/hargalist-api/pkg/unit"
)

// BatchStats counts adaptation outcomes for one batch.
type BatchStats struct {
	Original    int
	Final       int
	SuccessRate float64
}

// IngestBatch is the adapter output for one supplier file.
type IngestBatch struct {
	Supplier string
	Source   catalog.PriceSource
	Records  []catalog.IngestRecord
	Stats    BatchStats
}

// Adapter maps extraction pairs to ingest records.
type Adapter struct {
	categories *CategoryEngine
	logger     *slog.Logger
}

// New creates an adapter with the default category rule table.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{categories: NewCategoryEngine(), logger: logger}
}

// Adapt converts every product/price pair in the result into an ingest
// record. Orphan products without a paired price are dropped, as are records
// whose normalized name is empty or whose price is not positive.
func (a *Adapter) Adapt(result *preprocessor.Result, supplier string, source catalog.PriceSource) IngestBatch {
	batch := IngestBatch{Supplier: supplier, Source: source}

	pairs := result.Pairs()
	batch.Stats.Original = len(pairs)

	for _, pair := range pairs {
		rec, ok := a.adaptPair(pair)
		if !ok {
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	batch.Stats.Final = len(batch.Records)
	if batch.Stats.Original > 0 {
		batch.Stats.SuccessRate = float64(batch.Stats.Final) / float64(batch.Stats.Original)
	}

	a.logger.Info("batch adapted",
		slog.String("supplier", supplier),
		slog.Int("original", batch.Stats.Original),
		slog.Int("final", batch.Stats.Final),
	)
	return batch
}

func (a *Adapter) adaptPair(pair preprocessor.Pair) (catalog.IngestRecord, bool) {
	if !pair.Price.Value.IsPositive() {
		return catalog.IngestRecord{}, false
	}

	extracted, hasSize := normalizer.ExtractSize(pair.Product.Name)
	name := normalizer.NormalizeName(pair.Product.Name)
	if hasSize {
		if remainder := normalizer.NormalizeName(extracted.Remainder); remainder != "" {
			name = remainder
		}
	}
	if name == "" {
		a.logger.Debug("record rejected", slog.String("name", pair.Product.Name))
		return catalog.IngestRecord{}, false
	}

	rec := catalog.IngestRecord{
		StandardName:    name,
		OriginalName:    pair.Product.Name,
		Category:        a.categories.Categorize(name),
		Price:           pair.Price.Value,
		Currency:        money.DefaultCurrency,
		MinOrderQty:     1,
		ConfidenceScore: pair.Confidence,
	}

	if hasSize {
		if base, family, err := unit.ToBase(extracted.Size, extracted.Unit); err == nil {
			tag := unit.BaseTag(family)
			rec.Size = &base
			rec.Unit = &tag
		}
		// UnknownUnit means the size is not normalizable, not a bad record.
	}

	return rec, true
}

// AdaptRecords wraps already-canonical rows, applying the same rejection
// rules. Used by manual and API ingestion paths.
func (a *Adapter) AdaptRecords(records []catalog.IngestRecord, supplier string, source catalog.PriceSource) IngestBatch {
	batch := IngestBatch{Supplier: supplier, Source: source}
	batch.Stats.Original = len(records)

	for _, rec := range records {
		name := normalizer.NormalizeName(rec.StandardName)
		if name == "" || !rec.Price.IsPositive() {
			continue
		}
		rec.StandardName = name
		if rec.Brand != nil {
			if brand := normalizer.NormalizeBrand(*rec.Brand); brand != "" {
				rec.Brand = &brand
			} else {
				rec.Brand = nil
			}
		}
		if rec.Category == "" {
			rec.Category = a.categories.Categorize(name)
		}
		if rec.Currency == "" {
			rec.Currency = money.DefaultCurrency
		}
		if rec.MinOrderQty < 1 {
			rec.MinOrderQty = 1
		}
		if rec.Size != nil && !rec.Size.IsPositive() {
			rec.Size = nil
			rec.Unit = nil
		}
		batch.Records = append(batch.Records, rec)
	}

	batch.Stats.Final = len(batch.Records)
	if batch.Stats.Original > 0 {
		batch.Stats.SuccessRate = float64(batch.Stats.Final) / float64(batch.Stats.Original)
	}
	return batch
}
