package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus is the lifecycle state of a master product.
type ProductStatus string

const (
	StatusActive     ProductStatus = "ACTIVE"
	StatusMerged     ProductStatus = "MERGED"
	StatusDeprecated ProductStatus = "DEPRECATED"
)

// PriceSource identifies where a price observation came from.
type PriceSource string

const (
	SourceSpreadsheet PriceSource = "SPREADSHEET"
	SourcePDF         PriceSource = "PDF"
	SourceManual      PriceSource = "MANUAL"
	SourceAPI         PriceSource = "API"
)

// HistoryReason explains a price history entry.
type HistoryReason string

const (
	ReasonNewSupplier HistoryReason = "NEW_SUPPLIER"
	ReasonPriceUpdate HistoryReason = "PRICE_UPDATE"
	ReasonCorrection  HistoryReason = "CORRECTION"
)

// MatchType classifies a product match candidate.
type MatchType string

const (
	MatchExact    MatchType = "EXACT"
	MatchFuzzy    MatchType = "FUZZY"
	MatchRejected MatchType = "REJECTED"
)

// MasterProduct is a canonical SKU. A MERGED product points at the product
// its prices were reparented into; no supplier price refers to a MERGED
// product.
type MasterProduct struct {
	ID           uuid.UUID
	StandardName string
	Brand        *string
	Category     string
	Size         *decimal.Decimal
	Unit         *string
	Description  *string
	Status       ProductStatus
	MergedInto   *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SupplierPrice is one price observation. At most one row exists per
// (product, supplier, price date); same-day re-observations overwrite in
// place. Size and Unit describe the observed pack, which may differ from the
// master product's pack.
type SupplierPrice struct {
	ID              uuid.UUID
	ProductID       uuid.UUID
	SupplierName    string
	OriginalName    string
	Price           decimal.Decimal
	Currency        string
	PriceDate       time.Time
	Size            *decimal.Decimal
	Unit            *string
	MinOrderQty     int
	ConfidenceScore float64
	Source          PriceSource
	LastSeen        time.Time
}

// PriceHistoryEntry is an append-only record of a price change. OldPrice is
// nil for a supplier's first observation of a product.
type PriceHistoryEntry struct {
	ID               uuid.UUID
	ProductID        uuid.UUID
	SupplierName     string
	OldPrice         *decimal.Decimal
	NewPrice         decimal.Decimal
	ChangePercentage *decimal.Decimal
	ChangeDate       time.Time
	Reason           HistoryReason
}

// Supplier aggregates per-source state.
type Supplier struct {
	Name             string
	Status           string
	ReliabilityScore float64
	LastPriceUpdate  *time.Time
}

// ProductMatch is a pairwise equivalence candidate. The pair is stored
// canonicalized with ProductAID < ProductBID so each pair is unique
// regardless of argument order.
type ProductMatch struct {
	ID              uuid.UUID
	ProductAID      uuid.UUID
	ProductBID      uuid.UUID
	SimilarityScore float64
	NameSimilarity  float64
	BrandSimilarity float64
	SizeSimilarity  float64
	MatchType       MatchType
	Reviewed        bool
	Approved        bool
	Reviewer        *string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
}

// IngestRecord is one canonical row produced by the data adapter, ready for
// bulk import.
type IngestRecord struct {
	StandardName    string
	OriginalName    string
	Brand           *string
	Category        string
	Size            *decimal.Decimal
	Unit            *string
	Price           decimal.Decimal
	Currency        string
	MinOrderQty     int
	ConfidenceScore float64
	Source          PriceSource
}

// ImportStats summarizes one bulk import.
type ImportStats struct {
	Created     int
	Updated     int
	AddedPrices int
	Errors      int
}

// CatalogEntry is the per-product aggregate returned by the unified catalog
// query.
type CatalogEntry struct {
	Product        MasterProduct
	BestPrice      decimal.Decimal
	WorstPrice     decimal.Decimal
	BestSupplier   string
	SuppliersCount int
}

// SupplierPerformance is the read view for one supplier.
type SupplierPerformance struct {
	Supplier     Supplier
	ProductCount int
	PriceCount   int
}
