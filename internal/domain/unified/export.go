package unified

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hargalist/hargalist-api/internal/domain/pricing"
	"github.com/hargalist/hargalist-api/pkg/money"
)

// Export wire types. Prices travel as decimal strings and timestamps as
// ISO-8601 UTC so external consumers never see float artifacts.

type exportItem struct {
	ProductID         string  `json:"product_id"`
	Name              string  `json:"name"`
	Brand             *string `json:"brand,omitempty"`
	Category          string  `json:"category"`
	Size              *string `json:"size,omitempty"`
	Unit              *string `json:"unit,omitempty"`
	BestPrice         string  `json:"best_price"`
	BestSupplier      string  `json:"best_supplier"`
	WorstPrice        string  `json:"worst_price"`
	SuppliersCount    int     `json:"suppliers_count"`
	SavingsPercentage float64 `json:"savings_percentage"`
	PriceTrend        string  `json:"price_trend"`
	ConfidenceScore   float64 `json:"confidence_score"`
}

type exportDocument struct {
	GeneratedAt string       `json:"generated_at"`
	Currency    string       `json:"currency"`
	ItemCount   int          `json:"item_count"`
	Items       []exportItem `json:"items"`
}

// ExportCatalog serializes the full catalog to JSON.
func (m *Manager) ExportCatalog(ctx context.Context) ([]byte, error) {
	items, err := m.GenerateCatalog(ctx, "", 1, true)
	if err != nil {
		return nil, err
	}

	doc := exportDocument{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Currency:    money.DefaultCurrency,
		ItemCount:   len(items),
		Items:       make([]exportItem, 0, len(items)),
	}
	for _, item := range items {
		out := exportItem{
			ProductID:         item.ProductID.String(),
			Name:              item.Name,
			Brand:             item.Brand,
			Category:          item.Category,
			Unit:              item.Unit,
			BestPrice:         item.BestPrice.String(),
			BestSupplier:      item.BestSupplier,
			WorstPrice:        item.WorstPrice.String(),
			SuppliersCount:    item.SuppliersCount,
			SavingsPercentage: item.SavingsPercentage,
			PriceTrend:        item.PriceTrend,
			ConfidenceScore:   item.ConfidenceScore,
		}
		if item.Size != nil {
			s := item.Size.String()
			out.Size = &s
		}
		doc.Items = append(doc.Items, out)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export catalog: %w", err)
	}
	return data, nil
}

type reportLine struct {
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	Supplier    string   `json:"supplier"`
	UnitPrice   string   `json:"unit_price"`
	Quantity    int      `json:"quantity"`
	Total       string   `json:"total"`
	Savings     float64  `json:"savings_percentage"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	ExpiresAt   string   `json:"expires_at"`
	Fallbacks   []string `json:"fallback_suppliers,omitempty"`
}

type procurementDocument struct {
	GeneratedAt string       `json:"generated_at"`
	Currency    string       `json:"currency"`
	TotalCost   string       `json:"total_cost"`
	Budget      *string      `json:"budget,omitempty"`
	Unmatched   []string     `json:"unmatched,omitempty"`
	Lines       []reportLine `json:"lines"`
}

// ProcurementReport builds recommendations for the requested items and
// serializes them for external callers.
func (m *Manager) ProcurementReport(ctx context.Context, required []pricing.RequiredProduct, budget *decimal.Decimal) ([]byte, error) {
	set, err := m.analyzer.Recommend(ctx, required, budget)
	if err != nil {
		return nil, err
	}

	doc := procurementDocument{
		GeneratedAt: set.GeneratedAt.UTC().Format(time.RFC3339),
		Currency:    money.DefaultCurrency,
		TotalCost:   set.TotalCost.String(),
		Unmatched:   set.Unmatched,
		Lines:       make([]reportLine, 0, len(set.Recommendations)),
	}
	if budget != nil {
		b := budget.String()
		doc.Budget = &b
	}
	for _, rec := range set.Recommendations {
		line := reportLine{
			ProductID:   rec.ProductID.String(),
			ProductName: rec.ProductName,
			Supplier:    rec.Supplier,
			UnitPrice:   rec.Price.String(),
			Quantity:    rec.Quantity,
			Total:       rec.Total.String(),
			Savings:     rec.Savings,
			Confidence:  rec.Confidence,
			Reasoning:   rec.Reasoning,
			ExpiresAt:   rec.ExpiresAt.UTC().Format(time.RFC3339),
		}
		for _, alt := range rec.Alternatives {
			line.Fallbacks = append(line.Fallbacks, alt.Supplier)
		}
		doc.Lines = append(doc.Lines, line)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("procurement report: %w", err)
	}
	return data, nil
}
