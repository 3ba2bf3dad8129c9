package preprocessor

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// PriceListRow is a raw CSV row. The tags cover the common header spellings
// seen in supplier exports; gocsv matches by header name.
type PriceListRow struct {
	Name        string `csv:"name"`
	Nama        string `csv:"nama"`
	NamaProduk  string `csv:"nama produk"`
	Barang      string `csv:"barang"`
	Produk      string `csv:"produk"`
	Item        string `csv:"item"`
	Product     string `csv:"product"`
	Description string `csv:"description"`

	Price string `csv:"price"`
	Harga string `csv:"harga"`
	Cost  string `csv:"cost"`
	Biaya string `csv:"biaya"`
	Tarif string `csv:"tarif"`

	Unit string `csv:"unit"`
	Qty  string `csv:"qty"`
}

func (r PriceListRow) productName() string {
	return coalesce(r.Name, r.Nama, r.NamaProduk, r.Barang, r.Produk, r.Item, r.Product, r.Description)
}

func (r PriceListRow) priceCell() string {
	return coalesce(r.Price, r.Harga, r.Cost, r.Biaya, r.Tarif)
}

// ProcessCSV parses a CSV price list into the same result shape as workbook
// processing. Files whose headers match the known column names go through
// struct-based unmarshaling; anything else falls back to the grid scanner.
func (p *Preprocessor) ProcessCSV(ctx context.Context, r io.Reader) *Result {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Result{ParseError: fmt.Sprintf("read csv: %v", err)}
	}

	var rows []PriceListRow
	if err := gocsv.UnmarshalBytes(data, &rows); err == nil && hasUsableRows(rows) {
		return p.csvRowsResult(ctx, rows)
	}

	// Headers did not line up with the struct tags; treat the file as a raw
	// grid and let strategy selection sort it out.
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var grid [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &Result{ParseError: fmt.Sprintf("parse csv: %v", err)}
		}
		grid = append(grid, record)
	}
	return p.ProcessRows(ctx, "csv", grid)
}

func hasUsableRows(rows []PriceListRow) bool {
	for _, row := range rows {
		if row.productName() != "" && row.priceCell() != "" {
			return true
		}
	}
	return false
}

func (p *Preprocessor) csvRowsResult(ctx context.Context, rows []PriceListRow) *Result {
	sheet := SheetResult{Name: "csv", Strategy: StrategySingleColumn}

	for i, row := range rows {
		if expired(ctx) {
			sheet.Strategy = StrategyTimedOut
			break
		}
		name := row.productName()
		if name == "" || !isLikelyProduct(name) {
			continue
		}
		sheet.Products = append(sheet.Products, Product{
			Name: name, Row: i + 1, Col: 0, Confidence: productConfidence,
		})
		if cell := row.priceCell(); cell != "" {
			if price, ok := p.toPrice(cell, i+1, 1); ok {
				sheet.Prices = append(sheet.Prices, price)
			}
		}
	}

	sheet.Products = dedupProducts(sheet.Products)
	sheet.Prices = dedupPrices(sheet.Prices)
	sheet.Pairs = pairRows(sheet.Products, sheet.Prices)
	sheet.Completeness = completeness(len(sheet.Pairs), len(sheet.Products), 0)

	return &Result{Sheets: []SheetResult{sheet}}
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
