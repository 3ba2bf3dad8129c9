package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is the connection surface the repository needs. Satisfied by
// *pgxpool.Pool in production and by pgxmock in tests.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the catalog store. Every write runs in a single transaction
// with rollback on error; reads use the pool directly.
type Repository struct {
	db     DBTX
	logger *slog.Logger
}

// NewRepository creates a catalog repository.
func NewRepository(db DBTX, logger *slog.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// wrapErr maps driver and context failures onto the store's sentinel errors.
func wrapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrDeadlineExceeded)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

const productColumns = `id, standard_name, brand, category, size::text, unit, description, status, merged_into, created_at, updated_at`

func scanProduct(row pgx.Row) (*MasterProduct, error) {
	var p MasterProduct
	var size *string
	if err := row.Scan(&p.ID, &p.StandardName, &p.Brand, &p.Category, &size,
		&p.Unit, &p.Description, &p.Status, &p.MergedInto, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if size != nil {
		d, err := decimal.NewFromString(*size)
		if err != nil {
			return nil, fmt.Errorf("decode size: %w", err)
		}
		p.Size = &d
	}
	return &p, nil
}

// UpsertMasterProduct returns the id of the product matching
// (standard_name, brand), creating it when absent. The category row is
// auto-created on first use. The bool result reports creation.
func (r *Repository) UpsertMasterProduct(ctx context.Context, rec IngestRecord) (uuid.UUID, bool, error) {
	if rec.StandardName == "" {
		return uuid.Nil, false, fmt.Errorf("upsert product: empty name: %w", ErrInvalidInput)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, wrapErr("upsert product", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		rec.Category,
	); err != nil {
		return uuid.Nil, false, wrapErr("upsert product", err)
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM master_products
		 WHERE standard_name = $1 AND brand IS NOT DISTINCT FROM $2 AND status <> 'MERGED'`,
		rec.StandardName, rec.Brand,
	).Scan(&id)

	created := false
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx,
			`INSERT INTO master_products (standard_name, brand, category, size, unit, status)
			 VALUES ($1, $2, $3, $4::numeric, $5, 'ACTIVE')
			 RETURNING id`,
			rec.StandardName, rec.Brand, rec.Category, decimalArg(rec.Size), rec.Unit,
		).Scan(&id)
		if err != nil {
			return uuid.Nil, false, wrapErr("upsert product", err)
		}
		created = true
	default:
		return uuid.Nil, false, wrapErr("upsert product", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, wrapErr("upsert product", err)
	}
	return id, created, nil
}

// RecordSupplierPrice upserts the observation keyed by
// (product, supplier, date). A changed price appends a PRICE_UPDATE history
// row; a supplier's first observation of the product appends NEW_SUPPLIER.
// The bool result reports whether a new price row was inserted.
func (r *Repository) RecordSupplierPrice(ctx context.Context, productID uuid.UUID, supplier string, rec IngestRecord, priceDate time.Time) (uuid.UUID, bool, error) {
	if supplier == "" || !rec.Price.IsPositive() {
		return uuid.Nil, false, fmt.Errorf("record price: %w", ErrInvalidInput)
	}
	priceDate = priceDate.UTC().Truncate(24 * time.Hour)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, wrapErr("record price", err)
	}
	defer tx.Rollback(ctx)

	var existingID uuid.UUID
	var existingPrice string
	err = tx.QueryRow(ctx,
		`SELECT id, price::text FROM supplier_prices
		 WHERE product_id = $1 AND supplier_name = $2 AND price_date = $3`,
		productID, supplier, priceDate,
	).Scan(&existingID, &existingPrice)

	switch {
	case err == nil:
		old, decErr := decimal.NewFromString(existingPrice)
		if decErr != nil {
			return uuid.Nil, false, wrapErr("record price", decErr)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE supplier_prices
			 SET price = $1::numeric, original_name = $2, size = $3::numeric, unit = $4,
			     confidence_score = $5, last_seen = NOW()
			 WHERE id = $6`,
			rec.Price.String(), rec.OriginalName, decimalArg(rec.Size), rec.Unit,
			rec.ConfidenceScore, existingID,
		); err != nil {
			return uuid.Nil, false, wrapErr("record price", err)
		}
		if !old.Equal(rec.Price) {
			if err := appendHistory(ctx, tx, productID, supplier, &old, rec.Price, ReasonPriceUpdate); err != nil {
				return uuid.Nil, false, wrapErr("record price", err)
			}
		}
		if err := touchSupplier(ctx, tx, supplier); err != nil {
			return uuid.Nil, false, wrapErr("record price", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return uuid.Nil, false, wrapErr("record price", err)
		}
		return existingID, false, nil

	case errors.Is(err, pgx.ErrNoRows):
	default:
		return uuid.Nil, false, wrapErr("record price", err)
	}

	// First row for this date. History reason depends on whether the supplier
	// has priced this product before.
	var prevPrice *string
	err = tx.QueryRow(ctx,
		`SELECT price::text FROM supplier_prices
		 WHERE product_id = $1 AND supplier_name = $2
		 ORDER BY price_date DESC LIMIT 1`,
		productID, supplier,
	).Scan(&prevPrice)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, wrapErr("record price", err)
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO supplier_prices
		   (product_id, supplier_name, original_name, price, currency, price_date,
		    size, unit, min_order_qty, confidence_score, source, last_seen)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8, $9, $10, $11, NOW())
		 RETURNING id`,
		productID, supplier, rec.OriginalName, rec.Price.String(), rec.Currency,
		priceDate, decimalArg(rec.Size), rec.Unit, rec.MinOrderQty, rec.ConfidenceScore, rec.Source,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, false, wrapErr("record price", err)
	}

	if prevPrice == nil {
		if err := appendHistory(ctx, tx, productID, supplier, nil, rec.Price, ReasonNewSupplier); err != nil {
			return uuid.Nil, false, wrapErr("record price", err)
		}
	} else {
		old, decErr := decimal.NewFromString(*prevPrice)
		if decErr != nil {
			return uuid.Nil, false, wrapErr("record price", decErr)
		}
		if !old.Equal(rec.Price) {
			if err := appendHistory(ctx, tx, productID, supplier, &old, rec.Price, ReasonPriceUpdate); err != nil {
				return uuid.Nil, false, wrapErr("record price", err)
			}
		}
	}

	if err := touchSupplier(ctx, tx, supplier); err != nil {
		return uuid.Nil, false, wrapErr("record price", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, wrapErr("record price", err)
	}
	return id, true, nil
}

// decimalArg renders an optional decimal as a nullable text parameter.
func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func appendHistory(ctx context.Context, tx pgx.Tx, productID uuid.UUID, supplier string, old *decimal.Decimal, newPrice decimal.Decimal, reason HistoryReason) error {
	var oldStr, change *string
	if old != nil {
		s := old.String()
		oldStr = &s
		if !old.IsZero() {
			c := newPrice.Sub(*old).Div(*old).Mul(decimal.NewFromInt(100)).Round(4).String()
			change = &c
		}
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO price_history
		   (product_id, supplier_name, old_price, new_price, change_percentage, change_date, reason)
		 VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, NOW(), $6)`,
		productID, supplier, oldStr, newPrice.String(), change, reason,
	)
	return err
}

func touchSupplier(ctx context.Context, tx pgx.Tx, supplier string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO suppliers (supplier_name, status, reliability_score, last_price_update)
		 VALUES ($1, 'ACTIVE', 0.5, NOW())
		 ON CONFLICT (supplier_name) DO UPDATE SET last_price_update = NOW()`,
		supplier,
	)
	return err
}

// BulkImport applies records in input order, one transaction per record so a
// bad row never poisons the batch. Failures are counted, not raised.
func (r *Repository) BulkImport(ctx context.Context, supplier string, records []IngestRecord) (ImportStats, error) {
	var stats ImportStats
	priceDate := time.Now().UTC()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, wrapErr("bulk import", err)
		}

		productID, created, err := r.UpsertMasterProduct(ctx, rec)
		if err != nil {
			stats.Errors++
			r.logger.Warn("import row failed",
				slog.String("supplier", supplier),
				slog.String("name", rec.StandardName),
				slog.Any("error", err))
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}

		if _, added, err := r.RecordSupplierPrice(ctx, productID, supplier, rec, priceDate); err != nil {
			stats.Errors++
			r.logger.Warn("price row failed",
				slog.String("supplier", supplier),
				slog.String("name", rec.StandardName),
				slog.Any("error", err))
		} else if added {
			stats.AddedPrices++
		}
	}
	return stats, nil
}

// GetProduct fetches one product by id.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (*MasterProduct, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM master_products WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get product", err)
	}
	return p, nil
}

// SearchProducts finds active products whose name or brand contains the term,
// optionally restricted to a category.
func (r *Repository) SearchProducts(ctx context.Context, term, category string, limit int) ([]MasterProduct, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+productColumns+` FROM master_products
		 WHERE status = 'ACTIVE'
		   AND (standard_name ILIKE '%' || $1 || '%' OR brand ILIKE '%' || $1 || '%')
		   AND ($2 = '' OR category = $2)
		 ORDER BY standard_name
		 LIMIT $3`,
		term, category, limit)
	if err != nil {
		return nil, wrapErr("search products", err)
	}
	return collectProducts(rows, "search products")
}

// ProductsInCategory lists active products in a category, capped at limit.
func (r *Repository) ProductsInCategory(ctx context.Context, category string, limit int) ([]MasterProduct, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+productColumns+` FROM master_products
		 WHERE status = 'ACTIVE' AND category = $1
		 ORDER BY standard_name
		 LIMIT $2`,
		category, limit)
	if err != nil {
		return nil, wrapErr("products in category", err)
	}
	return collectProducts(rows, "products in category")
}

// ListProducts pages through active products in stable id order.
func (r *Repository) ListProducts(ctx context.Context, offset, limit int) ([]MasterProduct, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+productColumns+` FROM master_products
		 WHERE status = 'ACTIVE'
		 ORDER BY id
		 OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, wrapErr("list products", err)
	}
	return collectProducts(rows, "list products")
}

func collectProducts(rows pgx.Rows, op string) ([]MasterProduct, error) {
	defer rows.Close()
	var out []MasterProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, *p)
	}
	return out, wrapErr(op, rows.Err())
}

const priceColumns = `id, product_id, supplier_name, original_name, price::text, currency,
	price_date, size::text, unit, min_order_qty, confidence_score, source, last_seen`

func scanPrice(row pgx.Row) (*SupplierPrice, error) {
	var sp SupplierPrice
	var price string
	var size *string
	if err := row.Scan(&sp.ID, &sp.ProductID, &sp.SupplierName, &sp.OriginalName,
		&price, &sp.Currency, &sp.PriceDate, &size, &sp.Unit, &sp.MinOrderQty,
		&sp.ConfidenceScore, &sp.Source, &sp.LastSeen); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("decode price: %w", err)
	}
	sp.Price = d
	if size != nil {
		d, err := decimal.NewFromString(*size)
		if err != nil {
			return nil, fmt.Errorf("decode size: %w", err)
		}
		sp.Size = &d
	}
	return &sp, nil
}

// GetCurrentPrices returns prices observed within the window, cheapest first.
func (r *Repository) GetCurrentPrices(ctx context.Context, productID uuid.UUID, window time.Duration) ([]SupplierPrice, error) {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+priceColumns+` FROM supplier_prices
		 WHERE product_id = $1 AND price_date >= $2
		 ORDER BY price ASC`,
		productID, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, wrapErr("current prices", err)
	}
	defer rows.Close()

	var out []SupplierPrice
	for rows.Next() {
		sp, err := scanPrice(rows)
		if err != nil {
			return nil, wrapErr("current prices", err)
		}
		out = append(out, *sp)
	}
	return out, wrapErr("current prices", rows.Err())
}

// GetBestPrice returns the cheapest in-window observation, or ErrNotFound.
func (r *Repository) GetBestPrice(ctx context.Context, productID uuid.UUID) (*SupplierPrice, error) {
	sp, err := scanPrice(r.db.QueryRow(ctx,
		`SELECT `+priceColumns+` FROM supplier_prices
		 WHERE product_id = $1 AND price_date >= NOW() - INTERVAL '30 days'
		 ORDER BY price ASC
		 LIMIT 1`,
		productID))
	if err != nil {
		return nil, wrapErr("best price", err)
	}
	return sp, nil
}

const historyColumns = `id, product_id, supplier_name, old_price::text, new_price::text,
	change_percentage::text, change_date, reason`

func scanHistory(row pgx.Row) (*PriceHistoryEntry, error) {
	var h PriceHistoryEntry
	var oldPrice, newPrice, change *string
	if err := row.Scan(&h.ID, &h.ProductID, &h.SupplierName, &oldPrice, &newPrice,
		&change, &h.ChangeDate, &h.Reason); err != nil {
		return nil, err
	}
	if newPrice == nil {
		return nil, fmt.Errorf("decode history: null new_price")
	}
	d, err := decimal.NewFromString(*newPrice)
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	h.NewPrice = d
	if oldPrice != nil {
		d, err := decimal.NewFromString(*oldPrice)
		if err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		h.OldPrice = &d
	}
	if change != nil {
		d, err := decimal.NewFromString(*change)
		if err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		h.ChangePercentage = &d
	}
	return &h, nil
}

func collectHistory(rows pgx.Rows, op string) ([]PriceHistoryEntry, error) {
	defer rows.Close()
	var out []PriceHistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, *h)
	}
	return out, wrapErr(op, rows.Err())
}

// GetPriceHistory returns history rows for a product since the given time,
// oldest first.
func (r *Repository) GetPriceHistory(ctx context.Context, productID uuid.UUID, since time.Time) ([]PriceHistoryEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+historyColumns+` FROM price_history
		 WHERE product_id = $1 AND change_date >= $2
		 ORDER BY change_date ASC`,
		productID, since)
	if err != nil {
		return nil, wrapErr("price history", err)
	}
	return collectHistory(rows, "price history")
}

// GetHistorySince returns all history rows across products since the given
// time, oldest first. Used for market trend aggregation.
func (r *Repository) GetHistorySince(ctx context.Context, since time.Time) ([]PriceHistoryEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+historyColumns+` FROM price_history
		 WHERE change_date >= $1
		 ORDER BY change_date ASC`,
		since)
	if err != nil {
		return nil, wrapErr("history since", err)
	}
	return collectHistory(rows, "history since")
}

// GetSupplierHistory returns one supplier's history rows since the given
// time, oldest first.
func (r *Repository) GetSupplierHistory(ctx context.Context, supplier string, since time.Time) ([]PriceHistoryEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+historyColumns+` FROM price_history
		 WHERE supplier_name = $1 AND change_date >= $2
		 ORDER BY change_date ASC`,
		supplier, since)
	if err != nil {
		return nil, wrapErr("supplier history", err)
	}
	return collectHistory(rows, "supplier history")
}

// GetSupplier fetches one supplier row.
func (r *Repository) GetSupplier(ctx context.Context, name string) (*Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx,
		`SELECT supplier_name, status, reliability_score, last_price_update
		 FROM suppliers WHERE supplier_name = $1`,
		name,
	).Scan(&s.Name, &s.Status, &s.ReliabilityScore, &s.LastPriceUpdate)
	if err != nil {
		return nil, wrapErr("get supplier", err)
	}
	return &s, nil
}

// ListSuppliers returns all suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.db.Query(ctx,
		`SELECT supplier_name, status, reliability_score, last_price_update
		 FROM suppliers ORDER BY supplier_name`)
	if err != nil {
		return nil, wrapErr("list suppliers", err)
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.Name, &s.Status, &s.ReliabilityScore, &s.LastPriceUpdate); err != nil {
			return nil, wrapErr("list suppliers", err)
		}
		out = append(out, s)
	}
	return out, wrapErr("list suppliers", rows.Err())
}

// GetSupplierPerformance joins the supplier row with its catalog footprint.
func (r *Repository) GetSupplierPerformance(ctx context.Context, name string) (*SupplierPerformance, error) {
	s, err := r.GetSupplier(ctx, name)
	if err != nil {
		return nil, err
	}

	perf := SupplierPerformance{Supplier: *s}
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT product_id), COUNT(*)
		 FROM supplier_prices WHERE supplier_name = $1`,
		name,
	).Scan(&perf.ProductCount, &perf.PriceCount)
	if err != nil {
		return nil, wrapErr("supplier performance", err)
	}
	return &perf, nil
}

// UpdateSupplierReliability stores a recomputed reliability score.
func (r *Repository) UpdateSupplierReliability(ctx context.Context, name string, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("update reliability: score out of range: %w", ErrInvalidInput)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE suppliers SET reliability_score = $1 WHERE supplier_name = $2`,
		score, name)
	if err != nil {
		return wrapErr("update reliability", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update reliability: %w", ErrNotFound)
	}
	return nil
}

// GetUnifiedCatalog returns per-product price aggregates over the 30-day
// window, optionally restricted to a category.
func (r *Repository) GetUnifiedCatalog(ctx context.Context, category string, limit int) ([]CatalogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT p.id, p.standard_name, p.brand, p.category, p.size::text, p.unit,
		        p.description, p.status, p.merged_into, p.created_at, p.updated_at,
		        MIN(sp.price)::text, MAX(sp.price)::text,
		        (ARRAY_AGG(sp.supplier_name ORDER BY sp.price ASC))[1],
		        COUNT(DISTINCT sp.supplier_name)
		 FROM master_products p
		 JOIN supplier_prices sp ON sp.product_id = p.id
		 WHERE p.status = 'ACTIVE'
		   AND sp.price_date >= NOW() - INTERVAL '30 days'
		   AND ($1 = '' OR p.category = $1)
		 GROUP BY p.id, p.standard_name, p.brand, p.category, p.size, p.unit,
		          p.description, p.status, p.merged_into, p.created_at, p.updated_at
		 ORDER BY p.standard_name
		 LIMIT $2`,
		category, limit)
	if err != nil {
		return nil, wrapErr("unified catalog", err)
	}
	defer rows.Close()

	var out []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		var size, best, worst *string
		if err := rows.Scan(&e.Product.ID, &e.Product.StandardName, &e.Product.Brand,
			&e.Product.Category, &size, &e.Product.Unit, &e.Product.Description,
			&e.Product.Status, &e.Product.MergedInto, &e.Product.CreatedAt,
			&e.Product.UpdatedAt, &best, &worst, &e.BestSupplier, &e.SuppliersCount); err != nil {
			return nil, wrapErr("unified catalog", err)
		}
		if size != nil {
			d, err := decimal.NewFromString(*size)
			if err != nil {
				return nil, wrapErr("unified catalog", err)
			}
			e.Product.Size = &d
		}
		if best == nil || worst == nil {
			continue
		}
		if e.BestPrice, err = decimal.NewFromString(*best); err != nil {
			return nil, wrapErr("unified catalog", err)
		}
		if e.WorstPrice, err = decimal.NewFromString(*worst); err != nil {
			return nil, wrapErr("unified catalog", err)
		}
		out = append(out, e)
	}
	return out, wrapErr("unified catalog", rows.Err())
}

const matchColumns = `id, product_a_id, product_b_id, similarity_score, name_similarity,
	brand_similarity, size_similarity, match_type, reviewed, approved, reviewer, reviewed_at, created_at`

// GetUnreviewedMatches returns unreviewed candidates, highest score first.
func (r *Repository) GetUnreviewedMatches(ctx context.Context, limit int) ([]ProductMatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+matchColumns+` FROM product_matches
		 WHERE NOT reviewed AND match_type <> 'REJECTED'
		 ORDER BY similarity_score DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, wrapErr("unreviewed matches", err)
	}
	defer rows.Close()

	var out []ProductMatch
	for rows.Next() {
		var m ProductMatch
		if err := rows.Scan(&m.ID, &m.ProductAID, &m.ProductBID, &m.SimilarityScore,
			&m.NameSimilarity, &m.BrandSimilarity, &m.SizeSimilarity, &m.MatchType,
			&m.Reviewed, &m.Approved, &m.Reviewer, &m.ReviewedAt, &m.CreatedAt); err != nil {
			return nil, wrapErr("unreviewed matches", err)
		}
		out = append(out, m)
	}
	return out, wrapErr("unreviewed matches", rows.Err())
}

// MatchDetails carries the per-dimension similarity components of a match.
type MatchDetails struct {
	Name  float64
	Brand float64
	Size  float64
}

// RecordMatch stores a pairwise candidate with the pair canonicalized so the
// smaller id comes first. Re-recording an existing pair refreshes its scores.
func (r *Repository) RecordMatch(ctx context.Context, a, b uuid.UUID, score float64, matchType MatchType, details MatchDetails) (uuid.UUID, error) {
	if a == b {
		return uuid.Nil, fmt.Errorf("record match: identical products: %w", ErrInvalidInput)
	}
	a, b = canonicalPair(a, b)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, wrapErr("record match", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO product_matches
		   (product_a_id, product_b_id, similarity_score, name_similarity,
		    brand_similarity, size_similarity, match_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (product_a_id, product_b_id) DO UPDATE
		   SET similarity_score = EXCLUDED.similarity_score,
		       name_similarity = EXCLUDED.name_similarity,
		       brand_similarity = EXCLUDED.brand_similarity,
		       size_similarity = EXCLUDED.size_similarity,
		       match_type = EXCLUDED.match_type
		 RETURNING id`,
		a, b, score, details.Name, details.Brand, details.Size, matchType,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, wrapErr("record match", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, wrapErr("record match", err)
	}
	return id, nil
}

// HasMatch reports whether the canonicalized pair is already recorded.
func (r *Repository) HasMatch(ctx context.Context, a, b uuid.UUID) (bool, error) {
	a, b = canonicalPair(a, b)
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM product_matches WHERE product_a_id = $1 AND product_b_id = $2
		 )`,
		a, b,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("has match", err)
	}
	return exists, nil
}

// ReviewMatch marks a candidate reviewed with the given verdict.
func (r *Repository) ReviewMatch(ctx context.Context, id uuid.UUID, approved bool, reviewer string) error {
	matchType := MatchRejected
	if approved {
		matchType = MatchFuzzy
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE product_matches
		 SET reviewed = TRUE, approved = $1, reviewer = $2, reviewed_at = NOW(),
		     match_type = CASE WHEN $1 THEN match_type ELSE $3 END
		 WHERE id = $4`,
		approved, reviewer, matchType, id)
	if err != nil {
		return wrapErr("review match", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("review match: %w", ErrNotFound)
	}
	return nil
}

// MergeProducts reparents all supplier prices from source to target and marks
// the source MERGED. Same-day duplicates for the same supplier keep the
// target's row. Merging an already-merged source is a conflict.
func (r *Repository) MergeProducts(ctx context.Context, sourceID, targetID uuid.UUID) error {
	if sourceID == targetID {
		return fmt.Errorf("merge products: identical products: %w", ErrInvalidInput)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrapErr("merge products", err)
	}
	defer tx.Rollback(ctx)

	var status ProductStatus
	if err := tx.QueryRow(ctx,
		`SELECT status FROM master_products WHERE id = $1 FOR UPDATE`,
		sourceID,
	).Scan(&status); err != nil {
		return wrapErr("merge products", err)
	}
	if status == StatusMerged {
		return fmt.Errorf("merge products: source %s: %w", sourceID, ErrMergeConflict)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM supplier_prices s
		 WHERE s.product_id = $1
		   AND EXISTS (
		     SELECT 1 FROM supplier_prices t
		     WHERE t.product_id = $2
		       AND t.supplier_name = s.supplier_name
		       AND t.price_date = s.price_date
		   )`,
		sourceID, targetID,
	); err != nil {
		return wrapErr("merge products", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE supplier_prices SET product_id = $1 WHERE product_id = $2`,
		targetID, sourceID,
	); err != nil {
		return wrapErr("merge products", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE master_products
		 SET status = 'MERGED', merged_into = $1, updated_at = NOW()
		 WHERE id = $2`,
		targetID, sourceID,
	); err != nil {
		return wrapErr("merge products", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr("merge products", err)
	}
	r.logger.Info("products merged",
		slog.String("source", sourceID.String()),
		slog.String("target", targetID.String()))
	return nil
}

// DeprecateProduct soft-deletes a product.
func (r *Repository) DeprecateProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE master_products SET status = 'DEPRECATED', updated_at = NOW() WHERE id = $1`,
		id)
	if err != nil {
		return wrapErr("deprecate product", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deprecate product: %w", ErrNotFound)
	}
	return nil
}

func canonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if b.String() < a.String() {
		return b, a
	}
	return a, b
}
