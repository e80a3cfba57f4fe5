package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwatch/crawler/internal/catalog"
)

// UpsertOutlet inserts or refreshes a cached outlet record by primary key.
func (s *Store) UpsertOutlet(ctx context.Context, outlet catalog.Outlet) error {
	outlet.LastSynced = outlet.LastSynced.UTC()
	const q = `
		INSERT INTO outlets (outlet_id, name, address, region, lat, lon, last_synced)
		VALUES (:outlet_id, :name, :address, :region, :lat, :lon, :last_synced)
		ON CONFLICT (outlet_id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			region = excluded.region,
			lat = excluded.lat,
			lon = excluded.lon,
			last_synced = excluded.last_synced`
	if _, err := s.db.NamedExecContext(ctx, q, outlet); err != nil {
		return fmt.Errorf("upsert outlet %s: %w", outlet.ID, err)
	}
	return nil
}

// Outlets returns all cached outlets ordered by identifier.
func (s *Store) Outlets(ctx context.Context) ([]catalog.Outlet, error) {
	var outlets []catalog.Outlet
	const q = `SELECT * FROM outlets ORDER BY outlet_id`
	if err := s.db.SelectContext(ctx, &outlets, q); err != nil {
		return nil, fmt.Errorf("list outlets: %w", err)
	}
	return outlets, nil
}

const upsertProductQuery = `
	INSERT INTO products (product_id, name, brand, category, subcategory,
		category_l2, origin, sale_type, first_seen, last_seen)
	VALUES (:product_id, :name, :brand, :category, :subcategory,
		:category_l2, :origin, :sale_type, :first_seen, :last_seen)
	ON CONFLICT (product_id) DO UPDATE SET
		name = excluded.name,
		brand = excluded.brand,
		category = excluded.category,
		subcategory = excluded.subcategory,
		category_l2 = excluded.category_l2,
		origin = excluded.origin,
		sale_type = excluded.sale_type,
		last_seen = MAX(products.last_seen, excluded.last_seen)`

// UpsertProduct inserts or updates a master product record. first_seen is
// preserved on conflict and last_seen only advances forward.
func (s *Store) UpsertProduct(ctx context.Context, product catalog.Product) error {
	product.FirstSeen = product.FirstSeen.UTC()
	product.LastSeen = product.LastSeen.UTC()
	if _, err := s.db.NamedExecContext(ctx, upsertProductQuery, product); err != nil {
		return fmt.Errorf("upsert product %s: %w", product.ID, err)
	}
	return nil
}

const insertSnapshotQuery = `
	INSERT INTO price_snapshots (product_id, outlet_id, scraped_at, price,
		price_per_unit, unit, display_name, in_store, online, promo_price,
		promo_price_per_unit, promo_type, promo_desc, promo_card_required, promo_limit)
	VALUES (:product_id, :outlet_id, :scraped_at, :price,
		:price_per_unit, :unit, :display_name, :in_store, :online, :promo_price,
		:promo_price_per_unit, :promo_type, :promo_desc, :promo_card_required, :promo_limit)`

// InsertSnapshot appends one price observation. A duplicate
// (product, outlet, scraped_at) triple fails with ErrDuplicateSnapshot rather
// than silently overwriting history.
func (s *Store) InsertSnapshot(ctx context.Context, snapshot catalog.PriceSnapshot) error {
	snapshot.ScrapedAt = snapshot.ScrapedAt.UTC()
	if _, err := s.db.NamedExecContext(ctx, insertSnapshotQuery, snapshot); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("snapshot (%s, %s, %s): %w",
				snapshot.ProductID, snapshot.OutletID,
				snapshot.ScrapedAt.Format(time.RFC3339), ErrDuplicateSnapshot)
		}
		return fmt.Errorf("insert snapshot for %s: %w", snapshot.ProductID, err)
	}
	return nil
}

// SaveBatch persists one crawl result in a single all-or-nothing transaction:
// either every product upsert and snapshot insert commits, or none does.
func (s *Store) SaveBatch(ctx context.Context, products []catalog.Product, snapshots []catalog.PriceSnapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, product := range products {
		product.FirstSeen = product.FirstSeen.UTC()
		product.LastSeen = product.LastSeen.UTC()
		if _, err := tx.NamedExecContext(ctx, upsertProductQuery, product); err != nil {
			return fmt.Errorf("batch upsert product %s: %w", product.ID, err)
		}
	}
	for _, snapshot := range snapshots {
		snapshot.ScrapedAt = snapshot.ScrapedAt.UTC()
		if _, err := tx.NamedExecContext(ctx, insertSnapshotQuery, snapshot); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("batch snapshot (%s, %s): %w",
					snapshot.ProductID, snapshot.OutletID, ErrDuplicateSnapshot)
			}
			return fmt.Errorf("batch insert snapshot %s: %w", snapshot.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// ProductHistory returns all snapshots for a product in ascending capture
// order, optionally restricted to one outlet.
func (s *Store) ProductHistory(ctx context.Context, productID, outletID string) ([]catalog.PriceSnapshot, error) {
	var (
		rows []catalog.PriceSnapshot
		err  error
	)
	if outletID == "" {
		const q = `SELECT * FROM price_snapshots WHERE product_id = ? ORDER BY scraped_at ASC`
		err = s.db.SelectContext(ctx, &rows, q, productID)
	} else {
		const q = `SELECT * FROM price_snapshots WHERE product_id = ? AND outlet_id = ? ORDER BY scraped_at ASC`
		err = s.db.SelectContext(ctx, &rows, q, productID, outletID)
	}
	if err != nil {
		return nil, fmt.Errorf("product history %s: %w", productID, err)
	}
	return rows, nil
}

// LatestPrice is the most recent observation for one product.
type LatestPrice struct {
	ProductID  string    `db:"product_id" json:"product_id"`
	Name       string    `db:"name" json:"name"`
	Brand      string    `db:"brand" json:"brand"`
	Category   string    `db:"category" json:"category"`
	OutletID   string    `db:"outlet_id" json:"outlet_id"`
	Price      float64   `db:"price" json:"price"`
	PromoPrice *float64  `db:"promo_price" json:"promo_price,omitempty"`
	ScrapedAt  time.Time `db:"scraped_at" json:"scraped_at"`
}

// LatestPrices returns the most recent snapshot per product, optionally
// filtered to one top-level category.
func (s *Store) LatestPrices(ctx context.Context, category string) ([]LatestPrice, error) {
	const q = `
		SELECT p.product_id, p.name, p.brand, p.category,
			ps.outlet_id, ps.price, ps.promo_price, ps.scraped_at
		FROM products p
		JOIN price_snapshots ps ON ps.product_id = p.product_id
		WHERE ps.scraped_at = (
			SELECT MAX(inner_ps.scraped_at)
			FROM price_snapshots inner_ps
			WHERE inner_ps.product_id = p.product_id
		)
		AND (? = '' OR p.category = ?)
		ORDER BY p.product_id`
	var rows []LatestPrice
	if err := s.db.SelectContext(ctx, &rows, q, category, category); err != nil {
		return nil, fmt.Errorf("latest prices: %w", err)
	}
	return rows, nil
}

// SearchProducts returns products whose name or brand contains the query,
// case-insensitively.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]catalog.Product, error) {
	pattern := "%" + query + "%"
	const q = `
		SELECT * FROM products
		WHERE name LIKE ? COLLATE NOCASE OR brand LIKE ? COLLATE NOCASE
		ORDER BY name`
	var rows []catalog.Product
	if err := s.db.SelectContext(ctx, &rows, q, pattern, pattern); err != nil {
		return nil, fmt.Errorf("search products %q: %w", query, err)
	}
	return rows, nil
}

// ProductByID fetches one master record.
func (s *Store) ProductByID(ctx context.Context, productID string) (catalog.Product, error) {
	var product catalog.Product
	const q = `SELECT * FROM products WHERE product_id = ?`
	if err := s.db.GetContext(ctx, &product, q, productID); err != nil {
		return catalog.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	return product, nil
}
