// Package catalog defines the product, outlet, and price snapshot records
// shared across subsystems.
package catalog

import "time"

// Outlet is a cached copy of upstream store-location metadata.
type Outlet struct {
	ID         string    `db:"outlet_id" json:"outlet_id"`
	Name       string    `db:"name" json:"name"`
	Address    string    `db:"address" json:"address"`
	Region     string    `db:"region" json:"region"`
	Lat        float64   `db:"lat" json:"lat"`
	Lon        float64   `db:"lon" json:"lon"`
	LastSynced time.Time `db:"last_synced" json:"last_synced"`
}

// Product is the store-agnostic master record for a catalog item.
// FirstSeen is immutable after creation; LastSeen only advances forward.
type Product struct {
	ID          string    `db:"product_id" json:"product_id"`
	Name        string    `db:"name" json:"name"`
	Brand       string    `db:"brand" json:"brand"`
	Category    string    `db:"category" json:"category"`
	Subcategory string    `db:"subcategory" json:"subcategory"`
	CategoryL2  string    `db:"category_l2" json:"category_l2"`
	Origin      string    `db:"origin" json:"origin"`
	SaleType    string    `db:"sale_type" json:"sale_type"`
	FirstSeen   time.Time `db:"first_seen" json:"first_seen"`
	LastSeen    time.Time `db:"last_seen" json:"last_seen"`
}

// PriceSnapshot is one timestamped price observation for a product at an
// outlet. Snapshots are append-only and unique on (product, outlet, scraped_at).
type PriceSnapshot struct {
	ID                int64     `db:"id" json:"id"`
	ProductID         string    `db:"product_id" json:"product_id"`
	OutletID          string    `db:"outlet_id" json:"outlet_id"`
	ScrapedAt         time.Time `db:"scraped_at" json:"scraped_at"`
	Price             float64   `db:"price" json:"price"`
	PricePerUnit      *float64  `db:"price_per_unit" json:"price_per_unit,omitempty"`
	Unit              string    `db:"unit" json:"unit"`
	DisplayName       string    `db:"display_name" json:"display_name"`
	InStore           bool      `db:"in_store" json:"in_store"`
	Online            bool      `db:"online" json:"online"`
	PromoPrice        *float64  `db:"promo_price" json:"promo_price,omitempty"`
	PromoPricePerUnit *float64  `db:"promo_price_per_unit" json:"promo_price_per_unit,omitempty"`
	PromoType         *string   `db:"promo_type" json:"promo_type,omitempty"`
	PromoDesc         *string   `db:"promo_desc" json:"promo_desc,omitempty"`
	PromoCardRequired *bool     `db:"promo_card_required" json:"promo_card_required,omitempty"`
	PromoLimit        *int      `db:"promo_limit" json:"promo_limit,omitempty"`
}

// RawPromo is the promotion sub-record as delivered by the upstream API.
type RawPromo struct {
	Price        *float64 `json:"price"`
	PricePerUnit *float64 `json:"price_per_unit"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	CardRequired bool     `json:"card_required"`
	Limit        *int     `json:"limit"`
}

// RawProduct is one unvalidated record from a catalog page.
type RawProduct struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Brand        string    `json:"brand"`
	Category     string    `json:"category"`
	Subcategory  string    `json:"subcategory"`
	CategoryL2   string    `json:"category_l2"`
	Origin       string    `json:"origin"`
	SaleType     string    `json:"sale_type"`
	Price        float64   `json:"price"`
	PricePerUnit *float64  `json:"price_per_unit"`
	Unit         string    `json:"unit"`
	DisplayName  string    `json:"display_name"`
	InStore      bool      `json:"in_store"`
	Online       bool      `json:"online"`
	Promo        *RawPromo `json:"promo"`
}
