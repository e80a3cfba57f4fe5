package catalog

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports a raw record that failed validation. It is never
// retryable: retrying the same payload cannot change the outcome.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: field %q: %s", e.Field, e.Message)
}

// Retryable marks validation failures as fatal for the call.
func (e *ValidationError) Retryable() bool { return false }

// ParseRecord validates a raw upstream record and converts it into a master
// Product row plus one PriceSnapshot for the given outlet and capture time.
func ParseRecord(raw RawProduct, outletID string, scrapedAt time.Time) (Product, PriceSnapshot, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return Product{}, PriceSnapshot{}, &ValidationError{Field: "id", Message: "must not be empty"}
	}
	if strings.TrimSpace(raw.Name) == "" {
		return Product{}, PriceSnapshot{}, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if raw.Price <= 0 {
		return Product{}, PriceSnapshot{}, &ValidationError{Field: "price", Message: "must be > 0"}
	}
	if raw.PricePerUnit != nil && *raw.PricePerUnit < 0 {
		return Product{}, PriceSnapshot{}, &ValidationError{Field: "price_per_unit", Message: "must be >= 0"}
	}
	if outletID == "" {
		return Product{}, PriceSnapshot{}, &ValidationError{Field: "outlet_id", Message: "must not be empty"}
	}

	ts := scrapedAt.UTC()
	product := Product{
		ID:          raw.ID,
		Name:        raw.Name,
		Brand:       raw.Brand,
		Category:    raw.Category,
		Subcategory: raw.Subcategory,
		CategoryL2:  raw.CategoryL2,
		Origin:      raw.Origin,
		SaleType:    raw.SaleType,
		FirstSeen:   ts,
		LastSeen:    ts,
	}
	snapshot := PriceSnapshot{
		ProductID:    raw.ID,
		OutletID:     outletID,
		ScrapedAt:    ts,
		Price:        raw.Price,
		PricePerUnit: raw.PricePerUnit,
		Unit:         raw.Unit,
		DisplayName:  raw.DisplayName,
		InStore:      raw.InStore,
		Online:       raw.Online,
	}
	if raw.Promo != nil {
		if raw.Promo.Price != nil && *raw.Promo.Price <= 0 {
			return Product{}, PriceSnapshot{}, &ValidationError{Field: "promo.price", Message: "must be > 0"}
		}
		snapshot.PromoPrice = raw.Promo.Price
		snapshot.PromoPricePerUnit = raw.Promo.PricePerUnit
		if raw.Promo.Type != "" {
			promoType := raw.Promo.Type
			snapshot.PromoType = &promoType
		}
		if raw.Promo.Description != "" {
			promoDesc := raw.Promo.Description
			snapshot.PromoDesc = &promoDesc
		}
		card := raw.Promo.CardRequired
		snapshot.PromoCardRequired = &card
		snapshot.PromoLimit = raw.Promo.Limit
	}
	return product, snapshot, nil
}
