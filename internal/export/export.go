// Package export writes store query results as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shelfwatch/crawler/internal/catalog"
	"github.com/shelfwatch/crawler/internal/store"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatCSV, FormatJSON:
		return Format(name), nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv or json)", name)
	}
}

// LatestPrices writes the latest-price rows in the given format.
func LatestPrices(w io.Writer, format Format, rows []store.LatestPrice) error {
	if format == FormatJSON {
		return writeJSON(w, rows)
	}

	cw := csv.NewWriter(w)
	header := []string{"product_id", "name", "brand", "category", "outlet_id", "price", "promo_price", "scraped_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.ProductID,
			row.Name,
			row.Brand,
			row.Category,
			row.OutletID,
			formatPrice(row.Price),
			formatOptionalPrice(row.PromoPrice),
			row.ScrapedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// History writes one product's snapshot history in the given format.
func History(w io.Writer, format Format, snapshots []catalog.PriceSnapshot) error {
	if format == FormatJSON {
		return writeJSON(w, snapshots)
	}

	cw := csv.NewWriter(w)
	header := []string{"product_id", "outlet_id", "scraped_at", "price", "promo_price", "unit", "in_store", "online"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, snap := range snapshots {
		record := []string{
			snap.ProductID,
			snap.OutletID,
			snap.ScrapedAt.UTC().Format(time.RFC3339),
			formatPrice(snap.Price),
			formatOptionalPrice(snap.PromoPrice),
			snap.Unit,
			strconv.FormatBool(snap.InStore),
			strconv.FormatBool(snap.Online),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptionalPrice(v *float64) string {
	if v == nil {
		return ""
	}
	return formatPrice(*v)
}
