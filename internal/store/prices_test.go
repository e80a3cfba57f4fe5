package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfwatch/crawler/internal/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testOutlet(id string) catalog.Outlet {
	return catalog.Outlet{
		ID:         id,
		Name:       "Outlet " + id,
		Address:    "1 Main St",
		Region:     "north",
		Lat:        54.68,
		Lon:        25.28,
		LastSynced: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

func testProduct(id string, seen time.Time) catalog.Product {
	return catalog.Product{
		ID:        id,
		Name:      "Product " + id,
		Brand:     "Brandco",
		Category:  "food",
		FirstSeen: seen,
		LastSeen:  seen,
	}
}

func testSnapshot(productID, outletID string, at time.Time, price float64) catalog.PriceSnapshot {
	return catalog.PriceSnapshot{
		ProductID: productID,
		OutletID:  outletID,
		ScrapedAt: at,
		Price:     price,
		Unit:      "kg",
		InStore:   true,
		Online:    true,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestUpsertOutlet_Idempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	outlet := testOutlet("outlet-1")
	require.NoError(t, s.UpsertOutlet(ctx, outlet))

	outlet.Name = "Renamed"
	require.NoError(t, s.UpsertOutlet(ctx, outlet))

	outlets, err := s.Outlets(ctx)
	require.NoError(t, err)
	require.Len(t, outlets, 1)
	require.Equal(t, "Renamed", outlets[0].Name)
}

func TestUpsertProduct_PreservesFirstSeenAndAdvancesLastSeen(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	require.NoError(t, s.UpsertProduct(ctx, testProduct("sku-1", day1)))

	later := testProduct("sku-1", day2)
	later.Name = "Product sku-1 renamed"
	require.NoError(t, s.UpsertProduct(ctx, later))

	got, err := s.ProductByID(ctx, "sku-1")
	require.NoError(t, err)
	require.Equal(t, "Product sku-1 renamed", got.Name)
	require.True(t, got.FirstSeen.Equal(day1), "first_seen must be immutable")
	require.True(t, got.LastSeen.Equal(day2))

	// A stale sighting must not move last_seen backwards.
	require.NoError(t, s.UpsertProduct(ctx, testProduct("sku-1", day1)))
	got, err = s.ProductByID(ctx, "sku-1")
	require.NoError(t, err)
	require.True(t, got.LastSeen.Equal(day2), "last_seen only advances forward")
}

func TestInsertSnapshot_DuplicateSurfacesDistinctError(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertOutlet(ctx, testOutlet("outlet-1")))
	require.NoError(t, s.UpsertProduct(ctx, testProduct("sku-1", at)))

	require.NoError(t, s.InsertSnapshot(ctx, testSnapshot("sku-1", "outlet-1", at, 2.5)))
	err := s.InsertSnapshot(ctx, testSnapshot("sku-1", "outlet-1", at, 2.6))
	require.ErrorIs(t, err, ErrDuplicateSnapshot)
}

func TestProductHistory_AscendingOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertOutlet(ctx, testOutlet("outlet-1")))
	require.NoError(t, s.UpsertProduct(ctx, testProduct("sku-1", base)))

	// Insert out of chronological order.
	for _, offset := range []time.Duration{48 * time.Hour, 0, 24 * time.Hour} {
		snap := testSnapshot("sku-1", "outlet-1", base.Add(offset), 2.0+offset.Hours()/100)
		require.NoError(t, s.InsertSnapshot(ctx, snap))
	}

	history, err := s.ProductHistory(ctx, "sku-1", "")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		require.True(t, history[i].ScrapedAt.After(history[i-1].ScrapedAt))
	}
}

func TestSaveBatch_Atomic(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertOutlet(ctx, testOutlet("outlet-1")))

	products := []catalog.Product{
		testProduct("sku-1", at),
		testProduct("sku-2", at),
		testProduct("sku-3", at),
	}
	snapshots := []catalog.PriceSnapshot{
		testSnapshot("sku-1", "outlet-1", at, 1.0),
		testSnapshot("sku-2", "outlet-1", at, 2.0),
		testSnapshot("sku-3", "outlet-1", at, 3.0),
	}

	require.NoError(t, s.SaveBatch(ctx, products, snapshots))

	latest, err := s.LatestPrices(ctx, "")
	require.NoError(t, err)
	require.Len(t, latest, 3)
}

func TestSaveBatch_RollsBackOnDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertOutlet(ctx, testOutlet("outlet-1")))

	require.NoError(t, s.UpsertProduct(ctx, testProduct("sku-1", at)))
	require.NoError(t, s.InsertSnapshot(ctx, testSnapshot("sku-1", "outlet-1", at, 1.0)))

	// The batch contains a fresh product plus a duplicate snapshot; nothing
	// from it may survive the rollback.
	err := s.SaveBatch(ctx,
		[]catalog.Product{testProduct("sku-9", at)},
		[]catalog.PriceSnapshot{
			testSnapshot("sku-9", "outlet-1", at, 9.0),
			testSnapshot("sku-1", "outlet-1", at, 1.1),
		},
	)
	require.ErrorIs(t, err, ErrDuplicateSnapshot)

	_, err = s.ProductByID(ctx, "sku-9")
	require.Error(t, err)

	history, err := s.ProductHistory(ctx, "sku-1", "")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestLatestPrices_MostRecentPerProductWithCategoryFilter(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertOutlet(ctx, testOutlet("outlet-1")))

	dairy := testProduct("sku-milk", base)
	dairy.Category = "dairy"
	bakery := testProduct("sku-bread", base)
	bakery.Category = "bakery"
	require.NoError(t, s.UpsertProduct(ctx, dairy))
	require.NoError(t, s.UpsertProduct(ctx, bakery))

	require.NoError(t, s.InsertSnapshot(ctx, testSnapshot("sku-milk", "outlet-1", base, 2.0)))
	require.NoError(t, s.InsertSnapshot(ctx, testSnapshot("sku-milk", "outlet-1", base.Add(24*time.Hour), 2.2)))
	require.NoError(t, s.InsertSnapshot(ctx, testSnapshot("sku-bread", "outlet-1", base, 1.5)))

	all, err := s.LatestPrices(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyDairy, err := s.LatestPrices(ctx, "dairy")
	require.NoError(t, err)
	require.Len(t, onlyDairy, 1)
	require.Equal(t, "sku-milk", onlyDairy[0].ProductID)
	require.Equal(t, 2.2, onlyDairy[0].Price)
}

func TestSearchProducts(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	milk := testProduct("sku-milk", at)
	milk.Name = "Whole Milk 1L"
	require.NoError(t, s.UpsertProduct(ctx, milk))
	bread := testProduct("sku-bread", at)
	bread.Name = "Rye Bread"
	require.NoError(t, s.UpsertProduct(ctx, bread))

	found, err := s.SearchProducts(ctx, "milk")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "sku-milk", found[0].ID)

	byBrand, err := s.SearchProducts(ctx, "brandco")
	require.NoError(t, err)
	require.Len(t, byBrand, 2)
}

func TestCheckpoint_ReportsPages(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, s.UpsertOutlet(ctx, testOutlet("outlet-1")))
	require.NoError(t, s.UpsertProduct(ctx, testProduct("sku-1", at)))

	res, err := s.Checkpoint(ctx)
	require.NoError(t, err)
	require.False(t, res.Busy)
	require.GreaterOrEqual(t, res.LogPages, 0)
}
