package syncer

import (
	"context"
	"testing"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/galleryscape/listingd/pkg/config"
	"github.com/galleryscape/listingd/pkg/listing"
	"github.com/galleryscape/listingd/pkg/listingstore"
	"github.com/galleryscape/listingd/pkg/pgutil"
	mghelper "github.com/galleryscape/listingd/pkg/pgutil/migrations"
)

const testEpsilon = 10_000_000 // 0.01 SOL in lamports

func setupEngine(t *testing.T) (context.Context, *Engine, *listingstore.Store, *bun.DB) {
	t.Helper()
	pgutil.RequireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	err := mghelper.CreateSchema(ctx, db,
		&listingstore.VersionDao{},
		&listingstore.TokenDao{},
		&listingstore.SnapshotDao{},
	)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	if err := mghelper.CreateModelUniqueIndex(ctx, db, &listingstore.SnapshotDao{}, "version_id", "token_mint_addr"); err != nil {
		t.Fatalf("failed to create snapshot index: %v", err)
	}

	store := listingstore.New(db, 217)
	engine := New(store, nil, zap.NewNop(), config.SyncConfig{PriceEpsilon: testEpsilon})
	return ctx, engine, store, db
}

func feedItem(mint string, price int64) listing.NormalizedListing {
	return listing.NormalizedListing{
		TokenMintAddr: mint,
		Price:         price,
		Seller:        "seller-" + mint,
		ImageURL:      "https://img/" + mint,
		ListingSource: "magiceden",
	}
}

type activeRow struct {
	TokenMintAddr string `bun:"token_mint_addr"`
	Price         int64  `bun:"price"`
}

func activeRows(t *testing.T, ctx context.Context, db *bun.DB) []activeRow {
	t.Helper()
	var rows []activeRow
	err := db.NewRaw(`
		SELECT lc.token_mint_addr, lc.price FROM listings_current lc
		JOIN listing_versions lv ON lv.id = lc.version_id
		WHERE lv.active = TRUE
		ORDER BY lc.token_mint_addr`).Scan(ctx, &rows)
	if err != nil {
		t.Fatalf("loading active rows: %v", err)
	}
	return rows
}

func TestSyncOnce_InitialSync(t *testing.T) {
	ctx, engine, store, _ := setupEngine(t)

	res, err := engine.SyncOnce(ctx, []listing.NormalizedListing{
		feedItem("mint-a", 1_000_000_000),
		feedItem("mint-b", 2_000_000_000),
	})
	if err != nil {
		t.Fatalf("SyncOnce() failed: %v", err)
	}
	if !res.Changed {
		t.Fatal("initial sync should produce a new version")
	}
	if res.Counts.Inserted != 2 || res.Counts.Updated != 0 || res.Counts.Deleted != 0 {
		t.Errorf("counts = %+v, want 2 inserted only", res.Counts)
	}
	if res.Counts.Total != 2 {
		t.Errorf("total = %d, want 2", res.Counts.Total)
	}

	activeID, err := store.ActiveVersionID(ctx)
	if err != nil {
		t.Fatalf("ActiveVersionID() failed: %v", err)
	}
	if activeID != res.VersionID {
		t.Errorf("active version = %d, want %d", activeID, res.VersionID)
	}
}

func TestSyncOnce_Idempotent(t *testing.T) {
	ctx, engine, _, _ := setupEngine(t)

	items := []listing.NormalizedListing{
		feedItem("mint-a", 1_000_000_000),
		feedItem("mint-b", 2_000_000_000),
	}
	first, err := engine.SyncOnce(ctx, items)
	if err != nil {
		t.Fatalf("first SyncOnce() failed: %v", err)
	}

	second, err := engine.SyncOnce(ctx, items)
	if err != nil {
		t.Fatalf("second SyncOnce() failed: %v", err)
	}
	if second.Changed {
		t.Error("identical feed should not produce a new version")
	}
	if second.VersionID != first.VersionID {
		t.Errorf("version id = %d, want unchanged %d", second.VersionID, first.VersionID)
	}
}

func TestSyncOnce_PriceEpsilonBoundary(t *testing.T) {
	ctx, engine, _, _ := setupEngine(t)

	base := int64(1_000_000_000)
	if _, err := engine.SyncOnce(ctx, []listing.NormalizedListing{feedItem("mint-a", base)}); err != nil {
		t.Fatalf("initial SyncOnce() failed: %v", err)
	}

	// A delta strictly below epsilon is noise.
	res, err := engine.SyncOnce(ctx, []listing.NormalizedListing{feedItem("mint-a", base + testEpsilon - 1)})
	if err != nil {
		t.Fatalf("SyncOnce() failed: %v", err)
	}
	if res.Changed {
		t.Errorf("delta of epsilon-1 should not count as a change, counts = %+v", res.Counts)
	}

	// A delta of exactly epsilon is a real update.
	res, err = engine.SyncOnce(ctx, []listing.NormalizedListing{feedItem("mint-a", base + testEpsilon)})
	if err != nil {
		t.Fatalf("SyncOnce() failed: %v", err)
	}
	if !res.Changed {
		t.Fatal("delta of exactly epsilon should count as a change")
	}
	if res.Counts.Updated != 1 || res.Counts.Inserted != 0 || res.Counts.Deleted != 0 {
		t.Errorf("counts = %+v, want exactly 1 updated", res.Counts)
	}
}

func TestSyncOnce_InsertAndDeleteCounts(t *testing.T) {
	ctx, engine, _, _ := setupEngine(t)

	if _, err := engine.SyncOnce(ctx, []listing.NormalizedListing{feedItem("mint-a", 100)}); err != nil {
		t.Fatalf("initial SyncOnce() failed: %v", err)
	}

	res, err := engine.SyncOnce(ctx, []listing.NormalizedListing{
		feedItem("mint-a", 100),
		feedItem("mint-b", 200),
	})
	if err != nil {
		t.Fatalf("SyncOnce() failed: %v", err)
	}
	if res.Counts.Inserted != 1 || res.Counts.Updated != 0 || res.Counts.Deleted != 0 || res.Counts.Total != 1+1 {
		t.Errorf("insert counts = %+v, want {1 0 0 2}", res.Counts)
	}

	res, err = engine.SyncOnce(ctx, []listing.NormalizedListing{feedItem("mint-a", 100)})
	if err != nil {
		t.Fatalf("SyncOnce() failed: %v", err)
	}
	if res.Counts.Inserted != 0 || res.Counts.Updated != 0 || res.Counts.Deleted != 1 || res.Counts.Total != 1 {
		t.Errorf("delete counts = %+v, want {0 0 1 1}", res.Counts)
	}
}

func TestSyncOnce_SellerChangeCounts(t *testing.T) {
	ctx, engine, _, _ := setupEngine(t)

	if _, err := engine.SyncOnce(ctx, []listing.NormalizedListing{feedItem("mint-a", 100)}); err != nil {
		t.Fatalf("initial SyncOnce() failed: %v", err)
	}

	relisted := feedItem("mint-a", 100)
	relisted.Seller = "another-seller"
	res, err := engine.SyncOnce(ctx, []listing.NormalizedListing{relisted})
	if err != nil {
		t.Fatalf("SyncOnce() failed: %v", err)
	}
	if !res.Changed || res.Counts.Updated != 1 {
		t.Errorf("seller change should count as update, got %+v", res.Counts)
	}
}

func TestSyncOnce_DuplicateMintsLastWins(t *testing.T) {
	ctx, engine, _, db := setupEngine(t)

	res, err := engine.SyncOnce(ctx, []listing.NormalizedListing{
		feedItem("mint-a", 100),
		feedItem("mint-a", 300),
	})
	if err != nil {
		t.Fatalf("SyncOnce() failed: %v", err)
	}
	if res.Counts.Total != 1 {
		t.Fatalf("total = %d, want 1 after dedupe", res.Counts.Total)
	}
	rows := activeRows(t, ctx, db)
	if len(rows) != 1 || rows[0].Price != 300 {
		t.Errorf("rows = %+v, want single row at price 300", rows)
	}
}

func TestSyncOnce_EmptyFeedDeletesEverything(t *testing.T) {
	ctx, engine, _, db := setupEngine(t)

	if _, err := engine.SyncOnce(ctx, []listing.NormalizedListing{feedItem("mint-a", 100)}); err != nil {
		t.Fatalf("initial SyncOnce() failed: %v", err)
	}

	res, err := engine.SyncOnce(ctx, nil)
	if err != nil {
		t.Fatalf("SyncOnce(empty) failed: %v", err)
	}
	if !res.Changed || res.Counts.Deleted != 1 || res.Counts.Total != 0 {
		t.Errorf("counts = %+v, want 1 deleted, total 0", res.Counts)
	}
	if rows := activeRows(t, ctx, db); len(rows) != 0 {
		t.Errorf("active rows = %d, want 0", len(rows))
	}
}

func TestSyncOnce_SingleActiveVersionAndCleanup(t *testing.T) {
	ctx, engine, _, db := setupEngine(t)

	feeds := [][]listing.NormalizedListing{
		{feedItem("mint-a", 100)},
		{feedItem("mint-a", 100), feedItem("mint-b", 200)},
		{feedItem("mint-b", 200)},
	}
	for i, feed := range feeds {
		if _, err := engine.SyncOnce(ctx, feed); err != nil {
			t.Fatalf("sync %d failed: %v", i, err)
		}
	}

	var activeCount int
	if err := db.NewRaw(`SELECT COUNT(*) FROM listing_versions WHERE active = TRUE`).Scan(ctx, &activeCount); err != nil {
		t.Fatalf("counting active versions: %v", err)
	}
	if activeCount != 1 {
		t.Errorf("active versions = %d, want exactly 1", activeCount)
	}

	var versionCount int
	if err := db.NewRaw(`SELECT COUNT(*) FROM listing_versions`).Scan(ctx, &versionCount); err != nil {
		t.Fatalf("counting versions: %v", err)
	}
	if versionCount != 1 {
		t.Errorf("versions after cleanup = %d, want 1", versionCount)
	}

	var strayRows int
	if err := db.NewRaw(`
		SELECT COUNT(*) FROM listings_current lc
		WHERE NOT EXISTS (
			SELECT 1 FROM listing_versions lv WHERE lv.id = lc.version_id AND lv.active = TRUE
		)`).Scan(ctx, &strayRows); err != nil {
		t.Fatalf("counting stray rows: %v", err)
	}
	if strayRows != 0 {
		t.Errorf("stray snapshot rows = %d, want 0", strayRows)
	}
}
