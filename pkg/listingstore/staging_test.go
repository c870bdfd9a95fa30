package listingstore

import (
	"context"
	"testing"

	"github.com/galleryscape/listingd/pkg/listing"
)

func stagedPrices(t *testing.T, ctx context.Context, st *Staging) map[string]int64 {
	t.Helper()
	var rows []stagingDao
	if err := st.conn.NewSelect().Model(&rows).Scan(ctx); err != nil {
		t.Fatalf("failed to read staging rows: %v", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.TokenMintAddr] = r.Price
	}
	return out
}

func stagedItem(mint string, price int64) listing.NormalizedListing {
	return listing.NormalizedListing{
		TokenMintAddr: mint,
		Price:         price,
		Seller:        "seller-" + mint,
		ImageURL:      "https://img/" + mint,
		ListingSource: "magiceden",
	}
}

// A feed page boundary can deliver the same mint twice in one batch; the
// later occurrence must win and the insert must not fail.
func TestStagingLoad_DuplicateMintsInOneBatch(t *testing.T) {
	ctx, store, _ := setupStore(t)

	st, err := store.BeginStaging(ctx)
	if err != nil {
		t.Fatalf("BeginStaging() failed: %v", err)
	}
	defer st.Close(ctx)

	rows := []listing.NormalizedListing{
		stagedItem("mint-a", 100),
		stagedItem("mint-b", 200),
		stagedItem("mint-a", 300),
	}
	if err := st.Load(ctx, rows); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	prices := stagedPrices(t, ctx, st)
	if len(prices) != 2 {
		t.Fatalf("staged %d mints, want 2", len(prices))
	}
	if prices["mint-a"] != 300 {
		t.Errorf("mint-a price = %d, want last occurrence 300", prices["mint-a"])
	}
	if prices["mint-b"] != 200 {
		t.Errorf("mint-b price = %d, want 200", prices["mint-b"])
	}
}

func TestStagingLoad_SecondLoadOverwrites(t *testing.T) {
	ctx, store, _ := setupStore(t)

	st, err := store.BeginStaging(ctx)
	if err != nil {
		t.Fatalf("BeginStaging() failed: %v", err)
	}
	defer st.Close(ctx)

	if err := st.Load(ctx, []listing.NormalizedListing{stagedItem("mint-a", 100)}); err != nil {
		t.Fatalf("first Load() failed: %v", err)
	}
	if err := st.Load(ctx, []listing.NormalizedListing{stagedItem("mint-a", 250)}); err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}

	prices := stagedPrices(t, ctx, st)
	if len(prices) != 1 || prices["mint-a"] != 250 {
		t.Fatalf("staged rows = %v, want mint-a at 250", prices)
	}
}
