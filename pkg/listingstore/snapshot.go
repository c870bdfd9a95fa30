package listingstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/galleryscape/listingd/pkg/listing"
)

// LoadActiveSnapshot reads the active version id and its full row set in
// one read-only transaction, so the two cannot disagree under a concurrent
// activation.
func (s *Store) LoadActiveSnapshot(ctx context.Context) (*listing.Snapshot, error) {
	var snap *listing.Snapshot
	err := s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		versionID, err := activeVersionID(ctx, tx)
		if err != nil {
			return err
		}
		var daos []listingRowDao
		err = tx.NewSelect().
			TableExpr("listings_current AS lc").
			Join("JOIN tokens AS t ON t.token_mint_addr = lc.token_mint_addr").
			ColumnExpr("lc.token_mint_addr, lc.token_num, lc.price, lc.seller, lc.image_url, lc.listing_source").
			ColumnExpr("t.id AS token_id, t.name AS token_name").
			Where("lc.version_id = ?", versionID).
			OrderExpr("lc.price ASC, lc.token_mint_addr ASC").
			Scan(ctx, &daos)
		if err != nil {
			return fmt.Errorf("loading snapshot rows: %w", err)
		}
		items := make([]listing.Row, 0, len(daos))
		for _, d := range daos {
			items = append(items, listing.Row{
				TokenMintAddr: d.TokenMintAddr,
				TokenNum:      d.TokenNum,
				Price:         d.Price,
				Seller:        d.Seller,
				ImageURL:      d.ImageURL,
				ListingSource: d.ListingSource,
				TokenID:       d.TokenID,
				TokenName:     d.TokenName,
			})
		}
		snap = &listing.Snapshot{VersionID: versionID, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
