package listingdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/galleryscape/listingd/pkg/listingstore"
	mghelper "github.com/galleryscape/listingd/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating listings_current table...")
		if err := mghelper.CreateSchema(ctx, db, &listingstore.SnapshotDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &listingstore.SnapshotDao{}, "token_mint_addr"); err != nil {
			return err
		}
		// One row per token per version.
		return mghelper.CreateModelUniqueIndex(ctx, db, &listingstore.SnapshotDao{}, "version_id", "token_mint_addr")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping listings_current table...")
		return mghelper.DropTables(ctx, db, &listingstore.SnapshotDao{})
	})
}
