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
		log.Println("creating listing_versions table...")
		if err := mghelper.CreateSchema(ctx, db, &listingstore.VersionDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &listingstore.VersionDao{}, "active")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping listing_versions table...")
		return mghelper.DropTables(ctx, db, &listingstore.VersionDao{})
	})
}
