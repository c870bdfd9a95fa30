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
		log.Println("creating tokens table...")
		if err := mghelper.CreateSchema(ctx, db, &listingstore.TokenDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &listingstore.TokenDao{}, "token_num")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping tokens table...")
		return mghelper.DropTables(ctx, db, &listingstore.TokenDao{})
	})
}
