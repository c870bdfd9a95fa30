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
		log.Println("creating trait tables...")
		if err := mghelper.CreateSchema(ctx, db, &listingstore.TraitTypeDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateSchema(ctx, db, &listingstore.TraitValueDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateSchema(ctx, db, &listingstore.TokenTraitDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &listingstore.TokenTraitDao{}, "value_id"); err != nil {
			return err
		}
		// One value per trait type per token; catalog ingestion upserts
		// against this constraint.
		return mghelper.CreateModelUniqueIndex(ctx, db, &listingstore.TokenTraitDao{}, "token_id", "type_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping trait tables...")
		return mghelper.DropTables(ctx, db,
			&listingstore.TokenTraitDao{},
			&listingstore.TraitValueDao{},
			&listingstore.TraitTypeDao{},
		)
	})
}
