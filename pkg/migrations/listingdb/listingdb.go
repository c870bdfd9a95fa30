// Package listingdb holds all the migrations for the listing database
package listingdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection the per-table migration files register into.
var Migrations = migrate.NewMigrations()

// Migrate initializes the migration tables and applies everything pending.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Println("listing DB is up to date")
	} else {
		log.Printf("listing DB migrated to %s\n", group)
	}
	return nil
}
