package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/galleryscape/listingd/pkg/migrations/listingdb"
	"github.com/galleryscape/listingd/pkg/pgutil"
)

func TestListingDBMigrations_Apply(t *testing.T) {
	pgutil.RequireDockerAccess(t)

	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, listingdb.Migrations)

	// Initialize migration system
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run all migrations up
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	// Verify all expected tables exist
	expectedTables := []string{
		"listing_versions",
		"tokens",
		"trait_types",
		"trait_values",
		"token_traits",
		"listings_current",
	}
	for _, table := range expectedTables {
		if !tableExists(t, ctx, db, table) {
			t.Errorf("expected table %q to exist after migrations", table)
		}
	}

	// Re-running should be a no-op
	group, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate() failed: %v", err)
	}
	if !group.IsZero() {
		t.Errorf("expected no migrations on second run, got %s", group)
	}
}

func TestListingDBMigrations_Rollback(t *testing.T) {
	pgutil.RequireDockerAccess(t)

	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, listingdb.Migrations)

	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	// The initial run applies everything as one group, so rolling back
	// removes every table again.
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Fatal("expected a migration group to roll back")
	}
	for _, table := range []string{"listings_current", "listing_versions", "tokens", "token_traits"} {
		if tableExists(t, ctx, db, table) {
			t.Errorf("table %q should be dropped after rollback", table)
		}
	}
}

func tableExists(t *testing.T, ctx context.Context, db *bun.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.NewRaw(
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?)`,
		name,
	).Scan(ctx, &exists)
	if err != nil {
		t.Fatalf("checking table %q: %v", name, err)
	}
	return exists
}
