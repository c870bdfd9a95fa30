package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/galleryscape/listingd/pkg/config"
	"github.com/galleryscape/listingd/pkg/pgutil"
)

// Test DAO for testing purposes
type testDao struct {
	bun.BaseModel `bun:"table:test_table"`
	ID            int64  `bun:",pk,autoincrement"`
	Name          string `bun:",notnull,type:varchar(100)"`
	Age           int    `bun:",nullzero"`
}

func setupDB(t *testing.T) (context.Context, *bun.DB) {
	t.Helper()
	pgutil.RequireDockerAccess(t)
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return context.Background(), db
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(cfg)
	if err == nil {
		db.Close()
		t.Error("ConnectDB() should fail with invalid host")
	}
}

func TestCreateSchema(t *testing.T) {
	ctx, db := setupDB(t)

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	assertTableExists(t, ctx, db, "test_table", true)

	// Verify idempotency - calling again should not fail
	err = CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Errorf("CreateSchema() second call failed: %v", err)
	}
}

func TestDropTables(t *testing.T) {
	ctx, db := setupDB(t)

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	err = DropTables(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("DropTables() failed: %v", err)
	}
	assertTableExists(t, ctx, db, "test_table", false)

	// Verify idempotency - calling again should not fail
	err = DropTables(ctx, db, &testDao{})
	if err != nil {
		t.Errorf("DropTables() second call failed: %v", err)
	}
}

func TestCreateModelIndexes(t *testing.T) {
	ctx, db := setupDB(t)

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	err = CreateModelIndexes(ctx, db, &testDao{}, "name")
	if err != nil {
		t.Fatalf("CreateModelIndexes() failed: %v", err)
	}
	assertIndexExists(t, ctx, db, "idx_test_table_name")

	// Verify idempotency
	err = CreateModelIndexes(ctx, db, &testDao{}, "name")
	if err != nil {
		t.Errorf("CreateModelIndexes() second call failed: %v", err)
	}
}

func TestCreateModelUniqueIndex(t *testing.T) {
	ctx, db := setupDB(t)

	err := CreateSchema(ctx, db, &testDao{})
	if err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	err = CreateModelUniqueIndex(ctx, db, &testDao{}, "name", "age")
	if err != nil {
		t.Fatalf("CreateModelUniqueIndex() failed: %v", err)
	}
	assertIndexExists(t, ctx, db, "idx_test_table_name_age")

	// The unique constraint must reject a duplicate pair.
	if _, err := db.NewInsert().Model(&testDao{Name: "a", Age: 1}).Exec(ctx); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := db.NewInsert().Model(&testDao{Name: "a", Age: 1}).Exec(ctx); err == nil {
		t.Error("duplicate insert should violate the unique index")
	}
}

func assertTableExists(t *testing.T, ctx context.Context, db *bun.DB, name string, want bool) {
	t.Helper()
	var exists bool
	err := db.NewRaw(
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?)`,
		name,
	).Scan(ctx, &exists)
	if err != nil {
		t.Fatalf("checking table %q: %v", name, err)
	}
	if exists != want {
		t.Errorf("table %q exists = %v, want %v", name, exists, want)
	}
}

func assertIndexExists(t *testing.T, ctx context.Context, db *bun.DB, name string) {
	t.Helper()
	var exists bool
	err := db.NewRaw(
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = ?)`,
		name,
	).Scan(ctx, &exists)
	if err != nil {
		t.Fatalf("checking index %q: %v", name, err)
	}
	if !exists {
		t.Errorf("index %q should exist", name)
	}
}
