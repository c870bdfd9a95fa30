// Package listingstore persists versioned listing snapshots and the static
// token catalog in PostgreSQL, and implements the trait-filtered query
// engine on top of them.
package listingstore

import (
	"errors"

	"github.com/uptrace/bun"
)

var (
	// ErrNoActiveVersion is returned by reads that require an active
	// snapshot version before the first synchronization has completed.
	ErrNoActiveVersion = errors.New("no active listing version")

	// ErrSnapshotMismatch is returned when the number of rows copied into a
	// new version does not match the staged total.
	ErrSnapshotMismatch = errors.New("copied snapshot row count does not match staged total")
)

// Store provides version management, staging, and search over the listing
// snapshot schema. blankValueID is the catalog's placeholder trait value;
// assignments carrying it are ignored by every filter and enrichment query.
type Store struct {
	db           *bun.DB
	blankValueID int64
}

func New(db *bun.DB, blankValueID int64) *Store {
	return &Store{db: db, blankValueID: blankValueID}
}

// DB exposes the underlying handle for migrations and test setup.
func (s *Store) DB() *bun.DB {
	return s.db
}
