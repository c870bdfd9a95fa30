package listingstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

// ActiveVersionID returns the id of the active snapshot version, or
// ErrNoActiveVersion when none exists yet.
func (s *Store) ActiveVersionID(ctx context.Context) (int64, error) {
	return activeVersionID(ctx, s.db)
}

func activeVersionID(ctx context.Context, idb bun.IDB) (int64, error) {
	var id int64
	err := idb.NewSelect().
		Model((*VersionDao)(nil)).
		Column("id").
		Where("active = TRUE").
		Scan(ctx, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoActiveVersion
	}
	if err != nil {
		return 0, fmt.Errorf("selecting active version: %w", err)
	}
	return id, nil
}

// EnsureActiveVersion returns the active version id, creating an empty
// active version first if the table has none. Called once at the start of
// every synchronization so the diff always has a baseline.
func (s *Store) EnsureActiveVersion(ctx context.Context) (int64, error) {
	id, err := s.ActiveVersionID(ctx)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNoActiveVersion) {
		return 0, err
	}
	seed := &VersionDao{Total: 0, Active: true}
	if _, err := s.db.NewInsert().Model(seed).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("seeding initial version: %w", err)
	}
	return seed.ID, nil
}

// CreateInactiveVersion inserts a new version row with the given total and
// active = false, returning its id. Rows are copied into it before it is
// activated; until then it is invisible to readers.
func (s *Store) CreateInactiveVersion(ctx context.Context, total int) (int64, error) {
	v := &VersionDao{Total: total, Active: false}
	if _, err := s.db.NewInsert().Model(v).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("creating inactive version: %w", err)
	}
	return v.ID, nil
}

// Activate flips the active flag to the given version in a single
// transaction, so readers observe either the old version or the new one.
func (s *Store) Activate(ctx context.Context, versionID int64) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*VersionDao)(nil)).
			Set("active = FALSE").
			Where("active = TRUE").
			Exec(ctx); err != nil {
			return fmt.Errorf("clearing active flag: %w", err)
		}
		res, err := tx.NewUpdate().
			Model((*VersionDao)(nil)).
			Set("active = TRUE").
			Where("id = ?", versionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("setting active flag: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("version %d not found during activation", versionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("activating version %d: %w", versionID, err)
	}
	return nil
}

// CleanupNonActive removes every snapshot row not owned by keep and every
// inactive version row. Run after activation to bound table growth.
func (s *Store) CleanupNonActive(ctx context.Context, keep int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*SnapshotDao)(nil)).
			Where("version_id != ?", keep).
			Exec(ctx); err != nil {
			return fmt.Errorf("deleting stale snapshot rows: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*VersionDao)(nil)).
			Where("active = FALSE").
			Exec(ctx); err != nil {
			return fmt.Errorf("deleting inactive versions: %w", err)
		}
		return nil
	})
}

// DeleteVersionCascade removes a version and its snapshot rows. Used to
// discard a partially built version after a failed copy.
func (s *Store) DeleteVersionCascade(ctx context.Context, versionID int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*SnapshotDao)(nil)).
			Where("version_id = ?", versionID).
			Exec(ctx); err != nil {
			return fmt.Errorf("deleting snapshot rows of version %d: %w", versionID, err)
		}
		if _, err := tx.NewDelete().
			Model((*VersionDao)(nil)).
			Where("id = ?", versionID).
			Exec(ctx); err != nil {
			return fmt.Errorf("deleting version %d: %w", versionID, err)
		}
		return nil
	})
}
