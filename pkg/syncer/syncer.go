// Package syncer reconciles the marketplace listing feed into versioned
// snapshots: stage, diff against the active version, copy into a fresh
// version, activate, clean up.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/galleryscape/listingd/internal/metrics"
	"github.com/galleryscape/listingd/pkg/config"
	"github.com/galleryscape/listingd/pkg/listing"
	"github.com/galleryscape/listingd/pkg/listingstore"
)

// Fetcher supplies the full current listing set of the collection.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]listing.NormalizedListing, error)
}

// Engine runs synchronization cycles against the listing store.
type Engine struct {
	store   *listingstore.Store
	fetcher Fetcher
	logger  *zap.Logger
	cfg     config.SyncConfig
}

func New(store *listingstore.Store, fetcher Fetcher, logger *zap.Logger, cfg config.SyncConfig) *Engine {
	return &Engine{store: store, fetcher: fetcher, logger: logger, cfg: cfg}
}

// SyncOnce reconciles one fetched listing set into the store. When nothing
// changed beyond the price tolerance, no version is created and the active
// version id is returned unchanged.
func (e *Engine) SyncOnce(ctx context.Context, listings []listing.NormalizedListing) (listing.SyncResult, error) {
	staging, err := e.store.BeginStaging(ctx)
	if err != nil {
		return listing.SyncResult{}, err
	}
	defer func() {
		if err := staging.Close(ctx); err != nil {
			e.logger.Warn("failed to tear down staging table", zap.Error(err))
		}
	}()

	activeID, err := e.store.EnsureActiveVersion(ctx)
	if err != nil {
		return listing.SyncResult{}, err
	}

	if err := staging.Load(ctx, listings); err != nil {
		return listing.SyncResult{}, err
	}

	counts, err := staging.CountDiffs(ctx, activeID, e.cfg.PriceEpsilon)
	if err != nil {
		return listing.SyncResult{}, err
	}

	if counts.Inserted == 0 && counts.Updated == 0 && counts.Deleted == 0 {
		return listing.SyncResult{Changed: false, VersionID: activeID, Counts: counts}, nil
	}

	newID, err := e.store.CreateInactiveVersion(ctx, counts.Total)
	if err != nil {
		return listing.SyncResult{}, err
	}

	copied, err := staging.CopyToVersion(ctx, newID)
	if err != nil {
		e.discard(ctx, newID)
		return listing.SyncResult{}, err
	}
	if copied != counts.Total {
		e.discard(ctx, newID)
		return listing.SyncResult{}, fmt.Errorf("version %d: copied %d of %d rows: %w",
			newID, copied, counts.Total, listingstore.ErrSnapshotMismatch)
	}

	if err := e.store.Activate(ctx, newID); err != nil {
		e.discard(ctx, newID)
		return listing.SyncResult{}, err
	}

	// The new version is already live; a failed cleanup only leaves stale
	// rows for the next cycle to remove.
	if err := e.store.CleanupNonActive(ctx, newID); err != nil {
		e.logger.Warn("cleanup after activation failed", zap.Int64("version_id", newID), zap.Error(err))
	}

	return listing.SyncResult{Changed: true, VersionID: newID, Counts: counts}, nil
}

func (e *Engine) discard(ctx context.Context, versionID int64) {
	if err := e.store.DeleteVersionCascade(ctx, versionID); err != nil {
		e.logger.Warn("failed to discard partial version", zap.Int64("version_id", versionID), zap.Error(err))
	}
}

// Run executes fetch+sync cycles every interval until ctx is cancelled.
// A cycle already in flight when the signal arrives runs to completion;
// the loop exits before starting the next one.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("sync loop started", zap.Duration("interval", e.cfg.Interval))

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		e.cycle(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			e.logger.Info("sync loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	start := time.Now()

	listings, err := e.fetcher.FetchAll(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		e.logger.Error("fetching listings failed", zap.Error(err))
		return
	}

	res, err := e.SyncOnce(ctx, listings)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, listingstore.ErrSnapshotMismatch) {
			e.logger.Error("snapshot copy verification failed", zap.Error(err))
		} else {
			e.logger.Error("synchronization failed", zap.Error(err))
		}
		return
	}

	if !res.Changed {
		metrics.SyncRunsTotal.WithLabelValues("unchanged").Inc()
		e.logger.Info("no listing changes",
			zap.Int64("version_id", res.VersionID),
			zap.Int("total", res.Counts.Total),
			zap.Duration("took", time.Since(start)))
		return
	}

	metrics.SyncRunsTotal.WithLabelValues("changed").Inc()
	metrics.SyncRowDelta.WithLabelValues("inserted").Add(float64(res.Counts.Inserted))
	metrics.SyncRowDelta.WithLabelValues("updated").Add(float64(res.Counts.Updated))
	metrics.SyncRowDelta.WithLabelValues("deleted").Add(float64(res.Counts.Deleted))
	e.logger.Info("activated new listing version",
		zap.Int64("version_id", res.VersionID),
		zap.Int("inserted", res.Counts.Inserted),
		zap.Int("updated", res.Counts.Updated),
		zap.Int("deleted", res.Counts.Deleted),
		zap.Int("total", res.Counts.Total),
		zap.Duration("took", time.Since(start)))
}
