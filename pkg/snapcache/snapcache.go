// Package snapcache keeps the active listing snapshot in memory for the
// flat feed endpoint, refreshing it in the background when the active
// version changes.
package snapcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/galleryscape/listingd/internal/metrics"
	"github.com/galleryscape/listingd/pkg/listing"
)

// Loader reads snapshots from the store.
type Loader interface {
	ActiveVersionID(ctx context.Context) (int64, error)
	LoadActiveSnapshot(ctx context.Context) (*listing.Snapshot, error)
}

// Cache holds the most recently loaded snapshot. Reads are lock-free; at
// most one refresh runs at a time.
type Cache struct {
	loader Loader
	logger *zap.Logger

	snap       atomic.Pointer[listing.Snapshot]
	loadMu     sync.Mutex
	refreshing atomic.Bool
}

func New(loader Loader, logger *zap.Logger) *Cache {
	return &Cache{loader: loader, logger: logger}
}

// Get returns the cached snapshot, or nil before the first load.
func (c *Cache) Get() *listing.Snapshot {
	return c.snap.Load()
}

// EnsureLoaded returns the cached snapshot, loading it first if the cache
// is empty. Concurrent callers share one load.
func (c *Cache) EnsureLoaded(ctx context.Context) (*listing.Snapshot, error) {
	if snap := c.snap.Load(); snap != nil {
		return snap, nil
	}
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if snap := c.snap.Load(); snap != nil {
		return snap, nil
	}
	snap, err := c.loader.LoadActiveSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	c.snap.Store(snap)
	return snap, nil
}

// RefreshIfChanged reloads the snapshot when the active version id differs
// from the cached one. It returns false immediately when another refresh is
// already in flight.
func (c *Cache) RefreshIfChanged(ctx context.Context) (bool, error) {
	if !c.refreshing.CompareAndSwap(false, true) {
		metrics.SnapshotRefreshTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	defer c.refreshing.Store(false)

	cur := c.snap.Load()
	activeID, err := c.loader.ActiveVersionID(ctx)
	if err != nil {
		metrics.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if cur != nil && cur.VersionID == activeID {
		metrics.SnapshotRefreshTotal.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	snap, err := c.loader.LoadActiveSnapshot(ctx)
	if err != nil {
		metrics.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		return false, err
	}
	c.snap.Store(snap)
	metrics.SnapshotRefreshTotal.WithLabelValues("changed").Inc()
	return true, nil
}

// StartRefreshLoop refreshes the cache every interval until the returned
// stop function is called.
func (c *Cache) StartRefreshLoop(interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.RefreshIfChanged(ctx); err != nil {
					c.logger.Warn("snapshot refresh failed", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
