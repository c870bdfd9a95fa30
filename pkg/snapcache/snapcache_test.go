package snapcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/galleryscape/listingd/pkg/listing"
)

type stubLoader struct {
	versionID atomic.Int64
	loads     atomic.Int32
	versions  atomic.Int32
	err       error
	block     chan struct{} // when set, LoadActiveSnapshot waits on it
	entered   chan struct{}
}

func (s *stubLoader) ActiveVersionID(context.Context) (int64, error) {
	s.versions.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return s.versionID.Load(), nil
}

func (s *stubLoader) LoadActiveSnapshot(context.Context) (*listing.Snapshot, error) {
	s.loads.Add(1)
	if s.entered != nil {
		close(s.entered)
		s.entered = nil
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	vid := s.versionID.Load()
	return &listing.Snapshot{
		VersionID: vid,
		Items:     []listing.Row{{TokenMintAddr: "mint-a", Price: vid * 100}},
	}, nil
}

func TestEnsureLoaded_LoadsOnce(t *testing.T) {
	loader := &stubLoader{}
	loader.versionID.Store(1)
	cache := New(loader, zap.NewNop())
	ctx := context.Background()

	snap, err := cache.EnsureLoaded(ctx)
	if err != nil {
		t.Fatalf("EnsureLoaded() failed: %v", err)
	}
	if snap.VersionID != 1 {
		t.Errorf("version id = %d, want 1", snap.VersionID)
	}

	if _, err := cache.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded() failed: %v", err)
	}
	if n := loader.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1 (second call served from cache)", n)
	}
}

func TestRefreshIfChanged(t *testing.T) {
	loader := &stubLoader{}
	loader.versionID.Store(1)
	cache := New(loader, zap.NewNop())
	ctx := context.Background()

	if _, err := cache.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded() failed: %v", err)
	}

	changed, err := cache.RefreshIfChanged(ctx)
	if err != nil {
		t.Fatalf("RefreshIfChanged() failed: %v", err)
	}
	if changed {
		t.Error("same version should not trigger a reload")
	}
	if n := loader.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}

	loader.versionID.Store(2)
	changed, err = cache.RefreshIfChanged(ctx)
	if err != nil {
		t.Fatalf("RefreshIfChanged() failed: %v", err)
	}
	if !changed {
		t.Fatal("new version should trigger a reload")
	}
	if got := cache.Get().VersionID; got != 2 {
		t.Errorf("cached version = %d, want 2", got)
	}
}

func TestRefreshIfChanged_SingleFlight(t *testing.T) {
	loader := &stubLoader{
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	loader.versionID.Store(1)
	cache := New(loader, zap.NewNop())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := cache.RefreshIfChanged(ctx); err != nil {
			t.Errorf("RefreshIfChanged() failed: %v", err)
		}
	}()

	<-loader.entered // first refresh is inside the loader

	changed, err := cache.RefreshIfChanged(ctx)
	if err != nil {
		t.Fatalf("concurrent RefreshIfChanged() failed: %v", err)
	}
	if changed {
		t.Error("concurrent refresh should report no change")
	}
	if n := loader.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1 (second refresh skipped)", n)
	}

	close(loader.block)
	<-done
}

func TestRefreshIfChanged_LoaderError(t *testing.T) {
	loader := &stubLoader{err: errors.New("boom")}
	cache := New(loader, zap.NewNop())

	if _, err := cache.RefreshIfChanged(context.Background()); err == nil {
		t.Fatal("expected loader error to propagate")
	}
	if cache.Get() != nil {
		t.Error("failed refresh should not populate the cache")
	}
}
