package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"downbeat/internal/domain"
)

func newTestCache(t *testing.T) *StatusCacheRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewStatusCacheRepository(db).(*StatusCacheRepository)
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return repo
}

func TestStatusCacheRoundTrip(t *testing.T) {
	repo := newTestCache(t)
	ctx := context.Background()

	update := domain.StatusUpdate{
		Status:       domain.StatusRealTime,
		Kind:         domain.KindAlbum,
		Name:         "In Rainbows",
		Artist:       "Radiohead",
		CurrentIndex: 4,
		TotalItems:   10,
		ItemProgress: 62.5,
	}
	if err := repo.Put(ctx, "t-1", update); err != nil {
		t.Fatalf("put: %v", err)
	}

	// overwrite same slot
	update.ItemProgress = 80
	if err := repo.Put(ctx, "t-1", update); err != nil {
		t.Fatalf("put again: %v", err)
	}

	cached, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := cached["t-1"]
	if !ok {
		t.Fatal("t-1 missing from cache")
	}
	if got.ItemProgress != 80 || got.Kind != domain.KindAlbum || got.CurrentIndex != 4 {
		t.Errorf("cached = %+v", got)
	}
}

func TestStatusCacheDelete(t *testing.T) {
	repo := newTestCache(t)
	ctx := context.Background()

	if err := repo.Put(ctx, "t-2", domain.StatusUpdate{Status: domain.StatusDone, Kind: domain.KindTrack}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := repo.Delete(ctx, "t-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// deleting twice is fine
	if err := repo.Delete(ctx, "t-2"); err != nil {
		t.Fatalf("delete again: %v", err)
	}

	cached, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cached) != 0 {
		t.Errorf("cache should be empty, got %v", cached)
	}
}
