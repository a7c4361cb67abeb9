package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupTestCache(t *testing.T) *Cache {
	t.Helper()

	c, err := NewCache(filepath.Join(t.TempDir(), "cache.db"), 16)
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheEntry_IsValid(t *testing.T) {
	mod := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	e := CacheEntry{AbsolutePath: "/p/a.jpg", Hash: "0101", FileSize: 100, DateModified: mod, HashType: "phash"}

	tests := []struct {
		name     string
		size     int64
		modified time.Time
		hashType string
		want     bool
	}{
		{"match", 100, mod, "phash", true},
		{"same instant other zone", 100, mod.In(time.FixedZone("X", 3600)), "phash", true},
		{"size changed", 101, mod, "phash", false},
		{"touched", 100, mod.Add(time.Second), "phash", false},
		{"other algorithm", 100, mod, "dhash", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.IsValid(tt.size, tt.modified, tt.hashType); got != tt.want {
				t.Errorf("IsValid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCache_SaveAndFetch(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	mod := time.UnixMilli(1704888000000)

	entries := []CacheEntry{
		{AbsolutePath: "/p/a.jpg", Hash: "1111", FileSize: 10, DateModified: mod, HashType: "phash"},
		{AbsolutePath: "/p/b.jpg", Hash: "0000", FileSize: 20, DateModified: mod, HashType: "phash"},
	}
	if err := c.SaveCachedHashes(ctx, entries); err != nil {
		t.Fatalf("SaveCachedHashes failed: %v", err)
	}

	// Bypass the LRU tier so the rows come from SQLite.
	c.mem.Purge()

	got, err := c.FetchCachedHashes(ctx, []string{"/p/a.jpg", "/p/b.jpg", "/p/missing.jpg"})
	if err != nil {
		t.Fatalf("FetchCachedHashes failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}

	byPath := map[string]CacheEntry{}
	for _, e := range got {
		byPath[e.AbsolutePath] = e
	}
	a := byPath["/p/a.jpg"]
	if a.Hash != "1111" || !a.IsValid(10, mod, "phash") {
		t.Errorf("unexpected entry %+v", a)
	}
	if a.DateComputed.IsZero() {
		t.Error("expected computed date to be set")
	}
}

func TestCache_Upsert(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	mod := time.UnixMilli(1704888000000)

	first := CacheEntry{AbsolutePath: "/p/a.jpg", Hash: "1111", FileSize: 10, DateModified: mod, HashType: "phash"}
	second := first
	second.Hash = "0011"
	second.FileSize = 12

	for _, e := range []CacheEntry{first, second, second} {
		if err := c.SaveCachedHashes(ctx, []CacheEntry{e}); err != nil {
			t.Fatalf("SaveCachedHashes failed: %v", err)
		}
	}

	c.mem.Purge()
	got, err := c.FetchCachedHashes(ctx, []string{"/p/a.jpg"})
	if err != nil {
		t.Fatalf("FetchCachedHashes failed: %v", err)
	}
	if len(got) != 1 || got[0].Hash != "0011" || got[0].FileSize != 12 {
		t.Errorf("expected the latest entry, got %+v", got)
	}
}

func TestCache_FetchChunked(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	var entries []CacheEntry
	var paths []string
	for i := 0; i < queryChunkSize+37; i++ {
		p := fmt.Sprintf("/lib/img%04d.jpg", i)
		paths = append(paths, p)
		entries = append(entries, CacheEntry{AbsolutePath: p, Hash: "01", FileSize: int64(i), HashType: "phash"})
	}
	if err := c.SaveCachedHashes(ctx, entries); err != nil {
		t.Fatalf("SaveCachedHashes failed: %v", err)
	}

	c.mem.Purge()
	got, err := c.FetchCachedHashes(ctx, paths)
	if err != nil {
		t.Fatalf("FetchCachedHashes failed: %v", err)
	}
	if len(got) != len(paths) {
		t.Errorf("expected %d entries, got %d", len(paths), len(got))
	}
}

func TestCache_IgnoredGroups(t *testing.T) {
	c := setupTestCache(t)

	if c.IsGroupIgnored("abc") {
		t.Error("expected group not to be ignored yet")
	}
	if err := c.AddIgnoredGroup("abc"); err != nil {
		t.Fatalf("AddIgnoredGroup failed: %v", err)
	}
	if !c.IsGroupIgnored("abc") {
		t.Error("expected group to be ignored")
	}
}

func TestCache_ClearHashes(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	c.SaveCachedHashes(ctx, []CacheEntry{{AbsolutePath: "/p/a.jpg", Hash: "1", HashType: "phash"}})
	if err := c.ClearHashes(); err != nil {
		t.Fatalf("ClearHashes failed: %v", err)
	}
	got, _ := c.FetchCachedHashes(ctx, []string{"/p/a.jpg"})
	if len(got) != 0 {
		t.Errorf("expected empty cache, got %d entries", len(got))
	}
}

func newMockCache(t *testing.T) (*Cache, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS visual_hashes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ignored_groups").WillReturnResult(sqlmock.NewResult(0, 0))

	c, err := NewCacheWithDB(db, 8)
	if err != nil {
		t.Fatalf("NewCacheWithDB failed: %v", err)
	}
	return c, mock
}

func TestCache_FetchQueryError(t *testing.T) {
	c, mock := newMockCache(t)

	mock.ExpectQuery("SELECT absolute_path, hash").WillReturnError(errors.New("disk I/O error"))

	if _, err := c.FetchCachedHashes(context.Background(), []string{"/p/a.jpg"}); err == nil {
		t.Error("expected error from failing query")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCache_SaveExecError(t *testing.T) {
	c, mock := newMockCache(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT OR REPLACE INTO visual_hashes").
		ExpectExec().
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err := c.SaveCachedHashes(context.Background(), []CacheEntry{{AbsolutePath: "/p/a.jpg", Hash: "1"}})
	if err == nil {
		t.Fatal("expected error from failing upsert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}

	// A failed save must not populate the LRU tier.
	if _, ok := c.mem.Get("/p/a.jpg"); ok {
		t.Error("expected failed save to leave the memory tier untouched")
	}
}

func TestNewCacheWithDB_MigrationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS visual_hashes").WillReturnError(errors.New("read-only"))

	if _, err := NewCacheWithDB(db, 8); err == nil {
		t.Error("expected migration error")
	}
}
